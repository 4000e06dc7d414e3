package services

import (
	"context"
	"strings"
	"time"
)

// systemKeys are routing keys that travel inside the payload but are not form fields.
var systemKeys = map[string]struct{}{
	"webform_id":      {},
	"submission_form": {},
	"station":         {},
	"category":        {},
}

// IsSystemKey reports whether key is a routing key rather than a form field.
func IsSystemKey(key string) bool {
	_, ok := systemKeys[key]
	return ok
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func normaliseKeys(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, exists := seen[value]; exists {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func containsString(values []string, target string) bool {
	target = strings.TrimSpace(target)
	if target == "" {
		return false
	}
	for _, value := range values {
		if strings.TrimSpace(value) == target {
			return true
		}
	}
	return false
}

func stringPtr(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

// utcNow keeps timestamps comparable on drivers that store times as text.
func utcNow() time.Time {
	return time.Now().UTC()
}
