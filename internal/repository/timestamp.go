package repository

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Timestamp scans aggregate time columns, which some drivers return as text.
type Timestamp struct {
	Time  time.Time
	Valid bool
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// Scan implements sql.Scanner.
func (t *Timestamp) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*t = Timestamp{}
		return nil
	case time.Time:
		*t = Timestamp{Time: v.UTC(), Valid: true}
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("timestamp: unsupported type %T", value)
	}
}

func (t *Timestamp) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = Timestamp{Time: parsed.UTC(), Valid: true}
			return nil
		}
	}
	return fmt.Errorf("timestamp: cannot parse %q", s)
}

// Value implements driver.Valuer.
func (t Timestamp) Value() (driver.Value, error) {
	if !t.Valid {
		return nil, nil
	}
	return t.Time, nil
}

// MarshalJSON renders null for invalid timestamps.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if !t.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time)
}
