package services

import (
	"strings"
	"unicode"
)

var fieldLabels = map[string]string{
	"fname":         "First Name",
	"lname":         "Last Name",
	"first_name":    "First Name",
	"last_name":     "Last Name",
	"name":          "Name",
	"email":         "Email",
	"email_address": "Email Address",
	"phone":         "Phone",
	"message_long":  "Message (Long)",
	"message_short": "Message (Short)",
	"message":       "Message",
	"description":   "Description",
	"city":          "City",
	"zip":           "ZIP Code",
	"zip_code":      "ZIP Code",
	"postal_code":   "Postal Code",
	"plz":           "PLZ",
	"gender":        "Gender",
	"age":           "Age",
	"birth_year":    "Birth Year",
	"birthday":      "Birthday",
	"bday":          "Birthday",
}

// FieldLabel returns a human readable label for a payload key. Unknown keys are
// split on underscores, dashes and camelCase boundaries and title-cased.
func FieldLabel(key string) string {
	if label, ok := fieldLabels[key]; ok {
		return label
	}

	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	runes := []rune(key)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
			continue
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])):
			flush()
		}
		current = append(current, r)
	}
	flush()

	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
