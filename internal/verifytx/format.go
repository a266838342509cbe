package verifytx

import (
	"strings"
	"time"
)

const defaultRelationshipCode = "SR01"

var relationshipCodes = map[string]string{
	"self":   "SR01",
	"spouse": "SR02",
	"child":  "SR03",
	"other":  "SR04",
	"adult":  "SR05",
}

// MapRelationship converts a subscriber relationship to the API's SRxx code.
// Unknown or empty values map to the "self" code.
func MapRelationship(relationship string) string {
	if code, ok := relationshipCodes[strings.ToLower(strings.TrimSpace(relationship))]; ok {
		return code
	}
	return defaultRelationshipCode
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02-Jan-2006",
	"20060102",
}

// ParseDate parses the textual date formats accepted on patient forms.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate renders a date as MM/DD/YYYY. Unparseable input is returned unchanged.
func FormatDate(value string) string {
	if value == "" {
		return ""
	}
	t, ok := ParseDate(value)
	if !ok {
		return value
	}
	return t.Format("01/02/2006")
}

// FormatPhone strips everything but digits.
func FormatPhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
