package service

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntryRule configures how a stored verification value is checked on form submit.
type EntryRule struct {
	Required        bool
	RequireActive   bool
	RequiredMessage string
}

// CheckEntryValue validates the JSON value stored for a verification field.
// It returns an empty string when the value is acceptable.
func CheckEntryValue(value string, rule EntryRule) string {
	if strings.TrimSpace(value) == "" {
		if !rule.Required {
			return ""
		}
		if rule.RequiredMessage != "" {
			return rule.RequiredMessage
		}
		return "Insurance verification is required."
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(value), &data); err != nil {
		return "Invalid verification data."
	}

	if status, ok := data["status"].(string); ok && rule.RequireActive && !strings.EqualFold(status, "active") {
		return "Insurance coverage must be active."
	}

	if msg, ok := data["error"].(string); ok && msg != "" {
		return fmt.Sprintf("Verification failed: %s", msg)
	}
	return ""
}
