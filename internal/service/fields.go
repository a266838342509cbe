package service

import (
	"strings"

	"verifytx_gateway/internal/model"
)

// fieldAliases maps form field-map names onto request fields.
var fieldAliases = map[string]string{
	"patient_first_name": "first_name",
	"patient_last_name":  "last_name",
	"patient_dob":        "date_of_birth",
	"patient_gender":     "gender",
	"insurance_company":  "payer_id",
}

// RequestFromFields builds a request from raw form values. Keys are matched
// case-insensitively and values are trimmed. A non-empty canonical key wins
// over its alias.
func RequestFromFields(fields map[string]string) *model.VerificationRequest {
	values := make(map[string]string, len(fields))
	for k, v := range fields {
		if canonical, ok := fieldAliases[normalizeKey(k)]; ok {
			values[canonical] = strings.TrimSpace(v)
		}
	}
	for k, v := range fields {
		key := normalizeKey(k)
		if _, alias := fieldAliases[key]; alias {
			continue
		}
		if v = strings.TrimSpace(v); v != "" || values[key] == "" {
			values[key] = v
		}
	}

	return &model.VerificationRequest{
		MemberID:       values["member_id"],
		DateOfBirth:    values["date_of_birth"],
		PayerID:        values["payer_id"],
		PayerName:      values["payer_name"],
		FirstName:      values["first_name"],
		LastName:       values["last_name"],
		Gender:         values["gender"],
		Phone:          values["phone"],
		Email:          values["email"],
		GroupNumber:    values["group_number"],
		Relationship:   values["relationship"],
		FacilityID:     values["facility_id"],
		InsurancePhone: values["insurance_phone"],
	}
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}
