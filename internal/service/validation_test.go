package service

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"verifytx_gateway/internal/model"
)

func TestValidateRequest(t *testing.T) {
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")

	tests := []struct {
		name               string
		req                *model.VerificationRequest
		expectedViolations []string
	}{
		{
			name: "valid_request",
			req:  &model.VerificationRequest{MemberID: "M123", DateOfBirth: "1990-01-01", PayerID: "BCBS", Email: "jane@example.com", Phone: "(555) 123-4567"},
		},
		{
			name:               "missing_member_id",
			req:                &model.VerificationRequest{DateOfBirth: "1990-01-01", PayerID: "BCBS"},
			expectedViolations: []string{"Member ID is required"},
		},
		{
			name:               "blank_required_fields",
			req:                &model.VerificationRequest{MemberID: "   ", DateOfBirth: "\t", PayerID: " \n "},
			expectedViolations: []string{"Member ID is required", "Date of Birth is required", "Insurance Provider is required"},
		},
		{
			name:               "invalid_email",
			req:                &model.VerificationRequest{MemberID: "M123", DateOfBirth: "1990-01-01", PayerID: "BCBS", Email: "not-an-email"},
			expectedViolations: []string{"Invalid email address"},
		},
		{
			name:               "short_phone",
			req:                &model.VerificationRequest{MemberID: "M123", DateOfBirth: "1990-01-01", PayerID: "BCBS", Phone: "555-1234"},
			expectedViolations: []string{"Phone number must be at least 10 digits"},
		},
		{
			name:               "future_date_of_birth",
			req:                &model.VerificationRequest{MemberID: "M123", DateOfBirth: tomorrow, PayerID: "BCBS"},
			expectedViolations: []string{"Invalid date of birth"},
		},
		{
			name:               "unparseable_date_of_birth",
			req:                &model.VerificationRequest{MemberID: "M123", DateOfBirth: "sometime", PayerID: "BCBS"},
			expectedViolations: []string{"Invalid date of birth"},
		},
		{
			name:               "everything_missing",
			req:                &model.VerificationRequest{},
			expectedViolations: []string{"Member ID is required", "Date of Birth is required", "Insurance Provider is required"},
		},
		{
			name:               "nil_request",
			req:                nil,
			expectedViolations: []string{"Member ID is required", "Date of Birth is required", "Insurance Provider is required"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateRequest(tt.req)

			if len(tt.expectedViolations) == 0 {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got != tt.req {
					t.Error("expected valid request to be returned unchanged")
				}
				return
			}

			verr, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, but got %v", err)
			}
			if !reflect.DeepEqual(verr.Violations, tt.expectedViolations) {
				t.Errorf("expected violations %v, but got %v", tt.expectedViolations, verr.Violations)
			}
			if err.Error() != strings.Join(tt.expectedViolations, ", ") {
				t.Errorf("unexpected message '%s'", err.Error())
			}
		})
	}
}

func TestRequestFromFields(t *testing.T) {
	req := RequestFromFields(map[string]string{
		"Member_ID":          " M123 ",
		"patient_dob":        "1990-05-20",
		"insurance_company":  "BCBS",
		"payer_id":           "",
		"patient_first_name": "Jane",
		"first_name":         "Janet",
		"patient_gender":     "F",
		"group_number":       "G-1",
		"relationship":       "spouse",
		"unrelated":          "ignored",
	})

	expected := &model.VerificationRequest{
		MemberID:     "M123",
		DateOfBirth:  "1990-05-20",
		PayerID:      "BCBS",
		FirstName:    "Janet",
		Gender:       "F",
		GroupNumber:  "G-1",
		Relationship: "spouse",
	}
	if !reflect.DeepEqual(req, expected) {
		t.Errorf("expected %+v, but got %+v", expected, req)
	}
}

func TestFingerprint(t *testing.T) {
	base := &model.VerificationRequest{MemberID: "M123", DateOfBirth: "1990-05-20", PayerID: "BCBS", FirstName: "Jane", LastName: "Doe", GroupNumber: "G-1"}

	t.Run("stable_and_prefixed", func(t *testing.T) {
		fp := Fingerprint(base)
		if !strings.HasPrefix(fp, "vtx_") || len(fp) != len("vtx_")+32 {
			t.Errorf("unexpected fingerprint '%s'", fp)
		}
		if Fingerprint(base) != fp {
			t.Error("expected fingerprint to be deterministic")
		}
	})

	t.Run("field_order_and_irrelevant_fields", func(t *testing.T) {
		a := RequestFromFields(map[string]string{"member_id": "M123", "date_of_birth": "1990-05-20", "payer_id": "BCBS", "first_name": "JANE", "last_name": "doe", "group_number": "G-1"})
		b := RequestFromFields(map[string]string{"group_number": "G-1", "last_name": "Doe", "first_name": "jane", "payer_id": "BCBS", "date_of_birth": "1990-05-20", "member_id": "M123", "email": "x@example.com", "phone": "5551234567"})
		if Fingerprint(a) != Fingerprint(b) {
			t.Errorf("expected equal fingerprints, got '%s' and '%s'", Fingerprint(a), Fingerprint(b))
		}
		if Fingerprint(a) != Fingerprint(base) {
			t.Error("expected names to be compared case-insensitively")
		}
	})

	t.Run("member_id_changes_fingerprint", func(t *testing.T) {
		for _, id := range []string{"M124", "m123", "M1234", ""} {
			other := *base
			other.MemberID = id
			if Fingerprint(&other) == Fingerprint(base) {
				t.Errorf("expected member id '%s' to change the fingerprint", id)
			}
		}
	})
}

func TestCheckEntryValue(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		rule     EntryRule
		expected string
	}{
		{name: "empty_optional", value: "", rule: EntryRule{}, expected: ""},
		{name: "empty_required", value: "", rule: EntryRule{Required: true}, expected: "Insurance verification is required."},
		{name: "empty_required_custom", value: " ", rule: EntryRule{Required: true, RequiredMessage: "Please verify"}, expected: "Please verify"},
		{name: "invalid_json", value: "{", rule: EntryRule{}, expected: "Invalid verification data."},
		{name: "inactive_when_active_required", value: `{"status":"Inactive"}`, rule: EntryRule{RequireActive: true}, expected: "Insurance coverage must be active."},
		{name: "lowercase_active_accepted", value: `{"status":"active"}`, rule: EntryRule{RequireActive: true}, expected: ""},
		{name: "inactive_allowed", value: `{"status":"Inactive"}`, rule: EntryRule{}, expected: ""},
		{name: "error_reported", value: `{"status":"error","error":"Payer timeout"}`, rule: EntryRule{}, expected: "Verification failed: Payer timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CheckEntryValue(tt.value, tt.rule); got != tt.expected {
				t.Errorf("expected '%s', but got '%s'", tt.expected, got)
			}
		})
	}
}
