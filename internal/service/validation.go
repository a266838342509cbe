package service

import (
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"verifytx_gateway/internal/model"
	"verifytx_gateway/internal/verifytx"
)

const minPhoneDigits = 10

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("notblank", validators.NotBlank)
	validate.RegisterValidation("dob", validateDOB)
	validate.RegisterValidation("phone", validatePhone)
}

// violationMessages is keyed by struct field and failed tag.
var violationMessages = map[string]string{
	"MemberID.required":    "Member ID is required",
	"DateOfBirth.required": "Date of Birth is required",
	"PayerID.required":     "Insurance Provider is required",
	"MemberID.notblank":    "Member ID is required",
	"DateOfBirth.notblank": "Date of Birth is required",
	"PayerID.notblank":     "Insurance Provider is required",
	"DateOfBirth.dob":      "Invalid date of birth",
	"Email.email":          "Invalid email address",
	"Phone.phone":          "Phone number must be at least 10 digits",
}

// ValidationError lists every rule a request violated.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, ", ")
}

// ValidateRequest checks a request before it is sent anywhere. A valid request
// is returned unchanged.
func ValidateRequest(req *model.VerificationRequest) (*model.VerificationRequest, error) {
	if req == nil {
		return nil, &ValidationError{Violations: []string{violationMessages["MemberID.required"], violationMessages["DateOfBirth.required"], violationMessages["PayerID.required"]}}
	}

	err := validate.Struct(req)
	if err == nil {
		return req, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, err
	}

	verr := &ValidationError{}
	for _, fe := range fieldErrs {
		msg, ok := violationMessages[fe.StructField()+"."+fe.Tag()]
		if !ok {
			msg = fe.Field() + " is invalid"
		}
		verr.Violations = append(verr.Violations, msg)
	}
	return nil, verr
}

func validateDOB(fl validator.FieldLevel) bool {
	dob, ok := verifytx.ParseDate(fl.Field().String())
	return ok && !dob.After(time.Now())
}

func validatePhone(fl validator.FieldLevel) bool {
	return len(verifytx.FormatPhone(fl.Field().String())) >= minPhoneDigits
}
