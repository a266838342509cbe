package verifytx

import (
	"encoding/json"
	"errors"
	"fmt"

	"verifytx_gateway/internal/model"
)

const unknownErrorMessage = "An unknown error occurred"

// Error is returned by every Client operation that fails.
type Error struct {
	Code       string
	Message    string
	StatusCode int
	Ref        string
	Body       []byte
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts an *Error from err.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsAuthFailed reports whether err came from token acquisition.
func IsAuthFailed(err error) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Code == model.ErrorCodeAuth
}

func transportError(op string, err error) *Error {
	return &Error{
		Code:    model.ErrorCodeTransport,
		Message: fmt.Sprintf("%s request failed: %v", op, err),
		Err:     err,
	}
}

func responseError(code string, status int, body []byte) *Error {
	msg, ref := parseErrorMessage(body)
	return &Error{
		Code:       code,
		Message:    msg,
		StatusCode: status,
		Ref:        ref,
		Body:       body,
	}
}

// parseErrorMessage looks at error (string or error.message), message and
// error_description in that order.
func parseErrorMessage(body []byte) (string, string) {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return unknownErrorMessage, ""
	}

	var ref string
	if raw, ok := payload["error_ref"]; ok {
		_ = json.Unmarshal(raw, &ref)
	}

	if raw, ok := payload["error"]; ok {
		if msg := stringOrMessage(raw); msg != "" {
			return msg, ref
		}
	}

	for _, key := range []string{"message", "error_description"} {
		if raw, ok := payload[key]; ok {
			var msg string
			if err := json.Unmarshal(raw, &msg); err == nil && msg != "" {
				return msg, ref
			}
		}
	}

	return unknownErrorMessage, ref
}

func stringOrMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Message
	}
	return ""
}
