package model

import (
	"strings"
	"time"
)

type EventType string

const (
	EventBeforeVerification  EventType = "before"
	EventAfterVerification   EventType = "after"
	EventVerificationSuccess EventType = "success"
	EventVerificationFailed  EventType = "failed"
)

// VerificationEvent is the payload emitted at each lifecycle point of a
// verification. Request and Result are redacted copies.
type VerificationEvent struct {
	Event       EventType           `json:"event"`
	FormID      int64               `json:"form_id"`
	EntryID     int64               `json:"entry_id"`
	Fingerprint string              `json:"fingerprint,omitempty"`
	Request     VerificationRequest `json:"request"`
	Result      *VerificationResult `json:"result,omitempty"`
	OccurredAt  time.Time           `json:"occurred_at"`
}

// RedactRequest drops names, birth date and contact details and keeps the
// last four characters of the member and group numbers.
func RedactRequest(req VerificationRequest) VerificationRequest {
	return VerificationRequest{
		MemberID:     maskID(req.MemberID),
		PayerID:      req.PayerID,
		PayerName:    req.PayerName,
		Gender:       req.Gender,
		GroupNumber:  maskID(req.GroupNumber),
		Relationship: req.Relationship,
		FacilityID:   req.FacilityID,
	}
}

// RedactResult returns a copy of res with the subscriber redacted the same way.
func RedactResult(res *VerificationResult) *VerificationResult {
	if res == nil {
		return nil
	}
	cp := *res
	if res.Subscriber != nil {
		cp.Subscriber = &Subscriber{MemberID: maskID(res.Subscriber.MemberID)}
	}
	return &cp
}

func maskID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	r := []rune(s)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}
