package model

import (
	"encoding/json"
	"time"
)

// Status values returned by the payer that the service treats specially.
const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
	StatusError    = "error"
	StatusUnknown  = "unknown"
)

// VerificationRequest holds the patient and insurance fields collected from a form.
// MemberID, DateOfBirth and PayerID are required for a request to proceed.
type VerificationRequest struct {
	MemberID       string `json:"member_id" validate:"required,notblank"`
	DateOfBirth    string `json:"date_of_birth" validate:"required,notblank,dob"`
	PayerID        string `json:"payer_id" validate:"required,notblank"`
	PayerName      string `json:"payer_name,omitempty"`
	FirstName      string `json:"first_name,omitempty"`
	LastName       string `json:"last_name,omitempty"`
	Gender         string `json:"gender,omitempty"`
	Phone          string `json:"phone,omitempty" validate:"omitempty,phone"`
	Email          string `json:"email,omitempty" validate:"omitempty,email"`
	GroupNumber    string `json:"group_number,omitempty"`
	Relationship   string `json:"relationship,omitempty"`
	FacilityID     string `json:"facility_id,omitempty"`
	InsurancePhone string `json:"insurance_phone,omitempty"`
}

type Payer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Subscriber struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	MemberID  string `json:"member_id"`
}

type Deductible struct {
	Amount    float64 `json:"amount"`
	Met       float64 `json:"met"`
	Remaining float64 `json:"remaining"`
}

type OutOfPocket struct {
	Max       float64 `json:"max"`
	Met       float64 `json:"met"`
	Remaining float64 `json:"remaining"`
}

// NetworkBenefit is one tier (in- or out-of-network) of a benefit line. Every part is optional.
type NetworkBenefit struct {
	Copay       *float64     `json:"copay,omitempty"`
	Deductible  *Deductible  `json:"deductible,omitempty"`
	OutOfPocket *OutOfPocket `json:"out_of_pocket,omitempty"`
	Coinsurance *float64     `json:"coinsurance,omitempty"`
}

type BenefitLine struct {
	Type       string          `json:"type"`
	InNetwork  *NetworkBenefit `json:"in_network,omitempty"`
	OutNetwork *NetworkBenefit `json:"out_network,omitempty"`
}

// VOB is a parsed verification-of-benefits response from the eligibility API.
type VOB struct {
	ID         string          `json:"vob_id"`
	Status     string          `json:"status"`
	Verified   bool            `json:"verified"`
	AsOfDate   string          `json:"as_of_date,omitempty"`
	Payer      *Payer          `json:"payer,omitempty"`
	Subscriber *Subscriber     `json:"subscriber,omitempty"`
	Benefits   []BenefitLine   `json:"benefits,omitempty"`
	Plans      json.RawMessage `json:"plans,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorRef   string          `json:"error_ref,omitempty"`
}

// VerificationResult is the normalized outcome of a verification call.
//
// Success implies Verified, and Verified implies Status == StatusActive.
// Error is only set when Success is false.
type VerificationResult struct {
	Success    bool            `json:"success"`
	Verified   bool            `json:"verified"`
	Status     string          `json:"status"`
	VOBID      string          `json:"vob_id,omitempty"`
	AsOfDate   string          `json:"as_of_date,omitempty"`
	Payer      *Payer          `json:"payer,omitempty"`
	Subscriber *Subscriber     `json:"subscriber,omitempty"`
	Benefits   []BenefitLine   `json:"benefits,omitempty"`
	Plans      json.RawMessage `json:"plans,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorRef   string          `json:"error_ref,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Violations []string        `json:"violations,omitempty"`
	VerifiedAt time.Time       `json:"verified_at"`
	Duration   float64         `json:"duration"`
	FromCache  bool            `json:"from_cache,omitempty"`
}

// PayerName returns the payer name or an empty string.
func (r *VerificationResult) PayerName() string {
	if r == nil || r.Payer == nil {
		return ""
	}
	return r.Payer.Name
}

// NewErrorResult builds a failed result carrying the given message and code.
func NewErrorResult(code, message string, at time.Time) *VerificationResult {
	return &VerificationResult{
		Success:    false,
		Verified:   false,
		Status:     StatusError,
		Error:      message,
		ErrorCode:  code,
		VerifiedAt: at,
	}
}
