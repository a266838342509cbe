package model

import (
	"encoding/json"
	"strings"
	"time"
)

// HistoryRecord is one verification attempt stored for audit.
type HistoryRecord struct {
	ID               string              `json:"id"`
	EntryID          int64               `json:"entry_id"`
	FormID           int64               `json:"form_id"`
	VerificationDate time.Time           `json:"verification_date"`
	RequestData      VerificationRequest `json:"request_data"`
	ResponseData     VerificationResult  `json:"response_data"`
	Status           string              `json:"status"`
	CreatedAt        time.Time           `json:"created_at"`
}

type Period string

const (
	PeriodToday Period = "today"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod maps a period name to a Period. Unknown names fall back to PeriodAll.
func ParsePeriod(s string) Period {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodToday:
		return PeriodToday
	case PeriodWeek:
		return PeriodWeek
	case PeriodMonth:
		return PeriodMonth
	default:
		return PeriodAll
	}
}

// Since returns the lower bound of the period relative to now, or the zero time for PeriodAll.
func (p Period) Since(now time.Time) time.Time {
	switch p {
	case PeriodToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodMonth:
		return now.AddDate(0, -1, 0)
	default:
		return time.Time{}
	}
}

type Stats struct {
	Total       int64   `json:"total"`
	Active      int64   `json:"active"`
	Inactive    int64   `json:"inactive"`
	Errors      int64   `json:"errors"`
	SuccessRate float64 `json:"success_rate"`
}

// MarshalRequest and MarshalResult serialize payloads for the request_data/response_data columns.
func MarshalRequest(req *VerificationRequest) ([]byte, error) {
	return json.Marshal(req)
}

func MarshalResult(res *VerificationResult) ([]byte, error) {
	return json.Marshal(res)
}
