package types

import (
	"encoding/json"
	"fmt"
	"time"

	"verifytx_gateway/internal/model"
)

// CacheRow is a row of the verifytx_cache table.
type CacheRow struct {
	ID         int64     `json:"id" db:"id"`
	CacheKey   string    `json:"cache_key" db:"cache_key"`
	CacheData  string    `json:"cache_data" db:"cache_data"`
	Expiration time.Time `json:"expiration" db:"expiration"`
}

// VerificationRow is a row of the verifytx_verifications table.
// RequestData and ResponseData hold JSON text.
type VerificationRow struct {
	ID               string    `json:"id" db:"id"`
	EntryID          int64     `json:"entry_id" db:"entry_id"`
	FormID           int64     `json:"form_id" db:"form_id"`
	VerificationDate time.Time `json:"verification_date" db:"verification_date"`
	RequestData      string    `json:"request_data" db:"request_data"`
	ResponseData     string    `json:"response_data" db:"response_data"`
	Status           string    `json:"status" db:"status"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Record decodes the stored JSON columns into a HistoryRecord.
func (r VerificationRow) Record() (*model.HistoryRecord, error) {
	rec := &model.HistoryRecord{
		ID:               r.ID,
		EntryID:          r.EntryID,
		FormID:           r.FormID,
		VerificationDate: r.VerificationDate,
		Status:           r.Status,
		CreatedAt:        r.CreatedAt,
	}
	if r.RequestData != "" {
		if err := json.Unmarshal([]byte(r.RequestData), &rec.RequestData); err != nil {
			return nil, fmt.Errorf("failed to decode request data: %w", err)
		}
	}
	if r.ResponseData != "" {
		if err := json.Unmarshal([]byte(r.ResponseData), &rec.ResponseData); err != nil {
			return nil, fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return rec, nil
}
