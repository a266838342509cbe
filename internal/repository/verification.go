package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"verifytx_gateway/internal/model"
	"verifytx_gateway/types"
)

// VerificationRepository is the append-only verification history.
type VerificationRepository interface {
	Append(ctx context.Context, req *model.VerificationRequest, result *model.VerificationResult, formID, entryID int64) (string, error)
	QueryByEntry(ctx context.Context, entryID int64) ([]*model.HistoryRecord, error)
	Stats(ctx context.Context, formID *int64, period model.Period) (*model.Stats, error)
	Sweep(ctx context.Context) (*SweepResult, error)
}

// SweepResult reports how many rows a maintenance pass removed.
type SweepResult struct {
	HistoryPurged int64 `json:"history_purged"`
	CachePurged   int64 `json:"cache_purged"`
}

type verificationRepository struct {
	db            DB
	cache         CacheRepository
	retentionDays int
	logger        *zap.Logger
	now           func() time.Time
}

// NewVerificationRepository creates the history store. retentionDays <= 0 keeps rows forever.
// cache may be nil, in which case Sweep only touches history.
func NewVerificationRepository(db DB, cache CacheRepository, retentionDays int, logger *zap.Logger) VerificationRepository {
	return &verificationRepository{
		db:            db,
		cache:         cache,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// Append inserts a new history row and then runs a best-effort sweep.
func (r *verificationRepository) Append(ctx context.Context, req *model.VerificationRequest, result *model.VerificationResult, formID, entryID int64) (string, error) {
	reqData, err := model.MarshalRequest(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode request data: %w", err)
	}
	resData, err := model.MarshalResult(result)
	if err != nil {
		return "", fmt.Errorf("failed to encode response data: %w", err)
	}

	now := r.now()
	verificationDate := result.VerifiedAt
	if verificationDate.IsZero() {
		verificationDate = now
	}

	id := uuid.New().String()
	query := `
		INSERT INTO verifytx_verifications
			(id, entry_id, form_id, verification_date, request_data, response_data, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`

	_, err = r.db.Exec(ctx, query, id, entryID, formID, verificationDate, string(reqData), string(resData), result.Status, now)
	if err != nil {
		r.logger.Error("failed to append verification", zap.Error(err), zap.Int64("entry_id", entryID), zap.Int64("form_id", formID))
		return "", fmt.Errorf("failed to append verification: %w", err)
	}

	r.logger.Debug("verification appended", zap.String("id", id), zap.String("status", result.Status))

	if _, err := r.Sweep(ctx); err != nil {
		r.logger.Warn("maintenance sweep after append failed", zap.Error(err))
	}

	return id, nil
}

func (r *verificationRepository) QueryByEntry(ctx context.Context, entryID int64) ([]*model.HistoryRecord, error) {
	query := `
		SELECT id, entry_id, form_id, verification_date, request_data, response_data, status, created_at, updated_at
		FROM verifytx_verifications
		WHERE entry_id = $1
		ORDER BY verification_date DESC
	`

	rows, err := r.db.Query(ctx, query, entryID)
	if err != nil {
		r.logger.Error("failed to query verification history", zap.Error(err), zap.Int64("entry_id", entryID))
		return nil, fmt.Errorf("failed to query verification history: %w", err)
	}
	defer rows.Close()

	records := []*model.HistoryRecord{}
	for rows.Next() {
		var row types.VerificationRow
		err := rows.Scan(&row.ID, &row.EntryID, &row.FormID, &row.VerificationDate, &row.RequestData, &row.ResponseData, &row.Status, &row.CreatedAt, &row.UpdatedAt)
		if err != nil {
			r.logger.Error("failed to scan verification", zap.Error(err))
			continue
		}

		rec, err := row.Record()
		if err != nil {
			r.logger.Error("failed to decode verification", zap.String("id", row.ID), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read verification history: %w", err)
	}

	return records, nil
}

// Stats counts verifications by status, optionally restricted to one form and a period.
func (r *verificationRepository) Stats(ctx context.Context, formID *int64, period model.Period) (*model.Stats, error) {
	args := []any{model.StatusActive, model.StatusInactive, model.StatusError}
	var where []string
	if formID != nil {
		args = append(args, *formID)
		where = append(where, fmt.Sprintf("form_id = $%d", len(args)))
	}
	if since := period.Since(r.now()); !since.IsZero() {
		args = append(args, since)
		where = append(where, fmt.Sprintf("verification_date >= $%d", len(args)))
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = $1),
			COUNT(*) FILTER (WHERE status = $2),
			COUNT(*) FILTER (WHERE status = $3)
		FROM verifytx_verifications
	`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	var stats model.Stats
	err := r.db.QueryRow(ctx, query, args...).Scan(&stats.Total, &stats.Active, &stats.Inactive, &stats.Errors)
	if err != nil {
		r.logger.Error("failed to get verification stats", zap.Error(err))
		return nil, fmt.Errorf("failed to get verification stats: %w", err)
	}

	stats.SuccessRate = successRate(stats.Active, stats.Total)
	return &stats, nil
}

// Sweep purges history past retention and expired cache rows. Both steps always run.
func (r *verificationRepository) Sweep(ctx context.Context) (*SweepResult, error) {
	res := &SweepResult{}
	var errs []error

	if r.retentionDays > 0 {
		cutoff := r.now().AddDate(0, 0, -r.retentionDays)
		tag, err := r.db.Exec(ctx, `DELETE FROM verifytx_verifications WHERE created_at < $1`, cutoff)
		if err != nil {
			r.logger.Error("failed to purge old verifications", zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to purge old verifications: %w", err))
		} else {
			res.HistoryPurged = tag.RowsAffected()
		}
	}

	if r.cache != nil {
		n, err := r.cache.PurgeExpired(ctx)
		if err != nil {
			errs = append(errs, err)
		} else {
			res.CachePurged = n
		}
	}

	if res.HistoryPurged > 0 || res.CachePurged > 0 {
		r.logger.Info("maintenance sweep removed rows", zap.Int64("history", res.HistoryPurged), zap.Int64("cache", res.CachePurged))
	}
	return res, errors.Join(errs...)
}

func successRate(active, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(active)/float64(total)*100*100) / 100
}
