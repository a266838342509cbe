package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"verifytx_gateway/internal/formatter"
	"verifytx_gateway/internal/messaging"
	"verifytx_gateway/internal/metrics"
	"verifytx_gateway/internal/model"
	"verifytx_gateway/internal/repository"
	"verifytx_gateway/internal/verifytx"
)

// EligibilityClient is the part of the API client the orchestrator needs.
type EligibilityClient interface {
	CreateAndVerify(ctx context.Context, req *model.VerificationRequest) (*model.VOB, error)
}

type VerificationService interface {
	// Verify never returns an error: every failure is reported as a result with Success false.
	Verify(ctx context.Context, fields map[string]string, formID, entryID int64) *model.VerificationResult
	VerifyRequest(ctx context.Context, req *model.VerificationRequest, formID, entryID int64) *model.VerificationResult
	FormatForDisplay(result *model.VerificationResult) *model.Display
	GetEntryVerificationHistory(ctx context.Context, entryID int64) ([]*model.HistoryRecord, error)
	GetVerificationStats(ctx context.Context, formID *int64, period model.Period) (*model.Stats, error)
}

type verificationService struct {
	client   EligibilityClient
	cache    repository.CacheRepository
	repo     repository.VerificationRepository
	events   messaging.Publisher
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewVerificationService wires the orchestrator. A cacheTTL of zero disables
// the result cache entirely.
func NewVerificationService(client EligibilityClient, cache repository.CacheRepository, repo repository.VerificationRepository, events messaging.Publisher, cacheTTL time.Duration, logger *zap.Logger) VerificationService {
	if events == nil {
		events = messaging.NopClient{}
	}
	return &verificationService{
		client:   client,
		cache:    cache,
		repo:     repo,
		events:   events,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *verificationService) Verify(ctx context.Context, fields map[string]string, formID, entryID int64) *model.VerificationResult {
	return s.VerifyRequest(ctx, RequestFromFields(fields), formID, entryID)
}

func (s *verificationService) VerifyRequest(ctx context.Context, req *model.VerificationRequest, formID, entryID int64) *model.VerificationResult {
	req, err := ValidateRequest(req)
	if err != nil {
		return s.rejected(err, entryID)
	}

	start := s.now()
	key := Fingerprint(req)

	if s.cachingEnabled() {
		cached, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.ObserveCacheLookup(metrics.CacheError)
			s.logger.Warn("cache lookup failed, calling api", zap.String("fingerprint", key), zap.Error(err))
		case cached != nil:
			metrics.ObserveCacheLookup(metrics.CacheHit)
			metrics.ObserveVerification(metrics.OutcomeCached)
			s.logger.Debug("verification served from cache", zap.String("fingerprint", key), zap.Int64("entry_id", entryID))
			return cached
		default:
			metrics.ObserveCacheLookup(metrics.CacheMiss)
		}
	}

	s.notify(ctx, model.EventBeforeVerification, key, req, nil, formID, entryID)

	callStart := s.now()
	vob, err := s.client.CreateAndVerify(ctx, req)
	metrics.ObserveAPIDuration(s.now().Sub(callStart))

	if err != nil {
		result := failureResult(err, s.now())
		result.Duration = s.now().Sub(start).Seconds()

		s.logger.Error("verification failed", zap.Error(err), zap.String("code", result.ErrorCode), zap.Int64("form_id", formID), zap.Int64("entry_id", entryID))
		metrics.ObserveVerification(metrics.OutcomeFailed)

		s.record(ctx, req, result, formID, entryID)
		s.notify(ctx, model.EventVerificationFailed, key, req, result, formID, entryID)
		return result
	}

	result := normalize(vob, s.now())
	result.Duration = s.now().Sub(start).Seconds()

	if result.Success && s.cachingEnabled() {
		if err := s.cache.Put(ctx, key, result, s.cacheTTL); err != nil {
			metrics.ObservePersistenceFailure("cache")
			s.logger.Warn("failed to cache verification result", zap.String("fingerprint", key), zap.Error(err))
		}
	}

	s.record(ctx, req, result, formID, entryID)

	s.notify(ctx, model.EventAfterVerification, key, req, result, formID, entryID)
	if result.Success {
		metrics.ObserveVerification(metrics.OutcomeSuccess)
		s.notify(ctx, model.EventVerificationSuccess, key, req, result, formID, entryID)
	} else {
		metrics.ObserveVerification(metrics.OutcomeFailed)
		s.notify(ctx, model.EventVerificationFailed, key, req, result, formID, entryID)
	}

	s.logger.Info("verification completed",
		zap.String("status", result.Status),
		zap.Bool("verified", result.Verified),
		zap.String("vob_id", result.VOBID),
		zap.Float64("duration", result.Duration),
		zap.Int64("entry_id", entryID),
	)
	return result
}

func (s *verificationService) FormatForDisplay(result *model.VerificationResult) *model.Display {
	return formatter.FormatForDisplay(result)
}

func (s *verificationService) GetEntryVerificationHistory(ctx context.Context, entryID int64) ([]*model.HistoryRecord, error) {
	if entryID <= 0 {
		return nil, fmt.Errorf("entry id must be positive, got %d", entryID)
	}

	records, err := s.repo.QueryByEntry(ctx, entryID)
	if err != nil {
		s.logger.Error("failed to get verification history from repository", zap.Error(err), zap.Int64("entry_id", entryID))
		return nil, fmt.Errorf("failed to get verification history: %w", err)
	}
	return records, nil
}

func (s *verificationService) GetVerificationStats(ctx context.Context, formID *int64, period model.Period) (*model.Stats, error) {
	stats, err := s.repo.Stats(ctx, formID, period)
	if err != nil {
		s.logger.Error("failed to get verification stats from repository", zap.Error(err))
		return nil, fmt.Errorf("failed to get verification stats: %w", err)
	}
	return stats, nil
}

func (s *verificationService) cachingEnabled() bool {
	return s.cache != nil && s.cacheTTL > 0
}

func (s *verificationService) rejected(err error, entryID int64) *model.VerificationResult {
	result := model.NewErrorResult(model.ErrorCodeValidation, err.Error(), s.now())

	var verr *ValidationError
	if errors.As(err, &verr) {
		result.Violations = verr.Violations
	}

	metrics.ObserveVerification(metrics.OutcomeInvalid)
	s.logger.Warn("verification request rejected", zap.Strings("violations", result.Violations), zap.Int64("entry_id", entryID))
	return result
}

// record appends to history. Failures are logged and never reach the caller.
func (s *verificationService) record(ctx context.Context, req *model.VerificationRequest, result *model.VerificationResult, formID, entryID int64) {
	if s.repo == nil {
		return
	}
	if _, err := s.repo.Append(ctx, req, result, formID, entryID); err != nil {
		metrics.ObservePersistenceFailure("history")
		s.logger.Error("failed to record verification history", zap.Error(err), zap.Int64("entry_id", entryID))
	}
}

// notify publishes a redacted event. Failures are logged only.
func (s *verificationService) notify(ctx context.Context, event model.EventType, key string, req *model.VerificationRequest, result *model.VerificationResult, formID, entryID int64) {
	err := s.events.Publish(ctx, &model.VerificationEvent{
		Event:       event,
		FormID:      formID,
		EntryID:     entryID,
		Fingerprint: key,
		Request:     model.RedactRequest(*req),
		Result:      model.RedactResult(result),
		OccurredAt:  s.now(),
	})
	if err != nil {
		s.logger.Warn("failed to publish verification event", zap.String("event", string(event)), zap.Error(err))
	}
}

func failureResult(err error, at time.Time) *model.VerificationResult {
	apiErr, ok := verifytx.AsError(err)
	if !ok {
		return model.NewErrorResult(model.ErrorCodeTransport, err.Error(), at)
	}

	result := model.NewErrorResult(apiErr.Code, apiErr.Message, at)
	result.ErrorRef = apiErr.Ref
	return result
}

// normalize turns a VOB into a result. Error is only carried over when the
// coverage is not active.
func normalize(vob *model.VOB, at time.Time) *model.VerificationResult {
	result := &model.VerificationResult{
		Success:    vob.Verified,
		Verified:   vob.Verified,
		Status:     vob.Status,
		VOBID:      vob.ID,
		AsOfDate:   vob.AsOfDate,
		Payer:      vob.Payer,
		Subscriber: vob.Subscriber,
		Benefits:   vob.Benefits,
		Plans:      vob.Plans,
		VerifiedAt: at,
	}
	if !result.Success {
		result.Error = vob.Error
		result.ErrorRef = vob.ErrorRef
	}
	return result
}
