package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"verifytx_gateway/internal/model"
	"verifytx_gateway/internal/repository"
	"verifytx_gateway/internal/verifytx"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type mockEligibilityClient struct {
	createAndVerifyFunc func(ctx context.Context, req *model.VerificationRequest) (*model.VOB, error)
	calls               int32
}

func (m *mockEligibilityClient) CreateAndVerify(ctx context.Context, req *model.VerificationRequest) (*model.VOB, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.createAndVerifyFunc != nil {
		return m.createAndVerifyFunc(ctx, req)
	}
	return &model.VOB{ID: "vob-1", Status: model.StatusActive, Verified: true}, nil
}

type mockCacheRepository struct {
	getFunc func(ctx context.Context, key string) (*model.VerificationResult, error)
	putFunc func(ctx context.Context, key string, result *model.VerificationResult, ttl time.Duration) error
	gets    int
	puts    int
	lastTTL time.Duration
}

func (m *mockCacheRepository) Get(ctx context.Context, key string) (*model.VerificationResult, error) {
	m.gets++
	if m.getFunc != nil {
		return m.getFunc(ctx, key)
	}
	return nil, nil
}

func (m *mockCacheRepository) Put(ctx context.Context, key string, result *model.VerificationResult, ttl time.Duration) error {
	m.puts++
	m.lastTTL = ttl
	if m.putFunc != nil {
		return m.putFunc(ctx, key, result, ttl)
	}
	return nil
}

func (m *mockCacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type mockVerificationRepository struct {
	mu               sync.Mutex
	appendFunc       func(ctx context.Context, req *model.VerificationRequest, result *model.VerificationResult, formID, entryID int64) (string, error)
	queryByEntryFunc func(ctx context.Context, entryID int64) ([]*model.HistoryRecord, error)
	statsFunc        func(ctx context.Context, formID *int64, period model.Period) (*model.Stats, error)
	appended         []*model.VerificationResult
}

func (m *mockVerificationRepository) Append(ctx context.Context, req *model.VerificationRequest, result *model.VerificationResult, formID, entryID int64) (string, error) {
	m.mu.Lock()
	m.appended = append(m.appended, result)
	m.mu.Unlock()
	if m.appendFunc != nil {
		return m.appendFunc(ctx, req, result, formID, entryID)
	}
	return "history-id", nil
}

func (m *mockVerificationRepository) QueryByEntry(ctx context.Context, entryID int64) ([]*model.HistoryRecord, error) {
	if m.queryByEntryFunc != nil {
		return m.queryByEntryFunc(ctx, entryID)
	}
	return nil, nil
}

func (m *mockVerificationRepository) Stats(ctx context.Context, formID *int64, period model.Period) (*model.Stats, error) {
	if m.statsFunc != nil {
		return m.statsFunc(ctx, formID, period)
	}
	return &model.Stats{}, nil
}

func (m *mockVerificationRepository) Sweep(ctx context.Context) (*repository.SweepResult, error) {
	return &repository.SweepResult{}, nil
}

type mockPublisher struct {
	mu        sync.Mutex
	events    []model.EventType
	published []*model.VerificationEvent
	err       error
}

func (m *mockPublisher) Publish(ctx context.Context, event *model.VerificationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event.Event)
	m.published = append(m.published, event)
	return m.err
}

func validFields() map[string]string {
	return map[string]string{
		"member_id":          "M123",
		"patient_dob":        "1990-05-20",
		"insurance_company":  "BCBS",
		"patient_first_name": "Jane",
		"patient_last_name":  "Doe",
	}
}

func newTestService(t *testing.T, client EligibilityClient, cache repository.CacheRepository, repo repository.VerificationRepository, events *mockPublisher, ttl time.Duration) *verificationService {
	svc := NewVerificationService(client, cache, repo, events, ttl, zaptest.NewLogger(t)).(*verificationService)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestVerify(t *testing.T) {
	cachedResult := &model.VerificationResult{Success: true, Verified: true, Status: model.StatusActive, VOBID: "cached", FromCache: true}

	tests := []struct {
		name             string
		ttl              time.Duration
		cacheGet         func(ctx context.Context, key string) (*model.VerificationResult, error)
		apiResponse      *model.VOB
		apiError         error
		appendError      error
		publishError     error
		expectedSuccess  bool
		expectedStatus   string
		expectedCode     string
		expectedError    string
		expectedAPICalls int32
		expectedHistory  int
		expectedPuts     int
		expectedEvents   []model.EventType
		expectedFromHit  bool
	}{
		{
			name: "cache_hit",
			ttl:  24 * time.Hour,
			cacheGet: func(ctx context.Context, key string) (*model.VerificationResult, error) {
				return cachedResult, nil
			},
			expectedSuccess:  true,
			expectedStatus:   model.StatusActive,
			expectedAPICalls: 0,
			expectedHistory:  0,
			expectedPuts:     0,
			expectedEvents:   nil,
			expectedFromHit:  true,
		},
		{
			name:             "cache_miss_active",
			ttl:              24 * time.Hour,
			apiResponse:      &model.VOB{ID: "vob-1", Status: model.StatusActive, Verified: true, Payer: &model.Payer{ID: "BCBS", Name: "Blue Cross"}},
			expectedSuccess:  true,
			expectedStatus:   model.StatusActive,
			expectedAPICalls: 1,
			expectedHistory:  1,
			expectedPuts:     1,
			expectedEvents:   []model.EventType{model.EventBeforeVerification, model.EventAfterVerification, model.EventVerificationSuccess},
		},
		{
			name:             "inactive_coverage_is_not_cached",
			ttl:              24 * time.Hour,
			apiResponse:      &model.VOB{ID: "vob-2", Status: model.StatusInactive, Error: "Coverage terminated"},
			expectedSuccess:  false,
			expectedStatus:   model.StatusInactive,
			expectedError:    "Coverage terminated",
			expectedAPICalls: 1,
			expectedHistory:  1,
			expectedPuts:     0,
			expectedEvents:   []model.EventType{model.EventBeforeVerification, model.EventAfterVerification, model.EventVerificationFailed},
		},
		{
			name:             "transport_failure",
			ttl:              24 * time.Hour,
			apiError:         &verifytx.Error{Code: model.ErrorCodeTransport, Message: "API request failed: dial tcp: i/o timeout", Err: context.DeadlineExceeded},
			expectedSuccess:  false,
			expectedStatus:   model.StatusError,
			expectedCode:     model.ErrorCodeTransport,
			expectedError:    "API request failed: dial tcp: i/o timeout",
			expectedAPICalls: 1,
			expectedHistory:  1,
			expectedPuts:     0,
			expectedEvents:   []model.EventType{model.EventBeforeVerification, model.EventVerificationFailed},
		},
		{
			name:             "auth_failure",
			ttl:              24 * time.Hour,
			apiError:         &verifytx.Error{Code: model.ErrorCodeAuth, Message: "Client authentication failed", StatusCode: 401},
			expectedSuccess:  false,
			expectedStatus:   model.StatusError,
			expectedCode:     model.ErrorCodeAuth,
			expectedError:    "Client authentication failed",
			expectedAPICalls: 1,
			expectedHistory:  1,
			expectedEvents:   []model.EventType{model.EventBeforeVerification, model.EventVerificationFailed},
		},
		{
			name:             "untyped_error",
			ttl:              24 * time.Hour,
			apiError:         errors.New("connection reset"),
			expectedSuccess:  false,
			expectedStatus:   model.StatusError,
			expectedCode:     model.ErrorCodeTransport,
			expectedError:    "connection reset",
			expectedAPICalls: 1,
			expectedHistory:  1,
			expectedEvents:   []model.EventType{model.EventBeforeVerification, model.EventVerificationFailed},
		},
		{
			name:             "caching_disabled",
			ttl:              0,
			apiResponse:      &model.VOB{ID: "vob-3", Status: model.StatusActive, Verified: true},
			expectedSuccess:  true,
			expectedStatus:   model.StatusActive,
			expectedAPICalls: 1,
			expectedHistory:  1,
			expectedPuts:     0,
			expectedEvents:   []model.EventType{model.EventBeforeVerification, model.EventAfterVerification, model.EventVerificationSuccess},
		},
		{
			name: "cache_error_falls_through",
			ttl:  time.Hour,
			cacheGet: func(ctx context.Context, key string) (*model.VerificationResult, error) {
				return nil, errors.New("cache unavailable")
			},
			apiResponse:      &model.VOB{ID: "vob-4", Status: model.StatusActive, Verified: true},
			expectedSuccess:  true,
			expectedStatus:   model.StatusActive,
			expectedAPICalls: 1,
			expectedHistory:  1,
			expectedPuts:     1,
			expectedEvents:   []model.EventType{model.EventBeforeVerification, model.EventAfterVerification, model.EventVerificationSuccess},
		},
		{
			name:             "persistence_and_publish_failures_are_swallowed",
			ttl:              time.Hour,
			apiResponse:      &model.VOB{ID: "vob-5", Status: model.StatusActive, Verified: true},
			appendError:      errors.New("database connection failed"),
			publishError:     errors.New("nats connection failed"),
			expectedSuccess:  true,
			expectedStatus:   model.StatusActive,
			expectedAPICalls: 1,
			expectedHistory:  1,
			expectedPuts:     1,
			expectedEvents:   []model.EventType{model.EventBeforeVerification, model.EventAfterVerification, model.EventVerificationSuccess},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockEligibilityClient{
				createAndVerifyFunc: func(ctx context.Context, req *model.VerificationRequest) (*model.VOB, error) {
					if req.PayerID != "BCBS" || req.FirstName != "Jane" {
						t.Errorf("unexpected request: %+v", req)
					}
					return tt.apiResponse, tt.apiError
				},
			}
			cache := &mockCacheRepository{getFunc: tt.cacheGet}
			repo := &mockVerificationRepository{
				appendFunc: func(ctx context.Context, req *model.VerificationRequest, result *model.VerificationResult, formID, entryID int64) (string, error) {
					if formID != 7 || entryID != 42 {
						t.Errorf("expected form 7 entry 42, but got form %d entry %d", formID, entryID)
					}
					return "history-id", tt.appendError
				},
			}
			events := &mockPublisher{err: tt.publishError}

			svc := newTestService(t, client, cache, repo, events, tt.ttl)

			result := svc.Verify(context.Background(), validFields(), 7, 42)

			if result == nil {
				t.Fatal("expected result, but got nil")
			}
			if result.Success != tt.expectedSuccess {
				t.Errorf("expected success %t, but got %t", tt.expectedSuccess, result.Success)
			}
			if result.Success && (!result.Verified || result.Status != model.StatusActive) {
				t.Errorf("successful result must be verified and active: %+v", result)
			}
			if result.Success && result.Error != "" {
				t.Errorf("successful result must not carry an error, got '%s'", result.Error)
			}
			if result.Status != tt.expectedStatus {
				t.Errorf("expected status '%s', but got '%s'", tt.expectedStatus, result.Status)
			}
			if result.ErrorCode != tt.expectedCode {
				t.Errorf("expected error code '%s', but got '%s'", tt.expectedCode, result.ErrorCode)
			}
			if result.Error != tt.expectedError {
				t.Errorf("expected error '%s', but got '%s'", tt.expectedError, result.Error)
			}
			if result.FromCache != tt.expectedFromHit {
				t.Errorf("expected from_cache %t, but got %t", tt.expectedFromHit, result.FromCache)
			}
			if client.calls != tt.expectedAPICalls {
				t.Errorf("expected %d api calls, but got %d", tt.expectedAPICalls, client.calls)
			}
			if len(repo.appended) != tt.expectedHistory {
				t.Errorf("expected %d history rows, but got %d", tt.expectedHistory, len(repo.appended))
			}
			if len(repo.appended) == 1 && repo.appended[0].Status != tt.expectedStatus {
				t.Errorf("expected history status '%s', but got '%s'", tt.expectedStatus, repo.appended[0].Status)
			}
			if cache.puts != tt.expectedPuts {
				t.Errorf("expected %d cache writes, but got %d", tt.expectedPuts, cache.puts)
			}
			if tt.ttl == 0 && cache.gets != 0 {
				t.Errorf("expected no cache reads when caching is disabled, but got %d", cache.gets)
			}
			if cache.puts > 0 && cache.lastTTL != tt.ttl {
				t.Errorf("expected ttl %v, but got %v", tt.ttl, cache.lastTTL)
			}
			if fmt.Sprint(events.events) != fmt.Sprint(tt.expectedEvents) {
				t.Errorf("expected events %v, but got %v", tt.expectedEvents, events.events)
			}
			if !result.FromCache && !result.VerifiedAt.Equal(testNow) {
				t.Errorf("expected verified_at %v, but got %v", testNow, result.VerifiedAt)
			}
		})
	}
}

func TestVerifyValidationFailure(t *testing.T) {
	client := &mockEligibilityClient{}
	cache := &mockCacheRepository{}
	repo := &mockVerificationRepository{}
	events := &mockPublisher{}
	svc := newTestService(t, client, cache, repo, events, time.Hour)

	result := svc.Verify(context.Background(), map[string]string{
		"date_of_birth": "1990-01-01",
		"payer_id":      "BCBS",
		"email":         "not-an-email",
	}, 7, 42)

	if result.Success || result.Status != model.StatusError {
		t.Errorf("expected error result, but got %+v", result)
	}
	if result.ErrorCode != model.ErrorCodeValidation {
		t.Errorf("expected code '%s', but got '%s'", model.ErrorCodeValidation, result.ErrorCode)
	}
	if result.Error != "Member ID is required, Invalid email address" {
		t.Errorf("unexpected error message '%s'", result.Error)
	}
	if len(result.Violations) != 2 {
		t.Errorf("expected 2 violations, but got %v", result.Violations)
	}
	if client.calls != 0 || cache.gets != 0 || len(repo.appended) != 0 || len(events.events) != 0 {
		t.Error("expected validation failure to short-circuit all i/o")
	}
}

func TestVerifyPublishesRedactedEvents(t *testing.T) {
	client := &mockEligibilityClient{
		createAndVerifyFunc: func(ctx context.Context, req *model.VerificationRequest) (*model.VOB, error) {
			return &model.VOB{
				ID:         "vob-1",
				Status:     model.StatusActive,
				Verified:   true,
				Subscriber: &model.Subscriber{FirstName: "Jane", LastName: "Doe", MemberID: "M123"},
			}, nil
		},
	}
	repo := &mockVerificationRepository{}
	events := &mockPublisher{}
	svc := newTestService(t, client, nil, repo, events, 0)

	fields := validFields()
	fields["email"] = "jane@example.com"
	fields["phone"] = "(555) 123-4567"
	result := svc.Verify(context.Background(), fields, 7, 42)
	if !result.Success {
		t.Fatalf("expected success, but got error '%s'", result.Error)
	}

	if len(events.published) != 3 {
		t.Fatalf("expected 3 events, but got %d", len(events.published))
	}
	for _, ev := range events.published {
		req := ev.Request
		if req.DateOfBirth != "" || req.FirstName != "" || req.LastName != "" || req.Email != "" || req.Phone != "" {
			t.Errorf("expected personal fields to be dropped, but got %+v", req)
		}
		if req.MemberID != "****" {
			t.Errorf("expected masked member id '****', but got '%s'", req.MemberID)
		}
		if req.PayerID != "BCBS" {
			t.Errorf("expected payer id 'BCBS', but got '%s'", req.PayerID)
		}
		if ev.Fingerprint == "" {
			t.Error("expected fingerprint on event")
		}
		if ev.Result != nil && ev.Result.Subscriber.FirstName != "" {
			t.Errorf("expected subscriber name to be dropped, but got '%s'", ev.Result.Subscriber.FirstName)
		}
	}

	if result.Subscriber.FirstName != "Jane" {
		t.Error("expected caller result to keep the subscriber")
	}
	if len(repo.appended) != 1 {
		t.Fatalf("expected 1 history row, but got %d", len(repo.appended))
	}
}

// Two concurrent calls for the same fingerprint may both miss the cache and
// both reach the API; the last cache write wins.
func TestConcurrentVerifySameFingerprint(t *testing.T) {
	var barrier sync.WaitGroup
	barrier.Add(2)

	client := &mockEligibilityClient{
		createAndVerifyFunc: func(ctx context.Context, req *model.VerificationRequest) (*model.VOB, error) {
			barrier.Done()
			barrier.Wait()
			return &model.VOB{ID: "vob-1", Status: model.StatusActive, Verified: true}, nil
		},
	}
	cache := repository.NewMemoryCacheRepository()
	repo := &mockVerificationRepository{}
	svc := newTestService(t, client, cache, repo, &mockPublisher{}, time.Hour)
	svc.now = time.Now

	var wg sync.WaitGroup
	results := make([]*model.VerificationResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Verify(context.Background(), validFields(), 7, int64(i+1))
		}(i)
	}
	wg.Wait()

	if calls := atomic.LoadInt32(&client.calls); calls != 2 {
		t.Errorf("expected both calls to reach the api, but got %d", calls)
	}
	for i, r := range results {
		if !r.Success || r.FromCache {
			t.Errorf("result %d: expected fresh success, got %+v", i, r)
		}
	}
	if len(repo.appended) != 2 {
		t.Errorf("expected 2 history rows, but got %d", len(repo.appended))
	}

	third := svc.Verify(context.Background(), validFields(), 7, 3)
	if !third.FromCache {
		t.Error("expected follow-up call to be served from cache")
	}
	if calls := atomic.LoadInt32(&client.calls); calls != 2 {
		t.Errorf("expected no further api calls, but got %d", calls)
	}
}

func TestGetEntryVerificationHistory(t *testing.T) {
	tests := []struct {
		name          string
		entryID       int64
		repoError     error
		expectedError string
		expectedCount int
	}{
		{name: "successful_get", entryID: 42, expectedCount: 2},
		{name: "invalid_entry_id", entryID: 0, expectedError: "entry id must be positive, got 0"},
		{name: "repository_error", entryID: 42, repoError: errors.New("database connection failed"), expectedError: "failed to get verification history"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockVerificationRepository{
				queryByEntryFunc: func(ctx context.Context, entryID int64) ([]*model.HistoryRecord, error) {
					if tt.repoError != nil {
						return nil, tt.repoError
					}
					return []*model.HistoryRecord{{ID: "b", EntryID: entryID}, {ID: "a", EntryID: entryID}}, nil
				},
			}
			svc := newTestService(t, &mockEligibilityClient{}, nil, repo, &mockPublisher{}, 0)

			records, err := svc.GetEntryVerificationHistory(context.Background(), tt.entryID)

			if tt.expectedError != "" {
				if err == nil {
					t.Errorf("expected error containing '%s', but got nil", tt.expectedError)
					return
				}
				if !containsError(err.Error(), tt.expectedError) {
					t.Errorf("expected error containing '%s', but got '%s'", tt.expectedError, err.Error())
				}
				return
			}

			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if len(records) != tt.expectedCount {
				t.Errorf("expected %d records, but got %d", tt.expectedCount, len(records))
			}
		})
	}
}

func TestGetVerificationStats(t *testing.T) {
	formID := int64(7)
	var gotPeriod model.Period
	var gotForm *int64
	repo := &mockVerificationRepository{
		statsFunc: func(ctx context.Context, formID *int64, period model.Period) (*model.Stats, error) {
			gotForm, gotPeriod = formID, period
			return &model.Stats{Total: 4, Active: 3, Errors: 1, SuccessRate: 75}, nil
		},
	}
	svc := newTestService(t, &mockEligibilityClient{}, nil, repo, &mockPublisher{}, 0)

	stats, err := svc.GetVerificationStats(context.Background(), &formID, model.PeriodMonth)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPeriod != model.PeriodMonth || gotForm == nil || *gotForm != 7 {
		t.Errorf("unexpected repository arguments: %v %v", gotForm, gotPeriod)
	}
	if stats.SuccessRate != 75 {
		t.Errorf("expected success rate 75, but got %v", stats.SuccessRate)
	}

	repo.statsFunc = func(ctx context.Context, formID *int64, period model.Period) (*model.Stats, error) {
		return nil, errors.New("database connection failed")
	}
	if _, err := svc.GetVerificationStats(context.Background(), nil, model.PeriodAll); err == nil || !containsError(err.Error(), "failed to get verification stats") {
		t.Errorf("expected stats error, but got %v", err)
	}
}

func TestFormatForDisplayDelegates(t *testing.T) {
	svc := newTestService(t, &mockEligibilityClient{}, nil, nil, &mockPublisher{}, 0)

	d := svc.FormatForDisplay(&model.VerificationResult{Success: true, Verified: true, Status: model.StatusActive})
	if d.Message != "Insurance verified successfully" || d.HTML == "" || d.Text == "" {
		t.Errorf("unexpected display: %+v", d)
	}
}

func containsError(got, want string) bool {
	return len(got) > 0 && len(want) > 0 && (got == want ||
		(len(got) >= len(want) && got[:len(want)] == want))
}
