package verifytx

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"verifytx_gateway/internal/model"
)

const (
	tokenTimeout          = 30 * time.Second
	defaultTokenLifetime  = 3600 * time.Second
	tokenFailedMessage    = "Failed to obtain access token"
	tokenKeyPrefix        = "verifytx_token_"
	environmentProduction = "production"
	environmentSandbox    = "sandbox"
)

// TokenStore shares access tokens between clients with the same identity.
type TokenStore interface {
	Load(ctx context.Context, key string) (*model.AccessToken, error)
	Save(ctx context.Context, key string, token *model.AccessToken) error
}

// MemoryTokenStore is a process-wide TokenStore.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*model.AccessToken
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]*model.AccessToken)}
}

func (s *MemoryTokenStore) Load(_ context.Context, key string) (*model.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[key]
	if !ok {
		return nil, nil
	}
	cp := *tok
	return &cp, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, key string, token *model.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *token
	s.tokens[key] = &cp
	return nil
}

// TokenCacheKey identifies the token of one client id in one environment.
func TokenCacheKey(clientID, environment string) string {
	sum := md5.Sum([]byte(clientID))
	return tokenKeyPrefix + environment + "_" + hex.EncodeToString(sum[:])
}

type tokenResponse struct {
	AccessToken      string   `json:"access_token"`
	ExpiresIn        *float64 `json:"expires_in"`
	ErrorDescription string   `json:"error_description"`
}

// TokenManager acquires client-credentials tokens and reuses them until they expire.
type TokenManager struct {
	http         *resty.Client
	clientID     string
	clientSecret string
	key          string
	store        TokenStore
	logger       *zap.Logger
	now          func() time.Time

	mu      sync.Mutex
	current *model.AccessToken
}

func NewTokenManager(rc *resty.Client, clientID, clientSecret, environment string, store TokenStore, logger *zap.Logger) *TokenManager {
	if store == nil {
		store = NewMemoryTokenStore()
	}
	return &TokenManager{
		http:         rc,
		clientID:     clientID,
		clientSecret: clientSecret,
		key:          TokenCacheKey(clientID, environment),
		store:        store,
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a valid bearer token, fetching a new one when the cached token has expired.
// Failures are not retried.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.current.Valid(now) {
		return m.current.Token, nil
	}

	shared, err := m.store.Load(ctx, m.key)
	if err != nil {
		m.logger.Warn("failed to load cached token", zap.Error(err))
	} else if shared.Valid(now) {
		m.current = shared
		return shared.Token, nil
	}

	tok, err := m.fetch(ctx)
	if err != nil {
		return "", err
	}

	m.current = tok
	if err := m.store.Save(ctx, m.key, tok); err != nil {
		m.logger.Warn("failed to cache token", zap.Error(err))
	}
	return tok.Token, nil
}

func (m *TokenManager) fetch(ctx context.Context) (*model.AccessToken, error) {
	ctx, cancel := context.WithTimeout(ctx, tokenTimeout)
	defer cancel()

	resp, err := m.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     m.clientID,
			"client_secret": m.clientSecret,
		}).
		Post("/oauth/token")
	if err != nil {
		m.logger.Error("oauth token request failed", zap.Error(err))
		return nil, &Error{
			Code:    model.ErrorCodeAuth,
			Message: fmt.Sprintf("OAuth token request failed: %v", err),
			Err:     err,
		}
	}

	var body tokenResponse
	_ = json.Unmarshal(resp.Body(), &body)

	if resp.StatusCode() != http.StatusOK || body.AccessToken == "" {
		msg := body.ErrorDescription
		if msg == "" {
			msg = tokenFailedMessage
		}
		m.logger.Error("oauth token error", zap.Int("status", resp.StatusCode()), zap.String("error", msg))
		return nil, &Error{
			Code:       model.ErrorCodeAuth,
			Message:    msg,
			StatusCode: resp.StatusCode(),
			Body:       resp.Body(),
		}
	}

	lifetime := defaultTokenLifetime
	if body.ExpiresIn != nil {
		lifetime = time.Duration(*body.ExpiresIn * float64(time.Second))
	}

	m.logger.Debug("obtained access token", zap.Duration("expires_in", lifetime))
	return &model.AccessToken{
		Token:     body.AccessToken,
		ExpiresAt: m.now().Add(lifetime),
	}, nil
}
