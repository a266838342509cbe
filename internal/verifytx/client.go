package verifytx

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"verifytx_gateway/internal/model"
)

const (
	ProductionURL = "https://api.verifytx.com"
	SandboxURL    = "https://sandbox.api.verifytx.com"

	verifyTimeout     = 60 * time.Second
	requestTimeout    = 30 * time.Second
	connectionTimeout = 15 * time.Second

	defaultPayerLimit  = 100
	clientTypeProspect = "prospect"
)

// BaseURL returns the API host for the given mode.
func BaseURL(testMode bool) string {
	if testMode {
		return SandboxURL
	}
	return ProductionURL
}

type Options struct {
	ClientID     string
	ClientSecret string
	TestMode     bool
	// BaseURL overrides the production/sandbox host.
	BaseURL   string
	Transport http.RoundTripper
}

// Client talks to the VerifyTX eligibility API.
type Client struct {
	http   *resty.Client
	tokens *TokenManager
	logger *zap.Logger
	now    func() time.Time
}

func NewClient(opts Options, store TokenStore, logger *zap.Logger) *Client {
	base := opts.BaseURL
	if base == "" {
		base = BaseURL(opts.TestMode)
	}
	env := environmentProduction
	if opts.TestMode {
		env = environmentSandbox
	}

	rc := resty.New().
		SetBaseURL(base).
		SetHeader("Accept", "application/json")
	if opts.Transport != nil {
		rc.SetTransport(opts.Transport)
	}

	return &Client{
		http:   rc,
		tokens: NewTokenManager(rc, opts.ClientID, opts.ClientSecret, env, store, logger),
		logger: logger,
		now:    time.Now,
	}
}

// CreateAndVerify creates a VOB for the request and verifies it in one call.
func (c *Client) CreateAndVerify(ctx context.Context, req *model.VerificationRequest) (*model.VOB, error) {
	resp, err := c.authorized(ctx, verifyTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").
			SetBody(c.verifyBody(req)).
			Post("/vobs/verify")
	})
	if err != nil {
		c.logger.Error("vob verification request failed", zap.Error(err))
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		apiErr := responseError(model.ErrorCodeVerification, resp.StatusCode(), resp.Body())
		c.logger.Error("vob verification error", zap.Int("status", resp.StatusCode()), zap.String("error", apiErr.Message))
		return nil, apiErr
	}

	vob, err := parseVOB(resp.Body())
	if err != nil {
		return nil, &Error{Code: model.ErrorCodeVerification, Message: "Invalid response from verification service", StatusCode: resp.StatusCode(), Body: resp.Body(), Err: err}
	}

	c.logger.Debug("vob verification successful", zap.String("vob_id", vob.ID), zap.String("status", vob.Status))
	return vob, nil
}

// CreateVOB creates a VOB without verifying it.
func (c *Client) CreateVOB(ctx context.Context, req *model.VerificationRequest) (*model.VOB, error) {
	resp, err := c.authorized(ctx, requestTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").
			SetBody(prepareVOBData(req)).
			Post("/vobs")
	})
	if err != nil {
		c.logger.Error("vob creation request failed", zap.Error(err))
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		apiErr := responseError(model.ErrorCodeCreation, resp.StatusCode(), resp.Body())
		c.logger.Error("vob creation error", zap.String("error", apiErr.Message))
		return nil, apiErr
	}

	return c.decode(model.ErrorCodeCreation, resp)
}

// ReverifyVOB re-runs verification for an existing VOB.
func (c *Client) ReverifyVOB(ctx context.Context, vobID string) (*model.VOB, error) {
	resp, err := c.authorized(ctx, verifyTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{"_id": vobID}).
			Post("/vobs/verify")
	})
	if err != nil {
		c.logger.Error("vob reverification request failed", zap.Error(err), zap.String("vob_id", vobID))
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK {
		apiErr := responseError(model.ErrorCodeReverification, resp.StatusCode(), resp.Body())
		c.logger.Error("vob reverification error", zap.String("vob_id", vobID), zap.String("error", apiErr.Message))
		return nil, apiErr
	}

	return c.decode(model.ErrorCodeReverification, resp)
}

func (c *Client) GetVOB(ctx context.Context, vobID string) (*model.VOB, error) {
	resp, err := c.authorized(ctx, requestTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", vobID).Get("/vobs/{id}")
	})
	if err != nil {
		c.logger.Error("vob retrieval request failed", zap.Error(err), zap.String("vob_id", vobID))
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK {
		apiErr := responseError(model.ErrorCodeRetrieval, resp.StatusCode(), resp.Body())
		c.logger.Error("vob retrieval error", zap.String("vob_id", vobID), zap.String("error", apiErr.Message))
		return nil, apiErr
	}

	return c.decode(model.ErrorCodeRetrieval, resp)
}

// ListPayers returns the raw payer listing. A limit <= 0 uses the default of 100.
func (c *Client) ListPayers(ctx context.Context, search string, limit int) (json.RawMessage, error) {
	if limit <= 0 {
		limit = defaultPayerLimit
	}

	resp, err := c.authorized(ctx, requestTimeout, func(r *resty.Request) (*resty.Response, error) {
		r.SetQueryParam("limit", strconv.Itoa(limit))
		if search != "" {
			r.SetQueryParam("q", search)
		}
		return r.Get("/payers")
	})
	if err != nil {
		c.logger.Error("payers list request failed", zap.Error(err))
		return nil, err
	}

	if resp.StatusCode() != http.StatusOK {
		apiErr := responseError(model.ErrorCodePayers, resp.StatusCode(), resp.Body())
		c.logger.Error("payers list error", zap.String("error", apiErr.Message))
		return nil, apiErr
	}

	if !json.Valid(resp.Body()) {
		return nil, &Error{Code: model.ErrorCodePayers, Message: "Invalid response from payers endpoint", StatusCode: resp.StatusCode(), Body: resp.Body()}
	}
	return json.RawMessage(resp.Body()), nil
}

// TestConnection checks the credentials against /users/me.
func (c *Client) TestConnection(ctx context.Context) error {
	resp, err := c.authorized(ctx, connectionTimeout, func(r *resty.Request) (*resty.Response, error) {
		return r.Get("/users/me")
	})
	if err != nil {
		return err
	}

	if resp.StatusCode() != http.StatusOK {
		apiErr := responseError(model.ErrorCodeConnection, resp.StatusCode(), resp.Body())
		c.logger.Warn("api connection test failed", zap.Int("status", resp.StatusCode()), zap.String("error", apiErr.Message))
		return apiErr
	}
	return nil
}

// authorized obtains a token and runs send with a bearer-authenticated request bounded by timeout.
func (c *Client) authorized(ctx context.Context, timeout time.Duration, send func(*resty.Request) (*resty.Response, error)) (*resty.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := send(c.http.R().SetContext(ctx).SetAuthToken(token))
	if err != nil {
		return nil, transportError("API", err)
	}
	return resp, nil
}

func (c *Client) decode(code string, resp *resty.Response) (*model.VOB, error) {
	vob, err := parseVOB(resp.Body())
	if err != nil {
		return nil, &Error{Code: code, Message: "Invalid response from verification service", StatusCode: resp.StatusCode(), Body: resp.Body(), Err: err}
	}
	return vob, nil
}

func (c *Client) verifyBody(req *model.VerificationRequest) map[string]string {
	body := map[string]string{
		"client_type":         clientTypeProspect,
		"subscriber_relation": MapRelationship(req.Relationship),
		"payer_id":            req.PayerID,
		"payer_name":          req.PayerName,
		"member_id":           req.MemberID,
		"date_of_birth":       FormatDate(req.DateOfBirth),
		"as_of_date":          c.now().Format("2006-01-02"),
	}

	optional := map[string]string{
		"first_name":      req.FirstName,
		"last_name":       req.LastName,
		"gender":          req.Gender,
		"phone":           FormatPhone(req.Phone),
		"email":           req.Email,
		"group_id":        req.GroupNumber,
		"facility":        req.FacilityID,
		"insurance_phone": FormatPhone(req.InsurancePhone),
	}
	for k, v := range optional {
		if v != "" && v != "0" {
			body[k] = v
		}
	}
	return body
}

func prepareVOBData(req *model.VerificationRequest) map[string]string {
	return map[string]string{
		"client_type":         clientTypeProspect,
		"subscriber_relation": MapRelationship(req.Relationship),
		"payer_id":            req.PayerID,
		"payer_name":          req.PayerName,
		"member_id":           req.MemberID,
		"date_of_birth":       FormatDate(req.DateOfBirth),
		"first_name":          req.FirstName,
		"last_name":           req.LastName,
		"gender":              req.Gender,
		"phone":               FormatPhone(req.Phone),
		"email":               req.Email,
		"group_id":            req.GroupNumber,
	}
}
