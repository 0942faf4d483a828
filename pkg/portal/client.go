// Package portal is an HTTP client for the customer portal API.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/sirupsen/logrus"
)

// APIError is a failure reported by the portal. Not-found and validation
// failures share this one kind; StatusCode is informational.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("portal: %s (%s, HTTP %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("portal: %s (HTTP %d)", e.Message, e.StatusCode)
}

// Client talks to one portal deployment
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger

	tokenMutex  sync.RWMutex
	accessToken string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for request tracing
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithAccessToken sets the bearer token sent with portal requests
func WithAccessToken(token string) Option {
	return func(c *Client) { c.accessToken = token }
}

// NewClient creates a client for the API rooted at baseURL, e.g. http://localhost:8080
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetAccessToken replaces the bearer token
func (c *Client) SetAccessToken(token string) {
	c.tokenMutex.Lock()
	c.accessToken = token
	c.tokenMutex.Unlock()
}

func (c *Client) token() string {
	c.tokenMutex.RLock()
	defer c.tokenMutex.RUnlock()
	return c.accessToken
}

// OTPChallenge is the answer to SendOTP
type OTPChallenge struct {
	Message   string    `json:"message"`
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expires_at"`
	OTP       string    `json:"otp,omitempty"` // only when the server runs in dev mode
}

// Tokens is a signed-in identity
type Tokens struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in_seconds"`
	Role         workflow.Role `json:"role"`
	User         *models.User  `json:"user,omitempty"`
}

// SendOTP asks the server to text a login code to phone
func (c *Client) SendOTP(ctx context.Context, phone string) (*OTPChallenge, error) {
	var out OTPChallenge
	body := map[string]string{"phone_number": phone}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/send-otp", body, false, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyOTP exchanges a login code for tokens and starts using the access token
func (c *Client) VerifyOTP(ctx context.Context, phone, code string) (*Tokens, error) {
	var out Tokens
	body := map[string]string{"phone_number": phone, "otp": code}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/verify-otp", body, false, &out); err != nil {
		return nil, err
	}
	c.SetAccessToken(out.AccessToken)
	return &out, nil
}

// RefreshTokens rotates a refresh token
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*Tokens, error) {
	var out Tokens
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/auth/refresh-token", body, false, &out); err != nil {
		return nil, err
	}
	c.SetAccessToken(out.AccessToken)
	return &out, nil
}

// Logout revokes refreshToken, or every token of the user when all is set
func (c *Client) Logout(ctx context.Context, refreshToken string, all bool) error {
	body := map[string]interface{}{"refresh_token": refreshToken, "logout_all": all}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/auth/logout", body, true, nil)
}

// FetchPortalData loads the dashboard. An empty phone returns the caller's own
// view; admins pass a client phone to open that client.
func (c *Client) FetchPortalData(ctx context.Context, phone string) (*models.PortalData, error) {
	query := url.Values{"action": {string(workflow.ActionGetData)}}
	if phone != "" {
		query.Set("phone", phone)
	}

	var data models.PortalData
	if err := c.envelope(ctx, http.MethodGet, "/api/v1/portal/exec?"+query.Encode(), nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// FetchTimeline loads only the resolved timeline of a client, optionally
// rendered for another role
func (c *Client) FetchTimeline(ctx context.Context, phone string, as workflow.Role) (*models.TimelineResponse, error) {
	query := url.Values{}
	if phone != "" {
		query.Set("phone", phone)
	}
	if as != "" {
		query.Set("as", string(as))
	}

	var timeline models.TimelineResponse
	if err := c.envelope(ctx, http.MethodGet, "/api/v1/portal/timeline?"+query.Encode(), nil, &timeline); err != nil {
		return nil, err
	}
	return &timeline, nil
}

// SubmitAction runs a portal action. payload is marshalled as the action payload.
func (c *Client) SubmitAction(ctx context.Context, action workflow.Action, phone string, payload interface{}) (*models.ActionResult, error) {
	req := models.ActionRequest{Action: string(action), Phone: phone}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", action, err)
		}
		req.Payload = raw
	}

	var result models.ActionResult
	if err := c.envelope(ctx, http.MethodPost, "/api/v1/portal/exec", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadEstimate streams the estimate PDF into w
func (c *Client) DownloadEstimate(ctx context.Context, id string, w io.Writer) error {
	resp, err := c.send(ctx, http.MethodGet, "/api/v1/portal/estimates/"+url.PathEscape(id)+"/pdf", nil, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeFailure(resp)
	}

	_, err = io.Copy(w, resp.Body)
	return err
}

// envelope performs an authenticated portal request and unwraps {status, message, data}
func (c *Client) envelope(ctx context.Context, method, path string, body, out interface{}) error {
	resp, err := c.send(ctx, method, path, body, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "malformed response: " + err.Error()}
	}

	if env.Status != models.EnvelopeSuccess {
		message := env.Message
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode portal data: %w", err)
	}
	return nil
}

// doJSON performs a request against the auth routes, which answer plain JSON
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}, authorized bool, out interface{}) error {
	resp, err := c.send(ctx, method, path, body, authorized)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeFailure(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}, authorized bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorized {
		if token := c.token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal request failed: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"method":  method,
		"path":    path,
		"status":  resp.StatusCode,
		"latency": time.Since(start).String(),
	}).Debug("Portal request")

	return resp, nil
}

// decodeFailure turns any non-success answer into an APIError
func decodeFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Error   string `json:"error"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Message
		apiErr.Code = body.Code
		if apiErr.Message == "" {
			apiErr.Message = body.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
