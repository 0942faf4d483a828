package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// APIGateway sends SMS through a provider's JSON API using a login token
type APIGateway struct {
	apiURL        string
	username      string
	password      string
	senderID      string
	expiryMinutes int
	client        *http.Client
	logger        *logrus.Logger

	// Token management
	token       string
	tokenMutex  sync.RWMutex
	tokenExpiry time.Time
}

// NewAPIGateway creates a new token-authenticated SMS gateway client
func NewAPIGateway(cfg Config, logger *logrus.Logger) *APIGateway {
	return &APIGateway{
		apiURL:        cfg.APIURL,
		username:      cfg.Username,
		password:      cfg.Password,
		senderID:      cfg.SenderID,
		expiryMinutes: cfg.ExpiryMinutes,
		logger:        logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// LoginRequest represents the login request structure
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents the login response structure
type LoginResponse struct {
	Status     string `json:"status"`
	Comment    string `json:"comment"`
	Token      string `json:"token"`
	Expiration int    `json:"expiration"` // seconds
	ErrCode    string `json:"errCode"`
}

// SMSRecipient represents a single SMS recipient
type SMSRecipient struct {
	Mobile string `json:"mobile"`
}

// SendSMSRequest represents the SMS sending request structure
type SendSMSRequest struct {
	MSISDN        []SMSRecipient `json:"msisdn"`
	Message       string         `json:"message"`
	SourceAddress string         `json:"sourceAddress,omitempty"`
	TransactionID int64          `json:"transaction_id"`
}

// SendSMSResponse represents the SMS sending response structure
type SendSMSResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
	Data    struct {
		CampaignID   int     `json:"campaignId"`
		CampaignCost float64 `json:"campaignCost"`
	} `json:"data"`
	ErrCode string `json:"errCode"`
}

// GetAccessToken logs in and retrieves an access token
func (g *APIGateway) GetAccessToken(ctx context.Context) error {
	jsonData, err := json.Marshal(LoginRequest{Username: g.username, Password: g.password})
	if err != nil {
		return fmt.Errorf("failed to marshal login request: %w", err)
	}

	var loginResp LoginResponse
	if err := g.post(ctx, "/login", jsonData, false, &loginResp); err != nil {
		return fmt.Errorf("failed to send login request: %w", err)
	}

	if loginResp.Status != "success" {
		return fmt.Errorf("login failed: %s (error code: %s)", loginResp.Comment, loginResp.ErrCode)
	}

	g.tokenMutex.Lock()
	g.token = loginResp.Token
	g.tokenExpiry = time.Now().Add(time.Duration(loginResp.Expiration) * time.Second)
	g.tokenMutex.Unlock()

	g.logger.WithField("gateway", g.GetName()).Debug("SMS gateway token refreshed")
	return nil
}

// isTokenValid checks if the current token is still valid
func (g *APIGateway) isTokenValid() bool {
	g.tokenMutex.RLock()
	defer g.tokenMutex.RUnlock()

	if g.token == "" {
		return false
	}

	// Consider token invalid 5 minutes before actual expiry
	return time.Now().Before(g.tokenExpiry.Add(-5 * time.Minute))
}

func (g *APIGateway) ensureValidToken(ctx context.Context) error {
	if g.isTokenValid() {
		return nil
	}
	return g.GetAccessToken(ctx)
}

// SendOTP sends an OTP to a single phone number
func (g *APIGateway) SendOTP(ctx context.Context, phone, otpCode string) (int64, error) {
	if err := g.ensureValidToken(ctx); err != nil {
		return 0, fmt.Errorf("failed to get access token: %w", err)
	}

	recipient, err := FormatRecipient(phone)
	if err != nil {
		return 0, fmt.Errorf("failed to format phone number: %w", err)
	}

	transactionID := time.Now().UnixMicro()
	jsonData, err := json.Marshal(SendSMSRequest{
		MSISDN:        []SMSRecipient{{Mobile: recipient}},
		Message:       OTPMessage(otpCode, g.expiryMinutes),
		SourceAddress: g.senderID,
		TransactionID: transactionID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	var smsResp SendSMSResponse
	if err := g.post(ctx, "/sms", jsonData, true, &smsResp); err != nil {
		return 0, fmt.Errorf("failed to send SMS request: %w", err)
	}

	if smsResp.Status != "success" {
		g.logger.WithFields(logrus.Fields{
			"gateway":  g.GetName(),
			"comment":  smsResp.Comment,
			"err_code": smsResp.ErrCode,
		}).Warn("SMS provider rejected message")
		return 0, fmt.Errorf("SMS sending failed: %s (error code: %s)", smsResp.Comment, smsResp.ErrCode)
	}

	g.logger.WithFields(logrus.Fields{
		"gateway":        g.GetName(),
		"transaction_id": transactionID,
		"campaign_id":    smsResp.Data.CampaignID,
	}).Info("OTP SMS sent")

	return transactionID, nil
}

func (g *APIGateway) post(ctx context.Context, path string, payload []byte, authorized bool, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if authorized {
		g.tokenMutex.RLock()
		req.Header.Set("Authorization", "Bearer "+g.token)
		g.tokenMutex.RUnlock()
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}

	return nil
}

// GetName returns the name of this SMS gateway
func (g *APIGateway) GetName() string {
	return "SMS API Gateway"
}
