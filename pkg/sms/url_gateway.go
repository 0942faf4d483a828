package sms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// URLGateway sends SMS with a single GET request authenticated by an API key
type URLGateway struct {
	baseURL       string
	apiKey        string
	senderID      string
	expiryMinutes int
	client        *http.Client
	logger        *logrus.Logger
}

// NewURLGateway creates a new URL gateway instance
func NewURLGateway(cfg Config, logger *logrus.Logger) *URLGateway {
	return &URLGateway{
		baseURL:       cfg.APIURL,
		apiKey:        cfg.APIKey,
		senderID:      cfg.SenderID,
		expiryMinutes: cfg.ExpiryMinutes,
		logger:        logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SendOTP sends an OTP via the URL-based SMS API.
// The provider answers "1" on success and an error id otherwise.
func (g *URLGateway) SendOTP(ctx context.Context, phone, otpCode string) (int64, error) {
	recipient, err := FormatRecipient(phone)
	if err != nil {
		return 0, fmt.Errorf("invalid phone number: %w", err)
	}

	params := url.Values{}
	params.Add("apikey", g.apiKey)
	params.Add("numbers", recipient)
	params.Add("sender", g.senderID)
	params.Add("message", OTPMessage(otpCode, g.expiryMinutes))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create SMS request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read SMS response: %w", err)
	}

	responseStr := strings.TrimSpace(string(body))
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("SMS API returned status %d: %s", resp.StatusCode, responseStr)
	}

	if responseStr != "1" {
		g.logger.WithFields(logrus.Fields{
			"gateway":  g.GetName(),
			"err_code": responseStr,
		}).Warn("SMS provider rejected message")
		return 0, fmt.Errorf("SMS sending failed with error code: %s", responseStr)
	}

	transactionID := time.Now().Unix()
	g.logger.WithFields(logrus.Fields{
		"gateway":        g.GetName(),
		"transaction_id": transactionID,
	}).Info("OTP SMS sent")

	return transactionID, nil
}

// GetName returns the name of this SMS gateway
func (g *URLGateway) GetName() string {
	return "SMS URL Gateway"
}
