package sms

import (
	"context"
	"fmt"

	"github.com/hrita/customer-portal/pkg/validator"
	"github.com/sirupsen/logrus"
)

// SMSGateway defines the interface for sending SMS messages
type SMSGateway interface {
	// SendOTP sends an OTP code via SMS
	// Returns a transaction ID and an error if the send failed
	SendOTP(ctx context.Context, phone, otpCode string) (int64, error)

	// GetName returns the name of the SMS gateway implementation
	GetName() string
}

// Config holds the settings shared by the gateway implementations
type Config struct {
	APIURL        string
	APIKey        string
	Username      string
	Password      string
	SenderID      string
	ExpiryMinutes int
}

// OTPMessage builds the text sent with a login code
func OTPMessage(otpCode string, expiryMinutes int) string {
	if expiryMinutes <= 0 {
		return fmt.Sprintf("%s is your Hrita Interiors login code. Do not share it with anyone.", otpCode)
	}
	return fmt.Sprintf("%s is your Hrita Interiors login code. Valid for %d minutes. Do not share it with anyone.",
		otpCode, expiryMinutes)
}

// FormatRecipient converts an Indian mobile number to the 12-digit
// 91XXXXXXXXXX form the providers expect
func FormatRecipient(phone string) (string, error) {
	e164, err := validator.NewPhoneValidator().ToE164(phone)
	if err != nil {
		return "", err
	}
	return e164[1:], nil
}

// NewGateway picks the gateway implementation for a mode and method
func NewGateway(mode, method string, cfg Config, logger *logrus.Logger) SMSGateway {
	if mode != "production" {
		return NewLogGateway(logger)
	}
	if method == "url" {
		return NewURLGateway(cfg, logger)
	}
	return NewAPIGateway(cfg, logger)
}
