package sms

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogGateway writes OTPs to the log instead of sending them. Used in dev mode.
type LogGateway struct {
	logger *logrus.Logger

	mu   sync.Mutex
	sent map[string]string
}

// NewLogGateway creates a gateway that only logs
func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger, sent: make(map[string]string)}
}

// SendOTP logs the code and remembers it per phone
func (g *LogGateway) SendOTP(_ context.Context, phone, otpCode string) (int64, error) {
	g.mu.Lock()
	g.sent[phone] = otpCode
	g.mu.Unlock()

	g.logger.WithFields(logrus.Fields{
		"gateway": g.GetName(),
		"phone":   phone,
		"otp":     otpCode,
	}).Info("OTP not sent in dev mode")

	return time.Now().UnixMicro(), nil
}

// LastCode returns the most recent code sent to phone
func (g *LogGateway) LastCode(phone string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	code, ok := g.sent[phone]
	return code, ok
}

// GetName returns the name of this SMS gateway
func (g *LogGateway) GetName() string {
	return "Dev Log Gateway"
}
