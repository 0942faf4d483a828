package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hrita/customer-portal/internal/config"
	"github.com/hrita/customer-portal/internal/database"
	"github.com/hrita/customer-portal/internal/middleware"
	"github.com/hrita/customer-portal/internal/services"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/hrita/customer-portal/pkg/jwt"
	"github.com/hrita/customer-portal/pkg/sms"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	clientPhone    = "9876543210"
	adminPhone     = "9000000001"
	architectPhone = "9988776655"
)

var userColumns = []string{"id", "phone", "name", "email", "city", "role", "stage", "status", "last_login_at", "created_at", "updated_at"}

func newMockDB(t *testing.T) (database.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return &database.PostgresDB{DB: sqlx.NewDb(mockDB, "sqlmock")}, mock
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testConfig() *config.Config {
	return &config.Config{
		SMS: config.SMSConfig{Mode: "dev"},
		OTP: config.OTPConfig{Length: 6, ExpiryMinutes: 5, MaxAttempts: 3, RateLimit: 3, RateWindowMinutes: 10},
		Portal: config.PortalConfig{
			RecentsLimit:     10,
			ClientListLimit:  50,
			DefaultCurrency:  "INR",
			ArchitectEnabled: true,
		},
	}
}

func testJWTService() *jwt.Service {
	return jwt.NewService("test-access-secret-key-123456789", "test-refresh-secret-key-123456789", "hrita-portal", time.Hour, 7*24*time.Hour)
}

func setupAuthHandler(t *testing.T) (*AuthHandler, *jwt.Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	cfg := testConfig()
	logger := quietLogger()
	jwtService := testJWTService()

	handler := NewAuthHandler(
		jwtService,
		services.NewOTPService(db, cfg.OTP, bcrypt.MinCost),
		services.NewRateLimitService(db, services.RateLimitConfigFrom(cfg.OTP)),
		services.NewAuditService(db),
		database.NewUserRepository(db),
		database.NewRefreshTokenRepository(db),
		sms.NewLogGateway(logger),
		cfg,
		logger,
	)
	return handler, jwtService, mock
}

func userRow(id uuid.UUID, phone string, role workflow.Role, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userColumns).AddRow(
		id.String(), phone, "Asha Rao", nil, "Pune", string(role), string(workflow.FirstStage()), status, nil, now, now,
	)
}

// perform runs one request through a router; a non-nil userCtx simulates AuthMiddleware
func perform(handler gin.HandlerFunc, method, target string, body interface{}, userCtx *middleware.UserContext) *httptest.ResponseRecorder {
	return performRoute(handler, method, "/*path", target, body, userCtx)
}

func performRoute(handler gin.HandlerFunc, method, route, target string, body interface{}, userCtx *middleware.UserContext) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Handle(method, route, func(c *gin.Context) {
		if userCtx != nil {
			c.Set(middleware.UserContextKey, *userCtx)
		}
		handler(c)
	})

	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X)")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func expectRateLimitCount(mock sqlmock.Sqlmock, identifier string, count int) {
	mock.ExpectQuery(`FROM otp_rate_limits`).
		WithArgs(identifier, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count", "last"}).AddRow(count, time.Now()))
}

func TestSendOTP_DevModeReturnsCode(t *testing.T) {
	handler, _, mock := setupAuthHandler(t)

	expectRateLimitCount(mock, clientPhone, 0)
	expectRateLimitCount(mock, "192.0.2.1", 0)
	mock.ExpectExec(`UPDATE otp_verifications SET verified = true`).
		WithArgs(clientPhone).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO otp_verifications`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO otp_rate_limits`).
		WithArgs(clientPhone, "phone").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO otp_rate_limits`).
		WithArgs("192.0.2.1", "ip").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := perform(handler.SendOTP, http.MethodPost, "/api/v1/auth/send-otp", SendOTPRequest{Phone: "+91 98765 43210"}, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response SendOTPResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, clientPhone, response.Phone)
	assert.Len(t, response.OTP, 6)
	assert.Equal(t, "development", response.Mode)
	assert.Equal(t, 300, response.ExpiresIn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendOTP_InvalidPhone(t *testing.T) {
	handler, _, mock := setupAuthHandler(t)

	w := perform(handler.SendOTP, http.MethodPost, "/api/v1/auth/send-otp", SendOTPRequest{Phone: "12345"}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "invalid_phone", response.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendOTP_MissingBody(t *testing.T) {
	handler, _, _ := setupAuthHandler(t)

	w := perform(handler.SendOTP, http.MethodPost, "/api/v1/auth/send-otp", map[string]string{}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_error")
}

func TestSendOTP_RateLimited(t *testing.T) {
	handler, _, mock := setupAuthHandler(t)

	expectRateLimitCount(mock, clientPhone, 3)
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := perform(handler.SendOTP, http.MethodPost, "/api/v1/auth/send-otp", SendOTPRequest{Phone: clientPhone}, nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "rate_limit_exceeded", response["error"])
	assert.Equal(t, "phone", response["type"])
	assert.NotEmpty(t, response["retry_after"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

var otpRowColumns = []string{
	"id", "phone", "otp_hash", "created_at", "expires_at", "verified", "verified_at",
	"attempts", "max_attempts", "ip_address", "user_agent",
}

func expectOTPRecord(t *testing.T, mock sqlmock.Sqlmock, code string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery(`FROM otp_verifications WHERE phone = \$1 AND verified = false`).
		WithArgs(clientPhone).
		WillReturnRows(sqlmock.NewRows(otpRowColumns).AddRow(
			7, clientPhone, string(hash), time.Now(), time.Now().Add(5*time.Minute), false, nil, 0, 3, nil, nil,
		))
}

func TestVerifyOTP_Success(t *testing.T) {
	handler, jwtService, mock := setupAuthHandler(t)
	userID := uuid.New()

	expectOTPRecord(t, mock, "482913")
	mock.ExpectExec(`UPDATE otp_verifications SET attempts = attempts \+ 1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE otp_verifications SET verified = true, verified_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM users WHERE phone = \$1`).
		WithArgs(clientPhone).
		WillReturnRows(userRow(userID, clientPhone, workflow.RoleClient, "active"))
	mock.ExpectExec(`INSERT INTO refresh_tokens`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE users SET last_login_at`).
		WithArgs(sqlmock.AnyArg(), userID.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := perform(handler.VerifyOTP, http.MethodPost, "/api/v1/auth/verify-otp", VerifyOTPRequest{Phone: clientPhone, OTP: "482913"}, nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response VerifyOTPResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, workflow.RoleClient, response.Role)
	assert.Equal(t, 3600, response.ExpiresIn)
	require.NotNil(t, response.User)
	assert.Equal(t, clientPhone, response.User.Phone)

	claims, err := jwtService.ValidateAccessToken(response.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "client", claims.Role)

	_, err = jwtService.ValidateRefreshToken(response.RefreshToken)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	handler, _, mock := setupAuthHandler(t)

	expectOTPRecord(t, mock, "482913")
	mock.ExpectExec(`UPDATE otp_verifications SET attempts`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := perform(handler.VerifyOTP, http.MethodPost, "/api/v1/auth/verify-otp", VerifyOTPRequest{Phone: clientPhone, OTP: "000000"}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var response ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "OTP_INVALID", response.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTP_NoOTPRequested(t *testing.T) {
	handler, _, mock := setupAuthHandler(t)

	mock.ExpectQuery(`FROM otp_verifications`).
		WithArgs(clientPhone).
		WillReturnRows(sqlmock.NewRows(otpRowColumns))
	mock.ExpectExec(`INSERT INTO audit_logs`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	w := perform(handler.VerifyOTP, http.MethodPost, "/api/v1/auth/verify-otp", VerifyOTPRequest{Phone: clientPhone, OTP: "123456"}, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NO_OTP")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTP_UnknownNumber(t *testing.T) {
	handler, _, mock := setupAuthHandler(t)

	expectOTPRecord(t, mock, "482913")
	mock.ExpectExec(`UPDATE otp_verifications SET attempts`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE otp_verifications SET verified = true, verified_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM users WHERE phone`).
		WithArgs(clientPhone).
		WillReturnRows(sqlmock.NewRows(userColumns))

	w := perform(handler.VerifyOTP, http.MethodPost, "/api/v1/auth/verify-otp", VerifyOTPRequest{Phone: clientPhone, OTP: "482913"}, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "NO_ACCOUNT")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyOTP_ArchitectLoginDisabled(t *testing.T) {
	handler, _, mock := setupAuthHandler(t)
	handler.config.Portal.ArchitectEnabled = false

	expectOTPRecord(t, mock, "482913")
	mock.ExpectExec(`UPDATE otp_verifications SET attempts`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE otp_verifications SET verified = true, verified_at`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`FROM users WHERE phone`).
		WillReturnRows(userRow(uuid.New(), clientPhone, workflow.RoleArchitect, "active"))

	w := perform(handler.VerifyOTP, http.MethodPost, "/api/v1/auth/verify-otp", VerifyOTPRequest{Phone: clientPhone, OTP: "482913"}, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
