package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "test-access-secret-key-for-testing-purposes"
	testRefreshSecret = "test-refresh-secret-key-for-testing-purposes"
	testIssuer        = "hrita-portal"
	testPhone         = "9876543210"
)

func newTestService() *Service {
	return NewService(testAccessSecret, testRefreshSecret, testIssuer, time.Hour, 24*time.Hour)
}

func TestNewService(t *testing.T) {
	service := newTestService()

	assert.NotNil(t, service)
	assert.Equal(t, testAccessSecret, service.accessSecret)
	assert.Equal(t, testRefreshSecret, service.refreshSecret)
	assert.Equal(t, time.Hour, service.AccessTokenExpiry())
	assert.Equal(t, 24*time.Hour, service.RefreshTokenExpiry())
}

func TestGenerateAccessToken(t *testing.T) {
	service := newTestService()
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, testPhone, "client")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, testPhone, claims.Phone)
	assert.Equal(t, "client", claims.Role)
	assert.Equal(t, AccessToken, claims.TokenType)
	assert.Equal(t, testIssuer, claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
}

func TestGenerateRefreshToken(t *testing.T) {
	service := newTestService()
	userID := uuid.New()

	token, err := service.GenerateRefreshToken(userID, testPhone)
	require.NoError(t, err)

	claims, err := service.ValidateRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, RefreshToken, claims.TokenType)
	assert.Empty(t, claims.Role)
}

func TestGenerateRefreshToken_Unique(t *testing.T) {
	service := newTestService()
	userID := uuid.New()

	first, err := service.GenerateRefreshToken(userID, testPhone)
	require.NoError(t, err)
	second, err := service.GenerateRefreshToken(userID, testPhone)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestValidateAccessToken_Failures(t *testing.T) {
	service := newTestService()
	userID := uuid.New()

	token, err := service.GenerateAccessToken(userID, testPhone, "admin")
	require.NoError(t, err)

	_, err = service.ValidateAccessToken("invalid.token.here")
	assert.Error(t, err)

	wrongSecret := NewService("wrong-secret", testRefreshSecret, testIssuer, time.Hour, time.Hour)
	_, err = wrongSecret.ValidateAccessToken(token)
	assert.Error(t, err)

	wrongIssuer := NewService(testAccessSecret, testRefreshSecret, "someone-else", time.Hour, time.Hour)
	_, err = wrongIssuer.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestTokenTypeMismatch(t *testing.T) {
	service := NewService("same-secret", "same-secret", testIssuer, time.Hour, time.Hour)
	userID := uuid.New()

	refreshToken, err := service.GenerateRefreshToken(userID, testPhone)
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(refreshToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)

	accessToken, err := service.GenerateAccessToken(userID, testPhone, "client")
	require.NoError(t, err)

	_, err = service.ValidateRefreshToken(accessToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestExpiredToken(t *testing.T) {
	service := NewService(testAccessSecret, testRefreshSecret, testIssuer, -time.Hour, -time.Hour)

	token, err := service.GenerateAccessToken(uuid.New(), testPhone, "client")
	require.NoError(t, err)

	_, err = service.ValidateAccessToken(token)
	assert.Error(t, err)
	assert.True(t, service.IsTokenExpired(token))
}

func TestIsTokenExpired(t *testing.T) {
	service := newTestService()

	token, err := service.GenerateAccessToken(uuid.New(), testPhone, "client")
	require.NoError(t, err)

	assert.False(t, service.IsTokenExpired(token))
	assert.True(t, service.IsTokenExpired("invalid.token.here"))
}

func TestGetTokenExpiry(t *testing.T) {
	service := newTestService()

	token, err := service.GenerateAccessToken(uuid.New(), testPhone, "client")
	require.NoError(t, err)

	expiry, err := service.GetTokenExpiry(token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiry, 5*time.Second)

	_, err = service.GetTokenExpiry("invalid.token.here")
	assert.Error(t, err)
}

func TestTokenSigningMethod(t *testing.T) {
	service := newTestService()

	token, err := service.GenerateAccessToken(uuid.New(), testPhone, "architect")
	require.NoError(t, err)

	parsedToken, err := jwt.ParseWithClaims(token, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(testAccessSecret), nil
	})
	require.NoError(t, err)

	_, ok := parsedToken.Method.(*jwt.SigningMethodHMAC)
	assert.True(t, ok, "Token should use HMAC signing method")
}

func TestConcurrentTokenGeneration(t *testing.T) {
	service := newTestService()

	done := make(chan bool)
	errors := make(chan error, 100)

	for i := 0; i < 100; i++ {
		go func() {
			token, err := service.GenerateAccessToken(uuid.New(), testPhone, "client")
			if err == nil {
				_, err = service.ValidateAccessToken(token)
			}
			if err != nil {
				errors <- err
			}
			done <- true
		}()
	}

	for i := 0; i < 100; i++ {
		<-done
	}

	close(errors)
	assert.Empty(t, errors)
}
