package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hrita/customer-portal/internal/config"
	"github.com/hrita/customer-portal/internal/database"
	"github.com/hrita/customer-portal/internal/middleware"
	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/services"
	"github.com/hrita/customer-portal/internal/utils"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/hrita/customer-portal/pkg/jwt"
	"github.com/hrita/customer-portal/pkg/sms"
	"github.com/hrita/customer-portal/pkg/validator"
	"github.com/sirupsen/logrus"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	jwtService             *jwt.Service
	otpService             *services.OTPService
	phoneValidator         *validator.PhoneValidator
	rateLimitService       *services.RateLimitService
	auditService           *services.AuditService
	userRepository         *database.UserRepository
	refreshTokenRepository *database.RefreshTokenRepository
	smsGateway             sms.SMSGateway
	config                 *config.Config
	logger                 *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	jwtService *jwt.Service,
	otpService *services.OTPService,
	rateLimitService *services.RateLimitService,
	auditService *services.AuditService,
	userRepository *database.UserRepository,
	refreshTokenRepository *database.RefreshTokenRepository,
	smsGateway sms.SMSGateway,
	cfg *config.Config,
	logger *logrus.Logger,
) *AuthHandler {
	return &AuthHandler{
		jwtService:             jwtService,
		otpService:             otpService,
		phoneValidator:         validator.NewPhoneValidator(),
		rateLimitService:       rateLimitService,
		auditService:           auditService,
		userRepository:         userRepository,
		refreshTokenRepository: refreshTokenRepository,
		smsGateway:             smsGateway,
		config:                 cfg,
		logger:                 logger,
	}
}

// SendOTPRequest represents the request to send OTP
type SendOTPRequest struct {
	Phone string `json:"phone_number" binding:"required"`
}

// SendOTPResponse represents the response after sending OTP
type SendOTPResponse struct {
	Message   string    `json:"message"`
	Phone     string    `json:"phone"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int       `json:"expires_in_seconds"`
	OTP       string    `json:"otp,omitempty"` // development mode only
	Mode      string    `json:"mode,omitempty"`
}

// VerifyOTPRequest represents the request to verify OTP
type VerifyOTPRequest struct {
	Phone string `json:"phone_number" binding:"required"`
	OTP   string `json:"otp" binding:"required"`
}

// VerifyOTPResponse represents the response after verifying OTP
type VerifyOTPResponse struct {
	Message      string        `json:"message"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in_seconds"`
	Role         workflow.Role `json:"role"`
	User         *models.User  `json:"user"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// SendOTP handles POST /api/v1/auth/send-otp
func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
		})
		return
	}

	phone, err := h.phoneValidator.Validate(req.Phone)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_phone",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	clientIP := utils.GetRealIP(c)
	userAgent := utils.GetUserAgent(c)
	log := h.logger.WithFields(logrus.Fields{"phone": h.phoneValidator.Mask(phone), "ip": clientIP})

	if err := h.rateLimitService.CheckOTPRateLimit(ctx, phone, clientIP); err != nil {
		var rateLimitErr *services.RateLimitError
		if errors.As(err, &rateLimitErr) {
			h.safeLogRateLimitViolation(ctx, phone, clientIP, userAgent, rateLimitErr.Type, rateLimitErr.RetryAfter)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate_limit_exceeded",
				"message":     rateLimitErr.Message,
				"retry_after": rateLimitErr.RetryAfter,
				"type":        rateLimitErr.Type,
			})
			return
		}
		log.WithError(err).Error("Rate limit check failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "rate_limit_check_failed",
			Message: "Failed to check rate limit",
		})
		return
	}

	otp, err := h.otpService.GenerateOTP(ctx, phone, clientIP, userAgent)
	if err != nil {
		log.WithError(err).Error("OTP generation failed")
		h.safeLogOTPRequest(ctx, phone, clientIP, userAgent, false, "generation_failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "otp_generation_failed",
			Message: "Failed to generate OTP",
		})
		return
	}

	if err := h.rateLimitService.RecordOTPRequest(ctx, phone, clientIP); err != nil {
		// the code is already stored; the request still succeeds
		log.WithError(err).Warn("Failed to record OTP request")
	}

	expiresAt := time.Now().Add(h.otpService.Expiry())
	resp := SendOTPResponse{
		Message:   "OTP sent successfully to your phone",
		Phone:     phone,
		ExpiresAt: expiresAt,
		ExpiresIn: int(h.otpService.Expiry().Seconds()),
	}

	transactionID, err := h.smsGateway.SendOTP(ctx, phone, otp)
	if err != nil {
		log.WithError(err).WithField("gateway", h.smsGateway.GetName()).Error("Failed to send OTP SMS")
		h.safeLogOTPRequest(ctx, phone, clientIP, userAgent, false, "sms_failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "sms_send_failed",
			Message: "Failed to send OTP via SMS. Please try again.",
		})
		return
	}
	log.WithFields(logrus.Fields{"gateway": h.smsGateway.GetName(), "transaction_id": transactionID}).Info("OTP sent")

	h.safeLogOTPRequest(ctx, phone, clientIP, userAgent, true, "")

	if h.config.SMS.Mode != "production" {
		resp.Message = "OTP generated successfully (dev mode - no SMS sent)"
		resp.OTP = otp
		resp.Mode = "development"
	}

	c.JSON(http.StatusOK, resp)
}

// VerifyOTP handles POST /api/v1/auth/verify-otp
func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
		})
		return
	}

	phone, err := h.phoneValidator.Validate(req.Phone)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_phone",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	clientIP := utils.GetRealIP(c)
	userAgent := utils.GetUserAgent(c)
	log := h.logger.WithFields(logrus.Fields{"phone": h.phoneValidator.Mask(phone), "ip": clientIP})

	if _, err := h.otpService.ValidateOTP(ctx, phone, req.OTP); err != nil {
		h.safeLogOTPVerification(ctx, nil, phone, false, clientIP, userAgent, err.Error())

		switch {
		case errors.Is(err, services.ErrOTPExpired):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "otp_expired",
				Message: "OTP has expired. Please request a new one.",
				Code:    "OTP_EXPIRED",
			})
		case errors.Is(err, services.ErrOTPInvalid):
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "otp_invalid",
				Message: "Invalid OTP code",
				Code:    "OTP_INVALID",
			})
		case errors.Is(err, services.ErrMaxAttemptsExceeded):
			c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error:   "max_attempts_exceeded",
				Message: "Maximum OTP validation attempts exceeded. Please request a new OTP.",
				Code:    "MAX_ATTEMPTS",
			})
		case errors.Is(err, services.ErrNoOTPFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "no_otp_found",
				Message: "No OTP found for this phone number. Please request an OTP first.",
				Code:    "NO_OTP",
			})
		default:
			log.WithError(err).Error("OTP validation failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "validation_failed",
				Message: "Failed to validate OTP",
			})
		}
		return
	}

	// Leads are created by admins; the number must already belong to a portal account
	user, err := h.userRepository.GetUserByPhone(ctx, phone)
	if err != nil {
		log.WithError(err).Error("Failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "user_fetch_failed",
			Message: "Failed to fetch user information",
		})
		return
	}
	if user == nil || !user.IsActive() || (user.Role == workflow.RoleArchitect && !h.config.Portal.ArchitectEnabled) {
		log.Info("Login refused: no active portal account")
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "no_account",
			Message: "This number is not registered with the portal. Please contact our team.",
			Code:    "NO_ACCOUNT",
		})
		return
	}

	accessToken, refreshToken, ok := h.issueTokens(c, user, clientIP, userAgent)
	if !ok {
		return
	}

	if err := h.userRepository.UpdateLastLogin(ctx, user.ID); err != nil {
		log.WithError(err).Warn("Failed to update last login")
	}
	h.safeLogOTPVerification(ctx, &user.ID, phone, true, clientIP, userAgent, "")
	h.safeLogLogin(ctx, user.ID, phone, clientIP, userAgent)

	c.JSON(http.StatusOK, VerifyOTPResponse{
		Message:      "OTP verified successfully",
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(h.jwtService.AccessTokenExpiry().Seconds()),
		Role:         user.Role,
		User:         user,
	})
}

// issueTokens signs a token pair and stores the refresh token. It answers the
// request itself on failure.
func (h *AuthHandler) issueTokens(c *gin.Context, user *models.User, clientIP, userAgent string) (string, string, bool) {
	accessToken, err := h.jwtService.GenerateAccessToken(user.ID, user.Phone, string(user.Role))
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate access token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate access token",
		})
		return "", "", false
	}

	refreshToken, err := h.jwtService.GenerateRefreshToken(user.ID, user.Phone)
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate refresh token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate refresh token",
		})
		return "", "", false
	}

	err = h.refreshTokenRepository.StoreRefreshToken(
		c.Request.Context(),
		user.ID,
		refreshToken,
		utils.DeviceType(userAgent),
		clientIP,
		userAgent,
		time.Now().Add(h.jwtService.RefreshTokenExpiry()),
	)
	if err != nil {
		h.logger.WithError(err).Error("Failed to store refresh token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_storage_failed",
			Message: "Failed to store refresh token",
		})
		return "", "", false
	}

	return accessToken, refreshToken, true
}

// UpdateProfileRequest represents the request to update profile
type UpdateProfileRequest struct {
	Name  string `json:"name" binding:"omitempty,min=2,max=100"`
	Email string `json:"email" binding:"omitempty,email"`
	City  string `json:"city" binding:"omitempty,max=100"`
}

// GetProfile handles GET /api/v1/user/profile
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
		})
		return
	}

	user, err := h.userRepository.GetUserByID(c.Request.Context(), userCtx.UserID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userCtx.UserID).Error("Failed to load profile")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "profile_retrieval_failed",
			Message: "Failed to retrieve user profile",
		})
		return
	}

	if user == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "user_not_found",
			Message: "User profile not found",
		})
		return
	}

	c.JSON(http.StatusOK, user)
}

// UpdateProfile handles PUT /api/v1/user/profile
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
		})
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	if err := h.userRepository.UpdateProfile(ctx, userCtx.UserID, req.Name, req.Email, req.City); err != nil {
		h.logger.WithError(err).WithField("user_id", userCtx.UserID).Error("Failed to update profile")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "profile_update_failed",
			Message: "Failed to update profile",
		})
		return
	}

	user, err := h.userRepository.GetUserByID(ctx, userCtx.UserID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "profile_retrieval_failed",
			Message: "Failed to retrieve updated profile",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Profile updated successfully",
		"profile": user,
	})
}

// RefreshTokenRequest represents the request to refresh access token
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// RefreshTokenResponse represents the response after refreshing token
type RefreshTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in_seconds"`
	TokenType    string `json:"token_type"`
}

// RefreshToken handles POST /api/v1/auth/refresh-token.
// The presented refresh token is rotated: a new pair is stored before the old token is revoked.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		h.logger.WithError(err).Info("Refresh token rejected")
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired refresh token",
		})
		return
	}

	ctx := c.Request.Context()
	log := h.logger.WithField("user_id", claims.UserID)

	usable, err := h.refreshTokenRepository.IsTokenUsable(ctx, req.RefreshToken)
	if err != nil {
		log.WithError(err).Error("Failed to check refresh token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_check_failed",
			Message: "Failed to verify token status",
		})
		return
	}
	if !usable {
		log.Warn("Refresh token revoked or unknown")
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "token_revoked",
			Message: "Refresh token has been revoked",
		})
		return
	}

	user, err := h.userRepository.GetUserByID(ctx, claims.UserID)
	if err != nil {
		log.WithError(err).Error("Failed to load user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "user_fetch_failed",
			Message: "Failed to fetch user information",
		})
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "user_not_found",
			Message: "User no longer exists",
		})
		return
	}
	if !user.IsActive() {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "user_inactive",
			Message: "User account is not active",
		})
		return
	}
	if user.Role == workflow.RoleArchitect && !h.config.Portal.ArchitectEnabled {
		log.Info("Refresh refused: viewer accounts are disabled")
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "no_account",
			Message: "This number is not registered with the portal. Please contact our team.",
			Code:    "NO_ACCOUNT",
		})
		return
	}

	if err := h.refreshTokenRepository.UpdateLastUsed(ctx, req.RefreshToken); err != nil {
		log.WithError(err).Warn("Failed to update refresh token usage")
	}

	clientIP := utils.GetRealIP(c)
	userAgent := utils.GetUserAgent(c)

	// the old token must be dead before new ones exist
	if err := h.refreshTokenRepository.RevokeToken(ctx, req.RefreshToken); err != nil {
		h.safeLogTokenRefresh(ctx, user.ID, clientIP, userAgent, false)
		if errors.Is(err, database.ErrTokenNotRevocable) {
			log.Warn("Refresh token was rotated concurrently")
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Error:   "token_revoked",
				Message: "Refresh token has been revoked",
			})
			return
		}
		log.WithError(err).Error("Failed to revoke rotated refresh token")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_rotation_failed",
			Message: "Failed to rotate refresh token",
		})
		return
	}

	accessToken, newRefreshToken, ok := h.issueTokens(c, user, clientIP, userAgent)
	if !ok {
		h.safeLogTokenRefresh(ctx, user.ID, clientIP, userAgent, false)
		return
	}

	h.safeLogTokenRefresh(ctx, user.ID, clientIP, userAgent, true)

	c.JSON(http.StatusOK, RefreshTokenResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    int(h.jwtService.AccessTokenExpiry().Seconds()),
		TokenType:    "Bearer",
	})
}

// LogoutRequest represents the request to logout
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
	LogoutAll    bool   `json:"logout_all"` // revoke every refresh token of the user
}

// Logout handles POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User context not found",
		})
		return
	}

	ctx := c.Request.Context()
	clientIP := utils.GetRealIP(c)
	userAgent := utils.GetUserAgent(c)
	log := h.logger.WithField("user_id", userCtx.UserID)

	var req LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req = LogoutRequest{}
	}

	message := "Successfully logged out"
	switch {
	case req.LogoutAll:
		if err := h.refreshTokenRepository.RevokeAllUserTokens(ctx, userCtx.UserID); err != nil {
			log.WithError(err).Error("Failed to revoke all refresh tokens")
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error:   "logout_failed",
				Message: "Failed to logout from all devices",
			})
			return
		}
		message = "Successfully logged out from all devices"

	case req.RefreshToken != "":
		// an already revoked token still counts as logged out
		if err := h.refreshTokenRepository.RevokeToken(ctx, req.RefreshToken); err != nil {
			log.WithError(err).Info("Refresh token already revoked")
		}
	}

	h.safeLogLogout(ctx, userCtx.UserID, clientIP, userAgent, req.LogoutAll)

	c.JSON(http.StatusOK, gin.H{"message": message})
}
