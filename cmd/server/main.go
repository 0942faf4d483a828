package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hrita/customer-portal/internal/config"
	"github.com/hrita/customer-portal/internal/database"
	"github.com/hrita/customer-portal/internal/handlers"
	"github.com/hrita/customer-portal/internal/middleware"
	"github.com/hrita/customer-portal/internal/services"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/hrita/customer-portal/pkg/jwt"
	"github.com/hrita/customer-portal/pkg/sms"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting Hrita customer portal backend")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Initialize database connection
	logger.Info("Connecting to database...")
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		logger.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	logger.Info("Database connection established")

	// Initialize services
	logger.Info("Initializing services...")
	jwtService := jwt.NewService(
		cfg.JWT.Secret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.Issuer,
		cfg.JWT.AccessTokenExpiry,
		cfg.JWT.RefreshTokenExpiry,
	)
	otpService := services.NewOTPService(db, cfg.OTP, cfg.Security.BcryptCost)
	rateLimitService := services.NewRateLimitService(db, services.RateLimitConfigFrom(cfg.OTP))
	auditService := services.NewAuditService(db)
	portalService := services.NewPortalService(db, auditService, cfg.Portal, logger)
	documentService := services.NewDocumentService(cfg.Documents)
	userRepository := database.NewUserRepository(db)
	refreshTokenRepository := database.NewRefreshTokenRepository(db)

	smsGateway := sms.NewGateway(cfg.SMS.Mode, cfg.SMS.Method, sms.Config{
		APIURL:        cfg.SMS.APIURL,
		APIKey:        cfg.SMS.APIKey,
		Username:      cfg.SMS.Username,
		Password:      cfg.SMS.Password,
		SenderID:      cfg.SMS.SenderID,
		ExpiryMinutes: cfg.OTP.ExpiryMinutes,
	}, logger)
	logger.WithFields(logrus.Fields{
		"mode":    cfg.SMS.Mode,
		"gateway": smsGateway.GetName(),
	}).Info("SMS gateway selected")

	// Maintenance jobs
	cronService := services.NewCronService(logger, services.MaintenanceJobs(
		cfg.Maintenance,
		otpService,
		rateLimitService,
		refreshTokenRepository.CleanupExpiredTokens,
		auditService,
	)...)
	if cfg.Maintenance.Enabled {
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start maintenance jobs: %v", err)
		}
	} else {
		logger.Info("Maintenance jobs disabled")
	}

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(
		jwtService,
		otpService,
		rateLimitService,
		auditService,
		userRepository,
		refreshTokenRepository,
		smsGateway,
		cfg,
		logger,
	)
	portalHandler := handlers.NewPortalHandler(portalService, documentService, logger)

	// Setup Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Security.EnableRequestLog {
		router.Use(middleware.RequestLogger(logger))
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: !containsWildcard(cfg.CORS.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", healthCheckHandler(db))

	authRequired := middleware.AuthMiddleware(jwtService, logger)

	v1 := router.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/send-otp", authHandler.SendOTP)
			auth.POST("/verify-otp", authHandler.VerifyOTP)
			auth.POST("/refresh-token", authHandler.RefreshToken)
			auth.POST("/logout", authRequired, authHandler.Logout)
		}

		user := v1.Group("/user")
		user.Use(authRequired)
		{
			user.GET("/profile", authHandler.GetProfile)
			user.PUT("/profile", authHandler.UpdateProfile)
		}

		portal := v1.Group("/portal")
		portal.Use(authRequired)
		{
			portal.GET("/exec", portalHandler.GetData)
			portal.POST("/exec", portalHandler.Exec)
			portal.GET("/timeline", portalHandler.Timeline)
			portal.GET("/estimates/:id/pdf", portalHandler.EstimatePDF)

			admin := portal.Group("/admin")
			admin.Use(middleware.RequireRole(workflow.RoleAdmin))
			{
				admin.GET("/maintenance", maintenanceStatusHandler(cronService))
				admin.POST("/maintenance/run", maintenanceRunHandler(cronService, logger))
			}
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cronService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// containsWildcard reports whether origins allows every origin.
// gin-contrib/cors rejects credentials combined with "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}

func maintenanceStatusHandler(cronService *services.CronService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, cronService.GetJobStatus())
	}
}

func maintenanceRunHandler(cronService *services.CronService, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed := cronService.RunNow()
		logger.WithField("removed", removed).Info("Maintenance run triggered manually")
		c.JSON(http.StatusOK, gin.H{
			"message": "Maintenance jobs completed",
			"removed": removed,
		})
	}
}
