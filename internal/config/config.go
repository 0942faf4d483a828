package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// SMS configuration
	SMS SMSConfig

	// OTP configuration
	OTP OTPConfig

	// CORS configuration
	CORS CORSConfig

	// Security configuration
	Security SecurityConfig

	// Portal behaviour
	Portal PortalConfig

	// Estimate document rendering
	Documents DocumentsConfig

	// Background maintenance
	Maintenance MaintenanceConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	RefreshSecret      string
	Issuer             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// SMSConfig holds SMS gateway configuration
type SMSConfig struct {
	Mode     string // "dev" or "production" - dev returns OTP in response, production sends actual SMS
	Method   string // "api" or "url" - api uses POST with login, url uses GET with an API key
	APIURL   string
	APIKey   string
	Username string
	Password string
	SenderID string
}

// OTPConfig holds OTP-related configuration
type OTPConfig struct {
	Length            int
	ExpiryMinutes     int
	MaxAttempts       int
	RateLimit         int
	RateWindowMinutes int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	BcryptCost       int
	EnableRequestLog bool
	EnableAuditLog   bool
}

// PortalConfig holds dashboard settings
type PortalConfig struct {
	RecentsLimit     int    // entries in the recents feed
	ClientListLimit  int    // entries in the admin client list
	DefaultCurrency  string // currency for estimates without one
	ArchitectEnabled bool   // allow architect viewers to log in
}

// DocumentsConfig holds settings for generated estimate PDFs
type DocumentsConfig struct {
	CompanyName    string
	CompanyAddress string
	CompanyPhone   string
	FooterNote     string
}

// MaintenanceConfig holds cron schedules for cleanup jobs
type MaintenanceConfig struct {
	Enabled            bool
	OTPCleanupSpec     string
	TokenCleanupSpec   string
	AuditCleanupSpec   string
	AuditRetentionDays int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			Issuer:             getEnv("JWT_ISSUER", "hrita-portal"),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			RefreshTokenExpiry: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRY", 2592000)) * time.Second,
		},
		SMS: SMSConfig{
			Mode:     getEnv("SMS_MODE", "dev"),
			Method:   getEnv("SMS_METHOD", "api"),
			APIURL:   getEnv("SMS_API_URL", ""),
			APIKey:   getEnv("SMS_API_KEY", ""),
			Username: getEnv("SMS_USERNAME", ""),
			Password: getEnv("SMS_PASSWORD", ""),
			SenderID: getEnv("SMS_SENDER_ID", "HRITA"),
		},
		OTP: OTPConfig{
			Length:            getEnvAsInt("OTP_LENGTH", 6),
			ExpiryMinutes:     getEnvAsInt("OTP_EXPIRY_MINUTES", 5),
			MaxAttempts:       getEnvAsInt("OTP_MAX_ATTEMPTS", 3),
			RateLimit:         getEnvAsInt("OTP_RATE_LIMIT", 3),
			RateWindowMinutes: getEnvAsInt("OTP_RATE_WINDOW_MINUTES", 10),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Security: SecurityConfig{
			BcryptCost:       getEnvAsInt("BCRYPT_COST", 10),
			EnableRequestLog: getEnvAsBool("ENABLE_REQUEST_LOGGING", true),
			EnableAuditLog:   getEnvAsBool("ENABLE_AUDIT_LOGGING", true),
		},
		Portal: PortalConfig{
			RecentsLimit:     getEnvAsInt("PORTAL_RECENTS_LIMIT", 20),
			ClientListLimit:  getEnvAsInt("PORTAL_CLIENT_LIST_LIMIT", 500),
			DefaultCurrency:  getEnv("PORTAL_DEFAULT_CURRENCY", "INR"),
			ArchitectEnabled: getEnvAsBool("PORTAL_ARCHITECT_ENABLED", true),
		},
		Documents: DocumentsConfig{
			CompanyName:    getEnv("DOCUMENTS_COMPANY_NAME", "Hrita Interiors"),
			CompanyAddress: getEnv("DOCUMENTS_COMPANY_ADDRESS", ""),
			CompanyPhone:   getEnv("DOCUMENTS_COMPANY_PHONE", ""),
			FooterNote:     getEnv("DOCUMENTS_FOOTER_NOTE", "This estimate is valid for 30 days from the date of issue."),
		},
		Maintenance: MaintenanceConfig{
			Enabled:            getEnvAsBool("MAINTENANCE_ENABLED", true),
			OTPCleanupSpec:     getEnv("MAINTENANCE_OTP_CLEANUP", "*/15 * * * *"),
			TokenCleanupSpec:   getEnv("MAINTENANCE_TOKEN_CLEANUP", "0 3 * * *"),
			AuditCleanupSpec:   getEnv("MAINTENANCE_AUDIT_CLEANUP", "30 3 * * 0"),
			AuditRetentionDays: getEnvAsInt("MAINTENANCE_AUDIT_RETENTION_DAYS", 180),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.JWT.RefreshSecret == "" {
		return fmt.Errorf("JWT_REFRESH_SECRET is required")
	}

	if c.OTP.Length < 4 || c.OTP.Length > 8 {
		return fmt.Errorf("OTP_LENGTH must be between 4 and 8, got %d", c.OTP.Length)
	}

	// Validate SMS configuration only in production mode
	if c.SMS.Mode == "production" {
		switch c.SMS.Method {
		case "url":
			if c.SMS.APIURL == "" || c.SMS.APIKey == "" {
				return fmt.Errorf("SMS_API_URL and SMS_API_KEY are required for URL method in production mode")
			}
		case "api":
			if c.SMS.APIURL == "" {
				return fmt.Errorf("SMS_API_URL is required for API method in production mode")
			}
			if c.SMS.Username == "" || c.SMS.Password == "" {
				return fmt.Errorf("SMS_USERNAME and SMS_PASSWORD are required for API method in production mode")
			}
		default:
			return fmt.Errorf("invalid SMS method: %s (must be 'api' or 'url')", c.SMS.Method)
		}
	}

	return nil
}

// IsProduction reports whether the server runs in production
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
