package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hrita/customer-portal/internal/config"
	"github.com/hrita/customer-portal/internal/database"
	"github.com/hrita/customer-portal/internal/models"
	"github.com/hrita/customer-portal/internal/workflow"
	"github.com/hrita/customer-portal/pkg/validator"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// portalTables are truncated in one statement; CASCADE covers the foreign keys
var portalTables = []string{
	"audit_logs",
	"project_viewers",
	"payments",
	"designs",
	"estimates",
	"opportunities",
	"otp_verifications",
	"otp_rate_limits",
	"refresh_tokens",
	"users",
}

func main() {
	var (
		dbURLFlag  string
		adminPhone string
		adminName  string
		confirm    bool
	)
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.StringVar(&adminPhone, "admin-phone", "", "Re-create an admin account with this phone after clearing")
	flag.StringVar(&adminName, "admin-name", "Studio Admin", "Name of the re-created admin")
	flag.BoolVar(&confirm, "yes", false, "Confirm that every portal table should be emptied")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if !confirm {
		logger.Fatal("Refusing to clear data without -yes")
	}

	// .env is optional; it keeps secrets off the command line
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	var phone string
	if adminPhone != "" {
		normalized, err := validator.NewPhoneValidator().Validate(adminPhone)
		if err != nil {
			logger.Fatalf("Invalid -admin-phone: %v", err)
		}
		phone = normalized
	}

	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err = database.WithTransaction(ctx, db, func(q database.Querier) error {
		if _, err := q.ExecContext(ctx, truncateStatement()); err != nil {
			return fmt.Errorf("failed to truncate tables: %w", err)
		}
		if phone == "" {
			return nil
		}

		admin := &models.User{
			Phone: phone,
			Name:  adminName,
			Role:  workflow.RoleAdmin,
		}
		if err := database.NewUserRepository(q).CreateUser(ctx, admin); err != nil {
			if errors.Is(err, database.ErrDuplicatePhone) {
				return fmt.Errorf("admin %s survived the truncate: %w", phone, err)
			}
			return err
		}
		logger.WithField("phone", phone).Info("Admin account re-created")
		return nil
	})
	if err != nil {
		logger.Fatalf("Clear failed, nothing was changed: %v", err)
	}

	logger.Info("All portal data cleared")

	for _, t := range portalTables {
		var count int
		if err := db.GetContext(ctx, &count, fmt.Sprintf("SELECT COUNT(*) FROM %s", t)); err != nil {
			logger.WithError(err).Warnf("Failed to count %s", t)
			continue
		}
		logger.WithField("rows", count).Infof("  %s", t)
	}
}

func truncateStatement() string {
	stmt := "TRUNCATE TABLE "
	for i, t := range portalTables {
		if i > 0 {
			stmt += ", "
		}
		stmt += t
	}
	return stmt + " RESTART IDENTITY CASCADE"
}
