package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/hrita/customer-portal/pkg/portal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL   string
	sessionPath string
	verbose     bool
	timeout     time.Duration

	logger = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "portalctl",
	Short: "Command line client for the Hrita customer portal",
	Long: `portalctl signs in to the customer portal with a phone OTP and shows
the same dashboard the web portal renders: the stage timeline, project
documents and, for admins, the client list and recent activity.

Sign in once with 'portalctl login'; the session is kept in a YAML file
and reused by the other commands.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetOutput(os.Stderr)
		logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.WarnLevel)
		}
	},
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "hrita", "session.yaml")
}

func defaultServerURL() string {
	if url := os.Getenv("PORTAL_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "Portal API base URL (or set PORTAL_URL)")
	rootCmd.PersistentFlags().StringVar(&sessionPath, "session", defaultSessionPath(), "Session file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every API request")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(addLeadCmd)
	rootCmd.AddCommand(pdfCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}

// commandContext bounds a command by the --timeout flag
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// openSession loads the saved session and renews its tokens when the access
// token has expired
func openSession(ctx context.Context) (*portal.Session, error) {
	session, err := portal.LoadSession(sessionPath, portal.WithLogger(logger))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("not signed in; run 'portalctl login --phone <number>' first")
		}
		return nil, err
	}

	if session.Expired() {
		logger.Debug("Access token expired, renewing")
		if err := session.RenewTokens(ctx); err != nil {
			return nil, fmt.Errorf("session expired; sign in again: %w", err)
		}
		if err := session.Save(sessionPath); err != nil {
			return nil, err
		}
	}
	return session, nil
}
