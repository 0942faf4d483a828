package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hrita/customer-portal/internal/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	envOnly := flag.Bool("env", false, "Print only the KEY=value lines")
	flag.Parse()

	accessSecret, refreshSecret, err := utils.GenerateJWTSecrets()
	if err != nil {
		logrus.Fatalf("Failed to generate secrets: %v", err)
	}

	if *envOnly {
		fmt.Printf("JWT_SECRET=%s\n", accessSecret)
		fmt.Printf("JWT_REFRESH_SECRET=%s\n", refreshSecret)
		return
	}

	fmt.Fprintln(os.Stderr, "JWT secrets for the Hrita customer portal")
	fmt.Fprintln(os.Stderr, "Add these to your .env file or deployment secrets:")
	fmt.Fprintln(os.Stderr)
	fmt.Printf("JWT_SECRET=%s\n", accessSecret)
	fmt.Printf("JWT_REFRESH_SECRET=%s\n", refreshSecret)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Keep these secrets out of version control.")
}
