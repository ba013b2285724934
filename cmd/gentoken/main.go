// gentoken prints a device token for a terminal.
// Usage: go run ./cmd/gentoken -terminal T1 -days 365
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/config"
	"github.com/JKKN-Institutions/JKKNPOS/internal/middleware"
)

func main() {
	terminal := flag.String("terminal", "", "terminal id embedded in the token")
	days := flag.Int("days", 0, "validity in days (default JWT_EXPIRATION_HOURS)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.JWTSecret == "" || *terminal == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET and -terminal are required")
		os.Exit(2)
	}

	ttl := time.Duration(cfg.JWTExpirationHours) * time.Hour
	if *days > 0 {
		ttl = time.Duration(*days) * 24 * time.Hour
	}
	tok, err := middleware.IssueDeviceToken(cfg.JWTSecret, *terminal, cfg.BusinessID, ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign:", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
