// seed-admin bootstraps the first business and its admin user on an empty
// database. It refuses to run once an admin exists.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//	SEED_BUSINESS_NAME="Acme Tent House" SEED_ADMIN_USERNAME=admin SEED_ADMIN_PASSWORD=... \
//	go run ./cmd/seed-admin
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
)

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := config.ConnectDatabaseWithRetry(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "database not reachable: %v\n", err)
		os.Exit(1)
	}
	if err := config.ConnectRedisWithRetry(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "redis not reachable, continuing without locks: %v\n", err)
	}
	if !config.SkipMigrations() {
		if err := models.MigrateTable(); err != nil {
			fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
			os.Exit(1)
		}
	}

	password := env("SEED_ADMIN_PASSWORD", "")
	if password == "" {
		fmt.Fprintln(os.Stderr, "SEED_ADMIN_PASSWORD is required")
		os.Exit(2)
	}
	input := &models.NewBootstrap{
		Business: models.NewBusiness{
			Name:     env("SEED_BUSINESS_NAME", "My Rental Business"),
			Email:    env("SEED_BUSINESS_EMAIL", ""),
			Timezone: env("SEED_BUSINESS_TIMEZONE", models.DefaultTimezone),
		},
		Username: env("SEED_ADMIN_USERNAME", "admin"),
		Name:     env("SEED_ADMIN_NAME", "Administrator"),
		Email:    env("SEED_ADMIN_EMAIL", ""),
		Password: password,
	}

	user, business, err := models.BootstrapAdmin(ctx, input)
	if errors.Is(err, models.ErrAdminExists) {
		fmt.Println("an admin already exists; nothing to do")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("created business %s (%s) with admin %q\n", business.Name, business.ID, user.Username)
}
