package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rentiq/rentiq_backend/config"
	"github.com/rentiq/rentiq_backend/models"
)

// stock-reconcile checks every item's total and rented quantity against the
// stock movement ledger of the acting user's business.
func main() {
	username := flag.String("user", os.Getenv("RECONCILE_USERNAME"), "Required: username to act as (its business is checked)")
	fix := flag.Bool("fix", false, "Rewrite drifted counters from the ledger")
	flag.Parse()

	if strings.TrimSpace(*username) == "" {
		fmt.Fprintln(os.Stderr, "--user is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := config.ConnectDatabaseWithRetry(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "database not reachable: %v\n", err)
		os.Exit(1)
	}
	if err := config.ConnectRedisWithRetry(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "redis not reachable, cached items stay until expiry: %v\n", err)
	}

	userCtx, user, err := models.ActAs(ctx, *username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "user %s: %v\n", *username, err)
		os.Exit(1)
	}
	drift, err := models.ReconcileStock(userCtx, *fix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		os.Exit(1)
	}

	unfixed := 0
	for _, d := range drift {
		state := "drift"
		if d.Fixed {
			state = "fixed"
		} else {
			unfixed++
		}
		fmt.Printf("%-6s item=%d code=%s total=%d ledger_total=%d rented=%d ledger_rented=%d\n",
			state, d.ItemId, d.Code, d.TotalQuantity, d.LedgerTotal, d.RentedQuantity, d.LedgerRented)
	}
	fmt.Printf("business %s: %d items drifted, %d left unfixed\n", user.BusinessId, len(drift), unfixed)
	if unfixed > 0 {
		os.Exit(2)
	}
}
