package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vesture/internal/db"
	"vesture/internal/domain"
)

// seedplans upserts plan catalog rows by name. With no -name it installs the
// default catalog, which is safe to re-run.

type seedPlan struct {
	Name       string
	PriceCents int64
	Limits     domain.PlanLimits
}

var defaultCatalog = []seedPlan{
	{Name: "starter", PriceCents: 999, Limits: domain.PlanLimits{TokenAllocation: 50, ValidityDays: 30, DurationDays: 30, TokenLimit: 50}},
	{Name: "pro", PriceCents: 1999, Limits: domain.PlanLimits{TokenAllocation: 200, ValidityDays: 60, DurationDays: 30, TokenLimit: 200}},
	{Name: "studio", PriceCents: 4999, Limits: domain.PlanLimits{TokenAllocation: 600, ValidityDays: 90, DurationDays: 30, TokenLimit: 600}},
}

func main() {
	var (
		nameFlag     string
		priceFlag    int64
		tokensFlag   int
		validityFlag int
		durationFlag int
		limitFlag    int
	)

	flag.StringVar(&nameFlag, "name", "", "plan name to upsert (empty seeds the default catalog)")
	flag.Int64Var(&priceFlag, "price-cents", 0, "plan price in cents")
	flag.IntVar(&tokensFlag, "tokens", 0, "tokens allocated per purchase")
	flag.IntVar(&validityFlag, "validity-days", 30, "token validity window in days")
	flag.IntVar(&durationFlag, "duration-days", 30, "subscription period length in days")
	flag.IntVar(&limitFlag, "token-limit", 0, "balance cap used for usage reporting (0 defaults to -tokens)")
	flag.Parse()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	if err := db.Ensure(ctx, pool); err != nil {
		exitWithError(fmt.Errorf("failed to ensure schema: %w", err))
	}

	plans := defaultCatalog
	if name := strings.TrimSpace(strings.ToLower(nameFlag)); name != "" {
		if priceFlag <= 0 {
			exitWithError(errors.New("-price-cents must be positive"))
		}
		if tokensFlag <= 0 {
			exitWithError(errors.New("-tokens must be positive"))
		}
		limit := limitFlag
		if limit <= 0 {
			limit = tokensFlag
		}
		plans = []seedPlan{{
			Name:       name,
			PriceCents: priceFlag,
			Limits: domain.PlanLimits{
				TokenAllocation: tokensFlag,
				ValidityDays:    validityFlag,
				DurationDays:    durationFlag,
				TokenLimit:      limit,
			},
		}}
	}

	for _, p := range plans {
		id, err := upsertPlan(ctx, pool, p)
		if err != nil {
			exitWithError(fmt.Errorf("failed to upsert plan %q: %w", p.Name, err))
		}
		fmt.Printf("plan %s id=%d price_cents=%d tokens=%d validity_days=%d\n",
			p.Name, id, p.PriceCents, p.Limits.TokenAllocation, p.Limits.ValidityDays)
	}
}

func upsertPlan(ctx context.Context, pool *pgxpool.Pool, p seedPlan) (int64, error) {
	limits, err := json.Marshal(p.Limits)
	if err != nil {
		return 0, err
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var id int64
	err = pool.QueryRow(opCtx, `
INSERT INTO plans (name, price_cents, limits)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE
SET price_cents = EXCLUDED.price_cents, limits = EXCLUDED.limits
RETURNING id;
`, p.Name, p.PriceCents, limits).Scan(&id)
	return id, err
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
