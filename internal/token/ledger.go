// Package token implements the usage-credit ledger: a per-user balance with a
// validity window, mutated only through audited credit and debit operations.
package token

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"vesture/internal/domain"
)

const defaultHistoryLimit = 50

// Balance is the read model returned by balance queries.
type Balance struct {
	UserID     string     `json:"user_id"`
	Balance    int        `json:"token_balance"`
	ValidUntil *time.Time `json:"token_valid_until,omitempty"`
	IsValid    bool       `json:"is_valid"`
}

// Availability is the read-only pre-flight check used before reserving work.
// It is advisory: the later debit re-checks both conditions atomically.
type Availability struct {
	UserID        string     `json:"user_id"`
	Balance       int        `json:"current_balance"`
	Required      int        `json:"required_tokens"`
	HasSufficient bool       `json:"has_sufficient_tokens"`
	TokensValid   bool       `json:"tokens_valid"`
	CanProceed    bool       `json:"can_proceed"`
	ValidUntil    *time.Time `json:"token_valid_until,omitempty"`
}

// PlanUsage combines the balance with the active plan's token limit.
type PlanUsage struct {
	UserID       string     `json:"user_id"`
	Balance      int        `json:"token_balance"`
	PlanLimit    int        `json:"plan_token_limit"`
	PlanName     string     `json:"plan_name"`
	UsagePercent float64    `json:"usage_percentage"`
	ValidUntil   *time.Time `json:"token_valid_until,omitempty"`
	IsValid      bool       `json:"is_valid"`
}

// Ledger maintains a non-negative token balance per user together with an
// append-only history of deltas.
type Ledger struct {
	store domain.LedgerStore
	plans domain.PlanRepository
	subs  domain.SubscriptionRepository
}

// NewLedger constructs a Ledger. The plan and subscription repositories are
// only needed for plan-aware queries and may be nil in contexts that never
// call them.
func NewLedger(store domain.LedgerStore, plans domain.PlanRepository, subs domain.SubscriptionRepository) *Ledger {
	return &Ledger{store: store, plans: plans, subs: subs}
}

// GetBalance returns the user's current balance and validity.
func (l *Ledger) GetBalance(ctx context.Context, userID string) (*Balance, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &Balance{
		UserID:     user.ID,
		Balance:    user.TokenBalance,
		ValidUntil: user.TokenValidUntil,
		IsValid:    user.TokensValidAt(time.Now()),
	}, nil
}

// AddTokens credits the balance and extends the validity window. An unset or
// expired window restarts at now+validityDays; an open window is extended by
// validityDays, so the validity timestamp never moves backwards.
func (l *Ledger) AddTokens(ctx context.Context, userID string, amount int, source string, validityDays int) (*domain.User, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("add %d tokens: %w", amount, domain.ErrInvalidAmount)
	}
	if validityDays < 0 {
		return nil, fmt.Errorf("validity %d days: %w", validityDays, domain.ErrInvalidAmount)
	}
	user, err := l.store.Credit(ctx, userID, amount, validityDays, source)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ConsumeTokens debits the balance. The store applies the debit only while
// the balance covers the amount and the validity window is open, so
// concurrent consumers can never drive the balance negative; a refused debit
// is classified against a fresh read of the user.
func (l *Ledger) ConsumeTokens(ctx context.Context, userID string, amount int, source string) (*domain.User, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("consume %d tokens: %w", amount, domain.ErrInvalidAmount)
	}
	user, applied, err := l.store.Debit(ctx, userID, amount, source)
	if err != nil {
		return nil, err
	}
	if applied {
		return user, nil
	}

	current, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	if current.TokenBalance < amount {
		return nil, fmt.Errorf("balance %d, required %d: %w", current.TokenBalance, amount, domain.ErrInsufficientBalance)
	}
	return nil, domain.ErrTokensExpired
}

// CheckAvailability reports whether the user could consume the required
// amount right now, without mutating state.
func (l *Ledger) CheckAvailability(ctx context.Context, userID string, required int) (*Availability, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	sufficient := user.TokenBalance >= required
	valid := user.TokensValidAt(time.Now())
	return &Availability{
		UserID:        user.ID,
		Balance:       user.TokenBalance,
		Required:      required,
		HasSufficient: sufficient,
		TokensValid:   valid,
		CanProceed:    sufficient && valid,
		ValidUntil:    user.TokenValidUntil,
	}, nil
}

// AllocateFromPlan credits the allocation configured on the subscription's
// plan, tagged with the plan name as the ledger source.
func (l *Ledger) AllocateFromPlan(ctx context.Context, userID string, sub *domain.Subscription) (*domain.User, error) {
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	plan, err := l.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.Limits.TokenAllocation <= 0 {
		return nil, fmt.Errorf("plan %q: %w", plan.Name, domain.ErrNoAllocation)
	}
	source := fmt.Sprintf("plan_purchase_%s", plan.Name)
	return l.AddTokens(ctx, userID, plan.Limits.TokenAllocation, source, plan.ValidityDays())
}

// History returns the most recent ledger entries, newest first.
func (l *Ledger) History(ctx context.Context, userID string, limit int) ([]domain.TokenHistory, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return l.store.History(ctx, userID, limit)
}

// BalanceWithPlanLimit returns the balance alongside the active plan's token
// limit and a usage percentage. Users without an active subscription get a
// zero limit.
func (l *Ledger) BalanceWithPlanLimit(ctx context.Context, userID string) (*PlanUsage, error) {
	user, err := l.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}

	usage := &PlanUsage{
		UserID:     user.ID,
		Balance:    user.TokenBalance,
		PlanName:   "No Plan",
		ValidUntil: user.TokenValidUntil,
		IsValid:    user.TokensValidAt(time.Now()),
	}

	sub, err := l.subs.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return usage, nil
		}
		return nil, err
	}
	if !sub.ValidAt(time.Now()) {
		return usage, nil
	}

	plan, err := l.plans.GetByID(ctx, sub.PlanID)
	if err != nil {
		if errors.Is(err, domain.ErrPlanNotFound) {
			return usage, nil
		}
		return nil, err
	}

	usage.PlanName = plan.DisplayName()
	usage.PlanLimit = plan.Limits.TokenLimit
	if usage.PlanLimit > 0 {
		usage.UsagePercent = math.Round(float64(user.TokenBalance)/float64(usage.PlanLimit)*10000) / 100
	}
	return usage, nil
}
