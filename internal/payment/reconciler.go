package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"vesture/internal/domain"
	"vesture/internal/subscription"
	"vesture/internal/token"
)

// Notice is a gateway payment event normalized from either a webhook body or
// an order-status poll. Success mirrors the gateway's terminal paid state.
type Notice struct {
	MerchantOrderID      string
	Success              bool
	UserID               string
	PlanID               *int64
	GatewayTransactionID *string
	PaymentMode          *string
	RawPayload           []byte
}

// Outcome reports how far a finalize got. PaymentConfirmed is the only field
// callers should gate user-visible success on; the rest is bookkeeping detail
// surfaced for logging and tests.
type Outcome struct {
	PaymentConfirmed    bool
	AlreadyFinalized    bool
	PlanID              *int64
	SubscriptionUpdated bool
	TokensAllocated     bool

	// BookkeepingErr carries a swallowed step failure. The payment itself
	// is still confirmed; a later redelivery or support action repairs the
	// subscription or token state.
	BookkeepingErr error
}

// Reconciler turns confirmed gateway payments into subscription and token
// state. Finalize is idempotent per merchant order id: the transaction status
// flip is the gate, and only the flipping call runs the side effects.
type Reconciler struct {
	txns           domain.TransactionRepository
	subs           *subscription.Manager
	ledger         *token.Ledger
	fallbackPlanID int64
	logger         zerolog.Logger
}

// NewReconciler wires the reconciler. fallbackPlanID is used when neither the
// notice nor the stored transaction names a plan.
func NewReconciler(txns domain.TransactionRepository, subs *subscription.Manager, ledger *token.Ledger, fallbackPlanID int64, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		txns:           txns,
		subs:           subs,
		ledger:         ledger,
		fallbackPlanID: fallbackPlanID,
		logger:         logger,
	}
}

// Finalize applies a gateway notice. Non-success notices are passed through
// with no side effects. For a success notice it flips the stored transaction
// to COMPLETED exactly once, then upserts the subscription and credits the
// plan's token allocation; failures in those two steps are logged and
// reported in the outcome but never fail the call, because the money has
// already moved.
func (r *Reconciler) Finalize(ctx context.Context, notice Notice) (*Outcome, error) {
	if notice.MerchantOrderID == "" {
		return nil, errors.New("payment: merchant order id required")
	}

	outcome := &Outcome{}
	if !notice.Success {
		return outcome, nil
	}
	outcome.PaymentConfirmed = true

	userID := notice.UserID
	planID := notice.PlanID

	txn, err := r.txns.GetByMerchantOrderID(ctx, notice.MerchantOrderID)
	switch {
	case err == nil:
		flipped, err := r.txns.MarkCompleted(ctx, notice.MerchantOrderID, notice.GatewayTransactionID, notice.PaymentMode, notice.RawPayload)
		if err != nil {
			return nil, fmt.Errorf("payment: mark transaction completed: %w", err)
		}
		if !flipped {
			outcome.AlreadyFinalized = true
			return outcome, nil
		}
		if userID == "" {
			userID = txn.UserID
		}
		if planID == nil {
			planID = txn.PlanID
		}
		if planID == nil {
			fallback := r.fallbackPlanID
			planID = &fallback
			r.logger.Warn().
				Str("merchant_order_id", notice.MerchantOrderID).
				Int64("plan_id", fallback).
				Msg("transaction has no plan, using fallback")
		}
	case errors.Is(err, domain.ErrNotFound):
		// No local row to gate on. The order was confirmed by the
		// gateway, so grant whatever the notice itself identifies.
		r.logger.Warn().
			Str("merchant_order_id", notice.MerchantOrderID).
			Msg("no transaction row for confirmed payment")
		if userID == "" || planID == nil {
			outcome.BookkeepingErr = fmt.Errorf("payment: confirmed order %s has no transaction and no recoverable context", notice.MerchantOrderID)
			r.logger.Error().Err(outcome.BookkeepingErr).Msg("payment finalize incomplete")
			return outcome, nil
		}
	default:
		return nil, fmt.Errorf("payment: load transaction: %w", err)
	}

	outcome.PlanID = planID

	sub, err := r.subs.CreateOrRenew(ctx, userID, *planID)
	if err != nil {
		outcome.BookkeepingErr = fmt.Errorf("payment: update subscription: %w", err)
		r.logger.Error().Err(err).
			Str("merchant_order_id", notice.MerchantOrderID).
			Str("user_id", userID).
			Int64("plan_id", *planID).
			Msg("subscription update failed after confirmed payment")
		return outcome, nil
	}
	outcome.SubscriptionUpdated = true

	if _, err := r.ledger.AllocateFromPlan(ctx, userID, sub); err != nil {
		outcome.BookkeepingErr = fmt.Errorf("payment: allocate tokens: %w", err)
		r.logger.Error().Err(err).
			Str("merchant_order_id", notice.MerchantOrderID).
			Str("user_id", userID).
			Int64("plan_id", *planID).
			Msg("token allocation failed after confirmed payment")
		return outcome, nil
	}
	outcome.TokensAllocated = true

	return outcome, nil
}

// Fail records a terminal gateway failure on the stored transaction. Missing
// rows and already-finalized transactions are ignored.
func (r *Reconciler) Fail(ctx context.Context, merchantOrderID string, raw []byte) error {
	if merchantOrderID == "" {
		return errors.New("payment: merchant order id required")
	}
	if _, err := r.txns.MarkFailed(ctx, merchantOrderID, raw); err != nil {
		return fmt.Errorf("payment: mark transaction failed: %w", err)
	}
	return nil
}

// NoticeFromOrderState normalizes a gateway order poll into a Notice,
// recovering the user and plan from the order's custom_id when present.
func NoticeFromOrderState(state *OrderState, customID string) Notice {
	userID, planID := ParseCustomID(customID)
	return Notice{
		MerchantOrderID:      state.OrderID,
		Success:              state.Completed(),
		UserID:               userID,
		PlanID:               planID,
		GatewayTransactionID: state.CaptureID,
		PaymentMode:          state.PaymentMode,
		RawPayload:           state.Raw,
	}
}
