package domain

import (
	"context"
	"time"
)

// UserRepository defines account access.
type UserRepository interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// LedgerStore provides the atomic balance mutations the token ledger is built
// on. Credit and Debit apply the balance change, the validity update and the
// history row in a single database transaction.
type LedgerStore interface {
	GetUser(ctx context.Context, userID string) (*User, error)

	// Credit adds amount to the balance and extends the validity window:
	// an unset or expired window restarts at now+validityDays, otherwise
	// validityDays are appended to the current window.
	Credit(ctx context.Context, userID string, amount, validityDays int, source string) (*User, error)

	// Debit subtracts amount conditionally: the update only applies while
	// the balance covers the amount and the validity window is open. A
	// zero-row update is reported as applied=false with no error so the
	// caller can classify the refusal.
	Debit(ctx context.Context, userID string, amount int, source string) (*User, bool, error)

	History(ctx context.Context, userID string, limit int) ([]TokenHistory, error)
}

// PlanRepository reads immutable plan reference data.
type PlanRepository interface {
	GetByID(ctx context.Context, id int64) (*Plan, error)
	List(ctx context.Context) ([]Plan, error)
}

// SubscriptionRepository persists the single-row-per-user subscription.
type SubscriptionRepository interface {
	GetByUserID(ctx context.Context, userID string) (*Subscription, error)
	// Upsert overwrites the user's subscription row, creating it when absent.
	Upsert(ctx context.Context, sub *Subscription) (*Subscription, error)
	UpdateStatus(ctx context.Context, userID string, status SubscriptionStatus, periodEnd time.Time) (*Subscription, error)
}

// TransactionRepository persists payment-gateway order records.
type TransactionRepository interface {
	Create(ctx context.Context, txn *Transaction) (*Transaction, error)
	GetByMerchantOrderID(ctx context.Context, merchantOrderID string) (*Transaction, error)
	// MarkCompleted transitions PENDING -> COMPLETED. It reports false when
	// the transaction was already terminal, which callers use as the
	// idempotency gate for downstream bookkeeping.
	MarkCompleted(ctx context.Context, merchantOrderID string, gatewayTxnID, paymentMode *string, response []byte) (bool, error)
	MarkFailed(ctx context.Context, merchantOrderID string, response []byte) (bool, error)
}

// ModelRepository reads try-on models and their pose images.
type ModelRepository interface {
	GetByID(ctx context.Context, id int64) (*TryOnModel, error)
	List(ctx context.Context) ([]TryOnModel, error)
}

// TaskRepository persists try-on tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *Task) (*Task, error)
	GetByID(ctx context.Context, id int64) (*Task, error)
	ListByUser(ctx context.Context, userID string) ([]Task, error)
}

// BatchRepository persists batches, garments and generated outputs.
type BatchRepository interface {
	CreateWithGarments(ctx context.Context, batch *Batch) (*Batch, error)
	GetByID(ctx context.Context, id int64) (*Batch, error)
	ListByTask(ctx context.Context, taskID int64) ([]Batch, error)
	// ClaimQueued atomically claims the oldest queued batch for processing.
	// ErrNotFound is returned when no work is available.
	ClaimQueued(ctx context.Context) (*Batch, error)
	MarkDone(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	SaveGenerated(ctx context.Context, images []GeneratedImage) error
	ListGenerated(ctx context.Context, batchID int64) ([]GeneratedImage, error)
}
