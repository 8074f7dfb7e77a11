package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vesture/internal/domain"
)

const transactionColumns = `id, user_id, plan_id, merchant_order_id, gateway_transaction_id, amount_cents, currency, status, payment_mode, request_payload, response_payload, created_at, updated_at`

// TransactionRepositoryPG implements domain.TransactionRepository backed by PostgreSQL.
type TransactionRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewTransactionRepository creates a new transaction repo.
func NewTransactionRepository(pool *pgxpool.Pool) *TransactionRepositoryPG {
	return &TransactionRepositoryPG{pool: pool}
}

// Create inserts a PENDING transaction at order-creation time.
func (r *TransactionRepositoryPG) Create(ctx context.Context, txn *domain.Transaction) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `
INSERT INTO transactions (user_id, plan_id, merchant_order_id, amount_cents, currency, status, request_payload, response_payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+transactionColumns+`;
`, txn.UserID, txn.PlanID, txn.MerchantOrderID, txn.AmountCents, txn.Currency, domain.TransactionStatusPending, txn.RequestPayload, txn.ResponsePayload)
	return scanTransaction(row)
}

// GetByMerchantOrderID fetches a transaction by its gateway-assigned order id.
func (r *TransactionRepositoryPG) GetByMerchantOrderID(ctx context.Context, merchantOrderID string) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE merchant_order_id = $1`, merchantOrderID)
	return scanTransaction(row)
}

// MarkCompleted transitions PENDING -> COMPLETED with a compare-and-swap on
// the status column. Duplicate webhook deliveries and concurrent polls race
// here; only the first caller observes applied=true.
func (r *TransactionRepositoryPG) MarkCompleted(ctx context.Context, merchantOrderID string, gatewayTxnID, paymentMode *string, response []byte) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE transactions
SET status = $2,
    gateway_transaction_id = COALESCE($3, gateway_transaction_id),
    payment_mode = COALESCE($4, payment_mode),
    response_payload = COALESCE($5, response_payload),
    updated_at = now()
WHERE merchant_order_id = $1 AND status = $6;
`, merchantOrderID, domain.TransactionStatusCompleted, gatewayTxnID, paymentMode, response, domain.TransactionStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed transitions PENDING -> FAILED.
func (r *TransactionRepositoryPG) MarkFailed(ctx context.Context, merchantOrderID string, response []byte) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
UPDATE transactions
SET status = $2,
    response_payload = COALESCE($3, response_payload),
    updated_at = now()
WHERE merchant_order_id = $1 AND status = $4;
`, merchantOrderID, domain.TransactionStatusFailed, response, domain.TransactionStatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := row.Scan(&t.ID, &t.UserID, &t.PlanID, &t.MerchantOrderID, &t.GatewayTransactionID, &t.AmountCents, &t.Currency, &t.Status, &t.PaymentMode, &t.RequestPayload, &t.ResponsePayload, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}
