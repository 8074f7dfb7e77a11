package domain

import "time"

// TransactionStatus enumerates the payment transaction lifecycle. A
// transaction is terminal once it leaves PENDING.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// Transaction records an external payment-gateway order correlated to a user
// and, once resolved, a plan. Raw gateway payloads are retained for audit.
type Transaction struct {
	ID                   int64
	UserID               string
	PlanID               *int64
	MerchantOrderID      string
	GatewayTransactionID *string
	AmountCents          int64
	Currency             string
	Status               TransactionStatus
	PaymentMode          *string
	RequestPayload       []byte
	ResponsePayload      []byte
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
