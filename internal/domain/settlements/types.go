package settlements

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Settlement is one payment recorded against an invoice. (invoice_id,
// transaction_id) is unique so a notification can only be credited once.
type Settlement struct {
	ID            int64           `json:"id"`
	InvoiceID     string          `json:"invoice_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Method        string          `json:"method"`
	TraceID       string          `json:"trace_id"`
	PaidAt        time.Time       `json:"paid_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

type Store interface {
	Exists(ctx context.Context, invoiceID, transactionID string) (bool, error)
	// Insert reports false when the pair was already recorded.
	Insert(ctx context.Context, s *Settlement) (bool, error)
	// InsertFailure remembers a declined notification; false means it was
	// seen before.
	InsertFailure(ctx context.Context, invoiceID, transactionID, reason string) (bool, error)
	List(ctx context.Context, invoiceID string, since *time.Time, limit, offset int) ([]*Settlement, int, error)
}
