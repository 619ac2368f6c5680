package deliveries

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Delivery is one raw notification as it reached the callback endpoint.
type Delivery struct {
	ID            uuid.UUID         `json:"id"`
	InvoiceID     string            `json:"invoice_id"`
	TransactionID string            `json:"transaction_id"`
	HTTPMethod    string            `json:"http_method"`
	Payload       map[string]string `json:"payload"`
	Outcome       string            `json:"outcome"`
	Error         string            `json:"error,omitempty"`
	ReceivedAt    time.Time         `json:"received_at"`
	HandledAt     *time.Time        `json:"handled_at,omitempty"`
}

const OutcomeReceived = "received"

type Store interface {
	Insert(ctx context.Context, d *Delivery) error
	SetOutcome(ctx context.Context, id uuid.UUID, invoiceID, transactionID, outcome, errText string) error
	GetByID(ctx context.Context, id uuid.UUID) (*Delivery, error)
	ListByInvoice(ctx context.Context, invoiceID string, limit int) ([]*Delivery, error)
}
