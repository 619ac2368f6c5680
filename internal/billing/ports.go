package billing

import (
	"context"

	"smilepay/internal/domain/invoices"
	"smilepay/internal/domain/settlements"
)

// TemplatePaymentConfirmation is the notification sent once an invoice is paid.
const TemplatePaymentConfirmation = "Payment Confirmation"

type InvoiceReader interface {
	// GetByID returns nil, nil for an unknown invoice.
	GetByID(ctx context.Context, id string) (*invoices.Invoice, error)
}

// SettlementLedger records payments. ApplySettlement must check and record
// in one atomic step and report false if the invoice is no longer Unpaid.
// RecordFailure must leave a Paid invoice untouched, checked in the same
// step as the write.
type SettlementLedger interface {
	IsSettled(ctx context.Context, invoiceID, transactionID string) (bool, error)
	ApplySettlement(ctx context.Context, s *settlements.Settlement, note string) (bool, error)
	RecordFailure(ctx context.Context, invoiceID, transactionID, reason, note string) (bool, error)
}

// PaymentNotice is what a notifier gets after a settlement.
type PaymentNotice struct {
	Invoice    *invoices.Invoice
	Settlement *settlements.Settlement
	MethodName string
}

// Notifier delivers best-effort messages. Errors are logged by the caller.
type Notifier interface {
	Notify(ctx context.Context, template string, notice PaymentNotice) error
}

// ActivityLogger is the audit trail. It must not fail the caller.
type ActivityLogger interface {
	Log(ctx context.Context, invoiceID, message string)
}

type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
