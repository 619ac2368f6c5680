package invoices

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusUnpaid    Status = "Unpaid"
	StatusPaid      Status = "Paid"
	StatusCancelled Status = "Cancelled"
)

// Invoice is the billing platform's invoice row. The integration reads it,
// appends notes and flips it to Paid; everything else belongs to the host.
type Invoice struct {
	ID            string          `json:"id"`
	ClientID      string          `json:"client_id"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Status        Status          `json:"status"`
	Notes         string          `json:"notes,omitempty"`
	ClientName    string          `json:"client_name"`
	ClientEmail   string          `json:"client_email"`
	ClientPhone   string          `json:"client_phone"`
	ClientAddress string          `json:"client_address"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (i *Invoice) IsPaid() bool { return i.Status == StatusPaid }

// JoinNote appends text to notes separated by a blank line.
func JoinNote(notes, text string) string {
	notes = strings.TrimRight(notes, "\n ")
	if notes == "" {
		return text
	}
	return notes + "\n\n" + text
}

type Store interface {
	GetByID(ctx context.Context, id string) (*Invoice, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*Invoice, error)
	GetInvoiceNotes(ctx context.Context, id string) (string, error)
	SetInvoiceNotes(ctx context.Context, id, notes string) error
	AppendNote(ctx context.Context, id, text string) error
	MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error)
}
