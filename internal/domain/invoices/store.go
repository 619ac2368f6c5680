package invoices

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smilepay/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("invoice not found")

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

const selectInvoice = `
	SELECT id, client_id, total, currency, status, notes,
	       client_name, client_email, client_phone, client_address,
	       paid_at, created_at, updated_at
	FROM invoices
	WHERE id = $1`

func (r *Repository) GetByID(ctx context.Context, id string) (*Invoice, error) {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	return r.get(ctx, selectInvoice, id)
}

func (r *Repository) GetForUpdate(ctx context.Context, id string) (*Invoice, error) {
	return r.get(ctx, selectInvoice+" FOR UPDATE", id)
}

func (r *Repository) get(ctx context.Context, query, id string) (*Invoice, error) {
	var inv Invoice
	err := r.q.QueryRow(ctx, query, id).Scan(
		&inv.ID, &inv.ClientID, &inv.Total, &inv.Currency, &inv.Status, &inv.Notes,
		&inv.ClientName, &inv.ClientEmail, &inv.ClientPhone, &inv.ClientAddress,
		&inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

func (r *Repository) GetInvoiceNotes(ctx context.Context, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	var notes string
	err := r.q.QueryRow(ctx, `SELECT notes FROM invoices WHERE id = $1`, id).Scan(&notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get invoice notes: %w", err)
	}
	return notes, nil
}

func (r *Repository) SetInvoiceNotes(ctx context.Context, id, notes string) error {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE invoices SET notes = $2, updated_at = now() WHERE id = $1
	`, id, notes)
	if err != nil {
		return fmt.Errorf("set invoice notes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendNote adds text after the existing notes without rewriting them.
func (r *Repository) AppendNote(ctx context.Context, id, text string) error {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	tag, err := r.q.Exec(ctx, `
		UPDATE invoices
		   SET notes = CASE WHEN btrim(notes, E' \n') = '' THEN $2
		                    ELSE rtrim(notes, E' \n') || E'\n\n' || $2 END,
		       updated_at = now()
		 WHERE id = $1
	`, id, text)
	if err != nil {
		return fmt.Errorf("append invoice note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid moves an unpaid invoice to Paid. It reports false when the
// invoice was already paid or does not exist.
func (r *Repository) MarkPaid(ctx context.Context, id string, paidAt time.Time) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE invoices
		   SET status = 'Paid', paid_at = $2, updated_at = now()
		 WHERE id = $1 AND status = 'Unpaid'
	`, id, paidAt)
	if err != nil {
		return false, fmt.Errorf("mark invoice paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Create inserts an invoice. Invoices normally come from the host; this is
// used for seeding and tests.
func (r *Repository) Create(ctx context.Context, inv *Invoice) error {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	if inv.Status == "" {
		inv.Status = StatusUnpaid
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO invoices (id, client_id, total, currency, status, notes,
		                      client_name, client_email, client_phone, client_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, inv.ID, inv.ClientID, inv.Total, inv.Currency, inv.Status, inv.Notes,
		inv.ClientName, inv.ClientEmail, inv.ClientPhone, inv.ClientAddress,
	).Scan(&inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}
