package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smilepay/internal/infra/dbx"
	"smilepay/internal/session"
	"smilepay/internal/smilepay"

	"github.com/jackc/pgx/v5"
)

// Repository keeps payment sessions in the payment_sessions table, one row
// per invoice.
type Repository struct {
	q   dbx.Querier
	now session.Clock
}

var _ session.Store = (*Repository)(nil)

func NewRepository(q dbx.Querier, now session.Clock) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{q: q, now: now}
}

func (r *Repository) Load(ctx context.Context, invoiceID string) (*session.PaymentSession, error) {
	ps, err := r.Get(ctx, invoiceID)
	if err != nil || ps == nil {
		return nil, err
	}
	if ps.Expired(r.now()) {
		return nil, nil
	}
	return ps, nil
}

func (r *Repository) Get(ctx context.Context, invoiceID string) (*session.PaymentSession, error) {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	var (
		ps        session.PaymentSession
		method    int16
		expiresAt *time.Time
		fields    []byte
	)
	err := r.q.QueryRow(ctx, `
		SELECT invoice_id, provider_code, method, amount_due, expires_at, fields, created_at
		FROM payment_sessions
		WHERE invoice_id = $1
	`, invoiceID).Scan(&ps.InvoiceID, &ps.ProviderCode, &method, &ps.AmountDue, &expiresAt, &fields, &ps.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment session: %w", err)
	}

	ps.Method = smilepay.Method(method)
	if expiresAt != nil {
		ps.ExpiresAt = *expiresAt
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &ps.Fields); err != nil {
			return nil, fmt.Errorf("decode payment session fields: %w", err)
		}
	}
	return &ps, nil
}

// Save upserts the session for its invoice.
func (r *Repository) Save(ctx context.Context, ps *session.PaymentSession) error {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	fields, err := json.Marshal(ps.Fields)
	if err != nil {
		return fmt.Errorf("encode payment session fields: %w", err)
	}

	var expiresAt *time.Time
	if !ps.ExpiresAt.IsZero() {
		expiresAt = &ps.ExpiresAt
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO payment_sessions (invoice_id, provider_code, method, amount_due, expires_at, fields, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (invoice_id) DO UPDATE
		   SET provider_code = EXCLUDED.provider_code,
		       method        = EXCLUDED.method,
		       amount_due    = EXCLUDED.amount_due,
		       expires_at    = EXCLUDED.expires_at,
		       fields        = EXCLUDED.fields,
		       created_at    = EXCLUDED.created_at,
		       updated_at    = now()
	`, ps.InvoiceID, ps.ProviderCode, int16(ps.Method), ps.AmountDue, expiresAt, fields, ps.CreatedAt)
	if err != nil {
		return fmt.Errorf("save payment session: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, invoiceID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	if _, err := r.q.Exec(ctx, `DELETE FROM payment_sessions WHERE invoice_id = $1`, invoiceID); err != nil {
		return fmt.Errorf("delete payment session: %w", err)
	}
	return nil
}
