package deliveries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"smilepay/internal/infra/dbx"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

func (r *Repository) Insert(ctx context.Context, d *Delivery) error {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Outcome == "" {
		d.Outcome = OutcomeReceived
	}

	payload, err := json.Marshal(d.Payload)
	if err != nil {
		return fmt.Errorf("encode callback payload: %w", err)
	}

	err = r.q.QueryRow(ctx, `
		INSERT INTO callback_deliveries (id, invoice_id, transaction_id, http_method, payload, outcome)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING received_at
	`, d.ID, d.InvoiceID, d.TransactionID, d.HTTPMethod, payload, d.Outcome).Scan(&d.ReceivedAt)
	if err != nil {
		return fmt.Errorf("insert callback delivery: %w", err)
	}
	return nil
}

func (r *Repository) SetOutcome(ctx context.Context, id uuid.UUID, invoiceID, transactionID, outcome, errText string) error {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	_, err := r.q.Exec(ctx, `
		UPDATE callback_deliveries
		   SET invoice_id     = COALESCE(NULLIF($2, ''), invoice_id),
		       transaction_id = COALESCE(NULLIF($3, ''), transaction_id),
		       outcome        = $4,
		       error          = $5,
		       handled_at     = now()
		 WHERE id = $1
	`, id, invoiceID, transactionID, outcome, errText)
	if err != nil {
		return fmt.Errorf("update callback delivery: %w", err)
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	row := r.q.QueryRow(ctx, `
		SELECT id, invoice_id, transaction_id, http_method, payload, outcome, error, received_at, handled_at
		FROM callback_deliveries
		WHERE id = $1
	`, id)

	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get callback delivery: %w", err)
	}
	return d, nil
}

func (r *Repository) ListByInvoice(ctx context.Context, invoiceID string, limit int) ([]*Delivery, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	rows, err := r.q.Query(ctx, `
		SELECT id, invoice_id, transaction_id, http_method, payload, outcome, error, received_at, handled_at
		FROM callback_deliveries
		WHERE invoice_id = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, invoiceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list callback deliveries: %w", err)
	}
	defer rows.Close()

	var out []*Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan callback delivery: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanDelivery(row pgx.Row) (*Delivery, error) {
	var (
		d       Delivery
		payload []byte
	)
	if err := row.Scan(
		&d.ID, &d.InvoiceID, &d.TransactionID, &d.HTTPMethod, &payload,
		&d.Outcome, &d.Error, &d.ReceivedAt, &d.HandledAt,
	); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &d.Payload); err != nil {
			return nil, fmt.Errorf("decode callback payload: %w", err)
		}
	}
	return &d, nil
}
