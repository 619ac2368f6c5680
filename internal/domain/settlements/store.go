package settlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smilepay/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

func (r *Repository) Exists(ctx context.Context, invoiceID, transactionID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM settlements WHERE invoice_id = $1 AND transaction_id = $2
		)
	`, invoiceID, transactionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check settlement: %w", err)
	}
	return exists, nil
}

func (r *Repository) Insert(ctx context.Context, s *Settlement) (bool, error) {
	err := r.q.QueryRow(ctx, `
		INSERT INTO settlements (invoice_id, transaction_id, amount, fee, method, trace_id, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (invoice_id, transaction_id) DO NOTHING
		RETURNING id, created_at
	`, s.InvoiceID, s.TransactionID, s.Amount, s.Fee, s.Method, s.TraceID, s.PaidAt).
		Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert settlement: %w", err)
	}
	return true, nil
}

func (r *Repository) InsertFailure(ctx context.Context, invoiceID, transactionID, reason string) (bool, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO settlement_failures (invoice_id, transaction_id, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (invoice_id, transaction_id) DO NOTHING
	`, invoiceID, transactionID, reason)
	if err != nil {
		return false, fmt.Errorf("insert settlement failure: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List returns settlements newest first. An empty invoiceID or nil since
// disables that filter.
func (r *Repository) List(
	ctx context.Context,
	invoiceID string,
	since *time.Time,
	limit, offset int,
) ([]*Settlement, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	rows, err := r.q.Query(ctx, `
SELECT
  id,
  invoice_id,
  transaction_id,
  amount,
  fee,
  method,
  trace_id,
  paid_at,
  created_at,
  COUNT(*) OVER() AS total_count
FROM settlements
WHERE
  ($1 = '' OR invoice_id = $1)
  AND ($2::timestamptz IS NULL OR paid_at >= $2::timestamptz)
ORDER BY paid_at DESC, id DESC
LIMIT $3 OFFSET $4
`,
		invoiceID,
		since,
		limit,
		offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()

	var (
		out   []*Settlement
		total int
	)
	for rows.Next() {
		var s Settlement
		var t int
		if err := rows.Scan(
			&s.ID,
			&s.InvoiceID,
			&s.TransactionID,
			&s.Amount,
			&s.Fee,
			&s.Method,
			&s.TraceID,
			&s.PaidAt,
			&s.CreatedAt,
			&t,
		); err != nil {
			return nil, 0, fmt.Errorf("scan settlement: %w", err)
		}
		if total == 0 {
			total = t
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	return out, total, nil
}
