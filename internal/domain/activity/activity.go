package activity

import (
	"context"
	"fmt"
	"time"

	"smilepay/internal/infra/dbx"

	"go.uber.org/zap"
)

type Entry struct {
	ID        int64     `json:"id"`
	InvoiceID string    `json:"invoice_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

func (r *Repository) Insert(ctx context.Context, invoiceID, message string) error {
	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	_, err := r.q.Exec(ctx, `
		INSERT INTO activity_log (invoice_id, message) VALUES ($1, $2)
	`, invoiceID, message)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (r *Repository) ListByInvoice(ctx context.Context, invoiceID string, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(ctx, dbx.QueryTimeout)
	defer cancel()

	rows, err := r.q.Query(ctx, `
		SELECT id, invoice_id, message, created_at
		FROM activity_log
		WHERE invoice_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, invoiceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Recorder writes audit entries and never fails the caller: a failed insert
// is logged and dropped.
type Recorder struct {
	repo   *Repository
	logger *zap.SugaredLogger
}

func NewRecorder(repo *Repository, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) Log(ctx context.Context, invoiceID, message string) {
	r.logger.Infow("activity", "invoice_id", invoiceID, "message", message)
	if err := r.repo.Insert(ctx, invoiceID, message); err != nil {
		r.logger.Errorw("activity log write failed", "invoice_id", invoiceID, "err", err)
	}
}
