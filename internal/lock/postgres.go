package lock

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Postgres holds a session level advisory lock on a dedicated pool
// connection for the lifetime of the region.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.SugaredLogger
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.SugaredLogger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

func (p *Postgres) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("advisory lock %s: %w", key, err)
	}

	return func() {
		// the caller's ctx may already be done
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, key); err != nil {
			p.logger.Errorw("advisory unlock failed", "key", key, "err", err)
			// drop the connection so the server releases the lock
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}, nil
}
