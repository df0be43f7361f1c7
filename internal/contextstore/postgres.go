package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kestrelworks/agentops/internal/task"
)

// Postgres is the long-lived context tier. Results written here survive
// the run and feed later inspection of what each task produced.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres wraps an existing connection pool. The pool is owned by
// the caller (see internal/store).
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Get(ctx context.Context, taskID string) (*task.Result, bool, error) {
	var payload []byte
	err := p.db.QueryRow(ctx,
		`SELECT payload FROM context_results WHERE key = $1`, taskID,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select context result %s: %w", taskID, err)
	}

	var res task.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, false, fmt.Errorf("decode context result %s: %w", taskID, err)
	}
	return &res, true, nil
}

func (p *Postgres) Set(ctx context.Context, taskID string, res *task.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode context result %s: %w", taskID, err)
	}
	_, err = p.db.Exec(ctx, `
		INSERT INTO context_results (key, payload)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload`,
		taskID, payload,
	)
	if err != nil {
		return fmt.Errorf("upsert context result %s: %w", taskID, err)
	}
	return nil
}
