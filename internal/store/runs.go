package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kestrelworks/agentops/internal/orchestrator"
	"github.com/kestrelworks/agentops/internal/task"
)

// SaveRun persists a finished run report and its per-task outcomes.
// Implements orchestrator.HistorySink.
func (s *Store) SaveRun(ctx context.Context, r *orchestrator.Report) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save run: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO runs (id, goal, outcome, rounds, succeeded, failed, blocked, final_output, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.RunID, r.Goal, string(r.Outcome), r.Rounds,
		r.Succeeded, r.Failed, r.Blocked, r.FinalOutput,
		r.StartedAt, r.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}

	for i, t := range r.Tasks {
		_, err = tx.Exec(ctx, `
			INSERT INTO run_tasks (run_id, position, task_id, description, agent_type, status, retries, output, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.RunID, i, t.ID, t.Description, t.AgentType,
			string(t.Status), t.Retries, t.Output, t.Error,
		)
		if err != nil {
			return fmt.Errorf("insert run task %s/%s: %w", r.RunID, t.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save run: %w", err)
	}
	s.logger.Info("run saved", zap.String("run", r.RunID))
	return nil
}

// RunSummary is one row of the run history listing.
type RunSummary struct {
	RunID     string
	Goal      string
	Outcome   string
	Rounds    int
	Succeeded int
	Failed    int
	Blocked   int
}

// RecentRuns lists the most recently completed runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, goal, outcome, rounds, succeeded, failed, blocked
		FROM runs
		ORDER BY completed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var rs RunSummary
		if err := rows.Scan(&rs.RunID, &rs.Goal, &rs.Outcome, &rs.Rounds, &rs.Succeeded, &rs.Failed, &rs.Blocked); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, rs)
	}
	return out, rows.Err()
}

// RunTasks returns the per-task outcomes of one run in report order.
func (s *Store) RunTasks(ctx context.Context, runID string) ([]orchestrator.TaskReport, error) {
	rows, err := s.db.Query(ctx, `
		SELECT task_id, description, agent_type, status, retries, output, error
		FROM run_tasks
		WHERE run_id = $1
		ORDER BY position ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("list run tasks: %w", err)
	}
	defer rows.Close()

	var out []orchestrator.TaskReport
	for rows.Next() {
		var tr orchestrator.TaskReport
		var status string
		if err := rows.Scan(&tr.ID, &tr.Description, &tr.AgentType, &status, &tr.Retries, &tr.Output, &tr.Error); err != nil {
			return nil, fmt.Errorf("scan run task: %w", err)
		}
		tr.Status = task.Status(status)
		out = append(out, tr)
	}
	return out, rows.Err()
}
