package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/kestrelworks/agentops/internal/graph"
	"github.com/kestrelworks/agentops/internal/task"
)

// Outcome is the overall verdict of one run.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFailure        Outcome = "failure"
	OutcomeDeadlock       Outcome = "deadlock"
	OutcomeCancelled      Outcome = "cancelled"
)

// TaskReport is the terminal snapshot of one task.
type TaskReport struct {
	ID          string        `json:"task_id"`
	Description string        `json:"description"`
	AgentType   string        `json:"agent_type"`
	Status      task.Status   `json:"status"`
	Retries     int           `json:"retries"`
	Output      string        `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// Report is the final snapshot of a run. Task order matches draft
// insertion order, so identical graphs and outcomes produce identical
// reports no matter how concurrent completions interleaved.
type Report struct {
	RunID       string        `json:"run_id"`
	Goal        string        `json:"goal"`
	Outcome     Outcome       `json:"outcome"`
	Rounds      int           `json:"rounds"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Blocked     int           `json:"blocked"`
	Tasks       []TaskReport  `json:"tasks"`
	FinalOutput string        `json:"final_output,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// buildReport aggregates the graph's terminal state into a Report.
func buildReport(runID, goal string, outcome Outcome, rounds int, startedAt time.Time, g *graph.TaskGraph) *Report {
	succeeded, failed, blocked := g.Counts()

	r := &Report{
		RunID:       runID,
		Goal:        goal,
		Outcome:     outcome,
		Rounds:      rounds,
		Succeeded:   succeeded,
		Failed:      failed,
		Blocked:     blocked,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}
	r.Duration = r.CompletedAt.Sub(startedAt)

	var outputs []string
	for _, t := range g.Snapshot() {
		tr := TaskReport{
			ID:          t.ID,
			Description: t.Description,
			AgentType:   t.AgentType,
			Status:      t.Status,
			Retries:     t.Attempts,
			Error:       t.Err,
		}
		if t.Result != nil {
			tr.Output = t.Result.Output
			tr.Duration = t.Result.Duration
		}
		r.Tasks = append(r.Tasks, tr)

		if t.Status == task.StatusSucceeded && t.Result != nil {
			outputs = append(outputs, fmt.Sprintf("%s (%s):\n%s", t.ID, t.AgentType, t.Result.Output))
		}
	}
	r.FinalOutput = strings.Join(outputs, "\n\n")
	return r
}
