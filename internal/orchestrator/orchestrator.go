// Package orchestrator contains the scheduling core: a round-based
// concurrent dispatch loop over a validated task graph, with a bounded
// retry policy, cascading skip of failed tasks' dependents, and a final
// aggregated report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelworks/agentops/internal/agent"
	"github.com/kestrelworks/agentops/internal/contextstore"
	"github.com/kestrelworks/agentops/internal/decomposer"
	"github.com/kestrelworks/agentops/internal/executor"
	"github.com/kestrelworks/agentops/internal/graph"
	"github.com/kestrelworks/agentops/internal/task"
)

// Config carries a run's tunables.
type Config struct {
	// MaxRetries is the per-task retry budget. Zero means the default
	// of task.DefaultMaxRetries; negative disables retries.
	MaxRetries int
	// MaxRounds is the safety limit on scheduling rounds.
	MaxRounds int
	// Concurrency bounds how many tasks run in parallel within a round.
	Concurrency int
	// TaskTimeout is the per-task execution deadline. Zero disables it.
	TaskTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = task.DefaultMaxRetries
	} else if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = 50
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	return c
}

// HistorySink persists finished run reports.
type HistorySink interface {
	SaveRun(ctx context.Context, r *Report) error
}

// Orchestrator coordinates one goal at a time: decompose, build the
// graph, drive rounds of concurrent execution, aggregate the report.
// It is the sole mutator of task state during a run.
type Orchestrator struct {
	decomposer decomposer.Decomposer
	registry   *agent.Registry
	executor   *executor.Executor
	contexts   contextstore.Store // optional shared backing store
	bus        *EventBus          // optional run event feed
	history    HistorySink        // optional run archive
	cfg        Config
	logger     *zap.Logger
}

// New creates an orchestrator.
func New(dec decomposer.Decomposer, reg *agent.Registry, cfg Config, logger *zap.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		decomposer: dec,
		registry:   reg,
		executor:   executor.New(reg, cfg.TaskTimeout, logger),
		cfg:        cfg,
		logger:     logger,
	}
}

// SetContextStore installs a shared backing store for task results.
// It is scoped per run; without one, each run gets a private in-memory
// store discarded at completion.
func (o *Orchestrator) SetContextStore(s contextstore.Store) { o.contexts = s }

// SetEventBus enables the run event feed.
func (o *Orchestrator) SetEventBus(b *EventBus) { o.bus = b }

// SetHistory enables run report persistence.
func (o *Orchestrator) SetHistory(h HistorySink) { o.history = h }

// Run decomposes the goal and executes the resulting graph.
func (o *Orchestrator) Run(ctx context.Context, goal string) (*Report, error) {
	if o.decomposer == nil {
		return nil, errors.New("no decomposer configured")
	}
	drafts, err := o.decomposer.Decompose(ctx, goal, o.registry.Types())
	if err != nil {
		return nil, fmt.Errorf("decompose: %w", err)
	}
	return o.RunDrafts(ctx, goal, drafts)
}

// RunDrafts executes an already-decomposed task list. A graph that
// fails validation returns a *graph.ValidationError before any task is
// dispatched.
func (o *Orchestrator) RunDrafts(ctx context.Context, goal string, drafts []task.TaskDraft) (*Report, error) {
	start := time.Now()
	runID := uuid.New().String()

	g, err := graph.Build(drafts, o.cfg.MaxRetries)
	if err != nil {
		return nil, err
	}

	contexts := o.contexts
	if contexts == nil {
		contexts = contextstore.NewMemory()
	} else {
		contexts = contextstore.Scope(contexts, runID)
	}

	o.logger.Info("run started",
		zap.String("run", runID),
		zap.String("goal", goal),
		zap.Int("tasks", g.Len()))
	o.publish(ctx, &Event{RunID: runID, Type: EventRunStarted, Detail: goal})

	rounds, execErr := o.execute(ctx, runID, g, contexts)

	var dl *DeadlockError
	var outcome Outcome
	succeeded, failed, blocked := g.Counts()
	switch {
	case execErr != nil && errors.As(execErr, &dl):
		outcome = OutcomeDeadlock
	case execErr != nil:
		outcome = OutcomeCancelled
	case failed == 0 && blocked == 0:
		outcome = OutcomeSuccess
	case succeeded > 0:
		outcome = OutcomePartialFailure
	default:
		outcome = OutcomeFailure
	}

	report := buildReport(runID, goal, outcome, rounds, start, g)

	// The run is over; deliver completion even if ctx was cancelled.
	done := context.WithoutCancel(ctx)
	o.publish(done, &Event{RunID: runID, Type: EventRunCompleted, Round: rounds, Detail: string(outcome)})
	if o.history != nil {
		if herr := o.history.SaveRun(done, report); herr != nil {
			o.logger.Warn("run history save failed", zap.String("run", runID), zap.Error(herr))
		}
	}

	o.logger.Info("run completed",
		zap.String("run", runID),
		zap.String("outcome", string(outcome)),
		zap.Int("rounds", rounds),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Int("blocked", blocked),
		zap.Duration("duration", report.Duration))

	if outcome == OutcomeDeadlock {
		return report, execErr
	}
	return report, nil
}

// execute drives the round loop until every task is terminal, the run
// is cancelled, or a deadlock guard trips.
func (o *Orchestrator) execute(ctx context.Context, runID string, g *graph.TaskGraph, contexts contextstore.Store) (int, error) {
	rounds := 0
	progressed := true

	for {
		if err := ctx.Err(); err != nil {
			return rounds, err
		}
		if g.AllTerminal() {
			return rounds, nil
		}
		if rounds >= o.cfg.MaxRounds {
			return rounds, &DeadlockError{
				RunID:      runID,
				Rounds:     rounds,
				Unresolved: g.Unresolved(),
				Reason:     "maximum rounds reached",
			}
		}

		ready := g.Ready()
		if len(ready) == 0 {
			// Unresolved tasks but nothing to dispatch. Allow one pass
			// in case the previous round just transitioned something;
			// a second empty pass means the run is stuck.
			if !progressed {
				return rounds, &DeadlockError{
					RunID:      runID,
					Rounds:     rounds,
					Unresolved: g.Unresolved(),
					Reason:     "no task can make progress",
				}
			}
			progressed = false
			continue
		}

		rounds++
		o.runRound(ctx, runID, rounds, g, contexts, ready)
		progressed = true
	}
}

type roundOutcome struct {
	id  string
	res *task.Result
	err error
}

// runRound dispatches one ready set concurrently and applies every
// outcome after the barrier, in dispatch order.
func (o *Orchestrator) runRound(ctx context.Context, runID string, round int, g *graph.TaskGraph, contexts contextstore.Store, ready []*task.AgentTask) {
	o.logger.Info("dispatching round",
		zap.String("run", runID),
		zap.Int("round", round),
		zap.Int("tasks", len(ready)))
	o.publish(ctx, &Event{RunID: runID, Type: EventRoundStarted, Round: round, Detail: strconv.Itoa(len(ready))})

	outcomes := make([]roundOutcome, len(ready))
	var eg errgroup.Group
	eg.SetLimit(o.cfg.Concurrency)

	for i, t := range ready {
		if err := g.MarkRunning(t.ID); err != nil {
			outcomes[i] = roundOutcome{id: t.ID, err: err}
			continue
		}
		o.publish(ctx, &Event{RunID: runID, TaskID: t.ID, Type: EventTaskStarted, Round: round})

		i, t := i, t
		eg.Go(func() error {
			res, err := o.executor.Execute(ctx, t, contexts)
			outcomes[i] = roundOutcome{id: t.ID, res: res, err: err}
			return nil
		})
	}

	// Round barrier: nothing below runs until every dispatched task
	// has returned.
	_ = eg.Wait()

	for _, oc := range outcomes {
		o.applyOutcome(ctx, runID, round, g, contexts, oc)
	}
}

// applyOutcome moves one task to its post-round state: context write +
// Succeeded, retry, or permanent failure with cascading skip.
func (o *Orchestrator) applyOutcome(ctx context.Context, runID string, round int, g *graph.TaskGraph, contexts contextstore.Store, oc roundOutcome) {
	if oc.err == nil {
		// Record the result before the task is observable as Succeeded
		// so a dependent never dispatches against a missing result.
		if werr := contexts.Set(ctx, oc.id, oc.res); werr != nil {
			o.logger.Error("context write failed", zap.String("task", oc.id), zap.Error(werr))
			oc.err = &executor.ExecutionError{TaskID: oc.id, Err: fmt.Errorf("record result: %w", werr)}
		} else {
			if err := g.MarkSucceeded(oc.id, oc.res); err != nil {
				o.logger.Error("mark succeeded failed", zap.String("task", oc.id), zap.Error(err))
				return
			}
			o.publish(ctx, &Event{RunID: runID, TaskID: oc.id, Type: EventTaskSucceeded, Round: round})
			return
		}
	}

	// A task interrupted by run cancellation goes back to Pending
	// without consuming its retry budget; the outcome belongs to the
	// cancellation, not the task.
	if ctx.Err() != nil && errors.Is(oc.err, context.Canceled) {
		if err := g.ResetPending(oc.id); err != nil {
			o.logger.Warn("reset pending failed", zap.String("task", oc.id), zap.Error(err))
		}
		return
	}

	var unknown *executor.UnknownAgentTypeError
	if errors.As(oc.err, &unknown) {
		// Retrying an unregistered agent type cannot succeed; fail
		// permanently without touching the retry budget.
		if err := g.MarkFailed(oc.id, oc.err.Error()); err != nil {
			o.logger.Warn("mark failed failed", zap.String("task", oc.id), zap.Error(err))
			return
		}
		o.publish(ctx, &Event{RunID: runID, TaskID: oc.id, Type: EventTaskFailed, Round: round, Detail: oc.err.Error()})
		o.cascade(ctx, runID, round, g, oc.id)
		return
	}

	retried, terr := g.RecordFailure(oc.id, oc.err.Error())
	if terr != nil {
		o.logger.Warn("record failure failed", zap.String("task", oc.id), zap.Error(terr))
		return
	}
	if retried {
		o.logger.Info("task will retry",
			zap.String("task", oc.id),
			zap.String("error", oc.err.Error()))
		o.publish(ctx, &Event{RunID: runID, TaskID: oc.id, Type: EventTaskRetrying, Round: round, Detail: oc.err.Error()})
		return
	}

	o.logger.Warn("task permanently failed",
		zap.String("task", oc.id),
		zap.String("error", oc.err.Error()))
	o.publish(ctx, &Event{RunID: runID, TaskID: oc.id, Type: EventTaskFailed, Round: round, Detail: oc.err.Error()})
	o.cascade(ctx, runID, round, g, oc.id)
}

// cascade blocks every transitive dependent of a permanently failed
// task. Blocking consumes no retries.
func (o *Orchestrator) cascade(ctx context.Context, runID string, round int, g *graph.TaskGraph, failedID string) {
	for _, depID := range g.TransitiveDependents(failedID) {
		if t, ok := g.Get(depID); !ok || t.Status.Terminal() {
			continue
		}
		if err := g.MarkBlocked(depID, "dependency "+failedID+" failed"); err != nil {
			continue
		}
		o.logger.Info("task blocked",
			zap.String("task", depID),
			zap.String("failed_dependency", failedID))
		o.publish(ctx, &Event{RunID: runID, TaskID: depID, Type: EventTaskBlocked, Round: round, Detail: failedID})
	}
}

func (o *Orchestrator) publish(ctx context.Context, ev *Event) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, ev); err != nil {
		o.logger.Debug("event publish failed", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
