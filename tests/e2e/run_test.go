package e2e

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/agentops/internal/agent"
	"github.com/kestrelworks/agentops/internal/contextstore"
	"github.com/kestrelworks/agentops/internal/orchestrator"
	pgstore "github.com/kestrelworks/agentops/internal/store"
	"github.com/kestrelworks/agentops/internal/task"
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	testLogger, _ = zap.NewDevelopment()

	// 1. Start PostgreSQL
	pgDSN, pgCleanup, err := startPostgres(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
		os.Exit(1)
	}
	defer pgCleanup()

	testPGStore, err = pgstore.New(pgDSN, testLogger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pg store: %v\n", err)
		os.Exit(1)
	}
	defer testPGStore.Close()

	// Run migrations
	if err := testPGStore.Migrate(ctx, "../../migrations"); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	// 2. Start Redis
	redisURL, redisCleanup, err := startRedis(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer redisCleanup()
	testRedisURL = redisURL

	os.Exit(m.Run())
}

func testRegistry(t *testing.T) *agent.Registry {
	t.Helper()
	reg := agent.NewRegistry(zap.NewNop())
	for _, at := range []string{"research", "analysis", "writing"} {
		reg.Register(at, &agent.Echo{AgentType: at})
	}
	return reg
}

func pipelineDrafts() []task.TaskDraft {
	return []task.TaskDraft{
		{ID: "gather", Description: "gather sources", AgentType: "research"},
		{ID: "sift", Description: "sift findings", AgentType: "analysis", DependsOn: []string{"gather"}},
		{ID: "draft", Description: "draft summary", AgentType: "writing", DependsOn: []string{"sift"}},
	}
}

func TestRedisContextStore(t *testing.T) {
	ctx := context.Background()

	cs, err := contextstore.NewRedis(testRedisURL, time.Minute, testLogger)
	if err != nil {
		t.Fatalf("redis context store: %v", err)
	}
	defer cs.Close()

	if _, ok, err := cs.Get(ctx, "redis-miss"); err != nil || ok {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}

	want := &task.Result{TaskID: "t1", AgentType: "research", Output: "found it", Meta: map[string]string{"source": "web"}}
	if err := cs.Set(ctx, "redis-t1", want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := cs.Get(ctx, "redis-t1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Output != "found it" || got.Meta["source"] != "web" {
		t.Errorf("round trip lost data: %+v", got)
	}
}

func TestPostgresContextStore(t *testing.T) {
	ctx := context.Background()
	cs := contextstore.NewPostgres(testPGStore.Pool())

	if _, ok, err := cs.Get(ctx, "pg-miss"); err != nil || ok {
		t.Fatalf("miss: ok=%v err=%v", ok, err)
	}

	if err := cs.Set(ctx, "pg-t1", &task.Result{TaskID: "t1", Output: "v1"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	// Upsert: a second write for the same key replaces the payload.
	if err := cs.Set(ctx, "pg-t1", &task.Result{TaskID: "t1", Output: "v2"}); err != nil {
		t.Fatalf("second set: %v", err)
	}

	got, ok, err := cs.Get(ctx, "pg-t1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Output != "v2" {
		t.Errorf("output %q, want v2", got.Output)
	}
}

func TestEventBusPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bus, err := orchestrator.NewEventBus(testRedisURL, testLogger)
	if err != nil {
		t.Fatalf("event bus: %v", err)
	}
	defer bus.Close()

	const runID = "e2e-bus-run"
	types := []orchestrator.EventType{
		orchestrator.EventRunStarted,
		orchestrator.EventTaskStarted,
		orchestrator.EventTaskSucceeded,
		orchestrator.EventRunCompleted,
	}
	for _, et := range types {
		if err := bus.Publish(ctx, &orchestrator.Event{RunID: runID, Type: et}); err != nil {
			t.Fatalf("publish %s: %v", et, err)
		}
	}

	ch := bus.Subscribe(ctx, runID)
	var got []orchestrator.EventType
	for len(got) < len(types) {
		select {
		case ev := <-ch:
			got = append(got, ev.Type)
		case <-ctx.Done():
			t.Fatalf("timed out, received %v", got)
		}
	}
	for i, et := range types {
		if got[i] != et {
			t.Errorf("event %d type %s, want %s", i, got[i], et)
		}
	}
}

func TestRunHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()

	o := orchestrator.New(nil, testRegistry(t), orchestrator.Config{}, testLogger)
	o.SetHistory(testPGStore)

	report, err := o.RunDrafts(ctx, "research the launch market and write a report", pipelineDrafts())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != orchestrator.OutcomeSuccess {
		t.Fatalf("outcome %s, want success", report.Outcome)
	}

	runs, err := testPGStore.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	var found bool
	for _, r := range runs {
		if r.RunID == report.RunID {
			found = true
			if r.Outcome != string(orchestrator.OutcomeSuccess) || r.Succeeded != 3 {
				t.Errorf("stored summary %+v", r)
			}
		}
	}
	if !found {
		t.Fatalf("run %s not in history", report.RunID)
	}

	tasks, err := testPGStore.RunTasks(ctx, report.RunID)
	if err != nil {
		t.Fatalf("run tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	for i, want := range []string{"gather", "sift", "draft"} {
		if tasks[i].ID != want {
			t.Errorf("task %d id %s, want %s (report order lost)", i, tasks[i].ID, want)
		}
		if tasks[i].Status != task.StatusSucceeded {
			t.Errorf("task %s status %s", tasks[i].ID, tasks[i].Status)
		}
	}
}

func TestRunHistoryRecordsFailures(t *testing.T) {
	ctx := context.Background()

	reg := testRegistry(t)
	o := orchestrator.New(nil, reg, orchestrator.Config{MaxRetries: -1}, testLogger)
	o.SetHistory(testPGStore)

	drafts := []task.TaskDraft{
		{ID: "gather", Description: "gather sources", AgentType: "research"},
		{ID: "broken", Description: "no such agent", AgentType: "mystery", DependsOn: []string{"gather"}},
		{ID: "draft", Description: "draft summary", AgentType: "writing", DependsOn: []string{"broken"}},
	}
	report, err := o.RunDrafts(ctx, "pipeline with a broken stage", drafts)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != orchestrator.OutcomePartialFailure {
		t.Fatalf("outcome %s, want partial_failure", report.Outcome)
	}

	tasks, err := testPGStore.RunTasks(ctx, report.RunID)
	if err != nil {
		t.Fatalf("run tasks: %v", err)
	}
	status := map[string]task.Status{}
	errs := map[string]string{}
	for _, tr := range tasks {
		status[tr.ID] = tr.Status
		errs[tr.ID] = tr.Error
	}
	if status["broken"] != task.StatusFailed || errs["broken"] == "" {
		t.Errorf("broken: status=%s error=%q", status["broken"], errs["broken"])
	}
	if status["draft"] != task.StatusBlocked {
		t.Errorf("draft status %s, want blocked", status["draft"])
	}
}

func TestTieredOrchestratedRun(t *testing.T) {
	ctx := context.Background()

	redisTier, err := contextstore.NewRedis(testRedisURL, time.Minute, testLogger)
	if err != nil {
		t.Fatalf("redis tier: %v", err)
	}
	defer redisTier.Close()
	pgTier := contextstore.NewPostgres(testPGStore.Pool())
	tiered := contextstore.NewTiered(testLogger, contextstore.NewMemory(), redisTier, pgTier)

	bus, err := orchestrator.NewEventBus(testRedisURL, testLogger)
	if err != nil {
		t.Fatalf("event bus: %v", err)
	}
	defer bus.Close()

	o := orchestrator.New(nil, testRegistry(t), orchestrator.Config{Concurrency: 3}, testLogger)
	o.SetContextStore(tiered)
	o.SetEventBus(bus)
	o.SetHistory(testPGStore)

	report, err := o.RunDrafts(ctx, "full stack pipeline", pipelineDrafts())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Outcome != orchestrator.OutcomeSuccess {
		t.Fatalf("outcome %s, want success", report.Outcome)
	}

	// Results landed in every tier, under the run-scoped key.
	for _, tier := range []contextstore.Store{redisTier, pgTier} {
		res, ok, err := tier.Get(ctx, report.RunID+"/gather")
		if err != nil || !ok {
			t.Fatalf("tier missing result: ok=%v err=%v", ok, err)
		}
		if !strings.Contains(res.Output, "gather sources") {
			t.Errorf("unexpected output %q", res.Output)
		}
	}

	// The event feed saw the full lifecycle.
	subCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ch := bus.Subscribe(subCtx, report.RunID)

	seen := map[orchestrator.EventType]int{}
	for {
		select {
		case ev := <-ch:
			seen[ev.Type]++
			if ev.Type == orchestrator.EventRunCompleted {
				goto done
			}
		case <-subCtx.Done():
			t.Fatalf("timed out waiting for run_completed, saw %v", seen)
		}
	}
done:
	if seen[orchestrator.EventRunStarted] != 1 {
		t.Errorf("run_started seen %d times", seen[orchestrator.EventRunStarted])
	}
	if seen[orchestrator.EventTaskSucceeded] != 3 {
		t.Errorf("task_succeeded seen %d times, want 3", seen[orchestrator.EventTaskSucceeded])
	}
	if seen[orchestrator.EventRoundStarted] != 3 {
		t.Errorf("round_started seen %d times, want 3", seen[orchestrator.EventRoundStarted])
	}
}
