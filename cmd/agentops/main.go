package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kestrelworks/agentops/internal/agent"
	"github.com/kestrelworks/agentops/internal/config"
	"github.com/kestrelworks/agentops/internal/contextstore"
	"github.com/kestrelworks/agentops/internal/decomposer"
	"github.com/kestrelworks/agentops/internal/orchestrator"
	"github.com/kestrelworks/agentops/internal/provider"
	pgstore "github.com/kestrelworks/agentops/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: agentops <goal>")
		os.Exit(2)
	}
	goal := strings.Join(os.Args[1:], " ")

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/agentops.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize PostgreSQL store
	var pg *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without run history", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pg = ps
			defer pg.Close()
		}
	}

	// Assemble the context store tiers: in-run working memory, Redis
	// session tier, Postgres archive. Missing backends just drop tiers.
	tiers := []contextstore.Store{contextstore.NewMemory()}
	var bus *orchestrator.EventBus
	if cfg.Database.Redis.URL != "" {
		ttl := time.Duration(cfg.Orchestrator.ContextTTLSeconds) * time.Second
		rs, rErr := contextstore.NewRedis(cfg.Database.Redis.URL, ttl, logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, running without session tier", zap.Error(rErr))
		} else {
			tiers = append(tiers, rs)
			defer rs.Close()
		}

		if b, bErr := orchestrator.NewEventBus(cfg.Database.Redis.URL, logger); bErr != nil {
			logger.Warn("Redis unavailable, running without event feed", zap.Error(bErr))
		} else {
			bus = b
			defer b.Close()
		}
	}
	if pg != nil {
		tiers = append(tiers, contextstore.NewPostgres(pg.Pool()))
	}

	// Register agents
	registry := agent.NewRegistry(logger)
	agents := cfg.Agents
	if len(agents) == 0 {
		agents = []config.AgentConfig{
			{Type: "research", Kind: "echo"},
			{Type: "analysis", Kind: "echo"},
			{Type: "writing", Kind: "echo"},
			{Type: "general", Kind: "echo"},
		}
	}
	for _, ac := range agents {
		switch ac.Kind {
		case "echo", "":
			registry.Register(ac.Type, &agent.Echo{AgentType: ac.Type})
		default:
			logger.Warn("unknown agent kind", zap.String("type", ac.Type), zap.String("kind", ac.Kind))
		}
	}

	// Build the decomposer chain: LLM when a provider is configured,
	// keyword rules always as the deterministic fallback.
	var primary decomposer.Decomposer
	if cfg.Provider.APIKey != "" {
		p := provider.NewAnthropic(provider.Config{
			ID:       "anthropic",
			Endpoint: cfg.Provider.Endpoint,
			APIKey:   cfg.Provider.APIKey,
			Model:    cfg.Provider.Model,
		}, logger)
		primary = decomposer.NewLLM(p, cfg.Provider.Model, logger)
	}
	dec := decomposer.NewChain(primary, decomposer.NewKeyword(), logger)

	orch := orchestrator.New(dec, registry, orchestrator.Config{
		MaxRetries:  cfg.Orchestrator.MaxRetries,
		MaxRounds:   cfg.Orchestrator.MaxRounds,
		Concurrency: cfg.Orchestrator.Concurrency,
		TaskTimeout: time.Duration(cfg.Orchestrator.TaskTimeoutSeconds) * time.Second,
	}, logger)
	if len(tiers) > 1 {
		orch.SetContextStore(contextstore.NewTiered(logger, tiers...))
	}
	if bus != nil {
		orch.SetEventBus(bus)
	}
	if pg != nil {
		orch.SetHistory(pg)
	}

	report, err := orch.Run(ctx, goal)
	if err != nil {
		if report != nil {
			printReport(report)
		}
		logger.Fatal("run failed", zap.Error(err))
	}

	printReport(report)
	if report.Outcome != orchestrator.OutcomeSuccess {
		os.Exit(1)
	}
}

func printReport(r *orchestrator.Report) {
	fmt.Printf("\nRun %s: %s (%d rounds, %s)\n", r.RunID, r.Outcome, r.Rounds, r.Duration.Round(time.Millisecond))
	for _, t := range r.Tasks {
		line := fmt.Sprintf("  %-10s %s [%s]", t.Status, t.ID, t.AgentType)
		if t.Retries > 0 {
			line += fmt.Sprintf(" (retries: %d)", t.Retries)
		}
		if t.Error != "" {
			line += " - " + t.Error
		}
		fmt.Println(line)
	}
	if r.FinalOutput != "" {
		fmt.Printf("\n%s\n", r.FinalOutput)
	}
}
