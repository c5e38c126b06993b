// Rolewise engine runner: loads configuration, wires the orchestration
// components, and drives the workflow to completion from the command
// line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rolewise/rolewise/pkg/bus"
	"github.com/rolewise/rolewise/pkg/checkpoint"
	"github.com/rolewise/rolewise/pkg/config"
	"github.com/rolewise/rolewise/pkg/decomposer"
	"github.com/rolewise/rolewise/pkg/events"
	"github.com/rolewise/rolewise/pkg/gates"
	"github.com/rolewise/rolewise/pkg/invoker"
	"github.com/rolewise/rolewise/pkg/llm"
	"github.com/rolewise/rolewise/pkg/mcp"
	"github.com/rolewise/rolewise/pkg/models"
	"github.com/rolewise/rolewise/pkg/orchestrator"
	"github.com/rolewise/rolewise/pkg/selector"
	"github.com/rolewise/rolewise/pkg/statestore"
	"github.com/rolewise/rolewise/pkg/tracker"
	"github.com/rolewise/rolewise/pkg/version"
	"github.com/rolewise/rolewise/pkg/workflow"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type options struct {
	configDir       string
	goal            string
	stage           string
	role            string
	resume          string
	eventLog        string
	listCheckpoints bool
	showVersion     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configDir, "config-dir",
		getEnv("CONFIG_DIR", "./config"),
		"Path to configuration directory")
	flag.StringVar(&opts.goal, "goal", "", "Workflow goal handed to every stage agent")
	flag.StringVar(&opts.stage, "stage", "", "Run a single stage instead of the full workflow")
	flag.StringVar(&opts.role, "role", "", "Explicit role id for -stage (overrides the stage default)")
	flag.StringVar(&opts.resume, "resume", "", "Checkpoint id or name to resume from")
	flag.StringVar(&opts.eventLog, "event-log", "", "Append engine events to this JSONL file")
	flag.BoolVar(&opts.listCheckpoints, "list-checkpoints", false, "List checkpoints for the workflow and exit")
	flag.BoolVar(&opts.showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if opts.showVersion {
		fmt.Println(version.Full())
		return
	}

	os.Exit(run(opts))
}

func run(opts options) int {
	// Load .env file from config directory
	envPath := filepath.Join(opts.configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("No .env file loaded", "path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting rolewise",
		"version", version.Full(),
		"config_dir", opts.configDir)

	cfg, err := config.Initialize(ctx, opts.configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		return models.ExitCode(models.NewConfigError("configuration load failed", err))
	}

	wf := cfg.Workflow()
	if wf == nil {
		slog.Error("Configuration declares no workflow")
		return models.ExitCode(models.NewConfigError("no workflow configured", nil))
	}

	store, err := openStateStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open state store", "error", err)
		return models.ExitCode(models.NewConfigError("state store unavailable", err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Error closing state store", "error", err)
		}
	}()

	// Event sinks: slog always, JSONL when requested.
	sinks := []events.Sink{&events.SlogSink{}}
	if opts.eventLog != "" {
		jsonl, err := events.NewJSONLSink(opts.eventLog)
		if err != nil {
			slog.Error("Failed to open event log", "error", err)
			return models.ExitCode(models.NewConfigError("event log unavailable", err))
		}
		defer jsonl.Close()
		sinks = append(sinks, jsonl)
	}
	publisher := events.NewPublisher(wf.ID, sinks...)

	busOpts := []bus.Option{bus.WithPublisher(publisher)}
	if cfg.Defaults.JournalPath != "" {
		journal, err := bus.OpenJournal(cfg.Defaults.JournalPath)
		if err != nil {
			slog.Error("Failed to open bus journal", "error", err)
			return models.ExitCode(models.NewConfigError("bus journal unavailable", err))
		}
		busOpts = append(busOpts, bus.WithJournal(journal))
	}
	b := bus.New(busOpts...)
	tr := tracker.New()

	mgr := checkpoint.NewManager(store, checkpoint.WithBus(b), checkpoint.WithPublisher(publisher))

	if opts.listCheckpoints {
		return listCheckpoints(ctx, mgr, wf.ID)
	}

	// Invoker stack: composite and MCP ahead of the LLM invoker so
	// composed and tool-backed skills route correctly; the placeholder
	// catches everything else.
	var invokers []invoker.Invoker
	composite := invoker.NewComposite(cfg.Registry)
	invokers = append(invokers, composite)

	if cfg.MCPServerRegistry.Len() > 0 {
		mcpClient := mcp.NewClient(cfg.MCPServerRegistry)
		mcpClient.Initialize(ctx, cfg.AllMCPServerIDs())
		if failed := mcpClient.FailedServers(); len(failed) > 0 {
			slog.Warn("Some MCP servers failed to initialize", "failed_servers", failed)
		}
		defer mcpClient.Close()
		invokers = append(invokers, invoker.NewMCP(mcpClient))
		slog.Info("MCP client initialized", "servers", cfg.MCPServerRegistry.Len())
	}

	decomposerOpts := []decomposer.Option{}
	var llmInvoker *invoker.LLMInvoker
	if cfg.LLM != nil {
		llmClient, err := llm.NewClient(cfg.LLM)
		if err != nil {
			slog.Error("Failed to initialize LLM client", "error", err)
			return models.ExitCode(models.NewConfigError("LLM client unavailable", err))
		}
		defer func() {
			if err := llmClient.Close(); err != nil {
				slog.Error("Error closing LLM client", "error", err)
			}
		}()
		llmInvoker = invoker.NewLLM(llmClient, publisher)
		invokers = append(invokers, llmInvoker)
		decomposerOpts = append(decomposerOpts, decomposer.WithLLM(llmClient))
		slog.Info("LLM client initialized", "model", cfg.LLM.Model)
	}
	invokers = append(invokers, invoker.NewPlaceholder())

	dispatcher := invoker.NewDispatcher(tr, publisher, invokers...)
	composite.Bind(dispatcher)

	dec := decomposer.New(cfg.Registry, cfg.Defaults.DefaultRole, decomposerOpts...)
	orch := orchestrator.New(cfg.Registry, selector.New(cfg.Registry, tr), dispatcher, tr, b,
		orchestrator.WithDecomposer(dec),
		orchestrator.WithPublisher(publisher),
		orchestrator.WithProjectContext(cfg.Defaults.ProjectContext))

	state, err := loadState(ctx, store, mgr, wf.ID, opts.resume)
	if err != nil {
		slog.Error("Failed to resume", "checkpoint", opts.resume, "error", err)
		return models.ExitCode(models.NewConfigError("resume failed", err))
	}

	execOpts := []workflow.Option{
		workflow.WithPublisher(publisher),
		workflow.WithStore(store),
		workflow.WithCheckpoints(mgr),
		workflow.WithTracker(tr),
	}
	if state != nil {
		execOpts = append(execOpts, workflow.WithState(state))
	}
	exec, err := workflow.NewExecutor(cfg.Registry, orch, gates.NewEvaluator(), execOpts...)
	if err != nil {
		slog.Error("Failed to create workflow executor", "error", err)
		return models.ExitCode(err)
	}

	var runErr error
	if opts.stage != "" {
		runErr = exec.RunStage(ctx, opts.stage, opts.role, opts.goal)
	} else {
		runErr = exec.Auto(ctx, opts.goal)
	}
	if runErr != nil {
		slog.Error("Workflow run failed", "error", runErr)
	}

	if llmInvoker != nil {
		in, out := llmInvoker.Usage()
		slog.Info("LLM token usage", "input_tokens", in, "output_tokens", out)
	}
	printReport(exec.Report())
	return models.ExitCode(runErr)
}

// openStateStore picks Postgres when DATABASE_URL is set, the file
// store under the configured state directory otherwise.
func openStateStore(ctx context.Context, cfg *config.Config) (statestore.Store, error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		slog.Info("Using Postgres state store")
		return statestore.NewPostgresStore(ctx, dsn)
	}
	return statestore.NewFileStore(cfg.Defaults.StateDir)
}

// loadState resolves the starting state: an explicit checkpoint when
// resuming, the persisted live blob when one exists, a fresh state
// otherwise. A corrupt live blob degrades to a fresh start with a
// warning instead of failing the run.
func loadState(ctx context.Context, store statestore.Store, mgr *checkpoint.Manager, workflowID, resume string) (*models.ExecutionState, error) {
	if resume != "" {
		return mgr.Restore(ctx, workflowID, resume)
	}

	state, err := store.Load(ctx, workflowID)
	if err != nil {
		if !errors.Is(err, models.ErrStateNotFound) {
			slog.Warn("Could not load prior state, starting fresh", "error", err)
		}
		return nil, nil
	}
	if state.SchemaVersion > models.StateSchemaVersion {
		slog.Warn("Prior state has a newer schema, starting fresh",
			"schema_version", state.SchemaVersion)
		return nil, nil
	}
	slog.Info("Resuming from persisted state",
		"completed_stages", len(state.CompletedStages))
	return state, nil
}

func listCheckpoints(ctx context.Context, mgr *checkpoint.Manager, workflowID string) int {
	metas, err := mgr.List(ctx, workflowID)
	if err != nil {
		slog.Error("Failed to list checkpoints", "error", err)
		return models.ExitCode(err)
	}
	if len(metas) == 0 {
		fmt.Println("no checkpoints")
		return models.ExitSuccess
	}
	for _, m := range metas {
		name := m.Name
		if name == "" {
			name = "-"
		}
		fmt.Printf("%s  %-20s  stage=%s  %s\n",
			m.ID, name, m.StageID, m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return models.ExitSuccess
}

func printReport(report *workflow.Report) {
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		slog.Error("Failed to render run report", "error", err)
		return
	}
	fmt.Println(string(out))
}
