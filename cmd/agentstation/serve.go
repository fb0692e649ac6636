package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"agentstation/internal/agents"
	"agentstation/internal/checkpoint"
	"agentstation/internal/config"
	"agentstation/internal/knowledge"
	"agentstation/internal/llm"
	"agentstation/internal/logging"
	"agentstation/internal/observability"
	"agentstation/internal/server/app"
	serverhttp "agentstation/internal/server/http"
	"agentstation/internal/storage"
	"agentstation/internal/tools"
	"agentstation/internal/tools/builtin"
	"agentstation/internal/workflow"
)

func serveCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the workflow server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen host")
	cmd.Flags().IntVar(&port, "port", 8080, "listen port")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logging.SetDefaultLevel(logging.ParseLevel(cfg.Logging.Level))
	logger := logging.NewComponentLogger("server")

	for _, path := range []string{cfg.Storage.CheckpointPath, cfg.Storage.RepositoryPath} {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create data dir %s: %w", dir, err)
			}
		}
	}

	promReg := prometheus.NewRegistry()
	metrics := observability.New(promReg)

	store, err := checkpoint.NewSQLiteStore(cfg.Storage.CheckpointPath, logging.NewComponentLogger("checkpoint"))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	repo, err := storage.Open(cfg.Storage.RepositoryPath, logging.NewComponentLogger("storage"))
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	kb, err := knowledge.New(cfg.Knowledge, logging.NewComponentLogger("knowledge"))
	if err != nil {
		return err
	}

	tools.SetDefaultTimeout(time.Duration(cfg.Tools.DefaultTimeout) * time.Second)
	registry := tools.NewRegistry(logging.NewComponentLogger("tools"))
	if err := builtin.Seed(registry, kb); err != nil {
		return fmt.Errorf("seed builtin tools: %w", err)
	}
	if cfg.Tools.ManifestPath != "" {
		manifest, err := tools.LoadManifest(cfg.Tools.ManifestPath)
		if err != nil {
			return err
		}
		if err := manifest.SeedRegistry(registry); err != nil {
			return err
		}
	}

	generator, err := llm.NewOpenAIClient(cfg.LLM, logging.NewComponentLogger("llm"))
	if err != nil {
		return err
	}

	planner := agents.NewPlanner(generator, registry, kb, logging.NewComponentLogger("planner"))
	planner.SetMaxSteps(cfg.Workflow.MaxTaskSteps)
	executor := agents.NewExecutor(generator, registry, metrics, logging.NewComponentLogger("executor"))
	executor.SetMaxRetries(cfg.Workflow.MaxRetryCount)

	engine := workflow.New(
		planner,
		executor,
		agents.NewValidator(generator, logging.NewComponentLogger("validator")),
		store,
		metrics,
		logging.NewComponentLogger("engine"),
	)

	broadcaster := app.NewBroadcaster(metrics, logging.NewComponentLogger("broadcaster"))
	cache := checkpoint.NewTaskStateCache()
	coordinator := app.NewCoordinator(engine, repo, cache, broadcaster, logging.NewComponentLogger("coordinator"))

	srv := serverhttp.NewServer(coordinator, broadcaster, repo, registry, kb, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Router(promReg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening on %s (%d tools registered)", cfg.Server.Addr(), registry.Len())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
