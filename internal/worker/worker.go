// Package worker composes the long-lived process that owns all mutable
// state: store, vector backend, session manager, agent, supervisor, and
// the local HTTP surface.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iammorganparry/claude-mem/internal/agent"
	"github.com/iammorganparry/claude-mem/internal/api"
	"github.com/iammorganparry/claude-mem/internal/config"
	"github.com/iammorganparry/claude-mem/internal/embedding"
	"github.com/iammorganparry/claude-mem/internal/exporter"
	"github.com/iammorganparry/claude-mem/internal/federation"
	"github.com/iammorganparry/claude-mem/internal/llm"
	"github.com/iammorganparry/claude-mem/internal/manager"
	"github.com/iammorganparry/claude-mem/internal/store"
	"github.com/iammorganparry/claude-mem/internal/supervisor"
	"github.com/iammorganparry/claude-mem/internal/vectorstore"
)

// extractorChildPattern identifies extractor child processes in the
// process table. Every claude spawn carries these arguments.
const extractorChildPattern = "-p --output-format json"

// Worker is the composed service.
type Worker struct {
	Cfg *config.Config
	DB  *store.DB

	Sessions     *store.SessionStore
	Observations *store.ObservationStore
	Summaries    *store.SummaryStore
	Prompts      *store.PromptStore
	Pending      *store.PendingMessageStore
	Search       *store.SearchStore

	Backend    vectorstore.Backend
	Supervisor *supervisor.Supervisor
	Reaper     *supervisor.Reaper
	Manager    *manager.Manager

	logger *slog.Logger
}

// New composes a worker from configuration. Nothing is started yet; Run
// owns the lifecycle.
func New(cfg *config.Config, logger *slog.Logger) (*Worker, error) {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	w := &Worker{
		Cfg:    cfg,
		DB:     db,
		logger: logger,
	}
	w.Sessions = store.NewSessionStore(db)
	w.Observations = store.NewObservationStore(db)
	w.Summaries = store.NewSummaryStore(db)
	w.Prompts = store.NewPromptStore(db)
	w.Pending = store.NewPendingMessageStore(db)
	w.Search = store.NewSearchStore(db, w.Observations)

	w.Supervisor = supervisor.New(extractorChildPattern, logger)
	w.Reaper = supervisor.NewReaper(w.Supervisor, supervisor.ReapInterval, logger)
	spawner := supervisor.NewSpawner(w.Supervisor)

	w.Backend = buildBackend(cfg, &store.BackfillSource{
		Observations: w.Observations,
		Summaries:    w.Summaries,
		Prompts:      w.Prompts,
	}, logger)

	primary := providerFactory(cfg, cfg.Provider, spawner)
	var fallback agent.ProviderFactory
	if cfg.FallbackProvider != "" {
		fallback = providerFactory(cfg, cfg.FallbackProvider, spawner)
	}

	ag := agent.New(primary, fallback,
		w.Sessions, w.Observations, w.Summaries, w.Pending, w.Backend,
		cfg.MaxContextMessages, cfg.MaxTokens, logger)

	w.Manager = manager.New(w.Sessions, w.Prompts, w.Pending, ag, logger)
	return w, nil
}

func buildBackend(cfg *config.Config, source vectorstore.Source, logger *slog.Logger) vectorstore.Backend {
	switch cfg.VectorBackend {
	case config.BackendChroma:
		return vectorstore.NewChromaBackend(cfg.ChromaCommand, cfg.ChromaDataDir, logger)
	case config.BackendNone:
		return vectorstore.NewDisabledBackend()
	default:
		provider := embedding.NewOpenAIClient(cfg.EmbeddingURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel)
		fedCfg := federation.Config{
			Decay:          cfg.FederationDecay,
			TimeoutSeconds: cfg.FederationTimeoutSecs,
			BudgetSeconds:  cfg.FederationBudgetSecs,
		}
		return vectorstore.NewSqliteVecBackend(cfg.VectorDBPath, cfg.EmbeddingDim, provider, source, fedCfg, logger)
	}
}

func providerFactory(cfg *config.Config, name string, spawner *supervisor.Spawner) agent.ProviderFactory {
	if name == config.ProviderClaude {
		return func(sessionDBID int64) llm.Provider {
			return llm.NewClaudeProvider(cfg.ClaudeBinary, sessionDBID, spawner)
		}
	}
	baseURL := cfg.ProviderBaseURL(name)
	return func(sessionDBID int64) llm.Provider {
		return llm.NewOpenAIProvider(name, baseURL, cfg.APIKey, cfg.Model)
	}
}

// Run starts the worker and blocks until the context is cancelled. On the
// way out it drains generators, kills every registered child, and closes
// the stores.
func (w *Worker) Run(ctx context.Context) error {
	// Messages orphaned by a crashed generator become consumable again.
	if n, err := w.Pending.ResetStuckMessages(); err != nil {
		w.logger.Error("reset stuck messages failed", "error", err)
	} else if n > 0 {
		w.logger.Info("reset stuck pending messages", "count", n)
	}

	if _, err := w.Pending.CleanupProcessed(7 * 24 * time.Hour); err != nil {
		w.logger.Warn("pending cleanup failed", "error", err)
	}

	if err := w.Backend.Initialize(ctx); err != nil {
		w.logger.Warn("vector backend initialization failed, continuing without it", "error", err)
	} else {
		go func() {
			if err := w.Backend.EnsureBackfilled(context.Background()); err != nil {
				w.logger.Warn("vector backfill failed", "error", err)
			}
		}()
	}

	w.Reaper.Start()
	defer w.Reaper.Stop()

	if w.Cfg.SyncEnabled {
		go w.autoPushLoop(ctx)
	}

	router := api.NewRouter(w.Manager, w.Observations, w.Summaries, w.Sessions, w.Search, w.Backend, w.Cfg, w.logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", w.Cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		w.logger.Info("worker listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		w.shutdown(srv)
		return err
	case <-ctx.Done():
		w.shutdown(srv)
		return nil
	}
}

// autoPushLoop snapshots and pushes the replication workspace once the
// session has gone idle with pending local changes.
func (w *Worker) autoPushLoop(ctx context.Context) {
	exp := exporter.New(w.Cfg.ExportDir, w.Cfg.SyncRemoteName, w.Cfg.SyncRemoteURL,
		w.Cfg.SyncAutoPush, w.Cfg.SyncIdleSeconds, w.logger)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	idle := time.Duration(w.Cfg.SyncIdleSeconds) * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if time.Since(w.Manager.LastActivity()) < idle {
				continue
			}
			// Committing is cheap when nothing changed; the push only
			// happens when a new snapshot commit landed.
			if err := exp.Snapshot(w.Cfg.VectorDBPath, "", w.Cfg.SyncAutoPush); err != nil {
				w.logger.Warn("replication snapshot failed", "error", err)
			}
		}
	}
}

func (w *Worker) shutdown(srv *http.Server) {
	w.logger.Info("worker shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	w.Manager.Shutdown()
	w.Supervisor.KillAll()

	if err := w.Backend.Close(); err != nil {
		w.logger.Warn("vector backend close failed", "error", err)
	}
	if err := w.DB.Close(); err != nil {
		w.logger.Warn("store close failed", "error", err)
	}
}

// Close releases resources without running the serve loop. Used by CLI
// commands that compose a worker for one-shot operations.
func (w *Worker) Close() {
	_ = w.Backend.Close()
	_ = w.DB.Close()
}
