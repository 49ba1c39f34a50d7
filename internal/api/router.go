package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/iammorganparry/claude-mem/internal/config"
	"github.com/iammorganparry/claude-mem/internal/manager"
	"github.com/iammorganparry/claude-mem/internal/store"
	"github.com/iammorganparry/claude-mem/internal/vectorstore"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(
	mgr *manager.Manager,
	observations *store.ObservationStore,
	summaries *store.SummaryStore,
	sessions *store.SessionStore,
	search *store.SearchStore,
	backend vectorstore.Backend,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	hookH := NewHookHandler(mgr)
	readH := NewReadHandler(observations, summaries, sessions, search, backend, cfg)

	r.Get("/health", readH.Health)

	r.Post("/hooks/{platform}/{event}", hookH.Handle)

	r.Get("/observations", readH.ListObservations)
	r.Get("/observations/{ids}", readH.GetObservations)
	r.Get("/timeline", readH.Timeline)
	r.Get("/search", readH.Search)
	r.Get("/projects", readH.Projects)
	r.Get("/stats", readH.Stats)
	r.Get("/logs", readH.Logs)
	r.Get("/settings", readH.GetSettings)
	r.Put("/settings", readH.PutSettings)

	return r
}
