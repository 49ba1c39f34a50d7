package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iammorganparry/claude-mem/internal/config"
	"github.com/iammorganparry/claude-mem/internal/store"
	"github.com/iammorganparry/claude-mem/internal/vectorstore"
)

// ReadHandler serves the read-only APIs used by the dashboard and MCP.
type ReadHandler struct {
	observations *store.ObservationStore
	summaries    *store.SummaryStore
	sessions     *store.SessionStore
	search       *store.SearchStore
	backend      vectorstore.Backend
	cfg          *config.Config
}

// NewReadHandler creates the read-side handler.
func NewReadHandler(
	observations *store.ObservationStore,
	summaries *store.SummaryStore,
	sessions *store.SessionStore,
	search *store.SearchStore,
	backend vectorstore.Backend,
	cfg *config.Config,
) *ReadHandler {
	return &ReadHandler{
		observations: observations,
		summaries:    summaries,
		sessions:     sessions,
		search:       search,
		backend:      backend,
		cfg:          cfg,
	}
}

// ListObservations handles GET /observations?project=&limit=.
func (h *ReadHandler) ListObservations(w http.ResponseWriter, r *http.Request) {
	project := r.URL.Query().Get("project")
	limit := queryInt(r, "limit", 50)

	observations, err := h.observations.ListRecent(project, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": observations})
}

// GetObservations handles GET /observations/{ids} with comma-separated ids.
func (h *ReadHandler) GetObservations(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "ids")
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid observation id: "+part)
			return
		}
		ids = append(ids, id)
	}

	observations, err := h.observations.GetByIDs(ids)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": observations})
}

// Timeline handles GET /timeline?anchor=<id>&radius=<n>.
func (h *ReadHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	anchor, err := strconv.ParseInt(r.URL.Query().Get("anchor"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "anchor must be an observation id")
		return
	}
	radius := queryInt(r, "radius", 5)

	entries, err := h.search.GetTimeline(anchor, radius)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeline": entries})
}

// Search handles GET /search?q=&project=&type=&limit=. Semantic search via
// the vector backend, falling back to substring search when the backend
// returns nothing (disabled backend included).
func (h *ReadHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	project := r.URL.Query().Get("project")
	limit := queryInt(r, "limit", 10)

	filters := vectorstore.Filters{
		Project: project,
		DocType: r.URL.Query().Get("type"),
	}

	results, err := h.backend.Query(r.Context(), q, limit, filters)
	if err == nil && len(results) > 0 {
		writeJSON(w, http.StatusOK, map[string]any{"results": results, "mode": "semantic"})
		return
	}

	observations, terr := h.search.SearchByText(q, project, limit)
	if terr != nil {
		writeError(w, http.StatusInternalServerError, terr.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": observations, "mode": "text"})
}

// Projects handles GET /projects.
func (h *ReadHandler) Projects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.sessions.ListProjects()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// Stats handles GET /stats.
func (h *ReadHandler) Stats(w http.ResponseWriter, r *http.Request) {
	obsCount, err := h.observations.Count("")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sumCount, err := h.summaries.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	backendStats, err := h.backend.Stats(r.Context())
	if err != nil {
		backendStats = vectorstore.Stats{Backend: "unavailable"}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"observations": obsCount,
		"summaries":    sumCount,
		"vector":       backendStats,
	})
}

// Logs handles GET /logs?lines=: tails the worker log file.
func (h *ReadHandler) Logs(w http.ResponseWriter, r *http.Request) {
	lines := queryInt(r, "lines", 200)

	data, err := os.ReadFile(filepath.Join(h.cfg.LogDir, "worker.log"))
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, map[string]any{"lines": []string{}})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	all := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(all) > lines {
		all = all[len(all)-lines:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": all})
}

// GetSettings handles GET /settings.
func (h *ReadHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg)
}

// PutSettings handles PUT /settings: validate and persist. Changes that
// affect running components take effect on the next worker start.
func (h *ReadHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	updated := *h.cfg
	if err := decodeJSON(r, &updated); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := updated.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := updated.Save(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Health handles GET /health.
func (h *ReadHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	if _, err := h.backend.Stats(ctx); err != nil {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
