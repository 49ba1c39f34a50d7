package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iammorganparry/claude-mem/internal/manager"
)

// HookEvent is the platform-normalized payload posted by hook executables.
// Unknown fields are ignored so host payload growth never breaks ingest.
type HookEvent struct {
	SessionID            string `json:"session_id"`
	Project              string `json:"project"`
	Prompt               string `json:"prompt,omitempty"`
	ToolName             string `json:"tool_name,omitempty"`
	ToolInput            string `json:"tool_input,omitempty"`
	ToolResponse         string `json:"tool_response,omitempty"`
	CWD                  string `json:"cwd,omitempty"`
	LastAssistantMessage string `json:"last_assistant_message,omitempty"`
}

// HookHandler receives lifecycle hooks from the host.
type HookHandler struct {
	mgr *manager.Manager
}

// NewHookHandler creates a hook handler over the session manager.
func NewHookHandler(mgr *manager.Manager) *HookHandler {
	return &HookHandler{mgr: mgr}
}

// Handle dispatches POST /hooks/{platform}/{event}.
func (h *HookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")

	var payload HookEvent
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid hook payload: "+err.Error())
		return
	}
	if payload.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if payload.Project == "" {
		payload.Project = "unknown"
	}

	var err error
	switch event {
	case "session-init":
		_, err = h.mgr.OnSessionInit(payload.SessionID, payload.Project, payload.Prompt)
	case "context":
		_, err = h.mgr.OnUserPrompt(payload.SessionID, payload.Project, payload.Prompt)
	case "observation", "file-edit":
		err = h.mgr.OnObservation(payload.SessionID, payload.Project,
			payload.ToolName, payload.ToolInput, payload.ToolResponse, payload.CWD)
	case "summarize":
		err = h.mgr.OnSummarize(payload.SessionID, payload.Project, payload.LastAssistantMessage)
	default:
		writeError(w, http.StatusNotFound, "unknown hook event: "+event)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "event": event})
}
