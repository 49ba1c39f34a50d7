package models

// ObservationType classifies what kind of work an observation captured.
type ObservationType string

const (
	ObservationDiscovery ObservationType = "discovery"
	ObservationBugfix    ObservationType = "bugfix"
	ObservationFeature   ObservationType = "feature"
	ObservationRefactor  ObservationType = "refactor"
	ObservationDecision  ObservationType = "decision"
	ObservationChange    ObservationType = "change"
)

var ValidObservationTypes = map[ObservationType]bool{
	ObservationDiscovery: true,
	ObservationBugfix:    true,
	ObservationFeature:   true,
	ObservationRefactor:  true,
	ObservationDecision:  true,
	ObservationChange:    true,
}

func (t ObservationType) IsValid() bool {
	return ValidObservationTypes[t]
}

// SessionStatus is the lifecycle state of a capture session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// Session is one logical conversation with the host.
type Session struct {
	ID               int64         `json:"id"`
	ContentSessionID string        `json:"contentSessionId"`
	MemorySessionID  string        `json:"memorySessionId,omitempty"`
	Project          string        `json:"project"`
	Status           SessionStatus `json:"status"`
	StartedAt        int64         `json:"startedAt"`
	UserPrompt       string        `json:"userPrompt"`
}

// Observation is one atomic capture derived from a tool invocation.
// Observations are append-only: once stored they are never mutated.
type Observation struct {
	ID               int64           `json:"id"`
	SessionID        int64           `json:"sessionId"`
	ContentSessionID string          `json:"contentSessionId"`
	MemorySessionID  string          `json:"memorySessionId"`
	Project          string          `json:"project"`
	Type             ObservationType `json:"type"`
	Title            string          `json:"title"`
	Subtitle         string          `json:"subtitle,omitempty"`
	Narrative        string          `json:"narrative,omitempty"`
	Text             string          `json:"text,omitempty"`
	Facts            []string        `json:"facts,omitempty"`
	Concepts         []string        `json:"concepts,omitempty"`
	FilesRead        []string        `json:"filesRead,omitempty"`
	FilesModified    []string        `json:"filesModified,omitempty"`
	PromptNumber     int             `json:"promptNumber"`
	CreatedAtEpoch   int64           `json:"createdAtEpoch"`
}

// ParsedObservation is an observation as extracted from an LLM response,
// before it has been assigned a row id.
type ParsedObservation struct {
	Type          ObservationType `json:"type"`
	Title         string          `json:"title"`
	Subtitle      string          `json:"subtitle,omitempty"`
	Narrative     string          `json:"narrative,omitempty"`
	Text          string          `json:"text,omitempty"`
	Facts         []string        `json:"facts,omitempty"`
	Concepts      []string        `json:"concepts,omitempty"`
	FilesRead     []string        `json:"filesRead,omitempty"`
	FilesModified []string        `json:"filesModified,omitempty"`
}

// Summary is the end-of-session roll-up. At most one exists per memory session.
type Summary struct {
	ID               int64  `json:"id"`
	SessionID        int64  `json:"sessionId"`
	ContentSessionID string `json:"contentSessionId"`
	MemorySessionID  string `json:"memorySessionId"`
	Project          string `json:"project"`
	Request          string `json:"request,omitempty"`
	Investigated     string `json:"investigated,omitempty"`
	Learned          string `json:"learned,omitempty"`
	Completed        string `json:"completed,omitempty"`
	NextSteps        string `json:"nextSteps,omitempty"`
	Notes            string `json:"notes,omitempty"`
	CreatedAtEpoch   int64  `json:"createdAtEpoch"`
}

// ParsedSummary is a summary as extracted from an LLM response.
type ParsedSummary struct {
	Request      string `json:"request,omitempty"`
	Investigated string `json:"investigated,omitempty"`
	Learned      string `json:"learned,omitempty"`
	Completed    string `json:"completed,omitempty"`
	NextSteps    string `json:"nextSteps,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// UserPrompt records one turn's user input for searchability.
type UserPrompt struct {
	ID               int64  `json:"id"`
	ContentSessionID string `json:"contentSessionId"`
	PromptNumber     int    `json:"promptNumber"`
	PromptText       string `json:"promptText"`
	CreatedAtEpoch   int64  `json:"createdAtEpoch"`
}

// PendingMessageType distinguishes the two kinds of queued work.
type PendingMessageType string

const (
	PendingObservation PendingMessageType = "observation"
	PendingSummarize   PendingMessageType = "summarize"
)

// PendingMessage is a queued hook event awaiting processing by the session's
// agent. Messages are consumed in enqueue order by exactly one generator per
// session.
type PendingMessage struct {
	ID                   int64              `json:"id"`
	SessionID            int64              `json:"sessionId"`
	Type                 PendingMessageType `json:"type"`
	ToolName             string             `json:"toolName,omitempty"`
	ToolInput            string             `json:"toolInput,omitempty"`
	ToolResponse         string             `json:"toolResponse,omitempty"`
	PromptNumber         int                `json:"promptNumber"`
	CWD                  string             `json:"cwd,omitempty"`
	LastAssistantMessage string             `json:"lastAssistantMessage,omitempty"`
	EnqueuedAt           int64              `json:"enqueuedAt"`
	ProcessedAt          *int64             `json:"processedAt,omitempty"`
}

// StoreResult reports the outcome of a store/import call. Imported is false
// when the dedup key already existed; the prior row id is returned instead.
type StoreResult struct {
	ID       int64 `json:"id"`
	Imported bool  `json:"imported"`
}

// TimelineEntry is one row in a chronological window around an anchor
// observation.
type TimelineEntry struct {
	Observation *Observation `json:"observation"`
	IsAnchor    bool         `json:"isAnchor"`
}
