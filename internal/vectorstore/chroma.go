package vectorstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/iammorganparry/claude-mem/internal/models"
)

const chromaCollection = "claude_mem_documents"

// ChromaBackend speaks to an external collection service over a subprocess
// transport: line-delimited JSON-RPC on the child's standard streams. The
// service handles embedding internally; this backend only passes text and
// filters.
//
// Spawning the sidecar opens a visible console window on Windows, so the
// backend self-disables there and every operation becomes a no-op.
type ChromaBackend struct {
	command string
	dataDir string
	logger  *slog.Logger

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      *bufio.Reader
	nextID      int
	initialized bool
	disabled    bool
	lastSync    int64
}

// NewChromaBackend creates the collection-service backend.
func NewChromaBackend(command, dataDir string, logger *slog.Logger) *ChromaBackend {
	return &ChromaBackend{
		command:  command,
		dataDir:  dataDir,
		logger:   logger,
		disabled: runtime.GOOS == "windows",
	}
}

// Initialize spawns the sidecar and ensures the collection exists.
func (b *ChromaBackend) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initLocked(ctx)
}

func (b *ChromaBackend) initLocked(ctx context.Context) error {
	if b.disabled || b.initialized {
		return nil
	}

	cmd := exec.Command(b.command, "--data-dir", b.dataDir)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("chroma stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("chroma stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start collection service: %w", err)
	}

	b.cmd = cmd
	b.stdin = stdin
	b.stdout = bufio.NewReaderSize(stdout, 1024*1024)
	b.initialized = true

	if _, err := b.callLocked(ctx, "ensure_collection", map[string]any{"name": chromaCollection}); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	b.logger.Info("collection service started", "command", b.command, "pid", cmd.Process.Pid)
	return nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// callLocked performs one JSON-RPC round trip. Caller holds the mutex.
func (b *ChromaBackend) callLocked(ctx context.Context, method string, params any) (json.RawMessage, error) {
	b.nextID++
	req := rpcRequest{JSONRPC: "2.0", ID: b.nextID, Method: method, Params: params}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal rpc request: %w", err)
	}
	data = append(data, '\n')
	if _, err := b.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write rpc request: %w", err)
	}

	type readResult struct {
		line []byte
		err  error
	}
	ch := make(chan readResult, 1)
	go func() {
		line, err := b.stdout.ReadBytes('\n')
		ch <- readResult{line, err}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.err != nil {
				return nil, fmt.Errorf("read rpc response: %w", res.err)
			}
			var resp rpcResponse
			if err := json.Unmarshal(res.line, &resp); err != nil {
				return nil, fmt.Errorf("decode rpc response: %w", err)
			}
			if resp.ID != req.ID {
				// Stale response from an interrupted call; keep reading.
				go func() {
					line, err := b.stdout.ReadBytes('\n')
					ch <- readResult{line, err}
				}()
				continue
			}
			if resp.Error != nil {
				return nil, fmt.Errorf("collection service error %d: %s", resp.Error.Code, resp.Error.Message)
			}
			return resp.Result, nil
		}
	}
}

func (b *ChromaBackend) upsert(ctx context.Context, docs []Document) error {
	if b.disabled || len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.initLocked(ctx); err != nil {
		return err
	}

	items := make([]map[string]any, len(docs))
	for i, doc := range docs {
		metadata := map[string]any{
			"sqlite_id":         doc.SQLiteID,
			"doc_type":          doc.DocType,
			"memory_session_id": doc.MemorySessionID,
			"project":           doc.Project,
			"created_at_epoch":  doc.CreatedAtEpoch,
		}
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		items[i] = map[string]any{
			"id":       doc.ID,
			"document": doc.Content,
			"metadata": metadata,
		}
	}

	_, err := b.callLocked(ctx, "upsert", map[string]any{
		"collection": chromaCollection,
		"items":      items,
	})
	if err != nil {
		return fmt.Errorf("upsert documents: %w", err)
	}
	b.lastSync = time.Now().UnixMilli()
	return nil
}

// SyncObservation granulates and upserts an observation's documents.
func (b *ChromaBackend) SyncObservation(ctx context.Context, obs *models.Observation) error {
	return b.upsert(ctx, GranulateObservation(obs))
}

// SyncSummary granulates and upserts a summary's documents.
func (b *ChromaBackend) SyncSummary(ctx context.Context, sum *models.Summary) error {
	return b.upsert(ctx, GranulateSummary(sum))
}

// SyncUserPrompt upserts the document for a user prompt.
func (b *ChromaBackend) SyncUserPrompt(ctx context.Context, prompt *models.UserPrompt) error {
	return b.upsert(ctx, GranulateUserPrompt(prompt))
}

// Query passes the text and filters to the collection service.
func (b *ChromaBackend) Query(ctx context.Context, query string, limit int, filters Filters) ([]Result, error) {
	if b.disabled {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.initLocked(ctx); err != nil {
		return nil, err
	}

	where := map[string]any{}
	if filters.Project != "" {
		where["project"] = filters.Project
	}
	if filters.DocType != "" {
		where["doc_type"] = filters.DocType
	}
	if filters.MemorySessionID != "" {
		where["memory_session_id"] = filters.MemorySessionID
	}
	if filters.MinEpoch > 0 {
		where["min_epoch"] = filters.MinEpoch
	}
	if filters.MaxEpoch > 0 {
		where["max_epoch"] = filters.MaxEpoch
	}

	raw, err := b.callLocked(ctx, "query", map[string]any{
		"collection": chromaCollection,
		"query_text": query,
		"limit":      limit * 4,
		"where":      where,
	})
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	var parsed struct {
		Results []struct {
			ID       string         `json:"id"`
			Distance float64        `json:"distance"`
			Document string         `json:"document"`
			Metadata map[string]any `json:"metadata"`
		} `json:"results"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}

	results := make([]Result, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		res := Result{
			DocID:    r.ID,
			Distance: r.Distance,
			Content:  r.Document,
			Metadata: r.Metadata,
		}
		if v, ok := r.Metadata["sqlite_id"].(float64); ok {
			res.SQLiteID = int64(v)
		}
		if v, ok := r.Metadata["doc_type"].(string); ok {
			res.DocType = v
		}
		results = append(results, res)
	}
	return dedupeByOwner(results, limit), nil
}

// EnsureBackfilled is a no-op for the collection service: it owns its own
// persistence and the worker reconciles through the sqlite-vec path when
// switching backends.
func (b *ChromaBackend) EnsureBackfilled(ctx context.Context) error {
	return nil
}

// Stats reports collection state.
func (b *ChromaBackend) Stats(ctx context.Context) (Stats, error) {
	if b.disabled {
		return Stats{Backend: "chroma (disabled)", Collection: chromaCollection}, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.initLocked(ctx); err != nil {
		return Stats{}, err
	}

	raw, err := b.callLocked(ctx, "stats", map[string]any{"collection": chromaCollection})
	if err != nil {
		return Stats{}, fmt.Errorf("collection stats: %w", err)
	}

	var parsed struct {
		Count      int `json:"count"`
		Dimensions int `json:"dimensions"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Stats{}, fmt.Errorf("decode stats: %w", err)
	}

	return Stats{
		Backend:    "chroma",
		Documents:  parsed.Count,
		Collection: chromaCollection,
		Dimensions: parsed.Dimensions,
		LastSync:   b.lastSync,
	}, nil
}

// DeleteDocuments removes documents by id.
func (b *ChromaBackend) DeleteDocuments(ctx context.Context, ids []string) error {
	if b.disabled || len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.initLocked(ctx); err != nil {
		return err
	}

	_, err := b.callLocked(ctx, "delete", map[string]any{
		"collection": chromaCollection,
		"ids":        ids,
	})
	return err
}

// Close terminates the sidecar process.
func (b *ChromaBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return nil
	}

	b.stdin.Close()
	done := make(chan error, 1)
	go func() { done <- b.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = b.cmd.Process.Kill()
		<-done
	}
	b.initialized = false
	return nil
}
