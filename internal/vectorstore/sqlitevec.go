package vectorstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/iammorganparry/claude-mem/internal/embedding"
	"github.com/iammorganparry/claude-mem/internal/federation"
	"github.com/iammorganparry/claude-mem/internal/models"
)

// SqliteVecBackend stores vector documents in a local SQLite file with a
// vec0 ANN virtual index. If the extension is unavailable, queries fall
// back to a brute-force cosine scan: correctness is preserved, performance
// degrades.
type SqliteVecBackend struct {
	dbPath   string
	dim      int
	provider embedding.Provider
	source   Source
	logger   *slog.Logger

	mu           sync.Mutex
	db           *sql.DB
	annAvailable bool
	initialized  bool
	lastSync     int64
	remotes      []string
	fedCfg       federation.Config
}

// NewSqliteVecBackend creates the embedded backend. Initialize is lazy; the
// first mutating or query call triggers it.
func NewSqliteVecBackend(dbPath string, dim int, provider embedding.Provider, source Source, fedCfg federation.Config, logger *slog.Logger) *SqliteVecBackend {
	return &SqliteVecBackend{
		dbPath:   dbPath,
		dim:      dim,
		provider: provider,
		source:   source,
		fedCfg:   fedCfg,
		logger:   logger,
	}
}

// Initialize opens the database file and creates schema. Safe to call on an
// uninitialized backing store and safe to call more than once.
func (b *SqliteVecBackend) Initialize(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initLocked()
}

func (b *SqliteVecBackend) initLocked() error {
	if b.initialized {
		return nil
	}

	sqlite_vec.Auto()

	if err := os.MkdirAll(filepath.Dir(b.dbPath), 0o755); err != nil {
		return fmt.Errorf("create vector db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", b.dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("open vector db: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
CREATE TABLE IF NOT EXISTS vector_documents (
  id TEXT PRIMARY KEY,
  sqlite_id INTEGER NOT NULL,
  doc_type TEXT NOT NULL,
  content TEXT NOT NULL,
  memory_session_id TEXT,
  project TEXT,
  created_at_epoch INTEGER NOT NULL,
  metadata TEXT,
  embedding BLOB NOT NULL,
  dim INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vector_documents_owner ON vector_documents(doc_type, sqlite_id);
CREATE INDEX IF NOT EXISTS idx_vector_documents_project ON vector_documents(project);

CREATE TABLE IF NOT EXISTS embedding_cache (
  content_hash TEXT PRIMARY KEY,
  embedding BLOB NOT NULL,
  dim INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("create vector schema: %w", err)
	}

	// The ANN index is optional: probe for the extension before creating
	// the virtual table.
	var vecVersion string
	if err := db.QueryRow(`SELECT vec_version()`).Scan(&vecVersion); err == nil {
		vtable := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_documents USING vec0(
  doc_id TEXT PRIMARY KEY,
  embedding float[%d]
)`, b.dim)
		if _, err := db.Exec(vtable); err != nil {
			b.logger.Warn("vec0 virtual table creation failed, falling back to brute-force scan", "error", err)
		} else {
			b.annAvailable = true
			b.logger.Info("sqlite-vec ANN index available", "version", vecVersion, "dim", b.dim)
		}
	} else {
		b.logger.Warn("sqlite-vec extension unavailable, falling back to brute-force scan", "error", err)
	}

	b.db = db
	b.initialized = true
	return nil
}

// SyncObservation granulates and upserts an observation's documents.
func (b *SqliteVecBackend) SyncObservation(ctx context.Context, obs *models.Observation) error {
	return b.upsertDocuments(ctx, GranulateObservation(obs))
}

// SyncSummary granulates and upserts a summary's documents.
func (b *SqliteVecBackend) SyncSummary(ctx context.Context, sum *models.Summary) error {
	return b.upsertDocuments(ctx, GranulateSummary(sum))
}

// SyncUserPrompt upserts the document for a user prompt.
func (b *SqliteVecBackend) SyncUserPrompt(ctx context.Context, prompt *models.UserPrompt) error {
	return b.upsertDocuments(ctx, GranulateUserPrompt(prompt))
}

func (b *SqliteVecBackend) upsertDocuments(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.initLocked(); err != nil {
		return err
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := b.embedCached(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	for i, doc := range docs {
		metadata, _ := json.Marshal(doc.Metadata)
		blob := embedding.EncodeBlob(vectors[i])

		_, err := b.db.Exec(`
			INSERT INTO vector_documents (id, sqlite_id, doc_type, content, memory_session_id, project, created_at_epoch, metadata, embedding, dim)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				metadata = excluded.metadata,
				embedding = excluded.embedding,
				dim = excluded.dim
		`, doc.ID, doc.SQLiteID, doc.DocType, doc.Content, doc.MemorySessionID,
			doc.Project, doc.CreatedAtEpoch, string(metadata), blob, len(vectors[i]))
		if err != nil {
			return fmt.Errorf("upsert document %s: %w", doc.ID, err)
		}

		if b.annAvailable {
			serialized, err := sqlite_vec.SerializeFloat32(vectors[i])
			if err != nil {
				return fmt.Errorf("serialize vector for %s: %w", doc.ID, err)
			}
			if _, err := b.db.Exec(`DELETE FROM vec_documents WHERE doc_id = ?`, doc.ID); err != nil {
				return fmt.Errorf("replace ann row %s: %w", doc.ID, err)
			}
			if _, err := b.db.Exec(`INSERT INTO vec_documents (doc_id, embedding) VALUES (?, ?)`, doc.ID, serialized); err != nil {
				return fmt.Errorf("insert ann row %s: %w", doc.ID, err)
			}
		}
	}

	b.lastSync = time.Now().UnixMilli()
	return nil
}

// embedCached returns one vector per text, consulting the content-hash
// cache before calling the provider. Caller holds the mutex.
func (b *SqliteVecBackend) embedCached(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, text := range texts {
		hash := contentHash(text)
		var blob []byte
		err := b.db.QueryRow(`SELECT embedding FROM embedding_cache WHERE content_hash = ?`, hash).Scan(&blob)
		if err == nil {
			if v, decErr := embedding.DecodeBlob(blob); decErr == nil {
				vectors[i] = v
				continue
			}
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		fresh, _, err := b.provider.Embed(ctx, missing)
		if err != nil {
			return nil, err
		}
		now := time.Now().UnixMilli()
		for j, v := range fresh {
			vectors[missingIdx[j]] = v
			_, _ = b.db.Exec(`
				INSERT INTO embedding_cache (content_hash, embedding, dim, updated_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(content_hash) DO UPDATE SET embedding = excluded.embedding, dim = excluded.dim, updated_at = excluded.updated_at
			`, contentHash(missing[j]), embedding.EncodeBlob(v), len(v), now)
		}
	}
	return vectors, nil
}

// Query embeds the query text and returns the nearest documents matching
// the filters, deduplicated by owning row.
func (b *SqliteVecBackend) Query(ctx context.Context, query string, limit int, filters Filters) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	b.mu.Lock()
	if err := b.initLocked(); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	ann := b.annAvailable
	b.mu.Unlock()

	vectors, _, err := b.provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec := vectors[0]

	var results []Result
	if ann {
		results, err = b.annQuery(queryVec, limit, filters)
	} else {
		results, err = b.bruteForceQuery("main", queryVec, filters)
	}
	if err != nil {
		return nil, err
	}

	return dedupeByOwner(results, limit), nil
}

// annQuery asks the vec0 index for an oversized candidate set, then joins
// and filters against the document table.
func (b *SqliteVecBackend) annQuery(queryVec []float32, limit int, filters Filters) ([]Result, error) {
	serialized, err := sqlite_vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	// Over-fetch so that post-filtering still leaves enough candidates.
	k := limit * 8
	if k < 50 {
		k = 50
	}

	rows, err := b.db.Query(`
		SELECT doc_id, distance FROM vec_documents
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance
	`, serialized, k)
	if err != nil {
		return nil, fmt.Errorf("ann query: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		docID    string
		distance float64
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.docID, &c.distance); err != nil {
			return nil, fmt.Errorf("scan ann candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []Result
	for _, c := range candidates {
		res, ok, err := b.loadDocument("main", c.docID, filters)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		res.Distance = c.distance
		results = append(results, res)
	}
	return results, nil
}

func (b *SqliteVecBackend) loadDocument(schema, docID string, filters Filters) (Result, bool, error) {
	var res Result
	var metadata sql.NullString
	var memorySessionID, project sql.NullString
	var epoch int64

	err := b.db.QueryRow(fmt.Sprintf(`
		SELECT id, sqlite_id, doc_type, content, memory_session_id, project, created_at_epoch, metadata
		FROM %s.vector_documents WHERE id = ?
	`, schema), docID).Scan(&res.DocID, &res.SQLiteID, &res.DocType, &res.Content,
		&memorySessionID, &project, &epoch, &metadata)
	if err == sql.ErrNoRows {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, fmt.Errorf("load document %s: %w", docID, err)
	}

	if !matchesFilters(filters, res.DocType, project.String, memorySessionID.String, epoch) {
		return Result{}, false, nil
	}

	if metadata.Valid && metadata.String != "" {
		_ = json.Unmarshal([]byte(metadata.String), &res.Metadata)
	}
	return res, true, nil
}

// bruteForceQuery scans every document in the named schema that matches the
// filters and scores it by cosine distance.
func (b *SqliteVecBackend) bruteForceQuery(schema string, queryVec []float32, filters Filters) ([]Result, error) {
	query := fmt.Sprintf(`
		SELECT id, sqlite_id, doc_type, content, memory_session_id, project, created_at_epoch, metadata, embedding
		FROM %s.vector_documents`, schema)
	where, args := filterClause(filters)
	query += where

	rows, err := b.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("brute-force scan: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var res Result
		var metadata, memorySessionID, project sql.NullString
		var epoch int64
		var blob []byte
		if err := rows.Scan(&res.DocID, &res.SQLiteID, &res.DocType, &res.Content,
			&memorySessionID, &project, &epoch, &metadata, &blob); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}

		vec, err := embedding.DecodeBlob(blob)
		if err != nil {
			continue
		}
		res.Distance = 1 - embedding.CosineSimilarity(queryVec, vec)
		if metadata.Valid && metadata.String != "" {
			_ = json.Unmarshal([]byte(metadata.String), &res.Metadata)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	return results, nil
}

func filterClause(filters Filters) (string, []any) {
	clause := ""
	var args []any
	add := func(cond string, arg any) {
		if clause == "" {
			clause = " WHERE " + cond
		} else {
			clause += " AND " + cond
		}
		args = append(args, arg)
	}
	if filters.Project != "" {
		add("project = ?", filters.Project)
	}
	if filters.DocType != "" {
		add("doc_type = ?", filters.DocType)
	}
	if filters.MemorySessionID != "" {
		add("memory_session_id = ?", filters.MemorySessionID)
	}
	if filters.MinEpoch > 0 {
		add("created_at_epoch >= ?", filters.MinEpoch)
	}
	if filters.MaxEpoch > 0 {
		add("created_at_epoch <= ?", filters.MaxEpoch)
	}
	return clause, args
}

func matchesFilters(filters Filters, docType, project, memorySessionID string, epoch int64) bool {
	if filters.DocType != "" && filters.DocType != docType {
		return false
	}
	if filters.Project != "" && filters.Project != project {
		return false
	}
	if filters.MemorySessionID != "" && filters.MemorySessionID != memorySessionID {
		return false
	}
	if filters.MinEpoch > 0 && epoch < filters.MinEpoch {
		return false
	}
	if filters.MaxEpoch > 0 && epoch > filters.MaxEpoch {
		return false
	}
	return true
}

// dedupeByOwner keeps the best-scoring document per owning row.
func dedupeByOwner(results []Result, limit int) []Result {
	type ownerKey struct {
		docType  string
		sqliteID int64
	}
	seen := make(map[ownerKey]bool)
	var deduped []Result
	for _, res := range results {
		key := ownerKey{res.DocType, res.SQLiteID}
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, res)
		if len(deduped) >= limit {
			break
		}
	}
	return deduped
}

// EnsureBackfilled reconciles the vector store against the relational rows:
// any row whose expected first document id is absent is re-synced. Safe to
// interrupt and resume.
func (b *SqliteVecBackend) EnsureBackfilled(ctx context.Context) error {
	if b.source == nil {
		return nil
	}
	if err := b.Initialize(ctx); err != nil {
		return err
	}

	observations, err := b.source.AllObservations()
	if err != nil {
		return fmt.Errorf("backfill: list observations: %w", err)
	}
	for _, obs := range observations {
		docs := GranulateObservation(obs)
		missing, err := b.anyMissing(docs)
		if err != nil {
			return err
		}
		if missing {
			if err := b.SyncObservation(ctx, obs); err != nil {
				return fmt.Errorf("backfill observation %d: %w", obs.ID, err)
			}
		}
	}

	summaries, err := b.source.AllSummaries()
	if err != nil {
		return fmt.Errorf("backfill: list summaries: %w", err)
	}
	for _, sum := range summaries {
		docs := GranulateSummary(sum)
		missing, err := b.anyMissing(docs)
		if err != nil {
			return err
		}
		if missing {
			if err := b.SyncSummary(ctx, sum); err != nil {
				return fmt.Errorf("backfill summary %d: %w", sum.ID, err)
			}
		}
	}

	prompts, err := b.source.AllUserPrompts()
	if err != nil {
		return fmt.Errorf("backfill: list prompts: %w", err)
	}
	for _, prompt := range prompts {
		docs := GranulateUserPrompt(prompt)
		missing, err := b.anyMissing(docs)
		if err != nil {
			return err
		}
		if missing {
			if err := b.SyncUserPrompt(ctx, prompt); err != nil {
				return fmt.Errorf("backfill prompt %d: %w", prompt.ID, err)
			}
		}
	}
	return nil
}

func (b *SqliteVecBackend) anyMissing(docs []Document) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, doc := range docs {
		var one int
		err := b.db.QueryRow(`SELECT 1 FROM vector_documents WHERE id = ?`, doc.ID).Scan(&one)
		if err == sql.ErrNoRows {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("probe document %s: %w", doc.ID, err)
		}
	}
	return false, nil
}

// Stats reports document count and index state.
func (b *SqliteVecBackend) Stats(ctx context.Context) (Stats, error) {
	if err := b.Initialize(ctx); err != nil {
		return Stats{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var count int
	if err := b.db.QueryRow(`SELECT COUNT(*) FROM vector_documents`).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("count documents: %w", err)
	}

	name := "sqlite-vec"
	if !b.annAvailable {
		name = "sqlite-vec (brute-force)"
	}
	return Stats{
		Backend:    name,
		Documents:  count,
		Collection: "vector_documents",
		Dimensions: b.dim,
		LastSync:   b.lastSync,
	}, nil
}

// DeleteDocuments removes documents and their ANN rows by id.
func (b *SqliteVecBackend) DeleteDocuments(ctx context.Context, ids []string) error {
	if err := b.Initialize(ctx); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		if _, err := b.db.Exec(`DELETE FROM vector_documents WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete document %s: %w", id, err)
		}
		if b.annAvailable {
			if _, err := b.db.Exec(`DELETE FROM vec_documents WHERE doc_id = ?`, id); err != nil {
				return fmt.Errorf("delete ann row %s: %w", id, err)
			}
		}
	}
	return nil
}

// AttachRemote attaches another vector database read-only for federated
// queries. At most three remotes may be attached.
func (b *SqliteVecBackend) AttachRemote(path string) error {
	if err := b.Initialize(context.Background()); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := federation.ValidateRemoteCount(len(b.remotes) + 1); err != nil {
		return err
	}

	schema := fmt.Sprintf("fed_remote_%d", len(b.remotes)+1)
	uri := fmt.Sprintf("file:%s?mode=ro", path)
	if _, err := b.db.Exec(fmt.Sprintf(`ATTACH DATABASE '%s' AS %s`, uri, schema)); err != nil {
		return fmt.Errorf("attach remote %s: %w", path, err)
	}
	b.remotes = append(b.remotes, schema)
	b.logger.Info("attached federation remote", "path", path, "schema", schema)
	return nil
}

// QueryFederated runs the query against the local store and every attached
// remote, combining scores with the configured decay schedule. Each remote
// gets its own timeout; slow remotes are dropped, not awaited.
func (b *SqliteVecBackend) QueryFederated(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 10
	}

	overall, cancel := context.WithTimeout(ctx, b.fedCfg.OverallBudget())
	defer cancel()

	vectors, _, err := b.provider.Embed(overall, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed federated query: %w", err)
	}
	queryVec := vectors[0]

	local, err := b.Query(overall, query, limit*2, Filters{})
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	remotes := append([]string(nil), b.remotes...)
	b.mu.Unlock()

	weights := federation.Weights(b.fedCfg.Decay, len(remotes))

	remoteResults := make([][]federation.Scored, len(remotes))
	for i, schema := range remotes {
		perRemote, cancelRemote := context.WithTimeout(overall, b.fedCfg.PerRemoteTimeout())
		results, err := b.remoteScan(perRemote, schema, queryVec)
		cancelRemote()
		if err != nil {
			b.logger.Warn("federation remote dropped", "schema", schema, "error", err)
			continue
		}
		scored := make([]federation.Scored, len(results))
		for j, res := range results {
			scored[j] = federation.Scored{ID: res.DocID, Score: 1 - res.Distance, Payload: res}
		}
		remoteResults[i] = scored
	}

	localScored := make([]federation.Scored, len(local))
	for i, res := range local {
		localScored[i] = federation.Scored{ID: res.DocID, Score: 1 - res.Distance, Payload: res}
	}

	merged := federation.Merge(localScored, remoteResults, weights)
	out := make([]Result, 0, limit)
	for _, m := range merged {
		res := m.Payload.(Result)
		res.Distance = 1 - m.Score
		out = append(out, res)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// remoteScan brute-force scans one attached remote. Remote ANN indexes are
// not consulted; remotes are read-only views.
func (b *SqliteVecBackend) remoteScan(ctx context.Context, schema string, queryVec []float32) ([]Result, error) {
	done := make(chan struct{})
	var results []Result
	var err error

	go func() {
		defer close(done)
		b.mu.Lock()
		defer b.mu.Unlock()
		results, err = b.bruteForceQuery(schema, queryVec, Filters{})
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-done:
		return results, err
	}
}

// Close closes the underlying database.
func (b *SqliteVecBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	b.initialized = false
	return err
}

func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
