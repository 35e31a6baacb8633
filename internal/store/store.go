// Package store persists the redacted corpus in a single SQLite file:
// chunks from ingestion and the embedding vectors computed for them. The
// pure Go driver keeps the binary self-contained.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/evidentlabs/beacon/internal/model"
)

// Store wraps the corpus database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id              TEXT PRIMARY KEY,
	text            TEXT NOT NULL,
	file            TEXT NOT NULL,
	line_start      INTEGER NOT NULL,
	line_end        INTEGER NOT NULL,
	conversation_id TEXT NOT NULL,
	project         TEXT NOT NULL,
	ts              INTEGER NOT NULL,
	participants    TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project);
CREATE TABLE IF NOT EXISTS vectors (
	chunk_id     TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
	content_hash TEXT NOT NULL,
	dims         INTEGER NOT NULL,
	vec          BLOB NOT NULL
);
`

// Open opens a writable corpus store, creating the file and parent
// directories on first use.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing store for report runs. A missing or
// unreadable store is the caller's fatal-collaborator case.
func OpenReadOnly(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("store %s: %w", path, err)
	}
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertChunks writes chunks in one transaction, replacing rows that share
// an ID. Content-derived IDs make re-ingestion idempotent.
func (s *Store) UpsertChunks(ctx context.Context, chunks []model.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, text, file, line_start, line_end, conversation_id, project, ts, participants)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			file = excluded.file,
			line_start = excluded.line_start,
			line_end = excluded.line_end,
			conversation_id = excluded.conversation_id,
			project = excluded.project,
			ts = excluded.ts,
			participants = excluded.participants`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		participants, err := json.Marshal(c.Participants)
		if err != nil {
			return fmt.Errorf("marshal participants for %s: %w", c.ID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			c.ID, c.Text, c.File, c.LineStart, c.LineEnd,
			c.ConversationID, c.Project, c.Timestamp.Unix(), string(participants),
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Chunks returns the full corpus snapshot in a deterministic order.
func (s *Store) Chunks(ctx context.Context) ([]model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, file, line_start, line_end, conversation_id, project, ts, participants
		FROM chunks
		ORDER BY project, file, line_start, id`)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.Chunk
	for rows.Next() {
		var (
			c            model.Chunk
			ts           int64
			participants string
		)
		if err := rows.Scan(&c.ID, &c.Text, &c.File, &c.LineStart, &c.LineEnd,
			&c.ConversationID, &c.Project, &ts, &participants); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Timestamp = time.Unix(ts, 0).UTC()
		if err := json.Unmarshal([]byte(participants), &c.Participants); err != nil {
			return nil, fmt.Errorf("unmarshal participants for %s: %w", c.ID, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

// VectorHashes returns the stored content hash per embedded chunk, letting
// the indexer skip chunks whose text has not changed.
func (s *Store) VectorHashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, content_hash FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("query vector hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("scan vector hash: %w", err)
		}
		hashes[id] = hash
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector hashes: %w", err)
	}
	return hashes, nil
}

// UpsertVector stores one chunk embedding.
func (s *Store) UpsertVector(ctx context.Context, chunkID, contentHash string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("empty vector for chunk %s", chunkID)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vectors (chunk_id, content_hash, dims, vec)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			content_hash = excluded.content_hash,
			dims = excluded.dims,
			vec = excluded.vec`,
		chunkID, contentHash, len(vec), encodeVector(vec))
	if err != nil {
		return fmt.Errorf("upsert vector %s: %w", chunkID, err)
	}
	return nil
}

// Vectors returns every stored embedding keyed by chunk ID.
func (s *Store) Vectors(ctx context.Context) (map[string][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, dims, vec FROM vectors`)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	vectors := make(map[string][]float32)
	for rows.Next() {
		var (
			id   string
			dims int
			blob []byte
		)
		if err := rows.Scan(&id, &dims, &blob); err != nil {
			return nil, fmt.Errorf("scan vector: %w", err)
		}
		vec, err := decodeVector(blob, dims)
		if err != nil {
			return nil, fmt.Errorf("decode vector %s: %w", id, err)
		}
		vectors[id] = vec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vectors: %w", err)
	}
	return vectors, nil
}

// CountChunks reports how many chunks the store holds.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// CountVectors reports how many embeddings the store holds.
func (s *Store) CountVectors(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return n, nil
}

// encodeVector packs float32s little-endian.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(blob []byte, dims int) ([]float32, error) {
	if len(blob) != 4*dims {
		return nil, fmt.Errorf("blob length %d does not match dims %d", len(blob), dims)
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
