package sqlitefts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the lexical index adapter over a SQLite FTS5 table. It owns the
// engine-specific details the core must not see: the MATCH grammar and the
// bm25 polarity (lower-is-better on the wire, flipped here so higher is
// always better for the ranker).
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// Reset drops and recreates the chunk tables. The ingest pipeline rebuilds
// the whole corpus on every run; the serving path never calls this.
func (s *Store) Reset(ctx context.Context) error {
	const ddl = `
DROP TABLE IF EXISTS chunks;
DROP TABLE IF EXISTS chunks_fts;
DROP TRIGGER IF EXISTS chunks_ai;

CREATE TABLE chunks (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	source_id TEXT NOT NULL,
	chunk_num INTEGER NOT NULL
);

CREATE VIRTUAL TABLE chunks_fts USING fts5(
	content,
	content='chunks',
	content_rowid='rowid'
);

CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
	INSERT INTO chunks_fts(rowid, content) VALUES (new.rowid, new.content);
END;
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("execute chunk schema ddl: %w", err)
	}
	return nil
}

type ChunkRecord struct {
	ID       string
	Content  string
	SourceID string
	ChunkNum int
}

func (s *Store) InsertChunk(ctx context.Context, chunk ChunkRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO chunks (id, content, source_id, chunk_num) VALUES (?, ?, ?, ?)
`, chunk.ID, chunk.Content, chunk.SourceID, chunk.ChunkNum)
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// Score runs one point lookup: does this chunk match the sanitized phrase,
// and how strongly. ok is false when the engine reports no match. The FTS5
// bm25() value is negated so that a better match yields a larger score.
func (s *Store) Score(ctx context.Context, chunkID, phrase string) (float64, bool, error) {
	const query = `
SELECT bm25(chunks_fts) AS bm25_score
FROM chunks_fts
WHERE rowid = (SELECT rowid FROM chunks WHERE id = ?)
  AND content MATCH ?
`
	var bm25Score float64
	err := s.db.QueryRowContext(ctx, query, chunkID, phrase).Scan(&bm25Score)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lexical score lookup: %w", err)
	}
	return -bm25Score, true, nil
}
