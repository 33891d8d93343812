// Package auditsink mirrors every persisted decision record to Postgres for
// retrospective query ("every deny this role received last week"). The JSONL
// store remains the system of record; this is a best-effort secondary index
// that never blocks or fails a cascade turn. Grounded on
// orchestrator/replay/postgres_repository.go's upsert-by-id shape, trimmed
// to an append-only insert since decision records are immutable.
package auditsink

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"permgate/internal/decision"
	"permgate/internal/obslog"
	"permgate/internal/pgerr"
)

// Sink writes decision records to a Postgres table. The zero value is not
// usable; construct with New or NewWithDB.
type Sink struct {
	db  *sql.DB
	log *obslog.Logger
}

// New opens a Postgres connection pool at dsn and wraps it in a Sink.
func New(dsn string) (*Sink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, pgerr.Wrap(pgerr.Storage, "open audit sink database", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already-open *sql.DB, letting tests inject a
// go-sqlmock connection instead of a real Postgres instance.
func NewWithDB(db *sql.DB) *Sink {
	return &Sink{db: db, log: obslog.New("auditsink")}
}

// Schema is the DDL operators run once to provision the audit table.
const Schema = `
CREATE TABLE IF NOT EXISTS permgate_decisions (
	id UUID PRIMARY KEY,
	session_id TEXT NOT NULL,
	tool TEXT NOT NULL,
	role TEXT NOT NULL,
	sanitized_input TEXT NOT NULL,
	file_path TEXT,
	verdict TEXT NOT NULL,
	scope TEXT NOT NULL,
	tier TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	raw JSONB NOT NULL
)`

// Migrate creates the audit table if it does not already exist.
func (s *Sink) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return pgerr.Wrap(pgerr.Storage, "migrate audit sink schema", err)
	}
	return nil
}

// Record mirrors rec into the audit table. Failure is returned to the
// caller, who per spec is expected to log and discard it rather than fail
// the cascade turn that already produced rec's verdict.
func (s *Sink) Record(ctx context.Context, rec decision.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return pgerr.Wrap(pgerr.Serialization, "marshal audit record", err)
	}

	var filePath interface{}
	if rec.FilePath != nil {
		filePath = *rec.FilePath
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO permgate_decisions (
			id, session_id, tool, role, sanitized_input, file_path,
			verdict, scope, tier, confidence, reason, recorded_at, raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		uuid.NewString(), rec.SessionID, rec.Key.Tool, rec.Key.Role, rec.Key.SanitizedInput, filePath,
		string(rec.Decision), string(rec.Scope), string(rec.Metadata.Tier), rec.Metadata.Confidence,
		rec.Metadata.Reason, rec.Timestamp, raw,
	)
	if err != nil {
		return pgerr.Wrap(pgerr.Storage, "insert audit record", err)
	}
	return nil
}

// RecordAsync fires Record in a goroutine and logs any failure, per spec's
// "fire and forget... never block or fail a cascade turn" requirement.
func (s *Sink) RecordAsync(ctx context.Context, rec decision.Record) {
	go func() {
		if err := s.Record(ctx, rec); err != nil {
			s.log.ErrorWithErr(rec.SessionID, "audit sink mirror failed", err, map[string]interface{}{
				"tool": rec.Key.Tool,
			})
		}
	}()
}

// Close releases the underlying connection pool.
func (s *Sink) Close() error {
	return s.db.Close()
}
