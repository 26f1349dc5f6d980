package calls

import (
	"context"
	"database/sql"
	"fmt"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
  id         BIGINT PRIMARY KEY,
  name       TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS models (
  id         TEXT PRIMARY KEY,
  name       TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS call_records (
  id                   BIGSERIAL PRIMARY KEY,
  call_id              TEXT NOT NULL UNIQUE,
  model_id             TEXT NOT NULL REFERENCES models (id),
  user_id              BIGINT NOT NULL REFERENCES users (id),
  name                 TEXT NOT NULL DEFAULT '',
  from_number          TEXT NOT NULL DEFAULT '',
  to_number            TEXT NOT NULL DEFAULT '',
  call_type            TEXT NOT NULL DEFAULT '',
  status               TEXT NOT NULL,
  started_at           TIMESTAMPTZ NOT NULL,
  ended_at             TIMESTAMPTZ,
  duration_seconds     INT NOT NULL DEFAULT 0,
  metadata             JSONB NOT NULL DEFAULT '{}'::jsonb,
  transferred          BOOLEAN NOT NULL DEFAULT false,
  transfer_to          TEXT NOT NULL DEFAULT '',
  summary              TEXT NOT NULL DEFAULT '',
  transcript_url       TEXT NOT NULL DEFAULT '',
  recording_url        TEXT NOT NULL DEFAULT '',
  conversation_quality JSONB,
  entities             JSONB,
  success_status       TEXT NOT NULL DEFAULT '',
  created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS call_records_user_started_idx ON call_records (user_id, started_at DESC);
`

const seedDefaultUserSQL = `
INSERT INTO users (id, name) VALUES ($1, 'default')
ON CONFLICT (id) DO NOTHING
`

// EnsureSchema creates the call tables and the default user row.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("calls: create schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, seedDefaultUserSQL, DefaultUserID); err != nil {
		return fmt.Errorf("calls: seed default user: %w", err)
	}
	return nil
}
