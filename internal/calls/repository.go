package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"voice-call-agent/pkg/utils"
)

// PostgresStore is the database/sql Store. Open the *sql.DB with the pgx
// stdlib driver.
type PostgresStore struct {
	db   *sql.DB
	opts Options
}

func NewPostgresStore(db *sql.DB, opts Options) *PostgresStore {
	return &PostgresStore{db: db, opts: opts.withDefaults()}
}

const recordColumns = `
id, call_id, model_id, user_id, name, from_number, to_number, call_type, status,
started_at, ended_at, duration_seconds, metadata, transferred, transfer_to, summary,
transcript_url, recording_url, conversation_quality, entities, success_status, created_at, updated_at`

/* ===================== CALL LIFECYCLE ===================== */

func (s *PostgresStore) InsertCallStart(ctx context.Context, in CallStart) (int64, error) {
	if err := validateStart(in); err != nil {
		return 0, err
	}
	meta, err := marshalObject(in.Metadata)
	if err != nil {
		return 0, err
	}

	var id int64
	err = utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		existing, found, err := findCallID(ctx, tx, in.CallID)
		if err != nil {
			return err
		}
		if found {
			id = existing
			return nil
		}

		user, err := resolveUser(ctx, tx, in.UserID)
		if err != nil {
			return err
		}
		if err := ensureModel(ctx, tx, in.ModelID); err != nil {
			return err
		}

		const q = `
INSERT INTO call_records (
  call_id, model_id, user_id, name, from_number, to_number, call_type, status,
  started_at, metadata, transcript_url, recording_url, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$13
)
ON CONFLICT (call_id) DO UPDATE SET call_id = call_records.call_id
RETURNING id
`
		return tx.QueryRowContext(ctx, q,
			in.CallID,
			in.ModelID,
			user,
			in.Name,
			in.From,
			in.To,
			string(in.CallType),
			in.Status,
			in.StartedAt,
			[]byte(meta),
			s.opts.transcriptURL(in.CallID),
			s.opts.recordingURL(in.CallID),
			s.opts.Now(),
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("calls: insert call start: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) InsertCallEnd(ctx context.Context, callID, status string, endedAt time.Time) (bool, error) {
	const q = `
UPDATE call_records
SET ended_at = $2::timestamptz,
    status = $3,
    duration_seconds = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($2::timestamptz - started_at))))::int,
    updated_at = $4
WHERE call_id = $1
`
	return s.exec(ctx, "insert call end", q, callID, endedAt, status, s.opts.Now())
}

/* ===================== ENRICHMENT UPDATES ===================== */

func (s *PostgresStore) UpdateStatus(ctx context.Context, callID, status string) (bool, error) {
	const q = `
UPDATE call_records SET status = $2, updated_at = $3
WHERE call_id = $1 AND status <> $4
`
	return s.exec(ctx, "update status", q, callID, status, s.opts.Now(), StatusEnded)
}

func (s *PostgresStore) UpdateTransfer(ctx context.Context, callID string, t Transfer) (bool, error) {
	const q = `
UPDATE call_records SET transferred = $2, transfer_to = $3, updated_at = $4
WHERE call_id = $1 AND status <> $5
`
	return s.exec(ctx, "update transfer", q, callID, t.Transferred, t.To, s.opts.Now(), StatusEnded)
}

func (s *PostgresStore) UpdateSummary(ctx context.Context, callID, summary string) (bool, error) {
	const q = `UPDATE call_records SET summary = $2, updated_at = $3 WHERE call_id = $1`
	return s.exec(ctx, "update summary", q, callID, summary, s.opts.Now())
}

func (s *PostgresStore) UpdateQuality(ctx context.Context, callID string, quality map[string]any) (bool, error) {
	b, err := marshalObject(quality)
	if err != nil {
		return false, err
	}
	const q = `UPDATE call_records SET conversation_quality = $2, updated_at = $3 WHERE call_id = $1`
	return s.exec(ctx, "update quality", q, callID, []byte(b), s.opts.Now())
}

func (s *PostgresStore) UpdateEntities(ctx context.Context, callID string, entities map[string]any) (bool, error) {
	b, err := marshalObject(entities)
	if err != nil {
		return false, err
	}
	const q = `UPDATE call_records SET entities = $2, updated_at = $3 WHERE call_id = $1`
	return s.exec(ctx, "update entities", q, callID, []byte(b), s.opts.Now())
}

func (s *PostgresStore) UpdateSuccessStatus(ctx context.Context, callID, status string) (bool, error) {
	const q = `UPDATE call_records SET success_status = $2, updated_at = $3 WHERE call_id = $1`
	return s.exec(ctx, "update success status", q, callID, status, s.opts.Now())
}

/* ===================== READS ===================== */

func (s *PostgresStore) Get(ctx context.Context, callID string) (CallRecord, error) {
	q := `SELECT ` + recordColumns + ` FROM call_records WHERE call_id = $1`
	r, err := scanRecord(s.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, fmt.Errorf("calls: get: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]CallRecord, error) {
	f = f.withDefaults()

	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != nil {
		add("user_id = $%d", *f.UserID)
	}
	if !f.From.IsZero() {
		add("started_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("started_at < $%d", f.To)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.CallType != "" {
		add("call_type = $%d", string(f.CallType))
	}

	var b strings.Builder
	b.WriteString(`SELECT ` + recordColumns + ` FROM call_records`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	args = append(args, f.Limit, f.Offset)
	fmt.Fprintf(&b, " ORDER BY started_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("calls: list: %w", err)
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("calls: list scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calls: list: %w", err)
	}
	return out, nil
}

/* ===================== TX HELPERS ===================== */

func (s *PostgresStore) exec(ctx context.Context, op, q string, args ...any) (bool, error) {
	if id, _ := args[0].(string); id == "" {
		return false, ErrInvalidArgument
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("calls: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("calls: %s: %w", op, err)
	}
	return n > 0, nil
}

func findCallID(ctx context.Context, tx *sql.Tx, callID string) (int64, bool, error) {
	const q = `SELECT id FROM call_records WHERE call_id = $1`
	var id int64
	if err := tx.QueryRowContext(ctx, q, callID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

func resolveUser(ctx context.Context, tx *sql.Tx, userID int64) (int64, error) {
	if userID == DefaultUserID {
		return DefaultUserID, nil
	}
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
	var ok bool
	if err := tx.QueryRowContext(ctx, q, userID).Scan(&ok); err != nil {
		return 0, err
	}
	if !ok {
		return DefaultUserID, nil
	}
	return userID, nil
}

func ensureModel(ctx context.Context, tx *sql.Tx, modelID string) error {
	const q = `INSERT INTO models (id, name) VALUES ($1, $1) ON CONFLICT (id) DO NOTHING`
	_, err := tx.ExecContext(ctx, q, modelID)
	return err
}

/* ===================== ROW SCANNING ===================== */

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (CallRecord, error) {
	var (
		r        CallRecord
		callType string
		endedAt  sql.NullTime
		meta     []byte
		quality  []byte
		entities []byte
	)
	if err := row.Scan(
		&r.ID,
		&r.CallID,
		&r.ModelID,
		&r.UserID,
		&r.Name,
		&r.From,
		&r.To,
		&callType,
		&r.Status,
		&r.StartedAt,
		&endedAt,
		&r.DurationSeconds,
		&meta,
		&r.Transferred,
		&r.TransferTo,
		&r.Summary,
		&r.TranscriptURL,
		&r.RecordingURL,
		&quality,
		&entities,
		&r.SuccessStatus,
		&r.CreatedAt,
		&r.UpdatedAt,
	); err != nil {
		return CallRecord{}, err
	}
	r.CallType = CallType(callType)
	if endedAt.Valid {
		t := endedAt.Time
		r.EndedAt = &t
	}
	r.Metadata = rawJSON(meta)
	r.Quality = rawJSON(quality)
	r.Entities = rawJSON(entities)
	return r, nil
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return json.RawMessage(b)
}
