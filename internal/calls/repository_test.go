package calls

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	now := time.Unix(1700000100, 0).UTC()
	return NewPostgresStore(db, Options{PublicBaseURL: "https://calls.example.com", Now: func() time.Time { return now }}), mock
}

func TestPostgresStore_InsertCallStartCreatesRow(t *testing.T) {
	s, mock := newMockStore(t)
	in := testStart("room-1")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM call_records WHERE call_id = $1`)).
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`)).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO models (id, name)`)).
		WithArgs("agent-outbound").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO call_records`)).
		WithArgs(
			"room-1", "agent-outbound", DefaultUserID, "Outbound Call", "+15550001111", "+15552223333",
			"Outbound", StatusStarted, in.StartedAt, sqlmock.AnyArg(),
			"https://calls.example.com/api/transcript/room-1",
			"https://calls.example.com/api/recording/room-1",
			sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))
	mock.ExpectCommit()

	id, err := s.InsertCallStart(context.Background(), in)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected id 42, got %d", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_InsertCallStartShortCircuitsExisting(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM call_records WHERE call_id = $1`)).
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(9)))
	mock.ExpectCommit()

	id, err := s.InsertCallStart(context.Background(), testStart("room-1"))
	if err != nil || id != 9 {
		t.Fatalf("expected existing id 9, got %d %v", id, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_InsertCallStartRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM call_records`)).
		WillReturnError(errors.New("connection refused"))
	mock.ExpectRollback()

	if _, err := s.InsertCallStart(context.Background(), testStart("room-1")); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_InsertCallEndMissingRow(t *testing.T) {
	s, mock := newMockStore(t)
	end := time.Unix(1700000200, 0).UTC()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE call_records`)).
		WithArgs("room-1", end, "Call ended", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.InsertCallEnd(context.Background(), "room-1", "Call ended", end)
	if err != nil || ok {
		t.Fatalf("expected false without error, got %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_UpdateStatusGuardsEnded(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE call_records SET status = $2, updated_at = $3`)).
		WithArgs("room-1", "transferring", sqlmock.AnyArg(), StatusEnded).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.UpdateStatus(context.Background(), "room-1", "transferring")
	if err != nil || !ok {
		t.Fatalf("expected update, got %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM call_records WHERE call_id = $1`)).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_ListBuildsFilters(t *testing.T) {
	s, mock := newMockStore(t)
	started := time.Unix(1700000000, 0).UTC()
	ended := started.Add(time.Minute)
	uid := int64(7)

	cols := []string{
		"id", "call_id", "model_id", "user_id", "name", "from_number", "to_number", "call_type", "status",
		"started_at", "ended_at", "duration_seconds", "metadata", "transferred", "transfer_to", "summary",
		"transcript_url", "recording_url", "conversation_quality", "entities", "success_status", "created_at", "updated_at",
	}
	mock.ExpectQuery(`WHERE user_id = \$1 AND status = \$2 ORDER BY started_at DESC, id DESC LIMIT \$3 OFFSET \$4`).
		WithArgs(uid, "Call ended", int64(100), int64(0)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			int64(1), "room-1", "agent", uid, "Outbound Call", "+1", "+2", "Outbound", "Call ended",
			started, ended, 60, []byte(`{}`), false, "", "", "", "", nil, nil, "", started, ended,
		))

	rows, err := s.List(context.Background(), ListFilter{UserID: &uid, Status: "Call ended"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].EndedAt == nil || rows[0].DurationSeconds != 60 || rows[0].CallType != CallTypeOutbound {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
