package calls

import (
	"context"
	"testing"
	"time"
)

func testStart(callID string) CallStart {
	return CallStart{
		CallID:    callID,
		ModelID:   "agent-outbound",
		UserID:    7,
		Name:      "Outbound Call",
		From:      "+15550001111",
		To:        "+15552223333",
		CallType:  CallTypeOutbound,
		Status:    StatusStarted,
		Metadata:  map[string]any{"phone": "+15552223333"},
		StartedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestMemoryStore_InsertCallStartIsIdempotent(t *testing.T) {
	s := NewMemoryStore(Options{PublicBaseURL: "https://calls.example.com/"})
	ctx := context.Background()

	id1, err := s.InsertCallStart(ctx, testStart("call-1"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	second := testStart("call-1")
	second.Status = "Call timeout"
	id2, err := s.InsertCallStart(ctx, second)
	if err != nil {
		t.Fatalf("insert again: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same id, got %d and %d", id1, id2)
	}
	r, err := s.Get(ctx, "call-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Status != StatusStarted {
		t.Fatalf("first write must win, got status %q", r.Status)
	}
	if r.TranscriptURL != "https://calls.example.com/api/transcript/call-1" {
		t.Fatalf("unexpected transcript url %q", r.TranscriptURL)
	}
	if r.RecordingURL != "https://calls.example.com/api/recording/call-1" {
		t.Fatalf("unexpected recording url %q", r.RecordingURL)
	}
}

func TestMemoryStore_UnknownUserFallsBackToDefault(t *testing.T) {
	s := NewMemoryStore(Options{})
	ctx := context.Background()

	if _, err := s.InsertCallStart(ctx, testStart("a")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	s.AddUser(7)
	if _, err := s.InsertCallStart(ctx, testStart("b")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	a, _ := s.Get(ctx, "a")
	b, _ := s.Get(ctx, "b")
	if a.UserID != DefaultUserID {
		t.Fatalf("expected default user, got %d", a.UserID)
	}
	if b.UserID != 7 {
		t.Fatalf("expected user 7, got %d", b.UserID)
	}
	if !s.HasModel("agent-outbound") {
		t.Fatalf("expected model row to be created")
	}
}

func TestMemoryStore_InsertCallEnd(t *testing.T) {
	s := NewMemoryStore(Options{})
	ctx := context.Background()

	ok, err := s.InsertCallEnd(ctx, "missing", "Call ended", time.Now())
	if err != nil || ok {
		t.Fatalf("expected false for missing row, got %v %v", ok, err)
	}

	in := testStart("call-1")
	if _, err := s.InsertCallStart(ctx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}
	ok, err = s.InsertCallEnd(ctx, "call-1", "User disconnected", in.StartedAt.Add(42500*time.Millisecond))
	if err != nil || !ok {
		t.Fatalf("expected update, got %v %v", ok, err)
	}
	r, _ := s.Get(ctx, "call-1")
	if r.Status != "User disconnected" || r.DurationSeconds != 42 || !r.Completed() {
		t.Fatalf("unexpected record: %+v", r)
	}
}

func TestMemoryStore_StatusAndTransferRefuseEndedRows(t *testing.T) {
	s := NewMemoryStore(Options{})
	ctx := context.Background()

	in := testStart("call-1")
	in.Status = StatusEnded
	if _, err := s.InsertCallStart(ctx, in); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if ok, _ := s.UpdateStatus(ctx, "call-1", "transferring"); ok {
		t.Fatalf("status update must be refused on ended rows")
	}
	if ok, _ := s.UpdateTransfer(ctx, "call-1", Transfer{Transferred: true, To: "+1555"}); ok {
		t.Fatalf("transfer update must be refused on ended rows")
	}
	if ok, _ := s.UpdateSummary(ctx, "call-1", "short call"); !ok {
		t.Fatalf("summary update should apply")
	}
	if ok, _ := s.UpdateSuccessStatus(ctx, "call-1", SuccessSuccess); !ok {
		t.Fatalf("success update should apply")
	}
	if ok, _ := s.UpdateEntities(ctx, "call-1", map[string]any{"name": "Ada"}); !ok {
		t.Fatalf("entities update should apply")
	}
	r, _ := s.Get(ctx, "call-1")
	if r.Summary != "short call" || r.SuccessStatus != SuccessSuccess || string(r.Entities) != `{"name":"Ada"}` {
		t.Fatalf("unexpected record: %+v", r)
	}
}

func TestMemoryStore_ListFiltersAndOrders(t *testing.T) {
	s := NewMemoryStore(Options{})
	s.AddUser(7)
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	for i, id := range []string{"a", "b", "c"} {
		in := testStart(id)
		in.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if id == "c" {
			in.UserID = 8
		}
		if _, err := s.InsertCallStart(ctx, in); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	uid := int64(7)
	rows, err := s.List(ctx, ListFilter{UserID: &uid})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 || rows[0].CallID != "b" || rows[1].CallID != "a" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	rows, _ = s.List(ctx, ListFilter{From: base.Add(30 * time.Second), Limit: 1})
	if len(rows) != 1 || rows[0].CallID != "c" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}
