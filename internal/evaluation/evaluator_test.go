package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"voice-call-agent/internal/calls"
	"voice-call-agent/internal/dbqueue"
	"voice-call-agent/internal/session"
)

type fakeCompleter struct {
	mu       sync.Mutex
	summary  string
	verdict  string
	quality  string
	entities string
	err      error
	prompts  []Prompt
}

func (f *fakeCompleter) Complete(_ context.Context, p Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, p)
	if f.err != nil {
		return "", f.err
	}
	switch p.System {
	case successSystem:
		return f.verdict, nil
	case qualitySystem:
		return f.quality, nil
	case entitySystem:
		return f.entities, nil
	}
	return f.summary, nil
}

type inlineQueue struct {
	ops []string
}

func (q *inlineQueue) Enqueue(name string, fn dbqueue.Func) string {
	q.ops = append(q.ops, name)
	_, _ = fn(context.Background())
	return name
}

func seededStore(t *testing.T) *calls.MemoryStore {
	t.Helper()
	st := calls.NewMemoryStore(calls.Options{})
	_, err := st.InsertCallStart(context.Background(), calls.CallStart{
		CallID:    "call-1",
		ModelID:   "agent",
		CallType:  calls.CallTypeOutbound,
		Status:    calls.StatusStarted,
		StartedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return st
}

func TestParseSuccess(t *testing.T) {
	cases := map[string]string{
		"Success":                calls.SuccessSuccess,
		"success.":               calls.SuccessSuccess,
		"  FAILURE! ":            calls.SuccessFailure,
		"Undetermined":           calls.SuccessUndetermined,
		"The call was a Failure": calls.SuccessFailure,
		"unsuccessful":           calls.SuccessUndetermined,
		"":                       calls.SuccessUndetermined,
	}
	for in, want := range cases {
		if got := ParseSuccess(in); got != want {
			t.Fatalf("ParseSuccess(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestEvaluate_WritesSummaryAndStatus(t *testing.T) {
	st := seededStore(t)
	q := &inlineQueue{}
	c := &fakeCompleter{summary: "The user booked a flight.", verdict: "Success."}
	e := New(c, q, st, 0, nil)

	e.Evaluate(context.Background(), "call-1", "user: I want a flight\nassistant: Booked.")

	r, _ := st.Get(context.Background(), "call-1")
	if r.Summary != "The user booked a flight." || r.SuccessStatus != calls.SuccessSuccess {
		t.Fatalf("unexpected record: summary=%q success=%q", r.Summary, r.SuccessStatus)
	}
	want := []string{OpUpdateSummary, OpUpdateQuality, OpUpdateSuccessStatus}
	if strings.Join(q.ops, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected ops: %v", q.ops)
	}
	if !strings.Contains(c.prompts[0].User, "I want a flight") {
		t.Fatalf("transcript missing from prompt")
	}
}

func TestEvaluate_CompletionErrorDefaultsToUndetermined(t *testing.T) {
	st := seededStore(t)
	q := &inlineQueue{}
	e := New(&fakeCompleter{err: errors.New("rate limited")}, q, st, 0, nil)

	e.Evaluate(context.Background(), "call-1", "user: hello")

	r, _ := st.Get(context.Background(), "call-1")
	if r.SuccessStatus != calls.SuccessUndetermined || r.Summary != "" {
		t.Fatalf("unexpected record: summary=%q success=%q", r.Summary, r.SuccessStatus)
	}
	want := []string{OpUpdateQuality, OpUpdateSuccessStatus}
	if strings.Join(q.ops, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected ops: %v", q.ops)
	}
	var quality map[string]any
	if err := json.Unmarshal(r.Quality, &quality); err != nil {
		t.Fatalf("quality: %v", err)
	}
	if quality["summary"] != notEnoughData || quality["error"] != "rate limited" {
		t.Fatalf("expected fallback quality, got %v", quality)
	}
}

func TestProcess_RunsInBackgroundAndSkipsEmptyTranscripts(t *testing.T) {
	st := seededStore(t)
	q := &inlineQueue{}
	c := &fakeCompleter{summary: "s", verdict: "Failure"}
	e := New(c, q, st, time.Second, nil)

	e.Process(context.Background(), "call-1", session.NewTranscript())
	e.Wait()
	if len(q.ops) != 0 {
		t.Fatalf("empty transcript must not be evaluated")
	}

	tr := session.NewTranscript()
	tr.Add(session.Line{Role: "user", Text: "this is useless"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Process(ctx, "call-1", tr)
	e.Wait()

	r, _ := st.Get(context.Background(), "call-1")
	if r.SuccessStatus != calls.SuccessFailure {
		t.Fatalf("expected Failure, got %q", r.SuccessStatus)
	}
}

func TestEvaluate_WritesQualityAndEntities(t *testing.T) {
	st := seededStore(t)
	q := &inlineQueue{}
	c := &fakeCompleter{
		summary:  "Booking.",
		verdict:  "Success",
		quality:  "```json\n{\"clarity\":{\"score\":4,\"feedback\":\"clear\"},\"summary\":\"good\",\"tip\":\"slow down\"}\n```",
		entities: `{"city":{"text":"to Paris","value":"Paris","confidence":"high"}}`,
	}
	e := New(c, q, st, 0, nil)
	e.EntityFields = []EntityField{{Name: "city", Description: "destination city"}}

	e.Evaluate(context.Background(), "call-1", "user: a flight to Paris please\nassistant: Booked.")

	want := []string{OpUpdateSummary, OpUpdateQuality, OpUpdateEntities, OpUpdateSuccessStatus}
	if strings.Join(q.ops, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected ops: %v", q.ops)
	}
	r, _ := st.Get(context.Background(), "call-1")

	var quality struct {
		Clarity struct {
			Score float64 `json:"score"`
		} `json:"clarity"`
		Tip string `json:"tip"`
	}
	if err := json.Unmarshal(r.Quality, &quality); err != nil {
		t.Fatalf("quality: %v", err)
	}
	if quality.Clarity.Score != 4 || quality.Tip != "slow down" {
		t.Fatalf("unexpected quality: %s", r.Quality)
	}

	var entities map[string]map[string]string
	if err := json.Unmarshal(r.Entities, &entities); err != nil {
		t.Fatalf("entities: %v", err)
	}
	if entities["city"]["value"] != "Paris" {
		t.Fatalf("unexpected entities: %s", r.Entities)
	}

	var entityPrompt Prompt
	for _, p := range c.prompts {
		if p.System == entitySystem {
			entityPrompt = p
		}
	}
	if !strings.Contains(entityPrompt.User, "- city: destination city") || entityPrompt.Temperature != 0.2 {
		t.Fatalf("unexpected entity prompt: %+v", entityPrompt)
	}
}

func TestConversationQuality_NoUserSpeech(t *testing.T) {
	c := &fakeCompleter{}
	e := New(c, &inlineQueue{}, seededStore(t), 0, nil)

	got, err := e.ConversationQuality(context.Background(), "assistant: hello?\nassistant: anyone there?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.prompts) != 0 {
		t.Fatalf("model must not be called without user speech")
	}
	for _, d := range QualityDimensions {
		score := got[d].(map[string]any)["score"]
		if score != 0 {
			t.Fatalf("%s: expected zero score, got %v", d, score)
		}
	}
	if got["tip"] != notEnoughDataTip {
		t.Fatalf("unexpected tip %v", got["tip"])
	}
}

func TestExtractEntities_BadReplyReportsError(t *testing.T) {
	e := New(&fakeCompleter{entities: "sorry, I cannot"}, &inlineQueue{}, seededStore(t), 0, nil)

	got, err := e.ExtractEntities(context.Background(), "user: hi", []EntityField{{Name: "city", Description: "city"}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got["result"] != nil || got["error"] == "" {
		t.Fatalf("unexpected fallback: %v", got)
	}
}

func TestParseEntityFields(t *testing.T) {
	got, err := ParseEntityFields(" city: destination city ;date;; budget:max spend ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []EntityField{
		{Name: "city", Description: "destination city"},
		{Name: "date", Description: "date"},
		{Name: "budget", Description: "max spend"},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d fields, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("field %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	if _, err := ParseEntityFields("city:a;city:b"); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if _, err := ParseEntityFields(":nameless"); err == nil {
		t.Fatalf("expected missing name error")
	}
}
