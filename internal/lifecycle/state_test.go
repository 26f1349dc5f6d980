package lifecycle

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCallState_ClaimEndRequiresStart(t *testing.T) {
	s := NewCallState("call-1")
	if s.claimEnd() {
		t.Fatalf("gate must refuse a call that never started")
	}
	if s.EndRecorded() {
		t.Fatalf("endRecorded must stay false")
	}
	if !s.MarkStarted(time.Unix(1700000000, 0), "+1555") {
		t.Fatalf("expected first start to succeed")
	}
	if s.MarkStarted(time.Unix(1700000005, 0), "other") {
		t.Fatalf("second start must be refused")
	}
	at, ok := s.StartTime()
	if !ok || !at.Equal(time.Unix(1700000000, 0)) || s.ParticipantIdentity() != "+1555" {
		t.Fatalf("unexpected state: %v %v %q", at, ok, s.ParticipantIdentity())
	}
	if !s.claimEnd() || s.claimEnd() {
		t.Fatalf("gate must succeed exactly once")
	}
}

func TestCallState_ClaimEndIsAtomic(t *testing.T) {
	s := NewCallState("call-1")
	s.MarkStarted(time.Now(), "")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.claimEnd() {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins.Load())
	}
}
