package session

import (
	"strings"
	"sync"
	"time"
)

// Line is one conversation turn.
type Line struct {
	Role        string    `json:"role"`
	Text        string    `json:"text"`
	Interrupted bool      `json:"interrupted,omitempty"`
	At          time.Time `json:"at"`
}

// Transcript accumulates the turns of a single call.
type Transcript struct {
	mu    sync.Mutex
	lines []Line
}

func NewTranscript() *Transcript { return &Transcript{} }

// Attach records every conversation item the session emits.
func (t *Transcript) Attach(s Session) (off func()) {
	return s.On(EventConversationItemAdded, func(ev Event) {
		t.Add(Line{Role: ev.Role, Text: ev.Text, Interrupted: ev.Interrupted, At: ev.At})
	})
}

// Add appends a turn. Empty turns are ignored.
func (t *Transcript) Add(l Line) {
	l.Text = strings.TrimSpace(l.Text)
	if l.Text == "" {
		return
	}
	t.mu.Lock()
	t.lines = append(t.lines, l)
	t.mu.Unlock()
}

func (t *Transcript) Lines() []Line {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Line, len(t.lines))
	copy(out, t.lines)
	return out
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lines)
}

// Text renders the transcript as "role: text" lines.
func (t *Transcript) Text() string {
	lines := t.Lines()
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		role := l.Role
		if role == "" {
			role = "unknown"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(l.Text)
	}
	return b.String()
}
