package calls

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu sync.Mutex

	opts   Options
	nextID int64
	rows   map[string]*CallRecord
	users  map[int64]struct{}
	models map[string]struct{}
}

func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:   opts.withDefaults(),
		rows:   map[string]*CallRecord{},
		users:  map[int64]struct{}{DefaultUserID: {}},
		models: map[string]struct{}{},
	}
}

// AddUser registers a known user id.
func (s *MemoryStore) AddUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = struct{}{}
}

// HasModel reports whether the model row exists.
func (s *MemoryStore) HasModel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.models[id]
	return ok
}

func (s *MemoryStore) InsertCallStart(ctx context.Context, in CallStart) (int64, error) {
	if err := validateStart(in); err != nil {
		return 0, err
	}
	meta, err := marshalObject(in.Metadata)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rows[in.CallID]; ok {
		return r.ID, nil
	}
	user := in.UserID
	if _, ok := s.users[user]; !ok {
		user = DefaultUserID
	}
	s.models[in.ModelID] = struct{}{}

	now := s.opts.Now()
	s.nextID++
	s.rows[in.CallID] = &CallRecord{
		ID:            s.nextID,
		CallID:        in.CallID,
		ModelID:       in.ModelID,
		UserID:        user,
		Name:          in.Name,
		From:          in.From,
		To:            in.To,
		CallType:      in.CallType,
		Status:        in.Status,
		StartedAt:     in.StartedAt,
		Metadata:      meta,
		TranscriptURL: s.opts.transcriptURL(in.CallID),
		RecordingURL:  s.opts.recordingURL(in.CallID),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return s.nextID, nil
}

func (s *MemoryStore) InsertCallEnd(ctx context.Context, callID, status string, endedAt time.Time) (bool, error) {
	return s.update(callID, false, func(r *CallRecord) {
		end := endedAt
		r.EndedAt = &end
		r.Status = status
		r.DurationSeconds = durationSeconds(r.StartedAt, endedAt)
	})
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, callID, status string) (bool, error) {
	return s.update(callID, true, func(r *CallRecord) { r.Status = status })
}

func (s *MemoryStore) UpdateTransfer(ctx context.Context, callID string, t Transfer) (bool, error) {
	return s.update(callID, true, func(r *CallRecord) {
		r.Transferred = t.Transferred
		r.TransferTo = t.To
	})
}

func (s *MemoryStore) UpdateSummary(ctx context.Context, callID, summary string) (bool, error) {
	return s.update(callID, false, func(r *CallRecord) { r.Summary = summary })
}

func (s *MemoryStore) UpdateQuality(ctx context.Context, callID string, quality map[string]any) (bool, error) {
	b, err := marshalObject(quality)
	if err != nil {
		return false, err
	}
	return s.update(callID, false, func(r *CallRecord) { r.Quality = b })
}

func (s *MemoryStore) UpdateEntities(ctx context.Context, callID string, entities map[string]any) (bool, error) {
	b, err := marshalObject(entities)
	if err != nil {
		return false, err
	}
	return s.update(callID, false, func(r *CallRecord) { r.Entities = b })
}

func (s *MemoryStore) UpdateSuccessStatus(ctx context.Context, callID, status string) (bool, error) {
	return s.update(callID, false, func(r *CallRecord) { r.SuccessStatus = status })
}

func (s *MemoryStore) Get(ctx context.Context, callID string) (CallRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[callID]
	if !ok {
		return CallRecord{}, ErrNotFound
	}
	return *r, nil
}

func (s *MemoryStore) List(ctx context.Context, f ListFilter) ([]CallRecord, error) {
	f = f.withDefaults()

	s.mu.Lock()
	out := make([]CallRecord, 0, len(s.rows))
	for _, r := range s.rows {
		if f.matches(*r) {
			out = append(out, *r)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if f.Offset >= len(out) {
		return []CallRecord{}, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) update(callID string, refuseEnded bool, fn func(r *CallRecord)) (bool, error) {
	if callID == "" {
		return false, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[callID]
	if !ok {
		return false, nil
	}
	if refuseEnded && r.Status == StatusEnded {
		return false, nil
	}
	fn(r)
	r.UpdatedAt = s.opts.Now()
	return true, nil
}

func marshalObject(v map[string]any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("{}"), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
