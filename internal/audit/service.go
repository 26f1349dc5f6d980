package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. It is append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

var ErrInvalidEvent = errors.New("audit: invalid event")

// Service logs internal audit information.
// Audit is internal-only; callers treat it as best-effort.
type Service struct {
	repo  Repository
	log   *slog.Logger
	clock func() time.Time
}

func NewService(repo Repository, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, log: log.With("component", "audit"), clock: time.Now}
}

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if len(e.Metadata) == 0 {
		e.Metadata = json.RawMessage("{}")
	}
	if err := s.repo.Append(ctx, e); err != nil {
		return fmt.Errorf("audit: append %s: %w", e.Type, err)
	}
	return nil
}

// Record appends e and only logs a failure. Audit must never block a call.
func (s *Service) Record(ctx context.Context, e Event) {
	if err := s.Append(ctx, e); err != nil {
		s.log.Warn("audit event dropped", "type", string(e.Type), "err", err)
	}
}

// WithMetadata marshals v into e.Metadata. Values that cannot be encoded are
// left out.
func (e Event) WithMetadata(v any) Event {
	b, err := json.Marshal(v)
	if err == nil {
		e.Metadata = b
	}
	return e
}
