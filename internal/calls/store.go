package calls

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// Store persists call records.
//
// Update methods return false when no row matches. UpdateStatus and
// UpdateTransfer also return false for rows whose status is "ended".
type Store interface {
	InsertCallStart(ctx context.Context, in CallStart) (int64, error)
	InsertCallEnd(ctx context.Context, callID, status string, endedAt time.Time) (bool, error)

	UpdateStatus(ctx context.Context, callID, status string) (bool, error)
	UpdateTransfer(ctx context.Context, callID string, t Transfer) (bool, error)
	UpdateSummary(ctx context.Context, callID, summary string) (bool, error)
	UpdateQuality(ctx context.Context, callID string, quality map[string]any) (bool, error)
	UpdateEntities(ctx context.Context, callID string, entities map[string]any) (bool, error)
	UpdateSuccessStatus(ctx context.Context, callID, status string) (bool, error)

	Get(ctx context.Context, callID string) (CallRecord, error)
	List(ctx context.Context, f ListFilter) ([]CallRecord, error)
}

// Options are shared by the store implementations.
type Options struct {
	// PublicBaseURL is the externally reachable API root used to build
	// transcript and recording links.
	PublicBaseURL string
	Now           func() time.Time
}

func (o Options) withDefaults() Options {
	out := o
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

func (o Options) transcriptURL(callID string) string {
	return o.link("transcript", callID)
}

func (o Options) recordingURL(callID string) string {
	return o.link("recording", callID)
}

func (o Options) link(kind, callID string) string {
	base := strings.TrimRight(strings.TrimSpace(o.PublicBaseURL), "/")
	return base + "/api/" + kind + "/" + url.PathEscape(callID)
}

func validateStart(in CallStart) error {
	if strings.TrimSpace(in.CallID) == "" || strings.TrimSpace(in.ModelID) == "" {
		return ErrInvalidArgument
	}
	if in.Status == "" || in.StartedAt.IsZero() {
		return ErrInvalidArgument
	}
	return nil
}
