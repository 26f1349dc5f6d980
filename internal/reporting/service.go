package reporting

import (
	"context"
	"errors"
	"math"
	"time"

	"voice-call-agent/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side of the call record store.
type Repository interface {
	List(ctx context.Context, f calls.ListFilter) ([]calls.CallRecord, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if !req.Range.valid() {
		return CallsSummary{}, ErrInvalidRequest
	}
	rows, err := s.all(ctx, calls.ListFilter{
		UserID:   req.UserID,
		From:     req.Range.From,
		To:       req.Range.To,
		CallType: calls.CallType(req.CallType),
	})
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{ByStatus: map[string]int{}}
	for _, c := range rows {
		out.TotalCalls++
		out.ByStatus[c.Status]++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.Transferred {
			out.TransferredCalls++
		}
		switch {
		case c.Completed():
			out.ConnectedCalls++
		case c.InProgress():
			out.InProgressCalls++
		default:
			out.NotConnectedCalls++
		}
		switch c.SuccessStatus {
		case calls.SuccessSuccess:
			out.SuccessfulCalls++
		case calls.SuccessFailure:
			out.FailedCalls++
		case calls.SuccessUndetermined:
			out.UndeterminedCalls++
		default:
			out.PendingEvaluation++
		}
	}
	if out.ConnectedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.ConnectedCalls
	}
	return out, nil
}

// Dashboard returns call volume and duration trends: hourly since midnight
// for PeriodDay, daily over the last week for PeriodWeek.
func (s *Service) Dashboard(ctx context.Context, req DashboardRequest) (Dashboard, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	var (
		start  time.Time
		step   time.Duration
		n      int
		layout string
	)
	switch req.Period {
	case PeriodDay:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		step, n, layout = time.Hour, 24, "15:04"
	case PeriodWeek, "":
		req.Period = PeriodWeek
		start = now.Add(-7 * 24 * time.Hour)
		step, n, layout = 24*time.Hour, 7, "2006-01-02"
	default:
		return Dashboard{}, ErrInvalidRequest
	}

	rows, err := s.all(ctx, calls.ListFilter{UserID: req.UserID, From: start, To: now})
	if err != nil {
		return Dashboard{}, err
	}

	out := Dashboard{Period: req.Period, CallTrends: make([]TrendPoint, 0, n)}
	total := durationStats{}
	buckets := make([]durationStats, n)
	for _, c := range rows {
		total.add(c.DurationSeconds)
		if i := int(c.StartedAt.Sub(start) / step); i >= 0 && i < n {
			buckets[i].add(c.DurationSeconds)
		}
	}
	for i, b := range buckets {
		out.CallTrends = append(out.CallTrends, TrendPoint{
			Date:     start.Add(time.Duration(i) * step).Format(layout),
			Calls:    b.calls,
			Duration: b.average(),
		})
	}
	out.Metrics = DashboardMetrics{
		TotalCalls:        total.calls,
		AvgCallDuration:   total.average(),
		TotalCallDuration: float64(total.sum),
	}
	return out, nil
}

// all pages through List until the filter is exhausted.
func (s *Service) all(ctx context.Context, f calls.ListFilter) ([]calls.CallRecord, error) {
	if s.repo == nil {
		return nil, errors.New("reporting: repository not configured")
	}
	const page = 500
	f.Limit = page
	var out []calls.CallRecord
	for {
		rows, err := s.repo.List(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if len(rows) < page {
			return out, nil
		}
		f.Offset += page
	}
}

// durationStats averages only calls that lasted longer than zero seconds.
type durationStats struct {
	calls int
	timed int
	sum   int
}

func (d *durationStats) add(seconds int) {
	d.calls++
	if seconds > 0 {
		d.timed++
		d.sum += seconds
	}
}

func (d durationStats) average() float64 {
	if d.timed == 0 {
		return 0
	}
	return math.Round(float64(d.sum)/float64(d.timed)*10) / 10
}
