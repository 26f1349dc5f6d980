package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// CallsSummaryRequest requests aggregated call metrics. A nil UserID covers
// every account.
type CallsSummaryRequest struct {
	UserID   *int64    `json:"user_id,omitempty"`
	Range    TimeRange `json:"range"`
	CallType string    `json:"call_type,omitempty"`
}

type CallsSummary struct {
	TotalCalls        int `json:"total_calls"`
	ConnectedCalls    int `json:"connected_calls"`
	InProgressCalls   int `json:"in_progress_calls"`
	NotConnectedCalls int `json:"not_connected_calls"`
	TransferredCalls  int `json:"transferred_calls"`

	// Post-call evaluation outcomes; calls not yet evaluated count as pending.
	SuccessfulCalls   int `json:"successful_calls"`
	FailedCalls       int `json:"failed_calls"`
	UndeterminedCalls int `json:"undetermined_calls"`
	PendingEvaluation int `json:"pending_evaluation"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// ByStatus counts calls per status label ("User busy", "Call ended", ...).
	ByStatus map[string]int `json:"by_status"`
}

type Period string

const (
	PeriodDay  Period = "1_day"
	PeriodWeek Period = "7_days"
)

type DashboardRequest struct {
	UserID *int64
	Period Period
	Now    time.Time
}

type DashboardMetrics struct {
	TotalCalls        int     `json:"total_calls"`
	AvgCallDuration   float64 `json:"avg_call_duration"`
	TotalCallDuration float64 `json:"total_call_duration"`
}

type TrendPoint struct {
	Date     string  `json:"date"`
	Calls    int     `json:"calls"`
	Duration float64 `json:"duration"`
}

type Dashboard struct {
	Metrics    DashboardMetrics `json:"metrics"`
	CallTrends []TrendPoint     `json:"call_trends"`
	Period     Period           `json:"period"`
}
