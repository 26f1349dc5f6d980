package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"voice-call-agent/internal/audit"
	"voice-call-agent/internal/auth"
	"voice-call-agent/internal/calls"
	"voice-call-agent/internal/dispatch"
	"voice-call-agent/internal/rbac"
	"voice-call-agent/internal/reporting"
	"voice-call-agent/pkg/logger"
)

// DispatchCall starts an outbound call and returns its room.
func (h Handlers) DispatchCall(c *gin.Context) {
	if h.Dispatcher == nil {
		abort(c, http.StatusInternalServerError, "dispatch not configured")
		return
	}
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		abort(c, http.StatusUnauthorized, "identity required")
		return
	}
	var req dispatch.OutboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json")
		return
	}
	if scope := rbac.AccountScope(id); scope != nil {
		req.UserID = *scope
	}

	room, err := h.Dispatcher.DispatchOutbound(c.Request.Context(), req)
	switch {
	case errors.Is(err, dispatch.ErrInvalidRequest):
		abort(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, dispatch.ErrCapacity):
		abort(c, http.StatusTooManyRequests, "too many concurrent calls")
		return
	case errors.Is(err, dispatch.ErrClosed):
		abort(c, http.StatusServiceUnavailable, "shutting down")
		return
	case err != nil:
		logger.FromGin(c).Error("dispatch failed", "err", err)
		abort(c, http.StatusInternalServerError, "dispatch failed")
		return
	}
	logger.FromGin(c).Info("outbound call dispatched", "room", room, "by", id.UserID)
	h.record(c, audit.Event{
		Type:    audit.EventTypeCallDispatch,
		CallID:  room,
		Message: "outbound call dispatched",
	}.WithMetadata(gin.H{"phone": req.Phone, "user_id": req.UserID, "agent_id": req.AgentID}))
	c.JSON(http.StatusAccepted, gin.H{"room": room, "call_id": room})
}

func (h Handlers) ActiveCalls(c *gin.Context) {
	if h.Dispatcher == nil {
		abort(c, http.StatusInternalServerError, "dispatch not configured")
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": h.Dispatcher.Active()})
}

// ListCalls returns call history, newest first.
func (h Handlers) ListCalls(c *gin.Context) {
	if h.Calls == nil {
		abort(c, http.StatusInternalServerError, "calls not configured")
		return
	}
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		abort(c, http.StatusUnauthorized, "identity required")
		return
	}

	f := calls.ListFilter{
		UserID:   rbac.AccountScope(id),
		Status:   c.Query("status"),
		CallType: calls.CallType(c.Query("call_type")),
	}
	var bad []string
	f.From, bad = queryTime(c, "from", bad)
	f.To, bad = queryTime(c, "to", bad)
	f.Limit, bad = queryInt(c, "limit", bad)
	f.Offset, bad = queryInt(c, "offset", bad)
	if f.UserID == nil {
		if v := c.Query("user_id"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				bad = append(bad, "user_id")
			}
			f.UserID = &n
		}
	}
	if len(bad) > 0 {
		abort(c, http.StatusBadRequest, "invalid query: "+bad[0])
		return
	}

	rows, err := h.Calls.List(c.Request.Context(), f)
	if err != nil {
		logger.FromGin(c).Error("call list failed", "err", err)
		abort(c, http.StatusInternalServerError, "call list failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows, "count": len(rows)})
}

// GetCall returns one call record. Callers scoped to an account get 404 for
// other accounts' calls.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Calls == nil {
		abort(c, http.StatusInternalServerError, "calls not configured")
		return
	}
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		abort(c, http.StatusUnauthorized, "identity required")
		return
	}
	rec, err := h.Calls.Get(c.Request.Context(), c.Param("call_id"))
	if errors.Is(err, calls.ErrNotFound) || errors.Is(err, calls.ErrInvalidArgument) {
		abort(c, http.StatusNotFound, "call not found")
		return
	}
	if err != nil {
		logger.FromGin(c).Error("call lookup failed", "err", err)
		abort(c, http.StatusInternalServerError, "call lookup failed")
		return
	}
	if scope := rbac.AccountScope(id); scope != nil && *scope != rec.UserID {
		abort(c, http.StatusNotFound, "call not found")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h Handlers) CallsSummary(c *gin.Context) {
	if h.Reports == nil {
		abort(c, http.StatusInternalServerError, "reporting not configured")
		return
	}
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		abort(c, http.StatusUnauthorized, "identity required")
		return
	}
	var bad []string
	req := reporting.CallsSummaryRequest{UserID: rbac.AccountScope(id), CallType: c.Query("call_type")}
	req.Range.From, bad = queryTime(c, "from", bad)
	req.Range.To, bad = queryTime(c, "to", bad)
	if req.Range.To.IsZero() {
		req.Range.To = h.now()
	}
	if req.Range.From.IsZero() {
		req.Range.From = req.Range.To.Add(-24 * time.Hour)
	}
	if len(bad) > 0 {
		abort(c, http.StatusBadRequest, "invalid query: "+bad[0])
		return
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), req)
	if errors.Is(err, reporting.ErrInvalidRequest) {
		abort(c, http.StatusBadRequest, "invalid range")
		return
	}
	if err != nil {
		logger.FromGin(c).Error("calls summary failed", "err", err)
		abort(c, http.StatusInternalServerError, "calls summary failed")
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) Dashboard(c *gin.Context) {
	if h.Reports == nil {
		abort(c, http.StatusInternalServerError, "reporting not configured")
		return
	}
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		abort(c, http.StatusUnauthorized, "identity required")
		return
	}
	out, err := h.Reports.Dashboard(c.Request.Context(), reporting.DashboardRequest{
		UserID: rbac.AccountScope(id),
		Period: reporting.Period(c.Query("period")),
		Now:    h.now(),
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		abort(c, http.StatusBadRequest, "period must be 1_day or 7_days")
		return
	}
	if err != nil {
		logger.FromGin(c).Error("dashboard failed", "err", err)
		abort(c, http.StatusInternalServerError, "dashboard failed")
		return
	}
	c.JSON(http.StatusOK, out)
}

func queryTime(c *gin.Context, key string, bad []string) (time.Time, []string) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, bad
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, append(bad, key)
	}
	return t, bad
}

func queryInt(c *gin.Context, key string, bad []string) (int, []string) {
	v := c.Query(key)
	if v == "" {
		return 0, bad
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, append(bad, key)
	}
	return n, bad
}
