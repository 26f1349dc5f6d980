package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"voice-call-agent/internal/audit"
	"voice-call-agent/internal/auth"
	"voice-call-agent/internal/calls"
	"voice-call-agent/internal/dispatch"
	"voice-call-agent/internal/rbac"
	"voice-call-agent/internal/reporting"
	"voice-call-agent/internal/session"
	"voice-call-agent/pkg/logger"
)

// Dispatcher starts call jobs.
type Dispatcher interface {
	DispatchOutbound(ctx context.Context, req dispatch.OutboundRequest) (string, error)
	Active() []string
}

// CallReader is the read side of the call record store.
type CallReader interface {
	Get(ctx context.Context, callID string) (calls.CallRecord, error)
	List(ctx context.Context, f calls.ListFilter) ([]calls.CallRecord, error)
}

// SessionSink receives what the media worker reports for a room.
type SessionSink interface {
	Deliver(room string, ev session.Event) error
	EndCall(ctx context.Context, room, reason string) error
	Transfer(ctx context.Context, room, to string) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth        *auth.Manager
	Credentials auth.Credentials
	Dispatcher  Dispatcher
	Calls       CallReader
	Reports     *reporting.Service
	Sessions    SessionSink
	Audit       *audit.Service
	Now         func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// record appends a best-effort audit event for the request's actor.
func (h Handlers) record(c *gin.Context, e audit.Event) {
	if h.Audit == nil {
		return
	}
	if id, err := auth.IdentityFrom(c.Request.Context()); err == nil && e.ActorUserID == "" {
		e.ActorUserID = id.UserID
		e.ActorRole = id.Role
	}
	e.IPAddress = c.ClientIP()
	h.Audit.Record(c.Request.Context(), e)
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges the operator credentials for a token pair.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		abort(c, http.StatusInternalServerError, "auth not configured")
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !h.Credentials.Check(req.Username, req.Password) {
		logger.FromGin(c).Warn("login rejected", "username", req.Username)
		h.record(c, audit.Event{Type: audit.EventTypeLoginFailed, ActorUserID: req.Username})
		abort(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if h.issue(c, auth.Identity{UserID: req.Username, AccountID: calls.DefaultUserID, Role: rbac.RoleAdmin}) {
		h.record(c, audit.Event{Type: audit.EventTypeLogin, ActorUserID: req.Username, ActorRole: rbac.RoleAdmin})
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh trades a refresh token for a new pair. Only the configured
// operator holds refresh tokens.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil {
		abort(c, http.StatusInternalServerError, "auth not configured")
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		abort(c, http.StatusBadRequest, "refresh_token required")
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, h.now())
	if err != nil || claims.UserID != h.Credentials.Username {
		abort(c, http.StatusUnauthorized, "invalid token")
		return
	}
	id := claims.Identity()
	id.Role = rbac.RoleAdmin
	h.issue(c, id)
}

func (h Handlers) issue(c *gin.Context, id auth.Identity) bool {
	pair, err := h.Auth.IssuePair(h.now(), id)
	if err != nil {
		logger.FromGin(c).Error("token issuance failed", "err", err)
		abort(c, http.StatusInternalServerError, "token issuance failed")
		return false
	}
	c.JSON(http.StatusOK, pair)
	return true
}

func (h Handlers) Me(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		abort(c, http.StatusUnauthorized, "identity required")
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": id.UserID, "account_id": id.AccountID, "role": id.Role})
}
