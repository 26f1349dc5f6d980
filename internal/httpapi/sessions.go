package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"voice-call-agent/internal/audit"
	"voice-call-agent/internal/lifecycle"
	"voice-call-agent/internal/session"
	"voice-call-agent/pkg/logger"
)

// SessionEvent takes one event reported by the media worker for a room.
func (h Handlers) SessionEvent(c *gin.Context) {
	if h.Sessions == nil {
		abort(c, http.StatusInternalServerError, "sessions not configured")
		return
	}
	var ev session.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		abort(c, http.StatusBadRequest, "invalid json")
		return
	}
	room := c.Param("room")
	switch err := h.Sessions.Deliver(room, ev); {
	case errors.Is(err, session.ErrInvalidEvent):
		abort(c, http.StatusBadRequest, "invalid event")
	case errors.Is(err, session.ErrUnknownSession):
		abort(c, http.StatusNotFound, "no session for room")
	case err != nil:
		logger.FromGin(c).Error("session event failed", "room", room, "event", ev.Name, "err", err)
		abort(c, http.StatusInternalServerError, "session event failed")
	default:
		c.Status(http.StatusNoContent)
	}
}

type endCallRequest struct {
	Reason string `json:"reason"`
}

// EndSession lets the worker's agent end its call, e.g. after detecting an
// answering machine.
func (h Handlers) EndSession(c *gin.Context) {
	if h.Sessions == nil {
		abort(c, http.StatusInternalServerError, "sessions not configured")
		return
	}
	var req endCallRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	room := c.Param("room")
	err := h.Sessions.EndCall(c.Request.Context(), room, req.Reason)
	if errors.Is(err, session.ErrUnknownSession) {
		abort(c, http.StatusNotFound, "no session for room")
		return
	}
	if err != nil {
		logger.FromGin(c).Error("end call failed", "room", room, "err", err)
		abort(c, http.StatusBadGateway, "end call failed")
		return
	}
	h.record(c, audit.Event{Type: audit.EventTypeCallEnded, CallID: room, Message: req.Reason})
	c.Status(http.StatusNoContent)
}

type transferRequest struct {
	To string `json:"to"`
}

// TransferSession hands the room's call off to a human agent.
func (h Handlers) TransferSession(c *gin.Context) {
	if h.Sessions == nil {
		abort(c, http.StatusInternalServerError, "sessions not configured")
		return
	}
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.To) == "" {
		abort(c, http.StatusBadRequest, "to is required")
		return
	}
	room := c.Param("room")
	err := h.Sessions.Transfer(c.Request.Context(), room, req.To)
	switch {
	case errors.Is(err, session.ErrUnknownSession):
		abort(c, http.StatusNotFound, "no session for room")
		return
	case errors.Is(err, lifecycle.ErrCallEnded):
		abort(c, http.StatusConflict, "call already ended")
		return
	case err != nil:
		logger.FromGin(c).Error("transfer failed", "room", room, "err", err)
		abort(c, http.StatusBadGateway, "transfer failed")
		return
	}
	h.record(c, audit.Event{Type: audit.EventTypeCallTransfer, CallID: room, Message: req.To})
	c.Status(http.StatusNoContent)
}
