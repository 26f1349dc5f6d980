package telephony

import (
	"context"
	"net/http"
	"time"

	"voice-call-agent/pkg/logger"

	"github.com/gin-gonic/gin"
	lkauth "github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
)

// InboundStarter starts a call job for a room created by an inbound SIP
// dispatch rule. It reports false when the room already has a job.
type InboundStarter interface {
	StartInbound(ctx context.Context, room, metadata string) (bool, error)
}

// LiveKit webhook event names.
const (
	webhookRoomStarted       = "room_started"
	webhookRoomFinished      = "room_finished"
	webhookParticipantJoined = "participant_joined"
	webhookParticipantLeft   = "participant_left"
)

// WebhookHandler verifies LiveKit webhooks and converts them into room
// events on the Hub.
//
// No business logic here.
type WebhookHandler struct {
	Keys    lkauth.KeyProvider
	Hub     *Hub
	Inbound InboundStarter

	Now func() time.Time
}

func NewWebhookHandler(apiKey, apiSecret string, hub *Hub, inbound InboundStarter) WebhookHandler {
	return WebhookHandler{
		Keys:    lkauth.NewSimpleKeyProvider(apiKey, apiSecret),
		Hub:     hub,
		Inbound: inbound,
	}
}

func (h WebhookHandler) Handle(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Keys == nil || h.Hub == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	ev, err := webhook.ReceiveWebhookEvent(c.Request, h.Keys)
	if err != nil {
		log.Warn("livekit webhook rejected", "err", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook"})
		return
	}

	ctx := logger.With(c.Request.Context(), log)
	if err := h.handleEvent(ctx, ev); err != nil {
		log.Error("livekit webhook handling failed", "event", ev.GetEvent(), "room", ev.GetRoom().GetName(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook handling failed"})
		return
	}
	c.Status(http.StatusOK)
}

func (h WebhookHandler) handleEvent(ctx context.Context, ev *livekit.WebhookEvent) error {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	room := ev.GetRoom().GetName()
	at := now()
	if ev.GetCreatedAt() > 0 {
		at = time.Unix(ev.GetCreatedAt(), 0)
	}

	switch ev.GetEvent() {
	case webhookParticipantJoined:
		h.Hub.Publish(RoomEvent{Name: EventParticipantConnected, Room: room, Identity: ev.GetParticipant().GetIdentity(), At: at})
	case webhookParticipantLeft:
		p := ev.GetParticipant()
		h.Hub.Publish(RoomEvent{
			Name:     EventParticipantDisconnected,
			Room:     room,
			Identity: p.GetIdentity(),
			Reason:   reasonFromLiveKit(p.GetDisconnectReason()),
			At:       at,
		})
	case webhookRoomFinished:
		h.Hub.Publish(RoomEvent{Name: EventDisconnected, Room: room, At: at})
	case webhookRoomStarted:
		if h.Inbound == nil {
			return nil
		}
		started, err := h.Inbound.StartInbound(ctx, room, ev.GetRoom().GetMetadata())
		if err != nil {
			return err
		}
		logger.From(ctx).Debug("room started", "room", room, "job_started", started)
	}
	return nil
}
