package telephony

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	"github.com/twitchtv/twirp"
)

// LiveKitOptions configures the LiveKit adapter.
type LiveKitOptions struct {
	URL       string
	APIKey    string
	APISecret string

	// JoinTimeout bounds WaitForParticipant.
	JoinTimeout time.Duration
	// LookupInterval is the pause between participant lookups while waiting.
	LookupInterval time.Duration
}

func (o LiveKitOptions) withDefaults() LiveKitOptions {
	out := o
	if out.JoinTimeout <= 0 {
		out.JoinTimeout = 60 * time.Second
	}
	if out.LookupInterval <= 0 {
		out.LookupInterval = 250 * time.Millisecond
	}
	return out
}

// LiveKit implements Provider on top of LiveKit's SIP and room services.
type LiveKit struct {
	sip   *lksdk.SIPClient
	rooms *lksdk.RoomServiceClient
	hub   *Hub
	opts  LiveKitOptions
	log   *slog.Logger
}

func NewLiveKit(opts LiveKitOptions, hub *Hub, log *slog.Logger) *LiveKit {
	opts = opts.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &LiveKit{
		sip:   lksdk.NewSIPClient(opts.URL, opts.APIKey, opts.APISecret),
		rooms: lksdk.NewRoomServiceClient(opts.URL, opts.APIKey, opts.APISecret),
		hub:   hub,
		opts:  opts,
		log:   log.With("provider", "livekit"),
	}
}

func (l *LiveKit) CreateOutboundLeg(ctx context.Context, leg OutboundLeg) error {
	_, err := l.sip.CreateSIPParticipant(ctx, &livekit.CreateSIPParticipantRequest{
		SipTrunkId:          leg.TrunkID,
		SipCallTo:           leg.Destination,
		RoomName:            leg.Room,
		ParticipantIdentity: leg.Identity,
		ParticipantName:     leg.DisplayName,
	})
	if err != nil {
		return asDialError(err)
	}
	return nil
}

func (l *LiveKit) WaitForParticipant(ctx context.Context, room, identity string) (Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.JoinTimeout)
	defer cancel()

	t := time.NewTicker(l.opts.LookupInterval)
	defer t.Stop()
	for {
		p, ok, err := l.findParticipant(ctx, room, identity)
		if err != nil && ctx.Err() == nil {
			l.log.Debug("participant lookup failed", "room", room, "identity", identity, "err", err)
		}
		if ok {
			return p, nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Participant{}, fmt.Errorf("%w: room %s", ErrJoinTimeout, room)
			}
			return Participant{}, ctx.Err()
		case <-t.C:
		}
	}
}

func (l *LiveKit) findParticipant(ctx context.Context, room, identity string) (Participant, bool, error) {
	if identity != "" {
		info, err := l.rooms.GetParticipant(ctx, &livekit.RoomParticipantIdentity{Room: room, Identity: identity})
		if err != nil {
			return Participant{}, false, err
		}
		return participantFromInfo(info), true, nil
	}

	resp, err := l.rooms.ListParticipants(ctx, &livekit.ListParticipantsRequest{Room: room})
	if err != nil {
		return Participant{}, false, err
	}
	info := pickCaller(resp.GetParticipants())
	if info == nil {
		return Participant{}, false, nil
	}
	return participantFromInfo(info), true, nil
}

func (l *LiveKit) Participant(ctx context.Context, room, identity string) (Participant, error) {
	info, err := l.rooms.GetParticipant(ctx, &livekit.RoomParticipantIdentity{Room: room, Identity: identity})
	if err == nil {
		return participantFromInfo(info), nil
	}
	if !isNotFound(err) {
		return Participant{}, err
	}
	if l.hub != nil {
		if reason, ok := l.hub.Departure(room, identity); ok {
			return Participant{Identity: identity, DisconnectReason: reason, Departed: true}, nil
		}
	}
	return Participant{}, fmt.Errorf("%w: %s in %s", ErrParticipantNotFound, identity, room)
}

func (l *LiveKit) DeleteRoom(ctx context.Context, room string) error {
	_, err := l.rooms.DeleteRoom(ctx, &livekit.DeleteRoomRequest{Room: room})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("telephony: delete room %s: %w", room, err)
	}
	return nil
}

// SendData publishes a reliable data packet to everyone in the room.
func (l *LiveKit) SendData(ctx context.Context, room, topic string, payload []byte) error {
	_, err := l.rooms.SendData(ctx, &livekit.SendDataRequest{
		Room:  room,
		Data:  payload,
		Kind:  livekit.DataPacket_RELIABLE,
		Topic: &topic,
	})
	if err != nil {
		return fmt.Errorf("telephony: send data to %s: %w", room, err)
	}
	return nil
}

// pickCaller prefers the SIP participant and never returns an agent.
func pickCaller(ps []*livekit.ParticipantInfo) *livekit.ParticipantInfo {
	var fallback *livekit.ParticipantInfo
	for _, p := range ps {
		switch p.GetKind() {
		case livekit.ParticipantInfo_SIP:
			return p
		case livekit.ParticipantInfo_AGENT:
			continue
		default:
			if fallback == nil {
				fallback = p
			}
		}
	}
	return fallback
}

func participantFromInfo(info *livekit.ParticipantInfo) Participant {
	attrs := make(map[string]string, len(info.GetAttributes()))
	for k, v := range info.GetAttributes() {
		attrs[k] = v
	}
	return Participant{
		Identity:         info.GetIdentity(),
		Kind:             info.GetKind().String(),
		Attributes:       attrs,
		DisconnectReason: reasonFromLiveKit(info.GetDisconnectReason()),
	}
}

func reasonFromLiveKit(r livekit.DisconnectReason) DisconnectReason {
	switch r {
	case livekit.DisconnectReason_UNKNOWN_REASON:
		return ReasonUnknown
	case livekit.DisconnectReason_CLIENT_INITIATED:
		return ReasonClientInitiated
	case livekit.DisconnectReason_USER_REJECTED:
		return ReasonUserRejected
	case livekit.DisconnectReason_USER_UNAVAILABLE:
		return ReasonUserUnavailable
	case livekit.DisconnectReason_SERVER_SHUTDOWN:
		return ReasonServerShutdown
	case livekit.DisconnectReason_ROOM_DELETED:
		return ReasonRoomDeleted
	default:
		return ReasonOther
	}
}

// asDialError converts a twirp error from the SIP service into *DialError,
// carrying the SIP status LiveKit attaches as error metadata.
func asDialError(err error) error {
	var te twirp.Error
	if !errors.As(err, &te) {
		return err
	}
	return &DialError{
		SIPStatusCode: te.Meta("sip_status_code"),
		SIPStatus:     te.Meta("sip_status"),
		Message:       te.Msg(),
		Err:           err,
	}
}

func isNotFound(err error) bool {
	var te twirp.Error
	return errors.As(err, &te) && te.Code() == twirp.NotFound
}
