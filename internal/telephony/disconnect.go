package telephony

// DisconnectReason is the provider-agnostic reason a participant or room went away.
type DisconnectReason int

const (
	ReasonUnknown DisconnectReason = iota
	ReasonClientInitiated
	ReasonUserRejected
	ReasonUserUnavailable
	ReasonServerShutdown
	ReasonRoomDeleted
	ReasonOther
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonClientInitiated:
		return "CLIENT_INITIATED"
	case ReasonUserRejected:
		return "USER_REJECTED"
	case ReasonUserUnavailable:
		return "USER_UNAVAILABLE"
	case ReasonServerShutdown:
		return "SERVER_SHUTDOWN"
	case ReasonRoomDeleted:
		return "ROOM_DELETED"
	case ReasonOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

func (r DisconnectReason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }
