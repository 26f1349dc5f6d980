package lifecycle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidMetadata = errors.New("lifecycle: invalid job metadata")

type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// JobMetadata is the parsed dispatch metadata of a call job.
type JobMetadata struct {
	Direction Direction
	Phone     string
	Name      string
	UserID    int64
	AgentID   string

	// Raw is the full metadata object, persisted with the call record.
	Raw map[string]any
}

func (m JobMetadata) Outbound() bool { return m.Direction == DirectionOutbound }

// ParseJobMetadata decodes job metadata. Empty metadata means an inbound
// call. A JSON object whose call_type or direction is "inbound" is inbound
// too; anything else is outbound and must carry a phone number.
func ParseJobMetadata(raw string) (JobMetadata, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return JobMetadata{Direction: DirectionInbound, Raw: map[string]any{}}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return JobMetadata{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if obj == nil {
		return JobMetadata{}, fmt.Errorf("%w: expected a JSON object", ErrInvalidMetadata)
	}

	m := JobMetadata{
		Direction: DirectionOutbound,
		Phone:     stringField(obj, "phone"),
		Name:      stringField(obj, "name"),
		AgentID:   stringField(obj, "agent_id"),
		Raw:       obj,
	}
	if m.AgentID == "" {
		m.AgentID = stringField(obj, "model_id")
	}
	if isInbound(stringField(obj, "call_type")) || isInbound(stringField(obj, "direction")) {
		m.Direction = DirectionInbound
	}

	uid, err := intField(obj, "user_id")
	if err != nil {
		return JobMetadata{}, fmt.Errorf("%w: user_id: %v", ErrInvalidMetadata, err)
	}
	m.UserID = uid

	if m.Outbound() && m.Phone == "" {
		return JobMetadata{}, fmt.Errorf("%w: phone is required for outbound calls", ErrInvalidMetadata)
	}
	return m, nil
}

func isInbound(v string) bool { return strings.EqualFold(v, string(DirectionInbound)) }

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func intField(obj map[string]any, key string) (int64, error) {
	switch v := obj[key].(type) {
	case nil:
		return 0, nil
	case json.Number:
		return v.Int64()
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
