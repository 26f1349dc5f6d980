package lifecycle

import (
	"errors"
	"testing"
)

func TestParseJobMetadata(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		dir     Direction
		phone   string
		user    int64
		wantErr bool
	}{
		{name: "empty is inbound", raw: "", dir: DirectionInbound},
		{name: "whitespace is inbound", raw: "  ", dir: DirectionInbound},
		{name: "call_type inbound", raw: `{"call_type":"inbound","phone":"+1555"}`, dir: DirectionInbound, phone: "+1555"},
		{name: "direction inbound", raw: `{"direction":"Inbound"}`, dir: DirectionInbound},
		{name: "outbound", raw: `{"phone":"+15551234567","user_id":12}`, dir: DirectionOutbound, phone: "+15551234567", user: 12},
		{name: "string user id", raw: `{"phone":"+1","user_id":"7"}`, dir: DirectionOutbound, phone: "+1", user: 7},
		{name: "outbound without phone", raw: `{"name":"Ada"}`, wantErr: true},
		{name: "invalid json", raw: `{"phone":`, wantErr: true},
		{name: "not an object", raw: `null`, wantErr: true},
		{name: "bad user id", raw: `{"phone":"+1","user_id":true}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := ParseJobMetadata(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidMetadata) {
					t.Fatalf("expected ErrInvalidMetadata, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if m.Direction != tc.dir || m.Phone != tc.phone || m.UserID != tc.user {
				t.Fatalf("unexpected metadata: %+v", m)
			}
			if m.Raw == nil {
				t.Fatalf("expected raw metadata map")
			}
		})
	}
}
