package models

import (
	"bytes"
	"encoding/json"
	"reflect"
	"testing"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Inbound
	}{
		{
			name: "connect",
			data: `{"type":"connect","id":"alice"}`,
			want: Connect{ID: "alice"},
		},
		{
			name: "disconnect",
			data: `{"type":"disconnect","id":"alice"}`,
			want: Disconnect{ID: "alice"},
		},
		{
			name: "offer",
			data: `{"type":"offer","to":"bob","sdp":"v=0"}`,
			want: Offer{To: "bob", SDP: json.RawMessage(`"v=0"`)},
		},
		{
			name: "answer",
			data: `{"type":"answer","to":"alice","sdp":{"type":"answer","sdp":"v=0"}}`,
			want: Answer{To: "alice", SDP: json.RawMessage(`{"type":"answer","sdp":"v=0"}`)},
		},
		{
			name: "ice candidate",
			data: `{"type":"ice_candidate","to":"bob","candidate":{"candidate":"candidate:1 1 UDP 1 10.0.0.1 5000 typ host"}}`,
			want: IceCandidate{To: "bob", Candidate: json.RawMessage(`{"candidate":"candidate:1 1 UDP 1 10.0.0.1 5000 typ host"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeInbound([]byte(tt.data))
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeInboundRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `hello`},
		{"unknown type", `{"type":"shout","id":"alice"}`},
		{"missing type", `{"id":"alice"}`},
		{"connect without id", `{"type":"connect"}`},
		{"disconnect without id", `{"type":"disconnect","id":""}`},
		{"offer without target", `{"type":"offer","sdp":"v=0"}`},
		{"answer without target", `{"type":"answer","sdp":"v=0"}`},
		{"candidate without target", `{"type":"ice_candidate","candidate":"c"}`},
		{"outbound tag", `{"type":"user_connected","user":"alice"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, err := DecodeInbound([]byte(tt.data)); err == nil {
				t.Fatalf("expected error, got %#v", got)
			}
		})
	}
}

func TestEncodeOutboundTags(t *testing.T) {
	tests := []struct {
		msg     Outbound
		wantTag string
	}{
		{BroadcastUsers{Users: []string{"alice"}}, "broadcast_users"},
		{UserConnected{User: "bob"}, "user_connected"},
		{UserDisconnected{User: "bob"}, "user_disconnected"},
		{OfferRelay{From: "alice", To: "bob", SDP: json.RawMessage(`"v=0"`)}, "offer"},
		{AnswerRelay{From: "bob", To: "alice", SDP: json.RawMessage(`"v=0"`)}, "answer"},
		{CandidateRelay{From: "alice", Candidate: json.RawMessage(`"c"`)}, "ice_candidate"},
		{ErrorMessage{Message: "user is already connected"}, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.wantTag, func(t *testing.T) {
			data, err := EncodeOutbound(tt.msg)
			if err != nil {
				t.Fatalf("EncodeOutbound: %v", err)
			}
			var env struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if env.Type != tt.wantTag {
				t.Fatalf("tag = %q, want %q", env.Type, tt.wantTag)
			}

			back, err := DecodeOutbound(data)
			if err != nil {
				t.Fatalf("DecodeOutbound: %v", err)
			}
			if !reflect.DeepEqual(back, tt.msg) {
				t.Fatalf("round trip: got %#v, want %#v", back, tt.msg)
			}
		})
	}
}

func TestBroadcastUsersAlwaysCarriesList(t *testing.T) {
	data, err := EncodeOutbound(BroadcastUsers{})
	if err != nil {
		t.Fatalf("EncodeOutbound: %v", err)
	}
	if !bytes.Contains(data, []byte(`"users":[]`)) {
		t.Fatalf("empty snapshot should still serialize a list, got %s", data)
	}
}

// A relayed payload must reach the target byte-for-byte, whatever JSON the
// sender put in it.
func TestRelayPayloadPreserved(t *testing.T) {
	sdp := `{"type":"offer","sdp":"v=0\r\no=- 463528 2 IN IP4 127.0.0.1\r\n","odd":[1,2.50,null]}`
	frame := `{"type":"offer","to":"bob","sdp":` + sdp + `}`

	in, err := DecodeInbound([]byte(frame))
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	offer, ok := in.(Offer)
	if !ok {
		t.Fatalf("expected Offer, got %T", in)
	}

	out, err := EncodeOutbound(OfferRelay{From: "alice", To: "bob", SDP: offer.SDP})
	if err != nil {
		t.Fatalf("EncodeOutbound: %v", err)
	}
	if !bytes.Contains(out, []byte(sdp)) {
		t.Fatalf("payload not preserved:\n in: %s\nout: %s", sdp, out)
	}
}
