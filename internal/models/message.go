package models

import (
	"encoding/json"
	"fmt"
)

// Wire tags for the signaling protocol. Every frame is a JSON object with a
// "type" field holding one of these and the variant's fields as siblings.
const (
	TypeConnect          = "connect"
	TypeDisconnect       = "disconnect"
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeIceCandidate     = "ice_candidate"
	TypeBroadcastUsers   = "broadcast_users"
	TypeUserConnected    = "user_connected"
	TypeUserDisconnected = "user_disconnected"
	TypeError            = "error"
)

// Inbound is a client-to-server signaling message. The set of variants is
// closed: Connect, Disconnect, Offer, Answer, IceCandidate.
type Inbound interface {
	inbound()
}

// Connect registers the sending connection under ID.
type Connect struct {
	ID string
}

// Disconnect voluntarily leaves. Only honored for the session's own id.
type Disconnect struct {
	ID string
}

// Offer asks the server to relay a session description offer to peer To.
// SDP is opaque to the server and forwarded byte-for-byte.
type Offer struct {
	To  string
	SDP json.RawMessage
}

// Answer asks the server to relay a session description answer to peer To.
type Answer struct {
	To  string
	SDP json.RawMessage
}

// IceCandidate asks the server to relay a connectivity candidate to peer To.
type IceCandidate struct {
	To        string
	Candidate json.RawMessage
}

func (Connect) inbound()      {}
func (Disconnect) inbound()   {}
func (Offer) inbound()        {}
func (Answer) inbound()       {}
func (IceCandidate) inbound() {}

// Outbound is a server-to-client signaling message. The set of variants is
// closed: BroadcastUsers, UserConnected, UserDisconnected, OfferRelay,
// AnswerRelay, CandidateRelay, ErrorMessage.
type Outbound interface {
	outbound()
}

// BroadcastUsers is the peer snapshot sent to a freshly registered client.
// Users never contains the recipient's own id.
type BroadcastUsers struct {
	Users []string
}

// UserConnected notifies existing clients that User joined.
type UserConnected struct {
	User string
}

// UserDisconnected notifies remaining clients that User left.
type UserDisconnected struct {
	User string
}

// OfferRelay is a relayed offer, delivered only to the addressed peer.
type OfferRelay struct {
	From string
	To   string
	SDP  json.RawMessage
}

// AnswerRelay is a relayed answer, delivered only to the addressed peer.
type AnswerRelay struct {
	From string
	To   string
	SDP  json.RawMessage
}

// CandidateRelay is a relayed connectivity candidate.
type CandidateRelay struct {
	From      string
	Candidate json.RawMessage
}

// ErrorMessage is a rejection notice sent only to the originating connection.
type ErrorMessage struct {
	Message string
}

func (BroadcastUsers) outbound()   {}
func (UserConnected) outbound()    {}
func (UserDisconnected) outbound() {}
func (OfferRelay) outbound()       {}
func (AnswerRelay) outbound()      {}
func (CandidateRelay) outbound()   {}
func (ErrorMessage) outbound()     {}

// envelope is the superset of fields across all wire variants. Decoding reads
// into it once and then picks the fields the tag calls for.
type envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	User      string          `json:"user,omitempty"`
	Users     []string        `json:"users,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// DecodeInbound parses a text frame into an Inbound message. It fails on
// unknown tags and on variants missing their required fields; callers drop
// such frames without replying.
func DecodeInbound(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode inbound: %w", err)
	}

	switch env.Type {
	case TypeConnect:
		if env.ID == "" {
			return nil, fmt.Errorf("decode inbound: connect without id")
		}
		return Connect{ID: env.ID}, nil
	case TypeDisconnect:
		if env.ID == "" {
			return nil, fmt.Errorf("decode inbound: disconnect without id")
		}
		return Disconnect{ID: env.ID}, nil
	case TypeOffer:
		if env.To == "" {
			return nil, fmt.Errorf("decode inbound: offer without target")
		}
		return Offer{To: env.To, SDP: env.SDP}, nil
	case TypeAnswer:
		if env.To == "" {
			return nil, fmt.Errorf("decode inbound: answer without target")
		}
		return Answer{To: env.To, SDP: env.SDP}, nil
	case TypeIceCandidate:
		if env.To == "" {
			return nil, fmt.Errorf("decode inbound: ice_candidate without target")
		}
		return IceCandidate{To: env.To, Candidate: env.Candidate}, nil
	default:
		return nil, fmt.Errorf("decode inbound: unknown type %q", env.Type)
	}
}

// EncodeInbound serializes a client-to-server message. Used by client-side
// code and tests.
func EncodeInbound(msg Inbound) ([]byte, error) {
	var env envelope
	switch m := msg.(type) {
	case Connect:
		env = envelope{Type: TypeConnect, ID: m.ID}
	case Disconnect:
		env = envelope{Type: TypeDisconnect, ID: m.ID}
	case Offer:
		env = envelope{Type: TypeOffer, To: m.To, SDP: m.SDP}
	case Answer:
		env = envelope{Type: TypeAnswer, To: m.To, SDP: m.SDP}
	case IceCandidate:
		env = envelope{Type: TypeIceCandidate, To: m.To, Candidate: m.Candidate}
	default:
		return nil, fmt.Errorf("encode inbound: unhandled message %T", msg)
	}
	return json.Marshal(env)
}

// EncodeOutbound serializes an Outbound message into a single text frame.
func EncodeOutbound(msg Outbound) ([]byte, error) {
	var env envelope
	switch m := msg.(type) {
	case BroadcastUsers:
		users := m.Users
		if users == nil {
			users = []string{}
		}
		return json.Marshal(struct {
			Type  string   `json:"type"`
			Users []string `json:"users"`
		}{TypeBroadcastUsers, users})
	case UserConnected:
		env = envelope{Type: TypeUserConnected, User: m.User}
	case UserDisconnected:
		env = envelope{Type: TypeUserDisconnected, User: m.User}
	case OfferRelay:
		env = envelope{Type: TypeOffer, From: m.From, To: m.To, SDP: m.SDP}
	case AnswerRelay:
		env = envelope{Type: TypeAnswer, From: m.From, To: m.To, SDP: m.SDP}
	case CandidateRelay:
		env = envelope{Type: TypeIceCandidate, From: m.From, Candidate: m.Candidate}
	case ErrorMessage:
		env = envelope{Type: TypeError, Message: m.Message}
	default:
		return nil, fmt.Errorf("encode outbound: unhandled message %T", msg)
	}
	return json.Marshal(env)
}

// DecodeOutbound parses a server-to-client frame. Used by client-side code
// and tests; the server itself only encodes outbound messages.
func DecodeOutbound(data []byte) (Outbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode outbound: %w", err)
	}

	switch env.Type {
	case TypeBroadcastUsers:
		return BroadcastUsers{Users: env.Users}, nil
	case TypeUserConnected:
		return UserConnected{User: env.User}, nil
	case TypeUserDisconnected:
		return UserDisconnected{User: env.User}, nil
	case TypeOffer:
		return OfferRelay{From: env.From, To: env.To, SDP: env.SDP}, nil
	case TypeAnswer:
		return AnswerRelay{From: env.From, To: env.To, SDP: env.SDP}, nil
	case TypeIceCandidate:
		return CandidateRelay{From: env.From, Candidate: env.Candidate}, nil
	case TypeError:
		return ErrorMessage{Message: env.Message}, nil
	default:
		return nil, fmt.Errorf("decode outbound: unknown type %q", env.Type)
	}
}
