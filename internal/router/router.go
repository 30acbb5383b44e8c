// Package router implements the signaling protocol: which registry operation
// each inbound message triggers and which outbound messages it emits. The
// router itself is stateless; per-connection state lives in Origin.
package router

import (
	"log/slog"

	"github.com/chirm-app/chirm-server/internal/models"
	"github.com/chirm-app/chirm-server/internal/registry"
)

// Presence receives best-effort notifications when a client registers or
// leaves. Implementations must not block; a nil Presence disables it.
type Presence interface {
	Connected(id string)
	Disconnected(id string)
}

// Origin identifies the connection a message arrived on: its delivery handle
// plus the session's identity state. A connection starts unbound and becomes
// bound by its first successful connect; it never goes back.
type Origin struct {
	handle registry.Handle

	id    string
	bound bool
}

func NewOrigin(h registry.Handle) *Origin {
	return &Origin{handle: h}
}

// ID returns the bound identity, if any.
func (o *Origin) ID() (string, bool) {
	return o.id, o.bound
}

// Router dispatches inbound messages against the registry.
type Router struct {
	reg      *registry.Registry
	presence Presence
	log      *slog.Logger
}

// New builds a router. presence may be nil.
func New(reg *registry.Registry, presence Presence, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{reg: reg, presence: presence, log: logger}
}

// Route processes one inbound message to completion, including every send it
// triggers. It returns true when the session should terminate (the client
// voluntarily disconnected its own id).
func (r *Router) Route(o *Origin, msg models.Inbound) bool {
	switch m := msg.(type) {
	case models.Connect:
		r.routeConnect(o, m)
	case models.Disconnect:
		return r.routeDisconnect(o, m)
	case models.Offer:
		if from, ok := r.sender(o, models.TypeOffer); ok {
			r.relay(m.To, models.OfferRelay{From: from, To: m.To, SDP: m.SDP})
		}
	case models.Answer:
		if from, ok := r.sender(o, models.TypeAnswer); ok {
			r.relay(m.To, models.AnswerRelay{From: from, To: m.To, SDP: m.SDP})
		}
	case models.IceCandidate:
		if from, ok := r.sender(o, models.TypeIceCandidate); ok {
			r.relay(m.To, models.CandidateRelay{From: from, Candidate: m.Candidate})
		}
	default:
		// DecodeInbound only produces the variants above.
		r.log.Error("unhandled inbound message", "message", m)
	}
	return false
}

// HandleClose runs the cleanup for a closed connection: unregister the bound
// id, if any, and tell everyone else. Safe to call on unbound sessions and
// after a voluntary disconnect.
func (r *Router) HandleClose(o *Origin) {
	r.drop(o)
}

func (r *Router) routeConnect(o *Origin, m models.Connect) {
	if o.bound {
		// One identity per connection for its whole lifetime.
		r.log.Warn("connect on already bound connection", "id", o.id, "requested", m.ID)
		r.reply(o, models.ErrorMessage{Message: "connection already registered"})
		return
	}

	if err := r.reg.Register(m.ID, o.handle); err != nil {
		r.reply(o, models.ErrorMessage{Message: err.Error()})
		return
	}
	o.id = m.ID
	o.bound = true

	users := make([]string, 0)
	for _, id := range r.reg.SnapshotIDs() {
		if id != m.ID {
			users = append(users, id)
		}
	}
	r.reply(o, models.BroadcastUsers{Users: users})
	r.reg.Broadcast(models.UserConnected{User: m.ID}, m.ID)

	if r.presence != nil {
		r.presence.Connected(m.ID)
	}
	r.log.Info("registered", "id", m.ID)
}

func (r *Router) routeDisconnect(o *Origin, m models.Disconnect) bool {
	if !o.bound || o.id != m.ID {
		// Never let one connection deregister another.
		r.log.Warn("ignoring disconnect for foreign id", "requested", m.ID)
		return false
	}
	r.drop(o)
	return true
}

// drop unbinds the origin's identity and, if it was still registered,
// broadcasts the departure. Unbinding first means a later close of the same
// socket cannot unregister a fresh registration of the same id.
func (r *Router) drop(o *Origin) {
	if !o.bound {
		return
	}
	id := o.id
	o.id = ""
	o.bound = false

	if r.reg.Unregister(id) {
		r.reg.Broadcast(models.UserDisconnected{User: id}, id)
		if r.presence != nil {
			r.presence.Disconnected(id)
		}
	}
}

// sender returns the bound identity for a relay message, dropping the
// message when the connection never completed a connect.
func (r *Router) sender(o *Origin, kind string) (string, bool) {
	if !o.bound {
		r.log.Warn("dropping relay from unbound connection", "kind", kind)
		return "", false
	}
	return o.id, true
}

// relay delivers msg to the addressed peer. An unknown target is expected
// steady-state (the peer may have left between discovery and negotiation)
// and stays silent.
func (r *Router) relay(to string, msg models.Outbound) {
	h, ok := r.reg.Lookup(to)
	if !ok {
		r.log.Debug("relay target not connected", "to", to)
		return
	}
	if err := h.Send(msg); err != nil {
		r.log.Warn("relay delivery failed", "to", to, "error", err)
	}
}

func (r *Router) reply(o *Origin, msg models.Outbound) {
	if err := o.handle.Send(msg); err != nil {
		r.log.Warn("reply delivery failed", "error", err)
	}
}
