// Package registry holds the authoritative map of connected clients. It is
// the only state shared between connection sessions; every mutation goes
// through the operations below, each a single critical section.
package registry

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/chirm-app/chirm-server/internal/models"
)

// ErrAlreadyRegistered is returned by Register when the id is taken.
var ErrAlreadyRegistered = errors.New("user is already connected")

// Handle delivers one outbound message to exactly one connection without
// blocking the caller. Sending to a closed connection returns an error and
// is otherwise harmless.
type Handle interface {
	Send(msg models.Outbound) error
}

// Registry is a concurrency-safe mapping from client id to delivery handle.
type Registry struct {
	log *slog.Logger

	mu      sync.Mutex
	clients map[string]Handle
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		log:     logger,
		clients: make(map[string]Handle),
	}
}

// Register inserts id under a single check-and-insert critical section.
// Two concurrent registrations for the same id cannot both succeed; the
// loser gets ErrAlreadyRegistered and the existing entry is untouched.
func (r *Registry) Register(id string, h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[id]; exists {
		r.log.Warn("user already exists", "id", id)
		return ErrAlreadyRegistered
	}
	r.clients[id] = h
	return nil
}

// Unregister removes id and reports whether an entry was removed. Calling it
// again for the same id is a no-op.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[id]; !exists {
		return false
	}
	delete(r.clients, id)
	r.log.Info("disconnected", "id", id)
	return true
}

// Lookup returns the delivery handle for id if registered. The caller sends
// on the returned handle after the registry lock is released, so one slow
// recipient never serializes everyone else's sends.
func (r *Registry) Lookup(id string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.clients[id]
	return h, ok
}

// SnapshotIDs returns a point-in-time list of registered ids, in no
// particular order.
func (r *Registry) SnapshotIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast sends msg to every registered client except exclude (empty means
// no exclusion). Handles are collected under the lock and sent to afterwards;
// delivery is best-effort per recipient and one failed send never stops the
// rest.
func (r *Registry) Broadcast(msg models.Outbound, exclude string) {
	r.mu.Lock()
	targets := make([]Handle, 0, len(r.clients))
	for id, h := range r.clients {
		if id == exclude {
			continue
		}
		targets = append(targets, h)
	}
	r.mu.Unlock()

	for _, h := range targets {
		if err := h.Send(msg); err != nil {
			r.log.Warn("broadcast delivery failed", "error", err)
		}
	}
}
