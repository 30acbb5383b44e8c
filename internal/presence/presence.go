// Package presence mirrors the set of connected client ids into Redis so
// external tooling can observe who is online. The mirror is write-only and
// best-effort; the in-memory registry stays the sole authority.
package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	clientSetKey = "chirm:clients"
	clientSetTTL = 24 * time.Hour
	opTimeout    = 2 * time.Second
)

// Publisher writes presence updates to Redis without ever blocking the
// caller; failures are logged and dropped.
type Publisher struct {
	client *redis.Client
	log    *slog.Logger
}

func New(client *redis.Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, log: logger}
}

func (p *Publisher) Connected(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		if err := p.client.SAdd(ctx, clientSetKey, id).Err(); err != nil {
			p.log.Warn("presence add failed", "id", id, "error", err)
			return
		}
		p.client.Expire(ctx, clientSetKey, clientSetTTL)
	}()
}

func (p *Publisher) Disconnected(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		if err := p.client.SRem(ctx, clientSetKey, id).Err(); err != nil {
			p.log.Warn("presence remove failed", "id", id, "error", err)
		}
	}()
}
