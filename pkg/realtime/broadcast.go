package realtime

import (
	"log/slog"

	"github.com/edutech/marketplace-server-go/pkg/metrics"
)

// Engine fans events out to every connection in a room. Delivery is
// best effort and same-process only: a member that disconnected before
// the lookup is simply absent from the snapshot.
type Engine struct {
	registry *Registry
	logger   *slog.Logger
}

// NewEngine constructs a broadcast engine over a registry.
func NewEngine(registry *Registry, logger *slog.Logger) *Engine {
	return &Engine{registry: registry, logger: logger}
}

// Publish delivers an event to every current member of a room. The
// member snapshot is taken before any send, so no registry lock is
// held during the (potentially blocking) per-connection pushes.
func (e *Engine) Publish(room, event string, payload any) {
	members := e.registry.MembersOf(room)
	for _, conn := range members {
		if err := conn.Emit(event, payload); err != nil {
			e.logger.Debug("broadcast push failed",
				"room", room, "event", event, "connId", conn.ID(), "error", err)
		}
	}
	metrics.EventBroadcast(event, len(members))
}

// PublishExcept delivers an event to every room member except one
// connection, typically the sender of the originating event.
func (e *Engine) PublishExcept(room, event string, payload any, exceptConnID string) {
	members := e.registry.MembersOf(room)
	delivered := 0
	for _, conn := range members {
		if conn.ID() == exceptConnID {
			continue
		}
		if err := conn.Emit(event, payload); err != nil {
			e.logger.Debug("broadcast push failed",
				"room", room, "event", event, "connId", conn.ID(), "error", err)
			continue
		}
		delivered++
	}
	metrics.EventBroadcast(event, delivered)
}
