package router

import (
	"context"
	"time"

	"github.com/OmarEhab007/wiregate/internal/connection"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

func init() {
	registerHandlers(map[string]handlerFunc{
		"server.stats":       handleServerStats,
		"server.connections": handleServerConnections,
	})
}

// handleServerStats reports process-wide gateway metadata: uptime
// plus the live connection count from the supervisor's registry.
func handleServerStats(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	out := map[string]any{
		"version": protocol.Version,
	}
	if r.Registry != nil {
		out["connections"] = r.Registry.Count()
	}
	if !r.Config.StartedAt.IsZero() {
		out["uptimeMs"] = time.Since(r.Config.StartedAt).Milliseconds()
	}
	return out, nil
}

// handleServerConnections returns a snapshot of every live connection's
// registry metadata.
func handleServerConnections(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if r.Registry == nil {
		return []any{}, nil
	}
	return r.Registry.ListConnections(), nil
}
