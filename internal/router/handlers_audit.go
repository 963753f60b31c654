package router

import (
	"context"

	"github.com/OmarEhab007/wiregate/internal/connection"
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

func init() {
	registerHandlers(map[string]handlerFunc{
		"audit.query": handleAuditQuery,
	})
}

// handleAuditQuery serves audit.query: entries newest-first from the
// bounded ring buffer, filtered by userId/operation/result/from/to/limit.
func handleAuditQuery(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if r.Audit == nil {
		return []domain.AuditEntry{}, nil
	}
	var filter domain.AuditFilter
	if err := req.Params(&filter); err != nil {
		return nil, badRequest("invalid audit filter")
	}
	entries, err := r.Audit.Query(ctx, filter)
	if err != nil {
		return nil, asWireError(err)
	}
	return entries, nil
}
