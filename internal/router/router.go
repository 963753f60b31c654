// Package router holds the dispatch table keyed by request type, and the
// pipeline every request traverses before reaching a handler (auth check,
// rate-limit check, permission check, handler). It is the one place a
// bare Go error is converted to a wire *protocol.Error.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/OmarEhab007/wiregate/internal/collab"
	"github.com/OmarEhab007/wiregate/internal/connection"
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/permission"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// Registry is the narrow slice of the connection supervisor the
// server.stats/server.connections handlers need. Kept as an interface so
// this package never imports internal/supervisor.
type Registry interface {
	Count() int
	ListConnections() []domain.ConnectionSnapshot
}

// Config bounds pipeline behavior that doesn't belong to any one
// collaborator.
type Config struct {
	RequiresAuth       bool
	ExposeErrorDetails bool
	StartedAt          time.Time
}

// Router implements connection.Dispatcher against the gateway's four
// collaborators plus the permission engine and the connection registry.
type Router struct {
	Store       collab.Store
	Rules       collab.RuleEngine
	Identity    collab.IdentityManager
	Audit       collab.AuditLog
	RateLimiter collab.RateLimiter
	Permission  *permission.Engine
	Registry    Registry
	Config      Config
	Logger      *slog.Logger
}

// New builds a Router. logger may be nil, in which case slog.Default is used.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{Logger: logger.With("component", "router")}
}

// handlerFunc is one dispatch-table entry.
type handlerFunc func(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error)

// dispatchTable is the closed map of every operation this gateway knows,
// populated by each handler group's init() via registerHandlers. Any
// type not in the table is UNKNOWN_OPERATION.
var dispatchTable = map[string]handlerFunc{}

func registerHandlers(group map[string]handlerFunc) {
	for op, fn := range group {
		if _, exists := dispatchTable[op]; exists {
			panic("router: duplicate handler registered for " + op)
		}
		dispatchTable[op] = fn
	}
}

// authExempt operations skip both the auth check and the permission
// check: the login namespace and ping must work before a session exists.
// identity.whoami is included because it is accepted while still
// authenticating, i.e. before login.
var authExempt = map[string]bool{
	"ping":                    true,
	"auth.login":              true,
	"identity.login":          true,
	"identity.loginWithSecret": true,
	"identity.whoami":         true,
}

// Dispatch implements connection.Dispatcher: the full request pipeline,
// ending in an audit record for every request that reached a handler.
func (r *Router) Dispatch(ctx context.Context, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	op := req.Type
	handler, ok := dispatchTable[op]
	if !ok {
		return nil, protocol.NewError(protocol.CodeUnknownOperation, "unknown operation: "+op)
	}

	exempt := authExempt[op]

	if !exempt {
		if wireErr := r.checkAuth(a); wireErr != nil {
			return nil, wireErr
		}
	}

	if wireErr := r.checkRateLimit(ctx, a); wireErr != nil {
		return nil, r.sanitize(wireErr)
	}

	fields := extractFields(req)
	resource := permission.ExtractResource(op, fields)

	if !exempt {
		if wireErr := r.checkPermission(ctx, a, op, resource); wireErr != nil {
			r.recordAudit(ctx, a, op, resource, wireErr)
			return nil, r.sanitize(wireErr)
		}
	}

	result, handlerErr := handler(ctx, r, a, req)
	r.recordAudit(ctx, a, op, resource, handlerErr)
	if handlerErr != nil {
		return nil, r.sanitize(handlerErr)
	}
	return result, nil
}

// checkAuth is the pipeline's auth step: absent or expired session fails
// UNAUTHORIZED, clearing a stale session first.
func (r *Router) checkAuth(a *connection.Actor) *protocol.Error {
	if !r.Config.RequiresAuth {
		return nil
	}
	sess := a.Session()
	if sess == nil {
		return protocol.NewError(protocol.CodeUnauthorized, "authentication required")
	}
	if sess.Expired(nowMs()) {
		a.ClearSession()
		return protocol.NewError(protocol.CodeUnauthorized, "session expired")
	}
	return nil
}

// checkRateLimit is the pipeline's rate-limit step: one token keyed by
// userId when authenticated, else by remoteAddress, so the key switches
// over atomically the instant login installs a session.
func (r *Router) checkRateLimit(ctx context.Context, a *connection.Actor) *protocol.Error {
	if r.RateLimiter == nil {
		return nil
	}
	key := "addr:" + a.RemoteAddress
	if sess := a.Session(); sess != nil {
		key = "user:" + sess.UserID
	}
	res, err := r.RateLimiter.Consume(ctx, key)
	if err != nil {
		r.Logger.Error("rate limiter unavailable", "error", err)
		return protocol.NewError(protocol.CodeInternalError, "internal error")
	}
	if !res.Allowed {
		return protocol.NewError(protocol.CodeRateLimited, "rate limit exceeded").
			WithDetails(map[string]any{"retryAfterMs": res.RetryAfterMs})
	}
	return nil
}

// checkPermission is the pipeline's permission step.
func (r *Router) checkPermission(ctx context.Context, a *connection.Actor, op, resource string) *protocol.Error {
	if r.Permission == nil {
		return nil
	}
	if err := r.Permission.Allow(ctx, a.Session(), op, resource); err != nil {
		if pe, ok := protocol.AsError(err); ok {
			return pe
		}
		return protocol.NewError(protocol.CodeInternalError, "internal error")
	}
	return nil
}

// sanitize elides a typed error's details when the operator has not opted
// into exposing them — except RATE_LIMITED, whose
// details.retryAfterMs the client always needs to back off correctly.
func (r *Router) sanitize(e *protocol.Error) *protocol.Error {
	if e == nil || r.Config.ExposeErrorDetails || e.Code == protocol.CodeRateLimited {
		return e
	}
	if e.Details == nil {
		return e
	}
	return protocol.NewError(e.Code, e.Message)
}

// recordAudit writes one audit entry per dispatched request, skipping only
// pure heartbeats (ping); audit.query calls are recorded like any other
// operation.
func (r *Router) recordAudit(ctx context.Context, a *connection.Actor, op, resource string, handlerErr *protocol.Error) {
	if r.Audit == nil || op == "ping" {
		return
	}
	entry := domain.AuditEntry{
		Timestamp:     time.Now().UnixMilli(),
		Operation:     op,
		Resource:      resource,
		Result:        domain.AuditSuccess,
		RemoteAddress: a.RemoteAddress,
	}
	if sess := a.Session(); sess != nil {
		entry.UserID = sess.UserID
	}
	if handlerErr != nil {
		entry.Result = domain.AuditError
		entry.Error = handlerErr.Error()
	}
	r.Audit.Record(ctx, entry)
}

func nowMs() int64 { return time.Now().UnixMilli() }
