package router

import (
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// asWireError converts a collaborator's plain Go error into a wire error:
// typed *protocol.Error values pass through verbatim, anything else
// becomes a generic INTERNAL_ERROR.
func asWireError(err error) *protocol.Error {
	if err == nil {
		return nil
	}
	if pe, ok := protocol.AsError(err); ok {
		return pe
	}
	return protocol.NewError(protocol.CodeInternalError, "internal error")
}

// badRequest is shorthand for a VALIDATION_ERROR produced by the router
// itself (missing/malformed required fields), distinct from a collaborator
// rejecting already-well-formed input.
func badRequest(message string) *protocol.Error {
	return protocol.NewError(protocol.CodeValidationError, message)
}

// sessionView is the wire-facing projection of a session: the token never
// leaves the server.
func sessionView(s *domain.Session) map[string]any {
	out := map[string]any{"userId": s.UserID, "roles": s.Roles}
	if s.ExpiresAt != nil {
		out["expiresAt"] = *s.ExpiresAt
	}
	return out
}
