package testutil

import (
	"encoding/json"

	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// Fixture session/user IDs shared across handler and permission tests.
const (
	TestUserID   = "00000000-0000-0000-0000-0000000000a1"
	TestAdminID  = "00000000-0000-0000-0000-0000000000a2"
	TestSecret   = "test-bootstrap-secret"
)

// NewRequest builds a *protocol.Request with params marshaled the same way
// the wire codec decodes an inbound frame, for handler/router tests that
// don't go through a real WebSocket.
func NewRequest(id float64, reqType string, params any) *protocol.Request {
	raw, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	return &protocol.Request{ID: id, Type: reqType, Raw: raw}
}

// NewSession returns a fixture session for the given user and roles,
// expiring an hour after nowMs.
func NewSession(userID string, roles []string, nowMs int64) *domain.Session {
	expiresAt := nowMs + 3_600_000
	return &domain.Session{
		Token:     "test-token-" + userID,
		UserID:    userID,
		Roles:     roles,
		ExpiresAt: &expiresAt,
	}
}
