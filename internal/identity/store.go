// Package identity is the gateway's built-in identity store: users,
// roles, ACL entries, resource ownership, and token-addressed sessions,
// all held in-process. Password hashing is delegated to bcrypt; session
// expiry is checked lazily on validation.
package identity

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// DefaultSessionTTL is how long a login-issued session lives before
// RefreshSession is required.
const DefaultSessionTTL = 24 * time.Hour

// Store is an in-memory, mutex-guarded identity store. All operations are
// safe for concurrent use by multiple connection actors.
type Store struct {
	mu sync.RWMutex

	bootstrapSecret string

	usersByID       map[string]*domain.User
	usersByUsername map[string]string // username -> id
	roles           map[string]struct{}
	acl             map[string]domain.ACLEntry // id -> entry
	owners          map[string]string          // "resourceType/resourceName" -> userID
	sessions        map[string]*domain.Session // token -> session
	rolePermissions map[string][]domain.RolePermission
}

// New creates an empty identity store. bootstrapSecret, when non-empty,
// authenticates the virtual superadmin identity via LoginWithSecret.
func New(bootstrapSecret string) *Store {
	return &Store{
		bootstrapSecret: bootstrapSecret,
		usersByID:       make(map[string]*domain.User),
		usersByUsername: make(map[string]string),
		roles:           map[string]struct{}{"superadmin": {}, "admin": {}, "writer": {}, "reader": {}},
		acl:             make(map[string]domain.ACLEntry),
		owners:          make(map[string]string),
		sessions:        make(map[string]*domain.Session),
		rolePermissions: make(map[string][]domain.RolePermission),
	}
}

// SeedRolePermissions installs declarative RolePermission rules for a
// role, consumed by the permission engine's step 5. There is no wire
// operation for this — it is operator configuration, set at startup.
func (s *Store) SeedRolePermissions(role string, perms []domain.RolePermission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolePermissions[role] = perms
}

func nowMs() int64 { return time.Now().UnixMilli() }

// --- auth -------------------------------------------------------------

func (s *Store) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByUsername[username]
	if !ok {
		return nil, protocol.NewError(protocol.CodeUnauthorized, "invalid credentials")
	}
	user := s.usersByID[id]
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, protocol.NewError(protocol.CodeUnauthorized, "invalid credentials")
	}

	return s.issueSessionLocked(user.ID, user.Roles)
}

func (s *Store) LoginWithSecret(ctx context.Context, secret string) (*domain.Session, error) {
	if s.bootstrapSecret == "" {
		return nil, protocol.NewError(protocol.CodeUnauthorized, "bootstrap login is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.bootstrapSecret)) != 1 {
		return nil, protocol.NewError(protocol.CodeUnauthorized, "invalid credentials")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueSessionLocked("superadmin", []string{"superadmin"})
}

func (s *Store) issueSessionLocked(userID string, roles []string) (*domain.Session, error) {
	token := uuid.NewString()
	expires := nowMs() + DefaultSessionTTL.Milliseconds()
	sess := &domain.Session{UserID: userID, Roles: append([]string(nil), roles...), Token: token, ExpiresAt: &expires}
	s.sessions[token] = sess
	return sess, nil
}

func (s *Store) Logout(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// ValidateSession implements lazy expiry: expiration is detected on use,
// and a stale session is deleted here rather than via a background sweep.
func (s *Store) ValidateSession(ctx context.Context, token string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	if sess.Expired(nowMs()) {
		delete(s.sessions, token)
		return nil, nil
	}
	return sess, nil
}

func (s *Store) RefreshSession(ctx context.Context, token string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok || sess.Expired(nowMs()) {
		delete(s.sessions, token)
		return nil, protocol.NewError(protocol.CodeUnauthorized, "session not found or expired")
	}
	expires := nowMs() + DefaultSessionTTL.Milliseconds()
	sess.ExpiresAt = &expires
	return sess, nil
}

// --- users/roles --------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, username, password string, roles []string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[username]; exists {
		return nil, protocol.NewError(protocol.CodeAlreadyExists, fmt.Sprintf("user %q already exists", username))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeInternalError, "failed to hash password")
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		Roles:        append([]string(nil), roles...),
		CreatedAt:    nowMs(),
	}
	s.usersByID[user.ID] = user
	s.usersByUsername[username] = user.ID
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByID[id]
	if !ok {
		return nil, protocol.NewError(protocol.CodeNotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		out = append(out, *u)
	}
	return out, nil
}

func (s *Store) UpdateUserRoles(ctx context.Context, id string, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByID[id]
	if !ok {
		return protocol.NewError(protocol.CodeNotFound, "user not found")
	}
	u.Roles = append([]string(nil), roles...)
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usersByID[id]
	if !ok {
		return protocol.NewError(protocol.CodeNotFound, "user not found")
	}
	delete(s.usersByUsername, u.Username)
	delete(s.usersByID, id)
	return nil
}

func (s *Store) CreateRole(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[name]; exists {
		return protocol.NewError(protocol.CodeAlreadyExists, fmt.Sprintf("role %q already exists", name))
	}
	s.roles[name] = struct{}{}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.roles[name]; !exists {
		return protocol.NewError(protocol.CodeNotFound, "role not found")
	}
	delete(s.roles, name)
	delete(s.rolePermissions, name)
	return nil
}

func (s *Store) ListRoles(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.roles))
	for r := range s.roles {
		out = append(out, r)
	}
	return out, nil
}

// --- ACL / ownership ------------------------------------------------

func (s *Store) GrantACL(ctx context.Context, entry domain.ACLEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	s.acl[entry.ID] = entry
	return nil
}

func (s *Store) RevokeACL(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.acl[id]; !ok {
		return protocol.NewError(protocol.CodeNotFound, "ACL entry not found")
	}
	delete(s.acl, id)
	return nil
}

func (s *Store) ListACL(ctx context.Context, subjectType, subjectID string) ([]domain.ACLEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ACLEntry
	for _, e := range s.acl {
		if e.SubjectType == subjectType && e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) SetOwner(ctx context.Context, resourceType, resourceName, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[ownerKey(resourceType, resourceName)] = userID
	return nil
}

func (s *Store) GetOwner(ctx context.Context, resourceType, resourceName string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.owners[ownerKey(resourceType, resourceName)]
	return owner, ok, nil
}

func ownerKey(resourceType, resourceName string) string {
	return resourceType + "/" + resourceName
}

func (s *Store) RolePermissions(ctx context.Context, role string) ([]domain.RolePermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.RolePermission(nil), s.rolePermissions[role]...), nil
}
