// Package domain holds the value types shared across the gateway: the
// live connection/session/subscription state owned by a connection actor,
// and the record/schema/rule/identity types exchanged with the store,
// rules, and identity collaborators.
package domain

import "time"

// Channel distinguishes the two push sources a Subscription can be rooted
// at: a store-query result or a rules-topic match.
type Channel string

const (
	ChannelSubscription Channel = "subscription"
	ChannelEvent        Channel = "event"
)

// OperationTier classifies an operation for the built-in role floor.
type OperationTier string

const (
	TierAdmin OperationTier = "admin"
	TierWrite OperationTier = "write"
	TierRead  OperationTier = "read"
)

// Connection is a live client endpoint. It is mutated only by the actor
// that owns it.
type Connection struct {
	ID            string    `json:"connectionId"`
	RemoteAddress string    `json:"remoteAddress"`
	ConnectedAt   int64     `json:"connectedAt"`
	Authenticated bool      `json:"authenticated"`
	Session       *Session  `json:"session,omitempty"`
	LastPingAt    time.Time `json:"-"`
	LastPongAt    time.Time `json:"-"`
}

// Session is an authenticated identity bound to a connection.
type Session struct {
	UserID    string         `json:"userId"`
	Roles     []string       `json:"roles"`
	Token     string         `json:"-"`
	ExpiresAt *int64         `json:"expiresAt,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the session's expiresAt, if set, is in the past
// relative to nowMs (epoch milliseconds).
func (s *Session) Expired(nowMs int64) bool {
	return s != nil && s.ExpiresAt != nil && *s.ExpiresAt < nowMs
}

// HasRole reports whether the session carries the named role.
func (s *Session) HasRole(role string) bool {
	if s == nil {
		return false
	}
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Subscription is a live push channel rooted at one connection.
type Subscription struct {
	ID      string  `json:"subscriptionId"`
	Channel Channel `json:"channel"`
	// Detach severs the subscription from its source. It must be
	// synchronous: once it returns, no further push for this
	// subscription enters the owning connection's inbox.
	Detach func()
}

// Record is one stored value in a bucket.
type Record struct {
	Key       string         `json:"_key"`
	Version   int64          `json:"_version"`
	Data      map[string]any `json:"-"`
	ExpiresAt *int64         `json:"-"`
}

// Flatten returns the record's data merged with its key and version,
// ready for JSON encoding on the wire (the shape clients observe from
// get/insert/update/query operations).
func (r *Record) Flatten() map[string]any {
	out := make(map[string]any, len(r.Data)+2)
	for k, v := range r.Data {
		out[k] = v
	}
	out["_version"] = r.Version
	if _, ok := out["id"]; !ok {
		out["id"] = r.Key
	}
	return out
}

// FieldSchema describes one field of a bucket schema.
type FieldSchema struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // "string" | "number" | "boolean" | "text" | "any"
	Required bool   `json:"required"`
	Indexed  bool   `json:"indexed"`
}

// BucketSchema is the declarative shape of a bucket.
type BucketSchema struct {
	Name       string        `json:"name"`
	PrimaryKey string        `json:"primaryKey"`
	Fields     []FieldSchema `json:"fields"`
	TTLSeconds int64         `json:"ttlSeconds,omitempty"`
}

// TextField returns the name of the first field marked as full-text
// searchable, or "" if none.
func (s *BucketSchema) TextField() string {
	for _, f := range s.Fields {
		if f.Type == "text" {
			return f.Name
		}
	}
	return ""
}

// NamedQuery is a declarative computation over one bucket.
type NamedQuery struct {
	Name   string         `json:"name"`
	Bucket string         `json:"bucket"`
	Where  map[string]any `json:"where,omitempty"`
}

// Rule is a declarative rules-engine entry.
type Rule struct {
	Name     string         `json:"name"`
	Pattern  string         `json:"pattern"`
	Enabled  bool           `json:"enabled"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Fact is a key/value pair held by the rules engine.
type Fact struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// User is a built-in identity store account.
type User struct {
	ID           string   `json:"id"`
	Username     string   `json:"username"`
	PasswordHash string   `json:"-"`
	Roles        []string `json:"roles"`
	CreatedAt    int64    `json:"createdAt"`
}

// ACLEntry grants a subject a subset of operations on one resource.
type ACLEntry struct {
	ID           string   `json:"id"`
	SubjectType  string   `json:"subjectType"` // "user" | "role"
	SubjectID    string   `json:"subjectId"`
	ResourceType string   `json:"resourceType"` // "bucket" | "topic" | "*"
	ResourceName string   `json:"resourceName"`
	Operations   []string `json:"operations"` // subset of {read, write, admin}
}

// RolePermission is a declarative permission rule evaluated per role.
type RolePermission struct {
	Role    string   `json:"role"`
	Allow   []string `json:"allow"`             // operation patterns, "*" or "prefix.*"
	Buckets []string `json:"buckets,omitempty"` // constrains store.* operations
	Topics  []string `json:"topics,omitempty"`  // constrains rules.* operations
}

// Ownership records that a user owns a specific resource, used by the
// permission engine's ownership check.
type Ownership struct {
	ResourceType string `json:"resourceType"`
	ResourceName string `json:"resourceName"`
	UserID       string `json:"userId"`
}

// AuditResult is the outcome recorded for one audited operation.
type AuditResult string

const (
	AuditSuccess AuditResult = "success"
	AuditError   AuditResult = "error"
)

// AuditEntry is one record in the audit log.
type AuditEntry struct {
	Timestamp     int64          `json:"timestamp"`
	UserID        string         `json:"userId,omitempty"`
	SessionID     string         `json:"sessionId,omitempty"`
	Operation     string         `json:"operation"`
	Resource      string         `json:"resource"`
	Result        AuditResult    `json:"result"`
	Error         string         `json:"error,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	RemoteAddress string         `json:"remoteAddress,omitempty"`
}

// AuditFilter narrows an audit.query request.
type AuditFilter struct {
	UserID    string `json:"userId,omitempty"`
	Operation string `json:"operation,omitempty"`
	Result    string `json:"result,omitempty"`
	From      int64  `json:"from,omitempty"`
	To        int64  `json:"to,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Page is the cursor-paginated result shape the store returns verbatim to
// the client.
type Page struct {
	Records    []map[string]any `json:"records"`
	HasMore    bool             `json:"hasMore"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// ConnectionSnapshot is the supervisor registry's per-connection metadata
// row, also the payload shape of server.connections. It is read
// from outside the connection's own goroutine, so actors populate it only
// through atomic fields.
type ConnectionSnapshot struct {
	ConnectionID            string `json:"connectionId"`
	RemoteAddress           string `json:"remoteAddress"`
	ConnectedAt             int64  `json:"connectedAt"`
	Authenticated           bool   `json:"authenticated"`
	UserID                  string `json:"userId,omitempty"`
	StoreSubscriptionCount  int    `json:"storeSubscriptionCount"`
	RulesSubscriptionCount  int    `json:"rulesSubscriptionCount"`
}
