// Package collab declares the narrow interfaces the gateway core consumes
// from its four external collaborators: the schemaed key-value
// store, the rules/event engine, the built-in identity manager, and the
// audit log, plus the rate limiter. The core — protocol, permission,
// router, connection, supervisor, broker — depends only on these
// interfaces, never on a concrete collaborator package, so swapping an
// implementation never touches the core.
package collab

import (
	"context"

	"github.com/OmarEhab007/wiregate/internal/domain"
)

// PushSink is how a collaborator notifies the gateway of a change. The
// gateway wraps every sink so it only ever enqueues into the owning
// connection's inbox; the collaborator never touches socket or session
// state.
type PushSink func(data any)

// SubscriptionHandle is returned by a collaborator registration call and
// detached exactly once, synchronously, when the subscription ends.
type SubscriptionHandle interface {
	Detach()
}

// QueryResult is what a named-query evaluation or subscription yields.
type QueryResult struct {
	Data    any
	Changed bool // used by RegisterSubscription's dedup contract
}

// Store is the schemaed key-value store collaborator.
type Store interface {
	DefineBucket(ctx context.Context, schema domain.BucketSchema) error
	DropBucket(ctx context.Context, name string) error
	UpdateBucket(ctx context.Context, schema domain.BucketSchema) error
	GetBucketSchema(ctx context.Context, name string) (*domain.BucketSchema, error)
	Buckets(ctx context.Context) ([]string, error)

	DefineQuery(ctx context.Context, q domain.NamedQuery) error
	UndefineQuery(ctx context.Context, name string) error
	ListQueries(ctx context.Context) ([]domain.NamedQuery, error)

	Insert(ctx context.Context, bucket string, record map[string]any) (*domain.Record, error)
	Get(ctx context.Context, bucket, key string) (*domain.Record, error)
	Update(ctx context.Context, bucket, key string, patch map[string]any) (*domain.Record, error)
	Delete(ctx context.Context, bucket, key string) (bool, error)
	Clear(ctx context.Context, bucket string) error
	Count(ctx context.Context, bucket string, where map[string]any) (int64, error)

	All(ctx context.Context, bucket string) ([]map[string]any, error)
	Where(ctx context.Context, bucket string, where map[string]any) ([]map[string]any, error)
	FindOne(ctx context.Context, bucket string, where map[string]any) (map[string]any, error)
	First(ctx context.Context, bucket string) (map[string]any, error)
	Last(ctx context.Context, bucket string) (map[string]any, error)
	Paginate(ctx context.Context, bucket string, where map[string]any, cursor string, limit int) (*domain.Page, error)

	Sum(ctx context.Context, bucket, field string, where map[string]any) (any, error)
	Avg(ctx context.Context, bucket, field string, where map[string]any) (any, error)
	Min(ctx context.Context, bucket, field string, where map[string]any) (any, error)
	Max(ctx context.Context, bucket, field string, where map[string]any) (any, error)

	Stats(ctx context.Context) (map[string]any, error)

	// Transaction applies ops atomically; any op's failure rolls back
	// the whole batch. One successful commit yields at most one push
	// per affected subscription.
	Transaction(ctx context.Context, ops []TransactionOp) ([]map[string]any, error)

	// RegisterSubscription evaluates queryName once (initial result) and
	// registers sink to fire on every subsequent change. The store
	// deduplicates: an unchanged result does not fire sink.
	RegisterSubscription(ctx context.Context, queryName string, params map[string]any, sink PushSink) (initial any, handle SubscriptionHandle, err error)
}

// TransactionOp is one operation inside a store.transaction request.
type TransactionOp struct {
	Op     string         `json:"op"` // insert | update | delete | clear
	Bucket string         `json:"bucket"`
	Key    string         `json:"key,omitempty"`
	Record map[string]any `json:"record,omitempty"`
}

// RuleEngine is the rules/event engine collaborator.
type RuleEngine interface {
	Emit(ctx context.Context, topic string, event any) error
	EmitCorrelated(ctx context.Context, topic string, event any, correlationID string) error

	SetFact(ctx context.Context, key string, value any) error
	GetFact(ctx context.Context, key string) (any, bool, error)
	DeleteFact(ctx context.Context, key string) error
	QueryFacts(ctx context.Context, pattern string) ([]domain.Fact, error)
	GetAllFacts(ctx context.Context) ([]domain.Fact, error)

	RegisterRule(ctx context.Context, rule domain.Rule) error
	UnregisterRule(ctx context.Context, name string) error
	UpdateRule(ctx context.Context, rule domain.Rule) error
	EnableRule(ctx context.Context, name string) error
	DisableRule(ctx context.Context, name string) error
	GetRule(ctx context.Context, name string) (*domain.Rule, error)
	ListRules(ctx context.Context) ([]domain.Rule, error)
	ValidateRule(ctx context.Context, rule domain.Rule) error

	Subscribe(ctx context.Context, pattern string, sink PushSink) (SubscriptionHandle, error)

	Stats(ctx context.Context) (map[string]any, error)
}

// IdentityManager is the built-in identity store collaborator.
type IdentityManager interface {
	Login(ctx context.Context, username, password string) (*domain.Session, error)
	LoginWithSecret(ctx context.Context, secret string) (*domain.Session, error)
	Logout(ctx context.Context, token string) error
	ValidateSession(ctx context.Context, token string) (*domain.Session, error)
	RefreshSession(ctx context.Context, token string) (*domain.Session, error)

	CreateUser(ctx context.Context, username, password string, roles []string) (*domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateUserRoles(ctx context.Context, id string, roles []string) error
	DeleteUser(ctx context.Context, id string) error

	CreateRole(ctx context.Context, name string) error
	DeleteRole(ctx context.Context, name string) error
	ListRoles(ctx context.Context) ([]string, error)

	GrantACL(ctx context.Context, entry domain.ACLEntry) error
	RevokeACL(ctx context.Context, id string) error
	ListACL(ctx context.Context, subjectType, subjectID string) ([]domain.ACLEntry, error)

	SetOwner(ctx context.Context, resourceType, resourceName, userID string) error
	GetOwner(ctx context.Context, resourceType, resourceName string) (string, bool, error)

	// RolePermissions returns the declarative permission rules for a
	// role, consumed by the permission engine.
	RolePermissions(ctx context.Context, role string) ([]domain.RolePermission, error)
}

// AuditLog is the audit log collaborator.
type AuditLog interface {
	Record(ctx context.Context, entry domain.AuditEntry)
	Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

// RateLimitResult is returned by RateLimiter.Consume.
type RateLimitResult struct {
	Allowed      bool
	RetryAfterMs int64
}

// RateLimiter is the rate limiter collaborator.
type RateLimiter interface {
	Consume(ctx context.Context, key string) (RateLimitResult, error)
}
