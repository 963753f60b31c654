// Package testutil provides testify/mock collaborators implementing the
// five narrow collab interfaces, plus small request/session fixtures, so router
// and permission tests can exercise the pipeline without a live Postgres,
// Redis, or identity store.
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/OmarEhab007/wiregate/internal/collab"
	"github.com/OmarEhab007/wiregate/internal/domain"
)

// MockStore implements collab.Store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) DefineBucket(ctx context.Context, schema domain.BucketSchema) error {
	args := m.Called(ctx, schema)
	return args.Error(0)
}

func (m *MockStore) DropBucket(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockStore) UpdateBucket(ctx context.Context, schema domain.BucketSchema) error {
	args := m.Called(ctx, schema)
	return args.Error(0)
}

func (m *MockStore) GetBucketSchema(ctx context.Context, name string) (*domain.BucketSchema, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BucketSchema), args.Error(1)
}

func (m *MockStore) Buckets(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) DefineQuery(ctx context.Context, q domain.NamedQuery) error {
	args := m.Called(ctx, q)
	return args.Error(0)
}

func (m *MockStore) UndefineQuery(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockStore) ListQueries(ctx context.Context) ([]domain.NamedQuery, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.NamedQuery), args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, bucket string, record map[string]any) (*domain.Record, error) {
	args := m.Called(ctx, bucket, record)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Record), args.Error(1)
}

func (m *MockStore) Get(ctx context.Context, bucket, key string) (*domain.Record, error) {
	args := m.Called(ctx, bucket, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Record), args.Error(1)
}

func (m *MockStore) Update(ctx context.Context, bucket, key string, patch map[string]any) (*domain.Record, error) {
	args := m.Called(ctx, bucket, key, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Record), args.Error(1)
}

func (m *MockStore) Delete(ctx context.Context, bucket, key string) (bool, error) {
	args := m.Called(ctx, bucket, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Clear(ctx context.Context, bucket string) error {
	args := m.Called(ctx, bucket)
	return args.Error(0)
}

func (m *MockStore) Count(ctx context.Context, bucket string, where map[string]any) (int64, error) {
	args := m.Called(ctx, bucket, where)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) All(ctx context.Context, bucket string) ([]map[string]any, error) {
	args := m.Called(ctx, bucket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

func (m *MockStore) Where(ctx context.Context, bucket string, where map[string]any) ([]map[string]any, error) {
	args := m.Called(ctx, bucket, where)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

func (m *MockStore) FindOne(ctx context.Context, bucket string, where map[string]any) (map[string]any, error) {
	args := m.Called(ctx, bucket, where)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockStore) First(ctx context.Context, bucket string) (map[string]any, error) {
	args := m.Called(ctx, bucket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockStore) Last(ctx context.Context, bucket string) (map[string]any, error) {
	args := m.Called(ctx, bucket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockStore) Paginate(ctx context.Context, bucket string, where map[string]any, cursor string, limit int) (*domain.Page, error) {
	args := m.Called(ctx, bucket, where, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Page), args.Error(1)
}

func (m *MockStore) Sum(ctx context.Context, bucket, field string, where map[string]any) (any, error) {
	args := m.Called(ctx, bucket, field, where)
	return args.Get(0), args.Error(1)
}

func (m *MockStore) Avg(ctx context.Context, bucket, field string, where map[string]any) (any, error) {
	args := m.Called(ctx, bucket, field, where)
	return args.Get(0), args.Error(1)
}

func (m *MockStore) Min(ctx context.Context, bucket, field string, where map[string]any) (any, error) {
	args := m.Called(ctx, bucket, field, where)
	return args.Get(0), args.Error(1)
}

func (m *MockStore) Max(ctx context.Context, bucket, field string, where map[string]any) (any, error) {
	args := m.Called(ctx, bucket, field, where)
	return args.Get(0), args.Error(1)
}

func (m *MockStore) Stats(ctx context.Context) (map[string]any, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func (m *MockStore) Transaction(ctx context.Context, ops []collab.TransactionOp) ([]map[string]any, error) {
	args := m.Called(ctx, ops)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]map[string]any), args.Error(1)
}

func (m *MockStore) RegisterSubscription(ctx context.Context, queryName string, params map[string]any, sink collab.PushSink) (any, collab.SubscriptionHandle, error) {
	args := m.Called(ctx, queryName, params, sink)
	var handle collab.SubscriptionHandle
	if args.Get(1) != nil {
		handle = args.Get(1).(collab.SubscriptionHandle)
	}
	return args.Get(0), handle, args.Error(2)
}

// MockSubscriptionHandle implements collab.SubscriptionHandle.
type MockSubscriptionHandle struct {
	mock.Mock
}

func (m *MockSubscriptionHandle) Detach() { m.Called() }

// MockRuleEngine implements collab.RuleEngine.
type MockRuleEngine struct {
	mock.Mock
}

func (m *MockRuleEngine) Emit(ctx context.Context, topic string, event any) error {
	args := m.Called(ctx, topic, event)
	return args.Error(0)
}

func (m *MockRuleEngine) EmitCorrelated(ctx context.Context, topic string, event any, correlationID string) error {
	args := m.Called(ctx, topic, event, correlationID)
	return args.Error(0)
}

func (m *MockRuleEngine) SetFact(ctx context.Context, key string, value any) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockRuleEngine) GetFact(ctx context.Context, key string) (any, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0), args.Bool(1), args.Error(2)
}

func (m *MockRuleEngine) DeleteFact(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockRuleEngine) QueryFacts(ctx context.Context, pattern string) ([]domain.Fact, error) {
	args := m.Called(ctx, pattern)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Fact), args.Error(1)
}

func (m *MockRuleEngine) GetAllFacts(ctx context.Context) ([]domain.Fact, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Fact), args.Error(1)
}

func (m *MockRuleEngine) RegisterRule(ctx context.Context, rule domain.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRuleEngine) UnregisterRule(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockRuleEngine) UpdateRule(ctx context.Context, rule domain.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRuleEngine) EnableRule(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockRuleEngine) DisableRule(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockRuleEngine) GetRule(ctx context.Context, name string) (*domain.Rule, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Rule), args.Error(1)
}

func (m *MockRuleEngine) ListRules(ctx context.Context) ([]domain.Rule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Rule), args.Error(1)
}

func (m *MockRuleEngine) ValidateRule(ctx context.Context, rule domain.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRuleEngine) Subscribe(ctx context.Context, pattern string, sink collab.PushSink) (collab.SubscriptionHandle, error) {
	args := m.Called(ctx, pattern, sink)
	var handle collab.SubscriptionHandle
	if args.Get(0) != nil {
		handle = args.Get(0).(collab.SubscriptionHandle)
	}
	return handle, args.Error(1)
}

func (m *MockRuleEngine) Stats(ctx context.Context) (map[string]any, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

// MockIdentityManager implements collab.IdentityManager.
type MockIdentityManager struct {
	mock.Mock
}

func (m *MockIdentityManager) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	args := m.Called(ctx, username, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockIdentityManager) LoginWithSecret(ctx context.Context, secret string) (*domain.Session, error) {
	args := m.Called(ctx, secret)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockIdentityManager) Logout(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockIdentityManager) ValidateSession(ctx context.Context, token string) (*domain.Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockIdentityManager) RefreshSession(ctx context.Context, token string) (*domain.Session, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockIdentityManager) CreateUser(ctx context.Context, username, password string, roles []string) (*domain.User, error) {
	args := m.Called(ctx, username, password, roles)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockIdentityManager) GetUser(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockIdentityManager) ListUsers(ctx context.Context) ([]domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *MockIdentityManager) UpdateUserRoles(ctx context.Context, id string, roles []string) error {
	args := m.Called(ctx, id, roles)
	return args.Error(0)
}

func (m *MockIdentityManager) DeleteUser(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockIdentityManager) CreateRole(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockIdentityManager) DeleteRole(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *MockIdentityManager) ListRoles(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockIdentityManager) GrantACL(ctx context.Context, entry domain.ACLEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockIdentityManager) RevokeACL(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockIdentityManager) ListACL(ctx context.Context, subjectType, subjectID string) ([]domain.ACLEntry, error) {
	args := m.Called(ctx, subjectType, subjectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ACLEntry), args.Error(1)
}

func (m *MockIdentityManager) SetOwner(ctx context.Context, resourceType, resourceName, userID string) error {
	args := m.Called(ctx, resourceType, resourceName, userID)
	return args.Error(0)
}

func (m *MockIdentityManager) GetOwner(ctx context.Context, resourceType, resourceName string) (string, bool, error) {
	args := m.Called(ctx, resourceType, resourceName)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockIdentityManager) RolePermissions(ctx context.Context, role string) ([]domain.RolePermission, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.RolePermission), args.Error(1)
}

// MockAuditLog implements collab.AuditLog.
type MockAuditLog struct {
	mock.Mock
}

func (m *MockAuditLog) Record(ctx context.Context, entry domain.AuditEntry) {
	m.Called(ctx, entry)
}

func (m *MockAuditLog) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditEntry), args.Error(1)
}

// MockRateLimiter implements collab.RateLimiter.
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Consume(ctx context.Context, key string) (collab.RateLimitResult, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return collab.RateLimitResult{}, args.Error(1)
	}
	return args.Get(0).(collab.RateLimitResult), args.Error(1)
}
