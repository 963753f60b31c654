package router

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/OmarEhab007/wiregate/internal/collab"
	"github.com/OmarEhab007/wiregate/internal/connection"
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/permission"
	"github.com/OmarEhab007/wiregate/internal/protocol"
	"github.com/OmarEhab007/wiregate/internal/testutil"
)

func newTestActor(cfg connection.Config, dispatcher connection.Dispatcher) *connection.Actor {
	return connection.New("conn-1", "127.0.0.1:1234", nil, cfg, dispatcher, slog.Default())
}

func TestDispatch_UnknownOperation(t *testing.T) {
	r := New(nil)
	a := newTestActor(connection.DefaultConfig(), r)

	_, wireErr := r.Dispatch(context.Background(), a, &protocol.Request{Type: "bogus.op"})
	require.NotNil(t, wireErr)
	assert.Equal(t, protocol.CodeUnknownOperation, wireErr.Code)
}

func TestDispatch_PingIsAuthExemptAndAuditExempt(t *testing.T) {
	audit := &testutil.MockAuditLog{}
	r := New(nil)
	r.Audit = audit
	r.Config = Config{RequiresAuth: true}
	a := newTestActor(connection.DefaultConfig(), r)

	result, wireErr := r.Dispatch(context.Background(), a, &protocol.Request{Type: "ping"})
	require.Nil(t, wireErr)
	assert.NotNil(t, result)
	audit.AssertNotCalled(t, "Record", mock.Anything, mock.Anything)
}

func TestDispatch_RequiresAuth_Unauthenticated(t *testing.T) {
	r := New(nil)
	r.Config = Config{RequiresAuth: true}
	a := newTestActor(connection.DefaultConfig(), r)

	_, wireErr := r.Dispatch(context.Background(), a, &protocol.Request{Type: "store.get"})
	require.NotNil(t, wireErr)
	assert.Equal(t, protocol.CodeUnauthorized, wireErr.Code)
}

func TestDispatch_RequiresAuth_ExpiredSessionCleared(t *testing.T) {
	r := New(nil)
	r.Config = Config{RequiresAuth: true}
	a := newTestActor(connection.DefaultConfig(), r)

	past := time.Now().Add(-time.Hour).UnixMilli()
	a.SetSession(&domain.Session{UserID: "u1", ExpiresAt: &past})

	_, wireErr := r.Dispatch(context.Background(), a, &protocol.Request{Type: "store.get"})
	require.NotNil(t, wireErr)
	assert.Equal(t, protocol.CodeUnauthorized, wireErr.Code)
	assert.Nil(t, a.Session())
}

func TestDispatch_RateLimited(t *testing.T) {
	limiter := &testutil.MockRateLimiter{}
	limiter.On("Consume", mock.Anything, "addr:127.0.0.1:1234").
		Return(collab.RateLimitResult{Allowed: false, RetryAfterMs: 500}, nil)

	r := New(nil)
	r.RateLimiter = limiter
	a := newTestActor(connection.DefaultConfig(), r)

	_, wireErr := r.Dispatch(context.Background(), a, &protocol.Request{Type: "store.get"})
	require.NotNil(t, wireErr)
	assert.Equal(t, protocol.CodeRateLimited, wireErr.Code)
	assert.NotNil(t, wireErr.Details)
}

func TestDispatch_PermissionDenied_RecordsAudit(t *testing.T) {
	audit := &testutil.MockAuditLog{}
	audit.On("Record", mock.Anything, mock.MatchedBy(func(e domain.AuditEntry) bool {
		return e.Result == domain.AuditError && e.Operation == "store.dropBucket"
	})).Return()

	r := New(nil)
	r.Audit = audit
	r.Permission = &permission.Engine{Default: permission.DefaultDeny}
	a := newTestActor(connection.DefaultConfig(), r)
	a.SetSession(&domain.Session{UserID: "u1", Roles: []string{"reader"}})

	_, wireErr := r.Dispatch(context.Background(), a, &protocol.Request{Type: "store.dropBucket"})
	require.NotNil(t, wireErr)
	assert.Equal(t, protocol.CodeForbidden, wireErr.Code)
	audit.AssertExpectations(t)
}

func TestDispatch_SuccessRecordsAudit(t *testing.T) {
	store := &testutil.MockStore{}
	store.On("Stats", mock.Anything).Return(map[string]any{"buckets": int64(0)}, nil)

	audit := &testutil.MockAuditLog{}
	audit.On("Record", mock.Anything, mock.MatchedBy(func(e domain.AuditEntry) bool {
		return e.Result == domain.AuditSuccess && e.Operation == "store.stats" && e.UserID == "u1"
	})).Return()

	r := New(nil)
	r.Store = store
	r.Audit = audit
	r.Permission = &permission.Engine{Default: permission.DefaultAllow}
	a := newTestActor(connection.DefaultConfig(), r)
	a.SetSession(&domain.Session{UserID: "u1", Roles: []string{"admin"}})

	result, wireErr := r.Dispatch(context.Background(), a, &protocol.Request{Type: "store.stats"})
	require.Nil(t, wireErr)
	assert.NotNil(t, result)
	audit.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestDispatch_SubscribeThenUnsubscribe(t *testing.T) {
	handle := &testutil.MockSubscriptionHandle{}
	handle.On("Detach").Return()

	store := &testutil.MockStore{}
	store.On("RegisterSubscription", mock.Anything, "all-tasks", mock.Anything, mock.Anything).
		Return([]map[string]any{}, handle, nil)

	r := New(nil)
	r.Store = store
	a := newTestActor(connection.DefaultConfig(), r)

	result, wireErr := r.Dispatch(context.Background(), a, &protocol.Request{
		ID: 1, Type: "store.subscribe", Raw: []byte(`{"query":"all-tasks"}`),
	})
	require.Nil(t, wireErr)
	subID := result.(map[string]any)["subscriptionId"].(string)
	require.NotEmpty(t, subID)
	assert.Equal(t, 1, a.SubscriptionCount())

	// An id this connection never issued is NOT_FOUND, even if it exists
	// elsewhere.
	_, wireErr = r.Dispatch(context.Background(), a, &protocol.Request{
		ID: 2, Type: "store.unsubscribe", Raw: []byte(`{"subscriptionId":"someone-elses"}`),
	})
	require.NotNil(t, wireErr)
	assert.Equal(t, protocol.CodeNotFound, wireErr.Code)

	_, wireErr = r.Dispatch(context.Background(), a, &protocol.Request{
		ID: 3, Type: "store.unsubscribe", Raw: []byte(`{"subscriptionId":"` + subID + `"}`),
	})
	require.Nil(t, wireErr)
	assert.Equal(t, 0, a.SubscriptionCount())
	handle.AssertCalled(t, "Detach")
}

func TestDispatch_SubscriptionCeilingRefusedBeforeRegistering(t *testing.T) {
	store := &testutil.MockStore{}

	cfg := connection.DefaultConfig()
	cfg.MaxSubscriptionsPerConnection = 0

	r := New(nil)
	r.Store = store
	a := newTestActor(cfg, r)

	_, wireErr := r.Dispatch(context.Background(), a, &protocol.Request{
		ID: 1, Type: "store.subscribe", Raw: []byte(`{"query":"all-tasks"}`),
	})
	require.NotNil(t, wireErr)
	assert.Equal(t, protocol.CodeRateLimited, wireErr.Code)
	store.AssertNotCalled(t, "RegisterSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSanitize_ElidesDetailsUnlessExposed(t *testing.T) {
	r := New(nil)
	r.Config = Config{ExposeErrorDetails: false}

	withDetails := protocol.NewError(protocol.CodeInternalError, "boom").
		WithDetails(map[string]any{"secret": "value"})
	sanitized := r.sanitize(withDetails)
	assert.Nil(t, sanitized.Details)

	r.Config.ExposeErrorDetails = true
	sanitized = r.sanitize(withDetails)
	assert.NotNil(t, sanitized.Details)
}

func TestSanitize_AlwaysKeepsRateLimitedDetails(t *testing.T) {
	r := New(nil)
	r.Config = Config{ExposeErrorDetails: false}

	rl := protocol.NewError(protocol.CodeRateLimited, "slow down").
		WithDetails(map[string]any{"retryAfterMs": 500})
	sanitized := r.sanitize(rl)
	assert.NotNil(t, sanitized.Details)
}
