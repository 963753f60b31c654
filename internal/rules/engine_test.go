package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmarEhab007/wiregate/internal/domain"
)

func TestTopicMatches(t *testing.T) {
	cases := []struct{ pattern, topic string; want bool }{
		{"orders.*", "orders.created", true},
		{"orders.*", "orders.created.extra", false},
		{"orders.>", "orders.created.extra", true},
		{"orders.created", "orders.created", true},
		{"orders.created", "orders.updated", false},
		{"*", "orders", true},
		{"*", "orders.created", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, topicMatches(c.pattern, c.topic), "%s vs %s", c.pattern, c.topic)
	}
}

func TestFactLifecycle(t *testing.T) {
	ctx := context.Background()
	e := New()

	require.NoError(t, e.SetFact(ctx, "inventory.sku-1", 10))
	v, ok, err := e.GetFact(ctx, "inventory.sku-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 10, v)

	facts, err := e.QueryFacts(ctx, "inventory.*")
	require.NoError(t, err)
	require.Len(t, facts, 1)

	require.NoError(t, e.DeleteFact(ctx, "inventory.sku-1"))
	_, ok, err = e.GetFact(ctx, "inventory.sku-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRuleLifecycle(t *testing.T) {
	ctx := context.Background()
	e := New()

	rule := domain.Rule{Name: "low-stock", Pattern: "inventory.*", Enabled: true}
	require.NoError(t, e.RegisterRule(ctx, rule))
	require.Error(t, e.RegisterRule(ctx, rule))

	require.NoError(t, e.DisableRule(ctx, "low-stock"))
	got, err := e.GetRule(ctx, "low-stock")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	require.NoError(t, e.UnregisterRule(ctx, "low-stock"))
	_, err = e.GetRule(ctx, "low-stock")
	assert.Error(t, err)
}

func TestValidateRuleRejectsEmptyFields(t *testing.T) {
	ctx := context.Background()
	e := New()
	assert.Error(t, e.ValidateRule(ctx, domain.Rule{}))
	assert.Error(t, e.ValidateRule(ctx, domain.Rule{Name: "x"}))
	assert.NoError(t, e.ValidateRule(ctx, domain.Rule{Name: "x", Pattern: "*"}))
}

func TestSubscribeReceivesMatchingEmits(t *testing.T) {
	ctx := context.Background()
	e := New()

	received := make(chan any, 1)
	handle, err := e.Subscribe(ctx, "orders.*", func(data any) { received <- data })
	require.NoError(t, err)

	require.NoError(t, e.Emit(ctx, "orders.created", map[string]any{"id": "o-1"}))

	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("expected a push for matching topic")
	}

	handle.Detach()
	require.NoError(t, e.Emit(ctx, "orders.created", map[string]any{"id": "o-2"}))
	select {
	case <-received:
		t.Fatal("detached subscription must not receive further pushes")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmitCorrelatedWrapsPayload(t *testing.T) {
	ctx := context.Background()
	e := New()

	received := make(chan any, 1)
	_, err := e.Subscribe(ctx, "billing.>", func(data any) { received <- data })
	require.NoError(t, err)

	require.NoError(t, e.EmitCorrelated(ctx, "billing.charged", map[string]any{"amount": 5}, "corr-1"))

	select {
	case msg := <-received:
		wrapper := msg.(map[string]any)["event"].(map[string]any)
		assert.Equal(t, "corr-1", wrapper["correlationId"])
	case <-time.After(time.Second):
		t.Fatal("expected a push")
	}
}
