package router

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/OmarEhab007/wiregate/internal/broker"
	"github.com/OmarEhab007/wiregate/internal/connection"
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

func init() {
	registerHandlers(map[string]handlerFunc{
		"rules.emit":           handleRulesEmit,
		"rules.emitCorrelated": handleRulesEmitCorrelated,

		"rules.setFact":    handleRulesSetFact,
		"rules.getFact":    handleRulesGetFact,
		"rules.deleteFact": handleRulesDeleteFact,
		"rules.queryFacts": handleRulesQueryFacts,
		"rules.getAllFacts": handleRulesGetAllFacts,

		"rules.register":   handleRulesRegister,
		"rules.unregister": handleRulesUnregister,
		"rules.update":     handleRulesUpdate,
		"rules.enable":     handleRulesEnable,
		"rules.disable":    handleRulesDisable,
		"rules.get":        handleRulesGet,
		"rules.list":       handleRulesList,
		"rules.validate":   handleRulesValidate,

		"rules.subscribe":   handleRulesSubscribe,
		"rules.unsubscribe": handleUnsubscribe,

		"rules.stats": handleRulesStats,
	})
}

// requireRules gates every rules.* handler: all of them yield
// RULES_NOT_AVAILABLE when the engine is absent.
func requireRules(r *Router) *protocol.Error {
	if r.Rules == nil {
		return protocol.NewError(protocol.CodeRulesNotAvailable, "rules engine is not available")
	}
	return nil
}

func handleRulesEmit(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var p struct {
		Topic string `json:"topic"`
		Event any    `json:"event"`
	}
	if err := req.Params(&p); err != nil || p.Topic == "" {
		return nil, badRequest("topic is required")
	}
	if err := r.Rules.Emit(ctx, p.Topic, p.Event); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"emitted": true}, nil
}

func handleRulesEmitCorrelated(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var p struct {
		Topic         string `json:"topic"`
		Event         any    `json:"event"`
		CorrelationID string `json:"correlationId"`
	}
	if err := req.Params(&p); err != nil || p.Topic == "" || p.CorrelationID == "" {
		return nil, badRequest("topic and correlationId are required")
	}
	if err := r.Rules.EmitCorrelated(ctx, p.Topic, p.Event, p.CorrelationID); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"emitted": true}, nil
}

func handleRulesSetFact(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var p struct {
		Key   string `json:"key"`
		Value any    `json:"value"`
	}
	if err := req.Params(&p); err != nil || p.Key == "" {
		return nil, badRequest("key is required")
	}
	if err := r.Rules.SetFact(ctx, p.Key, p.Value); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"set": true}, nil
}

func handleRulesGetFact(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var p struct {
		Key string `json:"key"`
	}
	if err := req.Params(&p); err != nil || p.Key == "" {
		return nil, badRequest("key is required")
	}
	value, ok, err := r.Rules.GetFact(ctx, p.Key)
	if err != nil {
		return nil, asWireError(err)
	}
	if !ok {
		return map[string]any{"value": nil}, nil
	}
	return map[string]any{"value": value}, nil
}

func handleRulesDeleteFact(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var p struct {
		Key string `json:"key"`
	}
	if err := req.Params(&p); err != nil || p.Key == "" {
		return nil, badRequest("key is required")
	}
	if err := r.Rules.DeleteFact(ctx, p.Key); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"deleted": true}, nil
}

func handleRulesQueryFacts(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var p struct {
		Pattern string `json:"pattern"`
	}
	if err := req.Params(&p); err != nil || p.Pattern == "" {
		return nil, badRequest("pattern is required")
	}
	facts, err := r.Rules.QueryFacts(ctx, p.Pattern)
	if err != nil {
		return nil, asWireError(err)
	}
	return facts, nil
}

func handleRulesGetAllFacts(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	facts, err := r.Rules.GetAllFacts(ctx)
	if err != nil {
		return nil, asWireError(err)
	}
	return facts, nil
}

func handleRulesRegister(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var rule domain.Rule
	if err := req.Params(&rule); err != nil || rule.Name == "" {
		return nil, badRequest("rule name is required")
	}
	if err := r.Rules.RegisterRule(ctx, rule); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"registered": true}, nil
}

func handleRulesUnregister(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var p struct {
		Name string `json:"name"`
	}
	if err := req.Params(&p); err != nil || p.Name == "" {
		return nil, badRequest("name is required")
	}
	if err := r.Rules.UnregisterRule(ctx, p.Name); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"unregistered": true}, nil
}

func handleRulesUpdate(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var rule domain.Rule
	if err := req.Params(&rule); err != nil || rule.Name == "" {
		return nil, badRequest("rule name is required")
	}
	if err := r.Rules.UpdateRule(ctx, rule); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"updated": true}, nil
}

func handleRulesEnable(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var p struct {
		Name string `json:"name"`
	}
	if err := req.Params(&p); err != nil || p.Name == "" {
		return nil, badRequest("name is required")
	}
	if err := r.Rules.EnableRule(ctx, p.Name); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"enabled": true}, nil
}

func handleRulesDisable(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var p struct {
		Name string `json:"name"`
	}
	if err := req.Params(&p); err != nil || p.Name == "" {
		return nil, badRequest("name is required")
	}
	if err := r.Rules.DisableRule(ctx, p.Name); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"disabled": true}, nil
}

func handleRulesGet(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var p struct {
		Name string `json:"name"`
	}
	if err := req.Params(&p); err != nil || p.Name == "" {
		return nil, badRequest("name is required")
	}
	rule, err := r.Rules.GetRule(ctx, p.Name)
	if err != nil {
		return nil, asWireError(err)
	}
	return rule, nil
}

func handleRulesList(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	rules, err := r.Rules.ListRules(ctx)
	if err != nil {
		return nil, asWireError(err)
	}
	return rules, nil
}

func handleRulesValidate(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var rule domain.Rule
	if err := req.Params(&rule); err != nil {
		return nil, badRequest("rule is required")
	}
	if err := r.Rules.ValidateRule(ctx, rule); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"valid": true}, nil
}

// handleRulesSubscribe registers a topic-pattern subscription: unlike
// store.subscribe there is no initial data, only the allocated id.
func handleRulesSubscribe(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	var p struct {
		Pattern string `json:"pattern"`
	}
	if err := req.Params(&p); err != nil || p.Pattern == "" {
		return nil, badRequest("pattern is required")
	}
	if a.SubscriptionCount() >= a.MaxSubscriptions() {
		return nil, protocol.NewError(protocol.CodeRateLimited,
			fmt.Sprintf("maximum of %d subscriptions per connection reached", a.MaxSubscriptions()))
	}

	subID := uuid.NewString()
	sink := broker.Sink(a, subID, domain.ChannelEvent)
	handle, err := r.Rules.Subscribe(ctx, p.Pattern, sink)
	if err != nil {
		return nil, asWireError(err)
	}

	sub := &domain.Subscription{ID: subID, Channel: domain.ChannelEvent, Detach: handle.Detach}
	if wireErr := a.AddSubscription(sub); wireErr != nil {
		handle.Detach()
		return nil, wireErr
	}
	return map[string]any{"subscriptionId": subID}, nil
}

func handleRulesStats(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	if err := requireRules(r); err != nil {
		return nil, err
	}
	stats, err := r.Rules.Stats(ctx)
	if err != nil {
		return nil, asWireError(err)
	}
	return stats, nil
}
