// Package rules implements the gateway's rules/event engine: an
// in-process fact store, a declarative rule registry, and pattern-matched
// topic subscriptions, with an optional NATS mirror of emitted events for
// external consumers.
package rules

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/OmarEhab007/wiregate/internal/collab"
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// Engine is the in-process RuleEngine implementation.
type Engine struct {
	mu    sync.RWMutex
	facts map[string]any
	rules map[string]domain.Rule
	subs  map[string]*subscription

	mirror mirrorFunc
}

type subscription struct {
	id      string
	pattern string
	sink    collab.PushSink
}

// mirrorFunc publishes an emitted event to an external sink (NATS). Nil
// means mirroring is disabled.
type mirrorFunc func(topic string, payload any)

// New creates an empty rule engine.
func New() *Engine {
	return &Engine{
		facts: make(map[string]any),
		rules: make(map[string]domain.Rule),
		subs:  make(map[string]*subscription),
	}
}

// WithMirror attaches an external mirror for emitted events (see mirror.go).
func (e *Engine) WithMirror(m mirrorFunc) *Engine {
	e.mirror = m
	return e
}

// --- events ---------------------------------------------------------------

func (e *Engine) Emit(ctx context.Context, topic string, event any) error {
	return e.emit(topic, event)
}

func (e *Engine) EmitCorrelated(ctx context.Context, topic string, event any, correlationID string) error {
	return e.emit(topic, map[string]any{"correlationId": correlationID, "event": event})
}

func (e *Engine) emit(topic string, payload any) error {
	e.mu.RLock()
	matches := make([]*subscription, 0)
	for _, sub := range e.subs {
		if topicMatches(sub.pattern, topic) {
			matches = append(matches, sub)
		}
	}
	e.mu.RUnlock()

	for _, sub := range matches {
		sub.sink(map[string]any{"topic": topic, "event": payload})
	}
	if e.mirror != nil {
		e.mirror(topic, payload)
	}
	return nil
}

// --- facts ------------------------------------------------------------

func (e *Engine) SetFact(ctx context.Context, key string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.facts[key] = value
	return nil
}

func (e *Engine) GetFact(ctx context.Context, key string) (any, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.facts[key]
	return v, ok, nil
}

func (e *Engine) DeleteFact(ctx context.Context, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.facts, key)
	return nil
}

func (e *Engine) QueryFacts(ctx context.Context, pattern string) ([]domain.Fact, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []domain.Fact
	for k, v := range e.facts {
		if topicMatches(pattern, k) {
			out = append(out, domain.Fact{Key: k, Value: v})
		}
	}
	return out, nil
}

func (e *Engine) GetAllFacts(ctx context.Context) ([]domain.Fact, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Fact, 0, len(e.facts))
	for k, v := range e.facts {
		out = append(out, domain.Fact{Key: k, Value: v})
	}
	return out, nil
}

// --- rules --------------------------------------------------------------

func (e *Engine) RegisterRule(ctx context.Context, rule domain.Rule) error {
	if err := e.ValidateRule(ctx, rule); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.rules[rule.Name]; exists {
		return protocol.NewError(protocol.CodeAlreadyExists, fmt.Sprintf("rule %q already exists", rule.Name))
	}
	e.rules[rule.Name] = rule
	return nil
}

func (e *Engine) UnregisterRule(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[name]; !ok {
		return protocol.NewError(protocol.CodeNotFound, fmt.Sprintf("rule %q not found", name))
	}
	delete(e.rules, name)
	return nil
}

func (e *Engine) UpdateRule(ctx context.Context, rule domain.Rule) error {
	if err := e.ValidateRule(ctx, rule); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[rule.Name]; !ok {
		return protocol.NewError(protocol.CodeNotFound, fmt.Sprintf("rule %q not found", rule.Name))
	}
	e.rules[rule.Name] = rule
	return nil
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	rule, ok := e.rules[name]
	if !ok {
		return protocol.NewError(protocol.CodeNotFound, fmt.Sprintf("rule %q not found", name))
	}
	rule.Enabled = enabled
	e.rules[name] = rule
	return nil
}

func (e *Engine) EnableRule(ctx context.Context, name string) error  { return e.setEnabled(name, true) }
func (e *Engine) DisableRule(ctx context.Context, name string) error { return e.setEnabled(name, false) }

func (e *Engine) GetRule(ctx context.Context, name string) (*domain.Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rule, ok := e.rules[name]
	if !ok {
		return nil, protocol.NewError(protocol.CodeNotFound, fmt.Sprintf("rule %q not found", name))
	}
	return &rule, nil
}

func (e *Engine) ListRules(ctx context.Context) ([]domain.Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) ValidateRule(ctx context.Context, rule domain.Rule) error {
	if rule.Name == "" {
		return protocol.NewError(protocol.CodeValidationError, "rule name is required")
	}
	if rule.Pattern == "" {
		return protocol.NewError(protocol.CodeValidationError, "rule pattern is required")
	}
	return nil
}

// --- subscriptions --------------------------------------------------------

func (e *Engine) Subscribe(ctx context.Context, pattern string, sink collab.PushSink) (collab.SubscriptionHandle, error) {
	sub := &subscription{id: uuid.NewString(), pattern: pattern, sink: sink}
	e.mu.Lock()
	e.subs[sub.id] = sub
	e.mu.Unlock()

	return detachFunc(func() {
		e.mu.Lock()
		delete(e.subs, sub.id)
		e.mu.Unlock()
	}), nil
}

type detachFunc func()

func (d detachFunc) Detach() { d() }

func (e *Engine) Stats(ctx context.Context) (map[string]any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[string]any{
		"rules":         len(e.rules),
		"facts":         len(e.facts),
		"subscriptions": len(e.subs),
	}, nil
}
