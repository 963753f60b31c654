package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/OmarEhab007/wiregate/internal/collab"
)

// subRegistry tracks live store.subscribe registrations so a write can
// re-evaluate each affected query and push to the connections that asked
// for it.
type subRegistry struct {
	mu   sync.RWMutex
	subs map[string]map[string]*liveSub // bucket -> subscriptionID -> sub
}

type liveSub struct {
	id        string
	queryName string
	params    map[string]any
	sink      collab.PushSink
	lastHash  string
}

func newSubRegistry() *subRegistry {
	return &subRegistry{subs: make(map[string]map[string]*liveSub)}
}

func (r *subRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.subs {
		n += len(m)
	}
	return n
}

func (r *subRegistry) add(bucket string, sub *liveSub) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[bucket] == nil {
		r.subs[bucket] = make(map[string]*liveSub)
	}
	r.subs[bucket][sub.id] = sub
}

func (r *subRegistry) remove(bucket, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs[bucket], id)
}

func (r *subRegistry) snapshot(bucket string) []*liveSub {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*liveSub, 0, len(r.subs[bucket]))
	for _, sub := range r.subs[bucket] {
		out = append(out, sub)
	}
	return out
}

func hashResult(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// RegisterSubscription evaluates queryName once and arranges for sink to
// fire on every subsequent change whose result differs from the last one
// observed (the dedup contract of collab.Store.RegisterSubscription).
func (s *Store) RegisterSubscription(ctx context.Context, queryName string, params map[string]any, sink collab.PushSink) (any, collab.SubscriptionHandle, error) {
	query, err := s.getQuery(ctx, queryName)
	if err != nil {
		return nil, nil, err
	}

	where := mergeWhere(query.Where, params)
	result, err := s.Where(ctx, query.Bucket, where)
	if err != nil {
		return nil, nil, err
	}

	sub := &liveSub{
		id:        uuid.NewString(),
		queryName: queryName,
		params:    params,
		sink:      sink,
		lastHash:  hashResult(result),
	}
	s.subs.add(query.Bucket, sub)

	handle := detachFunc(func() {
		s.subs.remove(query.Bucket, sub.id)
	})
	return result, handle, nil
}

func mergeWhere(base map[string]any, params map[string]any) map[string]any {
	if len(base) == 0 && len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(params))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range params {
		out[k] = v
	}
	return out
}

type detachFunc func()

func (d detachFunc) Detach() { d() }

// notify re-evaluates every live subscription rooted at bucket and pushes
// to the ones whose result changed since the last push.
func (s *Store) notify(ctx context.Context, bucket string) {
	for _, sub := range s.subs.snapshot(bucket) {
		query, err := s.getQuery(ctx, sub.queryName)
		if err != nil {
			continue
		}
		where := mergeWhere(query.Where, sub.params)
		result, err := s.Where(ctx, query.Bucket, where)
		if err != nil {
			continue
		}
		h := hashResult(result)
		if h == sub.lastHash {
			continue
		}
		sub.lastHash = h
		sub.sink(result)
	}
}
