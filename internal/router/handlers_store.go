package router

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/OmarEhab007/wiregate/internal/broker"
	"github.com/OmarEhab007/wiregate/internal/collab"
	"github.com/OmarEhab007/wiregate/internal/connection"
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

func init() {
	registerHandlers(map[string]handlerFunc{
		"store.defineBucket":    handleStoreDefineBucket,
		"store.dropBucket":      handleStoreDropBucket,
		"store.updateBucket":    handleStoreUpdateBucket,
		"store.getBucketSchema": handleStoreGetBucketSchema,
		"store.buckets":         handleStoreBuckets,
		"store.stats":           handleStoreStats,

		"store.defineQuery":   handleStoreDefineQuery,
		"store.undefineQuery": handleStoreUndefineQuery,
		"store.listQueries":   handleStoreListQueries,

		"store.insert": handleStoreInsert,
		"store.get":    handleStoreGet,
		"store.update": handleStoreUpdate,
		"store.delete": handleStoreDelete,
		"store.clear":  handleStoreClear,
		"store.count":  handleStoreCount,

		"store.all":      handleStoreAll,
		"store.where":    handleStoreWhere,
		"store.findOne":  handleStoreFindOne,
		"store.first":    handleStoreFirst,
		"store.last":     handleStoreLast,
		"store.paginate": handleStorePaginate,

		"store.sum": handleStoreSum,
		"store.avg": handleStoreAvg,
		"store.min": handleStoreMin,
		"store.max": handleStoreMax,

		"store.transaction": handleStoreTransaction,

		"store.subscribe":   handleStoreSubscribe,
		"store.unsubscribe": handleUnsubscribe,
	})
}

func handleStoreDefineBucket(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var schema domain.BucketSchema
	if err := req.Params(&schema); err != nil || schema.Name == "" {
		return nil, badRequest("bucket schema name is required")
	}
	if err := r.Store.DefineBucket(ctx, schema); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"defined": true}, nil
}

func handleStoreDropBucket(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Bucket string `json:"bucket"`
	}
	if err := req.Params(&p); err != nil || p.Bucket == "" {
		return nil, badRequest("bucket is required")
	}
	if err := r.Store.DropBucket(ctx, p.Bucket); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"dropped": true}, nil
}

func handleStoreUpdateBucket(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var schema domain.BucketSchema
	if err := req.Params(&schema); err != nil || schema.Name == "" {
		return nil, badRequest("bucket schema name is required")
	}
	if err := r.Store.UpdateBucket(ctx, schema); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"updated": true}, nil
}

func handleStoreGetBucketSchema(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Bucket string `json:"bucket"`
	}
	if err := req.Params(&p); err != nil || p.Bucket == "" {
		return nil, badRequest("bucket is required")
	}
	schema, err := r.Store.GetBucketSchema(ctx, p.Bucket)
	if err != nil {
		return nil, asWireError(err)
	}
	return schema, nil
}

func handleStoreBuckets(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	buckets, err := r.Store.Buckets(ctx)
	if err != nil {
		return nil, asWireError(err)
	}
	return buckets, nil
}

func handleStoreStats(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	stats, err := r.Store.Stats(ctx)
	if err != nil {
		return nil, asWireError(err)
	}
	return stats, nil
}

func handleStoreDefineQuery(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var q domain.NamedQuery
	if err := req.Params(&q); err != nil || q.Name == "" || q.Bucket == "" {
		return nil, badRequest("query name and bucket are required")
	}
	if err := r.Store.DefineQuery(ctx, q); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"defined": true}, nil
}

func handleStoreUndefineQuery(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Name string `json:"name"`
	}
	if err := req.Params(&p); err != nil || p.Name == "" {
		return nil, badRequest("name is required")
	}
	if err := r.Store.UndefineQuery(ctx, p.Name); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"undefined": true}, nil
}

func handleStoreListQueries(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	queries, err := r.Store.ListQueries(ctx)
	if err != nil {
		return nil, asWireError(err)
	}
	return queries, nil
}

type bucketKeyParams struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

func handleStoreInsert(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Bucket string         `json:"bucket"`
		Record map[string]any `json:"record"`
	}
	if err := req.Params(&p); err != nil || p.Bucket == "" {
		return nil, badRequest("bucket is required")
	}
	rec, err := r.Store.Insert(ctx, p.Bucket, p.Record)
	if err != nil {
		return nil, asWireError(err)
	}
	return rec.Flatten(), nil
}

// handleStoreGet answers a missing key with a null result rather than
// NOT_FOUND, so get after delete reads as absent, not as a failure.
func handleStoreGet(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p bucketKeyParams
	if err := req.Params(&p); err != nil || p.Bucket == "" || p.Key == "" {
		return nil, badRequest("bucket and key are required")
	}
	rec, err := r.Store.Get(ctx, p.Bucket, p.Key)
	if err != nil {
		if pe, ok := protocol.AsError(err); ok && pe.Code == protocol.CodeNotFound {
			return nil, nil
		}
		return nil, asWireError(err)
	}
	return rec.Flatten(), nil
}

func handleStoreUpdate(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Bucket string         `json:"bucket"`
		Key    string         `json:"key"`
		Patch  map[string]any `json:"patch"`
	}
	if err := req.Params(&p); err != nil || p.Bucket == "" || p.Key == "" {
		return nil, badRequest("bucket and key are required")
	}
	rec, err := r.Store.Update(ctx, p.Bucket, p.Key, p.Patch)
	if err != nil {
		return nil, asWireError(err)
	}
	return rec.Flatten(), nil
}

// handleStoreDelete reports {deleted:true} even for a non-existent key;
// delete is idempotent from the client's point of view.
func handleStoreDelete(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p bucketKeyParams
	if err := req.Params(&p); err != nil || p.Bucket == "" || p.Key == "" {
		return nil, badRequest("bucket and key are required")
	}
	if _, err := r.Store.Delete(ctx, p.Bucket, p.Key); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"deleted": true}, nil
}

func handleStoreClear(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Bucket string `json:"bucket"`
	}
	if err := req.Params(&p); err != nil || p.Bucket == "" {
		return nil, badRequest("bucket is required")
	}
	if err := r.Store.Clear(ctx, p.Bucket); err != nil {
		return nil, asWireError(err)
	}
	return map[string]any{"cleared": true}, nil
}

type bucketWhereParams struct {
	Bucket string         `json:"bucket"`
	Where  map[string]any `json:"where"`
}

func handleStoreCount(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p bucketWhereParams
	if err := req.Params(&p); err != nil || p.Bucket == "" {
		return nil, badRequest("bucket is required")
	}
	n, err := r.Store.Count(ctx, p.Bucket, p.Where)
	if err != nil {
		return nil, asWireError(err)
	}
	return n, nil
}

func handleStoreAll(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Bucket string `json:"bucket"`
	}
	if err := req.Params(&p); err != nil || p.Bucket == "" {
		return nil, badRequest("bucket is required")
	}
	records, err := r.Store.All(ctx, p.Bucket)
	if err != nil {
		return nil, asWireError(err)
	}
	return records, nil
}

func handleStoreWhere(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p bucketWhereParams
	if err := req.Params(&p); err != nil || p.Bucket == "" {
		return nil, badRequest("bucket is required")
	}
	records, err := r.Store.Where(ctx, p.Bucket, p.Where)
	if err != nil {
		return nil, asWireError(err)
	}
	return records, nil
}

func handleStoreFindOne(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p bucketWhereParams
	if err := req.Params(&p); err != nil || p.Bucket == "" {
		return nil, badRequest("bucket is required")
	}
	rec, err := r.Store.FindOne(ctx, p.Bucket, p.Where)
	if err != nil {
		return nil, asWireError(err)
	}
	return rec, nil
}

func handleStoreFirst(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Bucket string `json:"bucket"`
	}
	if err := req.Params(&p); err != nil || p.Bucket == "" {
		return nil, badRequest("bucket is required")
	}
	rec, err := r.Store.First(ctx, p.Bucket)
	if err != nil {
		return nil, asWireError(err)
	}
	return rec, nil
}

func handleStoreLast(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Bucket string `json:"bucket"`
	}
	if err := req.Params(&p); err != nil || p.Bucket == "" {
		return nil, badRequest("bucket is required")
	}
	rec, err := r.Store.Last(ctx, p.Bucket)
	if err != nil {
		return nil, asWireError(err)
	}
	return rec, nil
}

// handleStorePaginate forwards the store's cursor page verbatim.
func handleStorePaginate(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Bucket string         `json:"bucket"`
		Where  map[string]any `json:"where"`
		Cursor string         `json:"cursor"`
		Limit  int            `json:"limit"`
	}
	if err := req.Params(&p); err != nil || p.Bucket == "" {
		return nil, badRequest("bucket is required")
	}
	page, err := r.Store.Paginate(ctx, p.Bucket, p.Where, p.Cursor, p.Limit)
	if err != nil {
		return nil, asWireError(err)
	}
	return page, nil
}

type bucketFieldWhereParams struct {
	Bucket string         `json:"bucket"`
	Field  string         `json:"field"`
	Where  map[string]any `json:"where"`
}

func handleStoreSum(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p bucketFieldWhereParams
	if err := req.Params(&p); err != nil || p.Bucket == "" || p.Field == "" {
		return nil, badRequest("bucket and field are required")
	}
	v, err := r.Store.Sum(ctx, p.Bucket, p.Field, p.Where)
	if err != nil {
		return nil, asWireError(err)
	}
	return v, nil
}

func handleStoreAvg(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p bucketFieldWhereParams
	if err := req.Params(&p); err != nil || p.Bucket == "" || p.Field == "" {
		return nil, badRequest("bucket and field are required")
	}
	v, err := r.Store.Avg(ctx, p.Bucket, p.Field, p.Where)
	if err != nil {
		return nil, asWireError(err)
	}
	return v, nil
}

func handleStoreMin(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p bucketFieldWhereParams
	if err := req.Params(&p); err != nil || p.Bucket == "" || p.Field == "" {
		return nil, badRequest("bucket and field are required")
	}
	v, err := r.Store.Min(ctx, p.Bucket, p.Field, p.Where)
	if err != nil {
		return nil, asWireError(err)
	}
	return v, nil
}

func handleStoreMax(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p bucketFieldWhereParams
	if err := req.Params(&p); err != nil || p.Bucket == "" || p.Field == "" {
		return nil, badRequest("bucket and field are required")
	}
	v, err := r.Store.Max(ctx, p.Bucket, p.Field, p.Where)
	if err != nil {
		return nil, asWireError(err)
	}
	return v, nil
}

func handleStoreTransaction(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Ops []collab.TransactionOp `json:"ops"`
	}
	if err := req.Params(&p); err != nil || len(p.Ops) == 0 {
		return nil, badRequest("ops is required")
	}
	results, err := r.Store.Transaction(ctx, p.Ops)
	if err != nil {
		return nil, asWireError(err)
	}
	return results, nil
}

// handleStoreSubscribe registers a named-query subscription: the
// ceiling is enforced before asking the store to register anything, so a
// connection already at its limit never allocates external resources it
// will immediately have to tear down.
func handleStoreSubscribe(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		Query  string         `json:"query"`
		Params map[string]any `json:"params"`
	}
	if err := req.Params(&p); err != nil || p.Query == "" {
		return nil, badRequest("query is required")
	}
	if a.SubscriptionCount() >= a.MaxSubscriptions() {
		return nil, protocol.NewError(protocol.CodeRateLimited,
			fmt.Sprintf("maximum of %d subscriptions per connection reached", a.MaxSubscriptions()))
	}

	subID := uuid.NewString()
	sink := broker.Sink(a, subID, domain.ChannelSubscription)
	initial, handle, err := r.Store.RegisterSubscription(ctx, p.Query, p.Params, sink)
	if err != nil {
		return nil, asWireError(err)
	}

	sub := &domain.Subscription{ID: subID, Channel: domain.ChannelSubscription, Detach: handle.Detach}
	if wireErr := a.AddSubscription(sub); wireErr != nil {
		handle.Detach()
		return nil, wireErr
	}
	return map[string]any{"subscriptionId": subID, "data": initial}, nil
}

// handleUnsubscribe serves both store.unsubscribe and rules.unsubscribe:
// the connection's subscription map is channel-agnostic.
func handleUnsubscribe(ctx context.Context, r *Router, a *connection.Actor, req *protocol.Request) (any, *protocol.Error) {
	var p struct {
		SubscriptionID string `json:"subscriptionId"`
	}
	if err := req.Params(&p); err != nil || p.SubscriptionID == "" {
		return nil, badRequest("subscriptionId is required")
	}
	if !a.RemoveSubscription(p.SubscriptionID) {
		return nil, protocol.NewError(protocol.CodeNotFound, "subscription not found")
	}
	return map[string]any{"unsubscribed": true}, nil
}
