package router

import (
	"github.com/OmarEhab007/wiregate/internal/permission"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// rawFields is the superset of request fields the permission engine's
// resource extractor inspects, read generically so the pipeline
// never needs an operation-specific parser before dispatch.
type rawFields struct {
	Bucket         string `json:"bucket"`
	Query          string `json:"query"`
	SubscriptionID string `json:"subscriptionId"`
	Topic          string `json:"topic"`
	Key            string `json:"key"`
	Pattern        string `json:"pattern"`
}

func extractFields(req *protocol.Request) permission.Fields {
	var rf rawFields
	_ = req.Params(&rf)
	return permission.Fields{
		Bucket:         rf.Bucket,
		Query:          rf.Query,
		SubscriptionID: rf.SubscriptionID,
		Topic:          rf.Topic,
		Key:            rf.Key,
		Pattern:        rf.Pattern,
	}
}
