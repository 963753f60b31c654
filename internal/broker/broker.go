// Package broker bridges collaborator change streams to connection
// inboxes: it wraps a collaborator's push callback so the callback only
// ever enqueues into the owning connection's inbox. Neither the store
// engine nor the rules engine ever touches a socket or a session
// directly; doing so would reintroduce a concurrency hazard between the
// collaborator's internal goroutines and the connection actor's
// single-writer state.
package broker

import (
	"github.com/OmarEhab007/wiregate/internal/collab"
	"github.com/OmarEhab007/wiregate/internal/connection"
	"github.com/OmarEhab007/wiregate/internal/domain"
)

// Sink builds a collab.PushSink that enqueues data as a push message into
// inbox, tagged with subscriptionID and channel. The collaborator that
// invokes the returned sink may do so from any goroutine, at any time up
// to the synchronous return of the subscription's Detach; after that,
// the collaborator must not invoke it again.
func Sink(inbox connection.Inbox, subscriptionID string, channel domain.Channel) collab.PushSink {
	return func(data any) {
		inbox.EnqueuePush(subscriptionID, channel, data)
	}
}
