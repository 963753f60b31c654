package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/OmarEhab007/wiregate/internal/domain"
)

type fakeInbox struct {
	calls []struct {
		subscriptionID string
		channel        domain.Channel
		data           any
	}
}

func (f *fakeInbox) EnqueuePush(subscriptionID string, channel domain.Channel, data any) {
	f.calls = append(f.calls, struct {
		subscriptionID string
		channel        domain.Channel
		data           any
	}{subscriptionID, channel, data})
}

func TestSink_EnqueuesTaggedPush(t *testing.T) {
	inbox := &fakeInbox{}
	sink := Sink(inbox, "sub-1", domain.ChannelSubscription)

	sink(map[string]any{"changed": true})

	require := assert.New(t)
	require.Len(inbox.calls, 1)
	require.Equal("sub-1", inbox.calls[0].subscriptionID)
	require.Equal(domain.ChannelSubscription, inbox.calls[0].channel)
	require.Equal(map[string]any{"changed": true}, inbox.calls[0].data)
}

func TestSink_DistinctSubscriptionsAreIndependent(t *testing.T) {
	inbox := &fakeInbox{}
	storeSink := Sink(inbox, "sub-store", domain.ChannelSubscription)
	eventSink := Sink(inbox, "sub-event", domain.ChannelEvent)

	storeSink("a")
	eventSink("b")

	require := assert.New(t)
	require.Len(inbox.calls, 2)
	require.Equal(domain.ChannelSubscription, inbox.calls[0].channel)
	require.Equal(domain.ChannelEvent, inbox.calls[1].channel)
}

func TestSink_MultipleInvocationsAllDelivered(t *testing.T) {
	inbox := &fakeInbox{}
	sink := Sink(inbox, "sub-1", domain.ChannelEvent)

	for i := 0; i < 3; i++ {
		sink(i)
	}

	assert.Len(t, inbox.calls, 3)
}
