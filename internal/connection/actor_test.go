package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// dispatcherFunc adapts a plain function to the Dispatcher interface, the
// same seam the router package fills in production.
type dispatcherFunc func(ctx context.Context, actor *Actor, req *protocol.Request) (any, *protocol.Error)

func (f dispatcherFunc) Dispatch(ctx context.Context, actor *Actor, req *protocol.Request) (any, *protocol.Error) {
	return f(ctx, actor, req)
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTestServer upgrades every incoming connection and runs a connection
// actor against it with the given config/dispatcher.
func wsTestServer(t *testing.T, cfg Config, dispatcher Dispatcher) (actorCh chan *Actor, wsURL string) {
	t.Helper()
	actorCh = make(chan *Actor, 8)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		actor := New("test-conn", r.RemoteAddr, conn, cfg, dispatcher, nil)
		actorCh <- actor
		actor.Run(context.Background())
	}))
	t.Cleanup(server.Close)

	wsURL = "ws" + strings.TrimPrefix(server.URL, "http")
	return actorCh, wsURL
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestActor_SendsWelcomeOnConnect(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequiresAuth = true
	_, wsURL := wsTestServer(t, cfg, dispatcherFunc(func(ctx context.Context, a *Actor, req *protocol.Request) (any, *protocol.Error) {
		return nil, nil
	}))

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var welcome protocol.WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, "welcome", welcome.Type)
	assert.Equal(t, protocol.Version, welcome.Version)
	assert.True(t, welcome.RequiresAuth)
}

func TestActor_DispatchesRequestAndRepliesWithResult(t *testing.T) {
	cfg := DefaultConfig()
	_, wsURL := wsTestServer(t, cfg, dispatcherFunc(func(ctx context.Context, a *Actor, req *protocol.Request) (any, *protocol.Error) {
		return map[string]any{"echo": req.Type}, nil
	}))

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome protocol.WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 1, "type": "store.stats"}))

	var result protocol.ResultFrame
	require.NoError(t, conn.ReadJSON(&result))
	assert.Equal(t, float64(1), result.ID)
	assert.Equal(t, "result", result.Type)
}

func TestActor_HandlerErrorRepliesWithErrorFrame(t *testing.T) {
	cfg := DefaultConfig()
	_, wsURL := wsTestServer(t, cfg, dispatcherFunc(func(ctx context.Context, a *Actor, req *protocol.Request) (any, *protocol.Error) {
		return nil, protocol.NewError(protocol.CodeNotFound, "no such bucket")
	}))

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome protocol.WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 2, "type": "store.get"}))

	var errFrame protocol.ErrorFrame
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, protocol.CodeNotFound, errFrame.Code)
}

func TestActor_MalformedFrameRepliesWithParseError(t *testing.T) {
	cfg := DefaultConfig()
	_, wsURL := wsTestServer(t, cfg, dispatcherFunc(func(ctx context.Context, a *Actor, req *protocol.Request) (any, *protocol.Error) {
		return nil, nil
	}))

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome protocol.WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not valid json`)))

	var errFrame protocol.ErrorFrame
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, protocol.CodeParseError, errFrame.Code)
}

func TestActor_SubscriptionCeilingEnforced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSubscriptionsPerConnection = 2
	actorCh, wsURL := wsTestServer(t, cfg, dispatcherFunc(func(ctx context.Context, a *Actor, req *protocol.Request) (any, *protocol.Error) {
		sub := &domain.Subscription{ID: "sub-" + itoa(int(req.ID)), Channel: domain.ChannelSubscription}
		if err := a.AddSubscription(sub); err != nil {
			return nil, err
		}
		return map[string]any{"subscriptionId": sub.ID}, nil
	}))

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome protocol.WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))

	actor := <-actorCh
	// MaxSubscriptions is a read-only getter over immutable config, safe to
	// call from the test goroutine; AddSubscription itself only ever runs
	// on the actor's own goroutine via the serialized inbox in production.
	assert.Equal(t, 2, actor.MaxSubscriptions())

	// The dispatcher runs on the actor's goroutine, so AddSubscription is
	// exercised through the inbox: two subscriptions fit, the third is refused.
	for id := 1; id <= 2; id++ {
		require.NoError(t, conn.WriteJSON(map[string]any{"id": id, "type": "store.subscribe"}))
		var result protocol.ResultFrame
		require.NoError(t, conn.ReadJSON(&result))
		assert.Equal(t, "result", result.Type)
	}

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 3, "type": "store.subscribe"}))
	var errFrame protocol.ErrorFrame
	require.NoError(t, conn.ReadJSON(&errFrame))
	assert.Equal(t, protocol.CodeRateLimited, errFrame.Code)
}

func TestActor_PushDeliveredAsChannelFrame(t *testing.T) {
	cfg := DefaultConfig()
	actorCh, wsURL := wsTestServer(t, cfg, dispatcherFunc(func(ctx context.Context, a *Actor, req *protocol.Request) (any, *protocol.Error) {
		return nil, nil
	}))

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome protocol.WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))

	actor := <-actorCh
	actor.EnqueuePush("sub-1", domain.ChannelSubscription, map[string]any{"changed": true})

	var push protocol.PushFrame
	require.NoError(t, conn.ReadJSON(&push))
	assert.Equal(t, "push", push.Type)
	assert.Equal(t, "sub-1", push.SubscriptionID)
}

func TestActor_ShutdownClosesConnectionWithReason(t *testing.T) {
	cfg := DefaultConfig()
	actorCh, wsURL := wsTestServer(t, cfg, dispatcherFunc(func(ctx context.Context, a *Actor, req *protocol.Request) (any, *protocol.Error) {
		return nil, nil
	}))

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome protocol.WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))

	actor := <-actorCh
	actor.Shutdown("server_shutdown")

	select {
	case <-actor.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("actor did not close after Shutdown")
	}

	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "connection should be closed from the server side")
}

func TestActor_HeartbeatPingsAnsweredKeepConnectionOpen(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatIntervalMs = 50
	_, wsURL := wsTestServer(t, cfg, dispatcherFunc(func(ctx context.Context, a *Actor, req *protocol.Request) (any, *protocol.Error) {
		return nil, nil
	}))

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome protocol.WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))

	pings := 0
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		var ping protocol.PingFrame
		if err := conn.ReadJSON(&ping); err != nil {
			t.Fatalf("connection dropped while echoing pings: %v", err)
		}
		require.Equal(t, "ping", ping.Type)
		require.NoError(t, conn.WriteJSON(map[string]any{"type": "pong", "timestamp": ping.Timestamp}))
		pings++
	}
	assert.GreaterOrEqual(t, pings, 5)
}

func TestActor_HeartbeatTimeoutClosesWith4001(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HeartbeatIntervalMs = 50
	_, wsURL := wsTestServer(t, cfg, dispatcherFunc(func(ctx context.Context, a *Actor, req *protocol.Request) (any, *protocol.Error) {
		return nil, nil
	}))

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var welcome protocol.WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))

	// Ignore every ping; the second tick must close the socket.
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, 4001, closeErr.Code)
			assert.Equal(t, "heartbeat_timeout", closeErr.Text)
			return
		}
	}
}

func TestActor_ConcurrentPushesDoNotRace(t *testing.T) {
	cfg := DefaultConfig()
	actorCh, wsURL := wsTestServer(t, cfg, dispatcherFunc(func(ctx context.Context, a *Actor, req *protocol.Request) (any, *protocol.Error) {
		return nil, nil
	}))

	conn := dial(t, wsURL)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var welcome protocol.WelcomeFrame
	require.NoError(t, conn.ReadJSON(&welcome))

	actor := <-actorCh

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor.EnqueuePush("sub", domain.ChannelEvent, map[string]any{"i": i})
		}(i)
	}
	wg.Wait()

	received := 0
	for received < 20 {
		var push protocol.PushFrame
		if err := conn.ReadJSON(&push); err != nil {
			break
		}
		received++
	}
	assert.Equal(t, 20, received)
}
