// Package connection implements the connection actor: one goroutine
// per accepted WebSocket, a serialized mpsc inbox, heartbeat timing,
// backpressure-gated push writes, and ordered cleanup on close. Pushes
// and heartbeat ticks share the same serialization point as inbound
// frames, so nothing mutates a connection's state concurrently.
package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// State is the connection actor's lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosing
)

// Config bounds one connection's heartbeat and backpressure behavior.
type Config struct {
	HeartbeatIntervalMs int64
	// HeartbeatTimeoutMs is informational only: the effective grace is
	// always exactly one interval.
	HeartbeatTimeoutMs           int64
	MaxBufferedBytes             int64
	HighWaterMark                float64
	MaxSubscriptionsPerConnection int
	RequiresAuth                 bool
	MaxMessageBytes              int64
	WriteWait                    time.Duration
}

// DefaultConfig returns the limits a standalone gateway starts with.
func DefaultConfig() Config {
	return Config{
		HeartbeatIntervalMs:           30_000,
		HeartbeatTimeoutMs:            60_000,
		MaxBufferedBytes:              1 << 20,
		HighWaterMark:                 0.8,
		MaxSubscriptionsPerConnection: 10,
		MaxMessageBytes:               16 * 1024,
		WriteWait:                     10 * time.Second,
	}
}

// Dispatcher resolves one parsed request to a result or a typed error. The
// router package implements this against a live *Actor; connection itself
// never imports router, avoiding a cycle.
type Dispatcher interface {
	Dispatch(ctx context.Context, actor *Actor, req *protocol.Request) (any, *protocol.Error)
}

// inbox message kinds.
type wsMessage struct{ raw []byte }
type pushMessage struct {
	subscriptionID string
	channel        domain.Channel
	data           any
}
type heartbeatTick struct{}
type shutdownMessage struct{ reason string }
type notifyMessage struct{ frame any }

// Inbox is the narrow enqueue surface the subscription broker wraps push
// callbacks around (component G), and the only part of an Actor any other
// package may depend on.
type Inbox interface {
	EnqueuePush(subscriptionID string, channel domain.Channel, data any)
}

// Actor owns one live connection's mutable state. Every field below is
// touched only by the goroutine running Run; external callers reach the
// actor exclusively through the inbox channel.
type Actor struct {
	ID            string
	RemoteAddress string
	ConnectedAt   int64

	conn       *websocket.Conn
	cfg        Config
	dispatcher Dispatcher
	logger     *slog.Logger

	inbox chan any

	sendQueue    chan outboundFrame
	pendingBytes atomic.Int64
	writerDone   chan struct{}

	session       *domain.Session
	subscriptions map[string]*domain.Subscription

	lastPingAt time.Time
	lastPongAt time.Time

	state State

	closeOnce sync.Once
	closed    chan struct{}

	// Snapshot fields, safe for concurrent reads from the supervisor's
	// registry: mutated only by the actor goroutine, read via atomics.
	authenticated atomic.Bool
	userID        atomic.Value // string
	storeSubs     atomic.Int32
	rulesSubs     atomic.Int32
}

// New creates an actor bound to an already-upgraded WebSocket connection.
// The caller must call Run in its own goroutine.
func New(id, remoteAddress string, conn *websocket.Conn, cfg Config, dispatcher Dispatcher, logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	state := StateActive
	if cfg.RequiresAuth {
		state = StateAuthenticating
	}
	return &Actor{
		ID:            id,
		RemoteAddress: remoteAddress,
		ConnectedAt:   time.Now().UnixMilli(),
		conn:          conn,
		cfg:           cfg,
		dispatcher:    dispatcher,
		logger:        logger.With("component", "connection", "connectionId", id),
		inbox:         make(chan any, 256),
		sendQueue:     make(chan outboundFrame, 1000),
		writerDone:    make(chan struct{}),
		subscriptions: make(map[string]*domain.Subscription),
		state:         state,
		closed:        make(chan struct{}),
	}
}

// Session returns the actor's current session, or nil if unauthenticated.
// Only safe to call from within the actor's own goroutine (handler code).
func (a *Actor) Session() *domain.Session { return a.session }

// SetSession installs a new session, e.g. after a successful login.
func (a *Actor) SetSession(s *domain.Session) {
	a.session = s
	if s != nil {
		a.state = StateActive
		a.authenticated.Store(true)
		a.userID.Store(s.UserID)
	}
}

// ClearSession discards the current session, e.g. on logout or expiry.
func (a *Actor) ClearSession() {
	a.session = nil
	a.authenticated.Store(false)
	a.userID.Store("")
}

// Subscriptions exposes the live subscription map for the router's
// subscribe/unsubscribe handlers. Only safe within the actor's goroutine.
func (a *Actor) Subscriptions() map[string]*domain.Subscription { return a.subscriptions }

// SubscriptionCount and MaxSubscriptions let the router enforce the
// ceiling before asking a collaborator to register anything.
func (a *Actor) SubscriptionCount() int { return len(a.subscriptions) }
func (a *Actor) MaxSubscriptions() int  { return a.cfg.MaxSubscriptionsPerConnection }

// AddSubscription enforces the ceiling before registering.
func (a *Actor) AddSubscription(sub *domain.Subscription) *protocol.Error {
	if len(a.subscriptions) >= a.cfg.MaxSubscriptionsPerConnection {
		return protocol.NewError(protocol.CodeRateLimited,
			"maximum of "+itoa(a.cfg.MaxSubscriptionsPerConnection)+" subscriptions per connection reached")
	}
	a.subscriptions[sub.ID] = sub
	a.bumpSubCount(sub.Channel, 1)
	return nil
}

// RemoveSubscription detaches and forgets subscriptionID. Reports whether
// it existed.
func (a *Actor) RemoveSubscription(subscriptionID string) bool {
	sub, ok := a.subscriptions[subscriptionID]
	if !ok {
		return false
	}
	delete(a.subscriptions, subscriptionID)
	if sub.Detach != nil {
		sub.Detach()
	}
	a.bumpSubCount(sub.Channel, -1)
	return true
}

func (a *Actor) bumpSubCount(channel domain.Channel, delta int32) {
	if channel == domain.ChannelEvent {
		a.rulesSubs.Add(delta)
		return
	}
	a.storeSubs.Add(delta)
}

// Snapshot reports the actor's registry-visible metadata. Safe to
// call from any goroutine.
func (a *Actor) Snapshot() domain.ConnectionSnapshot {
	userID, _ := a.userID.Load().(string)
	return domain.ConnectionSnapshot{
		ConnectionID:           a.ID,
		RemoteAddress:          a.RemoteAddress,
		ConnectedAt:            a.ConnectedAt,
		Authenticated:          a.authenticated.Load(),
		UserID:                 userID,
		StoreSubscriptionCount: int(a.storeSubs.Load()),
		RulesSubscriptionCount: int(a.rulesSubs.Load()),
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// EnqueuePush implements Inbox: it is the only way code outside the
// actor's own goroutine may touch it. Safe to call from any goroutine,
// including collaborator internals.
func (a *Actor) EnqueuePush(subscriptionID string, channel domain.Channel, data any) {
	select {
	case a.inbox <- pushMessage{subscriptionID: subscriptionID, channel: channel, data: data}:
	case <-a.closed:
	}
}

// Shutdown requests a graceful close with reason, used by the supervisor's
// force-terminate path.
func (a *Actor) Shutdown(reason string) {
	select {
	case a.inbox <- shutdownMessage{reason: reason}:
	case <-a.closed:
	}
}

// Notify enqueues an out-of-band control frame (e.g. the shutdown system
// frame) without terminating the actor, used by the supervisor's grace-
// period broadcast.
func (a *Actor) Notify(frame any) {
	select {
	case a.inbox <- notifyMessage{frame: frame}:
	case <-a.closed:
	}
}

// Closed reports whether the actor has fully torn down, used by the
// supervisor to poll actor count during the grace period.
func (a *Actor) Closed() <-chan struct{} { return a.closed }

// Run drives the actor: starts the read pump, the writer, and the
// heartbeat ticker, then processes the inbox serially until a terminal
// event. It blocks until the connection is fully torn down.
func (a *Actor) Run(ctx context.Context) {
	go a.writePump()
	go a.readPump()

	ticker := time.NewTicker(time.Duration(a.cfg.HeartbeatIntervalMs) * time.Millisecond)
	defer ticker.Stop()
	tickerDone := make(chan struct{})
	go func() {
		defer close(tickerDone)
		for {
			select {
			case <-ticker.C:
				select {
				case a.inbox <- heartbeatTick{}:
				case <-a.closed:
					return
				}
			case <-a.closed:
				return
			}
		}
	}()

	welcome := protocol.NewWelcome(time.Now().UnixMilli(), a.cfg.RequiresAuth)
	a.writeUnconditional(welcome)

	for {
		select {
		case msg := <-a.inbox:
			if reason, done := a.handle(ctx, msg); done {
				a.cleanup(reason)
				return
			}
		case <-ctx.Done():
			a.cleanup("server_shutdown")
			return
		}
	}
}

// handle processes one inbox message and reports the close reason plus
// whether the actor should terminate. cleanup is always called exactly
// once, by Run, after handle returns.
func (a *Actor) handle(ctx context.Context, msg any) (reason string, done bool) {
	switch m := msg.(type) {
	case wsMessage:
		a.handleFrame(ctx, m.raw)
		return "", false
	case pushMessage:
		a.handlePush(m)
		return "", false
	case heartbeatTick:
		if a.heartbeatTimedOut() {
			return "heartbeat_timeout", true
		}
		return "", false
	case shutdownMessage:
		return m.reason, true
	case notifyMessage:
		a.writeUnconditional(m.frame)
		return "", false
	case readError:
		return "normal_closure", true
	default:
		return "", false
	}
}

func (a *Actor) handleFrame(ctx context.Context, raw []byte) {
	req, decodeErr := protocol.Decode(raw)
	if decodeErr != nil {
		a.writeUnconditional(protocol.NewErrorFrame(0, decodeErr))
		return
	}
	if req == nil {
		// Malformed pong: dropped silently, heartbeat relies on timing.
		return
	}
	if req.IsPong {
		a.lastPongAt = time.Now()
		return
	}

	result, handlerErr := a.dispatcher.Dispatch(ctx, a, req)
	if handlerErr != nil {
		a.writeUnconditional(protocol.NewErrorFrame(req.ID, handlerErr))
		return
	}
	a.writeUnconditional(protocol.NewResult(req.ID, result))
}

func (a *Actor) handlePush(m pushMessage) {
	frame := protocol.NewPush(string(m.channel), m.subscriptionID, m.data)
	data, err := protocol.Encode(frame)
	if err != nil {
		a.logger.Error("encode push frame", "error", err)
		return
	}
	if a.pendingBytes.Load() > int64(float64(a.cfg.MaxBufferedBytes)*a.cfg.HighWaterMark) {
		a.logger.Debug("dropping push under backpressure", "subscriptionId", m.subscriptionID)
		return
	}
	a.enqueueWrite(data)
}

// heartbeatTimedOut reports whether the prior ping went unanswered; if
// not, it sends a fresh ping and records the send time. timeoutMs is
// informational only — the effective grace is exactly one interval.
func (a *Actor) heartbeatTimedOut() bool {
	if !a.lastPingAt.IsZero() && a.lastPongAt.Before(a.lastPingAt) {
		return true
	}
	now := time.Now()
	a.lastPingAt = now
	a.writeUnconditional(protocol.NewPing(now.UnixMilli()))
	return false
}

// writeUnconditional enqueues a control/response frame that must never be
// dropped for backpressure: result, error, ping, system, welcome.
func (a *Actor) writeUnconditional(frame any) {
	data, err := protocol.Encode(frame)
	if err != nil {
		a.logger.Error("encode frame", "error", err)
		return
	}
	a.enqueueWrite(data)
}

// outboundFrame is the writePump's only unit of work. It is either a
// regular data frame or the terminal close frame; writePump stops after
// sending a close frame so no write ever races the connection teardown.
type outboundFrame struct {
	data      []byte
	isClose   bool
	closeCode int
	closeMsg  string
}

func (a *Actor) enqueueWrite(data []byte) {
	a.pendingBytes.Add(int64(len(data)))
	select {
	case a.sendQueue <- outboundFrame{data: data}:
	case <-a.closed:
		a.pendingBytes.Add(-int64(len(data)))
	}
}

type readError struct{ err error }

func (a *Actor) readPump() {
	a.conn.SetReadLimit(a.cfg.MaxMessageBytes)
	for {
		_, raw, err := a.conn.ReadMessage()
		if err != nil {
			select {
			case a.inbox <- readError{err: err}:
			case <-a.closed:
			}
			return
		}
		select {
		case a.inbox <- wsMessage{raw: raw}:
		case <-a.closed:
			return
		}
	}
}

// writePump is the connection's sole writer, serializing data frames and
// the terminal close frame onto the socket. It exits as soon as it sends
// the close frame or hits a write error, then closes writerDone so
// cleanup knows it is safe to close the underlying connection.
func (a *Actor) writePump() {
	defer close(a.writerDone)
	for f := range a.sendQueue {
		_ = a.conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteWait))
		if f.isClose {
			msg := websocket.FormatCloseMessage(f.closeCode, f.closeMsg)
			_ = a.conn.WriteMessage(websocket.CloseMessage, msg)
			return
		}
		a.pendingBytes.Add(-int64(len(f.data)))
		if err := a.conn.WriteMessage(websocket.TextMessage, f.data); err != nil {
			return
		}
	}
}

// closeCode maps a teardown reason to its WebSocket close code.
func closeCode(reason string) int {
	switch reason {
	case "heartbeat_timeout":
		return 4001
	case "server_shutting_down":
		return 1001
	default:
		return websocket.CloseNormalClosure
	}
}

// cleanup runs the fixed-order teardown: subscriptions, then
// session, then socket, guaranteeing no push is fanned out after the close
// frame. The close frame is queued behind any already-enqueued data frames
// so it is always the last thing written, and the underlying connection is
// only closed once writePump has finished writing it — never concurrently.
func (a *Actor) cleanup(reason string) {
	for id := range a.subscriptions {
		a.RemoveSubscription(id)
	}
	a.session = nil
	a.state = StateClosing

	a.sendQueue <- outboundFrame{isClose: true, closeCode: closeCode(reason), closeMsg: reason}
	close(a.sendQueue)
	<-a.writerDone

	a.forceClose()
}

func (a *Actor) forceClose() {
	a.closeOnce.Do(func() {
		close(a.closed)
		_ = a.conn.Close()
	})
}
