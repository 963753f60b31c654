// Package supervisor owns the set of live connection actors. Every
// accepted WebSocket gets its own actor goroutine with a temporary
// restart policy (a crash is never restarted, and never reaches a
// sibling), tracked in a registry keyed by connectionId, and torn down in
// bounded time on graceful shutdown.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/OmarEhab007/wiregate/internal/connection"
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// Supervisor creates, tracks, and terminates one connection actor per
// accepted socket.
type Supervisor struct {
	dispatcher connection.Dispatcher
	baseConfig connection.Config
	logger     *slog.Logger

	mu      sync.RWMutex
	actors  map[string]*connection.Actor
	cancels map[string]context.CancelFunc

	accepting atomic.Bool
	wg        sync.WaitGroup
}

// New builds a Supervisor. dispatcher is shared by every actor it creates;
// baseConfig supplies the per-connection heartbeat/backpressure defaults,
// overridable per Add call.
func New(dispatcher connection.Dispatcher, baseConfig connection.Config, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		dispatcher: dispatcher,
		baseConfig: baseConfig,
		logger:     logger.With("component", "supervisor"),
		actors:     make(map[string]*connection.Actor),
		cancels:    make(map[string]context.CancelFunc),
	}
	s.accepting.Store(true)
	return s
}

// Accepting reports whether the supervisor is still willing to register
// new connections. The HTTP upgrade handler consults this before
// upgrading, refusing with close code 1001 once false.
func (s *Supervisor) Accepting() bool { return s.accepting.Load() }

// Add creates and starts a connection actor for an already-upgraded
// socket. heartbeatIntervalMs, when non-zero, overrides the supervisor's
// base heartbeat interval for this one connection.
func (s *Supervisor) Add(conn *websocket.Conn, remoteAddress string, heartbeatIntervalMs int64) *connection.Actor {
	cfg := s.baseConfig
	if heartbeatIntervalMs > 0 {
		cfg.HeartbeatIntervalMs = heartbeatIntervalMs
	}

	id := uuid.NewString()
	actor := connection.New(id, remoteAddress, conn, cfg, s.dispatcher, s.logger)

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.actors[id] = actor
	s.cancels[id] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, actor)

	return actor
}

// run drives one actor to completion, isolating the rest of the
// supervisor from a panic in its handler chain — a crashed connection is
// deregistered, never restarted, and never disturbs its siblings.
func (s *Supervisor) run(ctx context.Context, actor *connection.Actor) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("connection actor panicked", "connectionId", actor.ID, "panic", r)
		}
		s.mu.Lock()
		if cancel, ok := s.cancels[actor.ID]; ok {
			cancel()
		}
		delete(s.actors, actor.ID)
		delete(s.cancels, actor.ID)
		s.mu.Unlock()
	}()
	actor.Run(ctx)
}

// Count reports the number of live connections.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.actors)
}

// ListConnections returns a snapshot of every live connection's registry
// metadata, in no particular order.
func (s *Supervisor) ListConnections() []domain.ConnectionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ConnectionSnapshot, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a.Snapshot())
	}
	return out
}

// StopOptions configures a graceful shutdown.
type StopOptions struct {
	// GracePeriodMs is how long to wait for voluntary client disconnects
	// after broadcasting the shutdown notice. Zero skips the broadcast
	// and grace wait entirely, going straight to force-terminate.
	GracePeriodMs int64
}

// Stop executes graceful shutdown: refuse new accepts, broadcast a
// shutdown notice, wait up to GracePeriodMs for voluntary disconnects,
// then force-terminate whatever remains. It blocks until every actor has
// torn down.
func (s *Supervisor) Stop(opts StopOptions) {
	s.accepting.Store(false)

	if opts.GracePeriodMs > 0 {
		s.broadcastShutdownNotice(opts.GracePeriodMs)
		s.waitForDrain(time.Duration(opts.GracePeriodMs) * time.Millisecond)
	}

	s.forceTerminateRemaining()
	s.wg.Wait()
}

func (s *Supervisor) broadcastShutdownNotice(gracePeriodMs int64) {
	frame := protocol.NewShutdownSystem(gracePeriodMs)
	for _, a := range s.snapshotActors() {
		a.Notify(frame)
	}
}

func (s *Supervisor) waitForDrain(grace time.Duration) {
	deadline := time.After(grace)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if s.Count() == 0 {
			return
		}
		select {
		case <-deadline:
			return
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) forceTerminateRemaining() {
	for _, a := range s.snapshotActors() {
		a.Shutdown("server_shutdown")
	}
}

func (s *Supervisor) snapshotActors() []*connection.Actor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*connection.Actor, 0, len(s.actors))
	for _, a := range s.actors {
		out = append(out, a)
	}
	return out
}
