// Package audit implements the gateway's audit log: a bounded in-memory
// ring buffer that is the fast, authoritative path for
// audit.record/audit.query, with optional background sinks (ClickHouse,
// S3) that extend its reach past the ring's capacity.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/OmarEhab007/wiregate/internal/domain"
)

// DefaultCapacity is the number of entries the in-memory ring buffer holds
// before it starts overwriting the oldest ones.
const DefaultCapacity = 10_000

// Sink receives every recorded entry, forwarded in batches of flushEvery
// entries whether or not the ring buffer has evicted them, for durable
// storage beyond the ring's capacity. ClickHouseSink is
// the production implementation; tests can supply a func-backed fake.
type Sink interface {
	Write(ctx context.Context, entries []domain.AuditEntry) error
}

// Log is the ring-buffer AuditLog implementation.
type Log struct {
	mu       sync.Mutex
	entries  []domain.AuditEntry
	capacity int
	next     int
	size     int

	sink       Sink
	flushEvery int
	pending    []domain.AuditEntry

	logger *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithSink attaches a durable overflow sink, flushed every flushEvery
// recorded entries. A nil sink (the zero value of this option) leaves the
// ring buffer as the sole store.
func WithSink(sink Sink, flushEvery int) Option {
	return func(l *Log) {
		l.sink = sink
		if flushEvery > 0 {
			l.flushEvery = flushEvery
		}
	}
}

// WithLogger attaches a logger used to report flush failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// New creates a ring buffer of the given capacity (DefaultCapacity if <= 0).
func New(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log{
		entries:    make([]domain.AuditEntry, capacity),
		capacity:   capacity,
		flushEvery: 100,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends an entry, overwriting the oldest one once the buffer is
// full. It never returns an error to the caller: audit recording must not
// block or fail a request that already succeeded or failed on its own
// terms.
func (l *Log) Record(ctx context.Context, entry domain.AuditEntry) {
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().UnixMilli()
	}

	l.mu.Lock()
	l.entries[l.next] = entry
	l.next = (l.next + 1) % l.capacity
	if l.size < l.capacity {
		l.size++
	}

	var flush []domain.AuditEntry
	if l.sink != nil {
		l.pending = append(l.pending, entry)
		if len(l.pending) >= l.flushEvery {
			flush = l.pending
			l.pending = nil
		}
	}
	l.mu.Unlock()

	if flush != nil {
		go l.flush(flush)
	}
}

func (l *Log) flush(batch []domain.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := l.sink.Write(ctx, batch); err != nil {
		l.logger.Warn("audit: sink flush failed", "error", err, "entries", len(batch))
	}
}

// Query filters the buffered entries, newest first, honoring filter.Limit
// (default 100). Querying never touches the optional sink; callers
// needing history beyond the ring's capacity go through a sink-specific
// query path (e.g. ClickHouseSink.Query) instead.
func (l *Log) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	l.mu.Lock()
	snapshot := make([]domain.AuditEntry, l.size)
	for i := 0; i < l.size; i++ {
		idx := (l.next - 1 - i + l.capacity*2) % l.capacity
		snapshot[i] = l.entries[idx]
	}
	l.mu.Unlock()

	out := make([]domain.AuditEntry, 0, limit)
	for _, e := range snapshot {
		if !matches(e, filter) {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func matches(e domain.AuditEntry, f domain.AuditFilter) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Operation != "" && e.Operation != f.Operation {
		return false
	}
	if f.Result != "" && string(e.Result) != f.Result {
		return false
	}
	if f.From != 0 && e.Timestamp < f.From {
		return false
	}
	if f.To != 0 && e.Timestamp > f.To {
		return false
	}
	return true
}

// Flush forces any batched entries out to the sink immediately, used on
// graceful shutdown so the last partial batch is not lost.
func (l *Log) Flush(ctx context.Context) error {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	if l.sink == nil || len(batch) == 0 {
		return nil
	}
	return l.sink.Write(ctx, batch)
}

// Size reports the number of entries currently buffered.
func (l *Log) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}
