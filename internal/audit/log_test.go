package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmarEhab007/wiregate/internal/domain"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]domain.AuditEntry
}

func (f *fakeSink) Write(ctx context.Context, entries []domain.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]domain.AuditEntry, len(entries))
	copy(cp, entries)
	f.batches = append(f.batches, cp)
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestRecordAndQueryNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := New(10)

	l.Record(ctx, domain.AuditEntry{Operation: "store.insert", Timestamp: 1})
	l.Record(ctx, domain.AuditEntry{Operation: "store.update", Timestamp: 2})
	l.Record(ctx, domain.AuditEntry{Operation: "store.delete", Timestamp: 3})

	out, err := l.Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "store.delete", out[0].Operation)
	assert.Equal(t, "store.insert", out[2].Operation)
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	ctx := context.Background()
	l := New(2)

	l.Record(ctx, domain.AuditEntry{Operation: "a", Timestamp: 1})
	l.Record(ctx, domain.AuditEntry{Operation: "b", Timestamp: 2})
	l.Record(ctx, domain.AuditEntry{Operation: "c", Timestamp: 3})

	assert.Equal(t, 2, l.Size())
	out, err := l.Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c", out[0].Operation)
	assert.Equal(t, "b", out[1].Operation)
}

func TestQueryFiltersByUserAndResult(t *testing.T) {
	ctx := context.Background()
	l := New(10)

	l.Record(ctx, domain.AuditEntry{UserID: "u1", Result: domain.AuditSuccess, Timestamp: 1})
	l.Record(ctx, domain.AuditEntry{UserID: "u2", Result: domain.AuditError, Timestamp: 2})

	out, err := l.Query(ctx, domain.AuditFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "u1", out[0].UserID)

	out, err = l.Query(ctx, domain.AuditFilter{Result: "error"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, domain.AuditError, out[0].Result)
}

func TestQueryRespectsLimitDefault(t *testing.T) {
	ctx := context.Background()
	l := New(200)
	for i := 0; i < 150; i++ {
		l.Record(ctx, domain.AuditEntry{Operation: "x", Timestamp: int64(i)})
	}
	out, err := l.Query(ctx, domain.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, out, 100)
}

func TestSinkFlushesAfterThreshold(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	l := New(1000, WithSink(sink, 5))

	for i := 0; i < 12; i++ {
		l.Record(ctx, domain.AuditEntry{Operation: "op", Timestamp: int64(i)})
	}

	require.Eventually(t, func() bool { return sink.count() >= 10 }, time.Second, 5*time.Millisecond)
}

func TestFlushForcesPendingBatch(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	l := New(1000, WithSink(sink, 100))

	l.Record(ctx, domain.AuditEntry{Operation: "op", Timestamp: 1})
	require.NoError(t, l.Flush(ctx))
	assert.Equal(t, 1, sink.count())
}
