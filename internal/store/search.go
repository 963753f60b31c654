package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/OmarEhab007/wiregate/internal/domain"
)

// textIndex manages one lazily-opened Bleve index per bucket, serving
// the "$search" predicate over a bucket's text-typed field.
type textIndex struct {
	basePath string
	mu       sync.RWMutex
	indexes  map[string]bleve.Index
}

func newTextIndex(basePath string) (*textIndex, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("store: create text index base path: %w", err)
	}
	return &textIndex{basePath: basePath, indexes: make(map[string]bleve.Index)}, nil
}

func (t *textIndex) getOrCreate(bucket string) (bleve.Index, error) {
	t.mu.RLock()
	if idx, ok := t.indexes[bucket]; ok {
		t.mu.RUnlock()
		return idx, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if idx, ok := t.indexes[bucket]; ok {
		return idx, nil
	}

	path := filepath.Join(t.basePath, bucket)
	idx, err := bleve.Open(path)
	if err != nil {
		idx, err = bleve.New(path, bleve.NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("store: create text index for bucket %s: %w", bucket, err)
		}
	}
	t.indexes[bucket] = idx
	return idx, nil
}

// indexText indexes rec's text field, if the bucket schema and an
// attached text index both exist. Indexing failures are non-fatal: the
// record is still durable in Postgres, only full-text recall degrades.
func (s *Store) indexText(_ context.Context, schema *domain.BucketSchema, rec *domain.Record) {
	if s.text == nil {
		return
	}
	field := schema.TextField()
	if field == "" {
		return
	}
	idx, err := s.text.getOrCreate(schema.Name)
	if err != nil {
		return
	}
	_ = idx.Index(rec.Key, map[string]any{field: rec.Data[field]})
}

func (s *Store) unindexText(bucket, key string) {
	if s.text == nil {
		return
	}
	idx, err := s.text.getOrCreate(bucket)
	if err != nil {
		return
	}
	_ = idx.Delete(key)
}

func (t *textIndex) search(bucket, field, term string) ([]string, error) {
	idx, err := t.getOrCreate(bucket)
	if err != nil {
		return nil, err
	}
	q := *bleve.NewSearchRequest(bleve.NewMatchQuery(term))
	q.Size = 10000
	result, err := idx.Search(&q)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		keys = append(keys, hit.ID)
	}
	return keys, nil
}

func (t *textIndex) dropBucket(bucket string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx, ok := t.indexes[bucket]; ok {
		_ = idx.Close()
		delete(t.indexes, bucket)
	}
	return os.RemoveAll(filepath.Join(t.basePath, bucket))
}

func (t *textIndex) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for bucket, idx := range t.indexes {
		_ = idx.Close()
		delete(t.indexes, bucket)
	}
}
