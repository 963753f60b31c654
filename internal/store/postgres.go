// Package store implements the gateway's schemaed key-value store:
// buckets, named queries, transactions, and subscriptions over Postgres,
// with one generic records table keyed by (bucket, key) and a JSONB
// payload.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS bucket_schemas (
	name         TEXT PRIMARY KEY,
	primary_key  TEXT NOT NULL,
	fields       JSONB NOT NULL,
	ttl_seconds  BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS named_queries (
	name    TEXT PRIMARY KEY,
	bucket  TEXT NOT NULL,
	filter  JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE TABLE IF NOT EXISTS records (
	bucket     TEXT NOT NULL,
	key        TEXT NOT NULL,
	version    BIGINT NOT NULL DEFAULT 1,
	data       JSONB NOT NULL,
	expires_at BIGINT,
	PRIMARY KEY (bucket, key)
);
CREATE INDEX IF NOT EXISTS records_bucket_idx ON records (bucket);
CREATE INDEX IF NOT EXISTS records_data_gin_idx ON records USING GIN (data);
`

// Store is the pgx-backed implementation of collab.Store.
type Store struct {
	pool *pgxpool.Pool
	text *textIndex // nil when full-text search is not configured

	subs *subRegistry
}

// Option configures an optional facility of the store.
type Option func(*Store)

// WithTextIndex attaches a Bleve-backed full-text index rooted at
// basePath, used to serve the "$search" predicate on text-typed fields.
func WithTextIndex(basePath string) Option {
	return func(s *Store) {
		idx, err := newTextIndex(basePath)
		if err == nil {
			s.text = idx
		}
	}
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: bootstrap schema: %w", err)
	}

	s := &Store{pool: pool, subs: newSubRegistry()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the connection pool and any open text indexes.
func (s *Store) Close() {
	s.pool.Close()
	if s.text != nil {
		s.text.Close()
	}
}

// Ping reports whether the backing Postgres pool is reachable, used by the
// HTTP health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func isNotFound(err error) bool {
	return err == pgx.ErrNoRows
}

// --- bucket schema management -------------------------------------------

func (s *Store) DefineBucket(ctx context.Context, schema domain.BucketSchema) error {
	fieldsJSON, err := json.Marshal(schema.Fields)
	if err != nil {
		return protocol.NewError(protocol.CodeInvalidRequest, "invalid field schema")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO bucket_schemas (name, primary_key, fields, ttl_seconds)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING
	`, schema.Name, schema.PrimaryKey, fieldsJSON, schema.TTLSeconds)
	if err != nil {
		return fmt.Errorf("store: define bucket: %w", err)
	}
	return nil
}

func (s *Store) DropBucket(ctx context.Context, name string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: drop bucket begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM records WHERE bucket = $1`, name); err != nil {
		return fmt.Errorf("store: drop bucket records: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM bucket_schemas WHERE name = $1`, name); err != nil {
		return fmt.Errorf("store: drop bucket schema: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: drop bucket commit: %w", err)
	}
	if s.text != nil {
		_ = s.text.dropBucket(name)
	}
	return nil
}

func (s *Store) UpdateBucket(ctx context.Context, schema domain.BucketSchema) error {
	fieldsJSON, err := json.Marshal(schema.Fields)
	if err != nil {
		return protocol.NewError(protocol.CodeInvalidRequest, "invalid field schema")
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE bucket_schemas SET primary_key = $2, fields = $3, ttl_seconds = $4
		WHERE name = $1
	`, schema.Name, schema.PrimaryKey, fieldsJSON, schema.TTLSeconds)
	if err != nil {
		return fmt.Errorf("store: update bucket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return protocol.NewError(protocol.CodeBucketNotDefined, fmt.Sprintf("bucket %q is not defined", schema.Name))
	}
	return nil
}

func (s *Store) GetBucketSchema(ctx context.Context, name string) (*domain.BucketSchema, error) {
	var schema domain.BucketSchema
	var fieldsJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT name, primary_key, fields, ttl_seconds FROM bucket_schemas WHERE name = $1
	`, name).Scan(&schema.Name, &schema.PrimaryKey, &fieldsJSON, &schema.TTLSeconds)
	if err != nil {
		if isNotFound(err) {
			return nil, protocol.NewError(protocol.CodeBucketNotDefined, fmt.Sprintf("bucket %q is not defined", name))
		}
		return nil, fmt.Errorf("store: get bucket schema: %w", err)
	}
	if err := json.Unmarshal(fieldsJSON, &schema.Fields); err != nil {
		return nil, fmt.Errorf("store: decode bucket fields: %w", err)
	}
	return &schema, nil
}

func (s *Store) Buckets(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM bucket_schemas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list buckets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("store: scan bucket name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// --- named queries -------------------------------------------------------

func (s *Store) DefineQuery(ctx context.Context, q domain.NamedQuery) error {
	filterJSON, err := json.Marshal(q.Where)
	if err != nil {
		return protocol.NewError(protocol.CodeInvalidRequest, "invalid query filter")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO named_queries (name, bucket, filter)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET bucket = EXCLUDED.bucket, filter = EXCLUDED.filter
	`, q.Name, q.Bucket, filterJSON)
	if err != nil {
		return fmt.Errorf("store: define query: %w", err)
	}
	return nil
}

func (s *Store) UndefineQuery(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM named_queries WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("store: undefine query: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return protocol.NewError(protocol.CodeQueryNotDefined, fmt.Sprintf("query %q is not defined", name))
	}
	return nil
}

func (s *Store) ListQueries(ctx context.Context) ([]domain.NamedQuery, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, bucket, filter FROM named_queries ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list queries: %w", err)
	}
	defer rows.Close()

	var queries []domain.NamedQuery
	for rows.Next() {
		var q domain.NamedQuery
		var filterJSON []byte
		if err := rows.Scan(&q.Name, &q.Bucket, &filterJSON); err != nil {
			return nil, fmt.Errorf("store: scan query: %w", err)
		}
		if len(filterJSON) > 0 {
			if err := json.Unmarshal(filterJSON, &q.Where); err != nil {
				return nil, fmt.Errorf("store: decode query filter: %w", err)
			}
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

func (s *Store) getQuery(ctx context.Context, name string) (*domain.NamedQuery, error) {
	var q domain.NamedQuery
	var filterJSON []byte
	err := s.pool.QueryRow(ctx, `SELECT name, bucket, filter FROM named_queries WHERE name = $1`, name).
		Scan(&q.Name, &q.Bucket, &filterJSON)
	if err != nil {
		if isNotFound(err) {
			return nil, protocol.NewError(protocol.CodeQueryNotDefined, fmt.Sprintf("query %q is not defined", name))
		}
		return nil, fmt.Errorf("store: get query: %w", err)
	}
	if len(filterJSON) > 0 {
		if err := json.Unmarshal(filterJSON, &q.Where); err != nil {
			return nil, fmt.Errorf("store: decode query filter: %w", err)
		}
	}
	return &q, nil
}

// Stats reports aggregate counters, surfaced on store.stats.
func (s *Store) Stats(ctx context.Context) (map[string]any, error) {
	var bucketCount, recordCount int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM bucket_schemas`).Scan(&bucketCount); err != nil {
		return nil, fmt.Errorf("store: stats buckets: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM records`).Scan(&recordCount); err != nil {
		return nil, fmt.Errorf("store: stats records: %w", err)
	}
	return map[string]any{
		"buckets":       bucketCount,
		"records":       recordCount,
		"subscriptions": s.subs.count(),
	}, nil
}
