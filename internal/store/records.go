package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/OmarEhab007/wiregate/internal/collab"
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// searchKey is the reserved predicate key that routes to the full-text
// index instead of JSONB containment.
const searchKey = "$search"

func splitWhere(where map[string]any) (equality map[string]any, search string, hasSearch bool) {
	if where == nil {
		return nil, "", false
	}
	equality = make(map[string]any, len(where))
	for k, v := range where {
		if k == searchKey {
			if s, ok := v.(string); ok {
				search = s
				hasSearch = true
			}
			continue
		}
		equality[k] = v
	}
	return equality, search, hasSearch
}

func (s *Store) Insert(ctx context.Context, bucket string, record map[string]any) (*domain.Record, error) {
	schema, err := s.GetBucketSchema(ctx, bucket)
	if err != nil {
		return nil, err
	}

	if record == nil {
		record = map[string]any{}
	}
	key, err := recordKey(schema, record)
	if err != nil {
		return nil, err
	}
	if err := validateRecord(schema, record); err != nil {
		return nil, err
	}

	dataJSON, err := json.Marshal(record)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeInvalidRequest, "record is not JSON-serializable")
	}

	var expiresAt *int64
	if schema.TTLSeconds > 0 {
		e := nowMs() + schema.TTLSeconds*1000
		expiresAt = &e
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO records (bucket, key, version, data, expires_at)
		VALUES ($1, $2, 1, $3, $4)
	`, bucket, key, dataJSON, expiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, protocol.NewError(protocol.CodeAlreadyExists, fmt.Sprintf("record %q already exists in bucket %q", key, bucket))
		}
		return nil, fmt.Errorf("store: insert: %w", err)
	}

	rec := &domain.Record{Key: key, Version: 1, Data: record, ExpiresAt: expiresAt}
	s.indexText(ctx, schema, rec)
	s.notify(ctx, bucket)
	return rec, nil
}

func (s *Store) Get(ctx context.Context, bucket, key string) (*domain.Record, error) {
	rec, err := s.fetch(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, protocol.NewError(protocol.CodeNotFound, fmt.Sprintf("record %q not found in bucket %q", key, bucket))
	}
	return rec, nil
}

func (s *Store) fetch(ctx context.Context, bucket, key string) (*domain.Record, error) {
	var version int64
	var dataJSON []byte
	var expiresAt *int64
	err := s.pool.QueryRow(ctx, `
		SELECT version, data, expires_at FROM records WHERE bucket = $1 AND key = $2
	`, bucket, key).Scan(&version, &dataJSON, &expiresAt)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get: %w", err)
	}
	if expiresAt != nil && *expiresAt < nowMs() {
		_, _ = s.pool.Exec(ctx, `DELETE FROM records WHERE bucket = $1 AND key = $2`, bucket, key)
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal(dataJSON, &data); err != nil {
		return nil, fmt.Errorf("store: decode record: %w", err)
	}
	return &domain.Record{Key: key, Version: version, Data: data, ExpiresAt: expiresAt}, nil
}

func (s *Store) Update(ctx context.Context, bucket, key string, patch map[string]any) (*domain.Record, error) {
	schema, err := s.GetBucketSchema(ctx, bucket)
	if err != nil {
		return nil, err
	}

	existing, err := s.fetch(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, protocol.NewError(protocol.CodeNotFound, fmt.Sprintf("record %q not found in bucket %q", key, bucket))
	}

	merged := make(map[string]any, len(existing.Data)+len(patch))
	for k, v := range existing.Data {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}

	if err := validateRecord(schema, merged); err != nil {
		return nil, err
	}

	dataJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeInvalidRequest, "record is not JSON-serializable")
	}

	newVersion := existing.Version + 1
	tag, err := s.pool.Exec(ctx, `
		UPDATE records SET version = $3, data = $4 WHERE bucket = $1 AND key = $2 AND version = $5
	`, bucket, key, newVersion, dataJSON, existing.Version)
	if err != nil {
		return nil, fmt.Errorf("store: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, protocol.NewError(protocol.CodeConflict, "record was concurrently modified")
	}

	rec := &domain.Record{Key: key, Version: newVersion, Data: merged, ExpiresAt: existing.ExpiresAt}
	s.indexText(ctx, schema, rec)
	s.notify(ctx, bucket)
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, bucket, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM records WHERE bucket = $1 AND key = $2`, bucket, key)
	if err != nil {
		return false, fmt.Errorf("store: delete: %w", err)
	}
	deleted := tag.RowsAffected() > 0
	if deleted {
		s.unindexText(bucket, key)
		s.notify(ctx, bucket)
	}
	return deleted, nil
}

func (s *Store) Clear(ctx context.Context, bucket string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM records WHERE bucket = $1`, bucket); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	if s.text != nil {
		_ = s.text.dropBucket(bucket)
	}
	s.notify(ctx, bucket)
	return nil
}

func (s *Store) Count(ctx context.Context, bucket string, where map[string]any) (int64, error) {
	clause, args, err := s.whereClause(ctx, bucket, where, 2)
	if err != nil {
		return 0, err
	}
	var n int64
	query := `SELECT count(*) FROM records WHERE bucket = $1` + clause
	err = s.pool.QueryRow(ctx, query, append([]any{bucket}, args...)...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

func (s *Store) All(ctx context.Context, bucket string) ([]map[string]any, error) {
	return s.Where(ctx, bucket, nil)
}

func (s *Store) Where(ctx context.Context, bucket string, where map[string]any) ([]map[string]any, error) {
	clause, args, err := s.whereClause(ctx, bucket, where, 2)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT key, version, data FROM records WHERE bucket = $1`+clause+` ORDER BY key`, append([]any{bucket}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("store: where: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec.Flatten())
	}
	return out, rows.Err()
}

func (s *Store) FindOne(ctx context.Context, bucket string, where map[string]any) (map[string]any, error) {
	results, err := s.Where(ctx, bucket, where)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, protocol.NewError(protocol.CodeNotFound, "no matching record")
	}
	return results[0], nil
}

func (s *Store) First(ctx context.Context, bucket string) (map[string]any, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, version, data FROM records WHERE bucket = $1 ORDER BY key LIMIT 1`, bucket)
	if err != nil {
		return nil, fmt.Errorf("store: first: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, protocol.NewError(protocol.CodeNotFound, "bucket is empty")
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return rec.Flatten(), nil
}

func (s *Store) Last(ctx context.Context, bucket string) (map[string]any, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, version, data FROM records WHERE bucket = $1 ORDER BY key DESC LIMIT 1`, bucket)
	if err != nil {
		return nil, fmt.Errorf("store: last: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, protocol.NewError(protocol.CodeNotFound, "bucket is empty")
	}
	rec, err := scanRecord(rows)
	if err != nil {
		return nil, err
	}
	return rec.Flatten(), nil
}

// Paginate implements cursor pagination: the cursor is the last key seen,
// and the next page resumes strictly after it in key order.
func (s *Store) Paginate(ctx context.Context, bucket string, where map[string]any, cursor string, limit int) (*domain.Page, error) {
	if limit <= 0 {
		limit = 50
	}
	clause, args, err := s.whereClause(ctx, bucket, where, 2)
	if err != nil {
		return nil, err
	}
	args = append([]any{bucket}, args...)
	if cursor != "" {
		clause += fmt.Sprintf(" AND key > $%d", len(args)+1)
		args = append(args, cursor)
	}
	args = append(args, limit+1)
	query := fmt.Sprintf(`SELECT key, version, data FROM records WHERE bucket = $1%s ORDER BY key LIMIT $%d`, clause, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: paginate: %w", err)
	}
	defer rows.Close()

	var records []map[string]any
	var keys []string
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, rec.Key)
		records = append(records, rec.Flatten())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &domain.Page{Records: records}
	if len(records) > limit {
		page.Records = records[:limit]
		page.HasMore = true
		page.NextCursor = keys[limit-1]
	}
	return page, nil
}

func (s *Store) aggregate(ctx context.Context, fn, bucket, field string, where map[string]any) (any, error) {
	clause, args, err := s.whereClause(ctx, bucket, where, 2)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT %s((data->>%s)::numeric) FROM records WHERE bucket = $1%s`, fn, quoteLiteral(field), clause)
	var result *float64
	if err := s.pool.QueryRow(ctx, query, append([]any{bucket}, args...)...).Scan(&result); err != nil {
		return nil, fmt.Errorf("store: %s: %w", fn, err)
	}
	if result == nil {
		return nil, nil
	}
	if *result == math.Trunc(*result) {
		return int64(*result), nil
	}
	return *result, nil
}

func (s *Store) Sum(ctx context.Context, bucket, field string, where map[string]any) (any, error) {
	return s.aggregate(ctx, "sum", bucket, field, where)
}

func (s *Store) Avg(ctx context.Context, bucket, field string, where map[string]any) (any, error) {
	return s.aggregate(ctx, "avg", bucket, field, where)
}

func (s *Store) Min(ctx context.Context, bucket, field string, where map[string]any) (any, error) {
	return s.aggregate(ctx, "min", bucket, field, where)
}

func (s *Store) Max(ctx context.Context, bucket, field string, where map[string]any) (any, error) {
	return s.aggregate(ctx, "max", bucket, field, where)
}

// Transaction applies ops atomically: any failing op rolls back
// the whole batch and at most one push fires per affected subscription.
func (s *Store) Transaction(ctx context.Context, ops []collab.TransactionOp) ([]map[string]any, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: transaction begin: %w", err)
	}
	defer tx.Rollback(ctx)

	results := make([]map[string]any, 0, len(ops))
	affected := make(map[string]struct{})

	for _, op := range ops {
		res, err := s.applyOpTx(ctx, tx, op)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		affected[op.Bucket] = struct{}{}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("store: transaction commit: %w", err)
	}
	for bucket := range affected {
		s.notify(ctx, bucket)
	}
	return results, nil
}

func nowMs() int64 {
	return timeNowUnixMilli()
}
