package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/OmarEhab007/wiregate/internal/collab"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// applyOpTx executes one transaction op against tx and returns the
// resulting record (flattened), or an error that aborts the whole batch.
func (s *Store) applyOpTx(ctx context.Context, tx pgx.Tx, op collab.TransactionOp) (map[string]any, error) {
	switch op.Op {
	case "insert":
		return s.insertTx(ctx, tx, op)
	case "update":
		return s.updateTx(ctx, tx, op)
	case "delete":
		return s.deleteTx(ctx, tx, op)
	case "clear":
		if _, err := tx.Exec(ctx, `DELETE FROM records WHERE bucket = $1`, op.Bucket); err != nil {
			return nil, fmt.Errorf("store: tx clear: %w", err)
		}
		return map[string]any{"bucket": op.Bucket, "cleared": true}, nil
	default:
		return nil, protocol.NewError(protocol.CodeValidationError, fmt.Sprintf("unknown transaction op %q", op.Op))
	}
}

func (s *Store) insertTx(ctx context.Context, tx pgx.Tx, op collab.TransactionOp) (map[string]any, error) {
	schema, err := s.GetBucketSchema(ctx, op.Bucket)
	if err != nil {
		return nil, err
	}
	if op.Record == nil {
		op.Record = map[string]any{}
	}
	key, err := recordKey(schema, op.Record)
	if err != nil {
		return nil, err
	}
	if err := validateRecord(schema, op.Record); err != nil {
		return nil, err
	}
	dataJSON, err := json.Marshal(op.Record)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeInvalidRequest, "record is not JSON-serializable")
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO records (bucket, key, version, data) VALUES ($1, $2, 1, $3)
	`, op.Bucket, key, dataJSON); err != nil {
		if isUniqueViolation(err) {
			return nil, protocol.NewError(protocol.CodeAlreadyExists, fmt.Sprintf("record %q already exists in bucket %q", key, op.Bucket))
		}
		return nil, fmt.Errorf("store: tx insert: %w", err)
	}
	out := make(map[string]any, len(op.Record)+1)
	for k, v := range op.Record {
		out[k] = v
	}
	out["_version"] = int64(1)
	if _, ok := out["id"]; !ok {
		out["id"] = key
	}
	return out, nil
}

func (s *Store) updateTx(ctx context.Context, tx pgx.Tx, op collab.TransactionOp) (map[string]any, error) {
	var version int64
	var dataJSON []byte
	err := tx.QueryRow(ctx, `SELECT version, data FROM records WHERE bucket = $1 AND key = $2`, op.Bucket, op.Key).Scan(&version, &dataJSON)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeNotFound, fmt.Sprintf("record %q not found in bucket %q", op.Key, op.Bucket))
	}
	var existing map[string]any
	if err := json.Unmarshal(dataJSON, &existing); err != nil {
		return nil, fmt.Errorf("store: tx decode: %w", err)
	}
	for k, v := range op.Record {
		existing[k] = v
	}
	merged, err := json.Marshal(existing)
	if err != nil {
		return nil, protocol.NewError(protocol.CodeInvalidRequest, "record is not JSON-serializable")
	}
	newVersion := version + 1
	if _, err := tx.Exec(ctx, `UPDATE records SET version = $3, data = $4 WHERE bucket = $1 AND key = $2`, op.Bucket, op.Key, newVersion, merged); err != nil {
		return nil, fmt.Errorf("store: tx update: %w", err)
	}
	existing["_version"] = newVersion
	if _, ok := existing["id"]; !ok {
		existing["id"] = op.Key
	}
	return existing, nil
}

func (s *Store) deleteTx(ctx context.Context, tx pgx.Tx, op collab.TransactionOp) (map[string]any, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM records WHERE bucket = $1 AND key = $2`, op.Bucket, op.Key)
	if err != nil {
		return nil, fmt.Errorf("store: tx delete: %w", err)
	}
	return map[string]any{"key": op.Key, "deleted": tag.RowsAffected() > 0}, nil
}
