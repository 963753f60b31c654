package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

func timeNowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "duplicate key value") || strings.Contains(err.Error(), "SQLSTATE 23505")
}

// quoteLiteral produces a single-quoted SQL string literal for a trusted,
// schema-derived field name used inside a dynamically built aggregate
// expression (never taken from unescaped client input).
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func scanRecord(rows pgx.Rows) (*domain.Record, error) {
	var key string
	var version int64
	var dataJSON []byte
	if err := rows.Scan(&key, &version, &dataJSON); err != nil {
		return nil, fmt.Errorf("store: scan record: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(dataJSON, &data); err != nil {
		return nil, fmt.Errorf("store: decode record: %w", err)
	}
	return &domain.Record{Key: key, Version: version, Data: data}, nil
}

// recordKey derives a record's primary key from its schema and payload,
// generating one and writing it back into the record when the payload
// does not carry it.
func recordKey(schema *domain.BucketSchema, record map[string]any) (string, error) {
	field := schema.PrimaryKey
	if field == "" {
		field = "id"
	}
	if v, ok := record[field]; ok && v != nil {
		if s, ok := v.(string); ok {
			if s == "" {
				return "", protocol.NewError(protocol.CodeValidationError, fmt.Sprintf("primary key field %q must not be empty", field))
			}
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil
	}
	key := uuid.NewString()
	record[field] = key
	return key, nil
}

// validateRecord checks record against the bucket schema: required fields
// must be present and typed fields must carry the declared JSON type.
func validateRecord(schema *domain.BucketSchema, record map[string]any) error {
	for _, f := range schema.Fields {
		v, ok := record[f.Name]
		if !ok || v == nil {
			if f.Required {
				return protocol.NewError(protocol.CodeValidationError, fmt.Sprintf("field %q is required", f.Name))
			}
			continue
		}
		if !fieldTypeOK(f.Type, v) {
			return protocol.NewError(protocol.CodeValidationError, fmt.Sprintf("field %q must be of type %q", f.Name, f.Type))
		}
	}
	return nil
}

func fieldTypeOK(typ string, v any) bool {
	switch typ {
	case "string", "text":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "boolean", "bool":
		_, ok := v.(bool)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	default:
		return true
	}
}

// whereClause builds a SQL fragment (starting with " AND ...") from an
// equality predicate map plus an optional "$search" full-text predicate,
// resolving the latter via the attached text index when present.
func (s *Store) whereClause(ctx context.Context, bucket string, where map[string]any, startArg int) (string, []any, error) {
	equality, search, hasSearch := splitWhere(where)

	var clause strings.Builder
	var args []any

	if len(equality) > 0 {
		eqJSON, err := json.Marshal(equality)
		if err != nil {
			return "", nil, protocol.NewError(protocol.CodeInvalidRequest, "invalid filter")
		}
		clause.WriteString(fmt.Sprintf(" AND data @> $%d::jsonb", startArg))
		args = append(args, eqJSON)
		startArg++
	}

	if hasSearch {
		if s.text == nil {
			return "", nil, protocol.NewError(protocol.CodeInvalidRequest, "full-text search is not configured")
		}
		schema, err := s.GetBucketSchema(ctx, bucket)
		if err != nil {
			return "", nil, err
		}
		keys, err := s.text.search(bucket, schema.TextField(), search)
		if err != nil {
			return "", nil, fmt.Errorf("store: text search: %w", err)
		}
		if len(keys) == 0 {
			clause.WriteString(" AND FALSE")
		} else {
			clause.WriteString(fmt.Sprintf(" AND key = ANY($%d)", startArg))
			args = append(args, keys)
		}
	}

	return clause.String(), args, nil
}
