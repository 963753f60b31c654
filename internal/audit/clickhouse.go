package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/OmarEhab007/wiregate/internal/domain"
)

// ClickHouseSink is the durable overflow sink: entries flushed from the
// ring buffer land in an `audit_entries` table via PrepareBatch/Append/
// Send.
type ClickHouseSink struct {
	conn driver.Conn
}

// NewClickHouseSink opens a ClickHouse connection from dsn and verifies it.
func NewClickHouseSink(ctx context.Context, dsn string) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: parse clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("audit: open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("audit: ping clickhouse: %w", err)
	}
	return &ClickHouseSink{conn: conn}, nil
}

// Close releases the underlying connection.
func (s *ClickHouseSink) Close() error { return s.conn.Close() }

// Write batch-inserts entries into audit_entries.
func (s *ClickHouseSink) Write(ctx context.Context, entries []domain.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO audit_entries (
			timestamp, user_id, session_id, operation, resource,
			result, error, details, remote_address
		)
	`)
	if err != nil {
		return fmt.Errorf("audit: prepare batch: %w", err)
	}

	for i := range entries {
		e := &entries[i]
		details := "{}"
		if len(e.Details) > 0 {
			b, err := json.Marshal(e.Details)
			if err != nil {
				return fmt.Errorf("audit: marshal details for row %d: %w", i, err)
			}
			details = string(b)
		}

		if err := batch.Append(
			e.Timestamp, e.UserID, e.SessionID, e.Operation, e.Resource,
			string(e.Result), e.Error, details, e.RemoteAddress,
		); err != nil {
			return fmt.Errorf("audit: append row %d: %w", i, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("audit: send batch: %w", err)
	}
	return nil
}

// Query runs a filtered SELECT against audit_entries, for history beyond
// the ring buffer's capacity.
func (s *ClickHouseSink) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	where := "1 = 1"
	args := map[string]any{"limit": limit}
	if filter.UserID != "" {
		where += " AND user_id = @userID"
		args["userID"] = filter.UserID
	}
	if filter.Operation != "" {
		where += " AND operation = @operation"
		args["operation"] = filter.Operation
	}
	if filter.Result != "" {
		where += " AND result = @result"
		args["result"] = filter.Result
	}
	if filter.From != 0 {
		where += " AND timestamp >= @from"
		args["from"] = filter.From
	}
	if filter.To != 0 {
		where += " AND timestamp <= @to"
		args["to"] = filter.To
	}

	query := fmt.Sprintf(`
		SELECT timestamp, user_id, session_id, operation, resource, result, error, details, remote_address
		FROM audit_entries
		WHERE %s
		ORDER BY timestamp DESC
		LIMIT @limit
	`, where)

	named := make([]any, 0, len(args))
	for k, v := range args {
		named = append(named, clickhouse.Named(k, v))
	}

	rows, err := s.conn.Query(ctx, query, named...)
	if err != nil {
		return nil, fmt.Errorf("audit: query clickhouse: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var result, details string
		if err := rows.Scan(&e.Timestamp, &e.UserID, &e.SessionID, &e.Operation, &e.Resource,
			&result, &e.Error, &details, &e.RemoteAddress); err != nil {
			return nil, fmt.Errorf("audit: scan row: %w", err)
		}
		e.Result = domain.AuditResult(result)
		if details != "" && details != "{}" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("audit: unmarshal details: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
