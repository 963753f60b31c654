package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/OmarEhab007/wiregate/internal/domain"
)

// Exporter uploads periodic JSON snapshots of the audit ring buffer to S3
// (or any S3-compatible service such as MinIO). It is non-critical: a
// configuration or upload failure is logged and otherwise ignored.
type Exporter struct {
	client *s3.Client
	bucket string
}

// NewExporter configures an S3 client for snapshot export. useSSL controls
// whether the endpoint is accessed over HTTPS (set false for local MinIO).
func NewExporter(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*Exporter, error) {
	if bucket == "" {
		return nil, fmt.Errorf("audit: export bucket name is required")
	}

	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
		if !useSSL {
			o.EndpointOptions.DisableHTTPS = true
		}
	})

	return &Exporter{client: client, bucket: bucket}, nil
}

// Export uploads entries as a single JSON array under a timestamp-prefixed
// key, e.g. "audit-snapshots/2023/07/22/1690000000000.json".
func (e *Exporter) Export(ctx context.Context, entries []domain.AuditEntry) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("audit: marshal snapshot: %w", err)
	}

	now := time.UnixMilli(snapshotTimestamp(entries))
	key := fmt.Sprintf("audit-snapshots/%04d/%02d/%02d/%d.json",
		now.Year(), now.Month(), now.Day(), now.UnixMilli())

	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("audit: upload snapshot %q: %w", key, err)
	}
	return key, nil
}

func snapshotTimestamp(entries []domain.AuditEntry) int64 {
	if len(entries) == 0 {
		return time.Now().UnixMilli()
	}
	return entries[len(entries)-1].Timestamp
}
