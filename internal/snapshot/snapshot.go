// Package snapshot exports the published feed's top page to S3-compatible
// object storage, one timestamped JSON object per publish plus a stable
// "latest" object for downstream consumers.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stackroom/rankd/internal/ranking"
)

// LatestKey is the object key always holding the most recent snapshot.
const LatestKey = "feed/latest.json"

// objectAPI is the S3 surface the exporter uses; the interface exists
// for tests.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter writes feed snapshots to object storage. It implements
// ranking.Exporter.
type Exporter struct {
	client objectAPI
	bucket string
	logger *slog.Logger
	now    func() time.Time
}

// ExporterConfig holds configuration for the snapshot exporter.
type ExporterConfig struct {
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

// Document is the JSON shape of one exported snapshot.
type Document struct {
	GeneratedAt time.Time             `json:"generated_at"`
	Entries     []ranking.RankedEntry `json:"entries"`
}

// NewExporter creates a snapshot exporter against S3-compatible storage.
func NewExporter(cfg ExporterConfig, logger *slog.Logger) (*Exporter, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.AccessKeyID == "" {
		return nil, errors.New("access key ID is required")
	}
	if cfg.SecretAccessKey == "" {
		return nil, errors.New("secret access key is required")
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("endpoint is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := s3.New(s3.Options{
		Region: "auto",
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		BaseEndpoint: aws.String(cfg.Endpoint),
		UsePathStyle: true,
	})

	return &Exporter{
		client: client,
		bucket: cfg.Bucket,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Export writes the entries as a timestamped object and updates the
// latest pointer object.
func (e *Exporter) Export(ctx context.Context, entries []ranking.RankedEntry) error {
	now := e.now().UTC()
	doc := Document{GeneratedAt: now, Entries: entries}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	timestamped := fmt.Sprintf("feed/%s.json", now.Format("2006-01-02T15-04-05Z"))
	for _, key := range []string{timestamped, LatestKey} {
		if err := e.put(ctx, key, data); err != nil {
			return err
		}
	}

	e.logger.Info("exported feed snapshot", "key", timestamped, "entries", len(entries))
	return nil
}

func (e *Exporter) put(ctx context.Context, key string, data []byte) error {
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put snapshot object %s: %w", key, err)
	}
	return nil
}
