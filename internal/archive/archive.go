// Package archive stores raw event payloads in S3 for audit. Archival is
// best-effort: the parser logs failures and keeps going, the payload is
// already persisted in ClickHouse.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"aegis-soar/internal/config"
)

// Archiver uploads raw payloads to an S3 bucket.
type Archiver struct {
	client *s3.Client
	cfg    config.S3Config
	logger *slog.Logger

	uploaded atomic.Int64
	failures atomic.Int64
}

// New builds an Archiver from configuration.
func New(ctx context.Context, cfg config.S3Config, logger *slog.Logger) (*Archiver, error) {
	if cfg.Region == "" {
		return nil, errors.New("archive: region is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("archive: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	a := &Archiver{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		cfg:    cfg,
		logger: logger,
	}

	logger.Info("archive initialized",
		"bucket", cfg.Bucket,
		"region", cfg.Region,
		"prefix", cfg.Prefix)
	return a, nil
}

// Key returns the object key for an event. Keys shard by UTC day so bucket
// listings stay usable.
func (a *Archiver) Key(eventID string, timestamp int64) string {
	day := time.Unix(timestamp, 0).UTC().Format("2006/01/02")
	return fmt.Sprintf("%s%s/%s.json", a.cfg.Prefix, day, eventID)
}

// Store uploads one raw event payload.
func (a *Archiver) Store(ctx context.Context, eventID string, timestamp int64, payload []byte) error {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	key := a.Key(eventID, timestamp)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		a.failures.Add(1)
		return fmt.Errorf("archive: upload %s: %w", key, err)
	}

	a.uploaded.Add(1)
	a.logger.Debug("archived raw event", "key", key, "size", len(payload))
	return nil
}

// Metrics reports archive counters.
type Metrics struct {
	Uploaded int64 `json:"uploaded"`
	Failures int64 `json:"failures"`
}

// Metrics returns a snapshot of the archive counters.
func (a *Archiver) Metrics() Metrics {
	return Metrics{
		Uploaded: a.uploaded.Load(),
		Failures: a.failures.Load(),
	}
}
