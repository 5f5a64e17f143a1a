package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"tool_gateway/internal/utils"
)

// ObjectPutter is the slice of the S3 API the writer needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Writer writes batches of audit records to S3 as JSON Lines objects
type S3Writer struct {
	client  ObjectPutter
	bucket  string
	prefix  string
	podName string
	now     func() time.Time
	logger  *utils.Logger
}

// S3WriterConfig configures the S3 writer
type S3WriterConfig struct {
	Bucket   string
	Region   string
	Prefix   string
	PodName  string
	Endpoint string // optional, for S3-compatible stores such as MinIO
}

// NewS3Writer loads the default AWS configuration and creates a writer
func NewS3Writer(ctx context.Context, cfg S3WriterConfig) (*S3Writer, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3WriterWithClient(client, cfg), nil
}

// NewS3WriterWithClient creates a writer around an existing client
func NewS3WriterWithClient(client ObjectPutter, cfg S3WriterConfig) *S3Writer {
	podName := cfg.PodName
	if podName == "" {
		podName = "gateway"
	}
	return &S3Writer{
		client:  client,
		bucket:  cfg.Bucket,
		prefix:  cfg.Prefix,
		podName: podName,
		now:     time.Now,
		logger:  utils.NewLogger("s3-writer"),
	}
}

// ObjectKey builds the key for a batch written at t.
// Format: audit/2026/10/19/gateway-0-20261019-143022-123456789.jsonl
func (w *S3Writer) ObjectKey(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s%04d/%02d/%02d/%s-%s-%09d.jsonl",
		w.prefix,
		t.Year(),
		t.Month(),
		t.Day(),
		w.podName,
		t.Format("20060102-150405"),
		t.Nanosecond(),
	)
}

// WriteBatch uploads records as one object and returns its key
func (w *S3Writer) WriteBatch(ctx context.Context, records []*LogRecord) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	written := 0
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			w.logger.Error("Failed to encode record", "request_id", record.RequestID, "error", err)
			continue
		}
		written++
	}
	if written == 0 {
		return "", nil
	}

	key := w.ObjectKey(w.now())
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	w.logger.Info("Wrote batch to S3", "key", key, "count", written, "bytes", buf.Len())
	return key, nil
}
