package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/campuslink/notifier/internal/domain"
	"github.com/campuslink/notifier/internal/pkg/logger"
)

var log = logger.New("storage")

// s3API is the slice of the S3 client the archiver uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver writes raw feedback payloads and batch summaries to S3 under
// date-partitioned keys for offline analysis. Archival is best effort:
// callers log failures and move on, delivery state lives in the Store.
type Archiver struct {
	client s3API
	bucket string
	now    func() time.Time
}

// NewArchiver loads AWS config and returns an archiver bound to bucket.
func NewArchiver(ctx context.Context, bucket, region string) (*Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &Archiver{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		now:    time.Now,
	}, nil
}

// NewArchiverWithClient injects an S3 client. Used by tests.
func NewArchiverWithClient(client s3API, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket, now: time.Now}
}

// SaveFeedbackPayload archives the raw bytes of one bounce or complaint
// callback before any parsing, so malformed payloads are still kept.
func (a *Archiver) SaveFeedbackPayload(ctx context.Context, kind string, payload []byte) error {
	now := a.now().UTC()
	key := fmt.Sprintf("feedback/%s/%s/%s.json",
		kind,
		now.Format("2006/01/02"),
		now.Format("15-04-05.000000000"))

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archiving feedback payload to S3: %w", err)
	}
	return nil
}

// SaveBatchReport archives the full per-item outcome of one dispatched
// batch under reports/<date>/<batchID>.json.
func (a *Archiver) SaveBatchReport(ctx context.Context, result *domain.BatchResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling batch report: %w", err)
	}

	key := fmt.Sprintf("reports/%s/%s.json",
		a.now().UTC().Format("2006/01/02"), result.BatchID)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archiving batch report to S3: %w", err)
	}
	log.Debug("batch report archived", "batch_id", result.BatchID, "key", key)
	return nil
}
