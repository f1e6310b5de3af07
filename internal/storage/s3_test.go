package storage

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuslink/notifier/internal/domain"
)

type fakeS3 struct {
	puts []s3.PutObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, *params)
	return &s3.PutObjectOutput{}, nil
}

func TestSaveFeedbackPayloadKey(t *testing.T) {
	fake := &fakeS3{}
	archiver := NewArchiverWithClient(fake, "notifier-audit")
	archiver.now = func() time.Time {
		return time.Date(2026, 3, 15, 14, 30, 5, 0, time.UTC)
	}

	err := archiver.SaveFeedbackPayload(context.Background(), "bounce", []byte(`{"raw":true}`))
	require.NoError(t, err)
	require.Len(t, fake.puts, 1)

	put := fake.puts[0]
	assert.Equal(t, "notifier-audit", *put.Bucket)
	assert.Equal(t, "feedback/bounce/2026/03/15/14-30-05.000000000.json", *put.Key)
	assert.Equal(t, "application/json", *put.ContentType)

	body, err := io.ReadAll(put.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"raw":true}`, string(body))
}

func TestSaveBatchReportKey(t *testing.T) {
	fake := &fakeS3{}
	archiver := NewArchiverWithClient(fake, "notifier-audit")
	archiver.now = func() time.Time {
		return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	}

	result := &domain.BatchResult{BatchID: "batch-123"}
	require.NoError(t, archiver.SaveBatchReport(context.Background(), result))
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "reports/2026/03/15/batch-123.json", *fake.puts[0].Key)
}
