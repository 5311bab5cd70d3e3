package config

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeGetter struct {
	body  string
	err   error
	calls int
}

func (f *fakeGetter) GetObject(_ context.Context, _ *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{
		Body: io.NopCloser(strings.NewReader(f.body)),
		ETag: aws.String(`"etag-1"`),
	}, nil
}

func TestQuotaSettingsLoader_Disabled(t *testing.T) {
	l := NewQuotaSettingsLoader(S3LoaderConfig{}, 5)
	l.Load(context.Background())

	if got := l.FreeScansPerDay(); got != 5 {
		t.Errorf("FreeScansPerDay() = %d, want 5", got)
	}
}

func TestQuotaSettingsLoader_Override(t *testing.T) {
	getter := &fakeGetter{body: `{"free_scans_per_day": 12}`}
	l := NewQuotaSettingsLoader(S3LoaderConfig{S3Client: getter, Bucket: "b", CacheTTL: time.Hour}, 5)
	l.Load(context.Background())

	if got := l.FreeScansPerDay(); got != 12 {
		t.Errorf("FreeScansPerDay() = %d, want 12", got)
	}
	if getter.calls != 1 {
		t.Errorf("calls = %d, want 1", getter.calls)
	}
}

func TestQuotaSettingsLoader_MissingKeyUsesDefault(t *testing.T) {
	getter := &fakeGetter{err: &types.NoSuchKey{}}
	l := NewQuotaSettingsLoader(S3LoaderConfig{S3Client: getter, Bucket: "b"}, 7)
	l.Load(context.Background())

	if got := l.FreeScansPerDay(); got != 7 {
		t.Errorf("FreeScansPerDay() = %d, want 7", got)
	}
}

func TestQuotaSettingsLoader_ErrorKeepsDefault(t *testing.T) {
	getter := &fakeGetter{err: errors.New("connection refused")}
	l := NewQuotaSettingsLoader(S3LoaderConfig{S3Client: getter, Bucket: "b"}, 3)
	l.Load(context.Background())

	if got := l.FreeScansPerDay(); got != 3 {
		t.Errorf("FreeScansPerDay() = %d, want 3", got)
	}
}

func TestQuotaSettingsLoader_IgnoresNegative(t *testing.T) {
	getter := &fakeGetter{body: `{"free_scans_per_day": -4}`}
	l := NewQuotaSettingsLoader(S3LoaderConfig{S3Client: getter, Bucket: "b"}, 5)
	l.Load(context.Background())

	if got := l.FreeScansPerDay(); got != 5 {
		t.Errorf("FreeScansPerDay() = %d, want 5", got)
	}
}
