package archive

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storedash/backend/internal/domain"
)

// fakeS3 is an in-memory bucket good enough for the calls S3Backend makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	bucket  bool
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	now := time.Now()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key), LastModified: aws.Time(now)})
	}
	return out, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, _ *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.bucket {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, _ *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bucket = true
	return &s3.CreateBucketOutput{}, nil
}

func TestS3BackendEnsureBucket(t *testing.T) {
	fake := newFakeS3()
	b := NewS3BackendWithClient(fake, "reports", "")

	require.NoError(t, b.EnsureBucket(context.Background()))
	assert.True(t, fake.bucket)
	require.NoError(t, b.EnsureBucket(context.Background()))
}

func TestS3BackendPrefixesAndFiltersKeys(t *testing.T) {
	fake := newFakeS3()
	b := NewS3BackendWithClient(fake, "reports", "/archive/")
	ctx := context.Background()

	require.NoError(t, b.Write(ctx, "a.json", []byte("{}")))
	require.NoError(t, b.Write(ctx, "a.csv", []byte("x")))
	fake.objects["archive/nested/b.json"] = []byte("{}")
	fake.objects["other/c.json"] = []byte("{}")

	assert.Contains(t, fake.objects, "archive/a.json")

	objects, err := b.List(ctx, ".json")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "a.json", objects[0].Name)

	_, err = b.Read(ctx, "missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)
	exists, err := b.Exists(ctx, "a.csv")
	require.NoError(t, err)
	assert.True(t, exists)
	require.NoError(t, b.Remove(ctx, "a.csv"))
	require.NoError(t, b.Remove(ctx, "a.csv"))
}

func TestStoreOverS3Backend(t *testing.T) {
	s := New(NewS3BackendWithClient(newFakeS3(), "reports", "reports"))
	ctx := context.Background()

	record, err := s.Put(ctx, "Q1 Report", domain.KindTabular, []byte("a,b\n1,2"), "")
	require.NoError(t, err)

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	data, err := s.GetPayload(ctx, record.StorageKey, domain.KindTabular)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2", string(data))

	require.NoError(t, s.Delete(ctx, record.StorageKey))
	records, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}
