package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return map[string]Storage{
		"local": local,
		"s3":    newS3Storage(newFakeS3(), "bucket", "imports"),
	}
}

func TestStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			key := "uploads/acme/2026-01-02/run-1/products.csv"
			content := []byte("name,price\nMug,9.5\n")
			meta := &Metadata{
				ContentType:  "text/csv",
				OriginalName: "products.csv",
				Tenant:       "acme",
				UploadedAt:   time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC),
				Custom:       map[string]string{"run": "run-1"},
			}

			require.NoError(t, store.Put(ctx, key, content, meta))

			ok, err := store.Exists(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, content, got)

			info, err := store.GetInfo(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, int64(len(content)), info.Size)
			assert.Equal(t, ComputeChecksum(content), info.Checksum)
			assert.Equal(t, "text/csv", info.ContentType)
			require.NotNil(t, info.Metadata)
			assert.Equal(t, "acme", info.Metadata.Tenant)
			assert.Equal(t, "run-1", info.Metadata.Custom["run"])

			sum, err := store.GetChecksum(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, ComputeChecksum(content), sum)

			require.NoError(t, store.Delete(ctx, key))
			ok, err = store.Exists(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestStorage_NotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Get(ctx, "missing.csv")
			assert.True(t, errors.Is(err, ErrNotFound))

			_, err = store.GetInfo(ctx, "missing.csv")
			assert.True(t, errors.Is(err, ErrNotFound))

			assert.NoError(t, store.Delete(ctx, "missing.csv"))
		})
	}
}

func TestStorage_List(t *testing.T) {
	ctx := context.Background()
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"uploads/a/1.csv", "uploads/a/2.json", "uploads/b/3.xml", "expanded/a/x.csv"} {
				require.NoError(t, store.Put(ctx, k, []byte(k), &Metadata{}))
			}

			keys, err := store.List(ctx, "uploads/a/")
			require.NoError(t, err)
			sort.Strings(keys)
			assert.Equal(t, []string{"uploads/a/1.csv", "uploads/a/2.json"}, keys)

			keys, err = store.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, keys, 4)
		})
	}
}

func TestLocalStorage_KeyCannotEscapeBase(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStorage(base)
	require.NoError(t, err)

	path := store.keyToPath("../../etc/passwd")
	assert.True(t, strings.HasPrefix(path, base))
}

func TestBuildKeys(t *testing.T) {
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "uploads/acme/2026-03-04/run-1/feed.csv", BuildUploadKey("acme", day, "run-1", "feed.csv"))
	assert.Equal(t, "uploads/_/2026-03-04/run-1/a_b.csv", BuildUploadKey("", day, "run-1", "a/b.csv"))
	assert.Equal(t, "expanded/acme/2026-03-04/bundle/items.xlsx", BuildExpandedKey("acme", day, "bundle.ZIP", "items.xlsx"))
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "gcs"})
	assert.Error(t, err)
}

// fakeS3 is an in-memory stand-in for the S3 client
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body        []byte
	contentType *string
	metadata    map[string]string
	modified    time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{
		body:        body,
		contentType: in.ContentType,
		metadata:    in.Metadata,
		modified:    time.Now(),
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(obj.body)))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.body))),
		ContentType:   obj.contentType,
		Metadata:      obj.metadata,
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}
