package backup

import (
	"bytes"
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
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/testutil"
)

// fakeS3 is an in-memory bucket that pages listings two keys at a time.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[aws.ToString(in.Key)] = data
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	data, ok := f.objects[aws.ToString(in.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, aws.ToString(in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > 2 {
		keys = keys[:2]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(testutil.Epoch),
		})
	}
	return out, nil
}

func TestS3Sink(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	fake.objects["other/backup-x.snix.json"] = []byte("elsewhere")
	sink := newS3Sink(fake, "bucket", "/snix/")
	if sink.Location() != "s3://bucket/snix/" {
		t.Errorf("location = %q", sink.Location())
	}

	for _, name := range []string{"a", "b", "c"} {
		if err := sink.Put(ctx, name, []byte(name+name)); err != nil {
			t.Fatal(err)
		}
	}
	if _, ok := fake.objects["snix/a"]; !ok {
		t.Errorf("keys = %v", fake.objects)
	}
	objs, err := sink.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 3 || objs[2].Name != "c" || objs[2].Size != 2 {
		t.Errorf("list = %+v", objs)
	}

	data, err := sink.Get(ctx, "b")
	if err != nil || string(data) != "bb" {
		t.Errorf("get = %q, %v", data, err)
	}
	if err := sink.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if _, err := sink.Get(ctx, "b"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get deleted: %v", err)
	}
	if err := sink.Put(ctx, "../escape", nil); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("put ../escape: %v", err)
	}
}

func TestS3Sink_BackupRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := seeded(t)
	m := NewManager(svc, newS3Sink(newFakeS3(), "bucket", ""), testutil.Logger(), Options{
		Compress: true,
		Now:      func() time.Time { return testutil.Epoch },
	})
	info, err := m.Create(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "backup-20260301-120000.000.snix.json.zst" {
		t.Errorf("name = %q", info.Name)
	}
	doc, err := m.Load(ctx, info.Name)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Snippets) != 2 {
		t.Errorf("snippets = %d", len(doc.Snippets))
	}
}

func TestDirSink(t *testing.T) {
	ctx := context.Background()
	sink, err := NewDirSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Put(ctx, "one", []byte("1")); err != nil {
		t.Fatal(err)
	}
	objs, err := sink.List(ctx)
	if err != nil || len(objs) != 1 || objs[0].Name != "one" || objs[0].Size != 1 {
		t.Fatalf("list = %+v, %v", objs, err)
	}
	if err := sink.Delete(ctx, "one"); err != nil {
		t.Fatal(err)
	}
	if err := sink.Delete(ctx, "one"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
	if _, err := sink.Get(ctx, "one"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get: %v", err)
	}
}
