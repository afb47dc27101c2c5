package export

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/koustreak/userstream/internal/database/dbtest"
	"github.com/koustreak/userstream/internal/errs"
	"github.com/koustreak/userstream/internal/filestore"
	"github.com/koustreak/userstream/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps uploaded objects in memory. readLimit, when positive,
// makes PutObject fail after reading that many bytes. sizeSkew is added to
// the size StatObject reports.
type memStore struct {
	objects   map[string][]byte
	buckets   map[string]bool
	puts      []filestore.PutOptions
	readLimit int
	sizeSkew  int64
	putErr    error
	bucketErr error
	statErr   error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, buckets: map[string]bool{}}
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

func (m *memStore) EnsureBucket(_ context.Context, bucket string) error {
	if m.bucketErr != nil {
		return m.bucketErr
	}
	m.buckets[bucket] = true
	return nil
}

func (m *memStore) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, opts filestore.PutOptions) (*filestore.ObjectInfo, error) {
	m.puts = append(m.puts, opts)
	if m.readLimit > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(m.readLimit)); err != nil {
			return nil, err
		}
		return nil, m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.objects[bucket+"/"+key] = data
	return &filestore.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data)), ContentType: opts.ContentType}, nil
}

func (m *memStore) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	if m.statErr != nil {
		return nil, m.statErr
	}
	data, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such key")
	}
	return &filestore.ObjectInfo{
		Bucket:      bucket,
		Key:         key,
		Size:        int64(len(data)) + m.sizeSkew,
		ContentType: m.puts[len(m.puts)-1].ContentType,
	}, nil
}

func records(n int) []dbtest.Record {
	recs := make([]dbtest.Record, n)
	for i := range recs {
		recs[i] = dbtest.Record{
			UserID: string(rune('a' + i%26)),
			Name:   "user",
			Email:  "user@example.com",
			Age:    20.5 + float64(i%2)*9.5,
		}
	}
	return recs
}

func TestJSONL(t *testing.T) {
	c := dbtest.New(records(3)...)
	store := newMemStore()

	res, err := JSONL(context.Background(), stream.New(c), store, "exports", "users.jsonl")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Rows)
	assert.True(t, store.buckets["exports"])
	assert.Equal(t, ContentType, res.Object.ContentType)

	data := store.objects["exports/users.jsonl"]
	assert.Equal(t, int64(len(data)), res.Object.Size)

	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	assert.Equal(t, []string{
		`{"user_id":"a","name":"user","email":"user@example.com","age":20.5}`,
		`{"user_id":"b","name":"user","email":"user@example.com","age":30}`,
		`{"user_id":"c","name":"user","email":"user@example.com","age":20.5}`,
	}, lines)

	assert.Equal(t, c.Opened(), c.Closed())
}

func TestJSONL_LargeTable(t *testing.T) {
	c := dbtest.New(records(5000)...)
	store := newMemStore()

	res, err := JSONL(context.Background(), stream.New(c), store, "exports", "big.jsonl")
	require.NoError(t, err)
	assert.Equal(t, 5000, res.Rows)

	dec := json.NewDecoder(bytes.NewReader(store.objects["exports/big.jsonl"]))
	n := 0
	for dec.More() {
		var r stream.Row
		require.NoError(t, dec.Decode(&r))
		n++
	}
	assert.Equal(t, 5000, n)
}

func TestJSONL_EmptyTable(t *testing.T) {
	store := newMemStore()

	res, err := JSONL(context.Background(), stream.New(dbtest.New()), store, "exports", "empty.jsonl")
	require.NoError(t, err)
	assert.Zero(t, res.Rows)
	assert.Empty(t, store.objects["exports/empty.jsonl"])
}

func TestJSONL_StreamFailure(t *testing.T) {
	c := dbtest.New(records(10)...)
	c.FailAfter = 4
	store := newMemStore()

	res, err := JSONL(context.Background(), stream.New(c), store, "exports", "users.jsonl")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errs.IsConnectionFailed(err), "database error surfaces, got %v", err)
	assert.NotContains(t, store.objects, "exports/users.jsonl")
	assert.Equal(t, c.Opened(), c.Closed())
}

func TestJSONL_UploadFailure(t *testing.T) {
	c := dbtest.New(records(2000)...)
	store := newMemStore()
	store.readLimit = 100
	store.putErr = errs.New(errs.ErrKindPermissionDenied, "access denied")

	res, err := JSONL(context.Background(), stream.New(c), store, "exports", "users.jsonl")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, errs.IsPermissionDenied(err), "got %v", err)
	assert.Equal(t, c.Opened(), c.Closed(), "rows iterator released after the upload gave up")
	assert.Zero(t, c.OpenResultSets())
}

func TestJSONL_Validation(t *testing.T) {
	tests := []struct {
		name, bucket, key string
	}{
		{"no bucket", "", "k"},
		{"no key", "b", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := dbtest.New(records(1)...)
			_, err := JSONL(context.Background(), stream.New(c), newMemStore(), tt.bucket, tt.key)
			assert.True(t, errs.IsInvalidInput(err))
			assert.Zero(t, c.Attempts())
		})
	}
}

func TestJSONL_BucketError(t *testing.T) {
	c := dbtest.New(records(1)...)
	store := newMemStore()
	store.bucketErr = errs.New(errs.ErrKindPermissionDenied, "denied")

	_, err := JSONL(context.Background(), stream.New(c), store, "exports", "k")
	assert.True(t, errs.IsPermissionDenied(err))
	assert.Zero(t, c.Attempts())
}

func TestJSONL_PutOptions(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want uint64
	}{
		{"default part size", nil, DefaultPartSize},
		{"zero keeps default", []Option{WithPartSize(0)}, DefaultPartSize},
		{"configured part size", []Option{WithPartSize(8 << 20)}, 8 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			s := stream.New(dbtest.New(records(2)...), stream.WithTable("user_data"))

			_, err := JSONL(context.Background(), s, store, "exports", "k", tt.opts...)
			require.NoError(t, err)
			require.Len(t, store.puts, 1)

			got := store.puts[0]
			assert.NotZero(t, got.PartSize)
			assert.Equal(t, tt.want, got.PartSize)
			assert.Equal(t, ContentType, got.ContentType)
			assert.Equal(t, map[string]string{"table": "user_data", "format": "jsonl"}, got.Metadata)
		})
	}
}

func TestJSONL_PartSizeTooSmall(t *testing.T) {
	c := dbtest.New(records(1)...)
	store := newMemStore()

	_, err := JSONL(context.Background(), stream.New(c), store, "exports", "k", WithPartSize(MinPartSize-1))
	assert.True(t, errs.IsInvalidInput(err), "got %v", err)
	assert.Empty(t, store.puts)
	assert.Zero(t, c.Attempts())
}

func TestJSONL_StatAfterUpload(t *testing.T) {
	t.Run("size mismatch", func(t *testing.T) {
		c := dbtest.New(records(3)...)
		store := newMemStore()
		store.sizeSkew = -1

		res, err := JSONL(context.Background(), stream.New(c), store, "exports", "k")
		assert.Nil(t, res)
		assert.True(t, errs.IsConnectionFailed(err), "got %v", err)
		assert.Contains(t, err.Error(), "wrote")
		assert.Equal(t, c.Opened(), c.Closed())
	})

	t.Run("stat error keeps kind", func(t *testing.T) {
		store := newMemStore()
		store.statErr = errs.New(errs.ErrKindPermissionDenied, "denied")

		_, err := JSONL(context.Background(), stream.New(dbtest.New(records(1)...)), store, "exports", "k")
		assert.True(t, errs.IsPermissionDenied(err), "got %v", err)
	})
}
