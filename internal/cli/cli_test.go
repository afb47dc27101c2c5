package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/koustreak/userstream/internal/database"
	"github.com/koustreak/userstream/internal/database/dbtest"
	"github.com/koustreak/userstream/internal/errs"
	"github.com/koustreak/userstream/internal/filestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *dbtest.Connector {
	return dbtest.New(
		dbtest.Record{UserID: "a", Name: "Ada", Email: "ada@example.com", Age: 30.0},
		dbtest.Record{UserID: "b", Name: "Bo", Email: "bo@example.com", Age: 25.5},
		dbtest.Record{UserID: "c", Name: "Cy", Email: "cy@example.com", Age: 19},
	)
}

func run(t *testing.T, c *dbtest.Connector, args ...string) (string, error) {
	t.Helper()
	return runWith(t, context.Background(), c, nil, args...)
}

// runWith executes args under ctx. A nil store makes every export fail to
// connect.
func runWith(t *testing.T, ctx context.Context, c *dbtest.Connector, store filestore.Store, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DB_TABLE", "")

	app := New()
	app.NewConnector = func(*database.Config) database.Connector { return c }
	app.NewStore = func(context.Context, *filestore.Config) (filestore.Store, error) {
		if store == nil {
			return nil, errs.New(errs.ErrKindConnectionFailed, "no object storage in tests")
		}
		return store, nil
	}

	var out bytes.Buffer
	root := app.Command()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "--log-level", "disabled"))

	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestRowsCommand(t *testing.T) {
	c := sampleTable()
	out, err := run(t, c, "rows", "--limit", "2")
	require.NoError(t, err)

	assert.Equal(t,
		`{"user_id":"a","name":"Ada","email":"ada@example.com","age":30}`+"\n"+
			`{"user_id":"b","name":"Bo","email":"bo@example.com","age":25.5}`+"\n",
		out)
	assert.Equal(t, c.Opened(), c.Closed())
}

func TestBatchesCommand(t *testing.T) {
	out, err := run(t, sampleTable(), "batches", "--size", "2")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], `[{"user_id":"a"`))
	assert.True(t, strings.HasPrefix(lines[1], `[{"user_id":"c"`))
}

func TestBatchesCommand_InvalidSize(t *testing.T) {
	for _, size := range []string{"0", "-5"} {
		t.Run(size, func(t *testing.T) {
			c := sampleTable()
			_, err := run(t, c, "batches", "--size", size)

			assert.True(t, errs.IsInvalidInput(err), "got %v", err)
			assert.Zero(t, c.Attempts())
		})
	}
}

func TestProcessCommand(t *testing.T) {
	out, err := run(t, sampleTable(), "process", "--size", "1")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"user_id":"a"`)
	assert.Contains(t, lines[1], `"user_id":"b"`)
}

func TestPagesCommand(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		pages int
		first string
	}{
		{"all pages", []string{"pages", "--size", "2"}, 2, `[{"user_id":"a"`},
		{"resume", []string{"pages", "--size", "2", "--offset", "2"}, 1, `[{"user_id":"c"`},
		{"single page", []string{"pages", "--size", "1", "--offset", "1", "--once"}, 1, `[{"user_id":"b"`},
		{"single page past the end", []string{"pages", "--size", "5", "--offset", "10", "--once"}, 1, `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, sampleTable(), tt.args...)
			require.NoError(t, err)

			lines := strings.Split(strings.TrimSpace(out), "\n")
			assert.Len(t, lines, tt.pages)
			assert.True(t, strings.HasPrefix(lines[0], tt.first), "got %s", lines[0])
		})
	}
}

func TestAverageCommand(t *testing.T) {
	c := dbtest.New(
		dbtest.Record{UserID: "a", Age: 30.0},
		dbtest.Record{UserID: "b", Age: 25.5},
	)
	out, err := run(t, c, "average")
	require.NoError(t, err)
	assert.Equal(t, "Average age of users: 27.75\n", out)

	out, err = run(t, dbtest.New(), "average")
	require.NoError(t, err)
	assert.Equal(t, "Average age of users: 0.0\n", out)
}

func TestCheckCommand(t *testing.T) {
	out, err := run(t, sampleTable(), "check")
	require.NoError(t, err)
	assert.Equal(t, "table user_data is ready\n", out)

	broken := sampleTable()
	broken.Columns = []string{"user_id"}
	_, err = run(t, broken, "check")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestExportCommand_StoreUnavailable(t *testing.T) {
	c := sampleTable()
	_, err := run(t, c, "export", "--bucket", "exports")

	assert.True(t, errs.IsConnectionFailed(err))
	assert.Zero(t, c.Attempts())
}

// recordingStore accepts uploads and remembers the options they carried.
type recordingStore struct {
	data []byte
	opts filestore.PutOptions
}

func (s *recordingStore) Ping(context.Context) error                 { return nil }
func (s *recordingStore) Close() error                               { return nil }
func (s *recordingStore) EnsureBucket(context.Context, string) error { return nil }

func (s *recordingStore) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, opts filestore.PutOptions) (*filestore.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	s.data, s.opts = data, opts
	return &filestore.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(data))}, nil
}

func (s *recordingStore) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	return &filestore.ObjectInfo{Bucket: bucket, Key: key, Size: int64(len(s.data))}, nil
}

func TestExportCommand(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		wantPart uint64
	}{
		{name: "default part size", wantPart: 16 << 20},
		{name: "configured part size", file: "export:\n  part_size: 8388608\n", wantPart: 8 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := sampleTable()
			store := &recordingStore{}
			args := []string{"export", "--bucket", "exports", "--key", "u.jsonl"}
			if tt.file != "" {
				path := filepath.Join(t.TempDir(), "c.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.file), 0o600))
				args = append(args, "--config", path)
			}

			out, err := runWith(t, context.Background(), c, store, args...)
			require.NoError(t, err)

			assert.Equal(t, "exported 3 rows to exports/u.jsonl\n", out)
			assert.Equal(t, tt.wantPart, store.opts.PartSize)
			assert.Equal(t, "user_data", store.opts.Metadata["table"])
			assert.Equal(t, 3, strings.Count(string(store.data), "\n"))
			assert.Equal(t, c.Opened(), c.Closed())
		})
	}
}

func TestExecute_CanceledContext(t *testing.T) {
	c := sampleTable()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runWith(t, ctx, c, nil, "rows")
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err), "got %v", err)
	assert.Equal(t, c.Opened(), c.Closed())
	assert.Zero(t, c.OpenResultSets())
}

func TestFormatAverage(t *testing.T) {
	assert.Equal(t, "27.75", formatAverage(27.75))
	assert.Equal(t, "30.0", formatAverage(30))
	assert.Equal(t, "0.0", formatAverage(0))
}
