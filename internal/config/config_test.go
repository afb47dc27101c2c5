package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koustreak/userstream/internal/database"
	"github.com/koustreak/userstream/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, keys := range [][]string{envKeys.driver, envKeys.host, envKeys.port, envKeys.user, envKeys.password, envKeys.name, envKeys.table} {
		for _, k := range keys {
			t.Setenv(k, "")
		}
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	db := cfg.DatabaseConfig()
	assert.Equal(t, database.DriverMySQL, db.Driver)
	assert.Equal(t, "localhost", db.Host)
	assert.Equal(t, "root", db.User)
	assert.Equal(t, "ALX_prodev", db.Database)
	assert.True(t, db.UseDatabase)
	assert.Equal(t, "user_data", cfg.Table)
	assert.Equal(t, 50, cfg.Stream.BatchSize)
	assert.Equal(t, 100, cfg.Stream.PageSize)
	assert.Equal(t, uint64(16<<20), cfg.Export.PartSize)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "userstream.yaml", `
driver: postgres
database:
  host: db.internal
  port: 5433
  user: reader
  password: secret
  name: users
  ssl_mode: require
  connect_timeout: 3s
table: people
stream:
  batch_size: 10
  page_size: 20
log:
  level: debug
  format: console
export:
  endpoint: minio:9000
  bucket: exports
  part_size: 33554432
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, database.DriverPostgres, cfg.Driver)
	assert.Equal(t, Database{
		Host: "db.internal", Port: 5433, User: "reader", Password: "secret",
		Name: "users", UseDatabase: true, SSLMode: "require", ConnectTimeout: 3 * time.Second,
	}, cfg.Database)
	assert.Equal(t, "people", cfg.Table)
	assert.Equal(t, Stream{BatchSize: 10, PageSize: 20}, cfg.Stream)

	lc := cfg.LoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "console", lc.Format)

	fc := cfg.FilestoreConfig()
	assert.Equal(t, "minio:9000", fc.Endpoint)
	assert.Equal(t, "exports", fc.DefaultBucket)
	assert.Equal(t, uint64(32<<20), cfg.Export.PartSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "userstream.yaml", "database:\n  host: from-file\n  user: file-user\n")
	t.Setenv("DB_HOST", "from-env")
	t.Setenv("MYSQL_USER", "legacy-user")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_TABLE", "user_data_v2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Host)
	assert.Equal(t, "legacy-user", cfg.Database.User)
	assert.Equal(t, 3307, cfg.Database.Port)
	assert.Equal(t, "user_data_v2", cfg.Table)
}

func TestLoad_PrimaryEnvWinsOverLegacy(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_HOST", "primary")
	t.Setenv("MYSQL_HOST", "legacy")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.Database.Host)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "unknown key", file: "databse:\n  host: x\n"},
		{name: "bad yaml", file: "stream: [\n"},
		{name: "zero batch size", file: "stream:\n  batch_size: 0\n"},
		{name: "negative page size", file: "stream:\n  page_size: -1\n"},
		{name: "unknown driver", env: map[string]string{"DB_DRIVER": "oracle"}},
		{name: "bad port", env: map[string]string{"DB_PORT": "http"}},
		{name: "empty table", file: "table: \"\"\n"},
		{name: "part size below minimum", file: "export:\n  part_size: 1048576\n"},
		{name: "zero part size", file: "export:\n  part_size: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeFile(t, "c.yaml", tt.file)
			}

			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errs.IsInvalidInput(err))
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides a variable that exists, even when empty.
	require.NoError(t, os.Unsetenv("DB_NAME"))
	path := writeFile(t, ".env", "DB_NAME=from_dotenv\nDB_USER=dotenv_user\n")
	t.Setenv("DB_USER", "already_set")

	require.NoError(t, LoadEnv(path, filepath.Join(t.TempDir(), "missing.env")))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from_dotenv", cfg.Database.Name)
	assert.Equal(t, "already_set", cfg.Database.User)
}
