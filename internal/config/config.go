// Package config loads userstream settings from a YAML file, a .env file
// and the process environment, in that order of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/koustreak/userstream/internal/database"
	"github.com/koustreak/userstream/internal/errs"
	"github.com/koustreak/userstream/internal/export"
	"github.com/koustreak/userstream/internal/filestore"
	"github.com/koustreak/userstream/internal/logger"
	"go.yaml.in/yaml/v3"
)

// Config is the full application configuration.
type Config struct {
	Driver   database.Driver `yaml:"driver"`
	Database Database        `yaml:"database"`
	Table    string          `yaml:"table"`
	Stream   Stream          `yaml:"stream"`
	Log      Log             `yaml:"log"`
	Export   Export          `yaml:"export"`
}

// Database holds connection settings.
type Database struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Name           string        `yaml:"name"`
	UseDatabase    bool          `yaml:"use_database"`
	SSLMode        string        `yaml:"ssl_mode"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Stream holds the default sizes used by the CLI.
type Stream struct {
	BatchSize int `yaml:"batch_size"`
	PageSize  int `yaml:"page_size"`
}

// Log mirrors logger.Config.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Export holds the object storage target for JSONL exports.
type Export struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	// PartSize is the multipart chunk in bytes, and the most an export
	// buffers at once.
	PartSize uint64 `yaml:"part_size"`
}

// Default returns the configuration used when nothing else is given. The
// port is left at 0 so each driver applies its own default.
func Default() *Config {
	db := database.DefaultConfig()
	return &Config{
		Driver: db.Driver,
		Database: Database{
			Host:           db.Host,
			User:           db.User,
			Password:       db.Password,
			Name:           db.Database,
			UseDatabase:    db.UseDatabase,
			SSLMode:        db.SSLMode,
			ConnectTimeout: db.ConnectTimeout,
		},
		Table:  "user_data",
		Stream: Stream{BatchSize: 50, PageSize: 100},
		Log:    Log{Level: "info", Format: "json"},
		Export: Export{Endpoint: "localhost:9000", PartSize: export.DefaultPartSize},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config file", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to parse config file", err)
	}
	return nil
}

// LoadEnv loads .env style files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// With no arguments it looks for ".env" in the working directory.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return errs.Wrap(errs.ErrKindInvalidInput, "failed to load "+f, err)
		}
	}
	return nil
}

// envKeys lists, per setting, the variables consulted in order. The MYSQL_
// names are kept for setups written against the original scripts.
var envKeys = struct {
	driver, host, port, user, password, name, table []string
}{
	driver:   []string{"DB_DRIVER"},
	host:     []string{"DB_HOST", "MYSQL_HOST"},
	port:     []string{"DB_PORT", "MYSQL_PORT"},
	user:     []string{"DB_USER", "MYSQL_USER"},
	password: []string{"DB_PASSWORD", "MYSQL_PASSWORD"},
	name:     []string{"DB_NAME"},
	table:    []string{"DB_TABLE"},
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(keys []string) (string, bool) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := get(envKeys.driver); ok {
		c.Driver = database.Driver(strings.ToLower(v))
	}
	if v, ok := get(envKeys.host); ok {
		c.Database.Host = v
	}
	if v, ok := get(envKeys.port); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "invalid database port "+strconv.Quote(v), err)
		}
		c.Database.Port = port
	}
	if v, ok := get(envKeys.user); ok {
		c.Database.User = v
	}
	if v, ok := get(envKeys.password); ok {
		c.Database.Password = v
	}
	if v, ok := get(envKeys.name); ok {
		c.Database.Name = v
	}
	if v, ok := get(envKeys.table); ok {
		c.Table = v
	}
	return nil
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.Table == "" {
		return errs.New(errs.ErrKindInvalidInput, "table is required")
	}
	if c.Stream.BatchSize <= 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "stream.batch_size must be > 0, got %d", c.Stream.BatchSize)
	}
	if c.Stream.PageSize <= 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "stream.page_size must be > 0, got %d", c.Stream.PageSize)
	}
	if c.Export.PartSize < export.MinPartSize {
		return errs.Newf(errs.ErrKindInvalidInput, "export.part_size must be >= %d, got %d", export.MinPartSize, c.Export.PartSize)
	}
	return c.DatabaseConfig().Validate()
}

// DatabaseConfig converts the database section for the drivers.
func (c *Config) DatabaseConfig() *database.Config {
	return &database.Config{
		Driver:         c.Driver,
		Host:           c.Database.Host,
		Port:           c.Database.Port,
		User:           c.Database.User,
		Password:       c.Database.Password,
		Database:       c.Database.Name,
		UseDatabase:    c.Database.UseDatabase,
		SSLMode:        c.Database.SSLMode,
		ConnectTimeout: c.Database.ConnectTimeout,
	}
}

// LoggerConfig converts the log section.
func (c *Config) LoggerConfig() *logger.Config {
	lc := logger.DefaultConfig()
	if c.Log.Level != "" {
		lc.Level = c.Log.Level
	}
	if c.Log.Format != "" {
		lc.Format = c.Log.Format
	}
	return lc
}

// FilestoreConfig converts the export section.
func (c *Config) FilestoreConfig() *filestore.Config {
	fc := filestore.DefaultConfig(c.Export.Endpoint, c.Export.AccessKey, c.Export.SecretKey)
	fc.UseSSL = c.Export.UseSSL
	fc.Region = c.Export.Region
	fc.DefaultBucket = c.Export.Bucket
	return fc
}
