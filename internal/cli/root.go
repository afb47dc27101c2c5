// Package cli wires the userstream commands together.
package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/koustreak/userstream/internal/config"
	"github.com/koustreak/userstream/internal/database"
	"github.com/koustreak/userstream/internal/database/mysql"
	"github.com/koustreak/userstream/internal/database/postgres"
	"github.com/koustreak/userstream/internal/filestore"
	"github.com/koustreak/userstream/internal/filestore/minio"
	"github.com/koustreak/userstream/internal/logger"
	"github.com/koustreak/userstream/internal/stream"
	"github.com/spf13/cobra"
)

// ConnectorFactory builds the database connector for a config.
type ConnectorFactory func(cfg *database.Config) database.Connector

// StoreFactory opens the object store exports are written to.
type StoreFactory func(ctx context.Context, cfg *filestore.Config) (filestore.Store, error)

// DefaultConnector picks the driver package named by cfg.Driver.
func DefaultConnector(cfg *database.Config) database.Connector {
	if cfg.Driver == database.DriverPostgres {
		return postgres.New(cfg)
	}
	return mysql.New(cfg)
}

// DefaultStore connects to MinIO.
func DefaultStore(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
	return minio.New(ctx, cfg)
}

// App holds the state shared by all commands of one invocation.
type App struct {
	NewConnector ConnectorFactory
	NewStore     StoreFactory

	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

// New returns an App using the real drivers.
func New() *App {
	return &App{NewConnector: DefaultConnector, NewStore: DefaultStore}
}

// Execute runs the userstream command line. Canceling ctx stops the
// running command; open iterators are still closed on the way out.
func Execute(ctx context.Context) error {
	return New().Command().ExecuteContext(ctx)
}

// Command builds the root command and its subcommands.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "userstream",
		Short: "Stream the user table without loading it into memory",
		Long: `userstream reads the user_data table row by row, in batches or in
pages, and never holds more than one batch or page in memory.

Connection settings come from --config, a .env file and DB_* (or MYSQL_*)
environment variables.

Examples:
  userstream rows --limit 6
  userstream batches --size 50
  userstream process --size 50
  userstream pages --size 100
  userstream average
  userstream export --bucket exports --key users.jsonl`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to a YAML config file")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "Extra .env files to load (default .env)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error, disabled")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: json or console")

	root.AddCommand(
		a.rowsCmd(),
		a.batchesCmd(),
		a.processCmd(),
		a.pagesCmd(),
		a.averageCmd(),
		a.checkCmd(),
		a.exportCmd(),
	)
	return root
}

func (a *App) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnv(a.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	a.cfg = cfg

	lc := cfg.LoggerConfig()
	lc.Output = cmd.ErrOrStderr()
	log := logger.New(lc)
	logger.SetGlobal(log)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(log.WithContext(ctx))
	return nil
}

func (a *App) streamer() *stream.Streamer {
	return stream.New(a.NewConnector(a.cfg.DatabaseConfig()), stream.WithTable(a.cfg.Table))
}

// printer writes one JSON document per line.
type printer struct {
	enc *json.Encoder
}

func newPrinter(w io.Writer) *printer {
	return &printer{enc: json.NewEncoder(w)}
}

func (p *printer) print(v any) error {
	return p.enc.Encode(v)
}
