package cli

import (
	"fmt"
	"strconv"

	"github.com/koustreak/userstream/internal/export"
	"github.com/koustreak/userstream/internal/stream"
	"github.com/spf13/cobra"
)

func (a *App) rowsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "rows",
		Short: "Print every row as a JSON line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0, got %d", limit)
			}
			out := newPrinter(cmd.OutOrStdout())
			it := a.streamer().Rows(cmd.Context())
			defer it.Close()

			for n := 0; (limit == 0 || n < limit) && it.Next(); n++ {
				if err := out.print(it.Value()); err != nil {
					return err
				}
			}
			return it.Err()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Stop after this many rows (0 prints all)")
	return cmd
}

func (a *App) batchesCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Print each batch as a JSON array on its own line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			it, err := a.streamer().Batches(cmd.Context(), a.batchSize(cmd, size))
			if err != nil {
				return err
			}
			defer it.Close()

			out := newPrinter(cmd.OutOrStdout())
			for it.Next() {
				if err := out.print(it.Value()); err != nil {
					return err
				}
			}
			return it.Err()
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "Rows per batch (default from config)")
	return cmd
}

func (a *App) processCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "process",
		Short: fmt.Sprintf("Print users older than %d, reading in batches", stream.ProcessingThreshold),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := newPrinter(cmd.OutOrStdout())
			return a.streamer().BatchProcessing(cmd.Context(), a.batchSize(cmd, size), func(r stream.Row) error {
				return out.print(r)
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "Rows per batch (default from config)")
	return cmd
}

func (a *App) pagesCmd() *cobra.Command {
	var (
		size, offset int
		once         bool
	)
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Print each page as a JSON array on its own line",
		Long: `pages fetches the table one LIMIT/OFFSET query at a time. No connection
is held between pages, so an interrupted run can resume with --offset.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("size") {
				size = a.cfg.Stream.PageSize
			}
			s := a.streamer()
			out := newPrinter(cmd.OutOrStdout())

			if once {
				page, err := s.Paginate(cmd.Context(), size, offset)
				if err != nil {
					return err
				}
				return out.print(page)
			}

			it, err := s.LazyPaginateFrom(cmd.Context(), size, offset)
			if err != nil {
				return err
			}
			defer it.Close()
			for it.Next() {
				if err := out.print(it.Value()); err != nil {
					return err
				}
			}
			return it.Err()
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "Rows per page (default from config)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Row offset to start at")
	cmd.Flags().BoolVar(&once, "once", false, "Fetch a single page and stop")
	return cmd
}

func (a *App) averageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "average",
		Short: "Print the average user age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			avg, err := a.streamer().AverageAge(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Average age of users: %s\n", formatAverage(avg))
			return err
		},
	}
}

// formatAverage always shows a fractional part: 27.75, 30.0, 0.0.
func formatAverage(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if v == float64(int64(v)) {
		s += ".0"
	}
	return s
}

func (a *App) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the table exists with the expected columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := a.streamer()
			if err := s.Check(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "table %s is ready\n", s.Table())
			return err
		},
	}
}

func (a *App) exportCmd() *cobra.Command {
	var bucket, key string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Stream the table into object storage as JSON Lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc := a.cfg.FilestoreConfig()
			if bucket == "" {
				bucket = fc.DefaultBucket
			}

			store, err := a.NewStore(cmd.Context(), fc)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := export.JSONL(cmd.Context(), a.streamer(), store, bucket, key,
				export.WithPartSize(a.cfg.Export.PartSize))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s/%s\n", res.Rows, bucket, key)
			return err
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "Target bucket (default export.bucket from config)")
	cmd.Flags().StringVar(&key, "key", "users.jsonl", "Object key")
	return cmd
}

// batchSize resolves an unset --size to the configured default. Explicit
// non-positive values pass through and are rejected by the streamer.
func (a *App) batchSize(cmd *cobra.Command, flag int) int {
	if !cmd.Flags().Changed("size") {
		return a.cfg.Stream.BatchSize
	}
	return flag
}
