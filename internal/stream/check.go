package stream

import (
	"context"
	"strings"

	"github.com/koustreak/userstream/internal/database"
	"github.com/koustreak/userstream/internal/errs"
)

// Check verifies that the table exists and carries every column the
// streamers select. A missing table is reported as a connection failure,
// missing columns as invalid input.
func (s *Streamer) Check(ctx context.Context) (err error) {
	conn, err := s.connector.Connect(ctx)
	if err != nil {
		return wrap(errs.ErrKindConnectionFailed, "failed to open connection", err)
	}
	defer func() {
		if cerr := conn.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = wrap(errs.ErrKindConnectionFailed, "failed to close connection", cerr)
		}
	}()

	cols, err := database.TableColumns(ctx, conn, s.connector.Dialect(), s.table)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return errs.Newf(errs.ErrKindConnectionFailed, "table %q does not exist", s.table)
	}

	have := make(map[string]bool, len(cols))
	for _, c := range cols {
		have[strings.ToLower(c.Name)] = true
	}
	var missing []string
	for _, c := range rowColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return errs.Newf(errs.ErrKindInvalidInput, "table %q is missing columns: %s", s.table, strings.Join(missing, ", "))
	}

	s.logger(ctx, "check").DebugWith("table verified", map[string]interface{}{"columns": len(cols)})
	return nil
}
