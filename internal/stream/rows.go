package stream

import (
	"context"

	"github.com/koustreak/userstream/internal/database"
)

// RowIterator yields one normalized row per Next.
type RowIterator = CursorIterator[Row]

// Rows streams the whole table one row at a time over a single result set.
// Nothing is opened until the first Next.
func (s *Streamer) Rows(ctx context.Context) *RowIterator {
	return newCursorIterator(ctx, s, "rows", s.selectQuery(rowColumns...), fetchRow)
}

func fetchRow(rows database.Rows) (Row, bool, error) {
	if !rows.Next() {
		return Row{}, false, rows.Err()
	}
	r, err := scanRow(rows)
	if err != nil {
		return Row{}, false, err
	}
	return r, true, nil
}
