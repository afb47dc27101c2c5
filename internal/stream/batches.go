package stream

import (
	"context"

	"github.com/koustreak/userstream/internal/database"
)

// BatchIterator yields up to size rows per Next. Only the last batch may be
// shorter; a batch is never empty.
type BatchIterator = CursorIterator[[]Row]

// Batches streams the table in groups of at most size rows, draining one
// server-side result set for the iterator's whole lifetime. A non-positive
// size is rejected before any connection is attempted.
func (s *Streamer) Batches(ctx context.Context, size int) (*BatchIterator, error) {
	if err := checkSize("batch size", size); err != nil {
		return nil, err
	}
	return newCursorIterator(ctx, s, "batches", s.selectQuery(rowColumns...), fetchBatch(size)), nil
}

func fetchBatch(size int) fetchFunc[[]Row] {
	return func(rows database.Rows) ([]Row, bool, error) {
		batch := make([]Row, 0, size)
		for len(batch) < size && rows.Next() {
			r, err := scanRow(rows)
			if err != nil {
				return nil, false, err
			}
			batch = append(batch, r)
		}
		if err := rows.Err(); err != nil {
			return nil, false, err
		}
		return batch, len(batch) > 0, nil
	}
}

// ProcessingThreshold is the age BatchProcessing filters on: only rows
// strictly older are passed on.
const ProcessingThreshold = 25

// BatchProcessing walks the table in batches of size and calls fn for
// every row whose age is over ProcessingThreshold. An error from fn stops
// the walk and is returned as is.
func (s *Streamer) BatchProcessing(ctx context.Context, size int, fn func(Row) error) error {
	it, err := s.Batches(ctx, size)
	if err != nil {
		return err
	}
	defer it.Close()

	for it.Next() {
		for _, r := range it.Value() {
			if r.Age.Float64() <= ProcessingThreshold {
				continue
			}
			if err := fn(r); err != nil {
				return err
			}
		}
	}
	return it.Err()
}
