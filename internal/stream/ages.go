package stream

import (
	"context"

	"github.com/koustreak/userstream/internal/database"
)

// AgeIterator yields the age column alone.
type AgeIterator = CursorIterator[Age]

// Ages streams only the age column, one value per Next.
func (s *Streamer) Ages(ctx context.Context) *AgeIterator {
	b := database.Select(s.table, s.connector.Dialect()).Columns(colAge)
	return newCursorIterator(ctx, s, "ages", b, fetchAge)
}

func fetchAge(rows database.Rows) (Age, bool, error) {
	if !rows.Next() {
		return Age{}, false, rows.Err()
	}
	a, err := scanAge(rows)
	if err != nil {
		return Age{}, false, err
	}
	return a, true, nil
}

// AverageAge returns the mean age over the table, keeping only a running
// sum and count. An empty table averages to 0.
func (s *Streamer) AverageAge(ctx context.Context) (float64, error) {
	it := s.Ages(ctx)
	defer it.Close()

	var (
		sum   float64
		count int
	)
	for it.Next() {
		sum += it.Value().Float64()
		count++
	}
	if err := it.Err(); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	avg := sum / float64(count)
	s.logger(ctx, "average").DebugWith("average computed", map[string]interface{}{
		"rows":    count,
		"average": avg,
	})
	return avg, nil
}
