package feed

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ForEachSymbol fetches symbols concurrently with at most limit in
// flight and collects the per-symbol records. A symbol returning
// (nil, nil) is skipped. Partial results are expected: an error is
// returned only when no symbol produced a record, and it is the first
// per-symbol error seen.
func ForEachSymbol(ctx context.Context, symbols []string, limit int, fn func(ctx context.Context, symbol string) (*Record, error)) ([]Record, error) {
	if limit <= 0 {
		limit = 4
	}
	var (
		mu       sync.Mutex
		records  []Record
		firstErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, sym := range symbols {
		g.Go(func() error {
			rec, err := fn(gctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return nil // per-symbol failures never abort the group
			}
			if rec != nil {
				records = append(records, *rec)
			}
			return nil
		})
	}
	g.Wait()
	if len(records) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return records, nil
}
