// Package fetch runs provider requests for a list of targets in bounded,
// paced batches. Providers apply per-IP burst limits, so full fan-out gets
// throttled; fully sequential fetching makes a catalogue pass too slow.
// Consecutive batches of a fixed width with a pause between them keep both
// sides happy.
package fetch

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
)

// Result pairs one target with its fetched value or failure.
type Result[T, R any] struct {
	Target T
	Value  R
	Err    error
}

// Stats summarizes one batched run for cycle reporting.
type Stats struct {
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// Batcher configures batched fetching. Pause is skipped when zero, which is
// how tests run without wall-clock delays; the clock is injectable for the
// same reason.
type Batcher struct {
	Width  int
	Pause  time.Duration
	Clock  clockwork.Clock
	Logger *slog.Logger
}

// Run partitions targets into consecutive batches of Width, fetches each
// batch concurrently, and pauses between batches. A failed target yields a
// Result with Err set and never aborts the batch or the run. Cancellation
// stops before the next batch; results from completed batches are returned
// so callers can persist partial progress.
func Run[T, R any](ctx context.Context, b Batcher, targets []T, fn func(context.Context, T) (R, error)) ([]Result[T, R], Stats) {
	width := b.Width
	if width <= 0 {
		width = 1
	}
	clk := b.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	start := clk.Now()
	results := make([]Result[T, R], 0, len(targets))
	var stats Stats

	for offset := 0; offset < len(targets); offset += width {
		if offset > 0 && b.Pause > 0 {
			if !pause(ctx, clk, b.Pause) {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		end := offset + width
		if end > len(targets) {
			end = len(targets)
		}
		batch := targets[offset:end]

		batchResults := make([]Result[T, R], len(batch))
		done := make(chan int, len(batch))
		for i, target := range batch {
			go func(i int, target T) {
				value, err := fn(ctx, target)
				batchResults[i] = Result[T, R]{Target: target, Value: value, Err: err}
				done <- i
			}(i, target)
		}
		for range batch {
			<-done
		}

		for _, r := range batchResults {
			if r.Err != nil {
				stats.Failed++
				if b.Logger != nil {
					b.Logger.Warn("target fetch failed", "error", r.Err)
				}
			} else {
				stats.Succeeded++
			}
			results = append(results, r)
		}
	}

	stats.Elapsed = clk.Since(start)
	return results, stats
}

// pause sleeps for d on the injected clock. Returns false when the context
// is cancelled first.
func pause(ctx context.Context, clk clockwork.Clock, d time.Duration) bool {
	timer := clk.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
