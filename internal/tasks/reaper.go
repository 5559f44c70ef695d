package tasks

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trading-core/internal/statestore"
)

// DefaultMaxRunTime is 15x the default handler timeout (75 min at the
// default 5 min handler timeout), matching the reaper's documented default.
func DefaultMaxRunTime(handlerTimeout time.Duration) time.Duration {
	if handlerTimeout <= 0 {
		handlerTimeout = DefaultConfig().HandlerTimeout
	}
	return 15 * handlerTimeout
}

// ReapStartupStale returns every task still marked running with a
// started_at older than maxAge to pending, so work interrupted by a crash
// or unclean shutdown is picked back up. Must run once at process start,
// before any Ticker or Service worker begins claiming, so a reaped task
// cannot race a worker that is about to reclaim it for real.
func ReapStartupStale(store *statestore.Store, maxAge time.Duration, log zerolog.Logger) error {
	n, err := store.ReapStale(maxAge)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Warn().Int("count", n).Dur("max_age", maxAge).Msg("reaped stale running tasks back to pending")
	}
	return nil
}
