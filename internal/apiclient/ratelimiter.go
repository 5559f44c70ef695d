package apiclient

import (
	"sync"
	"time"
)

// rateLimiter implements a sliding one-minute window over the timestamps
// of the last N requests. Callers block in wait() until a slot is free;
// the window's mutex is never held while sleeping, so a caller waiting on
// the limit does not block an unrelated caller that only needs the key
// rotator (the window and the rotator are independently locked).
type rateLimiter struct {
	mu              sync.Mutex
	timestamps      []time.Time
	requestsPerMin  int
	burstLimit      int
	window          time.Duration
	burstSpacer     time.Duration
	lastRequestTime time.Time
}

func newRateLimiter(requestsPerMinute, burstLimit int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	if burstLimit <= 0 {
		burstLimit = requestsPerMinute
	}
	return &rateLimiter{
		requestsPerMin: requestsPerMinute,
		burstLimit:     burstLimit,
		window:         time.Minute,
		burstSpacer:    time.Second,
	}
}

// wait blocks, if necessary, until a request slot is available, then
// records the slot as taken. It never holds the mutex while sleeping.
func (l *rateLimiter) wait() {
	for {
		sleepFor, ready := l.checkSlot()
		if ready {
			return
		}
		time.Sleep(sleepFor)
	}
}

// checkSlot evicts stale timestamps, and either reserves a slot (returning
// ready=true) or reports how long the caller must sleep before retrying.
func (l *rateLimiter) checkSlot() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)
	kept := l.timestamps[:0]
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.timestamps = kept

	if len(l.timestamps) >= l.requestsPerMin {
		oldest := l.timestamps[0]
		return oldest.Add(l.window).Sub(now), false
	}

	if l.requestsPerMin > l.burstLimit && len(l.timestamps) >= l.burstLimit {
		if since := now.Sub(l.lastRequestTime); since < l.burstSpacer {
			return l.burstSpacer - since, false
		}
	}

	l.timestamps = append(l.timestamps, now)
	l.lastRequestTime = now
	return 0, true
}

// windowCount reports the number of requests currently counted in the
// active window, for health reporting.
func (l *rateLimiter) windowCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-l.window)
	count := 0
	for _, ts := range l.timestamps {
		if ts.After(cutoff) {
			count++
		}
	}
	return count
}
