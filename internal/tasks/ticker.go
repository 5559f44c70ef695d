package tasks

import (
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aristath/trading-core/internal/markethours"
	"github.com/aristath/trading-core/internal/statestore"
)

// TickerConfig tunes the control plane's periodic submission loop.
type TickerConfig struct {
	// TickInterval is the master cadence at which due tasks are
	// recomputed; individual task due-ness is still governed by each
	// TaskSpec's own FrequencySeconds. Default 10s.
	TickInterval time.Duration
	// MarketGatedTypes names task types that are skipped (silently, no
	// task created) while MarketPredicate reports the market closed.
	MarketGatedTypes map[string]bool
	// MarketPredicate is consulted only for types in MarketGatedTypes.
	// Nil disables gating entirely.
	MarketPredicate *markethours.Predicate
}

// DefaultTickerConfig matches SPEC_FULL §4.5's control-plane defaults: no
// market-gated types, a 10s master tick.
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{TickInterval: 10 * time.Second}
}

// Ticker reads background_tasks_config on a fixed cadence and submits a new
// task for each spec whose frequency has elapsed, via the Service it wraps.
// The first tick after Start submits every enabled spec immediately
// (warm-up), matching the "due on first check" contract.
type Ticker struct {
	store *statestore.Store
	svc   *Service
	cfg   TickerConfig
	log   zerolog.Logger
	sched cron.Schedule

	mu         sync.Mutex
	lastSubmit map[string]time.Time
	stop       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

// NewTicker builds a Ticker over store/svc. cfg.TickInterval <= 0 uses the
// default.
func NewTicker(store *statestore.Store, svc *Service, cfg TickerConfig, log zerolog.Logger) *Ticker {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickerConfig().TickInterval
	}
	sched, err := cron.ParseStandard("@every " + cfg.TickInterval.String())
	if err != nil {
		// TickInterval is always a valid Go duration string, which
		// "@every" always accepts; this cannot fail in practice.
		sched = cron.ConstantDelaySchedule{Delay: cfg.TickInterval}
	}
	return &Ticker{
		store:      store,
		svc:        svc,
		cfg:        cfg,
		log:        log.With().Str("component", "task_ticker").Logger(),
		sched:      sched,
		lastSubmit: make(map[string]time.Time),
		stop:       make(chan struct{}),
	}
}

// Start runs the ticker loop in a background goroutine. The first pass
// happens immediately, before the first computed delay.
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
}

// Stop halts the ticker loop and waits for it to exit.
func (t *Ticker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	t.wg.Wait()
}

func (t *Ticker) run() {
	defer t.wg.Done()

	t.tick(time.Now().UTC())

	next := t.sched.Next(time.Now())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-t.stop:
			return
		case now := <-timer.C:
			t.tick(now.UTC())
			next = t.sched.Next(now)
			timer.Reset(time.Until(next))
		}
	}
}

// tick examines every configured task spec and submits one task per spec
// that is due, in priority order (highest first) so a burst of
// simultaneously-due specs enqueues its most important work first.
func (t *Ticker) tick(now time.Time) {
	specs, err := t.store.ListTaskSpecs()
	if err != nil {
		t.log.Error().Err(err).Msg("failed to list task specs")
		return
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Priority > specs[j].Priority })

	for _, spec := range specs {
		if !spec.Enabled {
			continue
		}
		if !t.due(spec, now) {
			continue
		}
		if t.gated(spec, now) {
			t.log.Debug().Str("task_name", spec.TaskName).Msg("skipped: market closed")
			continue
		}

		if _, err := t.svc.Submit(spec.TaskName, map[string]interface{}{"use_claude": spec.UseClaude}, spec.Priority, nil, 0); err != nil {
			t.log.Error().Err(err).Str("task_name", spec.TaskName).Msg("periodic submit failed")
			continue
		}
		t.markSubmitted(spec.TaskName, now)
	}
}

// due reports whether spec's frequency has elapsed since its last
// submission. A spec never submitted before is due immediately (warm-up).
func (t *Ticker) due(spec statestore.TaskSpec, now time.Time) bool {
	t.mu.Lock()
	last, ok := t.lastSubmit[spec.TaskName]
	t.mu.Unlock()
	if !ok {
		return true
	}
	return now.Sub(last) >= time.Duration(spec.FrequencySeconds)*time.Second
}

func (t *Ticker) gated(spec statestore.TaskSpec, now time.Time) bool {
	if t.cfg.MarketPredicate == nil || !t.cfg.MarketGatedTypes[spec.TaskName] {
		return false
	}
	return !t.cfg.MarketPredicate.IsOpen(now)
}

func (t *Ticker) markSubmitted(taskName string, now time.Time) {
	t.mu.Lock()
	t.lastSubmit[taskName] = now
	t.mu.Unlock()
}
