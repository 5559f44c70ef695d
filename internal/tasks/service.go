package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/trading-core/internal/apierrors"
	"github.com/aristath/trading-core/internal/events"
	"github.com/aristath/trading-core/internal/statestore"
)

// errShutdownAbandoned marks a task interrupted by Stop's cancellation of
// rootCtx, as opposed to a genuine per-task HandlerTimeout expiry. It is
// never written to the store: the task row stays running and is reclaimed
// by ReapStartupStale on the next boot, per the "cancelled mid-flight tasks
// are not marked failed" contract.
var errShutdownAbandoned = errors.New("tasks: abandoned on shutdown")

// forceShutdownWait bounds how long Stop waits for queue workers to notice
// a forced rootCtx cancellation before giving up, so a handler that never
// honors ctx.Done() cannot hang shutdown indefinitely.
const forceShutdownWait = 5 * time.Second

// Config tunes the Service's retry and shutdown behavior.
type Config struct {
	// HandlerTimeout bounds a single handler invocation. Default 5 minutes.
	HandlerTimeout time.Duration
	// BaseRetryDelay and MaxRetryDelay drive the reschedule backoff:
	// min(cap, base*2^(attempts-1)).
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	// ShutdownGrace is how long a running handler is given to finish
	// before its context is cancelled. Default 30s.
	ShutdownGrace time.Duration
	// MaxExecutionHistory bounds ExecutionRecord retention per task_name.
	MaxExecutionHistory int
}

// DefaultConfig matches SPEC_FULL §4.5's stated defaults.
func DefaultConfig() Config {
	return Config{
		HandlerTimeout:      5 * time.Minute,
		BaseRetryDelay:      time.Second,
		MaxRetryDelay:       10 * time.Minute,
		ShutdownGrace:       30 * time.Second,
		MaxExecutionHistory: statestore.DefaultExecutionHistoryLimit,
	}
}

// Service is the task data plane: submit persists, and one sequential
// worker per queue_key claims, executes, and records results. Workers for
// distinct queue keys run concurrently; within one queue, execution is
// strictly sequential, per §4.5/§5.
type Service struct {
	store    *statestore.Store
	registry *Registry
	cfg      Config
	log      zerolog.Logger
	emitter  *events.Manager

	mu        sync.Mutex
	workers   map[string]chan struct{} // queue_key -> wake signal
	stopOnce  sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
	rootCtx   context.Context
	rootClose context.CancelFunc
}

// New builds a Service over store, dispatching claimed tasks to handlers
// registered in registry.
func New(store *statestore.Store, registry *Registry, cfg Config, emitter *events.Manager, log zerolog.Logger) *Service {
	if cfg.HandlerTimeout <= 0 {
		cfg = DefaultConfig()
	}
	rootCtx, rootClose := context.WithCancel(context.Background())
	return &Service{
		store:     store,
		registry:  registry,
		cfg:       cfg,
		log:       log.With().Str("component", "tasks").Logger(),
		emitter:   emitter,
		workers:   make(map[string]chan struct{}),
		stop:      make(chan struct{}),
		rootCtx:   rootCtx,
		rootClose: rootClose,
	}
}

// Submit persists a new task and ensures its queue has a running worker.
func (s *Service) Submit(taskType string, payload map[string]interface{}, priority int, scheduleAt *time.Time, maxAttempts int) (string, error) {
	task := statestore.Task{
		Type:        taskType,
		Payload:     payload,
		Priority:    priority,
		MaxAttempts: maxAttempts,
	}
	if scheduleAt != nil {
		task.ScheduledAt = *scheduleAt
	}
	if task.MaxAttempts == 0 {
		task.MaxAttempts = 3
	}

	id, err := s.store.Enqueue(task)
	if err != nil {
		return "", err
	}

	s.emitter.EmitTyped(events.TaskSubmitted, "tasks", &events.TaskEventData{TaskID: id, TaskType: taskType, QueueKey: task.QueueKey})
	s.ensureWorker(queueKeyOf(task))
	return id, nil
}

func queueKeyOf(t statestore.Task) string {
	if t.QueueKey != "" {
		return t.QueueKey
	}
	return t.Type
}

// ensureWorker starts a worker goroutine for queueKey if one is not
// already running.
func (s *Service) ensureWorker(queueKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workers[queueKey]; ok {
		return
	}
	wake := make(chan struct{}, 1)
	s.workers[queueKey] = wake
	s.wg.Add(1)
	go s.runQueue(queueKey, wake)
}

// runQueue loops claim -> execute -> record for one queue_key until Stop.
func (s *Service) runQueue(queueKey string, wake <-chan struct{}) {
	defer s.wg.Done()

	poll := time.NewTicker(time.Second)
	defer poll.Stop()

	for {
		for s.claimAndExecute(queueKey) {
			select {
			case <-s.stop:
				return
			default:
			}
		}

		select {
		case <-s.stop:
			return
		case <-wake:
		case <-poll.C:
		}
	}
}

// claimAndExecute claims and runs one task from queueKey, returning true
// if a task was found (so the caller should immediately try again).
func (s *Service) claimAndExecute(queueKey string) bool {
	task, err := s.store.ClaimNext(queueKey)
	if err != nil {
		s.log.Error().Err(err).Str("queue_key", queueKey).Msg("claim failed")
		return false
	}
	if task == nil {
		return false
	}

	s.execute(*task)
	return true
}

func (s *Service) execute(task statestore.Task) {
	handler := s.registry.Get(task.Type)
	if handler == nil {
		noHandlerErr := fmt.Errorf("no handler registered for task type %q", task.Type)
		rec := statestore.ExecutionRecord{
			TaskName:      task.Type,
			TaskID:        task.ID,
			ExecutionType: "scheduled",
			Timestamp:     time.Now(),
			Status:        "failed",
			Error:         noHandlerErr.Error(),
		}
		s.recordAndFail(task, noHandlerErr, &rec, true)
		return
	}

	ctx, cancel := context.WithTimeout(s.rootCtx, s.cfg.HandlerTimeout)
	defer cancel()

	start := time.Now()
	result, err := s.invoke(ctx, handler, task)
	duration := time.Since(start)

	rec := statestore.ExecutionRecord{
		TaskName:        task.Type,
		TaskID:          task.ID,
		ExecutionType:   "scheduled",
		Timestamp:       start,
		DurationSeconds: duration.Seconds(),
	}

	switch {
	case errors.Is(err, errShutdownAbandoned):
		s.log.Warn().Str("task_id", task.ID).Str("task_type", task.Type).
			Msg("task abandoned mid-flight by shutdown; left running for the startup reaper")
	case err == nil && result.Skipped:
		rec.Status = "skipped"
		rec.Error = result.Reason
		s.finish(task, rec, func() error { return s.store.MarkCompleted(task.ID) })
	case err == nil:
		rec.Status = "completed"
		s.finish(task, rec, func() error { return s.store.MarkCompleted(task.ID) })
		s.emitter.EmitTyped(events.TaskCompleted, "tasks", &events.TaskEventData{TaskID: task.ID, TaskType: task.Type, QueueKey: task.QueueKey, Attempt: task.Attempts + 1})
	case apierrors.NonRetryable(err):
		// Non-retryable: terminal failure regardless of attempts remaining.
		rec.Status = "failed"
		rec.Error = err.Error()
		s.recordAndFail(task, err, &rec, true)
	default:
		// Retryable (including timeout): reschedule with backoff while
		// attempts remain, else terminal failure.
		rec.Status = "failed"
		rec.Error = err.Error()
		s.recordAndFail(task, err, &rec, false)
	}
}

func (s *Service) invoke(ctx context.Context, handler Handler, task statestore.Task) (result Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task handler panic: %v", p)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		result, err = handler(ctx, task)
	}()

	select {
	case <-done:
		return result, err
	case <-ctx.Done():
		if s.rootCtx.Err() != nil {
			// ctx is derived from rootCtx, so this fires both on a genuine
			// per-task deadline and on Stop's shutdown cancellation.
			// rootCtx.Err() tells them apart: shutdown abandons the task
			// without waiting for the handler goroutine to return, since a
			// handler that ignores ctx.Done() must not hang Stop.
			return Result{}, errShutdownAbandoned
		}
		<-done
		if err == nil {
			err = apierrors.NewTimeoutError(task.Type)
		}
		return result, err
	}
}

// recordAndFail writes the execution record (if provided) and either
// reschedules the task with backoff or moves it to the terminal failed
// state. terminal forces the failed state even if attempts remain, for
// non-retryable errors.
func (s *Service) recordAndFail(task statestore.Task, handlerErr error, rec *statestore.ExecutionRecord, terminal bool) {
	attempts := task.Attempts + 1
	var reschedule *time.Time
	if !terminal && attempts < task.MaxAttempts {
		delay := backoffDelay(s.cfg.BaseRetryDelay, s.cfg.MaxRetryDelay, attempts)
		next := time.Now().UTC().Add(delay)
		reschedule = &next
	}

	if err := s.store.MarkFailed(task.ID, handlerErr.Error(), reschedule); err != nil {
		s.log.Error().Err(err).Str("task_id", task.ID).Msg("failed to record task failure")
	}

	if rec != nil {
		if err := s.store.RecordExecution(*rec, s.cfg.MaxExecutionHistory); err != nil {
			s.log.Error().Err(err).Msg("failed to record execution history")
		}
	}

	if reschedule == nil {
		s.emitter.EmitTyped(events.TaskFailed, "tasks", &events.TaskEventData{TaskID: task.ID, TaskType: task.Type, QueueKey: task.QueueKey, Attempt: attempts, Error: handlerErr.Error()})
		s.emitter.EmitTyped(events.ExecutionFailed, "tasks", &events.ExecutionFailedEventData{TaskName: task.Type, Error: handlerErr.Error()})
	}
}

func (s *Service) finish(task statestore.Task, rec statestore.ExecutionRecord, commit func() error) {
	if err := commit(); err != nil {
		s.log.Error().Err(err).Str("task_id", task.ID).Msg("failed to commit task completion")
	}
	if err := s.store.RecordExecution(rec, s.cfg.MaxExecutionHistory); err != nil {
		s.log.Error().Err(err).Msg("failed to record execution history")
	}
}

// backoffDelay computes min(maxDelay, base*2^(attempts-1)), the
// reschedule backoff used between failed attempts.
func backoffDelay(base, maxDelay time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := float64(base) * math.Pow(2, float64(attempts-1))
	if maxDelay > 0 && delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}

// Wake nudges the worker for queueKey to check for new work immediately,
// ensuring the worker exists first (used by the ticker's warm-up path).
func (s *Service) Wake(queueKey string) {
	s.ensureWorker(queueKey)
	s.mu.Lock()
	wake, ok := s.workers[queueKey]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

// Stop signals every queue worker to finish its in-flight task, giving it
// up to ShutdownGrace before force-cancelling the shared handler context.
// In-flight tasks interrupted by that cancellation are abandoned, not
// finalized: their rows stay running for ReapStartupStale to reclaim next
// boot (see errShutdownAbandoned). Stop itself never blocks past
// ShutdownGrace+forceShutdownWait, even if a handler ignores ctx.Done().
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(s.cfg.ShutdownGrace):
	}

	s.rootClose()
	select {
	case <-done:
	case <-time.After(forceShutdownWait):
		s.log.Warn().Msg("task workers did not exit after force-cancel; giving up the wait")
	}
}
