// Package scheduler owns the task registry: it arms cron and one-shot
// timers for registered tasks and guarantees at most one run per task at a
// time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/models"
	"github.com/iyou00/chatui/internal/pipeline"
	"github.com/iyou00/chatui/internal/store"
)

var (
	// ErrAlreadyRunning is returned by RunNow when the task has a run in
	// progress.
	ErrAlreadyRunning = errors.New("scheduler: task is already running")
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("scheduler: stopped")
)

// Runner executes one run of a task.
type Runner interface {
	Run(ctx context.Context, taskID string) (*pipeline.RunState, error)
}

// TaskSource is the task store the registry is kept in step with.
type TaskSource interface {
	GetEnabledTasks(ctx context.Context) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
}

// DropRecorder counts fires dropped by the re-entrancy guard.
type DropRecorder interface {
	RecordDroppedFire(taskID string)
}

// State is a registered task's run state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

type entry struct {
	state State
	// registered is false for entries created only to guard a manual run.
	registered bool
	cronID     cron.EntryID
	once       *time.Timer
	sig        string // schedule the registration was armed with
}

// scheduleSig identifies a task's schedule; a changed sig means the task
// must be re-armed.
func scheduleSig(t models.Task) string {
	if t.ScheduleKind == models.ScheduleOnce {
		if t.RunAt == nil {
			return "once:"
		}
		return "once:" + t.RunAt.UTC().Format(time.RFC3339Nano)
	}
	return "cron:" + t.Cron
}

// Opts holds parameters for creating a Scheduler.
type Opts struct {
	Runner   Runner
	Tasks    TaskSource   // optional, required by LoadEnabled and Reconcile
	Metrics  DropRecorder // optional
	Location *time.Location
	Now      func() time.Time
	Log      logging.Logger
}

// Scheduler is the task registry. All methods are safe for concurrent use.
type Scheduler struct {
	runner  Runner
	tasks   TaskSource
	metrics DropRecorder
	now     func() time.Time
	log     logging.Logger
	cron    *cron.Cron

	mu      sync.Mutex
	entries map[string]*entry
	fired   map[string]string // one-shot task ID -> sig of the timer that fired
	baseCtx context.Context
	stopped bool
	wg      sync.WaitGroup
}

// New creates a Scheduler. Timers are armed on Register but cron entries do
// not fire until Start.
func New(opts Opts) (*Scheduler, error) {
	if opts.Runner == nil {
		return nil, fmt.Errorf("scheduler: runner is required")
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		runner:  opts.Runner,
		tasks:   opts.Tasks,
		metrics: opts.Metrics,
		now:     opts.Now,
		log:     logging.OrNop(opts.Log),
		entries: make(map[string]*entry),
		fired:   make(map[string]string),
		baseCtx: context.Background(),
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(loc),
		cron.WithLogger(cronLogger{log: s.log}),
	)
	return s, nil
}

// Register arms the task's trigger, replacing any previous registration of
// the same ID. A run already in progress is not affected. One-shot tasks
// whose instant has passed are registered without a timer.
func (s *Scheduler) Register(task models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	e := s.entries[task.ID]
	if e == nil {
		e = &entry{}
		s.entries[task.ID] = e
	}
	s.disarm(e)
	e.registered = true
	e.sig = scheduleSig(task)
	delete(s.fired, task.ID)
	log := s.log.With(logging.F("task_id", task.ID))

	id := task.ID
	switch task.ScheduleKind {
	case models.ScheduleOnce:
		if task.RunAt == nil {
			return fmt.Errorf("scheduler: task %s: one-shot task has no run_at", id)
		}
		delay := task.RunAt.Sub(s.now())
		if delay <= 0 {
			log.Warn("one-shot instant has passed, not scheduling", logging.F("run_at", task.RunAt.Format(time.RFC3339)))
			return nil
		}
		// t is assigned under s.mu, which fireOnce takes before reading it.
		var t *time.Timer
		t = time.AfterFunc(delay, func() { s.fireOnce(id, t) })
		e.once = t
		log.Info("one-shot task registered", logging.F("in", delay.Round(time.Second).String()))
	default:
		sched, err := cronParser.Parse(task.Cron)
		if err != nil {
			return fmt.Errorf("scheduler: task %s: invalid cron %q: %w", id, task.Cron, err)
		}
		e.cronID = s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(id) }))
		log.Info("recurring task registered", logging.F("cron", task.Cron))
	}
	return nil
}

// Unregister removes the task's trigger. A run in progress finishes.
func (s *Scheduler) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	s.disarm(e)
	e.registered = false
	if e.state == Idle {
		delete(s.entries, id)
	}
}

// disarm stops e's timers. Caller holds s.mu.
func (s *Scheduler) disarm(e *entry) {
	if e.cronID != 0 {
		s.cron.Remove(e.cronID)
		e.cronID = 0
	}
	if e.once != nil {
		e.once.Stop()
		e.once = nil
	}
}

// Registered reports whether id has an armed or pending registration.
func (s *Scheduler) Registered(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	return ok && e.registered
}

// StateOf returns the task's run state.
func (s *Scheduler) StateOf(id string) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.state
	}
	return Idle
}

// TryRun starts a run of the task in the background unless one is already
// in progress or the scheduler is stopped, in which case the call is
// dropped and TryRun returns false.
func (s *Scheduler) TryRun(ctx context.Context, id string) bool {
	if s.acquire(id) != nil {
		return false
	}
	go func() {
		defer s.wg.Done()
		defer s.release(id)
		s.execute(ctx, id)
	}()
	return true
}

// RunNow runs the task synchronously under the same guard as TryRun.
func (s *Scheduler) RunNow(ctx context.Context, id string) (*pipeline.RunState, error) {
	if err := s.acquire(id); err != nil {
		return nil, err
	}
	defer s.wg.Done()
	defer s.release(id)
	return s.runner.Run(ctx, id)
}

// acquire marks the task Running and adds it to s.wg. The Add happens under
// s.mu, so Stop's Wait never races it.
func (s *Scheduler) acquire(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.log.Warn("scheduler stopped, dropping trigger", logging.F("task_id", id))
		return ErrStopped
	}
	e := s.entries[id]
	if e == nil {
		e = &entry{}
		s.entries[id] = e
	}
	if e.state == Running {
		s.log.Warn("task already running, dropping trigger", logging.F("task_id", id))
		if s.metrics != nil {
			s.metrics.RecordDroppedFire(id)
		}
		return ErrAlreadyRunning
	}
	e.state = Running
	s.wg.Add(1)
	return nil
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.state = Idle
	if !e.registered {
		delete(s.entries, id)
	}
}

func (s *Scheduler) execute(ctx context.Context, id string) {
	state, err := s.runner.Run(ctx, id)
	if err != nil {
		s.log.Error("task run failed", logging.F("task_id", id), logging.Err(err))
		return
	}
	s.log.Info("task run done", logging.F("task_id", id), logging.F("status", state.Status))
}

// fire is the cron entry callback.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	s.fireTask(ctx, id)
}

// fireOnce is the one-shot timer callback. A timer that was replaced or
// disarmed while this callback waited for s.mu does nothing.
func (s *Scheduler) fireOnce(id string, t *time.Timer) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.once != t {
		s.mu.Unlock()
		return
	}
	e.once = nil
	e.registered = false
	s.fired[id] = e.sig
	ctx := s.baseCtx
	s.mu.Unlock()
	s.fireTask(ctx, id)
}

// fireTask re-reads the task before a timer-started run. Deleted or
// disabled tasks are unregistered instead of run.
func (s *Scheduler) fireTask(ctx context.Context, id string) {
	if s.tasks != nil {
		task, err := s.tasks.GetTask(ctx, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.log.Info("task no longer exists, unregistering", logging.F("task_id", id))
			s.Unregister(id)
			return
		case err != nil:
			s.log.Error("load task before run", logging.F("task_id", id), logging.Err(err))
			return
		case !task.Enabled:
			s.log.Info("task disabled, unregistering", logging.F("task_id", id))
			s.Unregister(id)
			return
		}
	}
	s.TryRun(ctx, id)
}

// LoadEnabled registers every enabled task and returns how many are
// registered. Tasks that fail to register are logged and skipped.
func (s *Scheduler) LoadEnabled(ctx context.Context) (int, error) {
	return s.Reconcile(ctx)
}

// Reconcile brings the registry in line with the task source. New enabled
// tasks and tasks whose schedule changed are (re)armed; tasks that are no
// longer enabled are unregistered. One-shot tasks that already fired are not
// re-armed. It returns how many tasks are registered.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	if s.tasks == nil {
		return 0, fmt.Errorf("scheduler: task source is required")
	}
	tasks, err := s.tasks.GetEnabledTasks(ctx)
	if err != nil {
		return 0, fmt.Errorf("scheduler: load enabled tasks: %w", err)
	}

	enabled := make(map[string]bool, len(tasks))
	n, armed := 0, 0
	for _, t := range tasks {
		enabled[t.ID] = true
		sig := scheduleSig(t)

		s.mu.Lock()
		e := s.entries[t.ID]
		current := e != nil && e.registered && e.sig == sig
		done := t.ScheduleKind == models.ScheduleOnce && s.fired[t.ID] == sig
		s.mu.Unlock()

		if done {
			continue
		}
		if current {
			n++
			continue
		}
		if err := s.Register(t); err != nil {
			s.log.Error("register task", logging.F("task_id", t.ID), logging.Err(err))
			continue
		}
		n++
		armed++
	}

	var stale []string
	s.mu.Lock()
	for id, e := range s.entries {
		if e.registered && !enabled[id] {
			stale = append(stale, id)
		}
	}
	for id := range s.fired {
		if !enabled[id] {
			delete(s.fired, id)
		}
	}
	s.mu.Unlock()
	for _, id := range stale {
		s.Unregister(id)
		s.log.Info("task unregistered", logging.F("task_id", id))
	}

	if armed > 0 || len(stale) > 0 {
		s.log.Info("tasks reconciled",
			logging.F("registered", n),
			logging.F("armed", armed),
			logging.F("removed", len(stale)),
			logging.F("enabled", len(tasks)))
	}
	return n, nil
}

// Watch calls Reconcile every interval until ctx is done.
func (s *Scheduler) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
				s.log.Error("reconcile tasks", logging.Err(err))
			}
		}
	}
}

// Start begins firing cron entries. Runs started by timers use ctx, which
// should be cancelled only at process shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop disarms every timer, refuses further runs and registrations, and
// returns a context that is done once all in-flight runs have finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.stopped = true
	for _, e := range s.entries {
		if e.once != nil {
			e.once.Stop()
			e.once = nil
		}
	}
	s.mu.Unlock()
	cronDone := s.cron.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronDone.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}
