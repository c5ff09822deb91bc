// Package pipeline executes one run of a task: gather messages per room,
// analyze each room with the model gateway, record one report per room, and
// aggregate the room outcomes into a task-level status.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/iyou00/chatui/internal/llm"
	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/models"
	"github.com/iyou00/chatui/internal/prompt"
	"github.com/iyou00/chatui/internal/report"
	"github.com/iyou00/chatui/internal/timewindow"
	"github.com/iyou00/chatui/internal/transcript"
)

const (
	defaultFetchConcurrency = 4
	defaultRoomInterval     = 3 * time.Second
)

// TaskStore reads tasks and records their progress.
type TaskStore interface {
	GetEnabledTasks(ctx context.Context) ([]models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	SetProgress(ctx context.Context, id, progress string) error
	SetLastRun(ctx context.Context, id, status string, at time.Time) error
}

// Analyzer turns a prompt bundle into an analysis outcome.
type Analyzer interface {
	Analyze(ctx context.Context, room string, b prompt.Bundle, modelID string) llm.Outcome
}

// Assembler records reports.
type Assembler interface {
	Assemble(ctx context.Context, run report.Run, room string, out llm.Outcome, messageCount int) (*models.Report, error)
	AssembleFailure(ctx context.Context, run report.Run, room *string, errText string) (*models.Report, error)
}

// Message source labels on RoomResult.
const (
	FromLive  = "live"
	FromCache = "cache"
	FromNone  = "none"
)

// RoomResult is the outcome of one room within a run.
type RoomResult struct {
	Room     string
	Messages int
	From     string
	Outcome  llm.Outcome
	ReportID uint
	OK       bool
}

// RunState is the ephemeral record of one run.
type RunState struct {
	RunID         string
	TaskID        string
	Window        timewindow.Window
	TotalMessages int
	Rooms         []RoomResult
	Succeeded     int
	Failed        int
	Status        string
}

// Opts holds parameters for creating a Runner.
type Opts struct {
	Tasks     TaskStore
	Source    transcript.Source
	Cache     transcript.CacheStore // optional
	Templates prompt.TemplateStore  // optional
	Analyzer  Analyzer
	Reports   Assembler
	Metrics   *Metrics // optional

	DefaultModel     string
	RoomInterval     time.Duration
	FetchConcurrency int
	Location         *time.Location
	Now              func() time.Time
	Log              logging.Logger
}

// Runner executes task runs. One Runner serves all tasks; concurrent runs of
// different tasks are allowed.
type Runner struct {
	tasks     TaskStore
	source    transcript.Source
	cache     transcript.CacheStore
	templates prompt.TemplateStore
	analyzer  Analyzer
	reports   Assembler
	metrics   *Metrics

	defaultModel string
	interval     time.Duration
	fetchLimit   int
	loc          *time.Location
	now          func() time.Time
	log          logging.Logger

	active atomic.Int32
}

// New creates a Runner.
func New(opts Opts) (*Runner, error) {
	switch {
	case opts.Tasks == nil:
		return nil, fmt.Errorf("pipeline: task store is required")
	case opts.Source == nil:
		return nil, fmt.Errorf("pipeline: transcript source is required")
	case opts.Analyzer == nil:
		return nil, fmt.Errorf("pipeline: analyzer is required")
	case opts.Reports == nil:
		return nil, fmt.Errorf("pipeline: report assembler is required")
	}
	r := &Runner{
		tasks:        opts.Tasks,
		source:       opts.Source,
		cache:        opts.Cache,
		templates:    opts.Templates,
		analyzer:     opts.Analyzer,
		reports:      opts.Reports,
		metrics:      opts.Metrics,
		defaultModel: opts.DefaultModel,
		interval:     opts.RoomInterval,
		fetchLimit:   opts.FetchConcurrency,
		loc:          opts.Location,
		now:          opts.Now,
		log:          logging.OrNop(opts.Log),
	}
	if r.interval < 0 {
		r.interval = defaultRoomInterval
	}
	if r.fetchLimit <= 0 {
		r.fetchLimit = defaultFetchConcurrency
	}
	if r.loc == nil {
		r.loc = time.Local
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// TimeRange converts a task's stored range columns into a timewindow.Range.
func TimeRange(t *models.Task) timewindow.Range {
	switch timewindow.ParseKind(t.RangeKind) {
	case timewindow.KindAll:
		return timewindow.All()
	case timewindow.KindCustom:
		return timewindow.Range{
			Kind:        timewindow.KindCustom,
			Start:       t.RangeStart,
			End:         t.RangeEnd,
			LegacyStart: t.StartDate,
			LegacyEnd:   t.EndDate,
		}
	default:
		return timewindow.Recent(t.RangeDays)
	}
}

// Run executes one run of the task. The returned error reports only
// failures to load the task or record its progress; analysis failures are
// reflected in RunState and in the stored reports.
func (r *Runner) Run(ctx context.Context, taskID string) (*RunState, error) {
	task, err := r.tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load task %s: %w", taskID, err)
	}

	now := r.now().In(r.loc)
	w := timewindow.Resolver{Log: r.log}.Resolve(TimeRange(task), now)
	state := &RunState{RunID: uuid.NewString(), TaskID: task.ID, Window: w}
	log := r.log.With(logging.F("task_id", task.ID), logging.F("run_id", state.RunID))

	if n := r.active.Add(1); n > 1 {
		log.Warn("task runs overlapping", logging.F("concurrent_runs", n))
	}
	defer r.active.Add(-1)
	r.metrics.runStarted()
	start := time.Now()
	defer func() { r.metrics.runFinished(state.Status, time.Since(start)) }()

	if err := r.tasks.SetProgress(ctx, task.ID, models.ProgressAnalyzing); err != nil {
		state.Status = models.RunFailed
		return state, fmt.Errorf("pipeline: mark %s analyzing: %w", task.ID, err)
	}
	log.Info("run started", logging.F("window", w.Wire), logging.F("rooms", len(task.RoomList())))

	model := task.Model
	if model == "" {
		model = r.defaultModel
	}
	run := report.Run{ID: state.RunID, TaskID: task.ID, TaskName: task.Name, Model: model, Window: w}

	gathered := r.gather(ctx, task.RoomList(), w, log)
	for _, g := range gathered {
		state.TotalMessages += len(g.msgs)
	}

	if state.TotalMessages == 0 {
		msg := fmt.Sprintf("时间范围 %s 内所有群聊均没有可分析的消息", w.Wire)
		if _, err := r.reports.AssembleFailure(ctx, run, nil, msg); err != nil {
			log.Error("record task-level failure", logging.Err(err))
		}
		state.Status = models.RunFailed
		log.Warn("run found no messages", logging.F("window", w.Wire))
		return state, r.finish(ctx, task.ID, state, now)
	}

	system, err := prompt.SystemPromptFor(ctx, task, r.templates)
	if err != nil {
		log.Warn("prompt template unavailable, using default prompt", logging.Err(err))
		system = prompt.DefaultSystemPrompt
	}

	for i, g := range gathered {
		if i > 0 && !sleep(ctx, r.interval) {
			log.Warn("run interrupted", logging.F("rooms_done", i), logging.Err(ctx.Err()))
			break
		}
		res := r.analyzeRoom(ctx, run, g, system, model, log)
		state.Rooms = append(state.Rooms, res)
		if res.OK {
			state.Succeeded++
		} else {
			state.Failed++
		}
	}

	state.Status = Aggregate(state.Succeeded, state.Failed)
	log.Info("run finished",
		logging.F("status", state.Status),
		logging.F("succeeded", state.Succeeded),
		logging.F("failed", state.Failed),
		logging.F("messages", state.TotalMessages))
	return state, r.finish(ctx, task.ID, state, now)
}

// Aggregate maps room counts to a run status: success if none failed,
// failed if none succeeded, else partial.
func Aggregate(succeeded, failed int) string {
	switch {
	case failed == 0 && succeeded > 0:
		return models.RunSuccess
	case succeeded == 0:
		return models.RunFailed
	default:
		return models.RunPartial
	}
}

// ProgressFor maps a run status to the task progress it leaves behind.
func ProgressFor(status string) string {
	if status == models.RunFailed {
		return models.ProgressFailed
	}
	return models.ProgressCompleted
}

func (r *Runner) finish(ctx context.Context, taskID string, state *RunState, at time.Time) error {
	// Progress is recorded even when the run was interrupted by shutdown.
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if err := r.tasks.SetProgress(ctx, taskID, ProgressFor(state.Status)); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: record progress for %s: %w", taskID, err))
	}
	if err := r.tasks.SetLastRun(ctx, taskID, state.Status, at); err != nil {
		errs = append(errs, fmt.Errorf("pipeline: record last run for %s: %w", taskID, err))
	}
	return errors.Join(errs...)
}

type gatheredRoom struct {
	room string
	msgs []transcript.Message
	from string
}

// gather fetches every room with bounded parallelism. Rooms are independent:
// a failed room falls back to the cache and never fails the group.
func (r *Runner) gather(ctx context.Context, rooms []string, w timewindow.Window, log logging.Logger) []gatheredRoom {
	out := make([]gatheredRoom, len(rooms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fetchLimit)
	for i, room := range rooms {
		g.Go(func() error {
			out[i] = r.gatherRoom(gctx, room, w, log.With(logging.F("room", room)))
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (r *Runner) gatherRoom(ctx context.Context, room string, w timewindow.Window, log logging.Logger) gatheredRoom {
	res := gatheredRoom{room: room, from: FromNone}

	msgs, err := r.source.Fetch(ctx, room, w)
	switch {
	case err != nil:
		log.Warn("live fetch failed, trying cache", logging.Err(err))
	case len(msgs) == 0:
		log.Info("live fetch returned no messages, trying cache")
	default:
		res.msgs, res.from = msgs, FromLive
		if r.cache != nil {
			if err := r.cache.PutMessages(ctx, room, msgs); err != nil {
				log.Warn("cache write-through failed", logging.Err(err))
			}
		}
		log.Debug("fetched live messages", logging.F("messages", len(msgs)))
		return res
	}

	if r.cache == nil {
		return res
	}
	cached, err := r.cache.GetMessagesForRoom(ctx, room)
	if err != nil {
		log.Warn("cache read failed", logging.Err(err))
		return res
	}
	if kept := transcript.FilterMessages(cached, w); len(kept) > 0 {
		res.msgs, res.from = kept, FromCache
		log.Info("using cached messages", logging.F("messages", len(kept)), logging.F("cached", len(cached)))
	}
	return res
}

func (r *Runner) analyzeRoom(ctx context.Context, run report.Run, g gatheredRoom, system, model string, log logging.Logger) RoomResult {
	res := RoomResult{Room: g.room, Messages: len(g.msgs), From: g.from}
	log = log.With(logging.F("room", g.room))
	// A room that was attempted always gets its report, even during shutdown.
	recordCtx := context.WithoutCancel(ctx)

	if len(g.msgs) == 0 {
		room := g.room
		rep, err := r.reports.AssembleFailure(recordCtx, run, &room, fmt.Sprintf("群聊 %s 在时间范围 %s 内没有消息", g.room, run.Window.Wire))
		if err != nil {
			log.Error("record empty-room failure", logging.Err(err))
		} else {
			res.ReportID = rep.ID
		}
		r.metrics.recordRoom(models.ReportFailed, false)
		return res
	}

	bundle := prompt.Build(system, []prompt.RoomBlock{{Room: g.room, Messages: g.msgs}}, run.Window)
	res.Outcome = r.analyzer.Analyze(ctx, g.room, bundle, model)

	rep, err := r.reports.Assemble(recordCtx, run, g.room, res.Outcome, len(g.msgs))
	switch {
	case err != nil:
		log.Error("record room report", logging.Err(err))
	case rep != nil:
		res.ReportID = rep.ID
		res.OK = rep.Status == models.ReportSuccess
	}
	r.metrics.recordRoom(statusLabel(res.OK), g.from == FromCache)
	return res
}

func statusLabel(ok bool) string {
	if ok {
		return models.ReportSuccess
	}
	return models.ReportFailed
}

// sleep waits d or until ctx is done, reporting whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
