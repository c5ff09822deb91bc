// Package report turns analysis outcomes into stored HTML artifacts and
// their Report records.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/iyou00/chatui/internal/llm"
	"github.com/iyou00/chatui/internal/logging"
	"github.com/iyou00/chatui/internal/models"
	"github.com/iyou00/chatui/internal/timewindow"
)

const maxNameRunes = 80

// Store persists Report records and returns the assigned ID.
type Store interface {
	CreateReport(ctx context.Context, r *models.Report) (uint, error)
}

// Run identifies the task run a report belongs to.
type Run struct {
	ID       string
	TaskID   string
	TaskName string
	Model    string
	Window   timewindow.Window
}

// Opts holds parameters for creating an Assembler.
type Opts struct {
	Sink  Sink
	Store Store
	Log   logging.Logger
	Now   func() time.Time

	// NewSuffix returns the tag that keeps file names unique. Defaults to
	// 8 hex characters of a random UUID.
	NewSuffix func() string
}

// Assembler writes report HTML through a Sink and records it in a Store.
type Assembler struct {
	sink   Sink
	store  Store
	log    logging.Logger
	now    func() time.Time
	suffix func() string
}

// New creates an Assembler.
func New(opts Opts) (*Assembler, error) {
	if opts.Sink == nil {
		return nil, fmt.Errorf("report: sink is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("report: store is required")
	}
	a := &Assembler{sink: opts.Sink, store: opts.Store, log: logging.OrNop(opts.Log), now: opts.Now, suffix: opts.NewSuffix}
	if a.suffix == nil {
		a.suffix = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "")[:8] }
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Assemble writes the outcome's HTML and records one Report for room. A
// failed outcome still has its failure page written, and the record is
// marked failed with the user-facing message. If the write fails, a failed
// record carrying the write error is created instead. The returned error is
// non-nil only when the record itself could not be stored.
func (a *Assembler) Assemble(ctx context.Context, run Run, room string, out llm.Outcome, messageCount int) (*models.Report, error) {
	r := a.record(run, &room, messageCount)
	if out.Model != "" {
		r.Model = out.Model
	}
	if out.OK {
		r.Status = models.ReportSuccess
	} else {
		r.Status = models.ReportFailed
		r.Error = failureText(out)
	}

	loc, err := a.sink.Write(ctx, FileName(run.TaskID, room, a.now(), a.suffix()), []byte(out.HTML))
	if err != nil {
		r.Status = models.ReportFailed
		r.Error = joinErr(r.Error, err.Error())
		a.log.Error("report write failed", logging.F("task_id", run.TaskID), logging.F("room", room), logging.Err(err))
	}
	r.FilePath = loc
	return a.save(ctx, r)
}

// AssembleFailure records a failed Report that carries errText and no
// analysis. A nil room marks a task-level record. A failure page is written
// when possible.
func (a *Assembler) AssembleFailure(ctx context.Context, run Run, room *string, errText string) (*models.Report, error) {
	r := a.record(run, room, 0)
	r.Status = models.ReportFailed
	r.Error = errText

	label := "task"
	title := run.TaskName
	if room != nil {
		label, title = *room, llm.ReportTitle(*room)
	}
	page := llm.FailurePage(title, errText)
	loc, err := a.sink.Write(ctx, FileName(run.TaskID, label, a.now(), a.suffix()), []byte(page))
	if err != nil {
		r.Error = joinErr(r.Error, err.Error())
		a.log.Warn("failure page write failed", logging.F("task_id", run.TaskID), logging.Err(err))
	}
	r.FilePath = loc
	return a.save(ctx, r)
}

func (a *Assembler) record(run Run, room *string, messageCount int) *models.Report {
	return &models.Report{
		TaskID:       run.TaskID,
		TaskName:     run.TaskName,
		Room:         room,
		RunID:        run.ID,
		WindowStart:  run.Window.Start,
		WindowEnd:    run.Window.End,
		Window:       run.Window.Wire,
		MessageCount: messageCount,
		Model:        run.Model,
	}
}

func (a *Assembler) save(ctx context.Context, r *models.Report) (*models.Report, error) {
	id, err := a.store.CreateReport(ctx, r)
	if err != nil {
		return r, fmt.Errorf("report: create record for task %s: %w", r.TaskID, err)
	}
	r.ID = id
	a.log.Info("report recorded",
		logging.F("task_id", r.TaskID),
		logging.F("report_id", id),
		logging.F("status", r.Status),
		logging.F("path", r.FilePath))
	return r, nil
}

func failureText(out llm.Outcome) string {
	msg := out.UserMessage()
	if out.Err != nil {
		return fmt.Sprintf("%s (%s)", msg, out.Kind)
	}
	return msg
}

func joinErr(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// FileName builds "<taskID>_<room>_<YYYYMMDD_HHMMSS>_<suffix>.html" with the
// room sanitized. Rooms that sanitize alike, or reports written in the same
// second, differ only by suffix.
func FileName(taskID, room string, at time.Time, suffix string) string {
	return fmt.Sprintf("%s_%s_%s_%s.html",
		SanitizeName(taskID), SanitizeName(room), at.Format("20060102_150405"), SanitizeName(suffix))
}

// SanitizeName keeps letters (CJK included), digits, '-' and '_', replaces
// every other rune with '_', and caps the result at 80 runes.
func SanitizeName(s string) string {
	var sb strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if n == maxNameRunes {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
		n++
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}
