package store

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/iyou00/chatui/internal/models"
)

// CreateTaskOpts holds parameters for creating a task.
type CreateTaskOpts struct {
	Name             string
	Rooms            []string
	ScheduleKind     string // once, recurring
	Cron             string
	RunAt            *time.Time
	RangeKind        string // recent, custom, all
	RangeDays        int
	RangeStart       string
	RangeEnd         string
	Model            string
	PromptText       string
	PromptTemplateID *uint
	Disabled         bool
}

// TaskFilters holds optional filters for listing tasks.
type TaskFilters struct {
	Enabled  *bool
	Progress string
}

// GenerateTaskID creates a task ID in task-xxxxx format (5-char hex).
func GenerateTaskID() (string, error) {
	b := make([]byte, 3)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("store: generate task ID: %w", err)
	}
	return "task-" + hex.EncodeToString(b)[:5], nil
}

// CreateTask validates opts and inserts a new task with a generated ID.
func (s *Store) CreateTask(ctx context.Context, opts CreateTaskOpts) (*models.Task, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, fmt.Errorf("store: task name is required")
	}
	rooms := make([]string, 0, len(opts.Rooms))
	for _, r := range opts.Rooms {
		if r = strings.TrimSpace(r); r != "" {
			rooms = append(rooms, r)
		}
	}
	if len(rooms) == 0 {
		return nil, fmt.Errorf("store: at least one room is required")
	}
	if opts.ScheduleKind == "" {
		opts.ScheduleKind = models.ScheduleRecurring
	}
	switch opts.ScheduleKind {
	case models.ScheduleRecurring:
		if strings.TrimSpace(opts.Cron) == "" {
			return nil, fmt.Errorf("store: recurring task requires a cron expression")
		}
	case models.ScheduleOnce:
		if opts.RunAt == nil {
			return nil, fmt.Errorf("store: one-shot task requires run_at")
		}
	default:
		return nil, fmt.Errorf("store: unknown schedule kind %q", opts.ScheduleKind)
	}
	if opts.RangeKind == "" {
		opts.RangeKind = models.RangeRecent
	}
	switch opts.RangeKind {
	case models.RangeRecent, models.RangeCustom, models.RangeAll:
	default:
		return nil, fmt.Errorf("store: unknown time range kind %q", opts.RangeKind)
	}

	id, err := s.generateUniqueTaskID(ctx)
	if err != nil {
		return nil, err
	}

	task := models.Task{
		ID:               id,
		Name:             strings.TrimSpace(opts.Name),
		ScheduleKind:     opts.ScheduleKind,
		Cron:             strings.TrimSpace(opts.Cron),
		RunAt:            opts.RunAt,
		RangeKind:        opts.RangeKind,
		RangeDays:        opts.RangeDays,
		RangeStart:       opts.RangeStart,
		RangeEnd:         opts.RangeEnd,
		Model:            opts.Model,
		PromptText:       opts.PromptText,
		PromptTemplateID: opts.PromptTemplateID,
		Enabled:          true,
		Progress:         models.ProgressNotStarted,
	}
	task.SetRooms(rooms)

	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, fmt.Errorf("store: create task: %w", err)
	}
	// The column default would override a false Enabled on insert.
	if opts.Disabled {
		if err := s.SetEnabled(ctx, id, false); err != nil {
			return nil, err
		}
		task.Enabled = false
	}
	return &task, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("store: task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("store: get task %s: %w", id, err)
	}
	return &task, nil
}

// ListTasks returns tasks matching filters, ordered by creation time.
func (s *Store) ListTasks(ctx context.Context, filters TaskFilters) ([]models.Task, error) {
	q := s.db.WithContext(ctx).Model(&models.Task{})
	if filters.Enabled != nil {
		q = q.Where("enabled = ?", *filters.Enabled)
	}
	if filters.Progress != "" {
		q = q.Where("progress = ?", filters.Progress)
	}

	var tasks []models.Task
	if err := q.Order("created_at ASC, id ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	return tasks, nil
}

// GetEnabledTasks returns every enabled task.
func (s *Store) GetEnabledTasks(ctx context.Context) ([]models.Task, error) {
	enabled := true
	return s.ListTasks(ctx, TaskFilters{Enabled: &enabled})
}

// SetEnabled enables or disables a task.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return s.updateTask(ctx, id, map[string]interface{}{"enabled": enabled})
}

// SetProgress records a task's progress state.
func (s *Store) SetProgress(ctx context.Context, id, progress string) error {
	switch progress {
	case models.ProgressNotStarted, models.ProgressAnalyzing, models.ProgressCompleted, models.ProgressFailed:
	default:
		return fmt.Errorf("store: invalid progress %q", progress)
	}
	return s.updateTask(ctx, id, map[string]interface{}{"progress": progress})
}

// SetLastRun records the aggregate status and time of a task's latest run.
func (s *Store) SetLastRun(ctx context.Context, id, status string, at time.Time) error {
	return s.updateTask(ctx, id, map[string]interface{}{
		"last_run_status": status,
		"last_run_at":     at,
	})
}

// ResetStaleProgress moves tasks left in "analyzing" by a previous process
// back to "not_started" and returns how many were reset.
func (s *Store) ResetStaleProgress(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Task{}).
		Where("progress = ?", models.ProgressAnalyzing).
		Update("progress", models.ProgressNotStarted)
	if res.Error != nil {
		return 0, fmt.Errorf("store: reset stale progress: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteTask removes a task. Its reports are kept.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Task{})
	if res.Error != nil {
		return fmt.Errorf("store: delete task %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("store: task %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) updateTask(ctx context.Context, id string, updates map[string]interface{}) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("store: get task %s for update: %w", id, err)
	}
	if count == 0 {
		return fmt.Errorf("store: task %s: %w", id, ErrNotFound)
	}
	if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("store: update task %s: %w", id, err)
	}
	return nil
}

// generateUniqueTaskID generates an ID and retries once on collision.
func (s *Store) generateUniqueTaskID(ctx context.Context) (string, error) {
	for range 2 {
		id, err := GenerateTaskID()
		if err != nil {
			return "", err
		}
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return "", fmt.Errorf("store: check task ID uniqueness: %w", err)
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("store: failed to generate unique task ID after retries")
}
