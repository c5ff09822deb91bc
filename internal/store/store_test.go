package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyou00/chatui/internal/db"
	"github.com/iyou00/chatui/internal/models"
	"github.com/iyou00/chatui/internal/transcript"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := db.OpenMemory()
	require.NoError(t, err)
	return New(gdb)
}

func createTask(t *testing.T, s *Store, opts CreateTaskOpts) *models.Task {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "daily"
	}
	if opts.Rooms == nil {
		opts.Rooms = []string{"产品群"}
	}
	if opts.Cron == "" && opts.RunAt == nil {
		opts.Cron = "0 9 * * *"
	}
	task, err := s.CreateTask(context.Background(), opts)
	require.NoError(t, err)
	return task
}

// --- Tasks ---

func TestCreateTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	task := createTask(t, s, CreateTaskOpts{Name: " 日报 ", Rooms: []string{"a", " ", "slack:C1"}, Model: "deepseek"})
	assert.Regexp(t, `^task-[0-9a-f]{5}$`, task.ID)

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "日报", got.Name)
	assert.Equal(t, []string{"a", "slack:C1"}, got.RoomList())
	assert.Equal(t, models.ScheduleRecurring, got.ScheduleKind)
	assert.Equal(t, models.RangeRecent, got.RangeKind)
	assert.Equal(t, models.ProgressNotStarted, got.Progress)
	assert.True(t, got.Enabled)
}

func TestCreateTask_Disabled(t *testing.T) {
	s := testStore(t)
	task := createTask(t, s, CreateTaskOpts{Disabled: true})

	got, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}

func TestCreateTask_Validation(t *testing.T) {
	s := testStore(t)
	runAt := time.Now()
	tests := []struct {
		name string
		opts CreateTaskOpts
		want string
	}{
		{"no name", CreateTaskOpts{Rooms: []string{"a"}, Cron: "* * * * *"}, "name is required"},
		{"no rooms", CreateTaskOpts{Name: "x", Rooms: []string{" "}, Cron: "* * * * *"}, "at least one room"},
		{"recurring without cron", CreateTaskOpts{Name: "x", Rooms: []string{"a"}}, "requires a cron"},
		{"once without run_at", CreateTaskOpts{Name: "x", Rooms: []string{"a"}, ScheduleKind: models.ScheduleOnce}, "requires run_at"},
		{"bad schedule", CreateTaskOpts{Name: "x", Rooms: []string{"a"}, ScheduleKind: "weekly", RunAt: &runAt}, "unknown schedule kind"},
		{"bad range", CreateTaskOpts{Name: "x", Rooms: []string{"a"}, Cron: "* * * * *", RangeKind: "forever"}, "unknown time range kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateTask(context.Background(), tt.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestGetTask_NotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetTask(context.Background(), "task-nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEnabledAndProgress(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a := createTask(t, s, CreateTaskOpts{Name: "a"})
	b := createTask(t, s, CreateTaskOpts{Name: "b"})

	require.NoError(t, s.SetEnabled(ctx, b.ID, false))
	enabled, err := s.GetEnabledTasks(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, a.ID, enabled[0].ID)

	require.NoError(t, s.SetProgress(ctx, a.ID, models.ProgressAnalyzing))
	// Writing the same value again is not an error.
	require.NoError(t, s.SetProgress(ctx, a.ID, models.ProgressAnalyzing))
	assert.ErrorContains(t, s.SetProgress(ctx, a.ID, "paused"), "invalid progress")
	assert.True(t, errors.Is(s.SetProgress(ctx, "task-nope", models.ProgressFailed), ErrNotFound))

	analyzing, err := s.ListTasks(ctx, TaskFilters{Progress: models.ProgressAnalyzing})
	require.NoError(t, err)
	assert.Len(t, analyzing, 1)
}

func TestSetLastRun(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	task := createTask(t, s, CreateTaskOpts{})
	at := time.Date(2025, 7, 3, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.SetLastRun(ctx, task.ID, models.RunPartial, at))
	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunPartial, got.LastRunStatus)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(at))
}

func TestResetStaleProgress(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	a := createTask(t, s, CreateTaskOpts{Name: "a"})
	b := createTask(t, s, CreateTaskOpts{Name: "b"})
	c := createTask(t, s, CreateTaskOpts{Name: "c"})
	require.NoError(t, s.SetProgress(ctx, a.ID, models.ProgressAnalyzing))
	require.NoError(t, s.SetProgress(ctx, b.ID, models.ProgressAnalyzing))
	require.NoError(t, s.SetProgress(ctx, c.ID, models.ProgressCompleted))

	n, err := s.ResetStaleProgress(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	got, _ := s.GetTask(ctx, c.ID)
	assert.Equal(t, models.ProgressCompleted, got.Progress)
	got, _ = s.GetTask(ctx, a.ID)
	assert.Equal(t, models.ProgressNotStarted, got.Progress)
}

func TestDeleteTask(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	task := createTask(t, s, CreateTaskOpts{})

	require.NoError(t, s.DeleteTask(ctx, task.ID))
	assert.True(t, errors.Is(s.DeleteTask(ctx, task.ID), ErrNotFound))
}

// --- Reports ---

func TestReports(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	room := "产品群"

	id1, err := s.CreateReport(ctx, &models.Report{TaskID: "t1", Room: &room, RunID: "r1", Status: models.ReportSuccess})
	require.NoError(t, err)
	id2, err := s.CreateReport(ctx, &models.Report{TaskID: "t1", RunID: "r2", Status: models.ReportFailed, Error: "no messages"})
	require.NoError(t, err)
	_, err = s.CreateReport(ctx, &models.Report{TaskID: "t2", Status: models.ReportSuccess})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	_, err = s.CreateReport(ctx, &models.Report{})
	assert.ErrorContains(t, err, "task ID is required")

	list, err := s.ListReports(ctx, ReportFilters{TaskID: "t1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, id2, list[0].ID, "newest first")
	assert.Nil(t, list[0].Room)

	failed, err := s.ListReports(ctx, ReportFilters{Status: models.ReportFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 1)

	limited, err := s.ListReports(ctx, ReportFilters{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	got, err := s.GetReport(ctx, id1)
	require.NoError(t, err)
	require.NotNil(t, got.Room)
	assert.Equal(t, room, *got.Room)

	_, err = s.GetReport(ctx, 9999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- Templates ---

func TestTemplates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, db.SeedTemplates(s.DB(), map[string]string{"weekly": "请总结本周讨论"}))

	tpls, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, tpls, 1)

	text, err := s.GetTemplate(ctx, tpls[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "请总结本周讨论", text)

	_, err = s.GetTemplate(ctx, 42)
	assert.True(t, errors.Is(err, ErrNotFound))
}

// --- Message cache ---

func TestMessageCache(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	batch := []transcript.Message{
		{Sender: "bob", Content: "second", Timestamp: 2000},
		{Sender: "alice", Content: "first", Timestamp: 1000},
	}
	require.NoError(t, s.PutMessages(ctx, "r", batch))
	// Overlapping write: one duplicate, one new message at the same instant.
	require.NoError(t, s.PutMessages(ctx, "r", []transcript.Message{
		{Sender: "alice", Content: "first", Timestamp: 1000},
		{Sender: "carol", Content: "also first", Timestamp: 1000},
	}))
	require.NoError(t, s.PutMessages(ctx, "other", batch[:1]))
	require.NoError(t, s.PutMessages(ctx, "r", nil))

	got, err := s.GetMessagesForRoom(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.EqualValues(t, 1000, got[0].Timestamp)
	assert.EqualValues(t, 1000, got[1].Timestamp)
	assert.Equal(t, "second", got[2].Content)

	empty, err := s.GetMessagesForRoom(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStoreSatisfiesConsumers(t *testing.T) {
	var _ transcript.CacheStore = (*Store)(nil)
}
