package models

import (
	"encoding/json"
	"time"
)

// Task progress states.
const (
	ProgressNotStarted = "not_started"
	ProgressAnalyzing  = "analyzing"
	ProgressCompleted  = "completed"
	ProgressFailed     = "failed"
)

// Aggregate run statuses recorded on a task after each run.
const (
	RunSuccess = "success"
	RunPartial = "partial"
	RunFailed  = "failed"
)

// Schedule kinds.
const (
	ScheduleOnce      = "once"
	ScheduleRecurring = "recurring"
)

// Time range kinds.
const (
	RangeRecent = "recent"
	RangeCustom = "custom"
	RangeAll    = "all"
)

// Task is a configured, schedulable analysis job over one or more rooms.
type Task struct {
	ID           string     `gorm:"primaryKey;size:32"`
	Name         string     `gorm:"not null"`
	Rooms        string     `gorm:"type:text"` // JSON array of room identifiers
	ScheduleKind string     `gorm:"size:16;default:recurring"`
	RunAt        *time.Time // ScheduleOnce
	Cron         string     `gorm:"size:64"` // ScheduleRecurring
	RangeKind    string     `gorm:"size:16;default:recent"`
	RangeDays    int        `gorm:"default:7"`
	RangeStart   string     `gorm:"size:32"`
	RangeEnd     string     `gorm:"size:32"`
	// StartDate and EndDate are the pre-rename custom range columns. They
	// are still read when RangeStart/RangeEnd are empty.
	StartDate        string `gorm:"size:32"`
	EndDate          string `gorm:"size:32"`
	Model            string `gorm:"size:64"`
	PromptText       string `gorm:"type:text"`
	PromptTemplateID *uint
	Enabled          bool   `gorm:"default:true;index"`
	Progress         string `gorm:"size:16;default:not_started;index"`
	LastRunStatus    string `gorm:"size:16"`
	LastRunAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RoomList decodes Rooms. A malformed value yields nil.
func (t *Task) RoomList() []string {
	if t.Rooms == "" {
		return nil
	}
	var rooms []string
	if err := json.Unmarshal([]byte(t.Rooms), &rooms); err != nil {
		return nil
	}
	return rooms
}

// SetRooms encodes rooms into the Rooms column.
func (t *Task) SetRooms(rooms []string) {
	if rooms == nil {
		rooms = []string{}
	}
	data, _ := json.Marshal(rooms)
	t.Rooms = string(data)
}
