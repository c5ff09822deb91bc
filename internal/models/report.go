package models

import "time"

// Report statuses.
const (
	ReportSuccess = "success"
	ReportFailed  = "failed"
)

// Report records one analysis artifact: one per room attempted per run, or a
// task-level record (Room nil) when a run could not reach any room.
type Report struct {
	ID           uint    `gorm:"primaryKey;autoIncrement"`
	TaskID       string  `gorm:"size:32;not null;index"`
	TaskName     string  `gorm:"size:128"`
	Room         *string `gorm:"size:128"`
	RunID        string  `gorm:"size:36;index"`
	WindowStart  time.Time
	WindowEnd    time.Time
	Window       string `gorm:"size:32"` // YYYY-MM-DD~YYYY-MM-DD
	Status       string `gorm:"size:16;not null;index"`
	FilePath     string `gorm:"size:512"`
	MessageCount int
	Model        string `gorm:"size:64"`
	Error        string `gorm:"type:text"`
	CreatedAt    time.Time
}
