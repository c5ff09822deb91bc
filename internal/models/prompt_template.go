package models

import "time"

// PromptTemplate is a reusable system prompt a task can reference.
type PromptTemplate struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:128;uniqueIndex"`
	Content   string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
