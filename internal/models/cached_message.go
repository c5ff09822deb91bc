package models

import "time"

// CachedMessage is a locally stored copy of a room message, used when the
// live transcript source is unavailable.
type CachedMessage struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Room        string `gorm:"size:128;not null;uniqueIndex:idx_room_msg,priority:1;index:idx_room_ts,priority:1"`
	Timestamp   int64  `gorm:"not null;uniqueIndex:idx_room_msg,priority:2;index:idx_room_ts,priority:2"` // epoch ms
	ContentHash string `gorm:"size:16;uniqueIndex:idx_room_msg,priority:3"`
	Sender      string `gorm:"size:128"`
	Content     string `gorm:"type:text"`
	CreatedAt   time.Time
}
