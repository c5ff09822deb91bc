package store

import (
	"context"
	"fmt"
	"hash/fnv"

	"gorm.io/gorm/clause"

	"github.com/iyou00/chatui/internal/models"
	"github.com/iyou00/chatui/internal/transcript"
)

const cacheBatchSize = 200

// GetMessagesForRoom returns every cached message of room in timestamp order.
func (s *Store) GetMessagesForRoom(ctx context.Context, room string) ([]transcript.Message, error) {
	var rows []models.CachedMessage
	if err := s.db.WithContext(ctx).
		Where("room = ?", room).
		Order("timestamp ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("store: read cache for %s: %w", room, err)
	}
	msgs := make([]transcript.Message, len(rows))
	for i, r := range rows {
		msgs[i] = transcript.Message{Sender: r.Sender, Content: r.Content, Timestamp: r.Timestamp}
	}
	return msgs, nil
}

// PutMessages caches msgs for room. Messages already cached (same room,
// timestamp and sender+content hash) are skipped.
func (s *Store) PutMessages(ctx context.Context, room string, msgs []transcript.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]models.CachedMessage, len(msgs))
	for i, m := range msgs {
		rows[i] = models.CachedMessage{
			Room:        room,
			Timestamp:   m.Timestamp,
			ContentHash: contentHash(m.Sender, m.Content),
			Sender:      m.Sender,
			Content:     m.Content,
		}
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, cacheBatchSize).Error
	if err != nil {
		return fmt.Errorf("store: write cache for %s: %w", room, err)
	}
	return nil
}

func contentHash(sender, content string) string {
	h := fnv.New64a()
	h.Write([]byte(sender))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return fmt.Sprintf("%016x", h.Sum64())
}
