// Package store implements the task, report, template and message-cache
// stores on GORM.
package store

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps a GORM connection. All methods are safe for concurrent use.
type Store struct {
	db *gorm.DB
}

// New creates a Store on db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB { return s.db }

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
