package dlq

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// RecordStore is the durable sink for captured dead-letter messages.
type RecordStore interface {
	Save(ctx context.Context, msg *DeadLetterMessage) error
}

// Store implements RecordStore on top of GORM.
type Store struct {
	db *gorm.DB
}

// NewStore creates a dead-letter record store backed by the given database
// handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Save(ctx context.Context, msg *DeadLetterMessage) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("failed to save dead-letter message: %w", err)
	}
	return nil
}
