package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-price-watcher/internal/domain"
)

// Store binds the repository functions used by the check loop to one
// *gorm.DB: the scheduler's snapshot source and the checker's recorder.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	return ListActive(ctx, s.DB)
}

func (s *Store) RecordObservation(ctx context.Context, subID uint, price float64, at time.Time) error {
	return RecordObservation(ctx, s.DB, subID, price, at)
}
