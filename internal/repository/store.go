package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the job-store repositories over one database handle.
type Store struct {
	db     *gorm.DB
	Jobs   *JobRepository
	Chunks *ChunkRepository
}

// NewStore creates a Store bound to db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:     db,
		Jobs:   NewJobRepository(db),
		Chunks: NewChunkRepository(db),
	}
}

// Transaction runs fn with repositories bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
