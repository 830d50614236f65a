package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WatchStateStore provides file-offset tracking operations.
type WatchStateStore struct {
	db *gorm.DB
}

// NewWatchStateStore creates a new watch state store.
func NewWatchStateStore(store *Store) *WatchStateStore {
	return &WatchStateStore{db: store.DB}
}

// Get retrieves the watch state for a path. Returns (nil, nil) when the path
// has never been observed.
func (s *WatchStateStore) Get(ctx context.Context, path string) (*FileWatchState, error) {
	var st FileWatchState
	err := s.db.WithContext(ctx).First(&st, "file_path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// Upsert writes the watch state for a path, replacing any existing row.
// Offsets only move forward through here except for the explicit truncation
// reset, which the watcher performs by storing offset 0.
func (s *WatchStateStore) Upsert(ctx context.Context, st *FileWatchState) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_path"}},
			UpdateAll: true,
		}).
		Create(st).Error
}

// ForProfile lists all tracked paths for a profile.
func (s *WatchStateStore) ForProfile(ctx context.Context, profileID string) ([]FileWatchState, error) {
	var states []FileWatchState
	err := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("file_path ASC").
		Find(&states).Error
	if err != nil {
		return nil, err
	}
	return states, nil
}

// DeleteProfile removes every watch state row for a profile, so the next
// startup scan re-baselines its files. Returns the number of rows removed.
func (s *WatchStateStore) DeleteProfile(ctx context.Context, profileID string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Delete(&FileWatchState{})
	return res.RowsAffected, res.Error
}

// DeletePath removes the watch state for a single file.
func (s *WatchStateStore) DeletePath(ctx context.Context, path string) error {
	return s.db.WithContext(ctx).
		Where("file_path = ?", path).
		Delete(&FileWatchState{}).Error
}
