package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"talkback/pkg/models"
)

// interruptedNote is written to records found mid-playback after a crash.
const interruptedNote = "playback interrupted by restart"

// LogQuery selects a page of the playback log.
type LogQuery struct {
	Limit         int
	Offset        int
	ProfileID     string
	FavoritesOnly bool
	CWD           string
}

// QueueStore provides playback-log database operations.
type QueueStore struct {
	db *gorm.DB
}

// NewQueueStore creates a new queue store.
func NewQueueStore(store *Store) *QueueStore {
	return &QueueStore{db: store.DB}
}

// Insert persists a new record and returns it with the assigned ID.
func (s *QueueStore) Insert(ctx context.Context, rec *models.QueueRecord) (*models.QueueRecord, error) {
	row := fromModelRecord(rec)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("insert queue record: %w", err)
	}
	return toModelRecord(row), nil
}

// Get retrieves a record by ID. Returns ErrNotFound when the ID is unknown.
func (s *QueueStore) Get(ctx context.Context, id int64) (*models.QueueRecord, error) {
	var row QueueRecord
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return toModelRecord(&row), nil
}

// List returns records newest first, filtered per the query.
func (s *QueueStore) List(ctx context.Context, q LogQuery) ([]models.QueueRecord, error) {
	query := s.db.WithContext(ctx).Model(&QueueRecord{})

	if q.ProfileID != "" {
		query = query.Where("profile_id = ?", q.ProfileID)
	}
	if q.FavoritesOnly {
		query = query.Where("is_favorite = ?", true)
	}
	if q.CWD != "" {
		query = query.Where("cwd = ?", q.CWD)
	}

	query = query.Order("timestamp DESC, id DESC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}

	var rows []QueueRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]models.QueueRecord, 0, len(rows))
	for i := range rows {
		out = append(out, *toModelRecord(&rows[i]))
	}
	return out, nil
}

// CountByState counts records in the given state.
func (s *QueueStore) CountByState(ctx context.Context, state models.QueueState) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&QueueRecord{}).
		Where("state = ?", string(state)).
		Count(&count).Error
	return count, err
}

// MarkPlaying transitions a record into playing. Valid from queued and, for
// replays, from the terminal played/error states. The previous outcome
// columns are cleared so a replay reports only its own result.
func (s *QueueStore) MarkPlaying(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).
		Model(&QueueRecord{}).
		Where("id = ? AND state IN ?", id, []string{
			string(models.StateQueued), string(models.StatePlayed), string(models.StateError),
		}).
		Updates(map[string]interface{}{
			"state":                string(models.StatePlaying),
			"api_response_status":  nil,
			"api_response_message": nil,
			"processing_time_ms":   nil,
		})
	if res.Error != nil {
		return fmt.Errorf("mark playing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark playing id=%d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkPlayed finishes a playing record successfully.
func (s *QueueStore) MarkPlayed(ctx context.Context, id int64, status, message string, elapsed time.Duration) error {
	res := s.db.WithContext(ctx).
		Model(&QueueRecord{}).
		Where("id = ? AND state = ?", id, string(models.StatePlaying)).
		Updates(map[string]interface{}{
			"state":                string(models.StatePlayed),
			"api_response_status":  nullString(status),
			"api_response_message": nullString(message),
			"processing_time_ms":   elapsed.Milliseconds(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark played: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark played id=%d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkError finishes a playing record with a failure message.
func (s *QueueStore) MarkError(ctx context.Context, id int64, message string, elapsed time.Duration) error {
	res := s.db.WithContext(ctx).
		Model(&QueueRecord{}).
		Where("id = ? AND state = ?", id, string(models.StatePlaying)).
		Updates(map[string]interface{}{
			"state":                string(models.StateError),
			"api_response_status":  "error",
			"api_response_message": nullString(message),
			"processing_time_ms":   elapsed.Milliseconds(),
		})
	if res.Error != nil {
		return fmt.Errorf("mark error: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark error id=%d: %w", id, ErrNotFound)
	}
	return nil
}

// SweepInterrupted reclassifies every playing record as error. Run once at
// startup: a record still playing then is a crash artifact, and it is never
// auto-retried. Returns the number of records swept.
func (s *QueueStore) SweepInterrupted(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&QueueRecord{}).
		Where("state = ?", string(models.StatePlaying)).
		Updates(map[string]interface{}{
			"state":                string(models.StateError),
			"api_response_status":  "interrupted",
			"api_response_message": interruptedNote,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep interrupted: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SetFavorite toggles the favorite flag, the only mutation allowed on
// terminal records.
func (s *QueueStore) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	res := s.db.WithContext(ctx).
		Model(&QueueRecord{}).
		Where("id = ?", id).
		Update("is_favorite", favorite)
	if res.Error != nil {
		return fmt.Errorf("set favorite: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set favorite id=%d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteOlderThan removes terminal records with a timestamp before the
// cutoff. Favorites are kept. Returns the number of rows removed.
func (s *QueueStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("timestamp < ? AND is_favorite = ? AND state IN ?",
			cutoff.UnixMilli(), false, []string{
				string(models.StatePlayed), string(models.StateError), string(models.StateUser),
			}).
		Delete(&QueueRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete older than: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// fromModelRecord converts the wire shape into the database row.
func fromModelRecord(rec *models.QueueRecord) *QueueRecord {
	return &QueueRecord{
		ID:                 rec.ID,
		Timestamp:          rec.Timestamp,
		FilePath:           rec.FilePath,
		ProfileID:          rec.ProfileID,
		OriginalText:       rec.OriginalText,
		FilteredText:       rec.FilteredText,
		State:              string(rec.State),
		Role:               string(rec.Role),
		APIResponseStatus:  nullString(rec.APIResponseStatus),
		APIResponseMessage: nullString(rec.APIResponseMessage),
		ProcessingTimeMs:   nullInt64(rec.ProcessingTimeMs),
		IsFavorite:         rec.IsFavorite,
		CWD:                nullString(rec.CWD),
		ImageCount:         rec.ImageCount,
	}
}

// toModelRecord converts a database row into the wire shape.
func toModelRecord(row *QueueRecord) *models.QueueRecord {
	return &models.QueueRecord{
		ID:                 row.ID,
		Timestamp:          row.Timestamp,
		FilePath:           row.FilePath,
		ProfileID:          row.ProfileID,
		OriginalText:       row.OriginalText,
		FilteredText:       row.FilteredText,
		State:              models.QueueState(row.State),
		Role:               models.Role(row.Role),
		APIResponseStatus:  row.APIResponseStatus.String,
		APIResponseMessage: row.APIResponseMessage.String,
		ProcessingTimeMs:   row.ProcessingTimeMs.Int64,
		IsFavorite:         row.IsFavorite,
		CWD:                row.CWD.String,
		ImageCount:         row.ImageCount,
	}
}
