package store

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// FileWatchState tracks how far into a session log file processing has
// advanced. One row per absolute path; rows survive restarts so already
// spoken content is never replayed.
type FileWatchState struct {
	FilePath            string `gorm:"primaryKey;type:text"`
	ProfileID           string `gorm:"index:idx_watch_state_profile;not null"`
	LastModifiedEpoch   int64  `gorm:"not null"`
	FileSize            int64  `gorm:"not null;default:0"`
	LastProcessedOffset int64  `gorm:"not null;default:0"`
	UpdatedAt           string `gorm:"not null"`
	UpdatedAtEpoch      int64  `gorm:"not null"`
}

func (FileWatchState) TableName() string { return "file_watch_state" }

// BeforeSave hook to keep the update timestamps current.
func (w *FileWatchState) BeforeSave(tx *gorm.DB) error {
	now := time.Now()
	w.UpdatedAtEpoch = now.UnixMilli()
	w.UpdatedAt = now.Format(time.RFC3339)
	return nil
}

// QueueRecord is the persisted form of a processed message: the durable log
// entry plus the playback state machine column.
type QueueRecord struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Timestamp    int64  `gorm:"index:idx_queue_records_ts,sort:desc;not null"`
	CreatedAt    string `gorm:"not null"`
	FilePath     string `gorm:"type:text;not null"`
	ProfileID    string `gorm:"index:idx_queue_records_profile;not null"`
	OriginalText string `gorm:"type:text;not null"`
	FilteredText string `gorm:"type:text;not null"`
	State        string `gorm:"type:text;check:state IN ('queued', 'playing', 'played', 'error', 'user');index:idx_queue_records_state;not null"`
	Role         string `gorm:"type:text;check:role IN ('user', 'assistant');not null"`

	APIResponseStatus  sql.NullString `gorm:"type:text"`
	APIResponseMessage sql.NullString `gorm:"type:text"`
	ProcessingTimeMs   sql.NullInt64

	IsFavorite bool           `gorm:"default:false;index:idx_queue_records_favorite"`
	CWD        sql.NullString `gorm:"column:cwd;type:text"`
	ImageCount int            `gorm:"default:0"`
}

func (QueueRecord) TableName() string { return "queue_records" }

// BeforeCreate hook to ensure timestamps are set.
func (r *QueueRecord) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if r.Timestamp == 0 {
		r.Timestamp = now.UnixMilli()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = now.Format(time.RFC3339)
	}
	return nil
}
