package models

// QueueState is the lifecycle state of a queue record.
type QueueState string

const (
	// StateQueued means the record passed the filter chain and is waiting
	// for playback.
	StateQueued QueueState = "queued"
	// StatePlaying means the record is the one currently being synthesized
	// or played. At most one record store-wide may hold this state.
	StatePlaying QueueState = "playing"
	// StatePlayed is the terminal success state.
	StatePlayed QueueState = "played"
	// StateError is the terminal failure state (synthesis or playback
	// failed, or playback was interrupted by a restart).
	StateError QueueState = "error"
	// StateUser marks a logged user message. User records never play.
	StateUser QueueState = "user"
)

// Terminal reports whether the state admits no further automatic transition.
func (s QueueState) Terminal() bool {
	return s == StatePlayed || s == StateError || s == StateUser
}

// QueueRecord is the persisted log entry for one processed message. Field
// names mirror the JSON shape served by the control surface.
type QueueRecord struct {
	ID           int64      `json:"id"`
	Timestamp    int64      `json:"timestamp"`
	FilePath     string     `json:"filePath"`
	ProfileID    string     `json:"profileId"`
	OriginalText string     `json:"originalText"`
	FilteredText string     `json:"filteredText"`
	State        QueueState `json:"state"`
	Role         Role       `json:"role"`

	// Playback outcome, populated once the record leaves queued.
	APIResponseStatus  string `json:"apiResponseStatus,omitempty"`
	APIResponseMessage string `json:"apiResponseMessage,omitempty"`
	ProcessingTimeMs   int64  `json:"processingTimeMs,omitempty"`

	IsFavorite bool   `json:"isFavorite"`
	CWD        string `json:"cwd,omitempty"`
	ImageCount int    `json:"imageCount,omitempty"`
}

// ProfileStatus is one entry of the status snapshot's profile list.
type ProfileStatus struct {
	ID      string `json:"id"`
	Parser  string `json:"parser"`
	Enabled bool   `json:"enabled"`
}

// StatusSnapshot is the answer to a status query.
type StatusSnapshot struct {
	Muted     bool            `json:"muted"`
	Paused    bool            `json:"paused"`
	Profiles  []ProfileStatus `json:"profiles"`
	QueueSize int             `json:"queueSize"`
	IsPlaying bool            `json:"isPlaying"`
}
