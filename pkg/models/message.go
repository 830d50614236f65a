// Package models contains domain models for talkback.
package models

import "time"

// Role identifies which side of a session wrote a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one talkback knows how to route.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ParsedMessage is a single conversational turn extracted from a session log.
// It exists only in memory between parsing and enqueueing; the persisted form
// is QueueRecord.
type ParsedMessage struct {
	Role      Role
	Content   string
	Timestamp time.Time
	// CWD is the working directory of the session that produced the message,
	// when the log format records one.
	CWD string
	// Images holds references (paths or media types) to image attachments
	// found alongside the text. They are never synthesized, only counted.
	Images []string
}

// Empty reports whether the message carries no speakable text.
func (m *ParsedMessage) Empty() bool {
	return len(m.Content) == 0
}
