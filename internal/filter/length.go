package filter

import (
	"strings"

	"talkback/pkg/models"
)

// lengthFilter drops messages under the minimum and truncates messages over
// the maximum, preferring a sentence boundary over a mid-word cut.
type lengthFilter struct {
	min int
	max int
}

func (lengthFilter) Name() string { return NameLength }

func (f lengthFilter) Apply(msg *models.ParsedMessage) *models.ParsedMessage {
	runes := []rune(msg.Content)
	if f.min > 0 && len(runes) < f.min {
		return nil
	}
	if f.max <= 0 || len(runes) <= f.max {
		return msg
	}

	head := runes[:f.max]
	if cut := lastSentenceEnd(head); cut > 0 {
		msg.Content = strings.TrimSpace(string(head[:cut]))
		return msg
	}

	msg.Content = strings.TrimSpace(string(head)) + "…"
	return msg
}

// lastSentenceEnd returns the index just past the final sentence terminator
// in runes, or 0 when there is none.
func lastSentenceEnd(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return i + 1
		}
	}
	return 0
}
