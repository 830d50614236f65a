package filter

import (
	"regexp"
	"strings"

	"talkback/pkg/models"
)

var urlRegex = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"')\]]+`)

// urlFilter replaces URLs with a short spoken token. Hearing a full URL
// character by character tells the listener nothing.
type urlFilter struct {
	token string
}

func newURLFilter(token string) urlFilter {
	if token == "" {
		token = "link"
	}
	return urlFilter{token: token}
}

func (urlFilter) Name() string { return NameURL }

func (f urlFilter) Apply(msg *models.ParsedMessage) *models.ParsedMessage {
	msg.Content = urlRegex.ReplaceAllStringFunc(msg.Content, func(m string) string {
		// Keep sentence punctuation that the match swallowed.
		trimmed := strings.TrimRight(m, ".,;:!?")
		return f.token + m[len(trimmed):]
	})
	return msg
}
