package filter

import (
	"regexp"

	"talkback/pkg/models"
)

// strippedTags are the transcript control blocks assistants and CLI hooks
// embed in message text. None of them are speech; slash command echoes and
// injected reminders read as gibberish aloud.
var strippedTags = []string{
	"system-reminder",
	"command-name",
	"command-message",
	"command-args",
	"local-command-stdout",
	"local-command-stderr",
	"private",
}

var tagRegexes = compileTagRegexes()

func compileTagRegexes() []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(strippedTags))
	for _, tag := range strippedTags {
		out = append(out, regexp.MustCompile(`(?s)<`+tag+`>.*?</`+tag+`>`))
	}
	return out
}

// tagsFilter removes control-tag blocks. A message that was nothing but tags
// comes out empty and is dropped by the chain.
type tagsFilter struct{}

func (tagsFilter) Name() string { return NameTags }

func (tagsFilter) Apply(msg *models.ParsedMessage) *models.ParsedMessage {
	text := msg.Content
	for _, re := range tagRegexes {
		text = re.ReplaceAllString(text, " ")
	}
	msg.Content = collapseSpaces(text)
	return msg
}
