package filter

import (
	"regexp"
	"strings"

	"talkback/pkg/models"
)

var (
	// fencedCodeRegex matches complete ``` blocks, which are removed
	// outright. Reading code aloud is worse than silence.
	fencedCodeRegex = regexp.MustCompile("(?s)```.*?```")

	// danglingFenceRegex catches an unterminated fence from a partially
	// written log line; everything after it is code.
	danglingFenceRegex = regexp.MustCompile("(?s)```.*$")

	inlineCodeRegex = regexp.MustCompile("`([^`\n]*)`")

	mdImageRegex = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	mdLinkRegex  = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)

	headerRegex     = regexp.MustCompile(`(?m)^[ \t]*#{1,6}[ \t]+`)
	blockquoteRegex = regexp.MustCompile(`(?m)^[ \t]*>[ \t]?`)
	hrRegex         = regexp.MustCompile(`(?m)^[ \t]*(?:[-*_][ \t]*){3,}$`)
	bulletRegex     = regexp.MustCompile(`(?m)^[ \t]*[-*+][ \t]+`)
	numberedRegex   = regexp.MustCompile(`(?m)^[ \t]*\d+[.)][ \t]+`)
	tableRuleRegex  = regexp.MustCompile(`(?m)^[ \t]*\|?[-:| \t]+\|?[ \t]*$`)

	boldRegex       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldUnderRegex  = regexp.MustCompile(`__([^_]+)__`)
	italicRegex     = regexp.MustCompile(`\*([^*\n]+)\*`)
	strikeRegex     = regexp.MustCompile(`~~([^~]+)~~`)
)

type markdownFilter struct{}

func newMarkdownFilter() markdownFilter { return markdownFilter{} }

func (markdownFilter) Name() string { return NameMarkdown }

// Apply strips markdown structure down to plain sentences. Inline code keeps
// its content; fenced blocks disappear entirely, so a code-only message ends
// up empty and is dropped by the chain.
func (markdownFilter) Apply(msg *models.ParsedMessage) *models.ParsedMessage {
	text := msg.Content

	text = fencedCodeRegex.ReplaceAllString(text, " ")
	text = danglingFenceRegex.ReplaceAllString(text, " ")
	text = inlineCodeRegex.ReplaceAllString(text, "$1")

	text = mdImageRegex.ReplaceAllString(text, " ")
	text = mdLinkRegex.ReplaceAllString(text, "$1")

	text = headerRegex.ReplaceAllString(text, "")
	text = blockquoteRegex.ReplaceAllString(text, "")
	text = hrRegex.ReplaceAllString(text, "")
	text = tableRuleRegex.ReplaceAllString(text, "")
	text = bulletRegex.ReplaceAllString(text, "")
	text = numberedRegex.ReplaceAllString(text, "")

	text = boldRegex.ReplaceAllString(text, "$1")
	text = boldUnderRegex.ReplaceAllString(text, "$1")
	text = italicRegex.ReplaceAllString(text, "$1")
	text = strikeRegex.ReplaceAllString(text, "$1")

	text = strings.ReplaceAll(text, "|", " ")

	msg.Content = joinSentences(text)
	return msg
}

// joinSentences flattens lines into one paragraph, closing each line that
// lacks terminal punctuation with a period so downstream pauses and the
// length limiter's sentence boundaries line up with the author's line
// breaks.
func joinSentences(text string) string {
	lines := strings.Split(text, "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.ContainsAny(line[len(line)-1:], ".!?:;,") {
			line += "."
		}
		parts = append(parts, line)
	}
	return collapseSpaces(strings.Join(parts, " "))
}
