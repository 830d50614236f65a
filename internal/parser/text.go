package parser

import (
	"strings"

	"talkback/pkg/models"
)

// cwdHeader optionally labels a plain transcript with its working
// directory on the first line.
const cwdHeader = "# cwd:"

// TextParser reads plain transcript drops: whole files written once, the
// entire body treated as a single assistant turn.
type TextParser struct{}

// Name implements Parser.
func (TextParser) Name() string { return "text" }

// Mode implements Parser. Plain transcripts arrive as complete new files.
func (TextParser) Mode() GrowthMode { return ModeNewFile }

// Parse implements Parser.
func (TextParser) Parse(data []byte, path string) []models.ParsedMessage {
	body := strings.TrimSpace(string(data))
	cwd := ""

	if strings.HasPrefix(body, cwdHeader) {
		line, rest, _ := strings.Cut(body, "\n")
		cwd = strings.TrimSpace(strings.TrimPrefix(line, cwdHeader))
		body = strings.TrimSpace(rest)
	}

	if body == "" {
		return nil
	}

	return []models.ParsedMessage{{
		Role:    models.RoleAssistant,
		Content: body,
		CWD:     cwd,
	}}
}
