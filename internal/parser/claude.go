package parser

import (
	"strings"
	"time"

	"github.com/goccy/go-json"

	"talkback/pkg/models"
)

// ClaudeParser reads Claude Code session transcripts: JSONL files under
// ~/.claude/projects, one message envelope per line.
type ClaudeParser struct{}

// Name implements Parser.
func (ClaudeParser) Name() string { return "claude" }

// Mode implements Parser. Claude transcripts grow by appended lines.
func (ClaudeParser) Mode() GrowthMode { return ModeAppend }

// transcriptLine is one line of a Claude Code transcript.
type transcriptLine struct {
	Type      string `json:"type"`
	CWD       string `json:"cwd"`
	Timestamp string `json:"timestamp"`
	Message   struct {
		Role    string `json:"role"`
		Content any    `json:"content"` // Can be string or array
	} `json:"message"`
}

// Parse implements Parser.
func (ClaudeParser) Parse(data []byte, path string) []models.ParsedMessage {
	var out []models.ParsedMessage
	batchCWD := ""

	scanLines(data, func(line []byte) {
		var rec transcriptLine
		if err := json.Unmarshal(line, &rec); err != nil {
			return
		}
		if rec.Type != "user" && rec.Type != "assistant" && rec.Type != "message" {
			return
		}

		role := models.Role(rec.Message.Role)
		if !role.Valid() {
			return
		}

		// The session's working directory is stamped on each line; the
		// first one seen labels the whole batch.
		if batchCWD == "" && rec.CWD != "" {
			batchCWD = rec.CWD
		}

		text, images := extractContent(rec.Message.Content)
		if text == "" {
			return
		}

		out = append(out, models.ParsedMessage{
			Role:      role,
			Content:   text,
			Timestamp: parseTimestamp(rec.Timestamp),
			Images:    images,
		})
	})

	for i := range out {
		out[i].CWD = batchCWD
	}
	return out
}

// extractContent pulls the speakable text and image references out of a
// message body, which is either a plain string or an array of typed blocks.
// Tool invocations and tool results are skipped.
func extractContent(content any) (string, []string) {
	switch v := content.(type) {
	case string:
		return v, nil
	case []interface{}:
		var texts []string
		var images []string
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			switch m["type"] {
			case "text":
				if text, ok := m["text"].(string); ok {
					texts = append(texts, text)
				}
			case "image":
				images = append(images, imageRef(m))
			}
		}
		return strings.Join(texts, "\n"), images
	}
	return "", nil
}

// imageRef describes an image block well enough to count and display it.
func imageRef(block map[string]interface{}) string {
	source, ok := block["source"].(map[string]interface{})
	if !ok {
		return "image"
	}
	if mediaType, ok := source["media_type"].(string); ok {
		return mediaType
	}
	return "image"
}

// parseTimestamp reads the RFC3339 stamps both transcript formats use.
// A missing or malformed stamp yields the zero time; the processor
// substitutes arrival time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
