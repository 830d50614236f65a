package parser

import (
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"talkback/pkg/models"
)

// CodexParser reads Codex CLI rollout files: JSONL under ~/.codex/sessions,
// envelope lines with a typed payload. The session_meta line appears once at
// the top of a rollout, so under append reading only the first batch of a
// file carries it; the working directory it names is remembered per path for
// every later batch.
type CodexParser struct {
	mu   sync.Mutex
	cwds map[string]string
}

// NewCodexParser creates the rollout parser.
func NewCodexParser() *CodexParser {
	return &CodexParser{cwds: make(map[string]string)}
}

// Name implements Parser.
func (*CodexParser) Name() string { return "codex" }

// Mode implements Parser.
func (*CodexParser) Mode() GrowthMode { return ModeAppend }

type rolloutLine struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

type rolloutMeta struct {
	ID  string `json:"id"`
	CWD string `json:"cwd"`
}

type rolloutItem struct {
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Parse implements Parser. Only payload type "message" speaks; reasoning,
// function calls and their outputs are skipped.
func (p *CodexParser) Parse(data []byte, path string) []models.ParsedMessage {
	var out []models.ParsedMessage
	batchCWD := ""

	scanLines(data, func(line []byte) {
		var rec rolloutLine
		if err := json.Unmarshal(line, &rec); err != nil {
			return
		}

		switch rec.Type {
		case "session_meta":
			var meta rolloutMeta
			if err := json.Unmarshal(rec.Payload, &meta); err != nil {
				return
			}
			if batchCWD == "" && meta.CWD != "" {
				batchCWD = meta.CWD
			}

		case "response_item":
			var item rolloutItem
			if err := json.Unmarshal(rec.Payload, &item); err != nil {
				return
			}
			if item.Type != "message" {
				return
			}
			role := models.Role(item.Role)
			if !role.Valid() {
				return
			}

			var texts []string
			for _, block := range item.Content {
				switch block.Type {
				case "input_text", "output_text", "text":
					if block.Text != "" {
						texts = append(texts, block.Text)
					}
				}
			}
			text := strings.Join(texts, "\n")
			if text == "" {
				return
			}

			out = append(out, models.ParsedMessage{
				Role:      role,
				Content:   text,
				Timestamp: parseTimestamp(rec.Timestamp),
			})
		}
	})

	p.mu.Lock()
	if batchCWD != "" {
		p.cwds[path] = batchCWD
	} else {
		batchCWD = p.cwds[path]
	}
	p.mu.Unlock()

	for i := range out {
		out[i].CWD = batchCWD
	}
	return out
}
