package speech

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CommandProvider synthesizes speech with a local TTS binary. The command
// template names its arguments with {text}, {voice} and {output}
// placeholders, e.g. macOS: "say -v {voice} -o {output} {text}".
type CommandProvider struct {
	Template string
}

// NewCommandProvider creates a provider from a command template.
func NewCommandProvider(template string) (*CommandProvider, error) {
	if strings.TrimSpace(template) == "" {
		return nil, fmt.Errorf("speech: empty synthesis command")
	}
	if !strings.Contains(template, "{output}") {
		return nil, fmt.Errorf("speech: synthesis command needs an {output} placeholder")
	}
	return &CommandProvider{Template: template}, nil
}

// Synthesize implements Synthesizer: run the command against a temp output
// file and return its bytes. The temp file is removed regardless of
// outcome.
func (p *CommandProvider) Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error) {
	ext := voice.Extension
	if ext == "" {
		ext = ".wav"
	}
	output := filepath.Join(os.TempDir(), "talkback-synth-"+uuid.NewString()+ext)
	defer os.Remove(output)

	args := splitTemplate(p.Template, map[string]string{
		"{text}":   text,
		"{voice}":  voice.ID,
		"{output}": output,
	})
	if len(args) == 0 {
		return nil, fmt.Errorf("speech: empty synthesis command")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Debug().Err(err).Str("cmd", args[0]).Bytes("output", out).Msg("Synthesis command failed")
		return nil, fmt.Errorf("synthesis command %s: %w", args[0], err)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("read synthesized audio: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("synthesis command %s produced no audio", args[0])
	}
	return data, nil
}

// splitTemplate tokenizes the template on spaces, then substitutes
// placeholders per token. Substituted values never re-split, so text with
// spaces stays a single argument and nothing passes through a shell.
func splitTemplate(template string, subs map[string]string) []string {
	fields := strings.Fields(template)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		for k, v := range subs {
			f = strings.ReplaceAll(f, k, v)
		}
		out = append(out, f)
	}
	return out
}
