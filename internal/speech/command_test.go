package speech

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommandProvider_Validation(t *testing.T) {
	_, err := NewCommandProvider("")
	assert.Error(t, err)

	_, err = NewCommandProvider("say -v {voice} {text}")
	assert.Error(t, err, "a command without {output} cannot produce an artifact")

	p, err := NewCommandProvider("say -v {voice} -o {output} {text}")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestSplitTemplate(t *testing.T) {
	args := splitTemplate("say -v {voice} -o {output} {text}", map[string]string{
		"{text}":   "hello there world",
		"{voice}":  "Samantha",
		"{output}": "/tmp/out.wav",
	})
	assert.Equal(t, []string{"say", "-v", "Samantha", "-o", "/tmp/out.wav", "hello there world"}, args,
		"substituted text with spaces stays one argument")
}

func TestCommandProvider_Synthesize(t *testing.T) {
	// cp stands in for a TTS binary: {text} carries a source path whose
	// bytes end up in {output}.
	src := filepath.Join(t.TempDir(), "fake-audio.wav")
	require.NoError(t, os.WriteFile(src, []byte("RIFF fake audio"), 0o600))

	p, err := NewCommandProvider("cp {text} {output}")
	require.NoError(t, err)

	data, err := p.Synthesize(context.Background(), src, Voice{ID: "x", Extension: ".wav"})
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF fake audio"), data)
}

func TestCommandProvider_SynthesizeFailure(t *testing.T) {
	p, err := NewCommandProvider("false {output}")
	require.NoError(t, err)

	_, err = p.Synthesize(context.Background(), "anything", Voice{ID: "x"})
	assert.Error(t, err)
}

func TestCommandProvider_EmptyOutputIsError(t *testing.T) {
	// true exits 0 but writes nothing to {output}.
	p, err := NewCommandProvider("true {output}")
	require.NoError(t, err)

	_, err = p.Synthesize(context.Background(), "anything", Voice{ID: "x"})
	require.Error(t, err)
}
