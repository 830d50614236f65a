// Package speech turns filtered text into audio and plays it. Synthesis is
// an opaque capability behind the Synthesizer interface; playback owns at
// most one audio subprocess at a time.
package speech

import "context"

// Voice identifies the synthesis voice for one profile.
type Voice struct {
	ID string
	// Extension is the audio container the provider produces (".wav",
	// ".mp3", ...). Cached artifacts keep it.
	Extension string
}

// Synthesizer converts text to audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)
}

// SynthesizerFunc adapts a function to Synthesizer.
type SynthesizerFunc func(ctx context.Context, text string, voice Voice) ([]byte, error)

// Synthesize implements Synthesizer.
func (f SynthesizerFunc) Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error) {
	return f(ctx, text, voice)
}
