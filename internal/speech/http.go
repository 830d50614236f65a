package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// synthesisTimeout bounds one provider round trip. Stop and skip kill the
// audio process, not in-flight synthesis; the timeout keeps a hung provider
// from wedging the drain loop.
const synthesisTimeout = 60 * time.Second

// maxAudioBytes caps a provider response at 32 MiB.
const maxAudioBytes = 32 << 20

// HTTPProvider synthesizes speech through an opaque text-to-audio endpoint:
// POST a JSON body, receive audio bytes.
type HTTPProvider struct {
	URL        string
	AuthHeader string
	Client     *http.Client
}

// NewHTTPProvider creates a provider for the endpoint.
func NewHTTPProvider(url, authHeader string) (*HTTPProvider, error) {
	if url == "" {
		return nil, fmt.Errorf("speech: empty synthesis url")
	}
	return &HTTPProvider{
		URL:        url,
		AuthHeader: authHeader,
		Client:     &http.Client{Timeout: synthesisTimeout},
	}, nil
}

type synthesisRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// Synthesize implements Synthesizer.
func (p *HTTPProvider) Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error) {
	body, err := json.Marshal(synthesisRequest{Text: text, Voice: voice.ID})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.AuthHeader != "" {
		req.Header.Set("Authorization", p.AuthHeader)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("synthesis endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("synthesis endpoint returned no audio")
	}
	return data, nil
}
