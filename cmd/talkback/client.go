package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"talkback/internal/config"
)

// apiClient talks to a running daemon's control surface.
type apiClient struct {
	baseURL string
	http    *http.Client
}

// newAPIClient resolves the daemon port from the same config the daemon
// reads, so CLI and daemon agree without extra flags.
func newAPIClient() *apiClient {
	port := config.DefaultPort
	if cfg, err := config.Load(); err == nil {
		port = cfg.Port
	}
	return &apiClient{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d/api", port),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// get issues a GET and decodes the JSON response into out.
func (c *apiClient) get(path string, out any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// post issues a POST with an optional JSON body, decoding into out when
// non-nil.
func (c *apiClient) post(path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.http.Post(c.baseURL+path, "application/json", reader)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

// del issues a DELETE and decodes into out when non-nil.
func (c *apiClient) del(path string, out any) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("is the daemon running? %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		var errBody struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error != "" {
			return fmt.Errorf("daemon: %s", errBody.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
