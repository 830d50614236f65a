package worker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talkback/internal/events"
	"talkback/internal/store"
	"talkback/pkg/models"
)

// fakeController records calls and returns canned data.
type fakeController struct {
	calls []string

	replayErr  error
	logsResult []models.QueueRecord
	lastQuery  store.LogQuery
	lastSweep  time.Duration
}

func (c *fakeController) Pause()  { c.calls = append(c.calls, "pause") }
func (c *fakeController) Resume() { c.calls = append(c.calls, "resume") }
func (c *fakeController) Stop()   { c.calls = append(c.calls, "stop") }
func (c *fakeController) Skip()   { c.calls = append(c.calls, "skip") }

func (c *fakeController) SetMuted(muted bool) {
	if muted {
		c.calls = append(c.calls, "mute:on")
	} else {
		c.calls = append(c.calls, "mute:off")
	}
}

func (c *fakeController) Replay(_ context.Context, id int64) error {
	c.calls = append(c.calls, "replay")
	return c.replayErr
}

func (c *fakeController) SetFavorite(_ context.Context, id int64, favorite bool) error {
	c.calls = append(c.calls, "favorite")
	if id == 404 {
		return store.ErrNotFound
	}
	return nil
}

func (c *fakeController) SetProfileEnabled(_ context.Context, profileID string, enabled bool) error {
	c.calls = append(c.calls, "enabled:"+profileID)
	return nil
}

func (c *fakeController) ResetProfile(_ context.Context, profileID string) (int64, error) {
	c.calls = append(c.calls, "reset:"+profileID)
	return 3, nil
}

func (c *fakeController) Status() models.StatusSnapshot {
	return models.StatusSnapshot{
		Muted:     true,
		QueueSize: 2,
		Profiles:  []models.ProfileStatus{{ID: "claude", Parser: "claude", Enabled: true}},
	}
}

func (c *fakeController) Logs(_ context.Context, q store.LogQuery) ([]models.QueueRecord, error) {
	c.lastQuery = q
	return c.logsResult, nil
}

func (c *fakeController) Sweep(_ context.Context, olderThan time.Duration) (SweepResult, error) {
	c.lastSweep = olderThan
	return SweepResult{Records: 5, Artifacts: 2}, nil
}

func newTestService(t *testing.T) (*Service, *fakeController) {
	t.Helper()
	bus := events.NewBus(16)
	t.Cleanup(bus.Close)
	ctrl := &fakeController{}
	return NewService(0, ctrl, bus), ctrl
}

func do(t *testing.T, svc *Service, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body == "" {
		rdr = bytes.NewReader(nil)
	} else {
		rdr = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rdr)
	w := httptest.NewRecorder()
	svc.Router().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	svc, _ := newTestService(t)
	w := do(t, svc, http.MethodGet, "/api/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ok"`)
}

func TestStatus(t *testing.T) {
	svc, _ := newTestService(t)
	w := do(t, svc, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var snap models.StatusSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.True(t, snap.Muted)
	assert.Equal(t, 2, snap.QueueSize)
	require.Len(t, snap.Profiles, 1)
	assert.Equal(t, "claude", snap.Profiles[0].ID)
}

func TestControlEndpoints(t *testing.T) {
	tests := []struct {
		path string
		body string
		want string
	}{
		{path: "/api/control/pause", want: "pause"},
		{path: "/api/control/resume", want: "resume"},
		{path: "/api/control/stop", want: "stop"},
		{path: "/api/control/skip", want: "skip"},
		{path: "/api/control/mute", body: `{"muted":true}`, want: "mute:on"},
		{path: "/api/control/mute", body: `{"muted":false}`, want: "mute:off"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			svc, ctrl := newTestService(t)
			w := do(t, svc, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, []string{tt.want}, ctrl.calls)
		})
	}
}

func TestLogs_QueryParams(t *testing.T) {
	svc, ctrl := newTestService(t)
	ctrl.logsResult = []models.QueueRecord{{ID: 7, ProfileID: "claude"}}

	w := do(t, svc, http.MethodGet, "/api/logs?limit=10&offset=5&profile=claude&favorites=true&cwd=/proj", "")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 10, ctrl.lastQuery.Limit)
	assert.Equal(t, 5, ctrl.lastQuery.Offset)
	assert.Equal(t, "claude", ctrl.lastQuery.ProfileID)
	assert.Equal(t, "/proj", ctrl.lastQuery.CWD)
	assert.True(t, ctrl.lastQuery.FavoritesOnly)
	assert.Contains(t, w.Body.String(), `"records"`)
}

func TestLogs_LimitClamped(t *testing.T) {
	svc, ctrl := newTestService(t)
	w := do(t, svc, http.MethodGet, "/api/logs?limit=99999", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxLogPageSize, ctrl.lastQuery.Limit)
}

func TestLogs_BadParams(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Equal(t, http.StatusBadRequest, do(t, svc, http.MethodGet, "/api/logs?limit=zero", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, svc, http.MethodGet, "/api/logs?limit=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, svc, http.MethodGet, "/api/logs?offset=-2", "").Code)
}

func TestReplay(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Equal(t, http.StatusOK, do(t, svc, http.MethodPost, "/api/records/7/replay", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, svc, http.MethodPost, "/api/records/abc/replay", "").Code)
}

func TestReplay_Errors(t *testing.T) {
	svc, ctrl := newTestService(t)
	ctrl.replayErr = store.ErrNotFound
	assert.Equal(t, http.StatusNotFound, do(t, svc, http.MethodPost, "/api/records/7/replay", "").Code)

	ctrl.replayErr = assert.AnError
	assert.Equal(t, http.StatusConflict, do(t, svc, http.MethodPost, "/api/records/7/replay", "").Code,
		"a non-replayable state maps to conflict")
}

func TestFavorite(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Equal(t, http.StatusOK, do(t, svc, http.MethodPost, "/api/records/7/favorite", `{"favorite":true}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, svc, http.MethodPost, "/api/records/404/favorite", `{"favorite":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, svc, http.MethodPost, "/api/records/7/favorite", "{").Code)
}

func TestSweep(t *testing.T) {
	svc, ctrl := newTestService(t)
	w := do(t, svc, http.MethodPost, "/api/control/sweep", `{"olderThanDays":30}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30*24*time.Hour, ctrl.lastSweep)

	var result SweepResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, int64(5), result.Records)
	assert.Equal(t, int64(2), result.Artifacts)

	assert.Equal(t, http.StatusBadRequest, do(t, svc, http.MethodPost, "/api/control/sweep", `{"olderThanDays":0}`).Code)
}

func TestProfileEndpoints(t *testing.T) {
	svc, ctrl := newTestService(t)

	w := do(t, svc, http.MethodPost, "/api/profiles/claude/enabled", `{"enabled":false}`)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, svc, http.MethodDelete, "/api/profiles/claude/watch-state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"removed":3`)

	assert.Equal(t, []string{"enabled:claude", "reset:claude"}, ctrl.calls)
}

func TestSSE_StreamsBusEvents(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()
	svc := NewService(0, &fakeController{}, bus)

	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the subscription a moment to register, then publish.
	time.Sleep(100 * time.Millisecond)
	bus.Publish(events.ConfigError{Message: "bad profile"})

	buf := make([]byte, 4096)
	deadline := time.Now().Add(3 * time.Second)
	var got strings.Builder
	for time.Now().Before(deadline) {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			got.Write(buf[:n])
		}
		if strings.Contains(got.String(), "config-error") {
			break
		}
		if err != nil {
			break
		}
	}

	assert.Contains(t, got.String(), "event: connected")
	assert.Contains(t, got.String(), "event: config-error")
	assert.Contains(t, got.String(), "bad profile")
}
