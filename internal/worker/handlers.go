package worker

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"talkback/internal/store"
)

// maxLogPageSize bounds one log page.
const maxLogPageSize = 500

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Status())
}

func (s *Service) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := store.LogQuery{
		Limit:         50,
		ProfileID:     r.URL.Query().Get("profile"),
		CWD:           r.URL.Query().Get("cwd"),
		FavoritesOnly: r.URL.Query().Get("favorites") == "true",
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		q.Limit = min(n, maxLogPageSize)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		q.Offset = n
	}

	records, err := s.controller.Logs(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Service) handlePause(w http.ResponseWriter, r *http.Request) {
	s.controller.Pause()
	writeOK(w)
}

func (s *Service) handleResume(w http.ResponseWriter, r *http.Request) {
	s.controller.Resume()
	writeOK(w)
}

func (s *Service) handleStop(w http.ResponseWriter, r *http.Request) {
	s.controller.Stop()
	writeOK(w)
}

func (s *Service) handleSkip(w http.ResponseWriter, r *http.Request) {
	s.controller.Skip()
	writeOK(w)
}

func (s *Service) handleMute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.controller.SetMuted(body.Muted)
	writeOK(w)
}

func (s *Service) handleSweep(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OlderThanDays int `json:"olderThanDays"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.OlderThanDays <= 0 {
		writeError(w, http.StatusBadRequest, "olderThanDays must be positive")
		return
	}

	result, err := s.controller.Sweep(r.Context(), time.Duration(body.OlderThanDays)*24*time.Hour)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Service) handleReplay(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	switch err := s.controller.Replay(r.Context(), id); {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case err != nil:
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeOK(w)
	}
}

func (s *Service) handleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := recordID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	var body struct {
		Favorite bool `json:"favorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	switch err := s.controller.SetFavorite(r.Context(), id, body.Favorite); {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeOK(w)
	}
}

func (s *Service) handleProfileEnabled(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "id")
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if err := s.controller.SetProfileEnabled(r.Context(), profileID, body.Enabled); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeOK(w)
}

func (s *Service) handleProfileReset(w http.ResponseWriter, r *http.Request) {
	profileID := chi.URLParam(r, "id")
	removed, err := s.controller.ResetProfile(r.Context(), profileID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func recordID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
