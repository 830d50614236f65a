// Package worker serves the HTTP control surface: control operations, the
// playback log, status, and the SSE event stream. It holds no pipeline
// state of its own; every mutation goes through the Controller handle it
// was given.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"talkback/internal/events"
	"talkback/internal/store"
	"talkback/internal/worker/sse"
	"talkback/pkg/models"
)

// SweepResult reports what a retention sweep removed.
type SweepResult struct {
	Records   int64 `json:"records"`
	Artifacts int64 `json:"artifacts"`
}

// Controller is the pipeline control surface. The app layer implements it;
// transports receive it explicitly instead of reaching for shared globals.
type Controller interface {
	Pause()
	Resume()
	Stop()
	Skip()
	SetMuted(muted bool)
	Replay(ctx context.Context, id int64) error
	SetFavorite(ctx context.Context, id int64, favorite bool) error
	SetProfileEnabled(ctx context.Context, profileID string, enabled bool) error
	ResetProfile(ctx context.Context, profileID string) (int64, error)
	Status() models.StatusSnapshot
	Logs(ctx context.Context, q store.LogQuery) ([]models.QueueRecord, error)
	Sweep(ctx context.Context, olderThan time.Duration) (SweepResult, error)
}

// Service is the HTTP server for the control surface.
type Service struct {
	controller  Controller
	bus         *events.Bus
	broadcaster *sse.Broadcaster
	router      chi.Router
	server      *http.Server
	unsubscribe func()
}

// NewService wires the routes and bridges the event bus onto SSE.
func NewService(port int, controller Controller, bus *events.Bus) *Service {
	svc := &Service{
		controller:  controller,
		bus:         bus,
		broadcaster: sse.NewBroadcaster(),
		router:      chi.NewRouter(),
	}
	svc.setupRoutes()

	svc.unsubscribe = bus.Subscribe(svc.broadcaster.Broadcast)

	svc.server = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           svc.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return svc
}

func (s *Service) setupRoutes() {
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/healthz", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/logs", s.handleLogs)
		r.Get("/events", s.broadcaster.HandleSSE)

		r.Route("/control", func(r chi.Router) {
			r.Post("/pause", s.handlePause)
			r.Post("/resume", s.handleResume)
			r.Post("/stop", s.handleStop)
			r.Post("/skip", s.handleSkip)
			r.Post("/mute", s.handleMute)
			r.Post("/sweep", s.handleSweep)
		})

		r.Route("/records/{id}", func(r chi.Router) {
			r.Post("/replay", s.handleReplay)
			r.Post("/favorite", s.handleFavorite)
		})

		r.Route("/profiles/{id}", func(r chi.Router) {
			r.Post("/enabled", s.handleProfileEnabled)
			r.Delete("/watch-state", s.handleProfileReset)
		})
	})
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("Control surface listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.unsubscribe()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown control surface: %w", err)
	}
	return <-errCh
}

// Router exposes the handler for tests.
func (s *Service) Router() http.Handler {
	return s.router
}
