package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"

	"github.com/acm19/shrink/internal/logger"
	"github.com/acm19/shrink/internal/shrink"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type contextKey struct{}

var adminKey = contextKey{}

// Options holds the collaborators the HTTP API drives.
type Options struct {
	APIKey  string
	Guard   *shrink.Guard
	Scanner *shrink.Scanner
	Engine  *shrink.Engine
	Remover *shrink.OriginalRemover
	Tracker shrink.Tracker
	// Pause is the delay after a resumable resize.
	Pause time.Duration
}

// Server exposes the resize operations over HTTP.
type Server struct {
	opts   Options
	router chi.Router
	sleep  func(ctx context.Context, d time.Duration)
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	s := &Server{opts: opts, sleep: sleepContext}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.identify)
	r.Route("/api", func(r chi.Router) {
		r.Post("/token", s.handleToken)
		r.Group(func(r chi.Router) {
			r.Use(s.verify)
			r.Post("/images", s.handleImages)
			r.Post("/resize", s.handleResize)
			r.Post("/remove-original", s.handleRemoveOriginal)
			r.Post("/bulk-complete", s.handleBulkComplete)
			r.Post("/stop", s.handleStop)
			r.Get("/cursor", s.handleCursor)
		})
	})
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logger.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}

// identify marks the request as admin when it carries the configured API key.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin := false
		if s.opts.APIKey != "" {
			if key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				admin = subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.APIKey)) == 1
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), adminKey, admin)))
	})
}

func isAdmin(r *http.Request) bool {
	admin, _ := r.Context().Value(adminKey).(bool)
	return admin
}

// verify runs the guard before any handler touches an image.
func (s *Server) verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := shrink.Request{Admin: isAdmin(r), Token: r.FormValue("token")}
		if err := s.opts.Guard.Verify(req); err != nil {
			logger.Debug("Rejected request", "path", r.URL.Path, "error", err)
			writeFailure(w, http.StatusForbidden, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		writeFailure(w, http.StatusForbidden, shrink.ErrPermission.Error())
		return
	}
	action := r.FormValue("action")
	if action == "" {
		action = shrink.ActionBulk
	}
	token, err := s.opts.Guard.Issue(action)
	if err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	resumeID, err := parseID(r.FormValue("resume_id"))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid resume_id")
		return
	}
	ids, err := s.opts.Scanner.Scan(r.Context(), resumeID)
	if err != nil {
		logger.Error("Scan failed", "error", err)
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.FormValue("id"))
	if err == nil {
		err = shrink.RequireID(id)
	}
	if err != nil {
		writeFailure(w, http.StatusBadRequest, shrink.ErrMissingID.Error())
		return
	}

	outcome := s.opts.Engine.ResizeByID(r.Context(), id)

	if resumable, _ := strconv.ParseBool(r.FormValue("resumable")); resumable {
		if err := s.opts.Tracker.Advance(r.Context(), id); err != nil {
			logger.Error("Failed to advance resume cursor", "id", id, "error", err)
		}
		s.sleep(r.Context(), s.opts.Pause)
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleRemoveOriginal(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.FormValue("id"))
	if err == nil {
		err = shrink.RequireID(id)
	}
	if err != nil {
		writeFailure(w, http.StatusBadRequest, shrink.ErrMissingID.Error())
		return
	}

	sizes, removal, err := s.opts.Remover.RemoveOriginal(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": removal.String(),
		"sizes":   sizes,
	})
}

func (s *Server) handleBulkComplete(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Tracker.Reset(r.Context()); err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Tracker.Stop(r.Context()); err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleCursor(w http.ResponseWriter, r *http.Request) {
	state, err := s.opts.Tracker.State(r.Context())
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// parseID parses an optional numeric identifier. Empty means 0.
func parseID(value string) (uint64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseUint(value, 10, 64)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, shrink.Outcome{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to write response", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
