// Package api provides the HTTP API for observing and steering the town.
// GET endpoints are public (read-only observation).
// POST and DELETE endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/talgya/village-mind/internal/config"
	"github.com/talgya/village-mind/internal/engine"
	"github.com/talgya/village-mind/internal/npc"
	"github.com/talgya/village-mind/internal/townevent"
)

// Server serves the town over HTTP.
type Server struct {
	Town     *engine.Town
	Addr     string
	AdminKey string // Bearer token for mutating endpoints. Empty = disabled.

	limiter *RateLimiter
	router  *chi.Mux
}

// NewServer builds the router for town.
func NewServer(town *engine.Town, cfg config.APIConfig) *Server {
	s := &Server{
		Town:     town,
		Addr:     cfg.Addr,
		AdminKey: cfg.AdminKey,
		limiter:  NewRateLimiter(cfg.RateLimit, cfg.Burst),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.limiter.Middleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Route("/npcs", func(r chi.Router) {
			r.Get("/", s.handleVillagers)
			r.With(s.adminOnly).Post("/", s.handleSpawn)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleVillager)
				r.Get("/awareness", s.handleAwareness)
				r.With(s.adminOnly).Delete("/", s.handleRemove)
				r.With(s.adminOnly).Post("/reset", s.handleReset)
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", s.handleEvents)
			r.With(s.adminOnly).Post("/", s.handlePropose)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleEvent)
				r.Get("/tally", s.handleTally)
				r.With(s.adminOnly).Post("/votes", s.handleVote)
				r.With(s.adminOnly).Post("/cancel", s.handleCancel)
			})
		})
	})
	return r
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", s.Addr, "admin_auth", s.AdminKey != "")

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.limiter.Cleanup(10 * time.Minute); n > 0 {
					slog.Debug("rate limiter cleanup", "dropped", n)
				}
			}
		}
	}()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("HTTP API stopped")
		return nil
	}
}

// checkBearerToken validates the Authorization header.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires the admin bearer token.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			writeError(w, http.StatusForbidden, "admin endpoints disabled (no VILLAGE_ADMIN_KEY set)")
			return
		}
		if !s.checkBearerToken(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Town.Status())
}

func (s *Server) handleVillagers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Town.Villagers())
}

func (s *Server) handleVillager(w http.ResponseWriter, r *http.Request) {
	id, ok := entityParam(w, r)
	if !ok {
		return
	}
	info, err := s.Town.Villager(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleAwareness(w http.ResponseWriter, r *http.Request) {
	id, ok := entityParam(w, r)
	if !ok {
		return
	}
	lvl, err := s.Town.Awareness(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        id,
		"awareness": lvl.String(),
		"suspicion": s.Town.Suspicion(id),
	})
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var spec engine.SpawnSpec
	if !decodeBody(w, r, &spec) {
		return
	}
	if spec.Personality != nil {
		if err := spec.Personality.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	id, err := s.Town.Spawn(spec)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	info, err := s.Town.Villager(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := entityParam(w, r)
	if !ok {
		return
	}
	if err := s.Town.RemoveNPC(id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, ok := entityParam(w, r)
	if !ok {
		return
	}
	if err := s.Town.ResetAwareness(id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "awareness": npc.Unaware.String()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Town.Events())
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.Town.Event(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type proposeRequest struct {
	Description string `json:"description"`
	Deadline    uint64 `json:"deadline"` // Absolute tick
	InTicks     uint64 `json:"in_ticks"` // Relative to now; used when deadline is 0
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	var req proposeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	deadline := req.Deadline
	if deadline == 0 {
		if req.InTicks == 0 {
			writeError(w, http.StatusBadRequest, "deadline or in_ticks is required")
			return
		}
		deadline = s.Town.Tick() + req.InTicks
	}
	id, err := s.Town.Propose(req.Description, deadline)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	e, err := s.Town.Event(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

type voteRequest struct {
	Voter  npc.EntityID `json:"voter"`
	Choice string       `json:"choice"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.Town.Vote(id, req.Voter, req.Choice); err != nil {
		writeEngineError(w, err)
		return
	}
	tally, err := s.Town.Tally(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tally)
}

func (s *Server) handleTally(w http.ResponseWriter, r *http.Request) {
	tally, err := s.Town.Tally(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tally)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Town.Cancel(id); err != nil {
		writeEngineError(w, err)
		return
	}
	tally, err := s.Town.Tally(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tally)
}

func entityParam(w http.ResponseWriter, r *http.Request) (npc.EntityID, bool) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid npc id")
		return 0, false
	}
	return npc.EntityID(n), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// writeEngineError maps domain errors onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, npc.ErrInvalidEntity), errors.Is(err, townevent.ErrUnknownEvent):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, townevent.ErrVoteClosed), errors.Is(err, engine.ErrCapacity):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, townevent.ErrInvalidProposal), errors.Is(err, townevent.ErrInvalidVote):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("api request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
