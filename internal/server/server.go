/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package server exposes the HTTP API: room status, manual control and
// metrics.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/hearth/internal/config"
	"github.com/friendsincode/hearth/internal/room"
	"github.com/friendsincode/hearth/internal/telemetry"
)

// Server bundles the HTTP API and the room services it fronts.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	rooms      map[string]*room.Service
	instanceID string
}

// New constructs the server and wires the routes.
func New(cfg *config.Config, rooms []*room.Service, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		logger:     logger.With().Str("component", "server").Logger(),
		rooms:      make(map[string]*room.Service, len(rooms)),
		instanceID: uuid.NewString(),
	}
	for _, svc := range rooms {
		s.rooms[svc.Name()] = svc
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(telemetry.MetricsMiddleware)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Get("/healthz", s.handleHealth)
	router.Handle("/metrics", telemetry.Handler())
	router.Route("/api", func(r chi.Router) {
		r.Get("/rooms", s.handleListRooms)
		r.Route("/rooms/{room}", func(r chi.Router) {
			r.Get("/", s.handleGetRoom)
			r.Post("/evaluate", s.handleEvaluate)
			r.Post("/value", s.handleSetValue)
			r.Delete("/override", s.handleClearOverride)
		})
	})
	s.router = router

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTPBind, cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// HTTPServer returns the configured http.Server.
func (s *Server) HTTPServer() *http.Server { return s.httpServer }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"instance": s.instanceID,
		"rooms":    len(s.rooms),
	})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	statuses := make([]room.Status, 0, len(s.rooms))
	for _, svc := range s.rooms {
		statuses = append(statuses, svc.Snapshot())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	writeJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.roomFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.roomFor(w, r)
	if !ok {
		return
	}
	result := svc.Evaluate(r.Context(), "api")
	response := map[string]any{"matched": result != nil}
	if result != nil {
		response["value"] = result.Value
		response["markers"] = result.Markers
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.roomFor(w, r)
	if !ok {
		return
	}
	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}
	if err := svc.SetValueManually(r.Context(), body.Value); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.roomFor(w, r)
	if !ok {
		return
	}
	svc.ClearOverride(r.Context())
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

func (s *Server) roomFor(w http.ResponseWriter, r *http.Request) (*room.Service, bool) {
	name := chi.URLParam(r, "room")
	svc, ok := s.rooms[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown room %q", name))
	}
	return svc, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
