/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/hearth/internal/actor"
	"github.com/friendsincode/hearth/internal/config"
	"github.com/friendsincode/hearth/internal/room"
	"github.com/friendsincode/hearth/internal/state"
)

const serverSchedule = `
rooms:
  living:
    actors:
      - type: thermostat
        entity_id: climate.living
    schedule:
      - value: 21.0
        start: "08:00"
        end: "12:00"
`

type nullSink struct{}

func (nullSink) CallService(ctx context.Context, cmd actor.Command) error { return nil }

func testServer(t *testing.T) *Server {
	t.Helper()
	file, err := config.ParseSchedule([]byte(serverSchedule))
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	states := state.NewStore()
	plans, err := file.BuildRooms(states, zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildRooms: %v", err)
	}
	svc := room.New(plans[0], room.Deps{
		States:   states,
		Sink:     nullSink{},
		Logger:   zerolog.Nop(),
		Location: time.UTC,
		Now: func() time.Time {
			return time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
		},
	})
	cfg := &config.Config{HTTPPort: 0}
	return New(cfg, []*room.Service{svc}, zerolog.Nop())
}

func request(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Body.String(), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func TestHealthz(t *testing.T) {
	s := testServer(t)
	rec, body := request(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", rec.Code, body)
	}
	if body["rooms"] != 1.0 {
		t.Fatalf("rooms = %v", body["rooms"])
	}
}

func TestListAndGetRoom(t *testing.T) {
	s := testServer(t)

	rec, _ := request(t, s, http.MethodGet, "/api/rooms", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}
	var statuses []room.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &statuses); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(statuses) != 1 || statuses[0].Name != "living" {
		t.Fatalf("statuses = %+v", statuses)
	}

	rec, body := request(t, s, http.MethodGet, "/api/rooms/living", "")
	if rec.Code != http.StatusOK || body["name"] != "living" {
		t.Fatalf("get room = %d %v", rec.Code, body)
	}

	rec, body = request(t, s, http.MethodGet, "/api/rooms/attic", "")
	if rec.Code != http.StatusNotFound || body["error"] == nil {
		t.Fatalf("unknown room = %d %v", rec.Code, body)
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	s := testServer(t)
	rec, body := request(t, s, http.MethodPost, "/api/rooms/living/evaluate", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate = %d", rec.Code)
	}
	if body["matched"] != true || body["value"] != 21.0 {
		t.Fatalf("evaluate body = %v", body)
	}
}

func TestSetValueEndpoint(t *testing.T) {
	s := testServer(t)

	rec, body := request(t, s, http.MethodPost, "/api/rooms/living/value", `{"value": 18.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("set value = %d %v", rec.Code, body)
	}
	if body["override"] != 18.5 {
		t.Fatalf("override = %v", body["override"])
	}

	rec, _ = request(t, s, http.MethodPost, "/api/rooms/living/value", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing value = %d", rec.Code)
	}

	rec, _ = request(t, s, http.MethodPost, "/api/rooms/living/value", `{"value": "warm"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("rejected value = %d", rec.Code)
	}

	rec, body = request(t, s, http.MethodDelete, "/api/rooms/living/override", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("clear override = %d", rec.Code)
	}
	if _, stillSet := body["override"]; stillSet {
		t.Fatalf("override should be cleared, body = %v", body)
	}
}
