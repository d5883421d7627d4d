/*
Copyright 2025 The insightd Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/ha-ai/insightd/pkg/capability"
	"github.com/ha-ai/insightd/pkg/httpx"
	"github.com/ha-ai/insightd/pkg/models"
)

type healthResponse struct {
	Status       string            `json:"status"`
	Time         time.Time         `json:"time"`
	Database     string            `json:"database"`
	EventStore   httpx.HealthState `json:"event_store"`
	Registry     httpx.HealthState `json:"registry"`
	Orchestrator httpx.HealthState `json:"orchestrator"`
	Capabilities capability.Stats  `json:"capabilities"`
}

// handleHealth reports liveness plus collaborator reachability and
// capability store statistics.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := healthResponse{
		Status:       "ok",
		Time:         s.now(),
		Database:     "ok",
		EventStore:   s.deps.Events.Health(ctx),
		Registry:     s.deps.Registry.Health(ctx),
		Orchestrator: s.deps.Orchestrator.Health(ctx),
	}
	if err := s.deps.Store.Ping(ctx); err != nil {
		resp.Database = "down"
		resp.Status = "degraded"
	}
	if stats, err := s.deps.Capabilities.Stats(ctx); err == nil {
		resp.Capabilities = stats
	}
	if resp.EventStore == httpx.HealthDown || resp.Registry == httpx.HealthDown {
		resp.Status = "degraded"
	}
	s.respond(w, http.StatusOK, resp)
}

// handleDataEvents proxies a bounded event query to the event store.
// Malformed time or limit parameters are a 400.
func (s *Server) handleDataEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	to := s.now()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			s.respondError(w, r, http.StatusBadRequest, "from: expected RFC3339 timestamp")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			s.respondError(w, r, http.StatusBadRequest, "to: expected RFC3339 timestamp")
			return
		}
	}
	if !from.Before(to) {
		s.respondError(w, r, http.StatusBadRequest, "from must precede to")
		return
	}
	limit := 1000
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			s.respondError(w, r, http.StatusBadRequest, "limit: expected positive integer")
			return
		}
	}

	filter := models.EventFilter{
		EntityID: q.Get("entity_id"),
		DeviceID: q.Get("device_id"),
		Domain:   q.Get("domain"),
	}
	events, err := s.deps.Events.FetchEvents(r.Context(), from, to, filter, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleDataDevices proxies the registry's device inventory. Event-window
// query parameters belong to /api/data/events; requests carrying them here
// are rejected rather than silently ignored.
func (s *Server) handleDataDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("from") != "" || q.Get("to") != "" {
		s.respondError(w, r, http.StatusBadRequest,
			"from/to are event query parameters; use /api/data/events")
		return
	}
	devices, err := s.deps.Registry.ListDevices(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleDataEntities flattens the registry inventory into entities.
func (s *Server) handleDataEntities(w http.ResponseWriter, r *http.Request) {
	devices, err := s.deps.Registry.ListDevices(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	type entityInfo struct {
		models.EntityRef
		DeviceID string `json:"device_id"`
		AreaID   string `json:"area_id,omitempty"`
	}
	var entities []entityInfo
	for _, device := range devices {
		for _, ref := range device.Entities {
			entities = append(entities, entityInfo{
				EntityRef: ref,
				DeviceID:  device.DeviceID,
				AreaID:    device.AreaID,
			})
		}
	}
	s.respond(w, http.StatusOK, map[string]interface{}{
		"entities": entities,
		"count":    len(entities),
	})
}
