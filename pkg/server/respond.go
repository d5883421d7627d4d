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
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/httpx"
	"github.com/ha-ai/insightd/pkg/pipeline"
	"github.com/ha-ai/insightd/pkg/store"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
}

func (s *Server) respond(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if status >= 500 {
		s.deps.Logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.String("message", message),
			zap.String("correlation_id", middleware.GetReqID(r.Context())))
	}
	s.respond(w, status, errorBody{
		Message:       message,
		CorrelationID: middleware.GetReqID(r.Context()),
	})
}

// fail maps domain errors onto HTTP status codes: missing ids are 404,
// running-conflicts and bad transitions are 409, remote outages 503,
// everything else 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound) || httpx.IsNotFound(err):
		s.respondError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		s.respondError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrDuplicateKey):
		s.respondError(w, r, http.StatusConflict, err.Error())
	case strings.Contains(err.Error(), "cannot transition") ||
		strings.Contains(err.Error(), "cannot edit"):
		s.respondError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, httpx.ErrStoreUnavailable) || httpx.IsTransient(err):
		s.respondError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		s.respondError(w, r, http.StatusInternalServerError, err.Error())
	}
}

// decode reads a JSON request body, returning a 400-worthy error message.
func decode(r *http.Request, into interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(into)
}
