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

package community

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecommendationsDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/recommendations/LED1623G12", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"recommendations": [
			{"id": "rec-1", "device_model": "LED1623G12", "title": "Dim at sunset", "popularity": 0.8, "category": "comfort"}
		]}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, zap.NewNop())
	require.NoError(t, err)

	recs, err := c.Recommendations(context.Background(), "LED1623G12")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Dim at sunset", recs[0].Title)
	assert.InDelta(t, 0.8, recs[0].Popularity, 1e-9)
}

func TestRecommendationsUnknownModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such model", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, zap.NewNop())
	require.NoError(t, err)

	// Unknown models are a normal outcome, not an error.
	recs, err := c.Recommendations(context.Background(), "UNKNOWN-99")
	require.NoError(t, err)
	assert.Nil(t, recs)
}

func TestRecommendationsEscapesModel(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Write([]byte(`{"recommendations": []}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, zap.NewNop())
	require.NoError(t, err)

	_, err = c.Recommendations(context.Background(), "TRV/7 plus")
	require.NoError(t, err)
	assert.Equal(t, "/api/recommendations/TRV%2F7%20plus", gotPath)
}
