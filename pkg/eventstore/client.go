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

// Package eventstore fetches historical smart-home events from the external
// time-series store.
package eventstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/httpx"
	"github.com/ha-ai/insightd/pkg/models"
)

// Fetcher is the read surface the pipeline depends on. Tests substitute
// fakes.
type Fetcher interface {
	FetchEvents(ctx context.Context, from, to time.Time, filter models.EventFilter, limit int) ([]models.Event, error)
	Health(ctx context.Context) httpx.HealthState
}

// Client fetches events over the store's REST API with the shared retry
// policy.
type Client struct {
	http   *httpx.Client
	logger *zap.Logger
}

var _ Fetcher = (*Client)(nil)

// NewClient builds an event store client.
func NewClient(baseURL string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	hc, err := httpx.New(httpx.Options{BaseURL: baseURL, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("event store client: %w", err)
	}
	return &Client{http: hc, logger: logger}, nil
}

type eventRow struct {
	Timestamp  time.Time              `json:"timestamp"`
	EntityID   string                 `json:"entity_id"`
	DeviceID   string                 `json:"device_id"`
	Domain     string                 `json:"domain"`
	State      string                 `json:"state"`
	Attributes map[string]interface{} `json:"attributes"`
}

type eventsResponse struct {
	Events []eventRow `json:"events"`
	Count  int        `json:"count"`
}

// FetchEvents returns events in [from, to) ordered by ascending timestamp.
// Limit is an upper bound; fewer rows are returned when fewer exist.
func (c *Client) FetchEvents(ctx context.Context, from, to time.Time, filter models.EventFilter, limit int) ([]models.Event, error) {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if filter.EntityID != "" {
		q.Set("entity_id", filter.EntityID)
	}
	if filter.DeviceID != "" {
		q.Set("device_id", filter.DeviceID)
	}
	if filter.Domain != "" {
		q.Set("domain", filter.Domain)
	}

	var resp eventsResponse
	if err := c.http.GetJSON(ctx, "/api/v1/events", q, &resp); err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}

	events := make([]models.Event, 0, len(resp.Events))
	for _, row := range resp.Events {
		events = append(events, models.Event{
			Timestamp:  row.Timestamp.UTC(),
			EntityID:   row.EntityID,
			DeviceID:   row.DeviceID,
			Domain:     row.Domain,
			State:      row.State,
			Attributes: row.Attributes,
		})
	}
	// The store promises ascending order; enforce it anyway since every
	// detector depends on it.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// Health reports the store's reachability from the breaker state.
func (c *Client) Health(_ context.Context) httpx.HealthState {
	return c.http.Health()
}
