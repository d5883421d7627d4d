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

// Package community fetches crowd-sourced automation recommendations for
// known device models. The service is optional: when unconfigured or
// unreachable the daemon runs without community input.
package community

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/httpx"
)

// Recommendation is one community-sourced automation idea for a device
// model.
type Recommendation struct {
	ID          string  `json:"id"`
	DeviceModel string  `json:"device_model"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Popularity  float64 `json:"popularity"`
	Category    string  `json:"category"`
}

// Fetcher is the community lookup surface the pipeline depends on.
type Fetcher interface {
	Recommendations(ctx context.Context, deviceModel string) ([]Recommendation, error)
	Health() httpx.HealthState
}

// Client talks to the community recommendation service.
type Client struct {
	http   *httpx.Client
	logger *zap.Logger
}

func NewClient(baseURL string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	httpClient, err := httpx.New(httpx.Options{BaseURL: baseURL, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("community client: %w", err)
	}
	return &Client{http: httpClient, logger: logger}, nil
}

// Recommendations fetches recommendations for one device model. An unknown
// model returns an empty slice, not an error.
func (c *Client) Recommendations(ctx context.Context, deviceModel string) ([]Recommendation, error) {
	var payload struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	path := "/api/recommendations/" + url.PathEscape(deviceModel)
	if err := c.http.GetJSON(ctx, path, nil, &payload); err != nil {
		if httpx.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch recommendations for %s: %w", deviceModel, err)
	}
	return payload.Recommendations, nil
}

func (c *Client) Health() httpx.HealthState {
	return c.http.Health()
}
