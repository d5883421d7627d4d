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

// Package registry reads device, entity and area inventories from the
// external device-registry service.
package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ha-ai/insightd/pkg/httpx"
	"github.com/ha-ai/insightd/pkg/models"
)

// Reader is the registry surface the analyzers depend on.
type Reader interface {
	ListDevices(ctx context.Context) ([]models.DeviceRecord, error)
	GetDevice(ctx context.Context, deviceID string) (*models.DeviceRecord, error)
	ListAreas(ctx context.Context) ([]models.Area, error)
	Health(ctx context.Context) httpx.HealthState
}

// Client speaks the registry's discovery REST API with the shared retry
// policy. Unknown devices surface as a non-retryable not_found error.
type Client struct {
	http   *httpx.Client
	logger *zap.Logger
}

var _ Reader = (*Client)(nil)

// NewClient builds a registry client.
func NewClient(baseURL string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	hc, err := httpx.New(httpx.Options{BaseURL: baseURL, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("registry client: %w", err)
	}
	return &Client{http: hc, logger: logger}, nil
}

type devicesResponse struct {
	Devices []models.DeviceRecord `json:"devices"`
}

type areasResponse struct {
	Areas []models.Area `json:"areas"`
}

// ListDevices returns the full device inventory.
func (c *Client) ListDevices(ctx context.Context) ([]models.DeviceRecord, error) {
	var resp devicesResponse
	if err := c.http.GetJSON(ctx, "/api/discovery/devices", nil, &resp); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return resp.Devices, nil
}

// GetDevice looks up one device by id.
func (c *Client) GetDevice(ctx context.Context, deviceID string) (*models.DeviceRecord, error) {
	var device models.DeviceRecord
	if err := c.http.GetJSON(ctx, "/api/discovery/devices/"+deviceID, nil, &device); err != nil {
		return nil, fmt.Errorf("get device %s: %w", deviceID, err)
	}
	return &device, nil
}

// ListAreas returns the area inventory.
func (c *Client) ListAreas(ctx context.Context) ([]models.Area, error) {
	var resp areasResponse
	if err := c.http.GetJSON(ctx, "/api/discovery/areas", nil, &resp); err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	return resp.Areas, nil
}

// Health reports the registry's reachability.
func (c *Client) Health(_ context.Context) httpx.HealthState {
	return c.http.Health()
}
