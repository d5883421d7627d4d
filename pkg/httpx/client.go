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

package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// HealthState summarises a collaborator's reachability.
type HealthState string

const (
	HealthOK       HealthState = "ok"
	HealthDegraded HealthState = "degraded"
	HealthDown     HealthState = "down"
)

// Options configures a Client. Zero values take the documented defaults.
type Options struct {
	BaseURL        string
	BearerToken    string
	MaxRetries     uint64        // default 3
	InitialBackoff time.Duration // default 2s
	MaxBackoff     time.Duration // default 10s
	RequestTimeout time.Duration // default 30s
	Logger         *zap.Logger
}

// Client is a thin JSON client over net/http with jittered exponential
// retry and a circuit breaker. All calls are read-only or idempotent on the
// remote; retried GETs therefore preserve at-most-once effect semantics.
type Client struct {
	base       *url.URL
	token      string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
	maxRetries uint64
	initial    time.Duration
	cap        time.Duration
}

// New builds a Client. The connection pool is bounded to 5 kept-alive and
// 10 total connections per host.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", opts.BaseURL, err)
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = 2 * time.Second
	}
	if opts.MaxBackoff == 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	transport := &http.Transport{
		MaxIdleConnsPerHost: 5,
		MaxConnsPerHost:     10,
		IdleConnTimeout:     90 * time.Second,
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    base.Host,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		base:       base,
		token:      opts.BearerToken,
		http:       &http.Client{Transport: transport, Timeout: opts.RequestTimeout},
		breaker:    breaker,
		logger:     opts.Logger,
		maxRetries: opts.MaxRetries,
		initial:    opts.InitialBackoff,
		cap:        opts.MaxBackoff,
	}, nil
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON performs a POST with a JSON body and decodes the response.
// POSTs are not retried unless the remote never saw the request (connection
// errors before a response).
func (c *Client) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	op := fmt.Sprintf("%s %s%s", method, c.base.Host, path)

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return &RemoteError{Kind: KindParse, Op: op, Err: err}
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initial
	bo.MaxInterval = c.cap
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		err := c.once(ctx, method, path, query, payload, out, op)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			c.logger.Warn("remote call failed, retrying",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		kind := KindCancelled
		if ctx.Err() == context.DeadlineExceeded {
			kind = KindTimeout
		}
		return &RemoteError{Kind: kind, Op: op, Err: ctx.Err()}
	}
	if IsTransient(err) {
		return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
	}
	return err
}

func (c *Client) once(ctx context.Context, method, path string, query url.Values, payload []byte, out interface{}, op string) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		u := *c.base
		u.Path = strings.TrimRight(u.Path, "/") + path
		if query != nil {
			u.RawQuery = query.Encode()
		}

		var rdr io.Reader
		if payload != nil {
			rdr = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
		if err != nil {
			return nil, &RemoteError{Kind: KindPermanent, Op: op, Err: err}
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return nil, &RemoteError{Kind: KindTransient, Op: op, Err: err}
			}
			if ctx.Err() != nil {
				return nil, &RemoteError{Kind: KindCancelled, Op: op, Err: err}
			}
			return nil, &RemoteError{Kind: KindTransient, Op: op, Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, &RemoteError{Kind: KindNotFound, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("not found")}
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &RemoteError{Kind: KindPermanent, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", msg)}
		case resp.StatusCode >= 500:
			return nil, &RemoteError{Kind: KindTransient, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("server error")}
		}

		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, &RemoteError{Kind: KindParse, Op: op, StatusCode: resp.StatusCode, Err: err}
		}
		return nil, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return &RemoteError{Kind: KindTransient, Op: op, Err: err}
		}
		return err
	}
	return nil
}

// Health reports reachability based on the breaker state.
func (c *Client) Health() HealthState {
	switch c.breaker.State() {
	case gobreaker.StateOpen:
		return HealthDown
	case gobreaker.StateHalfOpen:
		return HealthDegraded
	default:
		return HealthOK
	}
}
