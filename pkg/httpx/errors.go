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

// Package httpx provides the shared retrying HTTP client used by every
// remote collaborator client (event store, device registry, orchestrator).
//
// Retry policy: jittered exponential backoff (2s initial, 10s cap, 3
// attempts) on transient failures only; 4xx responses are never retried.
// A circuit breaker opens after repeated failures so a down collaborator
// degrades fast instead of stalling the pipeline.
package httpx

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a remote failure for propagation policy decisions.
type ErrorKind string

const (
	KindTransient ErrorKind = "transient_remote" // retryable
	KindPermanent ErrorKind = "permanent_remote" // not retryable (4xx)
	KindNotFound  ErrorKind = "not_found"
	KindParse     ErrorKind = "parse_error"
	KindTimeout   ErrorKind = "timeout"
	KindCancelled ErrorKind = "cancelled"
)

// RemoteError wraps a failed remote call with its classification.
type RemoteError struct {
	Kind       ErrorKind
	Op         string
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// ErrStoreUnavailable is returned once retries against a remote store are
// exhausted.
var ErrStoreUnavailable = errors.New("store unavailable")

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == KindNotFound
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Kind == KindTransient
}
