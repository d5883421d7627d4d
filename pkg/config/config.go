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

// Package config loads the insightd configuration from the environment.
// Configuration is read exactly once at startup and validated; there is no
// hot reload.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// SafetyLevel controls how strictly the safety validator gates deploys.
type SafetyLevel string

const (
	SafetyStrict     SafetyLevel = "strict"
	SafetyModerate   SafetyLevel = "moderate"
	SafetyPermissive SafetyLevel = "permissive"
)

// Config is the explicit configuration record for the daemon. Every field is
// populated from the environment in FromEnv and validated once.
type Config struct {
	EventStoreURL     string `validate:"required,url"`
	RegistryURL       string `validate:"required,url"`
	OrchestratorURL   string `validate:"required,url"`
	OrchestratorToken string `validate:"required"`

	LLMAPIKey  string `validate:"required"`
	LLMModel   string `validate:"required"`
	LLMBaseURL string `validate:"omitempty,url"`

	DatabaseURL string `validate:"required"`
	RedisURL    string `validate:"omitempty"`

	MQTTBrokerURL   string `validate:"omitempty"`
	SlackWebhookURL string `validate:"omitempty,url"`
	CommunityURL    string `validate:"omitempty,url"`

	ScheduleCron string `validate:"required"`

	SafetyLevel         SafetyLevel `validate:"required,oneof=strict moderate permissive"`
	SafetyMinScore      int         `validate:"gte=0,lte=100"`
	SafetyAllowOverride bool

	AnalysisWindowDays   int           `validate:"gte=1,lte=90"`
	PipelineTimeout      time.Duration `validate:"gt=0"`
	WorkerConcurrency    int           `validate:"gte=1,lte=64"`
	PatternRetentionDays int           `validate:"gte=1,lte=365"`

	HTTPListenAddr string `validate:"required"`
	LogLevel       string `validate:"oneof=debug info warn error"`
}

// FromEnv builds a Config from environment variables, applying defaults for
// optional settings. The returned error is a configuration error; callers
// exit with code 1 on failure.
func FromEnv() (*Config, error) {
	cfg := &Config{
		EventStoreURL:     os.Getenv("EVENT_STORE_URL"),
		RegistryURL:       os.Getenv("REGISTRY_URL"),
		OrchestratorURL:   os.Getenv("ORCHESTRATOR_URL"),
		OrchestratorToken: os.Getenv("ORCHESTRATOR_TOKEN"),
		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMModel:          envDefault("LLM_MODEL", "gpt-4o-mini"),
		LLMBaseURL:        os.Getenv("LLM_BASE_URL"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		MQTTBrokerURL:     os.Getenv("MQTT_BROKER_URL"),
		SlackWebhookURL:   os.Getenv("SLACK_WEBHOOK_URL"),
		CommunityURL:      os.Getenv("COMMUNITY_URL"),
		ScheduleCron:      envDefault("SCHEDULE_CRON", "0 3 * * *"),
		SafetyLevel:       SafetyLevel(envDefault("SAFETY_LEVEL", string(SafetyModerate))),
		HTTPListenAddr:    envDefault("HTTP_LISTEN_ADDR", ":8099"),
		LogLevel:          envDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.SafetyMinScore, err = envInt("SAFETY_MIN_SCORE", 70); err != nil {
		return nil, err
	}
	if cfg.SafetyAllowOverride, err = envBool("SAFETY_ALLOW_OVERRIDE", false); err != nil {
		return nil, err
	}
	if cfg.AnalysisWindowDays, err = envInt("ANALYSIS_WINDOW_DAYS", 30); err != nil {
		return nil, err
	}
	timeoutSecs, err := envInt("PIPELINE_TIMEOUT_SECONDS", 300)
	if err != nil {
		return nil, err
	}
	cfg.PipelineTimeout = time.Duration(timeoutSecs) * time.Second
	if cfg.WorkerConcurrency, err = envInt("WORKER_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.PatternRetentionDays, err = envInt("PATTERN_RETENTION_DAYS", 90); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate runs struct-tag validation once. It is exposed so tests can build
// configs directly.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: expected integer, got %q", key, v)
	}
	return n, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: expected boolean, got %q", key, v)
	}
	return b, nil
}
