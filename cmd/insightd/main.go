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

// insightd is the smart-home AI insights daemon: it analyses historical
// device events on a daily schedule, detects behavioral patterns, and turns
// them into reviewable automation suggestions.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ha-ai/insightd/pkg/analyzer"
	"github.com/ha-ai/insightd/pkg/capability"
	"github.com/ha-ai/insightd/pkg/community"
	"github.com/ha-ai/insightd/pkg/config"
	"github.com/ha-ai/insightd/pkg/detector"
	"github.com/ha-ai/insightd/pkg/eventstore"
	"github.com/ha-ai/insightd/pkg/llm"
	"github.com/ha-ai/insightd/pkg/metrics"
	"github.com/ha-ai/insightd/pkg/notify"
	"github.com/ha-ai/insightd/pkg/orchestrator"
	"github.com/ha-ai/insightd/pkg/pipeline"
	"github.com/ha-ai/insightd/pkg/registry"
	"github.com/ha-ai/insightd/pkg/safety"
	"github.com/ha-ai/insightd/pkg/scheduler"
	"github.com/ha-ai/insightd/pkg/server"
	"github.com/ha-ai/insightd/pkg/store"
	"github.com/ha-ai/insightd/pkg/suggest"
	"github.com/ha-ai/insightd/pkg/synergy"
)

// Exit codes: 0 clean shutdown, 1 configuration error, 2 unrecoverable
// store failure at startup.
const (
	exitOK          = 0
	exitConfigError = 1
	exitStoreError  = 2
)

// Pricing defaults per million tokens, matching the default model.
const (
	inputPerMTokUSD  = 0.15
	outputPerMTokUSD = 0.60
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "insightd: %v\n", err)
		return exitConfigError
	}

	logger, err := buildLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "insightd: %v\n", err)
		return exitConfigError
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		if app != nil && app.storeFailed {
			return exitStoreError
		}
		return exitConfigError
	}
	defer app.close()

	app.scheduler.Start()
	logger.Info("insightd started",
		zap.String("listen", cfg.HTTPListenAddr),
		zap.String("schedule", cfg.ScheduleCron),
		zap.Int("window_days", cfg.AnalysisWindowDays))

	serverErr := make(chan error, 1)
	go func() { serverErr <- app.server.Start() }()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
			return exitStoreError
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	app.scheduler.Shutdown()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	return exitOK
}

// application owns every long-lived collaborator.
type application struct {
	server      *server.Server
	scheduler   *scheduler.Scheduler
	notifier    *notify.Notifier
	redis       *redis.Client
	storeFailed bool
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	app := &application{}

	db, err := store.Open(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		app.storeFailed = true
		return app, fmt.Errorf("open store: %w", err)
	}

	// Redis is an optional cache tier; a bad URL or dead server degrades to
	// database-only reads.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid REDIS_URL, running without cache tier", zap.Error(err))
		} else {
			redisClient = redis.NewClient(opt)
			if err := redisClient.Ping(ctx).Err(); err != nil {
				logger.Warn("redis unreachable at startup, reads fall back to database", zap.Error(err))
			}
			app.redis = redisClient
		}
	}

	events, err := eventstore.NewClient(cfg.EventStoreURL, logger)
	if err != nil {
		return app, err
	}
	reg, err := registry.NewClient(cfg.RegistryURL, logger)
	if err != nil {
		return app, err
	}
	orch, err := orchestrator.NewClient(cfg.OrchestratorURL, cfg.OrchestratorToken, logger)
	if err != nil {
		return app, err
	}

	capabilities, err := capability.NewCachedStore(db, redisClient, logger)
	if err != nil {
		return app, err
	}

	usage := llm.NewUsageTracker(inputPerMTokUSD, outputPerMTokUSD)
	model, err := buildModel(cfg)
	if err != nil {
		return app, fmt.Errorf("llm provider: %w", err)
	}
	provider, err := llm.NewClient(model, usage, logger)
	if err != nil {
		return app, err
	}
	generator, err := suggest.NewGenerator(provider, llm.NewPromptBuilder(), capabilities, cfg.WorkerConcurrency, logger)
	if err != nil {
		return app, err
	}

	validator, err := safety.NewValidator(orch, orch, cfg.SafetyLevel, logger)
	if err != nil {
		return app, err
	}

	var sinks []notify.Sink
	if cfg.MQTTBrokerURL != "" {
		mqttSink, err := notify.NewMQTTSink(cfg.MQTTBrokerURL, "insightd", logger)
		if err != nil {
			logger.Warn("mqtt sink unavailable, notifications degraded", zap.Error(err))
		} else {
			sinks = append(sinks, mqttSink)
		}
	}
	if cfg.SlackWebhookURL != "" {
		slackSink, err := notify.NewSlackSink(cfg.SlackWebhookURL, logger)
		if err != nil {
			logger.Warn("slack sink unavailable", zap.Error(err))
		} else {
			sinks = append(sinks, slackSink)
		}
	}
	app.notifier = notify.NewNotifier(logger, sinks...)

	var communityClient community.Fetcher
	if cfg.CommunityURL != "" {
		if c, err := community.NewClient(cfg.CommunityURL, logger); err != nil {
			logger.Warn("community client unavailable", zap.Error(err))
		} else {
			communityClient = c
		}
	}

	m := metrics.New()
	pipe, err := pipeline.New(pipeline.Deps{
		Events:       events,
		Registry:     reg,
		Orchestrator: orch,
		Community:    communityClient,
		Parser:       capability.NewParser(logger),
		Capabilities: capabilities,
		Analyzer:     analyzer.NewFeatureAnalyzer(capabilities, logger),
		Synergies:    synergy.NewDetector(logger),
		Generator:    generator,
		Store:        db,
		Usage:        usage,
		Notifier:     app.notifier,
		Metrics:      m,
		Logger:       logger,
	}, pipeline.Options{
		WindowDays:     cfg.AnalysisWindowDays,
		Timeout:        cfg.PipelineTimeout,
		DetectorParams: detector.DefaultParams(),
		RetentionDays:  cfg.PatternRetentionDays,
	})
	if err != nil {
		return app, err
	}

	app.scheduler, err = scheduler.New(cfg.ScheduleCron, pipe, logger)
	if err != nil {
		return app, err
	}

	app.server, err = server.New(server.Deps{
		Config:       cfg,
		Store:        db,
		Events:       events,
		Registry:     reg,
		Orchestrator: orch,
		Capabilities: capabilities,
		Generator:    generator,
		Validator:    validator,
		Pipeline:     pipe,
		Scheduler:    app.scheduler,
		Usage:        usage,
		Metrics:      m,
		Logger:       logger,
	})
	if err != nil {
		return app, err
	}
	return app, nil
}

func (a *application) close() {
	if a.notifier != nil {
		a.notifier.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

func buildModel(cfg *config.Config) (*openai.LLM, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.LLMAPIKey),
		openai.WithModel(cfg.LLMModel),
	}
	if cfg.LLMBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLMBaseURL))
	}
	return openai.New(opts...)
}

func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zcfg.Build()
}
