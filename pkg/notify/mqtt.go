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

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	TopicAnalysisComplete = "ha-ai/analysis/complete"
	TopicNewSuggestions   = "ha-ai/suggestions/new"

	mqttConnectTimeout = 10 * time.Second
	mqttPublishQoS     = 1
)

// MQTTSink publishes notifications to the home automation broker at QoS 1.
type MQTTSink struct {
	client mqtt.Client
	logger *zap.Logger
}

// NewMQTTSink connects to the broker. Connection failure is an error so the
// caller can decide to run without the sink.
func NewMQTTSink(brokerURL, clientID string, logger *zap.Logger) (*MQTTSink, error) {
	if brokerURL == "" {
		return nil, fmt.Errorf("broker URL cannot be empty")
	}
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(mqttConnectTimeout).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", zap.Error(err))
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", brokerURL, err)
	}
	return &MQTTSink{client: client, logger: logger}, nil
}

func (s *MQTTSink) PublishAnalysisComplete(ctx context.Context, msg AnalysisComplete) error {
	return s.publish(ctx, TopicAnalysisComplete, msg)
}

func (s *MQTTSink) PublishNewSuggestions(ctx context.Context, msg NewSuggestions) error {
	return s.publish(ctx, TopicNewSuggestions, msg)
}

func (s *MQTTSink) publish(ctx context.Context, topic string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}

	token := s.client.Publish(topic, mqttPublishQoS, false, raw)
	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, allowing in-flight messages a short grace period.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
