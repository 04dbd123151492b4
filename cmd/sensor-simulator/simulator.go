package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/kirides/sensor-relay/ingress/mqtt"
	"github.com/kirides/sensor-relay/simulate"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type sink interface {
	Send(ctx context.Context, temperature, humidity float64) error
}

type simulator struct {
	sink      sink
	generator *simulate.Generator
	limiter   *rate.Limiter
	timeout   time.Duration
	logger    *zap.Logger
}

// Run emits readings paced by the limiter until count readings were sent
// (count 0 runs until ctx ends) and returns how many were sent.
func (s *simulator) Run(ctx context.Context, count int) int {
	sent := 0
	for count == 0 || sent < count {
		if err := s.limiter.Wait(ctx); err != nil {
			return sent
		}

		temperature, humidity := s.generator.Next()
		sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.sink.Send(sendCtx, temperature, humidity)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return sent
			}
			s.logger.Warn("send failed", zap.Error(err))
			continue
		}
		sent++
		s.logger.Info("sent",
			zap.Int("n", sent),
			zap.Float64("temperature", temperature),
			zap.Float64("humidity", humidity))
	}
	return sent
}

func encodeReading(temperature, humidity float64) ([]byte, error) {
	return json.Marshal(map[string]float64{
		"temperature": temperature,
		"humidity":    humidity,
	})
}

type httpSink struct {
	client *http.Client
	url    string
	apiKey string
}

func newHTTPSink(url, apiKey string, timeout time.Duration) *httpSink {
	return &httpSink{
		client: &http.Client{Timeout: timeout},
		url:    url,
		apiKey: apiKey,
	}
}

func (h *httpSink) Send(ctx context.Context, temperature, humidity float64) error {
	body, err := encodeReading(temperature, humidity)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("X-API-Key", h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

var errPublishTimeout = errors.New("publish timed out")

type mqttSink struct {
	client paho.Client
	topic  string
}

func newMQTTSink(ctx context.Context, broker, topic string, timeout time.Duration) (*mqttSink, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("sensor-simulator-" + uuid.NewString()[:8]).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true)

	client := paho.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &mqttSink{client: client, topic: topic}, nil
}

func (m *mqttSink) Send(ctx context.Context, temperature, humidity float64) error {
	payload, err := encodeReading(temperature, humidity)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic, mqtt.DefaultQoS, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return errPublishTimeout
	}
}

func (m *mqttSink) Close() {
	m.client.Disconnect(250)
}
