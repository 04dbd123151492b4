package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirides/sensor-relay"
	"github.com/kirides/sensor-relay/dashboard"
	"github.com/kirides/sensor-relay/ingress/push"
	"github.com/kirides/sensor-relay/simulate"
	"github.com/kirides/sensor-relay/transport/ws"
)

// readingPublisher injects a reading the way a sensor would.
type readingPublisher interface {
	PublishReading(ctx context.Context, temperature, humidity float64) error
}

// directPublisher feeds the ingress without a broker, used when MQTT is
// disabled.
type directPublisher struct {
	accept relay.Acceptor
}

func (d directPublisher) PublishReading(_ context.Context, temperature, humidity float64) error {
	raw, err := json.Marshal(map[string]float64{
		"temperature": temperature,
		"humidity":    humidity,
	})
	if err != nil {
		return err
	}
	_, err = d.accept.Accept("test", raw)
	return err
}

type routes struct {
	relay     *relay.Relay
	ingress   relay.Acceptor
	testPub   readingPublisher
	generator *simulate.Generator
	threshold *dashboard.Threshold
	cnf       config
	logger    *slog.Logger
	started   time.Time
}

func (rt *routes) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(push.Path, push.NewHandler(rt.ingress, rt.logger, push.Options{
		APIKey:     rt.cnf.HTTP.APIKey,
		RatePerSec: rt.cnf.HTTP.RatePerSec,
		Burst:      rt.cnf.HTTP.Burst,
		TrustProxy: rt.cnf.HTTP.TrustProxy,
	}))
	mux.Handle("/ws", ws.NewHandler(rt.relay, rt.logger, ws.Options{
		PingInterval: rt.cnf.Viewer.pingInterval(),
	}))
	dashboard.NewHandler(rt.relay, rt.threshold).Register(mux)
	mux.HandleFunc("/health", rt.handleHealth)
	mux.HandleFunc("/test", rt.handleTest)
	return mux
}

func (rt *routes) handleHealth(response http.ResponseWriter, request *http.Request) {
	writeJSON(response, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": rt.relay.Subscribers(),
		"uptime_sec":  int64(time.Since(rt.started) / time.Second),
	})
}

func (rt *routes) handleTest(response http.ResponseWriter, request *http.Request) {
	temperature, humidity := rt.generator.Next()

	ctx, cancel := context.WithTimeout(request.Context(), 5*time.Second)
	defer cancel()
	if err := rt.testPub.PublishReading(ctx, temperature, humidity); err != nil {
		rt.logger.Warn("failed to publish test reading", slog.Any("err", err))
		writeJSON(response, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(response, http.StatusOK, map[string]any{
		"status":      "sent",
		"temperature": temperature,
		"humidity":    humidity,
	})
}

func writeJSON(response http.ResponseWriter, statusCode int, payload any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(statusCode)
	_ = json.NewEncoder(response).Encode(payload)
}
