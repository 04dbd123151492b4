// Package mqtt feeds readings from an MQTT topic into the relay.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/kirides/sensor-relay"
)

const (
	DefaultBroker = "tcp://broker.emqx.io:1883"
	DefaultTopic  = "python/mqtt"
	DefaultQoS    = 1
)

var ErrNotConnected = errors.New("mqtt client not connected")

type Config struct {
	Broker   string
	Topic    string
	QoS      byte
	ClientID string
	Username string
	Password string
}

// Source subscribes to one topic and hands every message to an Acceptor.
// Reconnects are left to paho; the relay keeps its state across outages.
type Source struct {
	cfg    Config
	accept relay.Acceptor
	logger *slog.Logger
	client paho.Client
}

func New(cfg Config, accept relay.Acceptor, logger *slog.Logger) *Source {
	if cfg.Broker == "" {
		cfg.Broker = DefaultBroker
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.QoS > 2 {
		cfg.QoS = DefaultQoS
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "sensor-relay-" + uuid.NewString()[:8]
	}
	logger = logger.With(
		slog.String("category", "mqtt"),
		slog.String("broker", cfg.Broker),
		slog.String("topic", cfg.Topic),
	)
	s := &Source{cfg: cfg, accept: accept, logger: logger}
	s.client = paho.NewClient(s.options())
	return s
}

func (s *Source) options() *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetUsername(s.cfg.Username).
		SetPassword(s.cfg.Password).
		SetKeepAlive(60 * time.Second).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(time.Minute).
		SetOrderMatters(true)

	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.logger.Warn("connection lost", slog.Any("err", err))
	})
	opts.SetReconnectingHandler(func(paho.Client, *paho.ClientOptions) {
		s.logger.Info("reconnecting")
	})
	return opts
}

// subscriptions do not survive a clean session, so every (re)connect
// subscribes again
func (s *Source) onConnect(c paho.Client) {
	s.logger.Info("connected")
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, s.handleMessage)
	if !token.WaitTimeout(10 * time.Second) {
		s.logger.Error("subscribe timed out")
		return
	}
	if err := token.Error(); err != nil {
		s.logger.Error("failed to subscribe", slog.Any("err", err))
		return
	}
	s.logger.Info("subscribed", slog.Int("qos", int(s.cfg.QoS)))
}

func (s *Source) handleMessage(_ paho.Client, msg paho.Message) {
	if _, err := s.accept.Accept("mqtt:"+msg.Topic(), msg.Payload()); err != nil {
		s.logger.Debug("message rejected", slog.Uint64("message_id", uint64(msg.MessageID())), slog.Any("err", err))
	}
}

// Run connects and blocks until ctx is done.
func (s *Source) Run(ctx context.Context) error {
	s.logger.Info("Starting MQTT ingress")
	token := s.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to %q. %w", s.cfg.Broker, err)
		}
	case <-ctx.Done():
	}

	<-ctx.Done()
	s.client.Disconnect(250)
	s.logger.Info("disconnected")
	return nil
}

// PublishReading sends one reading to the configured topic, the same way a
// field sensor would.
func (s *Source) PublishReading(ctx context.Context, temperature, humidity float64) error {
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	payload, err := json.Marshal(map[string]float64{
		"temperature": temperature,
		"humidity":    humidity,
	})
	if err != nil {
		return err
	}
	token := s.client.Publish(s.cfg.Topic, s.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
