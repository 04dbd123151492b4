package relay

import (
	"log/slog"
	"time"
)

// Publisher is the narrow entry point ingress adapters depend on.
type Publisher interface {
	Publish(Reading) error
}

// Acceptor is what transports hand raw payloads to. source names the
// origin for logging, e.g. "mqtt:sensors/room1".
type Acceptor interface {
	Accept(source string, raw []byte) (Reading, error)
}

// Ingress turns raw payloads from any transport into published readings.
// It holds no state of its own and may be shared by concurrent callers.
type Ingress struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewIngress(publisher Publisher, logger *slog.Logger) *Ingress {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingress{
		publisher: publisher,
		logger:    logger.With(slog.String("category", "ingress")),
	}
}

// Accept decodes raw and publishes the result. The returned reading has no
// ObservedAt; the publisher stamps it. The returned error is for the caller
// to report back to its peer; it never means the ingress is unusable.
func (i *Ingress) Accept(source string, raw []byte) (Reading, error) {
	reading, err := DecodeReading(raw, time.Time{})
	if err != nil {
		i.logger.Warn("payload discarded",
			slog.String("source", source),
			slog.String("payload", truncate(raw, 256)),
			slog.Any("err", err),
		)
		return Reading{}, err
	}
	if err := i.publisher.Publish(reading); err != nil {
		return Reading{}, err
	}
	i.logger.Debug("reading accepted",
		slog.String("source", source),
		slog.Float64("temperature", reading.Temperature),
		slog.Float64("humidity", reading.Humidity),
	)
	return reading, nil
}

func truncate(raw []byte, n int) string {
	if len(raw) > n {
		return string(raw[:n]) + "..."
	}
	return string(raw)
}
