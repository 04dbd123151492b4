// Package ws pushes relay snapshots to browser viewers over WebSocket.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/kirides/sensor-relay"
)

const (
	DefaultPingInterval = 15 * time.Second
	DefaultPingTimeout  = 5 * time.Second
)

type Options struct {
	PingInterval time.Duration
	// PingTimeout bounds the wait for a pong; it never exceeds PingInterval.
	PingTimeout    time.Duration
	OriginPatterns []string
}

type Handler struct {
	relay          *relay.Relay
	logger         *slog.Logger
	pingInterval   time.Duration
	pingTimeout    time.Duration
	originPatterns []string
}

func NewHandler(r *relay.Relay, logger *slog.Logger, opts Options) *Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = DefaultPingTimeout
	}
	opts.PingTimeout = min(opts.PingTimeout, opts.PingInterval)
	if len(opts.OriginPatterns) == 0 {
		opts.OriginPatterns = []string{"*"}
	}
	return &Handler{
		relay:          r,
		logger:         logger.With(slog.String("category", "websocket")),
		pingInterval:   opts.PingInterval,
		pingTimeout:    opts.PingTimeout,
		originPatterns: opts.OriginPatterns,
	}
}

type viewer struct {
	conn *websocket.Conn
}

func (v *viewer) Send(ctx context.Context, s relay.Snapshot) error {
	data, err := relay.EncodeUpdate(s)
	if err != nil {
		return err
	}
	return v.conn.Write(ctx, websocket.MessageText, data)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn("failed to accept viewer", slog.String("remote", r.RemoteAddr), slog.Any("err", err))
		return
	}
	defer conn.CloseNow()

	// viewers never talk back; CloseRead keeps control frames flowing and
	// cancels ctx once the peer goes away
	ctx := conn.CloseRead(r.Context())

	handle, _ := h.relay.Subscribe(&viewer{conn: conn})
	defer h.relay.Unsubscribe(handle)

	logger := h.logger.With(slog.String("subscriber", handle.ID()), slog.String("remote", r.RemoteAddr))
	logger.Info("viewer connected", slog.Int("subscribers", h.relay.Subscribers()))

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("viewer disconnected")
			return
		case <-handle.Done():
			logger.Info("viewer dropped")
			conn.Close(websocket.StatusGoingAway, "subscription ended")
			return
		case <-ticker.C:
			// a removed subscription aborts the ping instead of waiting out
			// the pong
			pingCtx, cancel := context.WithTimeout(ctx, h.pingTimeout)
			stop := context.AfterFunc(handle.Context(), cancel)
			err := conn.Ping(pingCtx)
			stop()
			cancel()
			if err != nil {
				if handle.Context().Err() != nil {
					logger.Info("viewer dropped while awaiting pong")
					return
				}
				logger.Info("viewer ping failed", slog.Any("err", err))
				return
			}
		}
	}
}
