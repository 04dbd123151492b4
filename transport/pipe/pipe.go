// Package pipe serves relay snapshots to local processes over a named pipe
// (unix socket outside Windows) using length prefixed JSON frames.
package pipe

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/kirides/sensor-relay"
)

const (
	DefaultPingInterval = 5 * time.Second
	pingTimeout         = 5 * time.Second
)

var pingMsg = []byte(`{"type":"ping"}`)

type viewer struct {
	mtx  sync.Mutex
	conn net.Conn
}

func (v *viewer) Send(ctx context.Context, s relay.Snapshot) error {
	data, err := relay.EncodeUpdate(s)
	if err != nil {
		return err
	}
	return v.write(ctx, data)
}

func (v *viewer) write(ctx context.Context, data []byte) error {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	deadline, _ := ctx.Deadline()
	if err := v.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return WriteFrame(v.conn, data)
}

type Server struct {
	relay        *relay.Relay
	logger       *slog.Logger
	pingInterval time.Duration
}

func NewServer(r *relay.Relay, logger *slog.Logger, pingInterval time.Duration) *Server {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	return &Server{
		relay:        r,
		logger:       logger.With(slog.String("category", "pipelistener")),
		pingInterval: pingInterval,
	}
}

// Serve accepts clients until ln is closed. Closing ln is the caller's job,
// typically once ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if isListenerClosed(err) {
				return nil
			}
			s.logger.Error("failed to accept", slog.Any("err", err))
			return err
		}
		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.ServeConn(ctx, c)
		}(conn)
	}
}

// ServeConn pushes snapshots to conn until the client goes away, delivery
// fails or ctx ends. It closes conn before returning.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()

	v := &viewer{conn: conn}
	handle, _ := s.relay.Subscribe(v)
	defer s.relay.Unsubscribe(handle)

	logger := s.logger.With(slog.String("subscriber", handle.ID()))
	logger.Info("Client connected to event pipe")

	go func() {
		defer cancel()
		_, _ = io.Copy(io.Discard, conn)
	}()

	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Client disconnected")
			return
		case <-handle.Done():
			logger.Info("Client dropped")
			return
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, min(pingTimeout, s.pingInterval))
			err := v.write(pingCtx, pingMsg)
			pingCancel()
			if err != nil {
				logger.Info("failed to ping client", slog.Any("err", err))
				return
			}
		}
	}
}
