package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type serviceManager struct {
	running sync.Map
	wg      sync.WaitGroup

	ctx       context.Context
	ctxCancel context.CancelFunc
	logger    *slog.Logger
}

func newServiceManager(logger *slog.Logger) *serviceManager {
	ctx, cancel := context.WithCancel(context.Background())
	logger = logger.With(logKeyCategory, "serviceManager")
	return &serviceManager{
		ctx:       ctx,
		ctxCancel: cancel,
		logger:    logger,
	}
}

// Add runs handler until it returns or the manager stops. A returned error
// is logged; it does not stop the other services.
func (s *serviceManager) Add(svc string, handler func(ctx context.Context) error) {
	s.wg.Add(1)
	s.running.Store(svc, struct{}{})
	go func() {
		defer s.wg.Done()
		defer s.running.Delete(svc)
		if err := handler(s.ctx); err != nil {
			s.logger.Error("service failed", slog.String("service", svc), slog.Any("err", err))
			return
		}
		s.logger.Debug("service stopped", slog.String("service", svc))
	}()
}

// Stop cancels every service and waits for them, reporting the stragglers
// every second.
func (s *serviceManager) Stop() {
	s.ctxCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.running.Range(func(key, _ any) bool {
				s.logger.Info("Still running", slog.Any("service", key))
				return true
			})
		}
	}
}

func (s *serviceManager) Running() int {
	count := 0
	s.running.Range(func(_, _ any) bool {
		count++
		return true
	})
	return count
}
