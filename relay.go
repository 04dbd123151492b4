// Package relay buffers recent sensor readings and pushes every accepted
// reading, together with the buffered history, to live viewers.
//
// A single Relay owns the latest reading and the history. Ingress adapters
// call Publish (directly or through an Ingress) from any goroutine;
// transports call Subscribe for each viewer connection.
package relay

import (
	"log/slog"
	"sync"
	"time"
)

type Relay struct {
	mtx      sync.Mutex
	latest   *Reading
	history  *History
	registry *Registry
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Relay)

// WithClock replaces time.Now as the source of ObservedAt for readings
// published without one.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

func New(historySize int, registry *Registry, logger *slog.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewRegistry(logger)
	}
	r := &Relay{
		history:  NewHistory(historySize),
		registry: registry,
		now:      time.Now,
		logger:   logger.With(slog.String("category", "relay")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Publish records r as the latest reading, appends it to the history and
// broadcasts the new state. Invalid readings are dropped without touching
// any state and the validation error is returned.
//
// A reading without ObservedAt is stamped while the lock is held, so
// stamped readings enter the history in timestamp order. Readings carrying
// their own time are appended in arrival order as given.
func (r *Relay) Publish(reading Reading) error {
	if err := reading.Validate(); err != nil {
		r.logger.Warn("reading discarded", slog.Any("err", err))
		return err
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	if reading.ObservedAt.IsZero() {
		reading.ObservedAt = r.now()
	}
	latest := reading
	r.latest = &latest
	r.history.Append(reading)
	r.registry.Broadcast(r.snapshotLocked())
	return nil
}

// CurrentSnapshot returns what a newly connected viewer should see.
func (r *Relay) CurrentSnapshot() Snapshot {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.snapshotLocked()
}

// Subscribe registers sub and queues the current snapshot as its first
// delivery. Both happen inside the publish critical section, so the
// subscriber sees exactly the publishes that follow the returned snapshot.
// Subscribing an already registered sub keeps its handle and queues the
// returned snapshot behind whatever it has pending.
func (r *Relay) Subscribe(sub Subscriber) (*Handle, Snapshot) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	snapshot := r.snapshotLocked()
	return r.registry.register(sub, &snapshot), snapshot
}

func (r *Relay) Unsubscribe(h *Handle) {
	r.registry.Unregister(h)
}

func (r *Relay) Subscribers() int {
	return r.registry.Len()
}

// Close drops all subscribers. Publishing stays possible afterwards but
// reaches no one.
func (r *Relay) Close() {
	r.registry.Close()
}

func (r *Relay) snapshotLocked() Snapshot {
	s := Snapshot{History: r.history.Snapshot()}
	if r.latest != nil {
		current := *r.latest
		s.Current = &current
	}
	return s
}
