package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultQueueSize   = 16
	DefaultSendTimeout = 5 * time.Second
)

// Subscriber is one live viewer connection. Implementations must be
// comparable (usually a pointer) because the registry keys on identity.
type Subscriber interface {
	Send(ctx context.Context, s Snapshot) error
}

// Handle identifies one registration. Done is closed once the subscriber
// has been removed for any reason.
type Handle struct {
	id     string
	sub    Subscriber
	queue  chan Snapshot
	ctx    context.Context
	cancel context.CancelFunc
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) Done() <-chan struct{} { return h.ctx.Done() }

// Context is canceled together with Done, for bounding work done on behalf
// of the subscriber.
func (h *Handle) Context() context.Context { return h.ctx }

// enqueue never blocks. A full queue loses its oldest snapshot; the newer
// one carries the complete history anyway.
func (h *Handle) enqueue(s Snapshot) (dropped int) {
	for {
		if h.ctx.Err() != nil {
			return dropped
		}
		select {
		case h.queue <- s:
			return dropped
		default:
		}
		select {
		case <-h.queue:
			dropped++
		default:
		}
	}
}

type RegistryOption func(*Registry)

func WithQueueSize(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

func WithSendTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.sendTimeout = d
		}
	}
}

// Registry tracks live subscribers and fans snapshots out to them. Every
// subscriber gets its own queue and writer goroutine so a slow connection
// only ever delays itself.
type Registry struct {
	mtx         sync.RWMutex
	subs        map[Subscriber]*Handle
	closed      bool
	queueSize   int
	sendTimeout time.Duration
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		subs:        make(map[Subscriber]*Handle),
		queueSize:   DefaultQueueSize,
		sendTimeout: DefaultSendTimeout,
		logger:      logger.With(slog.String("category", "registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds sub to the live set. Registering the same subscriber twice
// returns the first handle.
func (r *Registry) Register(sub Subscriber) *Handle {
	return r.register(sub, nil)
}

func (r *Registry) register(sub Subscriber, initial *Snapshot) *Handle {
	r.mtx.Lock()
	if h, ok := r.subs[sub]; ok {
		r.mtx.Unlock()
		if initial != nil {
			h.enqueue(*initial)
		}
		return h
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		id:     uuid.NewString(),
		sub:    sub,
		queue:  make(chan Snapshot, r.queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if r.closed {
		r.mtx.Unlock()
		cancel()
		return h
	}
	if initial != nil {
		h.queue <- *initial
	}
	r.subs[sub] = h
	count := len(r.subs)
	r.wg.Add(1)
	r.mtx.Unlock()

	go r.deliver(h)
	r.logger.Debug("added subscriber", slog.String("subscriber", h.id), slog.Int("subscribers", count))
	return h
}

// Unregister removes the subscriber behind h. It may race with Broadcast and
// may be called any number of times.
func (r *Registry) Unregister(h *Handle) {
	if h == nil {
		return
	}
	r.mtx.Lock()
	removed := false
	if cur, ok := r.subs[h.sub]; ok && cur == h {
		delete(r.subs, h.sub)
		removed = true
	}
	count := len(r.subs)
	r.mtx.Unlock()

	h.cancel()
	if removed {
		r.logger.Debug("removed subscriber", slog.String("subscriber", h.id), slog.Int("subscribers", count))
	}
}

// Broadcast queues s for every registered subscriber without waiting for
// delivery. Callers that need a total order must serialize their calls.
func (r *Registry) Broadcast(s Snapshot) {
	r.mtx.RLock()
	handles := make([]*Handle, 0, len(r.subs))
	for _, h := range r.subs {
		handles = append(handles, h)
	}
	r.mtx.RUnlock()

	for _, h := range handles {
		if dropped := h.enqueue(s); dropped > 0 {
			r.logger.Debug("snapshot dropped", slog.String("subscriber", h.id), slog.Int("dropped", dropped))
		}
	}
}

func (r *Registry) Len() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return len(r.subs)
}

// Close removes every subscriber and waits for their writers to return.
// Later registrations come back already done.
func (r *Registry) Close() {
	r.mtx.Lock()
	r.closed = true
	handles := make([]*Handle, 0, len(r.subs))
	for sub, h := range r.subs {
		handles = append(handles, h)
		delete(r.subs, sub)
	}
	r.mtx.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	r.wg.Wait()
}

func (r *Registry) deliver(h *Handle) {
	defer r.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case s := <-h.queue:
			if h.ctx.Err() != nil {
				return
			}
			ctx, cancel := context.WithTimeout(h.ctx, r.sendTimeout)
			err := h.sub.Send(ctx, s)
			cancel()
			if err != nil {
				if h.ctx.Err() == nil {
					r.logger.Info("delivery failed, removing subscriber", slog.String("subscriber", h.id), slog.Any("err", err))
				}
				r.Unregister(h)
				return
			}
		}
	}
}
