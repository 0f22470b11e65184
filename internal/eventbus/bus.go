package eventbus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
)

const defaultBuffer = 256

// Bus fans typed events out to bounded subscribers. Publish never blocks: a
// full subscriber loses its oldest queued event.
type Bus struct {
	metrics domrepo.Metrics
	now     func() time.Time

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

type Option func(*Bus)

func WithMetrics(m domrepo.Metrics) Option {
	return func(b *Bus) {
		if m != nil {
			b.metrics = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

func New(opts ...Option) *Bus {
	b := &Bus{
		metrics: domrepo.NopMetrics{},
		now:     time.Now,
		subs:    make(map[uint64]*Subscription),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Subscription is one consumer's bounded queue.
type Subscription struct {
	id    uint64
	bus   *Bus
	kinds map[models.EventKind]struct{}
	ch    chan models.Event

	mu      sync.Mutex
	closed  bool
	dropped atomic.Uint64
}

// Subscribe registers a consumer. With no kinds every event is delivered.
func (b *Bus) Subscribe(buffer int, kinds ...models.EventKind) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &Subscription{
		bus: b,
		ch:  make(chan models.Event, buffer),
	}
	if len(kinds) > 0 {
		s.kinds = make(map[models.EventKind]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	return s
}

// C is the delivery channel. It is closed when the subscription or bus closes.
func (s *Subscription) C() <-chan models.Event { return s.ch }

// Dropped counts events discarded because the consumer fell behind.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription from the bus.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.shut()
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

func (s *Subscription) wants(k models.EventKind) bool {
	if s.kinds == nil {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

// deliver enqueues e, evicting the oldest event when the queue is full.
func (s *Subscription) deliver(e models.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- e:
		return true
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.dropped.Add(1)
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
	return false
}

// Publish stamps the event and hands it to every interested subscriber.
func (b *Bus) Publish(e models.Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if !s.wants(e.Kind) {
			continue
		}
		if !s.deliver(e) {
			b.metrics.RecordEventDropped(string(e.Kind))
		}
	}
}

// Close closes every subscription. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		s.shut()
		delete(b.subs, id)
	}
}
