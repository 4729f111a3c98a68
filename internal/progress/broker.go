package progress

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

const subscriberBuffer = 64

// Subscription is one watcher's feed of SSE frames. Frames arrive on C
// until Close is called or the broker shuts down.
type Subscription struct {
	C <-chan []byte

	ch      chan []byte
	broker  *Broker
	dropped atomic.Int64
	once    sync.Once
}

// Dropped is the number of frames this watcher missed because its buffer
// was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close detaches the subscription and closes C. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() { s.broker.detach(s) })
}

// Broker fans stream events out to watchers of GET /v1/subscribe. It is an
// Emitter, so an evaluation can publish to it alongside its own stream.
type Broker struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func NewBroker(logger *slog.Logger) *Broker {
	return &Broker{logger: logger, subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a watcher. After the broker is closed the returned
// subscription's channel is already closed.
func (b *Broker) Subscribe() *Subscription {
	ch := make(chan []byte, subscriberBuffer)
	s := &Subscription{C: ch, ch: ch, broker: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

func (b *Broker) detach(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
	if n := s.dropped.Load(); n > 0 {
		b.logger.Debug("broker: watcher left", "dropped_frames", n)
	}
}

// Subscribers returns the number of attached watchers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription. Later Emit calls are no-ops.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

// Emit publishes ev to every watcher as a named SSE event.
func (b *Broker) Emit(ev Event) error {
	data, err := Format(ev)
	if err != nil {
		return err
	}
	kind := ev.Kind()
	frame := make([]byte, 0, len("event: \n")+len(kind)+len(data))
	frame = append(frame, "event: "...)
	frame = append(frame, kind...)
	frame = append(frame, '\n')
	frame = append(frame, data...)

	b.mu.RLock()
	defer b.mu.RUnlock()
	// Full buffers drop the frame; a stalled watcher never blocks the run.
	for s := range b.subs {
		select {
		case s.ch <- frame:
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}
