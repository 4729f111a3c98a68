package progress

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrDetached is returned by an SSEWriter after its client has gone away.
var ErrDetached = errors.New("progress: stream detached")

// Emitter delivers events to one destination.
type Emitter interface {
	Emit(ev Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event) error

func (f EmitterFunc) Emit(ev Event) error { return f(ev) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) error { return nil })

type flusher interface {
	Flush()
}

// sseBacklog is how many frames may queue for a client before it counts as
// not reading.
const sseBacklog = 256

// SSEWriter writes events as SSE data frames from its own goroutine and
// flushes after each one. Emit only queues, so a slow client never holds up
// the caller. A write error or a full queue detaches the writer: later events
// are dropped and ErrDetached is returned, while the evaluation that feeds it
// keeps running.
type SSEWriter struct {
	w      io.Writer
	logger *slog.Logger

	mu       sync.Mutex
	frames   chan []byte
	closed   bool
	done     chan struct{}
	detached atomic.Bool
}

// NewSSEWriter starts the writer goroutine over w. If w implements
// http.Flusher it is flushed after every frame. Call Close once the last
// event has been emitted.
func NewSSEWriter(w io.Writer, logger *slog.Logger) *SSEWriter {
	s := &SSEWriter{
		w:      w,
		logger: logger,
		frames: make(chan []byte, sseBacklog),
		done:   make(chan struct{}),
	}
	go s.drain()
	return s
}

// Emit queues one frame.
func (s *SSEWriter) Emit(ev Event) error {
	frame, err := Format(ev)
	if err != nil {
		return fmt.Errorf("progress: encode %s event: %w", ev.Kind(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.detached.Load() {
		return ErrDetached
	}
	select {
	case s.frames <- frame:
		return nil
	default:
		s.detach(errors.New("client is not reading"))
		return ErrDetached
	}
}

func (s *SSEWriter) drain() {
	defer close(s.done)
	for frame := range s.frames {
		if s.detached.Load() {
			continue
		}
		if _, err := s.w.Write(frame); err != nil {
			s.detach(err)
			continue
		}
		if f, ok := s.w.(flusher); ok {
			f.Flush()
		}
	}
}

func (s *SSEWriter) detach(cause error) {
	if s.detached.CompareAndSwap(false, true) {
		s.logger.Info("progress: client disconnected, continuing without stream", "error", cause)
	}
}

// Close stops accepting events and waits until queued frames are written
// or dropped. Safe to call more than once.
func (s *SSEWriter) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.frames)
	}
	s.mu.Unlock()
	<-s.done
}

// Detached reports whether the client has been given up on.
func (s *SSEWriter) Detached() bool {
	return s.detached.Load()
}

// Multi fans each event out to every non-nil emitter. All emitters are
// attempted; the errors are joined.
func Multi(emitters ...Emitter) Emitter {
	return EmitterFunc(func(ev Event) error {
		var errs []error
		for _, e := range emitters {
			if e == nil {
				continue
			}
			if err := e.Emit(ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Stream serializes unit events onto an emitter and numbers them. The count
// is incremented and the event written under one lock, so the completed
// values observed by the client are strictly increasing in write order.
type Stream struct {
	mu        sync.Mutex
	emitter   Emitter
	completed int
	total     int
	closed    bool
}

// NewStream returns a stream expecting total units.
func NewStream(e Emitter, total int) *Stream {
	if e == nil {
		e = Discard
	}
	return &Stream{emitter: e, total: total}
}

// Unit counts one finished unit and emits the event build returns for it.
// Units reported after Close are counted but not emitted.
func (s *Stream) Unit(build func(Progress) Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed++
	if s.closed {
		return nil
	}
	return s.emitter.Emit(build(Progress{Completed: s.completed, Total: s.total}))
}

// Close emits the terminal event. Only the first call writes.
func (s *Stream) Close(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.emitter.Emit(ev)
}

// Completed returns the number of units counted so far.
func (s *Stream) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}
