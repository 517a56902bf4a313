// Package calllog holds the in-memory log of processed calls and fans it
// out to subscribers.
//
// The log is newest-first. Every append publishes the whole sequence as a
// new Snapshot. A subscriber receives the current snapshot as soon as it
// subscribes, then every later snapshot in append order. Delivery is
// asynchronous: each subscriber has its own queue and goroutine, so a slow
// subscriber never blocks Append or the other subscribers.
package calllog

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rcliao/call-screen/internal/model"
)

var (
	// ErrClosed is returned by Append and Clear after Close.
	ErrClosed = errors.New("call log closed")

	// ErrSubscriberFault is logged when a Watch callback panics.
	ErrSubscriberFault = errors.New("call log subscriber fault")
)

// Snapshot is the full log, newest entry first. Snapshots are shared
// between subscribers and must not be modified.
type Snapshot []model.CallLogEntry

// Stream is a multicast, replay-latest log of processed calls.
type Stream struct {
	mu      sync.Mutex
	entries Snapshot
	subs    map[*Subscription]struct{}
	closed  bool
	logger  *slog.Logger
}

// NewStream returns an empty stream. A nil logger uses slog.Default().
func NewStream(logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		entries: Snapshot{},
		subs:    make(map[*Subscription]struct{}),
		logger:  logger,
	}
}

// Append puts entry at the front of the log and publishes the new
// snapshot to every subscriber.
func (s *Stream) Append(entry model.CallLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	next := make(Snapshot, 0, len(s.entries)+1)
	next = append(next, entry)
	next = append(next, s.entries...)
	s.publishLocked(next)
	return nil
}

// Clear empties the log and publishes the empty snapshot.
func (s *Stream) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.publishLocked(Snapshot{})
	return nil
}

func (s *Stream) publishLocked(next Snapshot) {
	s.entries = next
	for sub := range s.subs {
		sub.push(next)
	}
}

// Snapshot returns the current log.
func (s *Stream) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries
}

// Len returns the number of logged calls.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Subscribe registers a new subscriber. Its channel receives the current
// snapshot first, then one snapshot per later Append or Clear, until the
// subscription or the stream is closed.
func (s *Stream) Subscribe() *Subscription {
	c := make(chan Snapshot)
	sub := &Subscription{
		ID:     uuid.NewString(),
		C:      c,
		c:      c,
		stream: s,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.closeOnce.Do(func() { close(sub.done) })
		close(c)
		return sub
	}
	sub.queue = []Snapshot{s.entries}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go sub.run()
	return sub
}

// Watch subscribes fn to the stream. fn runs on the subscription's own
// goroutine. If fn panics, the panic is logged as a subscriber fault and
// only this subscription is released.
func (s *Stream) Watch(fn func(Snapshot)) *Subscription {
	sub := s.Subscribe()
	go func() {
		for snap := range sub.C {
			if err := deliver(fn, snap); err != nil {
				s.logger.Error("releasing faulty call log subscriber",
					"subscription", sub.ID,
					"error", err)
				sub.Close()
				return
			}
		}
	}()
	return sub
}

func deliver(fn func(Snapshot), snap Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSubscriberFault, r)
		}
	}()
	fn(snap)
	return nil
}

// Unsubscribe stops delivery to sub. Other subscribers and the log are
// unaffected.
func (s *Stream) Unsubscribe(sub *Subscription) {
	sub.Close()
}

func (s *Stream) remove(sub *Subscription) {
	s.mu.Lock()
	delete(s.subs, sub)
	s.mu.Unlock()
}

// Close ends every subscription. Later appends fail with ErrClosed.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

// Subscription is one subscriber's handle on a Stream.
type Subscription struct {
	ID string
	// C receives snapshots in publish order. It is closed once the
	// subscription ends.
	C <-chan Snapshot

	c      chan Snapshot
	stream *Stream

	mu    sync.Mutex
	queue []Snapshot

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (sub *Subscription) push(snap Snapshot) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, snap)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *Subscription) run() {
	defer close(sub.c)
	for {
		sub.mu.Lock()
		if len(sub.queue) == 0 {
			sub.mu.Unlock()
			select {
			case <-sub.wake:
				continue
			case <-sub.done:
				return
			}
		}
		next := sub.queue[0]
		sub.queue[0] = nil
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		select {
		case sub.c <- next:
		case <-sub.done:
			return
		}
	}
}

// Close releases the subscription. It is safe to call more than once.
func (sub *Subscription) Close() {
	sub.closeOnce.Do(func() {
		close(sub.done)
		sub.stream.remove(sub)
	})
}
