package channels

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

var (
	// ErrUnknownChannel is returned for a channel name the server does not
	// publish.
	ErrUnknownChannel = errors.New("unknown channel")

	// ErrReadOnly is returned when a client writes a read-only channel.
	ErrReadOnly = errors.New("channel is read-only")

	// ErrSubscriptionClosed is returned by Subscription.Next once the
	// subscription is closed and drained.
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrSubscriptionOverflow is returned by Subscription.Next once the
	// subscriber fell more than the backlog limit behind and was dropped.
	ErrSubscriptionOverflow = errors.New("subscription backlog exceeded")
)

// DefaultMonitorBacklog is the number of undelivered updates a monitor may
// hold before the server drops it.
const DefaultMonitorBacklog = 10000

// WriteHandler is invoked after a client write has been stored.
type WriteHandler func(name string, value float64)

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithNow overrides the timestamp source for updates.
func WithNow(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}

// WithMonitorBacklog sets the per-monitor backlog limit. n < 1 means
// DefaultMonitorBacklog.
func WithMonitorBacklog(n int) ServerOption {
	return func(s *Server) {
		if n < 1 {
			n = DefaultMonitorBacklog
		}
		s.backlog = n
	}
}

// Server is the in-process control-system host. It stores the current value
// of every published channel and fans changes out to monitors.
type Server struct {
	mu       sync.Mutex
	defs     map[string]Definition
	order    []string
	values   map[string]float64
	handlers map[string][]WriteHandler
	subs     map[*Subscription]struct{}
	seq      uint64
	closed   bool
	backlog  int
	now      func() time.Time
}

// NewServer publishes defs, every channel starting at 0.
func NewServer(defs []Definition, opts ...ServerOption) (*Server, error) {
	s := &Server{
		defs:     make(map[string]Definition, len(defs)),
		order:    make([]string, 0, len(defs)),
		values:   make(map[string]float64, len(defs)),
		handlers: make(map[string][]WriteHandler),
		subs:     make(map[*Subscription]struct{}),
		backlog:  DefaultMonitorBacklog,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("channel definition with empty name")
		}
		if _, dup := s.defs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate channel %q", d.Name)
		}
		s.defs[d.Name] = d
		s.order = append(s.order, d.Name)
		s.values[d.Name] = 0
	}
	return s, nil
}

// Put publishes v on any channel. It is the twin's own push path.
func (s *Server) Put(name string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(name, v)
}

// PutMany publishes several values under one lock acquisition.
func (s *Server) PutMany(values map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := slices.Sorted(maps.Keys(values))
	var errs []error
	for _, name := range names {
		if err := s.putLocked(name, values[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Server) putLocked(name string, v float64) error {
	if _, ok := s.defs[name]; !ok {
		return fmt.Errorf("put %q: %w", name, ErrUnknownChannel)
	}
	s.values[name] = v
	s.seq++
	u := Update{Seq: s.seq, Name: name, Value: v, Time: s.now()}
	for sub := range s.subs {
		if sub.Pending() >= s.backlog {
			delete(s.subs, sub)
			sub.q.Drop()
			continue
		}
		sub.q.Enqueue(u)
	}
	return nil
}

// Write is the client write path. Only read/write channels accept it. The
// value is stored and published before the subscribed write handlers run.
func (s *Server) Write(name string, v float64) error {
	s.mu.Lock()
	def, ok := s.defs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("write %q: %w", name, ErrUnknownChannel)
	}
	if !def.Writable() {
		s.mu.Unlock()
		return fmt.Errorf("write %q: %w", name, ErrReadOnly)
	}
	if err := s.putLocked(name, v); err != nil {
		s.mu.Unlock()
		return err
	}
	handlers := slices.Clone(s.handlers[name])
	s.mu.Unlock()

	for _, h := range handlers {
		h(name, v)
	}
	return nil
}

// Get returns the current value of name.
func (s *Server) Get(name string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[name]
	if !ok {
		return 0, fmt.Errorf("get %q: %w", name, ErrUnknownChannel)
	}
	return v, nil
}

// OnWrite subscribes h to client writes on name.
func (s *Server) OnWrite(name string, h WriteHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defs[name]
	if !ok {
		return fmt.Errorf("subscribe %q: %w", name, ErrUnknownChannel)
	}
	if !def.Writable() {
		return fmt.Errorf("subscribe %q: %w", name, ErrReadOnly)
	}
	s.handlers[name] = append(s.handlers[name], h)
	return nil
}

// Values returns a snapshot of every channel value.
func (s *Server) Values() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.values)
}

// Definitions returns the published definitions in publication order.
func (s *Server) Definitions() []Definition {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Definition, len(s.order))
	for i, name := range s.order {
		out[i] = s.defs[name]
	}
	return out
}

// Definition returns the definition of name.
func (s *Server) Definition(name string) (Definition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.defs[name]
	return d, ok
}

// Monitor returns a subscription that receives every update published
// after the call. A closed server returns an already closed subscription.
func (s *Server) Monitor() *Subscription {
	sub := &Subscription{q: newUpdateQueue(), srv: s}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		sub.q.Close()
		return sub
	}
	s.subs[sub] = struct{}{}
	return sub
}

// Close ends every monitor subscription. Values remain readable.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for sub := range s.subs {
		sub.q.Close()
	}
	clear(s.subs)
}

func (s *Server) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

// Subscription is a monitor on every channel of a Server.
type Subscription struct {
	q   *updateQueue
	srv *Server
}

// Next blocks until an update is available, ctx is done or the
// subscription is closed. A subscription dropped for falling behind
// returns ErrSubscriptionOverflow.
func (sub *Subscription) Next(ctx context.Context) (Update, error) {
	for {
		if sub.q.Dropped() {
			return Update{}, ErrSubscriptionOverflow
		}
		if u, ok := sub.q.TryDequeue(); ok {
			return u, nil
		}
		if sub.q.Closed() {
			return Update{}, ErrSubscriptionClosed
		}
		select {
		case <-ctx.Done():
			return Update{}, ctx.Err()
		case <-sub.q.Wait():
		}
	}
}

// Pending returns the number of queued updates.
func (sub *Subscription) Pending() int { return sub.q.Len() }

// Close detaches the subscription from its server.
func (sub *Subscription) Close() {
	sub.srv.unsubscribe(sub)
	sub.q.Close()
}
