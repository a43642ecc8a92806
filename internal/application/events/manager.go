// Package events fans committed change events out to subscribers. Each
// subscriber owns a filter, a queue and a pump goroutine, so a slow reader
// never holds up the processor or other readers.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"arbor/internal/application"
	"arbor/internal/domain"
	"arbor/internal/ports"
)

const (
	// DefaultCoalesceAfter is the queue length past which updates fold together
	DefaultCoalesceAfter = 64
	// DefaultStaleAfter bounds how long an event may wait for its reader
	DefaultStaleAfter = 5 * time.Minute
)

var (
	// ErrStale ends a subscription whose reader stopped draining it
	ErrStale = errors.New("subscription stalled: events were not read in time")
	// ErrClosed ends every subscription when the manager shuts down
	ErrClosed = errors.New("event bus closed")
)

// Serializer runs work between two commands. Opening a subscription with an
// initial snapshot goes through it so the snapshot and the live stream meet
// at one sequence number.
type Serializer interface {
	Exclusive(ctx context.Context, fn func(context.Context) error) error
	Seq() int64
}

// Options configures a Manager
type Options struct {
	Store     ports.NodeReader
	Ephemeral ports.EphemeralStore

	// Rate limits deliveries per subscriber; zero means unlimited
	Rate  rate.Limit
	Burst int

	CoalesceAfter int
	StaleAfter    time.Duration
	Logger        *slog.Logger
}

// Manager is the change event bus and the subscription registry
type Manager struct {
	store     ports.NodeReader
	ephemeral ports.EphemeralStore
	logger    *slog.Logger
	now       func() time.Time

	limit         rate.Limit
	burst         int
	coalesceAfter int
	staleAfter    time.Duration

	serializer Serializer

	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	closed bool
}

// NewManager creates an event manager
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:         opts.Store,
		ephemeral:     opts.Ephemeral,
		logger:        logger.With("component", "events"),
		now:           time.Now,
		limit:         opts.Rate,
		burst:         opts.Burst,
		coalesceAfter: opts.CoalesceAfter,
		staleAfter:    opts.StaleAfter,
		subs:          make(map[uint64]*subscription),
	}
	if m.limit <= 0 {
		m.limit = rate.Inf
	}
	if m.burst <= 0 {
		m.burst = 1
	}
	if m.coalesceAfter <= 0 {
		m.coalesceAfter = DefaultCoalesceAfter
	}
	if m.staleAfter <= 0 {
		m.staleAfter = DefaultStaleAfter
	}
	return m
}

// Bind sets the serializer used for initial snapshots. The processor is
// built with the manager as its publisher, so it is bound afterwards.
func (m *Manager) Bind(s Serializer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serializer = s
}

// Publish delivers the events of one committed command to every matching
// subscriber. It is called on the processor goroutine right after commit,
// so parent lookups see exactly the state the events describe.
func (m *Manager) Publish(events []domain.TreeChangeEvent) {
	if len(events) == 0 {
		return
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.subs) == 0 {
		return
	}

	parents := m.parentsFor(events)
	coalesced := 0
	for _, s := range m.subs {
		var matched []domain.TreeChangeEvent
		for _, ev := range events {
			if s.filter.Match(ev, parents) {
				matched = append(matched, ev)
			}
		}
		if len(matched) > 0 {
			coalesced += s.push(matched...)
		}
	}
	recordCoalesced(context.Background(), coalesced)
}

// parentsFor resolves parents from the batch first so deleted nodes can
// still be placed, then from the store
func (m *Manager) parentsFor(events []domain.TreeChangeEvent) ParentOf {
	batch := make(map[string]string, len(events))
	for _, ev := range events {
		switch {
		case ev.Node != nil:
			batch[ev.NodeID] = ev.Node.ParentID
		case ev.PreviousNode != nil:
			batch[ev.NodeID] = ev.PreviousNode.ParentID
		}
	}

	looked := make(map[string]*string)
	return func(id string) (string, bool) {
		if p, ok := batch[id]; ok {
			return p, true
		}
		if p, ok := looked[id]; ok {
			return derefParent(p)
		}
		var parent *string
		if m.store != nil {
			n, err := m.store.GetNode(context.Background(), id)
			if err != nil {
				m.logger.Warn("parent lookup failed", "node", id, "error", err)
			} else if n != nil {
				parent = &n.ParentID
			}
		}
		looked[id] = parent
		return derefParent(parent)
	}
}

func derefParent(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	return *p, true
}

// subscribe registers filter and starts its pump. initial, when set, builds
// the snapshot event that precedes live events.
func (m *Manager) subscribe(ctx context.Context, scope Scope, filter Filter, initial func(context.Context) (domain.TreeChangeEvent, error)) *Subscription {
	subCtx, cancel := context.WithCancel(context.Background())
	s := &subscription{
		scope:         scope,
		filter:        filter,
		limiter:       rate.NewLimiter(m.limit, m.burst),
		coalesceAfter: m.coalesceAfter,
		now:           m.now,
		ctx:           subCtx,
		cancel:        cancel,
		exited:        make(chan struct{}),
		wake:          make(chan struct{}, 1),
		out:           make(chan domain.TreeChangeEvent),
		errs:          make(chan error, 1),
	}

	m.mu.Lock()
	m.nextID++
	s.id = m.nextID
	serializer := m.serializer
	closed := m.closed
	m.mu.Unlock()

	go s.pump(func() { recordDelivered(context.Background()) })
	public := s.public(func() { m.unsubscribe(s, nil) })
	if closed {
		m.unsubscribe(s, ErrClosed)
		return public
	}

	register := func(ctx context.Context) error {
		if initial != nil {
			ev, err := initial(ctx)
			if err != nil {
				return err
			}
			ev.Type = domain.EventSnapshot
			ev.Timestamp = m.now()
			if serializer != nil {
				ev.Seq = serializer.Seq()
			}
			s.push(ev)
		}
		m.add(s)
		return nil
	}

	var err error
	if initial != nil && serializer != nil {
		err = serializer.Exclusive(ctx, register)
	} else {
		err = register(ctx)
	}
	if err != nil {
		m.logger.Debug("subscription failed to open", "scope", scope, "error", err)
		m.unsubscribe(s, err)
		return public
	}

	// The caller's context bounds the subscription
	go func() {
		select {
		case <-ctx.Done():
			m.unsubscribe(s, nil)
		case <-s.ctx.Done():
		}
	}()
	m.logger.Debug("subscribed", "id", s.id, "scope", scope)
	return public
}

func (m *Manager) add(s *subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[s.id] = s
	recordActive(context.Background(), 1)
}

// unsubscribe stops s and waits for its pump to exit
func (m *Manager) unsubscribe(s *subscription, err error) {
	m.mu.Lock()
	_, registered := m.subs[s.id]
	delete(m.subs, s.id)
	m.mu.Unlock()
	if registered {
		recordActive(context.Background(), -1)
	}

	s.stop(err)
	<-s.exited
}

// Active returns the number of open subscriptions
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Sweep ends subscriptions whose oldest queued event has waited longer than
// the stale limit. Returns how many were reaped.
func (m *Manager) Sweep() int {
	cutoff := m.now().Add(-m.staleAfter)

	m.mu.RLock()
	var stale []*subscription
	for _, s := range m.subs {
		if since, ok := s.waitingSince(); ok && since.Before(cutoff) {
			stale = append(stale, s)
		}
	}
	m.mu.RUnlock()

	for _, s := range stale {
		m.logger.Info("reaping stalled subscription", "id", s.id, "scope", s.scope)
		m.unsubscribe(s, ErrStale)
	}
	recordReaped(context.Background(), len(stale))
	return len(stale)
}

// Close ends every subscription with ErrClosed and refuses new ones
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	subs := make([]*subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		m.unsubscribe(s, ErrClosed)
	}
}

func requireID(field, id string) error {
	return application.ValidateRequired(field, id)
}
