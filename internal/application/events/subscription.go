package events

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"arbor/internal/domain"
)

// Subscription is a live stream of change events. Events is closed when the
// subscription ends; a failure is sent on Errors first.
type Subscription struct {
	ID     uint64
	Scope  Scope
	Events <-chan domain.TreeChangeEvent
	Errors <-chan error

	cancel func()
}

// Cancel ends the subscription. No event is delivered once Cancel returns.
func (s *Subscription) Cancel() {
	s.cancel()
}

type queued struct {
	ev domain.TreeChangeEvent
	at time.Time
}

// subscription is the manager side of a stream: a queue filled by Publish
// and drained by its own pump goroutine
type subscription struct {
	id            uint64
	scope         Scope
	filter        Filter
	limiter       *rate.Limiter
	coalesceAfter int
	now           func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	exited chan struct{}

	mu      sync.Mutex
	queue   []queued
	holding time.Time // queue time of the event the pump is trying to hand over
	failed  error

	wake chan struct{}
	out  chan domain.TreeChangeEvent
	errs chan error
}

func (s *subscription) public(cancel func()) *Subscription {
	return &Subscription{ID: s.id, Scope: s.scope, Events: s.out, Errors: s.errs, cancel: cancel}
}

// push queues events and wakes the pump. Returns how many queued events
// were folded into newer ones.
func (s *subscription) push(events ...domain.TreeChangeEvent) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return 0
	}

	coalesced := 0
	now := s.now()
	for _, ev := range events {
		if len(s.queue) >= s.coalesceAfter {
			var ok bool
			if ev, ok = s.coalesce(ev); ok {
				coalesced++
			}
		}
		s.queue = append(s.queue, queued{ev: ev, at: now})
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return coalesced
}

// coalesce removes an older queued event that ev supersedes and folds its
// starting state into ev. Only updates of one node and child-list changes of
// one parent fold together.
func (s *subscription) coalesce(ev domain.TreeChangeEvent) (domain.TreeChangeEvent, bool) {
	if ev.Type != domain.EventNodeUpdated && ev.Type != domain.EventChildrenChanged {
		return ev, false
	}
	i := slices.IndexFunc(s.queue, func(q queued) bool {
		return q.ev.Type == ev.Type && q.ev.NodeID == ev.NodeID
	})
	if i < 0 {
		return ev, false
	}

	older := s.queue[i].ev
	s.queue = slices.Delete(s.queue, i, i+1)
	switch ev.Type {
	case domain.EventNodeUpdated:
		ev.PreviousNode = older.PreviousNode
		ev.PreviousParentID = older.PreviousParentID
	case domain.EventChildrenChanged:
		children := append(slices.Clone(older.AffectedChildren), ev.AffectedChildren...)
		slices.Sort(children)
		ev.AffectedChildren = slices.Compact(children)
	}
	return ev, true
}

func (s *subscription) next() (domain.TreeChangeEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return domain.TreeChangeEvent{}, false
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	s.holding = head.at
	return head.ev, true
}

func (s *subscription) handedOver() {
	s.mu.Lock()
	s.holding = time.Time{}
	s.mu.Unlock()
}

// waitingSince returns when the oldest undelivered event was queued
func (s *subscription) waitingSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.holding.IsZero() {
		return s.holding, true
	}
	if len(s.queue) == 0 {
		return time.Time{}, false
	}
	return s.queue[0].at, true
}

// stop ends the stream, recording err for the error channel
func (s *subscription) stop(err error) {
	s.mu.Lock()
	if s.failed == nil && s.ctx.Err() == nil {
		s.failed = err
	}
	s.queue = nil
	s.mu.Unlock()
	s.cancel()
}

// pump delivers queued events in order until the subscription stops
func (s *subscription) pump(delivered func()) {
	defer func() {
		s.mu.Lock()
		err := s.failed
		s.mu.Unlock()
		if err != nil {
			s.errs <- err
		}
		close(s.errs)
		close(s.out)
		close(s.exited)
	}()

	for {
		ev, ok := s.next()
		if !ok {
			select {
			case <-s.wake:
				continue
			case <-s.ctx.Done():
				return
			}
		}

		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		select {
		case s.out <- ev:
			s.handedOver()
			delivered()
		case <-s.ctx.Done():
			return
		}
	}
}
