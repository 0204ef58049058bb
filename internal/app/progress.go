package app

import (
	"sync"

	"examprep-service/internal/domain"
)

// ProgressHub fans attempt progress out to subscribers. It holds no attempt state of
// its own; every update is computed from committed rows by the service.
type ProgressHub struct {
	mu          sync.Mutex
	subscribers map[string]map[*subscription]struct{}
}

// subscription buffers updates until its initial state is known, then only forwards
// progress that is ahead of what it already delivered.
type subscription struct {
	ch      chan domain.AttemptProgress
	ready   bool
	last    domain.AttemptProgress
	hasLast bool
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subscribers: make(map[string]map[*subscription]struct{})}
}

// subscribe registers a subscriber before the caller reads the attempt, so no commit
// between the read and the registration goes unseen. Nothing is delivered until start.
func (h *ProgressHub) subscribe(attemptID string) (*subscription, func()) {
	sub := &subscription{ch: make(chan domain.AttemptProgress, 8)}

	h.mu.Lock()
	subs, ok := h.subscribers[attemptID]
	if !ok {
		subs = make(map[*subscription]struct{})
		h.subscribers[attemptID] = subs
	}
	subs[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[attemptID]
		if !ok {
			return
		}
		if _, ok := subs[sub]; ok {
			delete(subs, sub)
			close(sub.ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, attemptID)
		}
	}
	return sub, cancel
}

// start delivers initial, or a newer update broadcast since subscribe, and opens the
// subscription for later broadcasts.
func (h *ProgressHub) start(sub *subscription, initial domain.AttemptProgress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.hasLast && !progressAhead(initial, sub.last) {
		initial = sub.last
	}
	sub.ready = true
	sub.hasLast = false
	sub.deliver(initial)
}

func (h *ProgressHub) broadcast(p domain.AttemptProgress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers[p.AttemptID] {
		if !sub.ready {
			if !sub.hasLast || progressAhead(p, sub.last) {
				sub.last, sub.hasLast = p, true
			}
			continue
		}
		sub.deliver(p)
	}
}

// deliver sends p unless an update at least as far along was already sent. Callers
// hold h.mu.
func (s *subscription) deliver(p domain.AttemptProgress) {
	if s.hasLast && !progressAhead(p, s.last) {
		return
	}
	s.last, s.hasLast = p, true
	select {
	case s.ch <- p:
	default:
		// slow subscriber: drop the stale update and keep the newest
		select {
		case <-s.ch:
		default:
		}
		s.ch <- p
	}
}

// progressAhead reports whether a is further along than b. Answers and submission
// only ever accumulate, so the pair orders every state of one attempt.
func progressAhead(a, b domain.AttemptProgress) bool {
	if a.Status != b.Status {
		return a.Status == domain.AttemptSubmitted
	}
	return a.Answered > b.Answered
}

// Subscribers reports how many channels watch attemptID.
func (h *ProgressHub) Subscribers(attemptID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[attemptID])
}
