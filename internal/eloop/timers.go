// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package eloop implements the single-threaded, cooperative readiness/timer
// dispatcher described in spec §4.1 (C1): one fd→read-handler registry, one
// fd→write/exception-handler registry, and an ordered set of timers keyed by
// deadline. Handlers never block; they may register or unregister any
// handler, including themselves, from within a callback.
package eloop

import (
	"container/heap"
	"time"
)

// AllContexts is the wildcard sentinel that matches any ctxA/ctxB pair when
// cancelling, depleting, or replenishing timers (mirrors the original
// ELOOP_ALL_CTX magic value).
var AllContexts = &struct{ name string }{"eloop-all-contexts"}

// TimeoutHandler is invoked when a registered timer's deadline elapses.
type TimeoutHandler func(ctxA, ctxB any)

type timer struct {
	deadline time.Time
	handler  TimeoutHandler
	ctxA     any
	ctxB     any
	index    int // heap.Interface bookkeeping
	canceled bool
}

// timerHeap is a min-heap ordered by deadline, giving O(log n)
// insert/remove and O(1) access to the soonest deadline — the arena/vector
// representation design note §9 calls for in place of a linked list.
type timerHeap []*timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// RegisterTimeout arms a new relative-time timer. Firing is at-least-once
// and never earlier than the requested duration.
func (l *Loop) RegisterTimeout(d time.Duration, handler TimeoutHandler, ctxA, ctxB any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := &timer{deadline: l.now().Add(d), handler: handler, ctxA: ctxA, ctxB: ctxB}
	heap.Push(&l.timers, t)
}

func matchCtx(want, have any) bool {
	return want == AllContexts || want == have
}

// CancelTimeout cancels every timer whose (handler, ctxA, ctxB) matches,
// where AllContexts is a wildcard for either context slot. Returns the
// number of timers canceled.
func (l *Loop) CancelTimeout(handler TimeoutHandler, ctxA, ctxB any) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, t := range l.timers {
		if t.canceled {
			continue
		}
		if sameHandler(t.handler, handler) && matchCtx(ctxA, t.ctxA) && matchCtx(ctxB, t.ctxB) {
			t.canceled = true
			n++
		}
	}
	return n
}

// DepleteTimeout sets remaining = min(remaining, req) on every matching
// timer, bringing its deadline closer if it was further out.
func (l *Loop) DepleteTimeout(req time.Duration, handler TimeoutHandler, ctxA, ctxB any) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	want := l.now().Add(req)
	for _, t := range l.timers {
		if t.canceled {
			continue
		}
		if sameHandler(t.handler, handler) && matchCtx(ctxA, t.ctxA) && matchCtx(ctxB, t.ctxB) {
			if want.Before(t.deadline) {
				t.deadline = want
				n++
			}
		}
	}
	if n > 0 {
		heap.Init(&l.timers)
	}
	return n
}

// ReplenishTimeout sets remaining = max(remaining, req) on every matching
// timer, pushing its deadline further out if it was closer.
func (l *Loop) ReplenishTimeout(req time.Duration, handler TimeoutHandler, ctxA, ctxB any) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	want := l.now().Add(req)
	for _, t := range l.timers {
		if t.canceled {
			continue
		}
		if sameHandler(t.handler, handler) && matchCtx(ctxA, t.ctxA) && matchCtx(ctxB, t.ctxB) {
			if want.After(t.deadline) {
				t.deadline = want
				n++
			}
		}
	}
	if n > 0 {
		heap.Init(&l.timers)
	}
	return n
}

// nextDeadline returns the soonest non-canceled timer's deadline and
// whether one exists, skipping (and discarding) canceled entries at the
// top of the heap.
func (l *Loop) nextDeadline() (time.Time, bool) {
	for l.timers.Len() > 0 {
		t := l.timers[0]
		if t.canceled {
			heap.Pop(&l.timers)
			continue
		}
		return t.deadline, true
	}
	return time.Time{}, false
}

// fireExpired pops and runs every timer whose deadline has passed, earliest
// first, using the instant `now` for comparisons.
func (l *Loop) fireExpired(now time.Time) {
	for {
		l.mu.Lock()
		if l.timers.Len() == 0 {
			l.mu.Unlock()
			return
		}
		t := l.timers[0]
		if t.canceled {
			heap.Pop(&l.timers)
			l.mu.Unlock()
			continue
		}
		if t.deadline.After(now) {
			l.mu.Unlock()
			return
		}
		heap.Pop(&l.timers)
		l.mu.Unlock()
		t.handler(t.ctxA, t.ctxB)
	}
}

// sameHandler compares two TimeoutHandler values by their underlying code
// pointer. Go function values aren't comparable with ==, so this compares
// the reflect code pointers funcPointer returns, matching the handler
// identity that the (handler, ctxA, ctxB) match key needs.
func sameHandler(a, b TimeoutHandler) bool {
	return funcPointer(a) == funcPointer(b)
}
