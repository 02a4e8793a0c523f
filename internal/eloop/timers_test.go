// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package eloop

import (
	"testing"
	"time"
)

func newTestLoop(now time.Time) *Loop {
	return &Loop{
		fds:   make(map[int]*fdEntry),
		nowFn: func() time.Time { return now },
	}
}

func TestNextDeadlineOrdersByFireTime(t *testing.T) {
	base := time.Unix(1000, 0)
	l := newTestLoop(base)

	var fired []string
	record := func(name string) TimeoutHandler {
		return func(ctxA, ctxB any) { fired = append(fired, name) }
	}

	l.RegisterTimeout(3*time.Second, record("c"), nil, nil)
	l.RegisterTimeout(1*time.Second, record("a"), nil, nil)
	l.RegisterTimeout(2*time.Second, record("b"), nil, nil)

	d, ok := l.nextDeadline()
	if !ok {
		t.Fatal("expected a pending deadline")
	}
	if !d.Equal(base.Add(1 * time.Second)) {
		t.Fatalf("expected soonest deadline at +1s, got %v", d)
	}

	l.fireExpired(base.Add(2500 * time.Millisecond))
	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("expected a,b to fire in order, got %v", fired)
	}

	l.fireExpired(base.Add(10 * time.Second))
	if len(fired) != 3 || fired[2] != "c" {
		t.Fatalf("expected c to fire last, got %v", fired)
	}
}

func TestCancelTimeoutWithAllContextsWildcard(t *testing.T) {
	base := time.Unix(0, 0)
	l := newTestLoop(base)

	var fired int
	h := func(ctxA, ctxB any) { fired++ }

	l.RegisterTimeout(time.Second, h, "macA", "vlan1")
	l.RegisterTimeout(time.Second, h, "macB", "vlan1")
	l.RegisterTimeout(time.Second, h, "macC", "vlan2")

	n := l.CancelTimeout(h, AllContexts, "vlan1")
	if n != 2 {
		t.Fatalf("expected 2 canceled with ctxB=vlan1 wildcarded on ctxA, got %d", n)
	}

	l.fireExpired(base.Add(2 * time.Second))
	if fired != 1 {
		t.Fatalf("expected only the vlan2 timer to fire, got %d firings", fired)
	}
}

func TestDepleteAndReplenishTimeout(t *testing.T) {
	base := time.Unix(0, 0)
	l := newTestLoop(base)

	h := func(ctxA, ctxB any) {}
	l.RegisterTimeout(10*time.Second, h, "ctx", nil)

	n := l.DepleteTimeout(2*time.Second, h, "ctx", AllContexts)
	if n != 1 {
		t.Fatalf("expected deplete to affect 1 timer, got %d", n)
	}
	d, _ := l.nextDeadline()
	if !d.Equal(base.Add(2 * time.Second)) {
		t.Fatalf("expected deadline pulled in to +2s, got %v", d)
	}

	n = l.DepleteTimeout(5*time.Second, h, "ctx", AllContexts)
	if n != 0 {
		t.Fatalf("deplete with a longer request should not push the deadline back out, got n=%d", n)
	}

	n = l.ReplenishTimeout(8*time.Second, h, "ctx", AllContexts)
	if n != 1 {
		t.Fatalf("expected replenish to affect 1 timer, got %d", n)
	}
	d, _ = l.nextDeadline()
	if !d.Equal(base.Add(8 * time.Second)) {
		t.Fatalf("expected deadline pushed out to +8s, got %v", d)
	}
}
