// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package eloop

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nqminds/EDGESec/internal/logging"
)

// ReadHandler is invoked when fd becomes readable.
type ReadHandler func(fd int)

// WriteHandler is invoked when fd becomes writable, or on an exceptional
// condition if exception is true.
type WriteHandler func(fd int, exception bool)

type fdEntry struct {
	read  ReadHandler
	write WriteHandler
}

// Loop is the single-threaded cooperative event loop (C1). All exported
// methods except Run are safe to call from within a handler running on the
// loop's own goroutine; Register methods acquire an internal mutex only to
// protect bookkeeping, never to block on external state.
type Loop struct {
	mu     sync.Mutex
	epfd   int
	fds    map[int]*fdEntry
	timers timerHeap
	term   bool

	sighup  chan os.Signal
	sigterm chan os.Signal

	// now is overridable in tests; defaults to time.Now.
	nowFn func() time.Time
}

// New creates an event loop backed by epoll.
func New() (*Loop, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	l := &Loop{
		epfd:    epfd,
		fds:     make(map[int]*fdEntry),
		nowFn:   time.Now,
		sighup:  make(chan os.Signal, 1),
		sigterm: make(chan os.Signal, 1),
	}
	signal.Notify(l.sighup, syscall.SIGHUP)
	signal.Notify(l.sigterm, syscall.SIGTERM, syscall.SIGINT)
	return l, nil
}

func (l *Loop) now() time.Time { return l.nowFn() }

// RegisterRead registers a read-readiness handler for fd. Re-registering an
// already-known fd replaces its read handler.
func (l *Loop) RegisterRead(fd int, h ReadHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.fds[fd]
	if !ok {
		e = &fdEntry{}
		l.fds[fd] = e
		if err := l.epollAdd(fd); err != nil {
			delete(l.fds, fd)
			return err
		}
	}
	e.read = h
	return nil
}

// RegisterWrite registers a write/exception handler for fd.
func (l *Loop) RegisterWrite(fd int, h WriteHandler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.fds[fd]
	if !ok {
		e = &fdEntry{}
		l.fds[fd] = e
		if err := l.epollAdd(fd); err != nil {
			delete(l.fds, fd)
			return err
		}
	}
	e.write = h
	return nil
}

// Unregister removes all handlers for fd and stops watching it.
func (l *Loop) Unregister(fd int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.fds[fd]; !ok {
		return
	}
	_ = unix.EpollCtl(l.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	delete(l.fds, fd)
}

func (l *Loop) epollAdd(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLERR | unix.EPOLLHUP, Fd: int32(fd)}
	return unix.EpollCtl(l.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Terminate sets the terminate flag; the loop breaks after the current
// iteration completes, per spec §4.1.
func (l *Loop) Terminate() {
	l.mu.Lock()
	l.term = true
	l.mu.Unlock()
}

func (l *Loop) terminated() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.term
}

// Run blocks, dispatching fd readiness and timers until Terminate is
// called or a fatal epoll error occurs. SIGTERM/SIGINT call Terminate;
// SIGHUP reopens the log file and is otherwise inert to state, matching
// spec §4.1 exactly.
func (l *Loop) Run() error {
	log := logging.WithComponent("eloop")
	events := make([]unix.EpollEvent, 64)

	for !l.terminated() {
		select {
		case <-l.sigterm:
			log.Info("received termination signal")
			l.Terminate()
			continue
		case <-l.sighup:
			if err := logging.Reopen(); err != nil {
				log.Warn("failed to reopen log file", "error", err)
			}
			continue
		default:
		}

		timeout := -1
		if d, ok := l.nextDeadline(); ok {
			remaining := d.Sub(l.now())
			if remaining < 0 {
				remaining = 0
			}
			timeout = int(remaining.Milliseconds())
		}

		n, err := unix.EpollWait(l.epfd, events, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			ev := events[i].Events

			l.mu.Lock()
			entry, ok := l.fds[fd]
			l.mu.Unlock()
			if !ok {
				continue
			}

			if ev&(unix.EPOLLIN|unix.EPOLLHUP) != 0 && entry.read != nil {
				entry.read(fd)
			}
			if ev&unix.EPOLLOUT != 0 && entry.write != nil {
				entry.write(fd, false)
			}
			if ev&unix.EPOLLERR != 0 && entry.write != nil {
				entry.write(fd, true)
			}
		}

		l.fireExpired(l.now())
	}

	return nil
}

// Close releases the epoll fd. Capture/AP/RADIUS subsystems should already
// have been torn down in reverse order before this is called.
func (l *Loop) Close() error {
	return unix.Close(l.epfd)
}
