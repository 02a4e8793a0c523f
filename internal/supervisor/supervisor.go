// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package supervisor classifies how a child process exited. C9's capture
// scheduler uses it to tell a crashed capture worker (killed by a fatal
// signal or a panic) apart from a clean or requested stop, so the two
// cases get different log severities instead of identical "exited" noise.
package supervisor

import (
	"syscall"
	"time"
)

// CrashEvent records how a single process exit looked.
type CrashEvent struct {
	ExitCode  int
	Signal    syscall.Signal
	Timestamp time.Time
	WasPanic  bool
}

// IsCrash returns true if this event represents an actual crash (as
// opposed to a clean exit or requested stop).
func (e CrashEvent) IsCrash() bool {
	// Panics are always crashes
	if e.WasPanic {
		return true
	}

	// Fatal signals are crashes
	switch e.Signal {
	case syscall.SIGKILL, syscall.SIGSEGV, syscall.SIGBUS, syscall.SIGABRT:
		return true
	case syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP:
		return false // Requested stop
	}

	// Exit 0 is clean
	if e.ExitCode == 0 {
		return false
	}

	// Non-zero exit without a signal - treat as crash
	return true
}
