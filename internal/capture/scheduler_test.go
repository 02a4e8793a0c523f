// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package capture

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/nqminds/EDGESec/internal/config"
	"github.com/nqminds/EDGESec/internal/eloop"
	"github.com/nqminds/EDGESec/internal/store"
)

// fakeWorker writes a shell script standing in for cmd/edgesec-capture: it
// ignores every flag and just exits with the given code, so tests can
// exercise Spawn/wait/onExitNotify without a real pcap-capable binary.
func fakeWorker(t *testing.T, exitCode int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-capture-worker.sh")
	script := "#!/bin/sh\nexit " + strconv.Itoa(exitCode) + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake worker: %v", err)
	}
	return path
}

func newTestScheduler(t *testing.T, workerExit int) (*Scheduler, *store.Memory) {
	t.Helper()
	loop, err := eloop.New()
	if err != nil {
		t.Fatalf("eloop.New: %v", err)
	}
	t.Cleanup(func() { loop.Close() })

	mem := store.NewMemory()
	mem.PutVlan(10, store.VlanConn{IfName: "vlan10"})

	sched, err := New(fakeWorker(t, workerExit), config.CaptureConfig{Snaplen: 4096}, filepath.Join(t.TempDir(), "store.db"), mem, loop)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { sched.Close() })
	return sched, mem
}

func TestSpawnTracksPidUntilExit(t *testing.T) {
	sched, mem := newTestScheduler(t, 0)

	pid, err := sched.Spawn(10, "vlan10")
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if pid <= 0 {
		t.Fatalf("expected a positive pid, got %d", pid)
	}

	vc, _ := mem.GetVlan(10)
	vc.AnalyserPID = pid
	mem.PutVlan(10, vc)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sched.onExitNotify(int(sched.pipeR.Fd()))
		if vc, _ := mem.GetVlan(10); vc.AnalyserPID == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected analyser_pid to clear after the worker exited")
}

func TestSpawnRejectsDuplicateVlan(t *testing.T) {
	sched, _ := newTestScheduler(t, 0)

	if _, err := sched.Spawn(10, "vlan10"); err != nil {
		t.Fatalf("first Spawn: %v", err)
	}
	if _, err := sched.Spawn(10, "vlan10"); err == nil {
		t.Fatal("expected the second Spawn for an already-tracked vlan to fail")
	}
}
