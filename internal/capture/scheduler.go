// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package capture is the per-VLAN capture scheduler (C9). The supervisor
// itself never touches libpcap: Scheduler execs one capture-worker child
// process per VLAN (cmd/edgesec-capture, which owns the actual pcap
// session, decode, and SQLite/gRPC sinks) and tracks its pid, clearing the
// VLAN's analyser_pid slot when the child exits (spec §4.9).
package capture

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"syscall"

	"github.com/nqminds/EDGESec/internal/config"
	"github.com/nqminds/EDGESec/internal/errors"
	"github.com/nqminds/EDGESec/internal/eloop"
	"github.com/nqminds/EDGESec/internal/logging"
	"github.com/nqminds/EDGESec/internal/metrics"
	"github.com/nqminds/EDGESec/internal/store"
	"github.com/nqminds/EDGESec/internal/supervisor"
)

// Scheduler spawns and tracks one capture-worker child per VLAN. Workers
// run as separate OS processes and share no memory with the supervisor
// (spec §5's scheduling model): all the scheduler does with a live child is
// remember its pid and notice when it stops being live.
type Scheduler struct {
	workerPath string
	cfg        config.CaptureConfig
	dbPath     string
	mem        *store.Memory
	log        *logging.Logger

	mu    sync.Mutex
	procs map[uint16]*os.Process

	exited chan uint16
	pipeR  *os.File
	pipeW  *os.File
}

// New constructs a Scheduler that execs workerPath for each spawned
// capture child, registering its exit-notification pipe with loop so exit
// handling runs on the event-loop goroutine rather than a Wait() goroutine
// (Memory is not safe for concurrent mutation, spec §5).
func New(workerPath string, cfg config.CaptureConfig, dbPath string, mem *store.Memory, loop *eloop.Loop) (*Scheduler, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "capture: self-pipe")
	}

	s := &Scheduler{
		workerPath: workerPath,
		cfg:        cfg,
		dbPath:     dbPath,
		mem:        mem,
		log:        logging.WithComponent("capture"),
		procs:      make(map[uint16]*os.Process),
		exited:     make(chan uint16, 64),
		pipeR:      r,
		pipeW:      w,
	}

	if err := loop.RegisterRead(int(r.Fd()), s.onExitNotify); err != nil {
		r.Close()
		w.Close()
		return nil, err
	}
	return s, nil
}

// Close closes both ends of the exit-notification pipe; it does not kill
// already-running children.
func (s *Scheduler) Close() error {
	s.pipeR.Close()
	return s.pipeW.Close()
}

// Spawn execs a capture worker bound to ifname for vlanID, returning its
// pid once the process has been started. Spawning for a VLAN that already
// has a tracked worker fails with a KindConflict error (the cmdproc caller
// already checks VlanConn.HasAnalyser before calling, but Spawn re-checks
// for safety against races with the exit-notification path).
func (s *Scheduler) Spawn(vlanID uint16, ifname string) (int, error) {
	s.mu.Lock()
	if _, ok := s.procs[vlanID]; ok {
		s.mu.Unlock()
		return 0, errors.Errorf(errors.KindConflict, "capture: vlan %d already has a live worker", vlanID)
	}
	s.mu.Unlock()

	args := []string{
		"-vlan", strconv.Itoa(int(vlanID)),
		"-ifname", ifname,
		"-db", s.dbPath,
		"-snaplen", strconv.Itoa(s.cfg.Snaplen),
	}
	if s.cfg.Promiscuous {
		args = append(args, "-promisc")
	}
	args = append(args, "-immediate="+strconv.FormatBool(s.cfg.Immediate))
	if s.cfg.Filter != "" {
		args = append(args, "-filter", s.cfg.Filter)
	}
	if s.cfg.GRPCSink != "" {
		args = append(args, "-sink", s.cfg.GRPCSink)
	}

	cmd := exec.Command(s.workerPath, args...)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		metrics.CaptureSpawnsTotal.WithLabelValues("error").Inc()
		return 0, errors.Wrapf(err, errors.KindUnavailable, "capture: start worker for vlan %d", vlanID)
	}

	s.mu.Lock()
	s.procs[vlanID] = cmd.Process
	s.mu.Unlock()

	metrics.CaptureSpawnsTotal.WithLabelValues("ok").Inc()
	s.log.Info("capture worker started", "vlan", vlanID, "ifname", ifname, "pid", cmd.Process.Pid)

	go s.wait(vlanID, cmd)
	return cmd.Process.Pid, nil
}

// wait blocks off the event-loop goroutine until the child exits, then
// wakes the loop via the self-pipe so the actual Memory mutation happens
// on the single goroutine that's allowed to touch it.
func (s *Scheduler) wait(vlanID uint16, cmd *exec.Cmd) {
	err := cmd.Wait()

	crash := supervisor.CrashEvent{}
	if cmd.ProcessState != nil {
		crash.ExitCode = cmd.ProcessState.ExitCode()
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			crash.Signal = ws.Signal()
		}
	}
	if crash.IsCrash() {
		s.log.Warn("capture worker crashed", "vlan", vlanID, "exit_code", crash.ExitCode)
	} else {
		s.log.Info("capture worker exited", "vlan", vlanID, "exit_code", crash.ExitCode)
	}

	select {
	case s.exited <- vlanID:
	default:
		s.log.Warn("exit notification queue full, dropping", "vlan", vlanID)
	}
	fmt.Fprint(s.pipeW, "x")
}

// onExitNotify runs on the event-loop goroutine: drain every queued exit
// and clear each VLAN's analyser_pid slot (spec §4.9 "on worker exit C9
// clears the pid slot").
func (s *Scheduler) onExitNotify(fd int) {
	buf := make([]byte, 64)
	os.NewFile(uintptr(fd), "capture-exit-pipe").Read(buf)

	for {
		select {
		case vlanID := <-s.exited:
			s.mu.Lock()
			delete(s.procs, vlanID)
			s.mu.Unlock()

			if vc, ok := s.mem.GetVlan(vlanID); ok {
				vc.AnalyserPID = 0
				s.mem.PutVlan(vlanID, vc)
			}
		default:
			return
		}
	}
}
