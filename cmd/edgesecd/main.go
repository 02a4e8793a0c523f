// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// edgesecd is the network-edge security supervisor (spec.md §4.1): it
// loads the on-disk configuration, takes the PID file's advisory lock,
// and wires C2 through C10 onto a single epoll event loop before handing
// control to it. Every subsystem below this file is ignorant of process
// lifecycle; main owns start order and, on shutdown, its exact reverse.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/nftables"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nqminds/EDGESec/internal/apctl"
	"github.com/nqminds/EDGESec/internal/capture"
	"github.com/nqminds/EDGESec/internal/cmdproc"
	"github.com/nqminds/EDGESec/internal/config"
	"github.com/nqminds/EDGESec/internal/credstore"
	"github.com/nqminds/EDGESec/internal/dhcpobserve"
	"github.com/nqminds/EDGESec/internal/dnsfwd"
	"github.com/nqminds/EDGESec/internal/eloop"
	"github.com/nqminds/EDGESec/internal/firewall"
	"github.com/nqminds/EDGESec/internal/logging"
	"github.com/nqminds/EDGESec/internal/metrics"
	"github.com/nqminds/EDGESec/internal/netiface"
	"github.com/nqminds/EDGESec/internal/radius"
	"github.com/nqminds/EDGESec/internal/store"
)

func main() {
	configPath := flag.String("config", "/etc/edgesec/edgesecd.hcl", "path to the HCL configuration file")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. 127.0.0.1:9100)")
	flag.Parse()

	if err := run(*configPath, *metricsAddr); err != nil {
		fmt.Fprintln(os.Stderr, "edgesecd:", err)
		os.Exit(1)
	}
}

func run(configPath, metricsAddr string) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return err
	}

	logging.New(logging.Config{Path: cfg.LogFile, Level: slog.LevelInfo})
	log := logging.WithComponent("edgesecd")

	lock, err := acquirePIDFile(cfg.PIDFile)
	if err != nil {
		return err
	}
	defer releasePIDFile(lock, cfg.PIDFile)

	reg := prometheus.NewRegistry()
	metrics.Register(reg)
	if metricsAddr != "" {
		serveMetrics(metricsAddr, reg, log)
	}

	loop, err := eloop.New()
	if err != nil {
		return fmt.Errorf("edgesecd: event loop: %w", err)
	}
	defer loop.Close()

	db, err := store.Open(cfg.StoreDB)
	if err != nil {
		return err
	}
	defer db.Close()

	mem, err := loadMemory(cfg, db)
	if err != nil {
		return err
	}

	masterSecret, err := os.ReadFile(cfg.MasterSecretFile)
	if err != nil {
		return fmt.Errorf("edgesecd: read master secret: %w", err)
	}
	cred, err := credstore.New(db.Conn(), masterSecret)
	if err != nil {
		return err
	}
	tickets := credstore.NewTicketManager(loop)

	ap, err := apctl.Dial(cfg.APControlSocket)
	if err != nil {
		return err
	}
	defer ap.Close()

	fw, err := newFirewallManager()
	if err != nil {
		return err
	}

	var captureSched *capture.Scheduler
	if cfg.Capture.ExecCapture {
		workerPath, err := captureWorkerPath()
		if err != nil {
			return err
		}
		captureSched, err = capture.New(workerPath, cfg.Capture, cfg.StoreDB, mem, loop)
		if err != nil {
			return err
		}
		defer captureSched.Close()
	}

	// radius.Server needs proc.GetMacConn as its lookup callback, but proc
	// needs a RadiusInvalidator at construction time. radioLink breaks the
	// cycle: it satisfies cmdproc.RadiusInvalidator from the start and is
	// pointed at the real server once radius.New returns.
	radio := &radioLink{}

	proc := cmdproc.New(mem, db, cred, tickets, fw, ap, radio, schedulerOrNil(captureSched), cmdproc.Config{
		AllowAllConnections: cfg.AllowAllConnections,
		DefaultOpenVlan:     cfg.DefaultOpenVlan,
		WPAPassphrase:       string(cfg.WPAPassphrase),
		ExecCapture:         cfg.Capture.ExecCapture,
		NATInterface:        cfg.NATInterface,
	})

	radiusSrv, err := radius.New(radius.Config{
		ListenAddr: cfg.RADIUS.ListenAddr,
		Secret:     []byte(cfg.RADIUS.SharedSecret),
	}, loop, proc.GetMacConn)
	if err != nil {
		return err
	}
	defer radiusSrv.Close(loop)
	radio.srv = radiusSrv

	cmdSrv, err := cmdproc.NewServer(cfg.CommandSocket, loop, proc)
	if err != nil {
		return err
	}
	defer cmdSrv.Close()

	apEvents, err := apctl.DialEvents(cfg.APEventSocket, loop, cmdSrv.OnStationEvent)
	if err != nil {
		return err
	}
	defer apEvents.Close()

	dhcpClose, err := wireDHCPObserve(cfg, loop, log)
	if err != nil {
		return err
	}
	defer dhcpClose()

	if cfg.DNSForwarderAddr != "" {
		stopProbe := make(chan struct{})
		defer close(stopProbe)
		go dnsfwd.NewChecker(cfg.DNSForwarderAddr).Run(stopProbe, 30*time.Second, func(err error) {
			if err != nil {
				log.Warn("dns forwarder liveness probe failed", "addr", cfg.DNSForwarderAddr, "err", err)
			}
		})
	}

	log.Info("edgesecd started", "config", configPath, "interfaces", len(cfg.Interfaces))
	return loop.Run()
}

// radioLink satisfies cmdproc.RadiusInvalidator before the real
// radius.Server exists, and forwards to it afterward.
type radioLink struct {
	srv *radius.Server
}

func (r *radioLink) InvalidateIdentity(identity string) {
	if r.srv != nil {
		r.srv.InvalidateIdentity(identity)
	}
}

// schedulerOrNil returns nil through the cmdproc.CaptureSpawner interface
// when sched is nil, rather than a non-nil interface wrapping a nil
// *Scheduler (the classic typed-nil-interface trap).
func schedulerOrNil(sched *capture.Scheduler) cmdproc.CaptureSpawner {
	if sched == nil {
		return nil
	}
	return sched
}

func loadMemory(cfg *config.Config, db *store.DB) (*store.Memory, error) {
	ifaces, err := netiface.Load(cfg.Interfaces)
	if err != nil {
		return nil, err
	}
	mem := store.NewMemory()
	mem.LoadIfaces(ifaces)

	macConns, err := db.LoadMacConns()
	if err != nil {
		return nil, err
	}
	for mac, conn := range macConns {
		mem.PutMac(mac, conn)
	}
	return mem, nil
}

func newFirewallManager() (*firewall.Manager, error) {
	conn, err := nftables.New()
	if err != nil {
		return nil, fmt.Errorf("edgesecd: nftables: %w", err)
	}
	return firewall.NewManager(firewall.NewRealNFTablesConn(conn))
}

// captureWorkerPath resolves cmd/edgesec-capture relative to the running
// binary: the two are always built and deployed as a pair.
func captureWorkerPath() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("edgesecd: locate own binary: %w", err)
	}
	return filepath.Join(filepath.Dir(self), "edgesec-capture"), nil
}

// wireDHCPObserve installs the dnsmasq hook script (if configured) and
// starts the fallback lease-file tailer (if configured); either, both, or
// neither may be set (spec.md original_source supplement, SPEC_FULL.md
// §6.10). The returned func tears down whatever was actually started.
func wireDHCPObserve(cfg *config.Config, loop *eloop.Loop, log *logging.Logger) (func(), error) {
	noop := func() {}

	if cfg.DHCP.HookSocket != "" {
		if err := dhcpobserve.InstallHook(cfg.DHCP.HookSocket, cfg.CommandSocket); err != nil {
			return noop, err
		}
	}

	if cfg.DHCP.LeaseFile == "" {
		return noop, nil
	}

	sender, err := dhcpobserve.NewSender(cfg.CommandSocket)
	if err != nil {
		return noop, err
	}
	tailer, err := dhcpobserve.NewTailer(cfg.DHCP.LeaseFile, sender)
	if err != nil {
		sender.Close()
		return noop, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := tailer.Run(ctx); err != nil {
			log.Warn("lease tailer stopped", "err", err)
		}
	}()

	return func() {
		cancel()
		tailer.Close()
		sender.Close()
	}, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("metrics server stopped", "err", err)
		}
	}()
}

// acquirePIDFile takes an advisory lock on path and writes the current
// pid, guaranteeing a single running supervisor per path (spec §4.1).
func acquirePIDFile(path string) (*flock.Flock, error) {
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("edgesecd: lock pid file %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("edgesecd: %s is locked by another instance", path)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("edgesecd: write pid file: %w", err)
	}
	return lock, nil
}

func releasePIDFile(lock *flock.Flock, path string) {
	lock.Unlock()
	os.Remove(path)
}
