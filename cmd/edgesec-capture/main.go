// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// edgesec-capture is C9's capture worker: one process per VLAN, exec'd by
// internal/capture.Scheduler. It owns the libpcap session, decodes packets
// with gopacket, persists metadata rows to the shared SQLite store, and
// optionally forwards decoded metadata to a gRPC sink. It shares no memory
// with the supervisor (spec §5) — SQLite and process exit are the only
// channels back.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
	"github.com/gopacket/gopacket/pcap"

	"github.com/nqminds/EDGESec/internal/capture"
	"github.com/nqminds/EDGESec/internal/logging"
	"github.com/nqminds/EDGESec/internal/store"
)

func main() {
	var (
		vlanID    uint
		ifname    string
		dbPath    string
		snaplen   int
		promisc   bool
		immediate bool
		filter    string
		sinkAddr  string
	)
	flag.UintVar(&vlanID, "vlan", 0, "VLAN ID this worker captures for")
	flag.StringVar(&ifname, "ifname", "", "interface to capture on")
	flag.StringVar(&dbPath, "db", "", "path to the shared SQLite store")
	flag.IntVar(&snaplen, "snaplen", 262144, "libpcap snapshot length")
	flag.BoolVar(&promisc, "promisc", false, "enable promiscuous mode")
	flag.BoolVar(&immediate, "immediate", true, "enable libpcap immediate mode")
	flag.StringVar(&filter, "filter", "", "BPF filter expression")
	flag.StringVar(&sinkAddr, "sink", "", "optional gRPC sink address")
	flag.Parse()

	log := logging.WithComponent("edgesec-capture")
	if ifname == "" || dbPath == "" {
		fmt.Fprintln(os.Stderr, "edgesec-capture: -ifname and -db are required")
		os.Exit(2)
	}

	db, err := store.Open(dbPath)
	if err != nil {
		log.Error("failed to open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	var sink capture.Sink = capture.NoopSink{}
	if sinkAddr != "" {
		gs, err := capture.NewGRPCSink(sinkAddr)
		if err != nil {
			log.Warn("failed to dial sink, continuing without one", "addr", sinkAddr, "err", err)
		} else {
			defer gs.Close()
			sink = gs
		}
	}

	handle, err := openHandle(ifname, snaplen, promisc, immediate, filter)
	if err != nil {
		log.Error("failed to open capture handle", "ifname", ifname, "err", err)
		os.Exit(1)
	}
	defer handle.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("capture worker started", "vlan", vlanID, "ifname", ifname, "snaplen", snaplen, "immediate", immediate)
	run(ctx, uint16(vlanID), ifname, filter, handle, db, sink, log)
}

func openHandle(ifname string, snaplen int, promisc, immediate bool, filter string) (*pcap.Handle, error) {
	inactive, err := pcap.NewInactiveHandle(ifname)
	if err != nil {
		return nil, fmt.Errorf("new inactive handle: %w", err)
	}
	defer inactive.CleanUp()

	if err := inactive.SetSnapLen(snaplen); err != nil {
		return nil, fmt.Errorf("set snaplen: %w", err)
	}
	if err := inactive.SetPromisc(promisc); err != nil {
		return nil, fmt.Errorf("set promisc: %w", err)
	}
	if err := inactive.SetImmediateMode(immediate); err != nil {
		return nil, fmt.Errorf("set immediate mode: %w", err)
	}
	if !immediate {
		if err := inactive.SetTimeout(100 * time.Millisecond); err != nil {
			return nil, fmt.Errorf("set timeout: %w", err)
		}
	}

	handle, err := inactive.Activate()
	if err != nil {
		return nil, fmt.Errorf("activate: %w", err)
	}
	if filter != "" {
		if err := handle.SetBPFFilter(filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("set bpf filter %q: %w", filter, err)
		}
	}
	return handle, nil
}

func run(ctx context.Context, vlanID uint16, ifname, filter string, handle *pcap.Handle, db *store.DB, sink capture.Sink, log *logging.Logger) {
	src := gopacket.NewPacketSource(handle, handle.LinkType())
	packets := src.Packets()

	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			handlePacket(pkt, vlanID, ifname, filter, db, sink, log)
		}
	}
}

func handlePacket(pkt gopacket.Packet, vlanID uint16, ifname, filter string, db *store.DB, sink capture.Sink, log *logging.Logger) {
	md := pkt.Metadata()
	row := store.PcapRow{
		TimestampUS: md.Timestamp.UnixMicro(),
		Caplen:      md.CaptureLength,
		Length:      md.Length,
		Name:        layerNames(pkt),
		Interface:   ifname,
		Filter:      filter,
	}
	if err := db.AppendPcapMeta(row); err != nil {
		log.Warn("failed to persist packet metadata", "err", err)
	}

	if sink == nil {
		return
	}
	meta := capture.PacketMeta{
		TimestampUS: row.TimestampUS,
		VlanID:      vlanID,
		Interface:   ifname,
		Layers:      strings.Split(row.Name, "/"),
		Protocol:    topProtocol(pkt),
		Length:      row.Length,
		Caplen:      row.Caplen,
	}
	if eth, ok := pkt.LinkLayer().(*layers.Ethernet); ok {
		meta.SrcMAC = eth.SrcMAC.String()
		meta.DstMAC = eth.DstMAC.String()
	}
	if err := sink.Forward(meta); err != nil {
		log.Warn("failed to forward packet to sink", "err", err)
	}
}

// layerNames renders a packet's decoded layer stack as a "/"-joined
// string, e.g. "Ethernet/IPv4/TCP" — the spec's "decoded per-layer ...
// payloads" in a form cheap enough to persist on every packet rather than
// only on demand.
func layerNames(pkt gopacket.Packet) string {
	names := make([]string, 0, 4)
	for _, l := range pkt.Layers() {
		names = append(names, l.LayerType().String())
	}
	return strings.Join(names, "/")
}

func topProtocol(pkt gopacket.Packet) string {
	if l := pkt.TransportLayer(); l != nil {
		return l.LayerType().String()
	}
	if l := pkt.NetworkLayer(); l != nil {
		return l.LayerType().String()
	}
	return "unknown"
}
