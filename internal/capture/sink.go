// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package capture

import "time"

// PacketMeta is one decoded packet, handed to a Sink after the worker's
// per-layer gopacket decode (spec §4.9: "decoded per-layer protobuf
// payloads ... may be forwarded to a gRPC sink").
type PacketMeta struct {
	TimestampUS int64
	VlanID      uint16
	Interface   string
	Layers      []string // decoded layer names, outermost first (Ethernet, IPv4, TCP, ...)
	SrcMAC      string
	DstMAC      string
	Protocol    string
	Length      int
	Caplen      int
}

// Sink receives decoded packets as the capture worker reads them. It is
// nil-able at the worker's call site — "may be forwarded" in spec.md is
// optional, not mandatory, so a nil Sink is simply never invoked.
type Sink interface {
	Forward(PacketMeta) error
}

// NoopSink discards every packet; it's the default when no gRPC sink
// address is configured.
type NoopSink struct{}

// Forward implements Sink.
func (NoopSink) Forward(PacketMeta) error { return nil }

// jsonSinkMessage is the wire shape the gRPC sink sends: the packet
// metadata plus SentAt, the time Forward built the message.
type jsonSinkMessage struct {
	PacketMeta
	SentAt time.Time
}
