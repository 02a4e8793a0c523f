// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package capture

import (
	"encoding/json"
	"net"
	"testing"

	"google.golang.org/grpc"
)

// stubSinkServer is the "stub server also provided for tests" spec §6.9
// calls for: it accepts the Forward RPC via UnknownServiceHandler (no
// protoc-generated service descriptor needed, matching the client's
// hand-rolled json codec) and records every decoded message.
type stubSinkServer struct {
	received []jsonSinkMessage
}

func (s *stubSinkServer) handle(_ any, stream grpc.ServerStream) error {
	var raw json.RawMessage
	if err := stream.RecvMsg(&raw); err != nil {
		return err
	}
	var msg jsonSinkMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	s.received = append(s.received, msg)
	return stream.SendMsg(&sinkAck{})
}

func TestGRPCSinkForwardsPacketMeta(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	stub := &stubSinkServer{}
	srv := grpc.NewServer(grpc.UnknownServiceHandler(stub.handle))
	go srv.Serve(lis)
	defer srv.Stop()

	sink, err := NewGRPCSink(lis.Addr().String())
	if err != nil {
		t.Fatalf("NewGRPCSink: %v", err)
	}
	defer sink.Close()

	meta := PacketMeta{VlanID: 10, Interface: "vlan10", Protocol: "TCP", Length: 64, Caplen: 64}
	if err := sink.Forward(meta); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if len(stub.received) != 1 {
		t.Fatalf("expected 1 received message, got %d", len(stub.received))
	}
	if stub.received[0].VlanID != 10 || stub.received[0].Protocol != "TCP" {
		t.Errorf("received = %+v, want vlan 10 / TCP", stub.received[0])
	}
}
