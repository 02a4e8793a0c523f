// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package capture

import (
	"context"
	"encoding/json"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/nqminds/EDGESec/internal/errors"
)

const (
	sinkMethod    = "/edgesec.capture.PacketSink/Forward"
	jsonCodecName = "edgesec-json"
	sinkTimeout   = 2 * time.Second
)

// jsonCodec lets the packet sink speak gRPC without a protoc-generated
// message type: the wire contract is whatever jsonSinkMessage marshals to,
// negotiated via CallContentSubtype rather than the default proto codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// sinkAck is the empty response the Forward RPC returns.
type sinkAck struct{}

// GRPCSink forwards decoded packets to an external analyser over gRPC
// (spec §4.9's optional sink), one unary call per packet.
type GRPCSink struct {
	conn *grpc.ClientConn
}

// NewGRPCSink dials addr. The connection itself carries no TLS — the sink
// runs on localhost between the capture worker and a co-located analyser,
// same trust boundary as the SQLite file it also writes to.
func NewGRPCSink(addr string) (*GRPCSink, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
	)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "capture: dial sink %s", addr)
	}
	return &GRPCSink{conn: conn}, nil
}

// Close releases the underlying connection.
func (s *GRPCSink) Close() error { return s.conn.Close() }

// Forward implements Sink.
func (s *GRPCSink) Forward(meta PacketMeta) error {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()

	msg := jsonSinkMessage{PacketMeta: meta, SentAt: time.Now()}
	var ack sinkAck
	if err := s.conn.Invoke(ctx, sinkMethod, &msg, &ack); err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "capture: forward packet to sink")
	}
	return nil
}
