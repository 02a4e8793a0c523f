// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmdproc

import (
	"fmt"

	"github.com/nqminds/EDGESec/internal/apctl"
	"github.com/nqminds/EDGESec/internal/eloop"
	"github.com/nqminds/EDGESec/internal/logging"
	"github.com/nqminds/EDGESec/internal/transport"
)

// Server owns the C2 command socket, routing each datagram through a
// Processor and replying to the sender. A caller that issues
// SUBSCRIBE_EVENTS is remembered by its client path and thereafter
// receives every AP-STA-CONNECTED/DISCONNECTED notification (spec §4.8) as
// an unsolicited datagram, until the socket is closed or the process
// restarts — there is no UNSUBSCRIBE.
type Server struct {
	sock        *transport.Socket
	loop        *eloop.Loop
	proc        *Processor
	subscribers map[string]struct{}
	log         *logging.Logger
}

// NewServer binds the command socket at path and registers it for
// read-readiness on loop. Commands start flowing once loop.Run begins.
func NewServer(path string, loop *eloop.Loop, proc *Processor) (*Server, error) {
	sock, err := transport.Listen(path)
	if err != nil {
		return nil, err
	}
	s := &Server{
		sock:        sock,
		loop:        loop,
		proc:        proc,
		subscribers: make(map[string]struct{}),
		log:         logging.WithComponent("cmdproc"),
	}
	if err := loop.RegisterRead(sock.Fd(), s.onReadable); err != nil {
		sock.Close()
		return nil, err
	}
	return s, nil
}

// Close unregisters and closes the command socket.
func (s *Server) Close() error {
	s.loop.Unregister(s.sock.Fd())
	return s.sock.Close()
}

func (s *Server) onReadable(fd int) {
	dgram, err := s.sock.Recv()
	if err != nil {
		s.log.Warn("recv failed", "err", err)
		return
	}
	if dgram.From == "" {
		return // nothing to reply to; drop silently
	}

	reply, subscribe := s.proc.Dispatch(string(dgram.Payload))
	if subscribe {
		s.subscribers[dgram.From] = struct{}{}
	}

	if err := s.sock.SendTo(dgram.From, []byte(reply)); err != nil {
		s.log.Warn("reply send failed", "to", dgram.From, "err", err)
		delete(s.subscribers, dgram.From)
	}
}

// OnStationEvent is an apctl.EventHandler: it formats ev per spec §4.8 and
// multicasts it to every subscribed operator client. A client whose
// SendTo fails (its socket path no longer exists) is dropped from the
// subscriber set rather than retried.
func (s *Server) OnStationEvent(ev apctl.StationEvent) {
	verb := "AP-STA-DISCONNECTED"
	if ev.Connected {
		verb = "AP-STA-CONNECTED"
	}
	line := fmt.Sprintf("%s %s", verb, ev.MAC.String())

	for path := range s.subscribers {
		if err := s.sock.SendTo(path, []byte(line)); err != nil {
			s.log.Warn("event broadcast failed, dropping subscriber", "to", path, "err", err)
			delete(s.subscribers, path)
		}
	}
}
