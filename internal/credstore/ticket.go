// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package credstore

import (
	"time"

	"github.com/nqminds/EDGESec/internal/eloop"
	"github.com/nqminds/EDGESec/internal/netutil"
	"github.com/nqminds/EDGESec/internal/store"
)

// TicketManager tracks the single live AuthTicket REGISTER_TICKET may mint
// (spec §3/§4.4/§4.7). A new registration replaces any unconsumed ticket
// outright; the previous ticket's expiry timer is canceled so it can't fire
// after being superseded.
type TicketManager struct {
	loop   *eloop.Loop
	ticket *store.AuthTicket
}

// NewTicketManager returns a manager arming its expiry timers on loop.
func NewTicketManager(loop *eloop.Loop) *TicketManager {
	return &TicketManager{loop: loop}
}

// Register mints a fresh one-shot passphrase for issuer's label/vlanID,
// live until ttl elapses, and returns the passphrase to hand back over the
// command socket (REGISTER_TICKET's reply).
func (m *TicketManager) Register(issuer netutil.MAC, label string, vlanID uint16, ttl time.Duration) (string, error) {
	if m.ticket != nil {
		m.loop.CancelTimeout(m.expire, m.ticket, nil)
		m.ticket = nil
	}

	passphrase, err := randomPassphrase(16)
	if err != nil {
		return "", err
	}

	t := &store.AuthTicket{
		IssuerMAC:   issuer,
		DeviceLabel: label,
		VlanID:      vlanID,
		Passphrase:  passphrase,
		ExpiresAt:   time.Now().Add(ttl),
	}
	m.ticket = t
	m.loop.RegisterTimeout(ttl, m.expire, t, nil)
	return passphrase, nil
}

// expire clears the tracked ticket if it is still the one the fired timer
// was armed for; a ticket already consumed or replaced is left alone.
func (m *TicketManager) expire(ctxA, ctxB any) {
	if t, ok := ctxA.(*store.AuthTicket); ok && m.ticket == t {
		m.ticket = nil
	}
}

// Consume returns and removes the live ticket if passphrase matches it,
// canceling its expiry timer. A device joining with an unknown or stale
// passphrase gets (nil, false) and falls through to the normal unknown-MAC
// policy.
func (m *TicketManager) Consume(passphrase string) (*store.AuthTicket, bool) {
	if m.ticket == nil || m.ticket.Passphrase != passphrase {
		return nil, false
	}
	t := m.ticket
	if !t.Live(time.Now()) {
		m.loop.CancelTimeout(m.expire, t, nil)
		m.ticket = nil
		return nil, false
	}
	m.loop.CancelTimeout(m.expire, t, nil)
	m.ticket = nil
	return t, true
}

// Peek reports the currently live ticket, if any, without consuming it.
func (m *TicketManager) Peek() (*store.AuthTicket, bool) {
	if m.ticket == nil || !m.ticket.Live(time.Now()) {
		return nil, false
	}
	return m.ticket, true
}

// ConsumeLive returns and removes the live ticket unconditionally, without
// checking a passphrase. get_mac_conn (spec §4.7) adopts whichever ticket is
// pending for the first unrecognized MAC that joins — the RADIUS callback
// only ever sees the station's MAC, never a presented password, so the
// passphrase check Consume performs doesn't apply here.
func (m *TicketManager) ConsumeLive() (*store.AuthTicket, bool) {
	t, ok := m.Peek()
	if !ok {
		return nil, false
	}
	m.loop.CancelTimeout(m.expire, t, nil)
	m.ticket = nil
	return t, true
}
