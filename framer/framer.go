// Package framer implements the UART/SPI byte-oriented envelope from spec
// §4.5: a two-byte ESP sync prefix, a length byte, then local packet bytes.
// Receive is modeled as a four-state machine fed one byte at a time — the
// same "walk the buffer, maintain a little state" shape as the teacher's
// npiPhyReader, adapted to the spec's distinct sync bytes, length rules, and
// RX slot pool (the teacher parses straight into a single reusable frame
// buffer; this format requires a pool of N≥1 slots instead).
package framer

import "github.com/jumiknows/aleasat-comms/wire"

// ESP sync prefix bytes (§6).
const (
	ESPStart0 = 0x22
	ESPStart1 = 0x33
)

type rxState int

const (
	waitStart0 rxState = iota
	waitStart1
	waitLength
	receiveData
)

// Receiver is the four-state receive machine for one serial bus. It owns a
// SlotPool to hand completed packets off to the consumer, matching the
// "small pool of N≥1 slots" requirement in §4.5.
type Receiver struct {
	state   rxState
	length  int
	scratch []byte // in-progress packet bytes: length byte + body

	Pool *SlotPool
}

// NewReceiver builds a Receiver backed by the given slot pool.
func NewReceiver(pool *SlotPool) *Receiver {
	return &Receiver{Pool: pool}
}

// Feed advances the state machine by one byte. It returns true if this byte
// completed a frame. The packet has then been offered to the Pool; it is
// dropped if it does not decode or no slot is free.
func (r *Receiver) Feed(b byte) bool {
	switch r.state {
	case waitStart0:
		if b == ESPStart0 {
			r.state = waitStart1
		}
		return false

	case waitStart1:
		if b == ESPStart0 {
			// Resync: stay in waitStart1, per §4.5's one-byte resync rule.
			return false
		}
		if b == ESPStart1 {
			r.state = waitLength
			return false
		}
		r.state = waitStart0
		return false

	case waitLength:
		if b == 0 || int(b) > wire.LocalPacketMaxLen {
			// Bad sync: treat as such, return to waitStart1 per §4.5.
			r.state = waitStart1
			return false
		}
		r.length = int(b)
		r.scratch = make([]byte, 0, 1+r.length)
		r.scratch = append(r.scratch, b)
		r.state = receiveData
		return false

	case receiveData:
		r.scratch = append(r.scratch, b)
		if len(r.scratch) == 1+r.length {
			r.complete()
			r.state = waitStart0
			return true
		}
		return false
	}
	return false
}

// complete locates a free slot and deposits the just-completed packet, or
// drops it and resets if the pool is full (§4.5).
func (r *Receiver) complete() {
	pkt, err := wire.UnmarshalLocalPacket(r.scratch)
	if err != nil {
		// Malformed despite passing the length check (e.g. header didn't
		// fit) — drop silently, same disposition as a full pool.
		return
	}
	r.Pool.Deposit(pkt)
}

// Reset returns the state machine to its initial state, discarding any
// in-progress packet. Used after a transmit that shares the bus.
func (r *Receiver) Reset() {
	r.state = waitStart0
	r.length = 0
	r.scratch = nil
}
