// Package dispatch implements the command dispatcher from spec §4.8: an
// opcode-indexed handler table, reply-header initialization, and the drop
// rules ("never reply to a reply", "never forward or handle an oversize
// payload"). Local (UART/SPI) traffic and RF traffic addressed to this unit
// both flow through the same Dispatcher; the bootloader's disjoint opcode
// space does not use Dispatcher at all and is handled by
// bootloader.Updater.Handle instead.
package dispatch

import (
	"time"

	"github.com/jumiknows/aleasat-comms/authenticator"
	"github.com/jumiknows/aleasat-comms/storage"
	"github.com/jumiknows/aleasat-comms/telemetry"
	"github.com/jumiknows/aleasat-comms/wire"
)

// HandlerFunc processes one request already known to carry opcode Opcode,
// returning the packet to send back. Handlers build their reply from
// NewReply so the header bookkeeping (response bit, sequence, src/dest swap)
// is never duplicated per-opcode, the same way the teacher's control-frame
// handlers in npi_protocol.go always start from a shared reply skeleton.
type HandlerFunc func(req wire.LocalPacket, ctx *Context) wire.LocalPacket

// Context carries every piece of shared state a handler might need to read
// or mutate. It is passed by pointer so handlers share the same live state
// the rest of the unit operates on — there is exactly one Context per unit,
// constructed once at startup.
type Context struct {
	Telemetry *telemetry.Counters
	Keys      *wire.KeyTable
	Auth      *authenticator.Authenticator
	Store     *storage.Store

	Clock    func() time.Time
	SetClock func(time.Time)

	RXEnabled    func() bool
	SetRXEnabled func(bool)

	// ScheduleReboot is invoked by REBOOT with the requested delay already
	// clamped to wire.AutoRebootMax; nil is valid in tests that don't care.
	ScheduleReboot func(delay time.Duration)

	// SendRangingAck transmits a precise-timing RANGING_ACK reply for the
	// RF packet that carried the RANGING request; nil for local-only units
	// that never see RANGING over UART/SPI.
	SendRangingAck func(req wire.LocalPacket)
}

// Dispatcher holds one unit's or one opcode space's handler table.
type Dispatcher struct {
	handlers map[uint8]HandlerFunc
}

// NewDispatcher builds an empty dispatcher; call Register for each opcode.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[uint8]HandlerFunc)}
}

// Register binds a handler to an opcode, overwriting any previous binding.
func (d *Dispatcher) Register(opcode uint8, h HandlerFunc) {
	d.handlers[opcode] = h
}

// NewReply builds the reply skeleton for req: response bit set, same
// sequence number, source and destination swapped, opcode defaulted to NACK
// (callers overwrite it on success).
func NewReply(req wire.LocalPacket) wire.LocalPacket {
	return wire.LocalPacket{
		Header: wire.Header{
			SeqResp: wire.WithResponse(req.Header.Sequence(), true),
			Dest:    req.Header.Src,
			Src:     req.Header.Dest,
			Opcode:  wire.OpNACK,
		},
	}
}

// Handle dispatches req per §4.8: a request carrying the response bit is
// dropped outright (never reply to a reply), and a request whose declared
// length would make LocalPacket.Len() exceed wire.LocalPacketMaxLen is
// dropped before any handler runs. An unregistered opcode gets a NACK reply.
// ok is false exactly when the packet must be dropped with no reply sent.
func (d *Dispatcher) Handle(req wire.LocalPacket, ctx *Context) (reply wire.LocalPacket, ok bool) {
	if req.Header.IsResponse() {
		return wire.LocalPacket{}, false
	}
	if req.Len() > wire.LocalPacketMaxLen {
		return wire.LocalPacket{}, false
	}

	h, registered := d.handlers[req.Header.Opcode]
	if !registered {
		return NewReply(req), true
	}
	return h(req, ctx), true
}
