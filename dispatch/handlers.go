package dispatch

import (
	"encoding/binary"
	"time"

	"github.com/jumiknows/aleasat-comms/wire"
)

// RegisterApplication binds every opcode in the application space (§6) to d.
// Handlers that depend on optional Context fields (ScheduleReboot,
// SendRangingAck) degrade to a NACK if that field is nil rather than
// panicking, so a Dispatcher can be partially wired in tests.
func RegisterApplication(d *Dispatcher) {
	d.Register(wire.OpACK, handlePing)
	d.Register(wire.OpReboot, handleReboot)
	d.Register(wire.OpGetTime, handleGetTime)
	d.Register(wire.OpSetTime, handleSetTime)
	d.Register(wire.OpRanging, handleRanging)
	d.Register(wire.OpGetTelem, handleGetTelem)
	d.Register(wire.OpGetCallsign, handleGetCallsign)
	d.Register(wire.OpSetCallsign, handleSetCallsign)
	d.Register(wire.OpSetRxEnabled, handleSetRxEnabled)
	d.Register(wire.OpGetAuthentEnable, handleGetAuthentEnable)
	d.Register(wire.OpSetAuthentEnable, handleSetAuthentEnable)
	d.Register(wire.OpGetAroKey, handleGetAroKey)
	d.Register(wire.OpSetAroKey, handleSetAroKey)
	d.Register(wire.OpGetMainKey, handleGetMainKey)
	d.Register(wire.OpGetRadioTelem, handleGetRadioTelem)
	d.Register(wire.OpSetRadioTelem, handleSetRadioTelem)
	d.Register(wire.OpResetRadioTelem, handleResetRadioTelem)
	d.Register(wire.OpForwardReady, handleForwardReady)
	d.Register(wire.OpObcData, handleObcData)
}

func nack(req wire.LocalPacket) wire.LocalPacket {
	r := NewReply(req)
	r.Header.Opcode = wire.OpNACK
	return r
}

func ack(req wire.LocalPacket, data []byte) wire.LocalPacket {
	r := NewReply(req)
	r.Header.Opcode = wire.OpACK
	r.Data = data
	return r
}

// handlePing answers ACK-as-ping by echoing the request payload, backing the
// "local ACK ping" scenario from the testable-properties list.
func handlePing(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	return ack(req, req.Data)
}

// handleReboot schedules a deferred reboot after clamping the requested
// delay (seconds, big-endian uint32) to wire.AutoRebootMax, per §4.8's
// reboot-deferral cap. A request with no payload reboots immediately — the
// original firmware's behavior, carried forward unchanged per the design
// note flagging it as attacker-reachable when authentication is off rather
// than silently changing it.
func handleReboot(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	if ctx.ScheduleReboot == nil {
		return nack(req)
	}
	delaySec := uint32(0)
	if len(req.Data) >= 4 {
		delaySec = binary.BigEndian.Uint32(req.Data[:4])
		if delaySec > wire.AutoRebootMax {
			delaySec = wire.AutoRebootMax
		}
	}
	ctx.ScheduleReboot(time.Duration(delaySec) * time.Second)
	r := NewReply(req)
	r.Header.Opcode = wire.OpRebooting
	return r
}

func handleGetTime(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	if ctx.Clock == nil {
		return nack(req)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(ctx.Clock().Unix()))
	return ack(req, buf[:])
}

func handleSetTime(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	if ctx.SetClock == nil || len(req.Data) < 4 {
		return nack(req)
	}
	sec := binary.BigEndian.Uint32(req.Data[:4])
	ctx.SetClock(time.Unix(int64(sec), 0))
	return ack(req, nil)
}

// handleRanging answers a RANGING request by asking the radio layer to send
// a precise-timing RANGING_ACK; the local reply here just acknowledges
// receipt of the request itself (the timed reply goes out over RF, not as
// this packet's response).
func handleRanging(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	if ctx.SendRangingAck == nil {
		return nack(req)
	}
	ctx.SendRangingAck(req)
	return ack(req, nil)
}

// handleGetTelem reports the monotonic counters as a fixed-layout payload:
// seven big-endian uint32 counters in the order they're declared in
// telemetry.Counters, matching §3's "telemetry counters" list.
func handleGetTelem(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	t := ctx.Telemetry
	buf := make([]byte, 7*4)
	binary.BigEndian.PutUint32(buf[0:4], t.PacketsSent())
	binary.BigEndian.PutUint32(buf[4:8], t.PacketsAccepted())
	binary.BigEndian.PutUint32(buf[8:12], t.RejectedChecksum())
	binary.BigEndian.PutUint32(buf[12:16], t.RejectedAuthent())
	binary.BigEndian.PutUint32(buf[16:20], t.RejectedOther())
	binary.BigEndian.PutUint32(buf[20:24], t.CarrierSense())
	binary.BigEndian.PutUint32(buf[24:28], t.DroppedForNoSlot())
	return ack(req, buf)
}

func handleGetCallsign(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	r := NewReply(req)
	r.Header.Opcode = wire.OpCallsign
	r.Data = []byte(ctx.Store.GetCallsign())
	return r
}

func handleSetCallsign(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	if err := ctx.Store.SetCallsign(string(req.Data)); err != nil {
		return nack(req)
	}
	return ack(req, nil)
}

func handleSetRxEnabled(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	if ctx.SetRXEnabled == nil || len(req.Data) < 1 {
		return nack(req)
	}
	ctx.SetRXEnabled(req.Data[0] != 0)
	return ack(req, nil)
}

func handleGetAuthentEnable(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	v := byte(0)
	if ctx.Auth.Enabled {
		v = 1
	}
	return ack(req, []byte{v})
}

func handleSetAuthentEnable(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	if len(req.Data) < 1 {
		return nack(req)
	}
	ctx.Auth.Enabled = req.Data[0] != 0
	return ack(req, nil)
}

// handleGetAroKey reports only whether an ARO key is provisioned, never the
// key material itself — §4.6's ARO key is the one key slot a ground
// operator can remotely overwrite, so leaking it back out the same channel
// would defeat the point.
func handleGetAroKey(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	_, present := ctx.Keys.Lookup(wire.ARO)
	v := byte(0)
	if present {
		v = 1
	}
	return ack(req, []byte{v})
}

func handleSetAroKey(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	if len(req.Data) == 0 {
		ctx.Keys.ClearAROKey()
		return ack(req, nil)
	}
	if len(req.Data) != 16 {
		return nack(req)
	}
	var k wire.Key
	copy(k[:], req.Data)
	ctx.Keys.SetAROKey(k)
	return ack(req, nil)
}

// mainKeySelectors maps the GET_MAIN_KEY selector byte to a destination,
// per §6: 0=GS1, 1=GS2, 2=ARO. Any other selector is invalid.
var mainKeySelectors = map[byte]wire.Destination{
	0: wire.GS1,
	1: wire.GS2,
	2: wire.ARO,
}

// handleGetMainKey reads back a provisioned key's raw bytes, unlike
// GET_ARO_KEY. The handler does not check which interface the request came
// in on: any request that reaches the dispatcher gets the key, including RF
// requests from GS1/GS2 that passed authentication (or any RF request from a
// GS range while authentication is bypassed). ARO requests never reach it,
// since the authenticator rejects ARO traffic not addressed to OBC.
func handleGetMainKey(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	if len(req.Data) < 1 {
		return nack(req)
	}
	dest, ok := mainKeySelectors[req.Data[0]]
	if !ok {
		return nack(req)
	}
	key, present := ctx.Keys.Lookup(dest)
	if !present {
		return nack(req)
	}
	return ack(req, key[:])
}

func handleGetRadioTelem(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	rssi, lqi, freqEst := ctx.Telemetry.LastPacket()
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], uint32(rssi))
	binary.BigEndian.PutUint32(buf[4:8], uint32(lqi))
	binary.BigEndian.PutUint32(buf[8:12], uint32(freqEst))
	r := NewReply(req)
	r.Header.Opcode = wire.OpRadioTelem
	r.Data = buf
	return r
}

// handleSetRadioTelem lets ground-side test tooling inject a synthetic
// RSSI/LQI/FREQEST sample (stored separately in storage.Store, not mixed
// into telemetry.Counters' ISR-latched fields) without a real RF link.
func handleSetRadioTelem(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	if len(req.Data) < 12 {
		return nack(req)
	}
	rssi := int32(binary.BigEndian.Uint32(req.Data[0:4]))
	lqi := int32(binary.BigEndian.Uint32(req.Data[4:8]))
	freqEst := int32(binary.BigEndian.Uint32(req.Data[8:12]))
	if err := ctx.Store.SetSimTelemetry(rssi, lqi, freqEst); err != nil {
		return nack(req)
	}
	return ack(req, nil)
}

// handleResetRadioTelem clears the latched physical-layer samples without
// touching the monotonic counters, per §3/§6's RESET_RADIOTELEM semantics.
func handleResetRadioTelem(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	ctx.Telemetry.ResetLastPacket()
	return ack(req, nil)
}

// handleForwardReady acknowledges the interface multiplexer's
// forward-ready notification; present so a unit forwarding OBC traffic over
// RF can confirm readiness without the request being treated as unknown.
func handleForwardReady(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	return ack(req, nil)
}

// handleObcData is the pass-through hook for OBC payloads handed to comms
// for downlink; router.Table already forwards these before they ever reach
// a Dispatcher bound to this unit's own HWID, so reaching this handler means
// OBC addressed comms directly (e.g. a status blob for local logging).
func handleObcData(req wire.LocalPacket, ctx *Context) wire.LocalPacket {
	return ack(req, nil)
}
