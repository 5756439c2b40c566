// Package telemetry holds the diagnostic counters and physical-layer
// samples described in spec §3 "Telemetry counters". Counters are 32-bit and
// updated with single atomic stores/adds; overflow is explicitly not a
// concern here — they're diagnostic, not accounting, data (§5).
package telemetry

import "sync/atomic"

// Counters is written from both interrupt-context goroutines (radio ISR
// equivalent) and mainline (framer/router/dispatch); every field is
// accessed exclusively through atomic operations so no further locking is
// needed, matching the spec's "updates are single-byte or single-word
// stores" concurrency note.
type Counters struct {
	packetsSent      uint32
	packetsAccepted  uint32
	rejectedChecksum uint32
	rejectedAuthent  uint32
	rejectedOther    uint32
	carrierSense     uint32
	droppedForNoSlot uint32

	rssi      int32
	lqi       int32
	freqEst   int32
}

func (c *Counters) IncPacketsSent()      { atomic.AddUint32(&c.packetsSent, 1) }
func (c *Counters) IncPacketsAccepted()  { atomic.AddUint32(&c.packetsAccepted, 1) }
func (c *Counters) IncRejectedChecksum() { atomic.AddUint32(&c.rejectedChecksum, 1) }
func (c *Counters) IncRejectedAuthent()  { atomic.AddUint32(&c.rejectedAuthent, 1) }
func (c *Counters) IncRejectedOther()    { atomic.AddUint32(&c.rejectedOther, 1) }
func (c *Counters) IncCarrierSense()     { atomic.AddUint32(&c.carrierSense, 1) }
func (c *Counters) IncDroppedForNoSlot() { atomic.AddUint32(&c.droppedForNoSlot, 1) }

func (c *Counters) PacketsSent() uint32      { return atomic.LoadUint32(&c.packetsSent) }
func (c *Counters) PacketsAccepted() uint32  { return atomic.LoadUint32(&c.packetsAccepted) }
func (c *Counters) RejectedChecksum() uint32 { return atomic.LoadUint32(&c.rejectedChecksum) }
func (c *Counters) RejectedAuthent() uint32  { return atomic.LoadUint32(&c.rejectedAuthent) }
func (c *Counters) RejectedOther() uint32    { return atomic.LoadUint32(&c.rejectedOther) }
func (c *Counters) CarrierSense() uint32     { return atomic.LoadUint32(&c.carrierSense) }
func (c *Counters) DroppedForNoSlot() uint32 { return atomic.LoadUint32(&c.droppedForNoSlot) }

// SetLastPacket latches the physical-layer samples from the most recently
// received packet. Called only from the radio ISR-equivalent goroutine, per
// spec §4.4's ISR contract ("latches RSSI/LQI/FREQEST into telemetry").
func (c *Counters) SetLastPacket(rssi, lqi, freqEst int32) {
	atomic.StoreInt32(&c.rssi, rssi)
	atomic.StoreInt32(&c.lqi, lqi)
	atomic.StoreInt32(&c.freqEst, freqEst)
}

// LastPacket returns the most recently latched physical-layer samples.
func (c *Counters) LastPacket() (rssi, lqi, freqEst int32) {
	return atomic.LoadInt32(&c.rssi), atomic.LoadInt32(&c.lqi), atomic.LoadInt32(&c.freqEst)
}

// ResetLastPacket clears only the physical-layer samples, backing the
// RESET_RADIOTELEM opcode (§6). The monotonic rejection/acceptance counters
// are untouched — per §3 those are cleared only by a reboot.
func (c *Counters) ResetLastPacket() {
	atomic.StoreInt32(&c.rssi, 0)
	atomic.StoreInt32(&c.lqi, 0)
	atomic.StoreInt32(&c.freqEst, 0)
}

// Reset clears every counter. Per spec §3, this happens only on reboot — the
// running firmware has no command that clears telemetry.
func (c *Counters) Reset() {
	atomic.StoreUint32(&c.packetsSent, 0)
	atomic.StoreUint32(&c.packetsAccepted, 0)
	atomic.StoreUint32(&c.rejectedChecksum, 0)
	atomic.StoreUint32(&c.rejectedAuthent, 0)
	atomic.StoreUint32(&c.rejectedOther, 0)
	atomic.StoreUint32(&c.carrierSense, 0)
	atomic.StoreUint32(&c.droppedForNoSlot, 0)
	atomic.StoreInt32(&c.rssi, 0)
	atomic.StoreInt32(&c.lqi, 0)
	atomic.StoreInt32(&c.freqEst, 0)
}
