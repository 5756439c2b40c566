package framer

import (
	"sync"

	"github.com/jumiknows/aleasat-comms/telemetry"
	"github.com/jumiknows/aleasat-comms/wire"
)

// slot holds one RX packet in flight, plus whether it is ready for the
// consumer to pick up.
type slot struct {
	pkt   wire.LocalPacket
	ready bool
}

// SlotPool is a small pool of N≥1 RX slots, per spec §4.5: when the
// framer's state machine completes a packet, it looks for a free slot; if
// none is free, the packet is dropped. The pool size is a constructor
// argument rather than a fixed constant, resolving the design-note open
// question about SPI's single-slot default silently dropping packets under
// a slow consumer — callers size it and can watch DroppedForNoSlot.
type SlotPool struct {
	mu    sync.Mutex
	slots []slot

	telemetry *telemetry.Counters // optional; nil is fine, DroppedForNoSlot still tracked locally
	dropped   uint32
}

// NewSlotPool builds a pool of n slots. n must be ≥ 1.
func NewSlotPool(n int) *SlotPool {
	if n < 1 {
		n = 1
	}
	return &SlotPool{slots: make([]slot, n)}
}

// WithTelemetry attaches a telemetry.Counters so DroppedForNoSlot also
// increments the shared counter set, for units that want it visible
// alongside the rest of the rejection counters.
func (p *SlotPool) WithTelemetry(t *telemetry.Counters) *SlotPool {
	p.telemetry = t
	return p
}

// Deposit places pkt into the first free slot and marks it ready. If no
// slot is free, the packet is dropped and ok is false.
func (p *SlotPool) Deposit(pkt wire.LocalPacket) (ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		if !p.slots[i].ready {
			p.slots[i] = slot{pkt: pkt, ready: true}
			return true
		}
	}
	p.dropped++
	if p.telemetry != nil {
		p.telemetry.IncDroppedForNoSlot()
	}
	return false
}

// Poll returns the next ready packet and clears its slot, or ok=false if
// none is ready.
func (p *SlotPool) Poll() (pkt wire.LocalPacket, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.slots {
		if p.slots[i].ready {
			pkt = p.slots[i].pkt
			p.slots[i] = slot{}
			return pkt, true
		}
	}
	return wire.LocalPacket{}, false
}

// DroppedForNoSlot returns the count of packets dropped because every slot
// was occupied.
func (p *SlotPool) DroppedForNoSlot() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Size returns the number of slots in the pool.
func (p *SlotPool) Size() int {
	return len(p.slots)
}
