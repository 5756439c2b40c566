// Package radio implements the half-duplex radio link FSM from spec §4.4:
// IDLE → RX → IDLE → TX → IDLE, with a deferred-TX "precise timing" mode for
// ranging. The physical radio + DMA + timer interrupts the original
// firmware drives are represented here the way spirilis-smacbase represents
// its NPI microcontroller link: a goroutine reading a physical transport
// plays "interrupt context", and the caller's goroutine plays "mainline",
// exactly the reader/writer split in the teacher's RunNPI.
package radio

import "sync/atomic"

// State is the radio's externally visible mode.
type State int32

const (
	Idle State = iota
	RX
	TX
)

func (s State) String() string {
	switch s {
	case RX:
		return "RX"
	case TX:
		return "TX"
	default:
		return "IDLE"
	}
}

// flags holds the ISR-visible state words from spec §3 "RF state". state is
// written by Listen (RX/Idle), by Send (TX/Idle) and by onRadioEvent;
// rx_complete is set by onRadioEvent and cleared by Listen, which plays both
// the ISR and the draining mainline for received frames.
// Each field is a separate atomic word rather than a struct under a mutex,
// matching the design note's "small number of atomic words" guidance — the
// invariant that exactly one of {idle, rx_underway, tx_underway} holds is
// enforced by State transitioning through a single atomic store.
type flags struct {
	state      int32 // State, atomic
	rxComplete int32 // 0/1, set by ISR, cleared by mainline after consuming RX data
	disableRX  int32 // 0/1, set by caller via SetDisableRX
}

func (f *flags) setState(s State) { atomic.StoreInt32(&f.state, int32(s)) }
func (f *flags) getState() State  { return State(atomic.LoadInt32(&f.state)) }

func (f *flags) setRXComplete()     { atomic.StoreInt32(&f.rxComplete, 1) }
func (f *flags) clearRXComplete()   { atomic.StoreInt32(&f.rxComplete, 0) }
func (f *flags) isRXComplete() bool { return atomic.LoadInt32(&f.rxComplete) == 1 }

func (f *flags) setDisableRX(v bool) {
	if v {
		atomic.StoreInt32(&f.disableRX, 1)
	} else {
		atomic.StoreInt32(&f.disableRX, 0)
	}
}
func (f *flags) isRXDisabled() bool { return atomic.LoadInt32(&f.disableRX) == 1 }

// radioEvent is the set of events the ISR-equivalent goroutine reacts to,
// per spec §4.4's "RF ISR contract": packet-done, start-of-frame,
// carrier-sense, TX-underflow.
type radioEvent int

const (
	evPacketDone radioEvent = iota
	evStartOfFrame
	evCarrierSense
	evTXUnderflow
)
