// Package bootloader implements the signed-update command loop from spec
// §4.9: a disjoint opcode space (PING/ERASE/WRITE_PAGE) over the same
// LocalPacket framing, writing into a simulated flash part and gating the
// eventual boot decision on sigverify.Verify. The handler table is a
// data-driven map keyed by opcode, the same "registrable table instead of a
// switch" idiom dispatch.Dispatcher uses for the application opcode space,
// kept as its own small map here rather than forcing the two disjoint
// opcode spaces through one shared Context type.
package bootloader

import (
	"errors"
	"sync"

	"github.com/jumiknows/aleasat-comms/bootloader/flashsim"
	"github.com/jumiknows/aleasat-comms/sigverify"
	"github.com/jumiknows/aleasat-comms/wire"
)

// Watchdog is the updater's timeout guard: Pet extends the deadline on every
// valid command received, Expired reports whether it has lapsed. Modeled as
// an interface (rather than a real ~1s hardware timer) so tests can drive it
// deterministically instead of sleeping.
type Watchdog interface {
	Pet()
	Expired() bool
}

// TickWatchdog is a simple countdown Watchdog: it starts with a tick budget
// and Pet resets it to that budget; Expired reports whether Tick has been
// called budget times since the last Pet. It stands in for the original
// ~45000-tick hardware timeout named in §4.9.
type TickWatchdog struct {
	mu     sync.Mutex
	budget int
	remain int
}

// NewTickWatchdog builds a TickWatchdog with the given initial tick budget.
func NewTickWatchdog(budget int) *TickWatchdog {
	return &TickWatchdog{budget: budget, remain: budget}
}

func (w *TickWatchdog) Pet() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.remain = w.budget
}

func (w *TickWatchdog) Expired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remain <= 0
}

// Tick consumes one tick of the countdown; call once per scheduler
// iteration while no valid command has arrived.
func (w *TickWatchdog) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.remain > 0 {
		w.remain--
	}
}

// ErrNotComplete is returned by BootDecision before WRITE_PAGE's
// end-of-image marker (page 255) has been received.
var ErrNotComplete = errors.New("bootloader: image upload not complete")

// Updater drives the bootloader command loop against one flashsim.Device.
type Updater struct {
	flash *flashsim.Device
	wd    Watchdog
	keys  []wire.Key

	mu       sync.Mutex
	complete bool
}

// NewUpdater builds an Updater. keys are the up-to-wire.MaxSigKeys stored
// signature keys sigverify.Verify tries against the uploaded image.
func NewUpdater(flash *flashsim.Device, wd Watchdog, keys []wire.Key) *Updater {
	return &Updater{flash: flash, wd: wd, keys: keys}
}

func bootReply(req wire.LocalPacket, opcode uint8, data []byte) wire.LocalPacket {
	return wire.LocalPacket{
		Header: wire.Header{
			SeqResp: wire.WithResponse(req.Header.Sequence(), true),
			Dest:    req.Header.Src,
			Src:     req.Header.Dest,
			Opcode:  opcode,
		},
		Data: data,
	}
}

// Handle dispatches one bootloader-opcode-space request. Any opcode outside
// {PING, ERASE, WRITE_PAGE} — including the whole application opcode space —
// gets BootOpNack, matching "the updater never interprets an application
// opcode" from the component design.
func (u *Updater) Handle(req wire.LocalPacket) wire.LocalPacket {
	switch req.Header.Opcode {
	case wire.BootOpPing:
		u.wd.Pet()
		return bootReply(req, wire.BootOpAck, nil)
	case wire.BootOpErase:
		u.mu.Lock()
		u.complete = false
		u.mu.Unlock()
		if err := u.flash.EraseAll(); err != nil {
			return bootReply(req, wire.BootOpNack, nil)
		}
		u.wd.Pet()
		return bootReply(req, wire.BootOpAck, nil)
	case wire.BootOpWritePage:
		return u.handleWritePage(req)
	default:
		return bootReply(req, wire.BootOpNack, nil)
	}
}

// handleWritePage implements §4.9's two WRITE_PAGE behaviors: a normal page
// carries one page index byte followed by exactly PageSize data bytes; the
// end-of-image marker carries only the page index byte, set to
// wire.EndOfImagePage, with no data, and flips Updater into "upload
// complete" without touching flash.
func (u *Updater) handleWritePage(req wire.LocalPacket) wire.LocalPacket {
	if len(req.Data) < 1 {
		return bootReply(req, wire.BootOpNack, nil)
	}
	page := int(req.Data[0])
	if page == wire.EndOfImagePage {
		u.mu.Lock()
		u.complete = true
		u.mu.Unlock()
		u.wd.Pet()
		return bootReply(req, wire.BootOpAck, nil)
	}

	payload := req.Data[1:]
	if len(payload) != u.flash.PageSize() {
		return bootReply(req, wire.BootOpNack, nil)
	}
	if err := u.flash.WritePage(page, payload); err != nil {
		return bootReply(req, wire.BootOpNack, nil)
	}
	u.wd.Pet()
	return bootReply(req, wire.BootOpAck, nil)
}

// Complete reports whether the end-of-image marker has been received since
// the last ERASE.
func (u *Updater) Complete() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.complete
}

// BootDecision runs sigverify.Verify over the flashed image against the
// trailing 16 bytes of the region as the stored signature, returning
// ErrNotComplete if the end-of-image marker hasn't arrived yet. ok reports
// whether the signature matched any of Updater's keys — the sole input to
// the boot-or-don't-boot decision per §4.3/§4.9.
func (u *Updater) BootDecision() (ok bool, err error) {
	if !u.Complete() {
		return false, ErrNotComplete
	}
	image := u.flash.ReadAll()
	if len(image) < 16 {
		return false, nil
	}
	var sig [16]byte
	copy(sig[:], image[len(image)-16:])
	body := image[:len(image)-16]
	return sigverify.Verify(u.keys, body, sig), nil
}
