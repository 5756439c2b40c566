// Package scheduler ties every other package together into the fixed
// eight-step cooperative loop from spec §4.10, the same role the teacher's
// RunNPI plays tying its PHY reader/writer and control-frame registry into
// one coherent unit. Where the original firmware's loop runs on bare metal
// with ISRs preempting it, Loop.RunOnce runs on a single goroutine and the
// "ISRs" are the separate reader goroutines (radio.Link.Listen, and
// whatever feeds the UART/SPI framers) that only ever deposit into a
// SlotPool or channel — RunOnce itself does all the buffer-owning
// "mainline" work, in the same fixed order every iteration.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/jumiknows/aleasat-comms/authenticator"
	"github.com/jumiknows/aleasat-comms/dispatch"
	"github.com/jumiknows/aleasat-comms/framer"
	"github.com/jumiknows/aleasat-comms/radio"
	"github.com/jumiknows/aleasat-comms/router"
	"github.com/jumiknows/aleasat-comms/telemetry"
	"github.com/jumiknows/aleasat-comms/wire"
)

// Watchdog is the main loop's timeout guard, pet once per iteration per
// §4.10 step 1. bootloader.TickWatchdog satisfies this interface without
// either package importing the other.
type Watchdog interface {
	Pet()
	Expired() bool
}

// Loop holds every wired component one running unit needs. Construct it
// once at startup and call Run for the unit's lifetime.
type Loop struct {
	Watchdog  Watchdog
	Clock     func() time.Time
	Telemetry *telemetry.Counters

	UARTPool   *framer.SlotPool
	SPIPool    *framer.SlotPool
	UARTSender *framer.Sender
	SPISender  *framer.Sender

	Radio *radio.Link
	Auth  *authenticator.Authenticator
	Self  wire.HWID

	Router      *router.Table
	Dispatcher  *dispatch.Dispatcher
	DispatchCtx *dispatch.Context

	// DeployAntenna, if non-nil, is polled once per iteration (§4.10 step
	// 6) and should report true exactly once per physical deployment edge.
	// Left nil by units with no antenna mechanism to drive.
	DeployAntenna func() bool

	// RebootNow is called once a scheduled reboot comes due, after the
	// REBOOTING notifications go out on UART and SPI. nil is valid for
	// tests that only want to observe the notifications.
	RebootNow func()

	mu            sync.Mutex
	rebootPending bool
	rebootAt      time.Time

	forwardPending bool
	forwardOrigin  wire.LocalPacket
	forwardOnIface router.Interface
	rfOutbox       chan wire.RFPacket
}

// NewLoop builds a Loop. rfOutboxCap models the "originating buffer" whose
// fullness step 8 watches — the scheduler's own outbound RF queue, sized so
// tests can force it full without a real slow link.
func NewLoop(rfOutboxCap int) *Loop {
	return &Loop{rfOutbox: make(chan wire.RFPacket, rfOutboxCap)}
}

// ScheduleReboot implements dispatch.Context.ScheduleReboot: it records the
// deadline for step 7 to act on, rather than rebooting inline from within a
// dispatch handler.
func (l *Loop) ScheduleReboot(delay time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rebootPending = true
	l.rebootAt = l.Clock().Add(delay)
}

// SendRangingAck implements dispatch.Context.SendRangingAck: it transmits a
// RANGING_ACK for req over RF with precise timing, off the main loop
// goroutine so the ranging reply's fixed delay never stalls RunOnce.
func (l *Loop) SendRangingAck(req wire.LocalPacket) {
	ack := wire.RFPacket{
		Header: wire.Header{
			SeqResp: wire.WithResponse(req.Header.Sequence(), true),
			Dest:    req.Header.Src,
			Src:     req.Header.Dest,
			Opcode:  wire.OpRangingAck,
		},
	}
	go l.Radio.Send(context.Background(), ack, ack.Header.Dest, true)
}

// Run drives RunOnce once per tick until ctx is canceled.
func (l *Loop) Run(ctx context.Context, tick time.Duration) error {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce executes the fixed eight-step iteration from §4.10.
func (l *Loop) RunOnce(ctx context.Context) {
	l.Watchdog.Pet()           // 1
	l.processScheduledEvents() // 2 (reboot-due check happens at step 7 below)
	l.pollUART(ctx)            // 3
	l.pollSPI(ctx)             // 4
	l.pollRF(ctx)              // 5
	l.pollAntennaDeploy()      // 6
	l.processRebootIfDue(ctx)  // 7
	l.processForwardReady(ctx) // 8
}

// processScheduledEvents is the hook for future RTC-triggered work; the
// reboot deadline itself is evaluated in processRebootIfDue per the spec's
// explicit step split (step 2 "handle scheduled events" vs step 7 "if a
// reboot is scheduled, notify and trigger it").
func (l *Loop) processScheduledEvents() {}

func localToRF(pkt wire.LocalPacket) wire.RFPacket {
	return wire.RFPacket{Header: pkt.Header, Data: pkt.Data}
}

func rfToLocal(pkt wire.RFPacket) wire.LocalPacket {
	return wire.LocalPacket{Header: pkt.Header, Data: pkt.Data}
}

func (l *Loop) pollUART(ctx context.Context) {
	pkt, ok := l.UARTPool.Poll()
	if !ok {
		return
	}
	l.handleInbound(ctx, pkt, router.IfaceUART)
}

func (l *Loop) pollSPI(ctx context.Context) {
	pkt, ok := l.SPIPool.Poll()
	if !ok {
		return
	}
	l.handleInbound(ctx, pkt, router.IfaceSPI)
}

// handleInbound routes pkt per the action matrix, replying on replyIface
// when the action is Handle and forwarding onward over router.Table's
// interface table when it's Forward. replyIface is the interface the
// packet was received on — not necessarily the interface a reply or a
// forward goes back out on.
func (l *Loop) handleInbound(ctx context.Context, pkt wire.LocalPacket, replyIface router.Interface) {
	action, iface := l.Router.Route(pkt.Header.Src, pkt.Header.Dest)
	switch action {
	case router.Handle:
		reply, ok := l.Dispatcher.Handle(pkt, l.DispatchCtx)
		if !ok {
			return
		}
		l.sendOn(replyIface, reply)
	case router.Forward:
		l.forward(ctx, pkt, iface)
	case router.Drop:
		if l.Telemetry != nil {
			l.Telemetry.IncRejectedOther()
		}
	}
}

func (l *Loop) sendOn(iface router.Interface, pkt wire.LocalPacket) {
	switch iface {
	case router.IfaceUART:
		if l.UARTSender != nil {
			l.UARTSender.Send(pkt)
		}
	case router.IfaceSPI:
		if l.SPISender != nil {
			l.SPISender.Send(pkt)
		}
	}
}

func (l *Loop) forward(ctx context.Context, pkt wire.LocalPacket, iface router.Interface) {
	switch iface {
	case router.IfaceRF:
		select {
		case l.rfOutbox <- localToRF(pkt):
			go l.drainRFOutbox(ctx)
		default:
			l.mu.Lock()
			l.forwardPending = true
			l.forwardOrigin = pkt
			l.mu.Unlock()
		}
	case router.IfaceSPI:
		l.sendOn(router.IfaceSPI, pkt)
	case router.IfaceUART:
		l.sendOn(router.IfaceUART, pkt)
	}
}

// drainRFOutbox transmits the next queued forwarded packet. It runs off the
// main loop goroutine because radio.Link.Send can block for a precise-timing
// window or the whole TX duration, and step 8's buffer-empty check must see
// the queue drain without itself blocking.
func (l *Loop) drainRFOutbox(ctx context.Context) {
	select {
	case pkt := <-l.rfOutbox:
		l.Radio.Send(ctx, pkt, pkt.Header.Dest, false)
	default:
	}
}

func (l *Loop) pollRF(ctx context.Context) {
	var pkt wire.RFPacket
	select {
	case pkt = <-l.Radio.Received():
	default:
		return
	}

	if err := l.Auth.VerifyReceived(pkt, pkt.Header.Dest); err != nil {
		if l.Telemetry != nil {
			l.Telemetry.IncRejectedAuthent()
		}
		return
	}
	if l.Telemetry != nil {
		l.Telemetry.IncPacketsAccepted()
	}

	local := rfToLocal(pkt)
	action, iface := l.Router.Route(pkt.Header.Src, pkt.Header.Dest)
	switch action {
	case router.Handle:
		reply, ok := l.Dispatcher.Handle(local, l.DispatchCtx)
		if !ok {
			return
		}
		rf := localToRF(reply)
		go l.Radio.Send(ctx, rf, rf.Header.Dest, false)
	case router.Forward:
		l.forward(ctx, local, iface)
	}
}

func (l *Loop) pollAntennaDeploy() {
	if l.DeployAntenna == nil {
		return
	}
	l.DeployAntenna()
}

// processRebootIfDue implements §4.10 step 7: once the deferred deadline
// has passed, announce REBOOTING on both local interfaces and hand off to
// the caller-supplied reboot trigger. The Loop itself has no process-level
// "reboot" primitive — that's RebootNow, injected by the binary that knows
// how to actually restart itself.
func (l *Loop) processRebootIfDue(ctx context.Context) {
	l.mu.Lock()
	due := l.rebootPending && !l.Clock().Before(l.rebootAt)
	if due {
		l.rebootPending = false
	}
	l.mu.Unlock()
	if !due {
		return
	}

	notice := wire.LocalPacket{Header: wire.Header{Opcode: wire.OpRebooting}}
	l.sendOn(router.IfaceUART, notice)
	l.sendOn(router.IfaceSPI, notice)
	if l.RebootNow != nil {
		l.RebootNow()
	}
}

// processForwardReady implements §4.10 step 8: if a forwarded packet was
// dropped earlier for lack of outbox room, and the outbox has since
// drained, tell the originator the path is clear again.
func (l *Loop) processForwardReady(ctx context.Context) {
	l.mu.Lock()
	pending := l.forwardPending
	origin := l.forwardOrigin
	l.mu.Unlock()
	if !pending {
		return
	}
	if len(l.rfOutbox) >= cap(l.rfOutbox) {
		return
	}

	l.mu.Lock()
	l.forwardPending = false
	l.mu.Unlock()

	notice := wire.LocalPacket{
		Header: wire.Header{
			SeqResp: wire.WithResponse(origin.Header.Sequence(), true),
			Dest:    origin.Header.Src,
			Src:     origin.Header.Dest,
			Opcode:  wire.OpForwardReady,
		},
	}
	l.sendOn(router.IfaceUART, notice)
	l.sendOn(router.IfaceSPI, notice)
}
