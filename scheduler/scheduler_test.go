package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jumiknows/aleasat-comms/authenticator"
	"github.com/jumiknows/aleasat-comms/crc16"
	"github.com/jumiknows/aleasat-comms/dispatch"
	"github.com/jumiknows/aleasat-comms/framer"
	"github.com/jumiknows/aleasat-comms/radio"
	"github.com/jumiknows/aleasat-comms/router"
	"github.com/jumiknows/aleasat-comms/storage"
	"github.com/jumiknows/aleasat-comms/telemetry"
	"github.com/jumiknows/aleasat-comms/wire"
)

// fakeWatchdog never expires; RunOnce just needs something to Pet.
type fakeWatchdog struct{ pets int }

func (w *fakeWatchdog) Pet()          { w.pets++ }
func (w *fakeWatchdog) Expired() bool { return false }

// loopbackTransceiver is a minimal radio.Transceiver for scheduler-level
// tests: Transmit on one end feeds Receive on the paired end. The ground
// station side of the pair is driven directly by tests (bypassing
// radio.Link entirely) so hand-crafted, deliberately corrupted RF frames
// can be injected at the wire level.
type loopbackTransceiver struct {
	rx   chan []byte
	peer chan []byte
}

func newTransceiverPair() (unitSide, groundSide *loopbackTransceiver) {
	toUnit := make(chan []byte, 4)
	toGround := make(chan []byte, 4)
	return &loopbackTransceiver{rx: toUnit, peer: toGround}, &loopbackTransceiver{rx: toGround, peer: toUnit}
}

func (f *loopbackTransceiver) Receive(ctx context.Context) ([]byte, error) {
	select {
	case raw := <-f.rx:
		return raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *loopbackTransceiver) Transmit(ctx context.Context, raw []byte) error {
	select {
	case f.peer <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *loopbackTransceiver) Sample() (int32, int32, int32) { return -50, 40, 0 }

const (
	selfHWID = wire.HWID(0x9001)
	gs1HWID  = wire.HWID(0x8000)
	aroHWID  = wire.HWID(0xE000)
	obcHWID  = wire.HWID(0x7000)
)

// loopbackPeerSender is an io.Writer standing in for the physical UART/SPI
// wire on the other end of a framer.Sender, capturing everything written so
// tests can decode the reply frame.
type loopbackPeerSender struct {
	mu  sync.Mutex
	buf []byte
}

func (s *loopbackPeerSender) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *loopbackPeerSender) bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.buf))
	copy(out, s.buf)
	return out
}

// testUnit bundles everything RunOnce needs for one simulated COMMS unit,
// plus direct access to the ground-station side of its RF link so tests can
// inject hand-built (including deliberately corrupted) RF frames.
type testUnit struct {
	loop   *Loop
	auth   *authenticator.Authenticator
	keys   *wire.KeyTable
	clock  time.Time
	uartRx *framer.Receiver
	uartTx *loopbackPeerSender
	spiTx  *loopbackPeerSender
	ground *loopbackTransceiver
}

func newTestUnit(t *testing.T) *testUnit {
	t.Helper()
	now := time.Unix(10000, 0)
	keys := wire.NewKeyTable(wire.Key{0xAB}, wire.Key{0xCD})
	ranges := wire.NewHWIDRanges(selfHWID)
	auth := authenticator.New(keys, ranges, 5*time.Second)
	auth.Clock = func() time.Time { return now }

	uartSink := &loopbackPeerSender{}
	uartSender := framer.NewSender(uartSink, &sync.Mutex{})
	uartPool := framer.NewSlotPool(4)
	uartRecv := framer.NewReceiver(uartPool)
	spiPool := framer.NewSlotPool(4)
	spiSink := &loopbackPeerSender{}
	spiSender := framer.NewSender(spiSink, &sync.Mutex{})

	unitSide, groundSide := newTransceiverPair()
	tel := &telemetry.Counters{}
	selfRadio := radio.NewLink(unitSide, auth, tel)

	d := dispatch.NewDispatcher()
	dispatch.RegisterApplication(d)

	loop := NewLoop(2)
	loop.Watchdog = &fakeWatchdog{}
	loop.Clock = func() time.Time { return now }
	loop.Telemetry = tel
	loop.UARTPool = uartPool
	loop.SPIPool = spiPool
	loop.UARTSender = uartSender
	loop.SPISender = spiSender
	loop.Radio = selfRadio
	loop.Auth = auth
	loop.Self = selfHWID
	loop.Router = router.NewTable(ranges)
	loop.Dispatcher = d
	loop.DispatchCtx = &dispatch.Context{
		Telemetry:      tel,
		Keys:           keys,
		Auth:           auth,
		Store:          storage.New(),
		Clock:          func() time.Time { return now },
		ScheduleReboot: loop.ScheduleReboot,
		SendRangingAck: loop.SendRangingAck,
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go selfRadio.Listen(ctx)

	return &testUnit{loop: loop, auth: auth, keys: keys, clock: now, uartRx: uartRecv, uartTx: uartSink, spiTx: spiSink, ground: groundSide}
}

func (u *testUnit) feedUART(raw []byte) {
	for _, b := range raw {
		u.uartRx.Feed(b)
	}
}

// transmitRaw pushes a fully hand-assembled RF frame straight onto the
// simulated air interface, bypassing radio.Link.Send (and its automatic
// signing/CRC computation) so tests can inject specific corruption.
func (u *testUnit) transmitRaw(ctx context.Context, raw []byte) {
	u.ground.Transmit(ctx, raw)
}

// signedRF builds pkt, signs it with u.auth using GS1's key (Sign's destHWID
// resolves to the peer whose shared key is used, which for a GS1-originated
// packet is GS1 itself), and computes a correct CRC — i.e. a frame that
// should be accepted.
func signedRF(t *testing.T, u *testUnit, pkt wire.RFPacket) wire.RFPacket {
	t.Helper()
	signed, ok := u.auth.Sign(pkt, gs1HWID)
	if !ok {
		t.Fatalf("Sign failed")
	}
	signed.Header.Src, signed.Header.Dest = gs1HWID, selfHWID
	signed.CRC = crc16.Checksum(signed.CRCCoveredBytes())
	return signed
}

func TestScenarioLocalACKPing(t *testing.T) {
	u := newTestUnit(t)
	ctx := context.Background()

	req := wire.LocalPacket{
		Header: wire.Header{SeqResp: 0, Dest: selfHWID, Src: gs1HWID, Opcode: wire.OpACK},
		Data:   []byte{0xAA},
	}
	body, err := req.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	frame := append([]byte{framer.ESPStart0, framer.ESPStart1}, body...)
	u.feedUART(frame)

	u.loop.RunOnce(ctx)

	replyFrame := u.uartTx.bytes()
	if len(replyFrame) < 2 || replyFrame[0] != framer.ESPStart0 || replyFrame[1] != framer.ESPStart1 {
		t.Fatalf("no framed reply observed on UART: %x", replyFrame)
	}
	reply, err := wire.UnmarshalLocalPacket(replyFrame[2:])
	if err != nil {
		t.Fatalf("UnmarshalLocalPacket: %v", err)
	}
	if reply.Header.Opcode != wire.OpACK || !reply.Header.IsResponse() {
		t.Errorf("reply header = %+v, want ACK with response bit set", reply.Header)
	}
	if string(reply.Data) != "\xaa" {
		t.Errorf("reply did not echo ping payload: %x", reply.Data)
	}
}

func TestScenarioRFCRCRejection(t *testing.T) {
	u := newTestUnit(t)
	ctx := context.Background()

	pkt := wire.RFPacket{Header: wire.Header{Dest: selfHWID, Src: gs1HWID, Opcode: wire.OpACK}}
	signed := signedRF(t, u, pkt)
	raw, err := signed.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	raw[len(raw)-1]++ // corrupt the last CRC byte

	u.transmitRaw(ctx, raw)
	time.Sleep(20 * time.Millisecond)
	u.loop.RunOnce(ctx)

	if u.loop.Telemetry.RejectedChecksum() != 1 {
		t.Errorf("RejectedChecksum = %d, want 1", u.loop.Telemetry.RejectedChecksum())
	}
	if len(u.uartTx.bytes()) != 0 {
		t.Errorf("no reply should have been emitted for a CRC-rejected packet")
	}
}

func TestScenarioRFMACRejectionWithAuthEnabled(t *testing.T) {
	u := newTestUnit(t)
	ctx := context.Background()

	pkt := wire.RFPacket{Header: wire.Header{Dest: selfHWID, Src: gs1HWID, Opcode: wire.OpACK}}
	// MAC left zeroed, CRC computed correctly over the zeroed-MAC bytes —
	// correct CRC, bad/missing MAC.
	pkt.CRC = crc16.Checksum(pkt.CRCCoveredBytes())
	raw, err := pkt.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	u.transmitRaw(ctx, raw)
	time.Sleep(20 * time.Millisecond)
	u.loop.RunOnce(ctx)

	if u.loop.Telemetry.RejectedAuthent() != 1 {
		t.Errorf("RejectedAuthent = %d, want 1", u.loop.Telemetry.RejectedAuthent())
	}
	if len(u.uartTx.bytes()) != 0 {
		t.Errorf("no reply should have been emitted for a MAC-rejected packet")
	}
}

// TestScenarioAROForwardedToOBC exercises the one path the ARO source is
// ever allowed onto: a correctly-addressed ARO->OBC packet must be verified
// against its own destination (not the receiving unit's identity) and then
// forwarded out over SPI, per router.actionMatrix's ARO row and §4.7's
// "ARO's only permitted target is the OBC".
func TestScenarioAROForwardedToOBC(t *testing.T) {
	u := newTestUnit(t)
	u.keys.SetAROKey(wire.Key{0xEF})
	ctx := context.Background()

	pkt := wire.RFPacket{Header: wire.Header{Dest: obcHWID, Src: aroHWID, Opcode: wire.OpACK}}
	signed, ok := u.auth.Sign(pkt, aroHWID)
	if !ok {
		t.Fatalf("Sign failed")
	}
	signed.CRC = crc16.Checksum(signed.CRCCoveredBytes())
	raw, err := signed.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	u.transmitRaw(ctx, raw)
	time.Sleep(20 * time.Millisecond)
	u.loop.RunOnce(ctx)

	if u.loop.Telemetry.RejectedAuthent() != 0 {
		t.Fatalf("ARO->OBC packet rejected: RejectedAuthent = %d", u.loop.Telemetry.RejectedAuthent())
	}
	forwarded := u.spiTx.bytes()
	if len(forwarded) < 2 || forwarded[0] != framer.ESPStart0 || forwarded[1] != framer.ESPStart1 {
		t.Fatalf("no framed packet forwarded onto SPI: %x", forwarded)
	}
	fwd, err := wire.UnmarshalLocalPacket(forwarded[2:])
	if err != nil {
		t.Fatalf("UnmarshalLocalPacket: %v", err)
	}
	if fwd.Header.Src != aroHWID || fwd.Header.Dest != obcHWID || fwd.Header.Opcode != wire.OpACK {
		t.Errorf("forwarded header = %+v, want Src=%#x Dest=%#x Opcode=ACK", fwd.Header, aroHWID, obcHWID)
	}
}

func TestScenarioBypassAcceptsAll(t *testing.T) {
	u := newTestUnit(t)
	u.auth.Enabled = false
	ctx := context.Background()

	pkt := wire.RFPacket{Header: wire.Header{Dest: selfHWID, Src: gs1HWID, Opcode: wire.OpACK}}
	pkt.CRC = crc16.Checksum(pkt.CRCCoveredBytes())
	raw, err := pkt.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}

	u.transmitRaw(ctx, raw)
	time.Sleep(20 * time.Millisecond)
	u.loop.RunOnce(ctx)

	if u.loop.Telemetry.RejectedAuthent() != 0 {
		t.Errorf("bypass mode rejected a packet: RejectedAuthent = %d", u.loop.Telemetry.RejectedAuthent())
	}
	if u.loop.Telemetry.PacketsAccepted() != 1 {
		t.Errorf("PacketsAccepted = %d, want 1", u.loop.Telemetry.PacketsAccepted())
	}
}

// TestScenarioRangingDeferredAck exercises the precise-timing ranging
// reply: a valid RANGING request gets an immediate local-style ACK over RF
// right away, followed — only after the fixed ranging delay — by the
// RANGING_ACK itself.
func TestScenarioRangingDeferredAck(t *testing.T) {
	u := newTestUnit(t)
	ctx := context.Background()

	req := wire.RFPacket{Header: wire.Header{Dest: selfHWID, Src: gs1HWID, Opcode: wire.OpRanging}}
	signed := signedRF(t, u, req)
	raw, err := signed.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	u.transmitRaw(ctx, raw)
	time.Sleep(20 * time.Millisecond)
	u.loop.RunOnce(ctx)

	recvCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	firstRaw, err := u.ground.Receive(recvCtx)
	if err != nil {
		t.Fatalf("expected an immediate ACK reply, got error: %v", err)
	}
	first, err := wire.UnmarshalRFPacket(firstRaw)
	if err != nil {
		t.Fatalf("UnmarshalRFPacket: %v", err)
	}
	if first.Header.Opcode != wire.OpACK {
		t.Errorf("immediate reply opcode = %#x, want ACK", first.Header.Opcode)
	}

	laterCtx, cancel3 := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel3()
	secondRaw, err := u.ground.Receive(laterCtx)
	if err != nil {
		t.Fatalf("expected a deferred RANGING_ACK, got error: %v", err)
	}
	second, err := wire.UnmarshalRFPacket(secondRaw)
	if err != nil {
		t.Fatalf("UnmarshalRFPacket: %v", err)
	}
	if second.Header.Opcode != wire.OpRangingAck {
		t.Errorf("deferred reply opcode = %#x, want RANGING_ACK", second.Header.Opcode)
	}
}

func TestScenarioRebootDeferral(t *testing.T) {
	u := newTestUnit(t)
	ctx := context.Background()

	u.loop.ScheduleReboot(60 * time.Second)
	u.loop.RunOnce(ctx) // t = 0: not due yet
	if len(u.uartTx.bytes()) != 0 {
		t.Fatalf("reboot notice sent before deadline")
	}

	later := u.clock.Add(60 * time.Second)
	u.loop.Clock = func() time.Time { return later }
	rebooted := false
	u.loop.RebootNow = func() { rebooted = true }
	u.loop.RunOnce(ctx)

	if !rebooted {
		t.Error("RebootNow not called once the deferred deadline arrived")
	}
	notice := u.uartTx.bytes()
	if len(notice) < 2 {
		t.Fatalf("no REBOOTING notice observed on UART")
	}
	got, err := wire.UnmarshalLocalPacket(notice[2:])
	if err != nil {
		t.Fatalf("UnmarshalLocalPacket: %v", err)
	}
	if got.Header.Opcode != wire.OpRebooting {
		t.Errorf("notice opcode = %#x, want OpRebooting", got.Header.Opcode)
	}
}
