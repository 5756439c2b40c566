// Command commsd is the COMMS application-mode daemon: it opens the UART,
// SPI, and radio serial ports, wires every package in this module together
// per spec §4.10, and runs the scheduler loop until signaled to stop. It
// plays the role the teacher's cmd/smacprint and cmd/npioff play for
// smacbase — a thin kingpin-driven binary sitting on top of the library
// packages — generalized from "configure one base station" to "run the
// whole unit".
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/jumiknows/aleasat-comms/authenticator"
	"github.com/jumiknows/aleasat-comms/dispatch"
	"github.com/jumiknows/aleasat-comms/framer"
	"github.com/jumiknows/aleasat-comms/radio"
	"github.com/jumiknows/aleasat-comms/router"
	"github.com/jumiknows/aleasat-comms/scheduler"
	"github.com/jumiknows/aleasat-comms/storage"
	"github.com/jumiknows/aleasat-comms/telemetry"
	"github.com/jumiknows/aleasat-comms/wire"
)

var (
	uartDevice = kingpin.Flag("uart", "Path to the UART serial device").Required().String()
	uartBaud   = kingpin.Flag("uart-baud", "UART baud rate").Default("115200").Uint()
	uartSlots  = kingpin.Flag("uart-slots", "UART RX slot pool size").Default("4").Int()

	spiDevice = kingpin.Flag("spi", "Path to the SPI-bridge serial device (omit if this unit has no OBC SPI link)").String()
	spiBaud   = kingpin.Flag("spi-baud", "SPI-bridge baud rate").Default("115200").Uint()
	spiSlots  = kingpin.Flag("spi-slots", "SPI RX slot pool size").Default("1").Int()

	radioDevice = kingpin.Flag("radio", "Path to the radio module's serial device").Required().String()
	radioBaud   = kingpin.Flag("radio-baud", "Radio module baud rate").Default("115200").Uint()
	rfOutboxCap = kingpin.Flag("rf-outbox", "Depth of the outbound RF forwarding queue").Default("4").Int()

	selfHWIDFlag = kingpin.Flag("hwid", "This unit's own HWID (hex, e.g. 0x9001)").Required().String()
	gs1KeyFlag   = kingpin.Flag("gs1-key", "GS1 shared key (32 hex chars)").Required().String()
	gs2KeyFlag   = kingpin.Flag("gs2-key", "GS2 shared key (32 hex chars)").Required().String()
	authWindow   = kingpin.Flag("auth-window", "Timestamp freshness window for RF authentication").Default("30s").Duration()

	stateFile = kingpin.Flag("state", "Path to persist callsign/simulated-telemetry state (memory-only if omitted)").String()
	tick      = kingpin.Flag("tick", "Scheduler loop tick interval").Default("100ms").Duration()
)

func main() {
	kingpin.Version("0.1")
	kingpin.Parse()

	selfHWID, err := parseHWID(*selfHWIDFlag)
	if err != nil {
		fatalf("bad --hwid: %v", err)
	}
	gs1Key, err := parseKey(*gs1KeyFlag)
	if err != nil {
		fatalf("bad --gs1-key: %v", err)
	}
	gs2Key, err := parseKey(*gs2KeyFlag)
	if err != nil {
		fatalf("bad --gs2-key: %v", err)
	}

	uartPort, err := openSerial(*uartDevice, *uartBaud)
	if err != nil {
		fatalf("opening UART %s: %v", *uartDevice, err)
	}
	defer uartPort.Close()

	var spiPort io.ReadWriteCloser
	if *spiDevice != "" {
		spiPort, err = openSerial(*spiDevice, *spiBaud)
		if err != nil {
			fatalf("opening SPI bridge %s: %v", *spiDevice, err)
		}
		defer spiPort.Close()
	}

	radioPort, err := openSerial(*radioDevice, *radioBaud)
	if err != nil {
		fatalf("opening radio %s: %v", *radioDevice, err)
	}
	defer radioPort.Close()

	keys := wire.NewKeyTable(gs1Key, gs2Key)
	ranges := wire.NewHWIDRanges(selfHWID)
	auth := authenticator.New(keys, ranges, *authWindow)
	clk := newAdjustableClock()
	auth.Clock = clk.Now

	tel := &telemetry.Counters{}

	uartPool := framer.NewSlotPool(*uartSlots).WithTelemetry(tel)
	uartRecv := framer.NewReceiver(uartPool)
	uartBusMu := &sync.Mutex{}
	uartSender := framer.NewSender(uartPort, uartBusMu)

	var spiPool *framer.SlotPool
	var spiSender *framer.Sender
	if spiPort != nil {
		spiPool = framer.NewSlotPool(*spiSlots).WithTelemetry(tel)
		spiRecv := framer.NewReceiver(spiPool)
		spiBusMu := &sync.Mutex{}
		spiSender = framer.NewSender(spiPort, spiBusMu)
		go feedBytes(spiPort, spiRecv.Feed)
	} else {
		spiPool = framer.NewSlotPool(1)
	}

	link := radio.NewLink(&serialRadio{conn: radioPort}, auth, tel)

	d := dispatch.NewDispatcher()
	dispatch.RegisterApplication(d)

	var store *storage.Store
	if *stateFile != "" {
		store, err = storage.NewFileBacked(*stateFile)
		if err != nil {
			fatalf("loading state file %s: %v", *stateFile, err)
		}
	} else {
		store = storage.New()
	}

	rxEnabled := int32(1)
	loop := scheduler.NewLoop(*rfOutboxCap)
	loop.Watchdog = noopWatchdog{}
	loop.Clock = clk.Now
	loop.Telemetry = tel
	loop.UARTPool = uartPool
	loop.SPIPool = spiPool
	loop.UARTSender = uartSender
	loop.SPISender = spiSender
	loop.Radio = link
	loop.Auth = auth
	loop.Self = selfHWID
	loop.Router = router.NewTable(ranges)
	loop.Dispatcher = d
	loop.RebootNow = func() {
		fmt.Fprintln(os.Stderr, "commsd: reboot requested, exiting for supervisor restart")
		os.Exit(0)
	}
	loop.DispatchCtx = &dispatch.Context{
		Telemetry: tel,
		Keys:      keys,
		Auth:      auth,
		Store:     store,
		Clock:     clk.Now,
		SetClock:  clk.Set,
		RXEnabled: func() bool { return atomic.LoadInt32(&rxEnabled) != 0 },
		SetRXEnabled: func(v bool) {
			if v {
				atomic.StoreInt32(&rxEnabled, 1)
			} else {
				atomic.StoreInt32(&rxEnabled, 0)
			}
			link.SetDisableRX(!v)
		},
		ScheduleReboot: loop.ScheduleReboot,
		SendRangingAck: loop.SendRangingAck,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go feedBytes(uartPort, uartRecv.Feed)
	go link.Listen(ctx)

	fmt.Fprintf(os.Stderr, "commsd: running as HWID %#04x, tick=%v\n", uint16(selfHWID), *tick)
	if err := loop.Run(ctx, *tick); err != nil && ctx.Err() == nil {
		fatalf("scheduler loop exited: %v", err)
	}
}

// feedBytes reads from conn until it errors (closed port, unplugged cable)
// and feeds every byte into feed, the same per-byte walk the teacher's
// npiPhyReader does over its own framing.
func feedBytes(conn io.Reader, feed func(byte) bool) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		for i := 0; i < n; i++ {
			feed(buf[i])
		}
		if err != nil {
			return
		}
	}
}

// serialRadio adapts a plain serial connection to radio.Transceiver using
// the RF packet's own self-describing length prefix: a length byte, that
// many body bytes, then a two-byte CRC footer (wire.RFPacket.MarshalBinary's
// exact layout), so no separate framing protocol is needed on this link.
type serialRadio struct {
	conn io.ReadWriteCloser
}

func (s *serialRadio) Receive(ctx context.Context) ([]byte, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(s.conn, lenByte[:]); err != nil {
		return nil, err
	}
	rest := make([]byte, int(lenByte[0])+2) // +2 trailing CRC bytes
	if _, err := io.ReadFull(s.conn, rest); err != nil {
		return nil, err
	}
	return append(lenByte[:], rest...), nil
}

func (s *serialRadio) Transmit(ctx context.Context, raw []byte) error {
	_, err := s.conn.Write(raw)
	return err
}

// Sample has no real physical-layer readback over a plain serial link to the
// radio module; a future revision could query it via a control frame the way
// the teacher's LinkMgr.GetRadio does over NPI.
func (s *serialRadio) Sample() (rssi, lqi, freqEst int32) { return 0, 0, 0 }

type noopWatchdog struct{}

func (noopWatchdog) Pet()          {}
func (noopWatchdog) Expired() bool { return false }

// adjustableClock backs dispatch.Context's Clock/SetClock pair: SET_TIME
// records an offset from the process's monotonic clock rather than touching
// any real RTC, since a host process has none to set.
type adjustableClock struct {
	mu     sync.Mutex
	offset time.Duration
}

func newAdjustableClock() *adjustableClock { return &adjustableClock{} }

func (c *adjustableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

func (c *adjustableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = t.Sub(time.Now())
}

func openSerial(path string, baud uint) (io.ReadWriteCloser, error) {
	return serial.Open(serial.OpenOptions{
		PortName:              path,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
		MinimumReadSize:       1,
	})
}

func parseHWID(s string) (wire.HWID, error) {
	s = trimHexPrefix(s)
	var v uint64
	if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
		return 0, err
	}
	return wire.HWID(v), nil
}

func parseKey(s string) (wire.Key, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return wire.Key{}, err
	}
	if len(b) != 16 {
		return wire.Key{}, fmt.Errorf("key must be 16 bytes (32 hex chars), got %d bytes", len(b))
	}
	var k wire.Key
	copy(k[:], b)
	return k, nil
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "commsd: "+format+"\n", args...)
	os.Exit(1)
}
