// Command commsctl is a bench/ground-test CLI for talking to a running
// commsd (or the real flight unit) over its local UART control link. Each
// subcommand builds one request LocalPacket, frames it, waits for the
// matching response, and prints the result — the same "one flag set, one
// control frame, print the reply" shape as the teacher's cmd/smacprint and
// cmd/npioff, generalized from "configure the base station" to "every
// application opcode in the command set".
package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/jumiknows/aleasat-comms/framer"
	"github.com/jumiknows/aleasat-comms/wire"
)

var (
	app = kingpin.New("commsctl", "Bench control CLI for the COMMS unit")

	device  = app.Flag("device", "Path to the UART serial device").Required().String()
	baud    = app.Flag("baud", "Serial baud rate").Default("115200").Uint()
	destHex = app.Flag("dest", "Destination HWID (hex)").Default("0x9001").String()
	timeout = app.Flag("timeout", "Reply wait timeout").Default("2s").Duration()

	pingCmd          = app.Command("ping", "Send ACK-as-ping and expect an echoed reply")
	pingPayload      = pingCmd.Arg("payload", "Bytes to echo (hex, optional)").String()
	rebootCmd        = app.Command("reboot", "Schedule a reboot")
	rebootDelay      = rebootCmd.Arg("delay", "Delay before reboot").Default("0s").Duration()
	getTelemCmd      = app.Command("get-telem", "Read the monotonic telemetry counters")
	getCallsignCmd   = app.Command("get-callsign", "Read the configured callsign")
	setCallsignCmd   = app.Command("set-callsign", "Set the callsign")
	callsignArg      = setCallsignCmd.Arg("callsign", "New callsign").Required().String()
	getAuthCmd       = app.Command("get-authent-enable", "Read whether RF authentication is enabled")
	setAuthCmd       = app.Command("set-authent-enable", "Enable or disable RF authentication")
	authEnableArg    = setAuthCmd.Arg("enabled", "true/false").Required().Bool()
	getMainKeyCmd    = app.Command("get-main-key", "Read back a provisioned key (bench/local use only)")
	mainKeySelector  = getMainKeyCmd.Arg("selector", "0=GS1 1=GS2 2=ARO").Required().Uint8()
	getRadioTelemCmd = app.Command("get-radio-telem", "Read the last latched RSSI/LQI/FREQEST sample")
	resetRadioTelem  = app.Command("reset-radiotelem", "Clear the latched physical-layer sample")
)

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	dest, err := parseHWIDArg(*destHex)
	if err != nil {
		fatalf("bad --dest: %v", err)
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:              *device,
		BaudRate:              *baud,
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
		MinimumReadSize:       1,
	})
	if err != nil {
		fatalf("opening %s: %v", *device, err)
	}
	defer port.Close()

	client := newControlClient(port, dest)

	switch cmd {
	case pingCmd.FullCommand():
		payload, err := hex.DecodeString(*pingPayload)
		if err != nil {
			fatalf("bad payload: %v", err)
		}
		runPing(client, payload)
	case rebootCmd.FullCommand():
		runReboot(client, *rebootDelay)
	case getTelemCmd.FullCommand():
		runGetTelem(client)
	case getCallsignCmd.FullCommand():
		runGetCallsign(client)
	case setCallsignCmd.FullCommand():
		runSetCallsign(client, *callsignArg)
	case getAuthCmd.FullCommand():
		runGetAuthentEnable(client)
	case setAuthCmd.FullCommand():
		runSetAuthentEnable(client, *authEnableArg)
	case getMainKeyCmd.FullCommand():
		runGetMainKey(client, *mainKeySelector)
	case getRadioTelemCmd.FullCommand():
		runGetRadioTelem(client)
	case resetRadioTelem.FullCommand():
		runResetRadioTelem(client)
	}
}

func runPing(c *controlClient, payload []byte) {
	reply, err := c.roundTrip(wire.OpACK, payload)
	must(err)
	fmt.Printf("PING reply opcode=%#x data=%x\n", reply.Header.Opcode, reply.Data)
}

func runReboot(c *controlClient, delay time.Duration) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(delay/time.Second))
	reply, err := c.roundTrip(wire.OpReboot, buf[:])
	must(err)
	if reply.Header.Opcode != wire.OpRebooting {
		fatalf("unit NACKed the reboot request")
	}
	fmt.Printf("reboot scheduled in %v\n", delay)
}

func runGetTelem(c *controlClient) {
	reply, err := c.roundTrip(wire.OpGetTelem, nil)
	must(err)
	if len(reply.Data) < 28 {
		fatalf("GET_TELEM reply too short: %d bytes", len(reply.Data))
	}
	names := []string{"sent", "accepted", "rejected_checksum", "rejected_authent", "rejected_other", "carrier_sense", "dropped_no_slot"}
	for i, name := range names {
		v := binary.BigEndian.Uint32(reply.Data[i*4 : i*4+4])
		fmt.Printf("%-20s %d\n", name, v)
	}
}

func runGetCallsign(c *controlClient) {
	reply, err := c.roundTrip(wire.OpGetCallsign, nil)
	must(err)
	fmt.Printf("callsign: %s\n", reply.Data)
}

func runSetCallsign(c *controlClient, callsign string) {
	reply, err := c.roundTrip(wire.OpSetCallsign, []byte(callsign))
	must(err)
	if reply.Header.Opcode != wire.OpACK {
		fatalf("SET_CALLSIGN NACKed")
	}
	fmt.Println("callsign updated")
}

func runGetAuthentEnable(c *controlClient) {
	reply, err := c.roundTrip(wire.OpGetAuthentEnable, nil)
	must(err)
	if len(reply.Data) < 1 {
		fatalf("GET_AUTHENT_ENABLE reply empty")
	}
	fmt.Printf("authentication enabled: %v\n", reply.Data[0] != 0)
}

func runSetAuthentEnable(c *controlClient, enabled bool) {
	v := byte(0)
	if enabled {
		v = 1
	}
	reply, err := c.roundTrip(wire.OpSetAuthentEnable, []byte{v})
	must(err)
	if reply.Header.Opcode != wire.OpACK {
		fatalf("SET_AUTHENT_ENABLE NACKed")
	}
	fmt.Printf("authentication set to %v\n", enabled)
}

func runGetMainKey(c *controlClient, selector uint8) {
	reply, err := c.roundTrip(wire.OpGetMainKey, []byte{selector})
	must(err)
	if reply.Header.Opcode != wire.OpACK {
		fatalf("GET_MAIN_KEY NACKed (invalid selector or key not provisioned)")
	}
	fmt.Printf("key: %x\n", reply.Data)
}

func runGetRadioTelem(c *controlClient) {
	reply, err := c.roundTrip(wire.OpGetRadioTelem, nil)
	must(err)
	if len(reply.Data) < 12 {
		fatalf("GET_RADIOTELEM reply too short")
	}
	rssi := int32(binary.BigEndian.Uint32(reply.Data[0:4]))
	lqi := int32(binary.BigEndian.Uint32(reply.Data[4:8]))
	freqEst := int32(binary.BigEndian.Uint32(reply.Data[8:12]))
	fmt.Printf("rssi=%d lqi=%d freq_est=%d\n", rssi, lqi, freqEst)
}

func runResetRadioTelem(c *controlClient) {
	reply, err := c.roundTrip(wire.OpResetRadioTelem, nil)
	must(err)
	if reply.Header.Opcode != wire.OpACK {
		fatalf("RESET_RADIOTELEM NACKed")
	}
	fmt.Println("radio telemetry sample cleared")
}

// controlClient sends one framed LocalPacket at a time and blocks for its
// matching reply, the same one-request-at-a-time model as the teacher's
// LinkMgr.Ctrl, minus the registry (commsctl only ever has one request
// in flight).
type controlClient struct {
	sender *framer.Sender
	pool   *framer.SlotPool
	dest   wire.HWID
	seq    uint16
}

func newControlClient(port io.ReadWriteCloser, dest wire.HWID) *controlClient {
	pool := framer.NewSlotPool(4)
	recv := framer.NewReceiver(pool)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := port.Read(buf)
			for i := 0; i < n; i++ {
				recv.Feed(buf[i])
			}
			if err != nil {
				return
			}
		}
	}()
	return &controlClient{sender: framer.NewSender(port, &sync.Mutex{}), pool: pool, dest: dest}
}

func (c *controlClient) roundTrip(opcode uint8, data []byte) (wire.LocalPacket, error) {
	c.seq++
	req := wire.LocalPacket{
		Header: wire.Header{SeqResp: wire.WithResponse(c.seq, false), Dest: c.dest, Opcode: opcode},
		Data:   data,
	}
	if err := c.sender.Send(req); err != nil {
		return wire.LocalPacket{}, err
	}

	deadline := time.Now().Add(*timeout)
	for time.Now().Before(deadline) {
		if pkt, ok := c.pool.Poll(); ok {
			if pkt.Header.IsResponse() && pkt.Header.Sequence() == c.seq {
				return pkt, nil
			}
			continue
		}
		time.Sleep(time.Millisecond)
	}
	return wire.LocalPacket{}, fmt.Errorf("timed out waiting for reply")
}

func parseHWIDArg(s string) (wire.HWID, error) {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	var v uint64
	if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
		return 0, err
	}
	return wire.HWID(v), nil
}

func must(err error) {
	if err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "commsctl: "+format+"\n", args...)
	os.Exit(1)
}
