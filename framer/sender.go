package framer

import (
	"io"
	"sync"
	"time"

	"github.com/jumiknows/aleasat-comms/wire"
)

// Default inter-byte timer durations from §4.5: the first byte gets a
// generous window, subsequent bytes within the same packet get a much
// shorter reload, matching the hardware's shortened-reload-between-bytes
// behavior.
const (
	FirstByteTimeout      = 20 * time.Millisecond
	SubsequentByteTimeout = 235 * time.Microsecond
)

// Sender is the transmit side of a serial bus. It holds a bus mutex for the
// duration of a send, so Senders sharing that mutex never interleave.
// Receiver does not take the mutex: bytes fed to a Receiver while a send is
// in progress are still processed.
type Sender struct {
	mu   sync.Mutex
	w    io.Writer
	busy *sync.Mutex // bus mutex; held for the duration of a send

	// ReadyGPIO, if non-nil, is called once before the send begins and once
	// after it ends, modeling the SPI-only outgoing-ready GPIO edge (§4.5).
	// UART has no such pin and leaves this nil.
	ReadyGPIO func(asserted bool)
}

// NewSender builds a Sender writing to w. busMu is held for each whole send;
// Receiver does not lock it, so it does not keep receive from running
// during a transmit.
func NewSender(w io.Writer, busMu *sync.Mutex) *Sender {
	return &Sender{w: w, busy: busMu}
}

// Send writes sync + length + payload for pkt, byte-by-byte, honoring the
// inter-byte timeout: if a single Write of one byte doesn't return within
// the timeout, the send aborts. Go's blocking io.Writer doesn't expose a
// mid-byte "still shifting" boundary the way SPI hardware shift registers
// do, so here an abort means: stop before starting any byte after the one
// whose deadline fired. Bytes already written stay on the wire, so the
// frame can end partway through a field, and the timed-out one-byte write
// may still complete in the background.
func (s *Sender) Send(pkt wire.LocalPacket) error {
	buf, err := pkt.MarshalBinary()
	if err != nil {
		return err
	}
	frame := make([]byte, 0, 2+len(buf))
	frame = append(frame, ESPStart0, ESPStart1)
	frame = append(frame, buf...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy.Lock()
	defer s.busy.Unlock()

	if s.ReadyGPIO != nil {
		s.ReadyGPIO(true)
		defer s.ReadyGPIO(false)
	}

	for i, b := range frame {
		timeout := SubsequentByteTimeout
		if i == 0 {
			timeout = FirstByteTimeout
		}
		if err := writeByteWithTimeout(s.w, b, timeout); err != nil {
			return err
		}
	}
	return nil
}

// writeByteWithTimeout writes a single byte to w, returning an error if the
// write doesn't complete before timeout elapses.
func writeByteWithTimeout(w io.Writer, b byte, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() {
		_, err := w.Write([]byte{b})
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return errSendTimeout
	}
}

// errSendTimeout is returned when the inter-byte timer expires mid-send.
var errSendTimeout = sendTimeoutError("framer: inter-byte timer expired")

type sendTimeoutError string

func (e sendTimeoutError) Error() string { return string(e) }
