package wire

import "errors"

// Size constants from §3/§6.
const (
	LocalPacketMaxLen   = 233 // length byte counts everything after itself, max per §6
	LocalPacketMaxTotal = 234 // length byte + up to 233 following bytes
	rfTimestampSize     = 4
	rfMACSize           = 16
	rfCRCSize           = 2
	RFPacketMaxTotal    = 255 // radio hardware limit, §6
)

// Header is the fixed-size command header: {sequence_number_and_response_bit,
// destination HWID, source HWID, opcode}.
type Header struct {
	SeqResp uint16 // top bit = response flag, low 15 bits = sequence number
	Dest    HWID
	Src     HWID
	Opcode  uint8
}

const responseBit = uint16(1) << 15

// Sequence returns the 15-bit sequence number, masking out the response bit.
func (h Header) Sequence() uint16 { return h.SeqResp &^ responseBit }

// IsResponse reports whether the response bit is set.
func (h Header) IsResponse() bool { return h.SeqResp&responseBit != 0 }

// WithResponse returns a copy of the sequence+response field with the
// response bit forced to the given value.
func WithResponse(seq uint16, response bool) uint16 {
	seq &^= responseBit
	if response {
		seq |= responseBit
	}
	return seq
}

// headerSize is the marshaled size of Header: 2 (seq+resp) + 2 (dest) + 2 (src) + 1 (opcode).
const headerSize = 7

// MarshalBinary encodes the header in the wire's fixed field order.
func (h Header) MarshalBinary() []byte {
	b := make([]byte, headerSize)
	b[0] = byte(h.SeqResp >> 8)
	b[1] = byte(h.SeqResp)
	b[2] = byte(h.Dest >> 8)
	b[3] = byte(h.Dest)
	b[4] = byte(h.Src >> 8)
	b[5] = byte(h.Src)
	b[6] = h.Opcode
	return b
}

// UnmarshalHeader decodes a Header from the front of b, returning the
// remaining bytes.
func UnmarshalHeader(b []byte) (Header, []byte, error) {
	if len(b) < headerSize {
		return Header{}, nil, ErrShortPacket
	}
	h := Header{
		SeqResp: uint16(b[0])<<8 | uint16(b[1]),
		Dest:    HWID(uint16(b[2])<<8 | uint16(b[3])),
		Src:     HWID(uint16(b[4])<<8 | uint16(b[5])),
		Opcode:  b[6],
	}
	return h, b[headerSize:], nil
}

// Sentinel errors for the error taxonomy in spec §7. The framer state
// machine handles bad-sync and buffer-full conditions inline and does not
// return ErrBadSync or ErrNoSlot.
var (
	ErrShortPacket  = errors.New("wire: packet shorter than header")
	ErrTooLong      = errors.New("wire: packet exceeds maximum length")
	ErrCRCMismatch  = errors.New("wire: CRC mismatch")
	ErrAuthFailed   = errors.New("wire: authentication failed")
	ErrUnknownHWID  = errors.New("wire: source or destination HWID unmapped")
	ErrNoSlot       = errors.New("wire: no free RX slot")
	ErrBadSync      = errors.New("wire: bad sync bytes")
)

// LocalPacket is {length byte, header, data} as carried over UART/SPI.
type LocalPacket struct {
	Header Header
	Data   []byte
}

// Len is the value of the on-wire length byte: everything after itself,
// i.e. header + data.
func (p LocalPacket) Len() int { return headerSize + len(p.Data) }

// MarshalBinary encodes the packet including its leading length byte.
// It returns ErrTooLong if the encoded packet would exceed LocalPacketMaxTotal.
func (p LocalPacket) MarshalBinary() ([]byte, error) {
	n := p.Len()
	if n == 0 || n > LocalPacketMaxLen {
		return nil, ErrTooLong
	}
	out := make([]byte, 0, 1+n)
	out = append(out, byte(n))
	out = append(out, p.Header.MarshalBinary()...)
	out = append(out, p.Data...)
	return out, nil
}

// UnmarshalLocalPacket decodes a length-prefixed local packet from b
// (without the ESP sync bytes, which the framer strips before calling this).
func UnmarshalLocalPacket(b []byte) (LocalPacket, error) {
	if len(b) < 1 {
		return LocalPacket{}, ErrShortPacket
	}
	n := int(b[0])
	if n == 0 || n > LocalPacketMaxLen || len(b) < 1+n {
		return LocalPacket{}, ErrShortPacket
	}
	body := b[1 : 1+n]
	h, rest, err := UnmarshalHeader(body)
	if err != nil {
		return LocalPacket{}, err
	}
	data := make([]byte, len(rest))
	copy(data, rest)
	return LocalPacket{Header: h, Data: data}, nil
}

// RFPacket is {length byte, header, data, timestamp, MAC, CRC} as carried
// over the radio link (§6 "On-the-wire RF packet framing").
type RFPacket struct {
	Header    Header
	Data      []byte
	Timestamp uint32 // seconds, big-endian on the wire
	MAC       [rfMACSize]byte
	CRC       uint16
}

// Len is the on-wire length byte value: header + data + timestamp + MAC,
// matching the local packet convention of "everything after the length byte"
// minus the CRC, which trails the length-counted region (§3 RF packet entity).
func (p RFPacket) Len() int { return headerSize + len(p.Data) + rfTimestampSize + rfMACSize }

// footerlessBytes returns length-byte + header + data + timestamp + MAC,
// i.e. everything the CRC is computed over.
func (p RFPacket) footerlessBytes() []byte {
	n := p.Len()
	out := make([]byte, 0, 1+n)
	out = append(out, byte(n))
	out = append(out, p.Header.MarshalBinary()...)
	out = append(out, p.Data...)
	var ts [rfTimestampSize]byte
	ts[0] = byte(p.Timestamp >> 24)
	ts[1] = byte(p.Timestamp >> 16)
	ts[2] = byte(p.Timestamp >> 8)
	ts[3] = byte(p.Timestamp)
	out = append(out, ts[:]...)
	out = append(out, p.MAC[:]...)
	return out
}

// CRCCoveredBytes returns the byte range the CRC field must be computed
// over: length byte through MAC field inclusive, excluding the CRC itself.
func (p RFPacket) CRCCoveredBytes() []byte { return p.footerlessBytes() }

// MarshalBinary encodes the full RF packet, CRC field included. Callers
// that need to compute the CRC over CRCCoveredBytes() first should set p.CRC
// before calling this.
func (p RFPacket) MarshalBinary() ([]byte, error) {
	if p.Len()+rfCRCSize+1 > RFPacketMaxTotal {
		return nil, ErrTooLong
	}
	out := p.footerlessBytes()
	out = append(out, byte(p.CRC>>8), byte(p.CRC))
	return out, nil
}

// UnmarshalRFPacket decodes an RF packet from b.
func UnmarshalRFPacket(b []byte) (RFPacket, error) {
	if len(b) < 1 {
		return RFPacket{}, ErrShortPacket
	}
	n := int(b[0])
	total := 1 + n + rfCRCSize
	if n == 0 || len(b) < total {
		return RFPacket{}, ErrShortPacket
	}
	body := b[1 : 1+n]
	h, rest, err := UnmarshalHeader(body)
	if err != nil {
		return RFPacket{}, err
	}
	if len(rest) < rfTimestampSize+rfMACSize {
		return RFPacket{}, ErrShortPacket
	}
	dataLen := len(rest) - rfTimestampSize - rfMACSize
	data := make([]byte, dataLen)
	copy(data, rest[:dataLen])
	rest = rest[dataLen:]

	ts := uint32(rest[0])<<24 | uint32(rest[1])<<16 | uint32(rest[2])<<8 | uint32(rest[3])
	rest = rest[rfTimestampSize:]

	var mac [rfMACSize]byte
	copy(mac[:], rest[:rfMACSize])

	crc := uint16(b[1+n])<<8 | uint16(b[1+n+1])

	return RFPacket{Header: h, Data: data, Timestamp: ts, MAC: mac, CRC: crc}, nil
}
