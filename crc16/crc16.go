// Package crc16 computes the CRC-16 checksum used as the outermost integrity
// check of every RF packet (spec §4.2). The API shape mirrors the standard
// library's hash/crc32: a precomputed table, a one-shot Checksum helper, and
// an incremental Update for callers that want to feed bytes as they arrive.
package crc16

// Polynomial is the CRC-16/ARC polynomial (reversed 0xA001), the common
// choice for link-layer framing checksums and the one this firmware's
// outermost RF packet check uses.
const Polynomial = 0xA001

var table [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i)
		for b := 0; b < 8; b++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ Polynomial
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
}

// Update folds buf into the running CRC value crc, returning the new value.
// Callers checksumming a fresh buffer should start with crc = 0.
func Update(crc uint16, buf []byte) uint16 {
	for _, b := range buf {
		crc = (crc >> 8) ^ table[byte(crc)^b]
	}
	return crc
}

// Checksum computes the CRC-16 of buf in one call, covering every byte in
// buf — callers are responsible for passing exactly the range the spec
// requires covered (length byte through MAC field for an RF packet, §4.2).
func Checksum(buf []byte) uint16 {
	return Update(0, buf)
}
