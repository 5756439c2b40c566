// Package authenticator implements the per-source CBC-MAC + timestamp
// freshness check from spec §4.6, applied symmetrically on receive and
// transmit. It is only ever consulted for RF traffic — local (UART/SPI)
// packets never pass through it.
package authenticator

import (
	"crypto/subtle"
	"time"

	"github.com/jumiknows/aleasat-comms/cbcmac"
	"github.com/jumiknows/aleasat-comms/wire"
)

// Clock returns the current time. A nil Clock on Authenticator means "RTC
// not set" (§4.6's "if real-time clock is set" condition) — an idiomatic Go
// injectable clock rather than a global mutable RTC flag.
type Clock func() time.Time

// Authenticator holds everything needed to verify and sign RF packets for
// one unit: the key table, HWID range resolution, the freshness window, and
// the global bypass toggle.
type Authenticator struct {
	Keys    *wire.KeyTable
	Ranges  *wire.HWIDRanges
	Clock   Clock         // nil => RTC not set, timestamps unchecked
	Window  time.Duration // how far in the past a timestamp may be before rejection
	Enabled bool          // false => bypass mode, all RF traffic accepted
}

// New builds an Authenticator with authentication enabled and no RTC set.
func New(keys *wire.KeyTable, ranges *wire.HWIDRanges, window time.Duration) *Authenticator {
	return &Authenticator{Keys: keys, Ranges: ranges, Window: window, Enabled: true}
}

// VerifyReceived implements the receive-side rules of §4.6 in order:
// resolve source, check the ARO→OBC-only restriction, look up the key,
// honor bypass mode, verify the MAC, then the timestamp window. The
// current time is read from a.Clock; a nil Clock means "RTC not set" and
// skips the timestamp check entirely.
func (a *Authenticator) VerifyReceived(pkt wire.RFPacket, destHWID wire.HWID) error {
	srcDest := a.Ranges.DestFromHWID(pkt.Header.Src)
	if srcDest == wire.Invalid {
		return wire.ErrUnknownHWID
	}
	if srcDest == wire.ARO {
		dstDest := a.Ranges.DestFromHWID(destHWID)
		if dstDest != wire.OBC {
			return wire.ErrAuthFailed
		}
	}

	key, present := a.Keys.Lookup(srcDest)
	if !present {
		return wire.ErrAuthFailed
	}

	if !a.Enabled {
		return nil
	}

	if !verifyMAC(key, pkt) {
		return wire.ErrAuthFailed
	}

	if a.Clock != nil {
		current := a.Clock()
		deadline := time.Unix(int64(pkt.Timestamp), 0).Add(a.Window)
		if current.After(deadline) {
			return wire.ErrAuthFailed
		}
	}
	return nil
}

// verifyMAC recomputes CBC-MAC over length+header+data+timestamp and
// compares it to pkt.MAC in constant time.
func verifyMAC(key wire.Key, pkt wire.RFPacket) bool {
	covered := macCoveredBytes(pkt)
	mac := cbcmac.Sum([16]byte(key), covered)
	return subtle.ConstantTimeCompare(mac[:], pkt.MAC[:]) == 1
}

// macCoveredBytes returns length+header+data+timestamp — everything the MAC
// is computed over, which is the CRC-covered range minus the MAC field
// itself (the MAC can't cover its own bytes).
func macCoveredBytes(pkt wire.RFPacket) []byte {
	all := pkt.CRCCoveredBytes()
	return all[:len(all)-16]
}

// Sign implements the transmit-side rules of §4.6: resolve the destination,
// look up its key, and either zero the timestamp+MAC (bypass) or compute
// them for real. The returned packet always has Timestamp and MAC set
// (possibly to zero), so its length is unchanged either way. ok is false
// only when the destination or its key can't be resolved, matching "abort"
// in the spec.
func (a *Authenticator) Sign(pkt wire.RFPacket, destHWID wire.HWID) (wire.RFPacket, bool) {
	dstDest := a.Ranges.DestFromHWID(destHWID)
	if dstDest == wire.Invalid {
		return wire.RFPacket{}, false
	}
	key, present := a.Keys.Lookup(dstDest)
	if !present {
		return wire.RFPacket{}, false
	}

	if !a.Enabled {
		pkt.Timestamp = 0
		pkt.MAC = [16]byte{}
		return pkt, true
	}

	if a.Clock != nil {
		pkt.Timestamp = uint32(a.Clock().Unix())
	} else {
		pkt.Timestamp = 0
	}
	covered := macCoveredBytes(pkt)
	pkt.MAC = cbcmac.Sum([16]byte(key), covered)
	return pkt, true
}
