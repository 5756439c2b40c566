// Package sigverify implements the signed-image verifier from spec §4.3:
// CBC-MAC of the application flash region under up to wire.MaxSigKeys keys,
// accepted if any one key's MAC matches the stored signature.
package sigverify

import (
	"crypto/subtle"

	"github.com/jumiknows/aleasat-comms/cbcmac"
	"github.com/jumiknows/aleasat-comms/wire"
)

// Verify computes CBC-MAC(image) under every key in keys and compares each
// result to signature using crypto/subtle.ConstantTimeCompare. Every key is
// tried even after a match is found, per the spec's explicit timing-attack
// resistance policy — the loop never returns early.
func Verify(keys []wire.Key, image []byte, signature [16]byte) bool {
	ok, _ := verifyCounted(keys, image, signature)
	return ok
}

// verifyCounted is the same verification but also reports how many keys
// were examined, so tests can assert the loop never exits early regardless
// of where (or whether) a match occurs.
func verifyCounted(keys []wire.Key, image []byte, signature [16]byte) (bool, int) {
	match := 0
	tried := 0
	for _, k := range keys {
		mac := cbcmac.Sum([16]byte(k), image)
		match |= subtle.ConstantTimeCompare(mac[:], signature[:])
		tried++
	}
	return match == 1, tried
}
