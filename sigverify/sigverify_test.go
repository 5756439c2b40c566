package sigverify

import (
	"testing"

	"github.com/jumiknows/aleasat-comms/cbcmac"
	"github.com/jumiknows/aleasat-comms/wire"
)

func mkKey(b byte) wire.Key {
	var k wire.Key
	for i := range k {
		k[i] = b
	}
	return k
}

func TestVerifyAcceptsAnyMatchingKey(t *testing.T) {
	image := make([]byte, 32)
	for i := range image {
		image[i] = byte(i)
	}
	keys := []wire.Key{mkKey(1), mkKey(2), mkKey(3)}

	for slot, k := range keys {
		sig := cbcmac.Sum([16]byte(k), image)
		if !Verify(keys, image, sig) {
			t.Errorf("signature valid under key slot %d was rejected", slot)
		}
	}
}

func TestVerifyRejectsSignatureValidUnderNoKey(t *testing.T) {
	image := make([]byte, 32)
	keys := []wire.Key{mkKey(1), mkKey(2), mkKey(3)}
	var bogus [16]byte
	bogus[0] = 0xFF
	if Verify(keys, image, bogus) {
		t.Errorf("signature not matching any key was accepted")
	}
}

func TestVerifyTriesEveryKeyRegardlessOfMatchPosition(t *testing.T) {
	image := make([]byte, 16)
	keys := []wire.Key{mkKey(1), mkKey(2), mkKey(3), mkKey(4)}

	// Match on the first key.
	sigFirst := cbcmac.Sum([16]byte(keys[0]), image)
	_, triedFirst := verifyCounted(keys, image, sigFirst)

	// Match on the last key.
	sigLast := cbcmac.Sum([16]byte(keys[len(keys)-1]), image)
	_, triedLast := verifyCounted(keys, image, sigLast)

	// No match at all.
	var noMatch [16]byte
	_, triedNone := verifyCounted(keys, image, noMatch)

	if triedFirst != len(keys) || triedLast != len(keys) || triedNone != len(keys) {
		t.Errorf("key examination count depended on match position: first=%d last=%d none=%d, want %d each",
			triedFirst, triedLast, triedNone, len(keys))
	}
}

func TestVerifyEmptyKeyListRejects(t *testing.T) {
	if Verify(nil, []byte{1, 2, 3}, [16]byte{}) {
		t.Errorf("Verify with no keys accepted a signature")
	}
}
