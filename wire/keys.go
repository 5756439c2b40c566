package wire

// Key is a 128-bit AES key.
type Key [16]byte

// KeySlot holds a per-source key plus whether it is populated. An all-zero
// Key is a legitimate (if foolish) key value, so Present — not a zero check
// — is what distinguishes "no key provisioned for this source" from "key
// happens to be all zero bytes" (spec §3's "if a source's key slot is empty,
// packets from that source fail authentication").
type KeySlot struct {
	Key     Key
	Present bool
}

// KeyTable is the per-source/per-destination AES-128 key table described in
// spec §3/§4.6. GS1 and GS2 occupy bootloader-reserved flash slots (read-only
// at runtime in the real firmware; here simply populated at construction
// time from provisioned bytes and never mutated by any setter). ARO lives in
// RAM and is the only slot with a runtime setter. Local has no slot at all.
type KeyTable struct {
	slots map[Destination]KeySlot
}

// NewKeyTable builds a key table with GS1/GS2 keys fixed at construction
// (standing in for bootloader-reserved flash) and no ARO key yet provisioned.
func NewKeyTable(gs1, gs2 Key) *KeyTable {
	return &KeyTable{
		slots: map[Destination]KeySlot{
			GS1: {Key: gs1, Present: true},
			GS2: {Key: gs2, Present: true},
		},
	}
}

// Lookup returns the key slot for dest. The bool result mirrors KeySlot.Present
// so callers don't need to destructure.
func (t *KeyTable) Lookup(dest Destination) (Key, bool) {
	s, ok := t.slots[dest]
	if !ok || !s.Present {
		return Key{}, false
	}
	return s.Key, true
}

// SetAROKey sets the runtime ARO key slot. This is the only key settable
// after construction, exercised by the authenticated SET_ARO_KEY command
// (§4.8).
func (t *KeyTable) SetAROKey(k Key) {
	t.slots[ARO] = KeySlot{Key: k, Present: true}
}

// ClearAROKey removes the ARO key, returning the table to "no key
// provisioned" for that source.
func (t *KeyTable) ClearAROKey() {
	delete(t.slots, ARO)
}
