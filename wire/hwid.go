// Package wire defines the on-the-wire packet shapes, HWID address space, and
// flash layout shared by every other package in this module. It holds no
// behavior beyond encode/decode and table lookups; everything stateful lives
// in the packages that consume it.
package wire

// HWID is the 16-bit hardware identifier used as source/destination address
// on the wire.
type HWID uint16

// Destination is a logical address class that one or more HWID ranges map
// onto.
type Destination int

// Logical destinations. INVALID is the zero value so an unset Destination
// is never mistaken for a valid one.
const (
	Invalid Destination = iota
	OBC
	Comms
	GS1
	GS2
	ARO
	Local
)

func (d Destination) String() string {
	switch d {
	case OBC:
		return "OBC"
	case Comms:
		return "COMMS"
	case GS1:
		return "GS1"
	case GS2:
		return "GS2"
	case ARO:
		return "ARO"
	case Local:
		return "LOCAL"
	default:
		return "INVALID"
	}
}

// hwidRange is one entry of the dest-to-range table.
type hwidRange struct {
	dest       Destination
	start, end HWID
}

// DefaultRanges are the suggested-default HWID ranges from the spec's HWID
// table (§6). COMMS itself is excluded here because it is read from flash at
// boot (see FlashLayout) rather than from a fixed range.
var DefaultRanges = []hwidRange{
	{OBC, 0x7000, 0x701F},
	{GS1, 0x8000, 0x801F},
	{GS2, 0x8020, 0x803F},
	{ARO, 0xE000, 0xEFFF},
	{Local, 0xFFFF, 0xFFFF},
}

// HWIDRanges maps a Destination to the range(s) that resolve to it, and is
// the data consulted by DestFromHWID. CommsHWID is supplied by the caller
// (loaded from provisioned flash at boot) because it is not a fixed range.
type HWIDRanges struct {
	Ranges    []hwidRange
	CommsHWID HWID
}

// NewHWIDRanges builds a ranges table from the suggested defaults plus the
// unit's own provisioned HWID.
func NewHWIDRanges(commsHWID HWID) *HWIDRanges {
	return &HWIDRanges{Ranges: DefaultRanges, CommsHWID: commsHWID}
}

// DestFromHWID performs the linear search over the dest-to-range table
// described in spec §4.7, returning the first destination whose range
// contains h, or Invalid. The unit's own HWID always resolves to Comms,
// checked before the range table since COMMS is not itself a range.
func (r *HWIDRanges) DestFromHWID(h HWID) Destination {
	if h == r.CommsHWID {
		return Comms
	}
	for _, rg := range r.Ranges {
		if h >= rg.start && h <= rg.end {
			return rg.dest
		}
	}
	return Invalid
}
