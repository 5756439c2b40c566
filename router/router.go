// Package router implements the routing table from spec §4.7: destination
// lookup by HWID range, the source×destination action matrix, and the
// dest→interface forwarding table. It exposes two pure functions and one
// table, exactly as the spec frames it — Table carries no mutable state.
package router

import "github.com/jumiknows/aleasat-comms/wire"

// Action is the routing disposition for a packet.
type Action int

const (
	Drop Action = iota
	Forward
	Handle
)

// Interface identifies an outbound physical interface.
type Interface int

const (
	IfaceInvalid Interface = iota
	IfaceUART
	IfaceSPI
	IfaceRF
)

// Table holds the constant routing matrix and interface-assignment table
// plus the HWID ranges needed to resolve an inbound packet's logical
// source/destination. It is safe for concurrent read-only use, since
// nothing here is ever mutated after construction.
type Table struct {
	ranges *wire.HWIDRanges
}

// NewTable builds a routing table bound to this unit's own HWID ranges
// (so DestFromHWID can recognize Comms == self).
func NewTable(ranges *wire.HWIDRanges) *Table {
	return &Table{ranges: ranges}
}

// DestFromHWID resolves h to a logical destination via a linear search over
// the range table, or wire.Invalid if h maps to nothing.
func (t *Table) DestFromHWID(h wire.HWID) wire.Destination {
	return t.ranges.DestFromHWID(h)
}

// action[src][dst] encodes the policy from §4.7:
//   - OBC may FORWARD to any non-self destination; its packets to Comms
//     are HANDLEd (as are GS1's and GS2's).
//   - Comms (self) never originates traffic to another destination — all
//     DROP. Only replies produced by the command dispatcher reach the wire,
//     which bypasses this matrix entirely (it's a local HANDLE reply, not a
//     routed packet).
//   - GS1/GS2 may reach anywhere except ARO.
//   - ARO may only reach OBC.
//   - Local is not a valid routing source or destination in this matrix;
//     local-debug traffic is handled directly by the dispatcher instead.
var actionMatrix = map[wire.Destination]map[wire.Destination]Action{
	wire.OBC: {
		wire.OBC:   Drop, // no self-routes
		wire.Comms: Handle,
		wire.GS1:   Forward,
		wire.GS2:   Forward,
		wire.ARO:   Forward,
	},
	wire.Comms: {
		wire.OBC: Drop,
		wire.GS1: Drop,
		wire.GS2: Drop,
		wire.ARO: Drop,
	},
	wire.GS1: {
		wire.OBC:   Forward,
		wire.Comms: Handle,
		wire.GS2:   Forward,
	},
	wire.GS2: {
		wire.OBC:   Forward,
		wire.Comms: Handle,
		wire.GS1:   Forward,
	},
	wire.ARO: {
		wire.OBC: Forward,
	},
}

// Action returns the routing action for a packet from src addressed to dst.
// Any src or dst that doesn't resolve to a known logical destination is
// dropped, per §4.7's invariant.
func (t *Table) Action(src, dst wire.Destination) Action {
	if src == wire.Invalid || dst == wire.Invalid {
		return Drop
	}
	row, ok := actionMatrix[src]
	if !ok {
		return Drop
	}
	a, ok := row[dst]
	if !ok {
		return Drop
	}
	return a
}

// interfaceTable is the direction-of-forwarding table: which physical
// interface reaches a given logical destination.
var interfaceTable = map[wire.Destination]Interface{
	wire.OBC:   IfaceSPI,
	wire.GS1:   IfaceRF,
	wire.GS2:   IfaceRF,
	wire.ARO:   IfaceRF,
	wire.Local: IfaceUART,
	wire.Comms: IfaceInvalid,
}

// InterfaceOf returns the outbound interface used to reach dst.
func (t *Table) InterfaceOf(dst wire.Destination) Interface {
	if iface, ok := interfaceTable[dst]; ok {
		return iface
	}
	return IfaceInvalid
}

// Route is the per-inbound-packet decision described in §4.7: if dst is
// this unit, the action is always Handle regardless of what the matrix
// says (the matrix only governs foreign-to-foreign forwarding); otherwise
// the matrix and interface table are consulted directly.
func (t *Table) Route(srcHWID, dstHWID wire.HWID) (Action, Interface) {
	src := t.DestFromHWID(srcHWID)
	dst := t.DestFromHWID(dstHWID)
	if dst == wire.Comms && dst != wire.Invalid {
		return Handle, IfaceInvalid
	}
	action := t.Action(src, dst)
	if action != Forward {
		return Drop, IfaceInvalid
	}
	return Forward, t.InterfaceOf(dst)
}
