package router

import (
	"testing"

	"github.com/jumiknows/aleasat-comms/wire"
)

func newTestTable() *Table {
	return NewTable(wire.NewHWIDRanges(0x9001)) // arbitrary provisioned COMMS HWID outside other ranges
}

func TestRoutingMatrixMatchesSpec(t *testing.T) {
	tbl := newTestTable()
	cases := []struct {
		src, dst wire.Destination
		want     Action
	}{
		{wire.OBC, wire.GS1, Forward},
		{wire.OBC, wire.GS2, Forward},
		{wire.OBC, wire.ARO, Forward},
		{wire.OBC, wire.Comms, Handle},
		{wire.Comms, wire.OBC, Drop},
		{wire.Comms, wire.GS1, Drop},
		{wire.Comms, wire.ARO, Drop},
		{wire.GS1, wire.OBC, Forward},
		{wire.GS1, wire.GS2, Forward},
		{wire.GS1, wire.ARO, Drop},
		{wire.GS1, wire.Comms, Handle},
		{wire.GS2, wire.OBC, Forward},
		{wire.GS2, wire.ARO, Drop},
		{wire.ARO, wire.OBC, Forward},
		{wire.ARO, wire.GS1, Drop},
		{wire.ARO, wire.Comms, Drop},
	}
	for _, c := range cases {
		if got := tbl.Action(c.src, c.dst); got != c.want {
			t.Errorf("Action(%v, %v) = %v, want %v", c.src, c.dst, got, c.want)
		}
	}
}

func TestUnknownHWIDAlwaysDropped(t *testing.T) {
	tbl := newTestTable()
	unknownSrc := wire.HWID(0x1234)
	knownDst := wire.HWID(0x8000) // GS1

	action, _ := tbl.Route(unknownSrc, knownDst)
	if action != Drop {
		t.Errorf("Route from unknown src = %v, want Drop", action)
	}

	action, _ = tbl.Route(knownDst, unknownSrc)
	if action != Drop {
		t.Errorf("Route to unknown dst = %v, want Drop", action)
	}
}

func TestDestFromHWIDRanges(t *testing.T) {
	tbl := newTestTable()
	cases := []struct {
		h    wire.HWID
		want wire.Destination
	}{
		{0x7000, wire.OBC},
		{0x701F, wire.OBC},
		{0x7020, wire.Invalid},
		{0x8000, wire.GS1},
		{0x8020, wire.GS2},
		{0xE000, wire.ARO},
		{0xEFFF, wire.ARO},
		{0xFFFF, wire.Local},
		{0x9001, wire.Comms},
	}
	for _, c := range cases {
		if got := tbl.DestFromHWID(c.h); got != c.want {
			t.Errorf("DestFromHWID(%#04x) = %v, want %v", c.h, got, c.want)
		}
	}
}

func TestInterfaceOfTable(t *testing.T) {
	tbl := newTestTable()
	cases := []struct {
		dst  wire.Destination
		want Interface
	}{
		{wire.OBC, IfaceSPI},
		{wire.GS1, IfaceRF},
		{wire.GS2, IfaceRF},
		{wire.ARO, IfaceRF},
		{wire.Local, IfaceUART},
		{wire.Comms, IfaceInvalid},
	}
	for _, c := range cases {
		if got := tbl.InterfaceOf(c.dst); got != c.want {
			t.Errorf("InterfaceOf(%v) = %v, want %v", c.dst, got, c.want)
		}
	}
}

func TestRouteToSelfIsHandleRegardlessOfMatrix(t *testing.T) {
	tbl := newTestTable()
	action, _ := tbl.Route(0xE000, 0x9001) // ARO -> COMMS
	if action != Handle {
		t.Errorf("Route to self = %v, want Handle", action)
	}
}
