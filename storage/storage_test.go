package storage

import (
	"path/filepath"
	"testing"
)

func TestStoreDefaults(t *testing.T) {
	s := New()
	if s.GetCallsign() != "UNSET" {
		t.Errorf("default callsign = %q, want UNSET", s.GetCallsign())
	}
}

func TestStoreSetGetRoundTrip(t *testing.T) {
	s := New()
	if err := s.SetCallsign("ALEASAT-1"); err != nil {
		t.Fatalf("SetCallsign: %v", err)
	}
	if got := s.GetCallsign(); got != "ALEASAT-1" {
		t.Errorf("GetCallsign = %q, want ALEASAT-1", got)
	}
	if err := s.SetSimTelemetry(-80, 30, 5); err != nil {
		t.Fatalf("SetSimTelemetry: %v", err)
	}
	rssi, lqi, freqEst := s.GetSimTelemetry()
	if rssi != -80 || lqi != 30 || freqEst != 5 {
		t.Errorf("GetSimTelemetry = (%d,%d,%d), want (-80,30,5)", rssi, lqi, freqEst)
	}
}

func TestFileBackedPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	s1, err := NewFileBacked(path)
	if err != nil {
		t.Fatalf("NewFileBacked: %v", err)
	}
	if err := s1.SetCallsign("ALEASAT-2"); err != nil {
		t.Fatalf("SetCallsign: %v", err)
	}
	if err := s1.SetSimTelemetry(-90, 10, -3); err != nil {
		t.Fatalf("SetSimTelemetry: %v", err)
	}

	s2, err := NewFileBacked(path)
	if err != nil {
		t.Fatalf("reload NewFileBacked: %v", err)
	}
	if got := s2.GetCallsign(); got != "ALEASAT-2" {
		t.Errorf("reloaded callsign = %q, want ALEASAT-2", got)
	}
	rssi, lqi, freqEst := s2.GetSimTelemetry()
	if rssi != -90 || lqi != 10 || freqEst != -3 {
		t.Errorf("reloaded telemetry = (%d,%d,%d), want (-90,10,-3)", rssi, lqi, freqEst)
	}
}

func TestFileBackedMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "does-not-exist.json")

	s, err := NewFileBacked(path)
	if err != nil {
		t.Fatalf("NewFileBacked on missing file: %v", err)
	}
	if s.GetCallsign() != "UNSET" {
		t.Errorf("callsign = %q, want UNSET", s.GetCallsign())
	}
}
