// Package storage holds the small amount of mutable, persisted-between-boots
// state the command dispatcher reads and writes: the unit's callsign string
// and the simulated radio telemetry sample injected by SET_RADIOTELEM for
// ground-side test tooling (§6). The real firmware keeps this in a
// dedicated flash page; here it's a few in-memory struct fields with an optional
// file-backed mirror, following the same "small persisted key/value set"
// shape as the teacher's appdrivers config fields, generalized to survive a
// process restart when a path is given.
package storage

import (
	"encoding/json"
	"os"
	"sync"
)

// Store holds callsign and simulated-telemetry state behind a mutex. All
// methods are safe for concurrent use from dispatch handlers running on
// different interfaces' goroutines.
type Store struct {
	mu       sync.Mutex
	path     string
	Callsign string

	// SimRSSI/SimLQI/SimFreqEst hold operator-injected values from
	// SET_RADIOTELEM, distinct from telemetry.Counters' latched real samples.
	SimRSSI    int32
	SimLQI     int32
	SimFreqEst int32
}

// New builds an in-memory Store with no file backing.
func New() *Store {
	return &Store{Callsign: "UNSET"}
}

// NewFileBacked builds a Store that loads its initial contents from path (if
// it exists) and rewrites the whole file after every mutation. Load errors
// other than "file does not exist" are returned; a missing file just starts
// from defaults.
func NewFileBacked(path string) (*Store, error) {
	s := &Store{path: path, Callsign: "UNSET"}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var snap storeSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	s.Callsign = snap.Callsign
	s.SimRSSI, s.SimLQI, s.SimFreqEst = snap.SimRSSI, snap.SimLQI, snap.SimFreqEst
	return s, nil
}

type storeSnapshot struct {
	Callsign   string
	SimRSSI    int32
	SimLQI     int32
	SimFreqEst int32
}

func (s *Store) snapshot() storeSnapshot {
	return storeSnapshot{Callsign: s.Callsign, SimRSSI: s.SimRSSI, SimLQI: s.SimLQI, SimFreqEst: s.SimFreqEst}
}

func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.Marshal(s.snapshot())
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

// SetCallsign sets the unit's callsign, persisting if file-backed.
func (s *Store) SetCallsign(callsign string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Callsign = callsign
	return s.persistLocked()
}

// GetCallsign returns the current callsign.
func (s *Store) GetCallsign() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Callsign
}

// SetSimTelemetry sets the operator-injected radio telemetry sample used by
// SET_RADIOTELEM, persisting if file-backed.
func (s *Store) SetSimTelemetry(rssi, lqi, freqEst int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SimRSSI, s.SimLQI, s.SimFreqEst = rssi, lqi, freqEst
	return s.persistLocked()
}

// GetSimTelemetry returns the operator-injected radio telemetry sample.
func (s *Store) GetSimTelemetry() (rssi, lqi, freqEst int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SimRSSI, s.SimLQI, s.SimFreqEst
}
