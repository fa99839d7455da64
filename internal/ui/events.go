package ui

import "time"

// EventType classifies sniffer events for the UI.
type EventType int

const (
	EvtSYN        EventType = iota // SYN seen, classification disabled
	EvtClassified                  // SYN seen and classified
	EvtCleared                     // classification cache was emptied
	EvtInfo
	EvtDone
)

// HostEvent is a single event emitted by the sniffer to the UI.
type HostEvent struct {
	Type    EventType
	IP      string
	Port    uint16
	TTL     int
	Window  int
	MSS     int // 0 when absent
	Options string
	OS      string // best guess
	Score   string // "s/11.5"
	Exact   bool   // best guess scored the perfect score
	Guesses []string
	Msg     string // for EvtInfo
}

// SniffStats contains periodic counters for the UI.
type SniffStats struct {
	Frames       uint64
	SYNs         uint64
	Classified   uint64
	DecodeErrors uint64
	Drops        uint64
	Elapsed      time.Duration
	Rate         float64 // SYNs per second
}

// Mode selects the UI output mode.
type Mode int

const (
	ModeTUI    Mode = iota // full bubbletea interactive
	ModeText               // one line per event
	ModeSilent             // no terminal output
)
