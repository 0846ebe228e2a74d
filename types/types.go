package types

import (
	"math"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Window is a signed percentage over a fixed lookback. Set distinguishes a
// reported 0% from a feed that omitted the window.
type Window struct {
	Pct float64
	Set bool
}

// NewWindow returns a present window value
func NewWindow(pct float64) Window {
	return Window{Pct: Finite(pct), Set: true}
}

// PriceChange holds momentum over the windows feeds report
type PriceChange struct {
	M5  Window
	H1  Window
	H6  Window
	H24 Window
}

// TxnCounts holds buy/sell counts over a window
type TxnCounts struct {
	Buys  int
	Sells int
}

// Total returns buys + sells
func (t TxnCounts) Total() int {
	return t.Buys + t.Sells
}

// Candidate is one scanned asset's market snapshot for a cycle.
// Numeric fields are always populated (zero when the feed omitted them).
type Candidate struct {
	Identity  string // normalized, case-folded key
	Address   string // original-case address for lookups and links
	Chain     string
	Venue     string
	Symbol    string
	Name      string
	URL       string
	SourceTag string

	LiquidityUSD float64
	VolumeM5USD  float64
	VolumeH1USD  float64
	VolumeH24USD float64
	MarketCapUSD float64

	PriceChange PriceChange
	TxnsM5      TxnCounts
	TxnsH1      TxnCounts

	CreatedAt time.Time // zero when unknown
}

// Age returns how long ago the candidate was created, and false if unknown
func (c Candidate) Age(now time.Time) (time.Duration, bool) {
	if c.CreatedAt.IsZero() {
		return 0, false
	}
	return now.Sub(c.CreatedAt), true
}

// Label returns the display label used in alerts
func (c Candidate) Label() string {
	if c.Symbol != "" {
		return c.Symbol
	}
	if c.Name != "" {
		return c.Name
	}
	return c.Identity
}

// ScoredCandidate pairs a candidate with its confidence score
type ScoredCandidate struct {
	Candidate Candidate
	Score     int
}

// TrackingEntry is the per-alert record used for follow-up gain reports
type TrackingEntry struct {
	MessageHandle     string    `json:"messageHandle"`
	EntryMarketCapUSD float64   `json:"entryMarketCapUsd"`
	EntryLiquidityUSD float64   `json:"entryLiquidityUsd"`
	SymbolLabel       string    `json:"symbolLabel"`
	Address           string    `json:"address,omitempty"`
	Chain             string    `json:"chain,omitempty"`
	Reported          bool      `json:"reported"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Trackable returns true if a gain can be computed against this entry
func (e TrackingEntry) Trackable() bool {
	return !e.Reported && e.EntryMarketCapUSD > 0
}

// TrackingRef identifies a tracked asset for a feed lookup
type TrackingRef struct {
	Identity string
	Address  string
	Chain    string
}

// Snapshot is the durable form of engine state
type Snapshot struct {
	Version   int                      `json:"version"`
	Alerted   []string                 `json:"alerted"`
	AlertedAt map[string]time.Time     `json:"alertedAt,omitempty"`
	Tracking  map[string]TrackingEntry `json:"tracking"`
	SavedAt   time.Time                `json:"savedAt"`
}

// SnapshotVersion is written with every saved snapshot
const SnapshotVersion = 1

// NewSnapshot returns an empty snapshot
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Version:   SnapshotVersion,
		Alerted:   []string{},
		AlertedAt: make(map[string]time.Time),
		Tracking:  make(map[string]TrackingEntry),
	}
}

// Normalize fills nil collections left by older or partial state files
func (s *Snapshot) Normalize() *Snapshot {
	if s.Alerted == nil {
		s.Alerted = []string{}
	}
	if s.AlertedAt == nil {
		s.AlertedAt = make(map[string]time.Time)
	}
	if s.Tracking == nil {
		s.Tracking = make(map[string]TrackingEntry)
	}
	return s
}

// Finite maps NaN and ±Inf to zero
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// NonNegative maps negative and non-finite values to zero
func NonNegative(v float64) float64 {
	v = Finite(v)
	if v < 0 {
		return 0
	}
	return v
}

// Status is a point-in-time view of engine state for operators
type Status struct {
	Alerted   int       `json:"alerted"`
	Tracking  int       `json:"tracking"`
	Reported  int       `json:"reported"`
	Paused    bool      `json:"paused"`
	StartedAt time.Time `json:"startedAt"`
	LastScan  time.Time `json:"lastScan"`
	LastTrack time.Time `json:"lastTrack"`
	LastSave  time.Time `json:"lastSave"`
}
