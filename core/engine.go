package core

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/gemcaller/bot"
	"github.com/web3guy0/gemcaller/feeds"
	"github.com/web3guy0/gemcaller/internal/config"
	"github.com/web3guy0/gemcaller/internal/metrics"
	"github.com/web3guy0/gemcaller/journal"
	"github.com/web3guy0/gemcaller/storage"
	"github.com/web3guy0/gemcaller/strategy"
	"github.com/web3guy0/gemcaller/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Feeds → Dedupe → Filter → Score → Select → Claim+Save → Alert → Track
//
// Loops:
//   scan    every SCAN_INTERVAL + jitter, re-armed after each cycle
//   track   every TRACK_INTERVAL
//   save    every SAVE_INTERVAL
//
// ═══════════════════════════════════════════════════════════════════════════════

// Deps are the engine's collaborators. Journal and Metrics may be nil.
type Deps struct {
	Adapters []feeds.Adapter
	Quoter   feeds.Quoter
	Notifier bot.Notifier
	Store    storage.Store
	Journal  *journal.Journal
	Metrics  *metrics.Registry
}

type Engine struct {
	mu     sync.Mutex
	saveMu sync.Mutex

	cfg      *config.Config
	adapters []feeds.Adapter
	quoter   feeds.Quoter
	notifier bot.Notifier
	store    storage.Store
	journal  *journal.Journal
	metrics  *metrics.Registry
	pipeline *strategy.Pipeline
	scorer   *strategy.Scorer

	// State
	alerted  map[string]time.Time
	tracking map[string]types.TrackingEntry

	startedAt time.Time
	lastScan  time.Time
	lastTrack time.Time
	lastSave  time.Time

	paused    atomic.Bool
	scanBusy  atomic.Bool
	trackBusy atomic.Bool
	saveBusy  atomic.Bool
	sleep     func(ctx context.Context, d time.Duration) bool
	now       func() time.Time
}

// NewEngine creates a new engine with empty state. Call Load to restore.
func NewEngine(cfg *config.Config, deps Deps) *Engine {
	e := &Engine{
		cfg:      cfg,
		adapters: deps.Adapters,
		quoter:   deps.Quoter,
		notifier: deps.Notifier,
		store:    deps.Store,
		journal:  deps.Journal,
		metrics:  deps.Metrics,
		pipeline: strategy.NewPipeline(cfg.Profile.Filter),
		scorer:   strategy.NewScorer(cfg.Profile.Scoring),
		alerted:  make(map[string]time.Time),
		tracking: make(map[string]types.TrackingEntry),
		sleep:    sleepCtx,
		now:      time.Now,
	}
	e.startedAt = e.now()
	return e
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATE
// ═══════════════════════════════════════════════════════════════════════════════

// Load restores state from the store, replacing anything in memory
func (e *Engine) Load(ctx context.Context) error {
	snap, err := e.store.Load(ctx)
	if err != nil {
		return err
	}
	snap.Normalize()
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.alerted = make(map[string]time.Time, len(snap.Alerted))
	for _, id := range snap.Alerted {
		if id == "" {
			continue
		}
		at := snap.AlertedAt[id]
		if at.IsZero() {
			at = now
		}
		e.alerted[id] = at
	}

	e.tracking = make(map[string]types.TrackingEntry, len(snap.Tracking))
	for id, entry := range snap.Tracking {
		if id == "" {
			continue
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = now
		}
		e.tracking[id] = entry
		if _, ok := e.alerted[id]; !ok {
			e.alerted[id] = entry.CreatedAt
		}
	}

	e.metrics.StateSize(len(e.alerted), len(e.tracking))
	log.Info().
		Int("alerted", len(e.alerted)).
		Int("tracking", len(e.tracking)).
		Msg("📂 State restored")
	return nil
}

// Snapshot copies the current state
func (e *Engine) Snapshot() *types.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() *types.Snapshot {
	snap := types.NewSnapshot()
	for id, at := range e.alerted {
		snap.Alerted = append(snap.Alerted, id)
		snap.AlertedAt[id] = at
	}
	sort.Strings(snap.Alerted)
	for id, entry := range e.tracking {
		snap.Tracking[id] = entry
	}
	snap.SavedAt = e.now().UTC()
	return snap
}

// Persist writes the current state. Saves are serialized so a later snapshot
// is never overwritten by an earlier one.
func (e *Engine) Persist(ctx context.Context) error {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	snap := e.snapshotLocked()
	e.mu.Unlock()

	if err := e.store.Save(ctx, snap); err != nil {
		e.metrics.Save(false)
		log.Error().Err(err).Msg("💾 State save failed, will retry")
		return err
	}

	e.mu.Lock()
	e.lastSave = e.now()
	e.mu.Unlock()

	e.metrics.Save(true)
	e.metrics.StateSize(len(snap.Alerted), len(snap.Tracking))
	return nil
}

// IsAlerted reports whether id has been claimed
func (e *Engine) IsAlerted(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.alerted[id]
	return ok
}

// Tracked returns the tracking entry for id
func (e *Engine) Tracked(id string) (types.TrackingEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.tracking[id]
	return entry, ok
}

// ═══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ═══════════════════════════════════════════════════════════════════════════════

// Status returns counters and loop timestamps
func (e *Engine) Status() types.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	reported := 0
	for _, entry := range e.tracking {
		if entry.Reported {
			reported++
		}
	}
	return types.Status{
		Alerted:   len(e.alerted),
		Tracking:  len(e.tracking),
		Reported:  reported,
		Paused:    e.paused.Load(),
		StartedAt: e.startedAt,
		LastScan:  e.lastScan,
		LastTrack: e.lastTrack,
		LastSave:  e.lastSave,
	}
}

// Reset clears the alerted set and tracking map and saves. Memory is cleared
// even if the save fails.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	n := len(e.alerted)
	e.alerted = make(map[string]time.Time)
	e.tracking = make(map[string]types.TrackingEntry)
	e.mu.Unlock()

	log.Warn().Int("cleared", n).Msg("🧹 State reset")
	return e.Persist(ctx)
}

// Pause stops new scans. Tracking continues.
func (e *Engine) Pause() {
	e.paused.Store(true)
}

// Resume re-enables scans
func (e *Engine) Resume() {
	e.paused.Store(false)
}

// ═══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ═══════════════════════════════════════════════════════════════════════════════

// Run scans immediately, then drives the scan, track and save loops until ctx
// is cancelled. A final save is made on the way out.
func (e *Engine) Run(ctx context.Context) {
	log.Info().
		Dur("scan", e.cfg.ScanInterval).
		Dur("jitter", e.cfg.ScanJitter).
		Dur("track", e.cfg.TrackInterval).
		Dur("save", e.cfg.SaveInterval).
		Int("adapters", len(e.adapters)).
		Msg("⚡ Engine started")

	e.runScan(ctx)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); e.scanLoop(ctx) }()
	go func() { defer wg.Done(); e.tickLoop(ctx, e.cfg.TrackInterval, e.runTrack) }()
	go func() { defer wg.Done(); e.tickLoop(ctx, e.cfg.SaveInterval, e.runSave) }()

	<-ctx.Done()
	wg.Wait()

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Persist(saveCtx); err == nil {
		log.Info().Msg("💾 Final state saved")
	}
	log.Info().Msg("Engine stopped")
}

func (e *Engine) scanLoop(ctx context.Context) {
	timer := time.NewTimer(e.nextScanDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.runScan(ctx)
			timer.Reset(e.nextScanDelay())
		}
	}
}

// tickLoop runs fn on every tick. Runs may overlap ticks; fn guards itself.
func (e *Engine) tickLoop(ctx context.Context, every time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				fn(ctx)
			}()
		}
	}
}

func (e *Engine) nextScanDelay() time.Duration {
	d := e.cfg.ScanInterval
	if e.cfg.ScanJitter > 0 {
		d += time.Duration(rand.Int63n(int64(e.cfg.ScanJitter)))
	}
	return d
}

func (e *Engine) runScan(ctx context.Context) {
	if !e.scanBusy.CompareAndSwap(false, true) {
		e.metrics.Skipped("scan")
		log.Debug().Msg("Scan still running, skipping trigger")
		return
	}
	defer e.scanBusy.Store(false)
	e.ScanOnce(ctx)
}

func (e *Engine) runTrack(ctx context.Context) {
	if !e.trackBusy.CompareAndSwap(false, true) {
		e.metrics.Skipped("track")
		log.Debug().Msg("Tracker still running, skipping trigger")
		return
	}
	defer e.trackBusy.Store(false)
	e.TrackOnce(ctx)
}

func (e *Engine) runSave(ctx context.Context) {
	if !e.saveBusy.CompareAndSwap(false, true) {
		e.metrics.Skipped("save")
		log.Debug().Msg("Save still running, skipping trigger")
		return
	}
	defer e.saveBusy.Store(false)
	_ = e.Persist(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
