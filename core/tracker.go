package core

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/gemcaller/journal"
	"github.com/web3guy0/gemcaller/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POSITION TRACKER - One-shot gain reports with anti-rug guard
// ═══════════════════════════════════════════════════════════════════════════════
//
//   gain = (currentMC - entryMC) / entryMC * 100
//
//   gain < FLEX_GAIN_PCT                          → wait
//   liq drop ≥ RUG_LIQ_DROP_PCT or liq < floor    → close silently
//   otherwise                                     → reply to the alert
//
// reported only moves false → true. Entries are evicted by age regardless.
//
// ═══════════════════════════════════════════════════════════════════════════════

var hundred = decimal.NewFromInt(100)

// TrackResult summarizes one tracker pass
type TrackResult struct {
	Evicted    int
	Checked    int // entries looked up
	Missing    int // no current metrics this round
	Reported   int
	Suppressed int // closed by the anti-rug guard
	Failed     int // follow-up send failed (still closed)
}

// GainPct computes the percentage change from entry to current market cap.
// entry must be positive.
func GainPct(entryMC, currentMC float64) decimal.Decimal {
	entry := decimal.NewFromFloat(entryMC)
	return decimal.NewFromFloat(types.NonNegative(currentMC)).Sub(entry).Div(entry).Mul(hundred)
}

// Rugged reports whether current liquidity shows a collapse against entry
func (e *Engine) Rugged(entryLiq, currentLiq float64) bool {
	t := e.cfg.Profile.Tracker
	current := decimal.NewFromFloat(types.NonNegative(currentLiq))

	if current.LessThan(decimal.NewFromFloat(t.RugMinLiquidityUSD)) {
		return true
	}
	if entryLiq <= 0 || t.RugLiqDropPct <= 0 {
		return false
	}
	entry := decimal.NewFromFloat(entryLiq)
	drop := entry.Sub(current).Div(entry).Mul(hundred)
	return drop.GreaterThanOrEqual(decimal.NewFromFloat(t.RugLiqDropPct))
}

// TrackOnce evicts expired entries and evaluates every open one
func (e *Engine) TrackOnce(ctx context.Context) TrackResult {
	var res TrackResult
	now := e.now()

	e.mu.Lock()
	if maxAge := e.cfg.TrackingMaxAge; maxAge > 0 {
		for id, entry := range e.tracking {
			if now.Sub(entry.CreatedAt) > maxAge {
				delete(e.tracking, id)
				res.Evicted++
			}
		}
	}
	if keep := e.cfg.AlertedRetention; keep > 0 {
		for id, at := range e.alerted {
			if _, tracked := e.tracking[id]; !tracked && now.Sub(at) > keep {
				delete(e.alerted, id)
				res.Evicted++
			}
		}
	}

	var refs []types.TrackingRef
	for id, entry := range e.tracking {
		if !entry.Trackable() {
			continue
		}
		addr := entry.Address
		if addr == "" {
			addr = id
		}
		refs = append(refs, types.TrackingRef{Identity: id, Address: addr, Chain: entry.Chain})
	}
	e.lastTrack = now
	e.mu.Unlock()

	if res.Evicted > 0 {
		log.Info().Int("evicted", res.Evicted).Msg("🗑️ Evicted expired entries")
		_ = e.Persist(ctx)
	}
	if len(refs) == 0 || e.quoter == nil {
		return res
	}

	current := e.quoter.Lookup(ctx, refs)
	flex := decimal.NewFromFloat(e.cfg.Profile.Tracker.FlexGainPct)

	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		res.Checked++

		cur, ok := current[ref.Identity]
		if !ok {
			res.Missing++
			log.Debug().Str("identity", ref.Identity).Msg("No current metrics, retry next round")
			continue
		}

		e.mu.Lock()
		entry, ok := e.tracking[ref.Identity]
		e.mu.Unlock()
		if !ok || !entry.Trackable() {
			continue
		}

		gain := GainPct(entry.EntryMarketCapUSD, cur.MarketCapUSD)
		if gain.LessThan(flex) {
			continue
		}

		if e.Rugged(entry.EntryLiquidityUSD, cur.LiquidityUSD) {
			e.markReported(ref.Identity)
			_ = e.Persist(ctx)
			res.Suppressed++
			e.metrics.Report("rug_suppressed")
			log.Warn().
				Str("identity", ref.Identity).
				Str("symbol", entry.SymbolLabel).
				Str("gain", gain.StringFixed(1)).
				Float64("entry_liq", entry.EntryLiquidityUSD).
				Float64("liq", cur.LiquidityUSD).
				Msg("🪤 Liquidity collapse, gain report suppressed")
			e.journal.Publish(e.gainEvent(journal.KindRugSkipped, ref.Identity, entry, cur, gain))
			continue
		}

		e.markReported(ref.Identity)
		_ = e.Persist(ctx)

		if err := e.notifier.SendFollowUp(ctx, entry.MessageHandle, entry, cur, gain); err != nil {
			res.Failed++
			e.metrics.Report("failed")
			log.Error().
				Err(err).
				Str("identity", ref.Identity).
				Str("symbol", entry.SymbolLabel).
				Msg("❌ Gain report failed, entry closed")
			continue
		}

		res.Reported++
		e.metrics.Report("sent")
		log.Info().
			Str("identity", ref.Identity).
			Str("symbol", entry.SymbolLabel).
			Str("gain", gain.StringFixed(1)+"%").
			Msg("🚀 GAIN REPORTED")
		e.journal.Publish(e.gainEvent(journal.KindGainReport, ref.Identity, entry, cur, gain))
	}

	return res
}

func (e *Engine) markReported(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.tracking[id]; ok {
		entry.Reported = true
		e.tracking[id] = entry
	}
}

func (e *Engine) gainEvent(kind, id string, entry types.TrackingEntry, cur types.Candidate, gain decimal.Decimal) journal.Event {
	return journal.Event{
		Kind:         kind,
		Identity:     id,
		Symbol:       entry.SymbolLabel,
		Chain:        entry.Chain,
		Handle:       entry.MessageHandle,
		MarketCapUSD: cur.MarketCapUSD,
		LiquidityUSD: cur.LiquidityUSD,
		GainPct:      gain.StringFixed(2),
	}
}
