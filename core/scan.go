package core

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/gemcaller/feeds"
	"github.com/web3guy0/gemcaller/journal"
	"github.com/web3guy0/gemcaller/strategy"
	"github.com/web3guy0/gemcaller/types"
)

// ScanResult summarizes one scan cycle
type ScanResult struct {
	Cycle    string
	Fetched  int // raw records from all adapters
	Unique   int // after dedupe
	Fresh    int // not yet alerted
	Passed   int // passed the filter pipeline
	Selected int
	Sent     int
	Skipped  bool // paused
}

// ScanOnce runs one full cycle: fetch, dedupe, drop alerted, filter, score,
// select and dispatch
func (e *Engine) ScanOnce(ctx context.Context) ScanResult {
	res := ScanResult{Cycle: uuid.NewString()[:8]}
	if e.paused.Load() {
		res.Skipped = true
		log.Debug().Str("cycle", res.Cycle).Msg("Scanning paused")
		return res
	}

	start := e.now()
	defer func() {
		e.mu.Lock()
		e.lastScan = e.now()
		e.mu.Unlock()
		e.metrics.Cycle(time.Since(start))
	}()

	raw := feeds.FetchAll(ctx, e.adapters)
	res.Fetched = len(raw)

	deduped := feeds.Dedupe(raw)
	res.Unique = len(deduped.Ordered)

	now := e.now()
	var scored []types.ScoredCandidate
	for _, c := range deduped.Ordered {
		if e.IsAlerted(c.Identity) {
			continue
		}
		res.Fresh++

		verdict := e.pipeline.Evaluate(c, now)
		if !verdict.Pass {
			e.metrics.Rejected(verdict.FailedAt)
			log.Debug().
				Str("cycle", res.Cycle).
				Str("identity", c.Identity).
				Str("symbol", c.Symbol).
				Str("failed", verdict.FailedAt).
				Msg("Filtered")
			continue
		}
		res.Passed++
		scored = append(scored, types.ScoredCandidate{Candidate: c, Score: e.scorer.Score(c)})
	}

	selected := strategy.Select(scored, e.cfg.Profile.Selector)
	res.Selected = len(selected)
	res.Sent = e.dispatch(ctx, res.Cycle, selected)

	log.Info().
		Str("cycle", res.Cycle).
		Int("fetched", res.Fetched).
		Int("unique", res.Unique).
		Int("fresh", res.Fresh).
		Int("passed", res.Passed).
		Int("selected", res.Selected).
		Int("sent", res.Sent).
		Msg("🔍 Scan complete")
	return res
}

// dispatch alerts each selected candidate in order. The identity is claimed
// and saved before the send, so a failed or slow delivery is never retried.
// The batch stops at the first failure.
func (e *Engine) dispatch(ctx context.Context, cycle string, selected []types.ScoredCandidate) int {
	sent := 0
	for i, sc := range selected {
		if i > 0 && !e.sleep(ctx, e.cfg.DispatchDelay) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		c := sc.Candidate
		if !e.claim(c.Identity) {
			continue
		}
		_ = e.Persist(ctx)

		handle, err := e.notifier.SendAlert(ctx, sc)
		if err != nil {
			e.metrics.Dispatch("failed")
			log.Error().
				Err(err).
				Str("cycle", cycle).
				Str("identity", c.Identity).
				Str("symbol", c.Symbol).
				Msg("❌ Alert failed, stopping batch")
			break
		}

		entry := types.TrackingEntry{
			MessageHandle:     handle,
			EntryMarketCapUSD: c.MarketCapUSD,
			EntryLiquidityUSD: c.LiquidityUSD,
			SymbolLabel:       c.Label(),
			Address:           c.Address,
			Chain:             c.Chain,
			CreatedAt:         e.now(),
		}
		e.mu.Lock()
		e.tracking[c.Identity] = entry
		e.mu.Unlock()
		_ = e.Persist(ctx)

		sent++
		e.metrics.Dispatch("sent")
		log.Info().
			Str("cycle", cycle).
			Str("identity", c.Identity).
			Str("symbol", c.Symbol).
			Str("chain", c.Chain).
			Str("source", c.SourceTag).
			Int("score", sc.Score).
			Float64("mc", c.MarketCapUSD).
			Float64("liq", c.LiquidityUSD).
			Str("handle", handle).
			Msg("🚨 ALERT SENT")

		e.journal.Publish(journal.Event{
			Kind:         journal.KindAlert,
			Identity:     c.Identity,
			Symbol:       c.Label(),
			Chain:        c.Chain,
			Source:       c.SourceTag,
			Score:        sc.Score,
			Handle:       handle,
			MarketCapUSD: c.MarketCapUSD,
			LiquidityUSD: c.LiquidityUSD,
			Cycle:        cycle,
		})
	}
	return sent
}

// claim inserts id into the alerted set, returning false if already present
func (e *Engine) claim(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.alerted[id]; ok {
		return false
	}
	e.alerted[id] = e.now()
	return true
}
