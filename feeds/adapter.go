package feeds

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/gemcaller/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// FEED ADAPTERS - Normalized candidate sources
// ═══════════════════════════════════════════════════════════════════════════════
//
// Adapters never fail the caller: a broken source yields zero candidates for
// the cycle and a warning in the log.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Adapter produces normalized candidates from one market-data source
type Adapter interface {
	Name() string
	Fetch(ctx context.Context) []types.Candidate
}

// Quoter resolves current metrics for tracked assets, keyed by identity.
// Assets the source does not know are absent from the result.
type Quoter interface {
	Lookup(ctx context.Context, refs []types.TrackingRef) map[string]types.Candidate
}

// FetchAll runs every adapter concurrently and concatenates their results in
// adapter order
func FetchAll(ctx context.Context, adapters []Adapter) []types.Candidate {
	results := make([][]types.Candidate, len(adapters))

	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a Adapter) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("adapter", a.Name()).Msg("Adapter panicked")
				}
			}()
			results[i] = a.Fetch(ctx)
		}(i, a)
	}
	wg.Wait()

	var all []types.Candidate
	for i, r := range results {
		log.Debug().Str("adapter", adapters[i].Name()).Int("candidates", len(r)).Msg("Feed fetched")
		all = append(all, r...)
	}
	return all
}
