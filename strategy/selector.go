package strategy

import (
	"sort"

	"github.com/web3guy0/gemcaller/internal/config"
	"github.com/web3guy0/gemcaller/types"
)

// Select picks the candidates to alert this cycle: everything at or above the
// score floor, highest score first, ties kept in first-seen order, truncated
// to one (single mode) or the batch size.
func Select(scored []types.ScoredCandidate, cfg config.SelectorConfig) []types.ScoredCandidate {
	limit := 1
	if cfg.Mode == "batch" && cfg.BatchSize > 1 {
		limit = cfg.BatchSize
	}

	eligible := make([]types.ScoredCandidate, 0, len(scored))
	for _, sc := range scored {
		if sc.Score >= cfg.MinScore {
			eligible = append(eligible, sc)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Score > eligible[j].Score
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible
}
