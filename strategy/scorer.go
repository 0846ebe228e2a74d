package strategy

import (
	"github.com/web3guy0/gemcaller/internal/config"
	"github.com/web3guy0/gemcaller/types"
)

// MaxScore is the highest score the scorer can produce. 100 is reserved for
// "never computed".
const MaxScore = 99

// Scorer computes a bounded confidence score from candidate metrics
type Scorer struct {
	cfg      config.ScoringConfig
	trusted  map[string]bool
	keywords []string
}

// NewScorer creates a new scorer
func NewScorer(cfg config.ScoringConfig) *Scorer {
	return &Scorer{
		cfg:      cfg,
		trusted:  lowerSet(cfg.TrustedSources),
		keywords: lowerList(cfg.WatchKeywords),
	}
}

// Score returns an integer in [0, MaxScore]. It is additive:
//
//	base
//	+ momentum: H1 change / divisor, capped (negative momentum adds nothing)
//	+ txn bonus when buys and sells both clear their minimums
//	+ each liquidity tier reached
//	+ trusted-source bonus
//	+ watch-list keyword bonus
func (s *Scorer) Score(c types.Candidate) int {
	total := float64(s.cfg.Base)

	if h1 := types.Finite(c.PriceChange.H1.Pct); h1 > 0 && s.cfg.MomentumDivisor > 0 {
		m := h1 / s.cfg.MomentumDivisor
		if limit := float64(s.cfg.MomentumCap); m > limit {
			m = limit
		}
		total += float64(int(m))
	}

	if c.TxnsH1.Buys >= s.cfg.TxnMinBuys && c.TxnsH1.Sells >= s.cfg.TxnMinSells {
		total += float64(s.cfg.TxnBonus)
	}

	liq := types.NonNegative(c.LiquidityUSD)
	for _, tier := range s.cfg.LiquidityTiers {
		if liq >= tier.Min {
			total += float64(tier.Bonus)
		}
	}

	if c.SourceTag != "" && s.trusted[fold(c.SourceTag)] {
		total += float64(s.cfg.TrustedBonus)
	}

	if len(s.keywords) > 0 && matchesAny(c, s.keywords) {
		total += float64(s.cfg.KeywordBonus)
	}

	switch {
	case total < 0:
		return 0
	case total > MaxScore:
		return MaxScore
	}
	return int(total)
}
