package strategy

import (
	"strings"
	"time"

	"github.com/web3guy0/gemcaller/internal/config"
	"github.com/web3guy0/gemcaller/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// FILTER PIPELINE - Ordered predicates, first failure is attributed
// ═══════════════════════════════════════════════════════════════════════════════
//
// Order:
//   trusted_source (bypass) → chain → liquidity → volume → market_cap →
//   momentum → txns → age → keyword
//
// A candidate from a trusted source skips every other predicate.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Predicate names, used in logs and the rejection counter
const (
	PredTrustedSource = "trusted_source"
	PredChain         = "chain"
	PredLiquidity     = "liquidity"
	PredVolume        = "volume"
	PredMarketCap     = "market_cap"
	PredMomentum      = "momentum"
	PredTxns          = "txns"
	PredAge           = "age"
	PredKeyword       = "keyword"
)

// Predicate is one named check
type Predicate struct {
	Name  string
	Check func(c types.Candidate, now time.Time) bool
}

// Verdict is the outcome of running a candidate through the pipeline
type Verdict struct {
	Pass     bool
	Bypassed bool   // passed via the trusted-source policy
	FailedAt string // first failing predicate
}

// Pipeline evaluates candidates against the configured thresholds
type Pipeline struct {
	trusted    map[string]bool
	predicates []Predicate
}

// NewPipeline builds the predicate chain from config
func NewPipeline(cfg config.FilterConfig) *Pipeline {
	p := &Pipeline{trusted: lowerSet(cfg.TrustedSources)}
	chains := lowerSet(cfg.Chains)
	keywords := lowerList(cfg.RequireKeywords)

	p.predicates = []Predicate{
		{PredChain, func(c types.Candidate, _ time.Time) bool {
			return len(chains) == 0 || chains[strings.ToLower(c.Chain)]
		}},
		{PredLiquidity, func(c types.Candidate, _ time.Time) bool {
			return within(c.LiquidityUSD, cfg.MinLiquidityUSD, cfg.MaxLiquidityUSD)
		}},
		{PredVolume, func(c types.Candidate, _ time.Time) bool {
			return within(c.VolumeH1USD, cfg.MinVolumeH1USD, cfg.MaxVolumeH1USD)
		}},
		{PredMarketCap, func(c types.Candidate, _ time.Time) bool {
			return within(c.MarketCapUSD, cfg.MinMarketCapUSD, cfg.MaxMarketCapUSD)
		}},
		{PredMomentum, func(c types.Candidate, _ time.Time) bool {
			if c.PriceChange.H1.Pct < cfg.MinPriceChangeH1 {
				return false
			}
			return cfg.MinPriceChangeM5 == nil || c.PriceChange.M5.Pct >= *cfg.MinPriceChangeM5
		}},
		{PredTxns, func(c types.Candidate, _ time.Time) bool {
			return c.TxnsH1.Total() >= cfg.MinTxnsH1 &&
				c.TxnsH1.Buys >= cfg.MinBuysH1 &&
				c.TxnsH1.Sells >= cfg.MinSellsH1
		}},
		{PredAge, func(c types.Candidate, now time.Time) bool {
			age, known := c.Age(now)
			if !known {
				return true
			}
			if cfg.MinAge > 0 && age < cfg.MinAge {
				return false
			}
			return cfg.MaxAge <= 0 || age <= cfg.MaxAge
		}},
		{PredKeyword, func(c types.Candidate, _ time.Time) bool {
			return len(keywords) == 0 || matchesAny(c, keywords)
		}},
	}

	return p
}

// Order returns predicate names in evaluation order
func (p *Pipeline) Order() []string {
	names := []string{PredTrustedSource}
	for _, pred := range p.predicates {
		names = append(names, pred.Name)
	}
	return names
}

// Evaluate runs c through the pipeline
func (p *Pipeline) Evaluate(c types.Candidate, now time.Time) Verdict {
	if p.Trusted(c.SourceTag) {
		return Verdict{Pass: true, Bypassed: true}
	}
	for _, pred := range p.predicates {
		if !pred.Check(c, now) {
			return Verdict{FailedAt: pred.Name}
		}
	}
	return Verdict{Pass: true}
}

// Trusted reports whether source is on the trusted-source allow-list
func (p *Pipeline) Trusted(source string) bool {
	return source != "" && p.trusted[fold(source)]
}

// within checks min <= v and, when max > 0, v <= max
func within(v, min, max float64) bool {
	if v < min {
		return false
	}
	return max <= 0 || v <= max
}

// matchesAny does a case-insensitive substring match on name and symbol
func matchesAny(c types.Candidate, lowered []string) bool {
	name := strings.ToLower(c.Name)
	symbol := strings.ToLower(c.Symbol)
	for _, kw := range lowered {
		if strings.Contains(name, kw) || strings.Contains(symbol, kw) {
			return true
		}
	}
	return false
}

// fold is the case-insensitive key used for sources, chains and keywords
func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func lowerSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, s := range in {
		if s = fold(s); s != "" {
			out[s] = true
		}
	}
	return out
}

func lowerList(in []string) []string {
	var out []string
	for _, s := range in {
		if s = fold(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
