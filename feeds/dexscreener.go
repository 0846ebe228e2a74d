package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/gemcaller/internal/config"
	"github.com/web3guy0/gemcaller/internal/metrics"
	"github.com/web3guy0/gemcaller/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DEXSCREENER FEED
// ═══════════════════════════════════════════════════════════════════════════════
//
// Discovery: latest token profiles + latest boosts + optional search queries
// Resolution: /tokens/v1/{chain}/{addresses} (30 addresses per call)
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	SourceProfile = "dex_profile"
	SourceBoost   = "dex_boost"
	SourceSearch  = "dex_search"

	dexBatchSize = 30
)

// dexPair is the subset of a DexScreener pair the engine reads. Windows are
// maps so a missing key can be told apart from a reported zero.
type dexPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	URL         string `json:"url"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	Txns        map[string]dexTxns `json:"txns"`
	Volume      map[string]float64 `json:"volume"`
	PriceChange map[string]float64 `json:"priceChange"`
	Liquidity   *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV           float64 `json:"fdv"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
}

type dexTxns struct {
	Buys  int `json:"buys"`
	Sells int `json:"sells"`
}

// dexListing is an entry of the profile and boost listings
type dexListing struct {
	ChainID      string `json:"chainId"`
	TokenAddress string `json:"tokenAddress"`
}

type dexSearchResponse struct {
	Pairs []dexPair `json:"pairs"`
}

// DexScreener polls the public DexScreener API
type DexScreener struct {
	baseURL string
	client  *http.Client
	guard   *Guard
	chains  map[string]bool
	queries []string
	metrics *metrics.Registry
}

// NewDexScreener creates a new DexScreener adapter
func NewDexScreener(cfg config.FeedConfig, m *metrics.Registry) *DexScreener {
	chains := make(map[string]bool, len(cfg.Chains))
	for _, c := range cfg.Chains {
		chains[strings.ToLower(c)] = true
	}

	return &DexScreener{
		baseURL: strings.TrimRight(cfg.DexScreenerURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout + time.Second},
		guard: NewGuard(GuardConfig{
			Name:          "dexscreener",
			Timeout:       cfg.Timeout,
			Attempts:      cfg.Retries,
			Backoff:       cfg.RetryBackoff,
			RatePerMinute: cfg.DexScreenerRPM,
		}, m),
		chains:  chains,
		queries: cfg.SearchQueries,
		metrics: m,
	}
}

// Name returns the adapter identifier
func (d *DexScreener) Name() string {
	return "dexscreener"
}

// Fetch returns candidates for freshly listed and boosted tokens plus search hits
func (d *DexScreener) Fetch(ctx context.Context) []types.Candidate {
	sources := make(map[string]string)
	var refs []types.TrackingRef

	add := func(listing []dexListing, source string) {
		for _, l := range listing {
			if !d.allowChain(l.ChainID) {
				continue
			}
			id := NormalizeIdentity(l.ChainID, l.TokenAddress)
			if id == "" {
				continue
			}
			if _, ok := sources[id]; !ok {
				refs = append(refs, types.TrackingRef{Identity: id, Address: l.TokenAddress, Chain: l.ChainID})
			}
			sources[id] = source
		}
	}

	var profiles, boosts []dexListing
	if err := d.getJSON(ctx, "profiles", "/token-profiles/latest/v1", &profiles); err != nil {
		log.Warn().Err(err).Str("feed", d.Name()).Msg("⚠️ Profile listing failed")
	}
	add(profiles, SourceProfile)

	if err := d.getJSON(ctx, "boosts", "/token-boosts/latest/v1", &boosts); err != nil {
		log.Warn().Err(err).Str("feed", d.Name()).Msg("⚠️ Boost listing failed")
	}
	add(boosts, SourceBoost)

	// listing order is the first-seen order downstream
	resolved := d.Lookup(ctx, refs)
	var out []types.Candidate
	for _, r := range refs {
		c, ok := resolved[r.Identity]
		if !ok {
			continue
		}
		c.SourceTag = sources[r.Identity]
		out = append(out, c)
	}

	for _, q := range d.queries {
		out = append(out, d.search(ctx, q)...)
	}

	d.metrics.Candidates(d.Name(), len(out))
	return out
}

// Lookup resolves tracked assets to current candidates, keyed by identity.
// When a token trades in several pairs, the deepest-liquidity pair wins.
func (d *DexScreener) Lookup(ctx context.Context, refs []types.TrackingRef) map[string]types.Candidate {
	out := make(map[string]types.Candidate)

	byChain := make(map[string][]types.TrackingRef)
	for _, r := range refs {
		chain := strings.ToLower(r.Chain)
		if chain == "" || r.Address == "" {
			continue
		}
		byChain[chain] = append(byChain[chain], r)
	}

	for chain, chainRefs := range byChain {
		wanted := make(map[string]bool, len(chainRefs))
		for _, r := range chainRefs {
			wanted[r.Identity] = true
		}

		for start := 0; start < len(chainRefs); start += dexBatchSize {
			end := start + dexBatchSize
			if end > len(chainRefs) {
				end = len(chainRefs)
			}

			addrs := make([]string, 0, end-start)
			for _, r := range chainRefs[start:end] {
				addrs = append(addrs, url.PathEscape(r.Address))
			}

			var pairs []dexPair
			path := fmt.Sprintf("/tokens/v1/%s/%s", url.PathEscape(chain), strings.Join(addrs, ","))
			if err := d.getJSON(ctx, "tokens", path, &pairs); err != nil {
				log.Warn().Err(err).Str("chain", chain).Int("tokens", len(addrs)).Msg("⚠️ Token lookup failed")
				continue
			}

			for _, p := range pairs {
				c := p.candidate("")
				if !wanted[c.Identity] {
					continue
				}
				if prev, ok := out[c.Identity]; ok && prev.LiquidityUSD >= c.LiquidityUSD {
					continue
				}
				out[c.Identity] = c
			}
		}
	}

	return out
}

func (d *DexScreener) search(ctx context.Context, query string) []types.Candidate {
	var resp dexSearchResponse
	path := "/latest/dex/search?q=" + url.QueryEscape(query)
	if err := d.getJSON(ctx, "search", path, &resp); err != nil {
		log.Warn().Err(err).Str("query", query).Msg("⚠️ Search failed")
		return nil
	}

	out := make([]types.Candidate, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		if !d.allowChain(p.ChainID) {
			continue
		}
		if c := p.candidate(SourceSearch); c.Identity != "" {
			out = append(out, c)
		}
	}
	return out
}

func (d *DexScreener) allowChain(chain string) bool {
	return len(d.chains) == 0 || d.chains[strings.ToLower(chain)]
}

func (d *DexScreener) getJSON(ctx context.Context, op, path string, out interface{}) error {
	return d.guard.Do(ctx, op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
		if err != nil {
			return &PermanentError{Body: err.Error()}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return &PermanentError{Status: resp.StatusCode, Body: string(body)}
			}
			return fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s: %w", op, err)
		}
		return nil
	})
}

// candidate normalizes a pair. Missing numbers become zero; missing windows
// stay unset.
func (p dexPair) candidate(source string) types.Candidate {
	c := types.Candidate{
		Identity:     NormalizeIdentity(p.ChainID, p.BaseToken.Address),
		Address:      p.BaseToken.Address,
		Chain:        strings.ToLower(p.ChainID),
		Venue:        p.DexID,
		Symbol:       p.BaseToken.Symbol,
		Name:         p.BaseToken.Name,
		URL:          p.URL,
		SourceTag:    source,
		VolumeM5USD:  types.NonNegative(p.Volume["m5"]),
		VolumeH1USD:  types.NonNegative(p.Volume["h1"]),
		VolumeH24USD: types.NonNegative(p.Volume["h24"]),
		TxnsM5:       types.TxnCounts{Buys: p.Txns["m5"].Buys, Sells: p.Txns["m5"].Sells},
		TxnsH1:       types.TxnCounts{Buys: p.Txns["h1"].Buys, Sells: p.Txns["h1"].Sells},
	}

	if p.Liquidity != nil {
		c.LiquidityUSD = types.NonNegative(p.Liquidity.USD)
	}

	c.MarketCapUSD = types.NonNegative(p.MarketCap)
	if c.MarketCapUSD == 0 {
		c.MarketCapUSD = types.NonNegative(p.FDV)
	}

	if v, ok := p.PriceChange["m5"]; ok {
		c.PriceChange.M5 = types.NewWindow(v)
	}
	if v, ok := p.PriceChange["h1"]; ok {
		c.PriceChange.H1 = types.NewWindow(v)
	}
	if v, ok := p.PriceChange["h6"]; ok {
		c.PriceChange.H6 = types.NewWindow(v)
	}
	if v, ok := p.PriceChange["h24"]; ok {
		c.PriceChange.H24 = types.NewWindow(v)
	}

	if p.PairCreatedAt > 0 {
		c.CreatedAt = time.UnixMilli(p.PairCreatedAt)
	}

	return c
}
