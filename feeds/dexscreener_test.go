package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/gemcaller/internal/config"
	"github.com/web3guy0/gemcaller/types"
)

func feedConfig(url string) config.FeedConfig {
	return config.FeedConfig{
		DexScreenerURL: url,
		Chains:         []string{"solana"},
		Timeout:        2 * time.Second,
		Retries:        2,
		RetryBackoff:   time.Millisecond,
	}
}

const tokensResponse = `[
  {
    "chainId": "solana", "dexId": "raydium", "url": "https://dexscreener.com/solana/pool1",
    "baseToken": {"address": "` + usdcMint + `", "name": "Gem One", "symbol": "ONE"},
    "txns": {"m5": {"buys": 5, "sells": 3}, "h1": {"buys": 150, "sells": 120}},
    "volume": {"m5": 100, "h1": 6000, "h24": 90000},
    "priceChange": {"m5": 2.5, "h1": 44},
    "liquidity": {"usd": 25000},
    "fdv": 80000, "marketCap": 60000,
    "pairCreatedAt": 1767225600000
  },
  {
    "chainId": "solana", "dexId": "orca",
    "baseToken": {"address": "` + usdcMint + `", "symbol": "ONE"},
    "liquidity": {"usd": 900}
  },
  {
    "chainId": "solana", "dexId": "pumpswap",
    "baseToken": {"address": "` + wsolMint + `", "name": "Two", "symbol": "TWO"},
    "volume": {"h1": -5},
    "fdv": 12000
  },
  {
    "chainId": "solana",
    "baseToken": {"address": "11111111111111111111111111111111", "symbol": "NOPE"}
  }
]`

func dexServer(t *testing.T, tokenPaths *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/token-profiles/latest/v1":
			w.Write([]byte(`[
				{"chainId": "solana", "tokenAddress": "` + usdcMint + `"},
				{"chainId": "ethereum", "tokenAddress": "` + usdtEVM + `"},
				{"chainId": "solana", "tokenAddress": "garbage"}
			]`))
		case r.URL.Path == "/token-boosts/latest/v1":
			w.Write([]byte(`[{"chainId": "solana", "tokenAddress": "` + wsolMint + `"}]`))
		case strings.HasPrefix(r.URL.Path, "/tokens/v1/solana/"):
			if tokenPaths != nil {
				*tokenPaths = append(*tokenPaths, r.URL.Path)
			}
			w.Write([]byte(tokensResponse))
		case r.URL.Path == "/latest/dex/search":
			assert.Equal(t, "pepe", r.URL.Query().Get("q"))
			w.Write([]byte(`{"pairs": [
				{"chainId": "solana", "baseToken": {"address": "` + wsolMint + `", "symbol": "TWO"}, "priceChange": {"h1": 90}},
				{"chainId": "bsc", "baseToken": {"address": "` + usdtEVM + `", "symbol": "USDT"}}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func byIdentity(cs []types.Candidate) map[string][]types.Candidate {
	out := make(map[string][]types.Candidate)
	for _, c := range cs {
		out[c.Identity] = append(out[c.Identity], c)
	}
	return out
}

func TestDexScreenerFetchNormalizes(t *testing.T) {
	var paths []string
	srv := dexServer(t, &paths)
	defer srv.Close()

	d := NewDexScreener(feedConfig(srv.URL), nil)
	got := byIdentity(d.Fetch(context.Background()))

	require.Len(t, got, 2)
	require.Len(t, paths, 1, "one batched lookup")
	assert.Contains(t, paths[0], usdcMint)
	assert.Contains(t, paths[0], wsolMint)

	one := got[strings.ToLower(usdcMint)][0]
	assert.Equal(t, SourceProfile, one.SourceTag)
	assert.Equal(t, usdcMint, one.Address)
	assert.Equal(t, "solana", one.Chain)
	assert.Equal(t, "raydium", one.Venue, "deepest pair wins")
	assert.Equal(t, 25000.0, one.LiquidityUSD)
	assert.Equal(t, 60000.0, one.MarketCapUSD)
	assert.Equal(t, 6000.0, one.VolumeH1USD)
	assert.Equal(t, types.TxnCounts{Buys: 150, Sells: 120}, one.TxnsH1)
	assert.True(t, one.PriceChange.H1.Set)
	assert.Equal(t, 44.0, one.PriceChange.H1.Pct)
	assert.False(t, one.PriceChange.H6.Set)
	assert.Equal(t, time.UnixMilli(1767225600000), one.CreatedAt)

	two := got[strings.ToLower(wsolMint)][0]
	assert.Equal(t, SourceBoost, two.SourceTag)
	assert.Equal(t, 12000.0, two.MarketCapUSD, "fdv fallback")
	assert.Zero(t, two.LiquidityUSD)
	assert.Zero(t, two.VolumeH1USD, "negative volume clamps to zero")
	assert.False(t, two.PriceChange.H1.Set)
	assert.True(t, two.CreatedAt.IsZero())
}

func TestDexScreenerFetchKeepsListingOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token-profiles/latest/v1":
			w.Write([]byte(`[
				{"chainId": "solana", "tokenAddress": "` + wsolMint + `"},
				{"chainId": "solana", "tokenAddress": "` + usdcMint + `"}
			]`))
		case r.URL.Path == "/token-boosts/latest/v1":
			w.Write([]byte(`[]`))
		case strings.HasPrefix(r.URL.Path, "/tokens/v1/solana/"):
			w.Write([]byte(tokensResponse))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := NewDexScreener(feedConfig(srv.URL), nil)
	want := []string{strings.ToLower(wsolMint), strings.ToLower(usdcMint)}
	for i := 0; i < 20; i++ {
		var got []string
		for _, c := range d.Fetch(context.Background()) {
			got = append(got, c.Identity)
		}
		require.Equal(t, want, got, "call %d", i)
	}
}

func TestDexScreenerSearch(t *testing.T) {
	srv := dexServer(t, nil)
	defer srv.Close()

	cfg := feedConfig(srv.URL)
	cfg.SearchQueries = []string{"pepe"}
	d := NewDexScreener(cfg, nil)

	got := byIdentity(d.Fetch(context.Background()))

	two := got[strings.ToLower(wsolMint)]
	require.Len(t, two, 2, "listing and search record before dedupe")
	assert.Equal(t, SourceSearch, two[1].SourceTag)
	assert.Empty(t, got[strings.ToLower(usdtEVM)], "chain filter applies to search")
}

func TestDexScreenerFailureYieldsNothing(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "upstream", http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDexScreener(feedConfig(srv.URL), nil)
	assert.Empty(t, d.Fetch(context.Background()))
	assert.Equal(t, int32(4), hits.Load(), "two listings, two attempts each")
}

func TestDexScreenerClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	d := NewDexScreener(feedConfig(srv.URL), nil)
	var out []dexListing
	err := d.getJSON(context.Background(), "profiles", "/token-profiles/latest/v1", &out)

	var perm *PermanentError
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, http.StatusNotFound, perm.Status)
	assert.Equal(t, int32(1), hits.Load())
}

func TestDexScreenerLookupSkipsUnknownAndBatches(t *testing.T) {
	var paths []string
	srv := dexServer(t, &paths)
	defer srv.Close()

	d := NewDexScreener(feedConfig(srv.URL), nil)

	refs := make([]types.TrackingRef, 0, 31)
	for i := 0; i < 30; i++ {
		refs = append(refs, types.TrackingRef{Identity: "filler", Address: "F" + strings.Repeat("1", i+1), Chain: "solana"})
	}
	refs = append(refs, types.TrackingRef{Identity: strings.ToLower(usdcMint), Address: usdcMint, Chain: "solana"})
	refs = append(refs, types.TrackingRef{Identity: "nochain", Address: "x"})

	got := d.Lookup(context.Background(), refs)

	assert.Len(t, paths, 2, "31 solana refs need two calls")
	require.Contains(t, got, strings.ToLower(usdcMint))
	assert.NotContains(t, got, strings.ToLower(wsolMint), "not requested")
	assert.Empty(t, got[strings.ToLower(usdcMint)].SourceTag)
}
