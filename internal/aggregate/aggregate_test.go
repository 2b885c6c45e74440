package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"tokenfeed/internal/metrics"
	"tokenfeed/internal/provider"
	"tokenfeed/internal/token"
)

type fakeProvider struct {
	name  string
	pairs []provider.RawPair
	err   error
	calls atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Fetch(_ context.Context, _ provider.Query) ([]provider.RawPair, error) {
	f.calls.Add(1)
	return f.pairs, f.err
}

func solPair(pairID, symbol, price string, liquidity float64) provider.RawPair {
	return provider.RawPair{
		PairID:      pairID,
		Chain:       "solana",
		BaseAddress: "mint-" + symbol,
		BaseSymbol:  symbol,
		QuoteSymbol: "SOL",
		PriceUSD:    price,
		LiquidityUSD: liquidity,
	}
}

func TestTrending_DuplicatePair_HigherLiquidityWins(t *testing.T) {
	p1 := &fakeProvider{name: "a", pairs: []provider.RawPair{solPair("pair-1", "BONK", "0.00002", 100)}}
	p2 := &fakeProvider{name: "b", pairs: []provider.RawPair{solPair("pair-1", "BONK", "0.00002", 500)}}
	svc := New(Config{}, []provider.Provider{p1, p2}, nil, nil)

	out, err := svc.Trending(context.Background(), token.ChainSolana)
	if err != nil {
		t.Fatalf("trending: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("want 1 token, got %d: %+v", len(out), out)
	}
	if out[0].LiquidityUSD != 500 {
		t.Fatalf("want the 500-liquidity record to survive, got %+v", out[0])
	}
}

func TestTrending_DuplicatePair_TieKeepsFirstRegisteredProvider(t *testing.T) {
	a := solPair("pair-1", "BONK", "0.00002", 100)
	a.Provider = "a"
	b := solPair("pair-1", "BONK", "0.00002", 100)
	b.Provider = "b"
	p1 := &fakeProvider{name: "a", pairs: []provider.RawPair{a}}
	p2 := &fakeProvider{name: "b", pairs: []provider.RawPair{b}}
	svc := New(Config{}, []provider.Provider{p1, p2}, nil, nil)

	out, err := svc.Trending(context.Background(), token.ChainSolana)
	if err != nil {
		t.Fatalf("trending: %v", err)
	}
	if len(out) != 1 || out[0].Provider != "a" {
		t.Fatalf("want first-registered provider's record on tie, got %+v", out)
	}
}

func TestTrending_UnknownChainAndQuoteFilteredOut(t *testing.T) {
	bad := solPair("pair-2", "SCAM", "1.0", 50)
	bad.QuoteSymbol = "SHIBQUOTE"
	other := solPair("pair-3", "WIF", "2.5", 70)
	other.Chain = "ethereum"
	p := &fakeProvider{name: "a", pairs: []provider.RawPair{
		solPair("pair-1", "BONK", "0.00002", 100), bad, other,
	}}
	svc := New(Config{}, []provider.Provider{p}, nil, nil)

	out, err := svc.Trending(context.Background(), token.ChainSolana)
	if err != nil {
		t.Fatalf("trending: %v", err)
	}
	if len(out) != 1 || out[0].BaseSymbol != "BONK" {
		t.Fatalf("want only the accepted solana pair, got %+v", out)
	}
}

func TestTrending_RankedByLiquidityAndTruncated(t *testing.T) {
	var pairs []provider.RawPair
	for i := 0; i < 10; i++ {
		pairs = append(pairs, solPair(
			fmt.Sprintf("pair-%d", i), fmt.Sprintf("TOK%d", i), "1.0", float64(10*(i+1)),
		))
	}
	p := &fakeProvider{name: "a", pairs: pairs}
	svc := New(Config{TrendingSize: 5}, []provider.Provider{p}, nil, nil)

	out, err := svc.Trending(context.Background(), token.ChainSolana)
	if err != nil {
		t.Fatalf("trending: %v", err)
	}
	if len(out) != 5 {
		t.Fatalf("want 5 tokens, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].LiquidityUSD > out[i-1].LiquidityUSD {
			t.Fatalf("not sorted by liquidity desc: %+v", out)
		}
	}
	if out[0].LiquidityUSD != 100 {
		t.Fatalf("want deepest pair first, got %+v", out[0])
	}
}

func TestTrending_PartialFailureStillServes(t *testing.T) {
	p1 := &fakeProvider{name: "a", err: errors.New("boom")}
	p2 := &fakeProvider{name: "b", pairs: []provider.RawPair{solPair("pair-1", "BONK", "0.00002", 100)}}
	svc := New(Config{}, []provider.Provider{p1, p2}, nil, nil)

	out, err := svc.Trending(context.Background(), token.ChainSolana)
	if err != nil {
		t.Fatalf("trending: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("want the healthy provider's token, got %+v", out)
	}
}

func TestTrending_TotalFailureServesStaleThenErrors(t *testing.T) {
	p := &fakeProvider{name: "a", pairs: []provider.RawPair{solPair("pair-1", "BONK", "0.00002", 100)}}
	svc := New(Config{}, []provider.Provider{p}, nil, nil)

	first, err := svc.Trending(context.Background(), token.ChainSolana)
	if err != nil || len(first) != 1 {
		t.Fatalf("seed fetch: %v %+v", err, first)
	}

	// expire the cache and break the provider
	svc.cache.Clear()
	seed := first[0]
	svc.cache.Set("trending:solana", first, -1)
	p.err = errors.New("upstream down")
	p.pairs = nil

	out, err := svc.Trending(context.Background(), token.ChainSolana)
	if err != nil {
		t.Fatalf("want stale data on total failure, got error %v", err)
	}
	if len(out) != 1 || out[0].PairID != seed.PairID {
		t.Fatalf("want the cached token back, got %+v", out)
	}

	// nothing cached at all -> the failure is surfaced
	svc.cache.Clear()
	if _, err := svc.Trending(context.Background(), token.ChainSolana); !errors.Is(err, ErrAllProvidersFailed) {
		t.Fatalf("want ErrAllProvidersFailed, got %v", err)
	}
}

func TestTrending_SecondCallHitsCache(t *testing.T) {
	p := &fakeProvider{name: "a", pairs: []provider.RawPair{solPair("pair-1", "BONK", "0.00002", 100)}}
	svc := New(Config{}, []provider.Provider{p}, nil, nil)

	if _, err := svc.Trending(context.Background(), token.ChainSolana); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.Trending(context.Background(), token.ChainSolana); err != nil {
		t.Fatalf("second: %v", err)
	}
	if got := p.calls.Load(); got != 1 {
		t.Fatalf("want 1 upstream call, got %d", got)
	}
}

func TestNextPage_BufferServeCountsAsCacheHit(t *testing.T) {
	var pairs []provider.RawPair
	for i := 0; i < 50; i++ {
		pairs = append(pairs, solPair(
			fmt.Sprintf("pair-%02d", i), fmt.Sprintf("TOK%d", i), "1.0", float64(1000-i),
		))
	}
	p := &fakeProvider{name: "a", pairs: pairs}
	svc := New(Config{PageSize: 20, CorpusSize: 60}, []provider.Provider{p}, nil, nil)

	hits := metrics.CacheHits.WithLabelValues("page")
	misses := metrics.CacheMisses.WithLabelValues("page")
	hits0, misses0 := testutil.ToFloat64(hits), testutil.ToFloat64(misses)

	if _, err := svc.NextPage(context.Background(), token.ChainSolana, true); err != nil {
		t.Fatalf("page1: %v", err)
	}
	if _, err := svc.NextPage(context.Background(), token.ChainSolana, false); err != nil {
		t.Fatalf("page2: %v", err)
	}

	if got := testutil.ToFloat64(misses) - misses0; got != 1 {
		t.Fatalf("want 1 page miss for the refill, got %v", got)
	}
	if got := testutil.ToFloat64(hits) - hits0; got != 1 {
		t.Fatalf("want 1 page hit for the buffer serve, got %v", got)
	}
}

func TestNextPage_PagesAreDisjointAndContiguous(t *testing.T) {
	var pairs []provider.RawPair
	for i := 0; i < 50; i++ {
		pairs = append(pairs, solPair(
			fmt.Sprintf("pair-%02d", i), fmt.Sprintf("TOK%d", i), "1.0", float64(1000-i),
		))
	}
	p := &fakeProvider{name: "a", pairs: pairs}
	svc := New(Config{PageSize: 20, CorpusSize: 60}, []provider.Provider{p}, nil, nil)

	page1, err := svc.NextPage(context.Background(), token.ChainSolana, true)
	if err != nil {
		t.Fatalf("page1: %v", err)
	}
	page2, err := svc.NextPage(context.Background(), token.ChainSolana, false)
	if err != nil {
		t.Fatalf("page2: %v", err)
	}
	if len(page1) != 20 || len(page2) != 20 {
		t.Fatalf("want two 20-token pages, got %d and %d", len(page1), len(page2))
	}
	seen := map[string]struct{}{}
	for _, tok := range append(page1, page2...) {
		if _, dup := seen[tok.PairID]; dup {
			t.Fatalf("pages overlap on %s", tok.PairID)
		}
		seen[tok.PairID] = struct{}{}
	}
	// contiguity: page2 continues where page1 stopped in liquidity order
	if page2[0].LiquidityUSD > page1[len(page1)-1].LiquidityUSD {
		t.Fatalf("page2 ranks above page1 tail: %v > %v",
			page2[0].LiquidityUSD, page1[len(page1)-1].LiquidityUSD)
	}
	// only the first page triggered a fetch
	if got := p.calls.Load(); got != 1 {
		t.Fatalf("want 1 upstream call for both pages, got %d", got)
	}

	page3, err := svc.NextPage(context.Background(), token.ChainSolana, false)
	if err != nil {
		t.Fatalf("page3: %v", err)
	}
	if len(page3) != 10 {
		t.Fatalf("want final short page of 10, got %d", len(page3))
	}
}

func TestNextPage_ResetRestartsFromTop(t *testing.T) {
	var pairs []provider.RawPair
	for i := 0; i < 30; i++ {
		pairs = append(pairs, solPair(
			fmt.Sprintf("pair-%02d", i), fmt.Sprintf("TOK%d", i), "1.0", float64(1000-i),
		))
	}
	p := &fakeProvider{name: "a", pairs: pairs}
	svc := New(Config{PageSize: 20, CorpusSize: 60}, []provider.Provider{p}, nil, nil)

	page1, err := svc.NextPage(context.Background(), token.ChainSolana, true)
	if err != nil {
		t.Fatalf("page1: %v", err)
	}
	if _, err := svc.NextPage(context.Background(), token.ChainSolana, false); err != nil {
		t.Fatalf("page2: %v", err)
	}
	restart, err := svc.NextPage(context.Background(), token.ChainSolana, true)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restart[0].PairID != page1[0].PairID {
		t.Fatalf("want restart from the top, got %s vs %s", restart[0].PairID, page1[0].PairID)
	}
}

func TestNextPage_BestPairPerBaseAsset(t *testing.T) {
	deep := solPair("pair-1", "BONK", "0.00002", 900)
	shallow := solPair("pair-2", "BONK", "0.000021", 100)
	p := &fakeProvider{name: "a", pairs: []provider.RawPair{shallow, deep}}
	svc := New(Config{}, []provider.Provider{p}, nil, nil)

	out, err := svc.NextPage(context.Background(), token.ChainSolana, true)
	if err != nil {
		t.Fatalf("page: %v", err)
	}
	if len(out) != 1 || out[0].PairID != "pair-1" {
		t.Fatalf("want only the deepest BONK pair, got %+v", out)
	}
}
