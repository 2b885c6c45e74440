package aggregate

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tokenfeed/internal/cache"
	"tokenfeed/internal/metrics"
	"tokenfeed/internal/provider"
	"tokenfeed/internal/token"
)

// ErrAllProvidersFailed signals that every provider errored or timed out
// and no cached data exists for the request. An empty result with this
// error means "retry later", not "no tokens exist".
var ErrAllProvidersFailed = errors.New("aggregate: all providers failed")

// Config sizes and ages the feeds.
type Config struct {
	TrendingSize int           // tokens in a trending result (default 5)
	PageSize     int           // tokens per scroll page (default 20)
	CorpusSize   int           // raw records pulled per refill (default 60)
	TrendingTTL  time.Duration // default 60s
	PageTTL      time.Duration // default 60s
}

func (c *Config) applyDefaults() {
	if c.TrendingSize <= 0 {
		c.TrendingSize = 5
	}
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	if c.CorpusSize <= 0 {
		c.CorpusSize = 60
	}
	if c.TrendingTTL <= 0 {
		c.TrendingTTL = time.Minute
	}
	if c.PageTTL <= 0 {
		c.PageTTL = time.Minute
	}
}

// Enricher decorates normalized tokens with metadata from a provider the
// pipeline treats as optional.
type Enricher interface {
	Enrich(ctx context.Context, tokens []token.Token)
}

// cursor is the per-network pagination state. It is owned by the Service
// and never escapes it.
type cursor struct {
	buffered []token.Token
	offset   int
}

// Service merges several listing providers into one consistent feed.
// Provider registration order is part of the contract: when duplicate
// pairs tie on liquidity, the earlier provider's record survives.
type Service struct {
	cfg       Config
	providers []provider.Provider
	enricher  Enricher
	cache     *cache.TTL[string, []token.Token]
	log       *zap.Logger
	sf        singleflight.Group
	now       func() time.Time

	mu      sync.Mutex
	cursors map[token.Chain]*cursor
}

func New(cfg Config, providers []provider.Provider, enricher Enricher, log *zap.Logger) *Service {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		cfg:       cfg,
		providers: providers,
		enricher:  enricher,
		cache:     cache.New[string, []token.Token](),
		log:       log,
		now:       time.Now,
		cursors:   make(map[token.Chain]*cursor),
	}
}

// Trending returns the freshest top tokens for a network. On total
// provider failure it serves the last cached value, however old; only
// when no cache entry exists does it return ErrAllProvidersFailed.
func (s *Service) Trending(ctx context.Context, network token.Chain) ([]token.Token, error) {
	key := "trending:" + string(network)
	if v, ok := s.cache.Get(key); ok {
		metrics.CacheHits.WithLabelValues("trending").Inc()
		return v, nil
	}
	metrics.CacheMisses.WithLabelValues("trending").Inc()

	v, err, _ := s.sf.Do(key, func() (any, error) {
		tokens, err := s.collect(ctx, network, s.cfg.TrendingSize)
		if err != nil {
			if stale, storedAt, ok := s.cache.Stale(key); ok {
				metrics.StaleServes.WithLabelValues("trending").Inc()
				s.log.Warn("serving stale trending data",
					zap.String("network", string(network)),
					zap.Time("stored_at", storedAt),
					zap.Error(err))
				return stale, nil
			}
			return nil, err
		}
		s.cache.Set(key, tokens, s.cfg.TrendingTTL)
		return tokens, nil
	})
	if err != nil {
		return []token.Token{}, err
	}
	return v.([]token.Token), nil
}

// NextPage returns the next 20-token slice of the scroll feed. reset
// discards the cursor (the caller switched networks). The steady-state
// path slices the in-memory buffer without any network call; a refill
// runs the full fetch pipeline. An empty page with a nil error means the
// corpus is exhausted for now, not end-of-feed.
func (s *Service) NextPage(ctx context.Context, network token.Chain, reset bool) ([]token.Token, error) {
	s.mu.Lock()
	if reset {
		delete(s.cursors, network)
	}
	if cur, ok := s.cursors[network]; ok && cur.offset < len(cur.buffered) {
		end := cur.offset + s.cfg.PageSize
		if end > len(cur.buffered) {
			end = len(cur.buffered)
		}
		page := make([]token.Token, end-cur.offset)
		copy(page, cur.buffered[cur.offset:end])
		cur.offset = end
		s.mu.Unlock()
		metrics.CacheHits.WithLabelValues("page").Inc()
		return page, nil
	}
	s.mu.Unlock()

	key := "page:" + string(network)
	metrics.CacheMisses.WithLabelValues("page").Inc()
	v, err, _ := s.sf.Do(key, func() (any, error) {
		tokens, err := s.collect(ctx, network, s.cfg.CorpusSize)
		if err != nil {
			if stale, storedAt, ok := s.cache.Stale(key); ok {
				metrics.StaleServes.WithLabelValues("page").Inc()
				s.log.Warn("resuming feed from stale page buffer",
					zap.String("network", string(network)),
					zap.Time("stored_at", storedAt),
					zap.Error(err))
				return stale, nil
			}
			return nil, err
		}
		s.cache.Set(key, tokens, s.cfg.PageTTL)
		return tokens, nil
	})
	if err != nil {
		return []token.Token{}, err
	}
	buffer := v.([]token.Token)

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := &cursor{buffered: buffer}
	end := s.cfg.PageSize
	if end > len(buffer) {
		end = len(buffer)
	}
	page := make([]token.Token, end)
	copy(page, buffer[:end])
	cur.offset = end
	s.cursors[network] = cur
	return page, nil
}

// collect runs the fan-out + normalize + dedupe + filter + rank pipeline
// and truncates to size.
func (s *Service) collect(ctx context.Context, network token.Chain, size int) ([]token.Token, error) {
	raws, failed := s.fanOut(ctx, provider.Query{Network: network, Limit: s.cfg.CorpusSize})
	if failed == len(s.providers) {
		return nil, ErrAllProvidersFailed
	}
	tokens := s.refine(raws, network, size)
	if s.enricher != nil {
		s.enricher.Enrich(ctx, tokens)
	}
	return tokens, nil
}

// fanOut queries every provider concurrently and keeps only the
// successes. One provider's failure never cancels its siblings. The
// returned records preserve provider registration order, then each
// provider's own record order.
func (s *Service) fanOut(ctx context.Context, q provider.Query) ([]provider.RawPair, int) {
	results := make([][]provider.RawPair, len(s.providers))
	errs := make([]error, len(s.providers))

	var wg sync.WaitGroup
	for i, p := range s.providers {
		wg.Add(1)
		go func(i int, p provider.Provider) {
			defer wg.Done()
			start := time.Now()
			results[i], errs[i] = p.Fetch(ctx, q)
			metrics.FetchLatency.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
		}(i, p)
	}
	wg.Wait()

	var merged []provider.RawPair
	failed := 0
	for i, p := range s.providers {
		if errs[i] != nil {
			failed++
			metrics.ProviderErrors.WithLabelValues(p.Name()).Inc()
			s.log.Warn("provider fetch failed",
				zap.String("provider", p.Name()),
				zap.Bool("timeout", provider.IsTimeout(errs[i])),
				zap.Error(errs[i]))
			continue
		}
		merged = append(merged, results[i]...)
	}
	return merged, failed
}

// refine normalizes, dedupes by pair identity, filters by chain, quote
// asset and liquidity, ranks by liquidity and keeps the best pair per
// base asset.
func (s *Service) refine(raws []provider.RawPair, network token.Chain, size int) []token.Token {
	now := s.now()
	byPair := make(map[string]int, len(raws))
	out := make([]token.Token, 0, len(raws))

	for _, raw := range raws {
		t, ok := Normalize(raw, now)
		if !ok {
			continue
		}
		if network != "" && t.Chain != network {
			continue
		}
		if !token.QuoteAccepted(t.QuoteSymbol) {
			continue
		}
		if t.LiquidityUSD <= 0 {
			continue
		}
		if idx, dup := byPair[t.PairID]; dup {
			// higher liquidity wins; on a tie the first-seen record stays
			if t.LiquidityUSD > out[idx].LiquidityUSD {
				out[idx] = t
			}
			continue
		}
		byPair[t.PairID] = len(out)
		out = append(out, t)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LiquidityUSD > out[j].LiquidityUSD
	})

	// keep the single best pair per base asset
	seenBase := make(map[string]struct{}, len(out))
	ranked := out[:0]
	for _, t := range out {
		base := t.BaseAddress
		if base == "" {
			base = strings.ToUpper(t.BaseSymbol)
		}
		if _, dup := seenBase[base]; dup {
			continue
		}
		seenBase[base] = struct{}{}
		ranked = append(ranked, t)
	}
	if len(ranked) > size {
		ranked = ranked[:size]
	}
	return ranked
}
