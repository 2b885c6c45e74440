package dexscreener

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tokenfeed/internal/httpx"
	"tokenfeed/internal/provider"
	"tokenfeed/internal/token"
)

// Config controls the DexScreener provider behavior.
type Config struct {
	Name    string
	BaseURL string
	// SearchQueries are the quote-asset search terms used to pull a pair
	// corpus, issued in order. Defaults cover the accepted quote assets.
	SearchQueries []string
	// RequestTimeout bounds each upstream call. Defaults to 7s.
	RequestTimeout time.Duration
}

// Provider pulls pair listings from the public DexScreener search API.
// No API key is required.
type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "DexScreener"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.dexscreener.com"
	}
	if len(cfg.SearchQueries) == 0 {
		cfg.SearchQueries = []string{"SOL", "USDC", "USDT", "WETH"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 7 * time.Second
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Fetch(ctx context.Context, q provider.Query) ([]provider.RawPair, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 60
	}

	seen := make(map[string]struct{}, limit)
	out := make([]provider.RawPair, 0, limit)
	var firstErr error

	for _, term := range p.cfg.SearchQueries {
		if len(out) >= limit {
			break
		}
		pairs, err := p.search(ctx, term)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, pj := range pairs {
			raw, ok := p.toRaw(pj)
			if !ok {
				continue
			}
			if q.Network != "" {
				if c, ok := token.ParseChain(raw.Chain); !ok || c != q.Network {
					continue
				}
			}
			if _, dup := seen[raw.PairID]; dup {
				continue
			}
			seen[raw.PairID] = struct{}{}
			out = append(out, raw)
			if len(out) >= limit {
				break
			}
		}
	}

	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (p *Provider) search(ctx context.Context, term string) ([]pairJSON, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	u := strings.TrimRight(p.cfg.BaseURL, "/") + "/latest/dex/search?q=" + url.QueryEscape(term)
	var resp searchResponse
	if err := p.client.GetJSON(reqCtx, u, nil, &resp); err != nil {
		if se, ok := err.(*httpx.StatusError); ok {
			return nil, &provider.Error{Provider: p.cfg.Name, Status: se.Status, Message: se.Body}
		}
		return nil, provider.WrapTimeout(p.cfg.Name, fmt.Errorf("search %q: %w", term, err))
	}
	return resp.Pairs, nil
}

// toRaw maps one upstream pair onto the raw record shape. Records missing
// a pair address or base symbol are dropped rather than propagated.
func (p *Provider) toRaw(pj pairJSON) (provider.RawPair, bool) {
	if pj.PairAddress == "" || pj.BaseToken.Symbol == "" {
		return provider.RawPair{}, false
	}
	raw := provider.RawPair{
		Provider:      p.cfg.Name,
		PairID:        pj.PairAddress,
		Chain:         pj.ChainID,
		BaseAddress:   pj.BaseToken.Address,
		BaseSymbol:    pj.BaseToken.Symbol,
		BaseName:      pj.BaseToken.Name,
		QuoteSymbol:   pj.QuoteToken.Symbol,
		PriceUSD:      pj.PriceUsd,
		LiquidityUSD:  pj.Liquidity.USD,
		Volume24:      pj.Volume["h24"],
		PriceChange24: pj.PriceChange["h24"],
		MarketCapUSD:  pj.MarketCap,
		FDVUSD:        pj.FDV,
		CreatedAtMs:   pj.PairCreatedAt,
		Buys24:        pj.Txns.H24.Buys,
		Sells24:       pj.Txns.H24.Sells,
	}
	if pj.Info != nil {
		raw.ImageURL = pj.Info.ImageURL
		if len(pj.Info.Websites) > 0 {
			raw.Website = pj.Info.Websites[0].URL
		}
		for _, s := range pj.Info.Socials {
			switch strings.ToLower(s.Type) {
			case "twitter":
				raw.Twitter = s.URL
			case "telegram":
				raw.Telegram = s.URL
			}
		}
	}
	return raw, true
}

type searchResponse struct {
	SchemaVersion string     `json:"schemaVersion"`
	Pairs         []pairJSON `json:"pairs"`
}

type assetJSON struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type pairJSON struct {
	ChainID     string    `json:"chainId"`
	DexID       string    `json:"dexId"`
	PairAddress string    `json:"pairAddress"`
	BaseToken   assetJSON `json:"baseToken"`
	QuoteToken  assetJSON `json:"quoteToken"`
	PriceUsd    string    `json:"priceUsd"`
	Txns        struct {
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	Volume      map[string]float64 `json:"volume"`
	PriceChange map[string]float64 `json:"priceChange"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV           float64 `json:"fdv"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
	Info          *struct {
		ImageURL string `json:"imageUrl"`
		Websites []struct {
			URL string `json:"url"`
		} `json:"websites"`
		Socials []struct {
			Type string `json:"type"`
			URL  string `json:"url"`
		} `json:"socials"`
	} `json:"info"`
}
