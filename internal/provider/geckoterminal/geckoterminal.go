package geckoterminal

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tokenfeed/internal/httpx"
	"tokenfeed/internal/provider"
	"tokenfeed/internal/token"
)

// networkSlugs maps our chain identifiers onto GeckoTerminal network slugs.
var networkSlugs = map[token.Chain]string{
	token.ChainSolana:    "solana",
	token.ChainEthereum:  "eth",
	token.ChainBSC:       "bsc",
	token.ChainPolygon:   "polygon_pos",
	token.ChainAvalanche: "avax",
}

// Config controls the GeckoTerminal provider behavior.
type Config struct {
	Name    string
	BaseURL string
	// Endpoints are the per-network pool listings to pull, in order.
	// Defaults to trending pools followed by top pools.
	Endpoints []string
	// RequestTimeout bounds each upstream call. Defaults to 7s.
	RequestTimeout time.Duration
}

// Provider discovers pools through the public GeckoTerminal API (JSON:API
// payloads). No API key is required.
type Provider struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Provider {
	if cfg.Name == "" {
		cfg.Name = "GeckoTerminal"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.geckoterminal.com/api/v2"
	}
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []string{"trending_pools", "pools"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 7 * time.Second
	}
	return &Provider{cfg: cfg, client: hc}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Fetch(ctx context.Context, q provider.Query) ([]provider.RawPair, error) {
	networks := []token.Chain{q.Network}
	if q.Network == "" {
		networks = []token.Chain{token.ChainSolana, token.ChainEthereum, token.ChainBSC}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 60
	}

	seen := make(map[string]struct{}, limit)
	out := make([]provider.RawPair, 0, limit)
	var firstErr error

	for _, net := range networks {
		slug, ok := networkSlugs[net]
		if !ok {
			continue
		}
		for _, ep := range p.cfg.Endpoints {
			if len(out) >= limit {
				break
			}
			doc, err := p.fetchPools(ctx, slug, ep)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			tokens := indexIncluded(doc.Included)
			for _, pool := range doc.Data {
				raw, ok := p.toRaw(net, slug, pool, tokens)
				if !ok {
					continue
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
	}

	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func (p *Provider) fetchPools(ctx context.Context, slug, endpoint string) (*document, error) {
	reqCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	u := fmt.Sprintf("%s/networks/%s/%s?include=base_token,quote_token",
		strings.TrimRight(p.cfg.BaseURL, "/"), slug, endpoint)
	var doc document
	if err := p.client.GetJSON(reqCtx, u, nil, &doc); err != nil {
		if se, ok := err.(*httpx.StatusError); ok {
			return nil, &provider.Error{Provider: p.cfg.Name, Status: se.Status, Message: se.Body}
		}
		return nil, provider.WrapTimeout(p.cfg.Name, fmt.Errorf("%s/%s: %w", slug, endpoint, err))
	}
	return &doc, nil
}

// toRaw maps one JSON:API pool resource onto the raw record shape,
// resolving the base token through the included resources.
func (p *Provider) toRaw(net token.Chain, slug string, pool resource, tokens map[string]includedToken) (provider.RawPair, bool) {
	addr := strings.TrimPrefix(pool.ID, slug+"_")
	if addr == "" || pool.ID == "" {
		return provider.RawPair{}, false
	}

	raw := provider.RawPair{
		Provider:     p.cfg.Name,
		PairID:       addr,
		Chain:        string(net),
		PriceUSD:     pool.Attributes.BaseTokenPriceUSD,
		LiquidityUSD: parseFloat(pool.Attributes.ReserveInUSD),
		Volume24:     parseFloat(pool.Attributes.VolumeUSD.H24),
		MarketCapUSD: parseFloat(pool.Attributes.MarketCapUSD),
		FDVUSD:       parseFloat(pool.Attributes.FDVUSD),
		Buys24:       pool.Attributes.Transactions.H24.Buys,
		Sells24:      pool.Attributes.Transactions.H24.Sells,
	}
	raw.PriceChange24 = parseFloat(pool.Attributes.PriceChangePct.H24)
	if pool.Attributes.PoolCreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339, pool.Attributes.PoolCreatedAt); err == nil {
			raw.CreatedAtMs = ts.UnixMilli()
		}
	}

	if ref := pool.Relationships.BaseToken.Data.ID; ref != "" {
		if tk, ok := tokens[ref]; ok {
			raw.BaseAddress = tk.Attributes.Address
			raw.BaseSymbol = tk.Attributes.Symbol
			raw.BaseName = tk.Attributes.Name
			raw.ImageURL = tk.Attributes.ImageURL
		}
	}
	if ref := pool.Relationships.QuoteToken.Data.ID; ref != "" {
		if tk, ok := tokens[ref]; ok {
			raw.QuoteSymbol = tk.Attributes.Symbol
		}
	}
	// fall back to splitting the pool name ("WIF / SOL")
	if raw.BaseSymbol == "" || raw.QuoteSymbol == "" {
		base, quote, ok := splitPoolName(pool.Attributes.Name)
		if ok {
			if raw.BaseSymbol == "" {
				raw.BaseSymbol = base
			}
			if raw.QuoteSymbol == "" {
				raw.QuoteSymbol = quote
			}
		}
	}
	if raw.BaseSymbol == "" {
		return provider.RawPair{}, false
	}
	return raw, true
}

func splitPoolName(name string) (base, quote string, ok bool) {
	parts := strings.Split(name, " / ")
	if len(parts) != 2 {
		return "", "", false
	}
	base = strings.TrimSpace(parts[0])
	if fields := strings.Fields(parts[1]); len(fields) > 0 {
		quote = fields[0]
	}
	return base, quote, base != "" && quote != ""
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// ---- JSON:API payload shapes ----

type document struct {
	Data     []resource `json:"data"`
	Included []included `json:"included"`
}

type resource struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Name              string `json:"name"`
		BaseTokenPriceUSD string `json:"base_token_price_usd"`
		ReserveInUSD      string `json:"reserve_in_usd"`
		MarketCapUSD      string `json:"market_cap_usd"`
		FDVUSD            string `json:"fdv_usd"`
		PoolCreatedAt     string `json:"pool_created_at"`
		VolumeUSD         struct {
			H24 string `json:"h24"`
		} `json:"volume_usd"`
		PriceChangePct struct {
			H24 string `json:"h24"`
		} `json:"price_change_percentage"`
		Transactions struct {
			H24 struct {
				Buys  int `json:"buys"`
				Sells int `json:"sells"`
			} `json:"h24"`
		} `json:"transactions"`
	} `json:"attributes"`
	Relationships struct {
		BaseToken  relationship `json:"base_token"`
		QuoteToken relationship `json:"quote_token"`
	} `json:"relationships"`
}

type relationship struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type included struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Address  string `json:"address"`
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		ImageURL string `json:"image_url"`
	} `json:"attributes"`
}

type includedToken = included

func indexIncluded(in []included) map[string]includedToken {
	out := make(map[string]includedToken, len(in))
	for _, r := range in {
		if r.Type == "token" {
			out[r.ID] = r
		}
	}
	return out
}
