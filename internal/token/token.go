package token

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// Chain identifies a supported network.
type Chain string

const (
	ChainSolana    Chain = "solana"
	ChainEthereum  Chain = "ethereum"
	ChainBSC       Chain = "bsc"
	ChainPolygon   Chain = "polygon"
	ChainAvalanche Chain = "avalanche"
)

// chainAliases maps the spellings upstreams use onto our Chain set.
var chainAliases = map[string]Chain{
	"solana":      ChainSolana,
	"sol":         ChainSolana,
	"ethereum":    ChainEthereum,
	"eth":         ChainEthereum,
	"bsc":         ChainBSC,
	"bnb":         ChainBSC,
	"binance":     ChainBSC,
	"polygon":     ChainPolygon,
	"polygon_pos": ChainPolygon,
	"matic":       ChainPolygon,
	"avalanche":   ChainAvalanche,
	"avax":        ChainAvalanche,
}

// ParseChain resolves an upstream chain spelling. ok is false for chains
// outside the configured set.
func ParseChain(s string) (Chain, bool) {
	c, ok := chainAliases[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// acceptedQuotes is the set of quote assets a pair may be priced in.
// Pairs quoted in anything else are treated as illiquid/unknown and filtered.
var acceptedQuotes = map[string]struct{}{
	"SOL": {}, "USDC": {}, "USDT": {}, "ETH": {}, "WETH": {},
	"BNB": {}, "WBNB": {}, "MATIC": {}, "AVAX": {},
}

// QuoteAccepted reports whether symbol is an acceptable quote asset.
func QuoteAccepted(symbol string) bool {
	_, ok := acceptedQuotes[strings.ToUpper(strings.TrimSpace(symbol))]
	return ok
}

// AcceptedQuotes returns the accepted quote-asset symbols.
func AcceptedQuotes() []string {
	out := make([]string, 0, len(acceptedQuotes))
	for s := range acceptedQuotes {
		out = append(out, s)
	}
	return out
}

// Socials carries optional link metadata for a token.
type Socials struct {
	Website  string `json:"website,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	Telegram string `json:"telegram,omitempty"`
}

// Token is the canonical record all downstream consumers see.
// PairID is unique within any result set produced by the aggregator.
type Token struct {
	PairID        string    `json:"pair_id"`
	Chain         Chain     `json:"chain"`
	BaseAddress   string    `json:"base_address"`
	BaseSymbol    string    `json:"base_symbol"`
	BaseName      string    `json:"base_name,omitempty"`
	QuoteSymbol   string    `json:"quote_symbol"`
	PriceUSD      float64   `json:"price_usd"`
	PriceChange24 float64   `json:"price_change_24h"`
	Volume24      float64   `json:"volume_24h"`
	LiquidityUSD  float64   `json:"liquidity_usd"`
	MarketCapUSD  float64   `json:"market_cap_usd,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
	New           bool      `json:"new"`
	ImageURL      string    `json:"image_url,omitempty"`
	AvatarID      string    `json:"avatar_id,omitempty"`
	Socials       *Socials  `json:"socials,omitempty"`
	Buys24        int       `json:"buys_24h"`
	Sells24       int       `json:"sells_24h"`
	HolderCount   int       `json:"holder_count,omitempty"`
	Provider      string    `json:"provider"`
}

// avatarPalette is the number of distinct placeholder avatars available
// to the rendering layer.
const avatarPalette = 16

// AvatarFor derives a stable placeholder avatar id from a symbol, so a
// token without artwork renders the same fallback on every fetch.
func AvatarFor(symbol string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToUpper(symbol)))
	return fmt.Sprintf("avatar-%02d", h.Sum32()%avatarPalette)
}
