package aggregate

import (
	"strconv"
	"strings"
	"time"

	"tokenfeed/internal/provider"
	"tokenfeed/internal/token"
)

// newListingWindow is how recently a pair must have been created to carry
// the "new" flag.
const newListingWindow = 24 * time.Hour

// Normalize converts one raw provider record into the canonical token
// shape. ok is false when the record cannot be normalized: no pair
// identity, no base symbol, or a negative or unparsable price. Rejects
// are filtered, never errors.
func Normalize(raw provider.RawPair, now time.Time) (token.Token, bool) {
	if raw.PairID == "" || strings.TrimSpace(raw.BaseSymbol) == "" {
		return token.Token{}, false
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(raw.PriceUSD), 64)
	if err != nil || price < 0 {
		return token.Token{}, false
	}
	chain, ok := token.ParseChain(raw.Chain)
	if !ok {
		return token.Token{}, false
	}

	t := token.Token{
		PairID:        raw.PairID,
		Chain:         chain,
		BaseAddress:   raw.BaseAddress,
		BaseSymbol:    strings.TrimSpace(raw.BaseSymbol),
		BaseName:      strings.TrimSpace(raw.BaseName),
		QuoteSymbol:   strings.ToUpper(strings.TrimSpace(raw.QuoteSymbol)),
		PriceUSD:      price,
		PriceChange24: raw.PriceChange24,
		Volume24:      maxf(raw.Volume24, 0),
		LiquidityUSD:  maxf(raw.LiquidityUSD, 0),
		Buys24:        raw.Buys24,
		Sells24:       raw.Sells24,
		ImageURL:      raw.ImageURL,
		Provider:      raw.Provider,
	}

	// prefer market cap; fall back to fully-diluted value
	if raw.MarketCapUSD > 0 {
		t.MarketCapUSD = raw.MarketCapUSD
	} else if raw.FDVUSD > 0 {
		t.MarketCapUSD = raw.FDVUSD
	}

	if raw.CreatedAtMs > 0 {
		t.CreatedAt = time.UnixMilli(raw.CreatedAtMs).UTC()
		t.New = now.Sub(t.CreatedAt) < newListingWindow
	}

	if t.ImageURL == "" {
		t.AvatarID = token.AvatarFor(t.BaseSymbol)
	}
	if raw.Website != "" || raw.Twitter != "" || raw.Telegram != "" {
		t.Socials = &token.Socials{Website: raw.Website, Twitter: raw.Twitter, Telegram: raw.Telegram}
	}
	return t, true
}

func maxf(v, floor float64) float64 {
	if v < floor {
		return floor
	}
	return v
}
