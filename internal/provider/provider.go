package provider

import (
	"context"
	"errors"
	"fmt"

	"tokenfeed/internal/token"
)

// Query narrows a listing fetch.
type Query struct {
	// Network restricts results to one chain. Empty means any chain.
	Network token.Chain
	// Limit caps how many raw records the adapter should return.
	// 0 means the adapter's default.
	Limit int
}

// RawPair is the loosely typed record an adapter extracts from its
// upstream payload. Field presence varies by provider; the normalizer
// decides what survives. It never crosses the aggregator boundary.
type RawPair struct {
	Provider      string
	PairID        string
	Chain         string
	BaseAddress   string
	BaseSymbol    string
	BaseName      string
	QuoteSymbol   string
	PriceUSD      string // decimal string as sent by the upstream
	LiquidityUSD  float64
	Volume24      float64
	PriceChange24 float64
	MarketCapUSD  float64
	FDVUSD        float64
	CreatedAtMs   int64
	ImageURL      string
	Website       string
	Twitter       string
	Telegram      string
	Buys24        int
	Sells24       int
}

// Provider wraps one upstream listing/pricing API. Implementations never
// retry internally (that policy belongs to the aggregator) and drop
// unparseable upstream records instead of failing the fetch.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]RawPair, error)
}

// Error is returned on a non-2xx upstream response.
type Error struct {
	Provider string
	Status   int
	Message  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: upstream status %d: %s", e.Provider, e.Status, e.Message)
}

// ErrTimeout marks a fetch that exhausted its bounded wait.
var ErrTimeout = errors.New("provider timeout")

// WrapTimeout converts a context deadline expiry into an ErrTimeout-tagged
// error so callers can classify without string matching.
func WrapTimeout(name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", name, ErrTimeout, err)
	}
	return err
}

// IsTimeout reports whether err came from a bounded-wait expiry.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
