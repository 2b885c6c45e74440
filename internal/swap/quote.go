package swap

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tokenfeed/internal/cache"
	"tokenfeed/internal/metrics"
	"tokenfeed/internal/provider/jupiter"
)

const (
	// NativeMint is wrapped SOL; its decimals are fixed and never looked up.
	NativeMint     = "So11111111111111111111111111111111111111112"
	nativeDecimals = 9

	// fallbackDecimals is assumed when the mint account cannot be read.
	// A quote built on the assumption carries DecimalsAssumed so callers
	// can demand explicit confirmation before executing.
	fallbackDecimals = 6

	MinSlippageBps = 10
	MaxSlippageBps = 2000

	DefaultDebounce = 500 * time.Millisecond

	decimalsTTL = 30 * time.Minute
)

// QuoteService prices a swap; *jupiter.Client satisfies it.
type QuoteService interface {
	GetQuote(ctx context.Context, req jupiter.QuoteRequest) (*jupiter.Quote, error)
}

// DecimalsSource resolves a mint's decimal count; *RPCLedger satisfies it.
type DecimalsSource interface {
	Decimals(ctx context.Context, mint string) (uint8, error)
}

// Input is the raw form state the pipeline prices.
type Input struct {
	InputMint  string
	OutputMint string
	// AmountText is the user-typed amount in whole input tokens.
	AmountText string
	// SlippagePct is slippage tolerance in percent, e.g. 0.5 for 0.5%.
	SlippagePct float64
}

// QuoteView is a priced quote rendered in whole-token terms.
type QuoteView struct {
	Quote           *jupiter.Quote
	EstimatedOutput decimal.Decimal
	MinimumReceived decimal.Decimal
	PriceImpactPct  float64
	DecimalsIn      uint8
	DecimalsOut     uint8
	DecimalsAssumed bool
}

// Pipeline turns a stream of form edits into at most one in-flight quote
// request. Each edit restarts the debounce window; when a response lands
// after a newer edit it is discarded, so the surfaced view always matches
// the latest input.
type Pipeline struct {
	quotes   QuoteService
	decimals DecimalsSource
	decCache *cache.TTL[string, uint8]
	log      *zap.Logger
	debounce time.Duration
	onUpdate func(view *QuoteView, err error)

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
	view  *QuoteView
	err   error
	busy  bool
}

type PipelineOption func(*Pipeline)

func WithDebounce(d time.Duration) PipelineOption {
	return func(p *Pipeline) { p.debounce = d }
}

// WithOnUpdate registers a callback invoked outside the pipeline's lock
// whenever the surfaced view changes.
func WithOnUpdate(fn func(view *QuoteView, err error)) PipelineOption {
	return func(p *Pipeline) { p.onUpdate = fn }
}

func NewPipeline(quotes QuoteService, decimals DecimalsSource, log *zap.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		quotes:   quotes,
		decimals: decimals,
		decCache: cache.New[string, uint8](),
		log:      log,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetInput records a form edit. Invalid or non-positive amounts clear the
// current quote without issuing a request; valid input schedules one after
// the debounce window.
func (p *Pipeline) SetInput(ctx context.Context, in Input) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	if p.timer != nil {
		p.timer.Stop()
	}

	if _, err := parsePositiveAmount(in.AmountText); err != nil {
		p.view, p.err, p.busy = nil, nil, false
		cb := p.onUpdate
		p.mu.Unlock()
		if cb != nil {
			cb(nil, nil)
		}
		return
	}

	p.busy = true
	p.timer = time.AfterFunc(p.debounce, func() {
		p.quoteOnce(ctx, in, gen)
	})
	p.mu.Unlock()
}

// QuoteNow prices input immediately, bypassing the debounce window and
// the surfaced view. Used by request/response callers.
func (p *Pipeline) QuoteNow(ctx context.Context, in Input) (*QuoteView, error) {
	return p.buildQuote(ctx, in)
}

// Current returns the surfaced view, whether a request is pending, and the
// last quote error.
func (p *Pipeline) Current() (*QuoteView, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view, p.busy, p.err
}

func (p *Pipeline) quoteOnce(ctx context.Context, in Input, gen uint64) {
	view, err := p.buildQuote(ctx, in)

	p.mu.Lock()
	if gen != p.gen {
		// A newer edit superseded this request.
		p.mu.Unlock()
		return
	}
	p.busy = false
	if err != nil {
		p.view, p.err = nil, err
		p.log.Warn("quote request failed", zap.Error(err))
	} else {
		p.view, p.err = view, nil
	}
	cb := p.onUpdate
	v, e := p.view, p.err
	p.mu.Unlock()

	if cb != nil {
		cb(v, e)
	}
}

func (p *Pipeline) buildQuote(ctx context.Context, in Input) (*QuoteView, error) {
	slippageBps := int(math.Round(in.SlippagePct * 100))
	if slippageBps < MinSlippageBps || slippageBps > MaxSlippageBps {
		return nil, fmt.Errorf("swap: slippage %d bps outside [%d, %d]", slippageBps, MinSlippageBps, MaxSlippageBps)
	}

	decIn, inAssumed := p.lookupDecimals(ctx, in.InputMint)
	amount, err := baseUnits(in.AmountText, decIn)
	if err != nil {
		return nil, err
	}

	metrics.QuoteRequests.Inc()
	quote, err := p.quotes.GetQuote(ctx, jupiter.QuoteRequest{
		InputMint:   in.InputMint,
		OutputMint:  in.OutputMint,
		Amount:      amount,
		SlippageBps: slippageBps,
	})
	if err != nil {
		return nil, err
	}

	decOut, outAssumed := p.lookupDecimals(ctx, in.OutputMint)
	return &QuoteView{
		Quote:           quote,
		EstimatedOutput: fromBaseUnits(quote.OutAmount, decOut),
		MinimumReceived: fromBaseUnits(quote.OtherAmountThreshold, decOut),
		PriceImpactPct:  quote.PriceImpactPct * 100,
		DecimalsIn:      decIn,
		DecimalsOut:     decOut,
		DecimalsAssumed: inAssumed || outAssumed,
	}, nil
}

func (p *Pipeline) lookupDecimals(ctx context.Context, mint string) (dec uint8, assumed bool) {
	if mint == NativeMint {
		return nativeDecimals, false
	}
	if d, ok := p.decCache.Get(mint); ok {
		return d, false
	}
	d, err := p.decimals.Decimals(ctx, mint)
	if err != nil {
		p.log.Warn("mint decimals lookup failed, assuming default",
			zap.String("mint", mint), zap.Uint8("assumed", fallbackDecimals), zap.Error(err))
		return fallbackDecimals, true
	}
	p.decCache.Set(mint, d, decimalsTTL)
	return d, false
}

func parsePositiveAmount(text string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("swap: parse amount %q: %w", text, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("swap: amount must be positive, got %s", d)
	}
	return d, nil
}

// baseUnits converts a whole-token amount to base units, truncating
// fractional dust below the mint's precision.
func baseUnits(text string, decimals uint8) (uint64, error) {
	d, err := parsePositiveAmount(text)
	if err != nil {
		return 0, err
	}
	shifted := d.Shift(int32(decimals)).Floor()
	bi := shifted.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("swap: amount %s overflows at %d decimals", text, decimals)
	}
	u := bi.Uint64()
	if u == 0 {
		return 0, fmt.Errorf("swap: amount %s rounds to zero at %d decimals", text, decimals)
	}
	return u, nil
}

func fromBaseUnits(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}
