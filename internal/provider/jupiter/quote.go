package jupiter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"tokenfeed/internal/provider"
)

// QuoteRequest describes the swap the caller wants priced.
type QuoteRequest struct {
	InputMint  string
	OutputMint string
	// Amount is in base units of the input asset.
	Amount      uint64
	SlippageBps int
	// SwapMode is ExactIn or ExactOut. Empty means ExactIn.
	SwapMode string
}

// RouteStep is one hop of the returned route plan.
type RouteStep struct {
	AmmKey     string
	Label      string
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	Percent    int
}

// Quote is a priced route. OtherAmountThreshold is the minimum the caller
// will receive (ExactIn) after the quoted slippage; it never exceeds
// OutAmount.
type Quote struct {
	InputMint            string
	OutputMint           string
	InAmount             uint64
	OutAmount            uint64
	OtherAmountThreshold uint64
	SlippageBps          int
	PriceImpactPct       float64
	RoutePlan            []RouteStep

	// raw is the upstream payload, replayed verbatim in the swap request.
	raw json.RawMessage
}

// GetQuote requests a route for the given swap parameters.
func (c *Client) GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if req.InputMint == "" || req.OutputMint == "" {
		return nil, fmt.Errorf("jupiter: input and output mints are required")
	}
	if req.Amount == 0 {
		return nil, fmt.Errorf("jupiter: amount must be positive")
	}

	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.Amount, 10))
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))
	if req.SwapMode != "" {
		q.Set("swapMode", req.SwapMode)
	}

	body, err := c.get(ctx, "/v6/quote?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var wire quoteJSON
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("jupiter: decode quote: %w", err)
	}
	quote, err := wire.toQuote()
	if err != nil {
		return nil, err
	}
	quote.raw = body
	return quote, nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range c.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, provider.WrapTimeout("Jupiter", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("jupiter: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.Error{Provider: "Jupiter", Status: resp.StatusCode, Message: string(body)}
	}
	return body, nil
}

// ---- wire shapes; amounts arrive as decimal strings ----

type quoteJSON struct {
	InputMint            string `json:"inputMint"`
	OutputMint           string `json:"outputMint"`
	InAmount             string `json:"inAmount"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SlippageBps          int    `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`
	RoutePlan            []struct {
		SwapInfo struct {
			AmmKey     string `json:"ammKey"`
			Label      string `json:"label"`
			InputMint  string `json:"inputMint"`
			OutputMint string `json:"outputMint"`
			InAmount   string `json:"inAmount"`
			OutAmount  string `json:"outAmount"`
		} `json:"swapInfo"`
		Percent int `json:"percent"`
	} `json:"routePlan"`
}

func (w quoteJSON) toQuote() (*Quote, error) {
	inAmt, err := parseAmount(w.InAmount)
	if err != nil {
		return nil, fmt.Errorf("jupiter: inAmount: %w", err)
	}
	outAmt, err := parseAmount(w.OutAmount)
	if err != nil {
		return nil, fmt.Errorf("jupiter: outAmount: %w", err)
	}
	minOut, err := parseAmount(w.OtherAmountThreshold)
	if err != nil {
		return nil, fmt.Errorf("jupiter: otherAmountThreshold: %w", err)
	}
	impact, _ := strconv.ParseFloat(w.PriceImpactPct, 64)

	quote := &Quote{
		InputMint:            w.InputMint,
		OutputMint:           w.OutputMint,
		InAmount:             inAmt,
		OutAmount:            outAmt,
		OtherAmountThreshold: minOut,
		SlippageBps:          w.SlippageBps,
		PriceImpactPct:       impact,
	}
	for _, step := range w.RoutePlan {
		in, _ := parseAmount(step.SwapInfo.InAmount)
		out, _ := parseAmount(step.SwapInfo.OutAmount)
		quote.RoutePlan = append(quote.RoutePlan, RouteStep{
			AmmKey:     step.SwapInfo.AmmKey,
			Label:      step.SwapInfo.Label,
			InputMint:  step.SwapInfo.InputMint,
			OutputMint: step.SwapInfo.OutputMint,
			InAmount:   in,
			OutAmount:  out,
			Percent:    step.Percent,
		})
	}
	return quote, nil
}

func parseAmount(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	return strconv.ParseUint(s, 10, 64)
}
