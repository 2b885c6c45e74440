package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"tokenfeed/internal/provider"
)

type swapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit bool            `json:"dynamicComputeUnitLimit"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SwapTransaction asks the router to serialize a transaction for an
// accepted quote. The returned bytes are the raw (unsigned) transaction.
func (c *Client) SwapTransaction(ctx context.Context, quote *Quote, userPublicKey string) ([]byte, error) {
	if quote == nil || len(quote.raw) == 0 {
		return nil, fmt.Errorf("jupiter: swap requires a quote obtained from GetQuote")
	}
	if userPublicKey == "" {
		return nil, fmt.Errorf("jupiter: user public key is required")
	}

	payload, err := json.Marshal(swapRequest{
		QuoteResponse:           quote.raw,
		UserPublicKey:           userPublicKey,
		WrapAndUnwrapSol:        true,
		DynamicComputeUnitLimit: true,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v6/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	for key, values := range c.header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")

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

	var sr swapResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("jupiter: decode swap response: %w", err)
	}
	if sr.SwapTransaction == "" {
		return nil, fmt.Errorf("jupiter: swap response missing transaction")
	}
	raw, err := base64.StdEncoding.DecodeString(sr.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("jupiter: decode transaction: %w", err)
	}
	return raw, nil
}
