package birdeye

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"tokenfeed/internal/cache"
	"tokenfeed/internal/httpx"
	"tokenfeed/internal/provider"
	"tokenfeed/internal/token"
)

// Config controls the Birdeye enrichment provider.
type Config struct {
	Name    string
	BaseURL string
	// APIKey gates the provider. When empty the enricher is a no-op;
	// enrichment degrades, it never fails.
	APIKey string
	// MetadataTTL caches per-token overviews. Defaults to 30 minutes.
	MetadataTTL time.Duration
	// RequestTimeout bounds each upstream call. Defaults to 5s.
	RequestTimeout time.Duration
	// MaxPerPass caps how many tokens one Enrich call will look up.
	MaxPerPass int
}

// Enricher decorates already-normalized tokens with holder counts, logos
// and social links from Birdeye. It is not a listing Provider: it only
// fills gaps in records the aggregator has already accepted.
type Enricher struct {
	cfg    Config
	client *httpx.Client
	meta   *cache.TTL[string, overview]
}

func New(cfg Config, hc *httpx.Client) *Enricher {
	if cfg.Name == "" {
		cfg.Name = "Birdeye"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://public-api.birdeye.so"
	}
	if cfg.MetadataTTL <= 0 {
		cfg.MetadataTTL = 30 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}
	if cfg.MaxPerPass <= 0 {
		cfg.MaxPerPass = 10
	}
	return &Enricher{cfg: cfg, client: hc, meta: cache.New[string, overview]()}
}

func (e *Enricher) Name() string { return e.cfg.Name }

// Enabled reports whether an API key is configured.
func (e *Enricher) Enabled() bool { return e.cfg.APIKey != "" }

// Enrich fills holder counts and missing artwork/socials in place.
// Upstream failures leave tokens untouched.
func (e *Enricher) Enrich(ctx context.Context, tokens []token.Token) {
	if !e.Enabled() {
		return
	}
	looked := 0
	for i := range tokens {
		t := &tokens[i]
		if t.BaseAddress == "" {
			continue
		}
		ov, ok := e.meta.Get(t.BaseAddress)
		if !ok {
			if looked >= e.cfg.MaxPerPass {
				continue
			}
			looked++
			fetched, err := e.overview(ctx, t.Chain, t.BaseAddress)
			if err != nil {
				continue
			}
			ov = fetched
			e.meta.Set(t.BaseAddress, ov, e.cfg.MetadataTTL)
		}
		apply(t, ov)
	}
}

func apply(t *token.Token, ov overview) {
	if t.HolderCount == 0 {
		t.HolderCount = ov.Holder
	}
	if t.ImageURL == "" && ov.LogoURI != "" {
		t.ImageURL = ov.LogoURI
	}
	if t.Socials == nil && (ov.Extensions.Website != "" || ov.Extensions.Twitter != "" || ov.Extensions.Telegram != "") {
		t.Socials = &token.Socials{
			Website:  ov.Extensions.Website,
			Twitter:  ov.Extensions.Twitter,
			Telegram: ov.Extensions.Telegram,
		}
	}
}

func (e *Enricher) overview(ctx context.Context, chain token.Chain, address string) (overview, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	u := strings.TrimRight(e.cfg.BaseURL, "/") + "/defi/token_overview?address=" + url.QueryEscape(address)
	headers := map[string]string{
		"X-API-KEY": e.cfg.APIKey,
		"x-chain":   string(chain),
	}
	var resp overviewResponse
	if err := e.client.GetJSON(reqCtx, u, headers, &resp); err != nil {
		if se, ok := err.(*httpx.StatusError); ok {
			return overview{}, &provider.Error{Provider: e.cfg.Name, Status: se.Status, Message: se.Body}
		}
		return overview{}, provider.WrapTimeout(e.cfg.Name, fmt.Errorf("overview %s: %w", address, err))
	}
	if !resp.Success {
		return overview{}, fmt.Errorf("%s: overview %s: unsuccessful response", e.cfg.Name, address)
	}
	return resp.Data, nil
}

type overviewResponse struct {
	Success bool     `json:"success"`
	Data    overview `json:"data"`
}

type overview struct {
	Holder     int    `json:"holder"`
	LogoURI    string `json:"logoURI"`
	Extensions struct {
		Website  string `json:"website"`
		Twitter  string `json:"twitter"`
		Telegram string `json:"telegram"`
	} `json:"extensions"`
}
