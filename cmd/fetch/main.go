package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"tokenfeed/internal/aggregate"
	"tokenfeed/internal/config"
	"tokenfeed/internal/httpx"
	"tokenfeed/internal/provider"
	"tokenfeed/internal/provider/birdeye"
	"tokenfeed/internal/provider/dexscreener"
	"tokenfeed/internal/provider/geckoterminal"
	"tokenfeed/internal/provider/ratelimit"
	"tokenfeed/internal/token"
)

// fetch pulls one trending snapshot or feed page and prints it as JSON,
// for inspecting what the providers return without running the server.
func main() {
	var network string
	var mode string
	var pages int
	var timeout int
	var configPath string

	flag.StringVar(&network, "network", getenv("NETWORK", "solana"), "network to query (solana, ethereum, bsc, polygon, avalanche)")
	flag.StringVar(&mode, "mode", "trending", "trending or feed")
	flag.IntVar(&pages, "pages", 1, "number of feed pages to pull (feed mode)")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 15), "request timeout seconds")
	flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config.json (optional)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if timeout != 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}

	chain, ok := token.ParseChain(network)
	if !ok {
		log.Fatalf("unknown network %q", network)
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	providers := make([]provider.Provider, 0, 2)
	if cfg.DexScreener.Enabled {
		providers = append(providers, dexscreener.New(dexscreener.Config{}, httpClient))
	}
	if cfg.GeckoTerminal.Enabled {
		providers = append(providers, geckoterminal.New(geckoterminal.Config{}, httpClient))
	}
	if len(providers) == 0 {
		log.Fatal("no providers enabled; check config.json or env overrides")
	}
	// One-shot runs still respect upstream limits when configured.
	if cfg.DexScreener.MaxRequestsPerMinute > 0 && len(providers) > 0 {
		providers[0] = &ratelimit.TokenBucketProvider{
			P:  providers[0],
			TB: ratelimit.NewTokenBucket(float64(cfg.DexScreener.MaxRequestsPerMinute)/60.0, max(cfg.DexScreener.Burst, 1)),
		}
	}

	var enricher aggregate.Enricher
	if cfg.Birdeye.Enabled && cfg.Birdeye.APIKey != "" {
		enricher = birdeye.New(birdeye.Config{APIKey: cfg.Birdeye.APIKey}, httpClient)
	}

	feed := aggregate.New(aggregate.Config{
		TrendingSize: cfg.Feed.TrendingSize,
		PageSize:     cfg.Feed.PageSize,
		CorpusSize:   cfg.Feed.CorpusSize,
	}, providers, enricher, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.RequestTimeoutSec)*time.Second*2)
	defer cancel()

	var out []token.Token
	switch mode {
	case "trending":
		out, err = feed.Trending(ctx, chain)
	case "feed":
		for i := 0; i < pages; i++ {
			var page []token.Token
			page, err = feed.NextPage(ctx, chain, i == 0)
			if err != nil {
				break
			}
			out = append(out, page...)
		}
	default:
		log.Fatalf("unknown mode %q", mode)
	}
	if err != nil {
		log.Fatalf("%s: %v", mode, err)
	}

	b, _ := json.MarshalIndent(struct {
		Network string        `json:"network"`
		Tokens  []token.Token `json:"tokens"`
	}{Network: string(chain), Tokens: out}, "", "  ")
	fmt.Println(string(b))
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		_, _ = fmt.Sscanf(v, "%d", &x)
		if x != 0 {
			return x
		}
	}
	return def
}
