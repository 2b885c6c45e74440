package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tokenfeed/internal/aggregate"
	"tokenfeed/internal/config"
	"tokenfeed/internal/httpx"
	"tokenfeed/internal/metrics"
	"tokenfeed/internal/provider"
	"tokenfeed/internal/provider/birdeye"
	"tokenfeed/internal/provider/dexscreener"
	"tokenfeed/internal/provider/geckoterminal"
	"tokenfeed/internal/provider/jupiter"
	"tokenfeed/internal/provider/ratelimit"
	"tokenfeed/internal/stream"
	"tokenfeed/internal/swap"
	"tokenfeed/internal/token"
)

type feedResponse struct {
	Network string        `json:"network"`
	Tokens  []token.Token `json:"tokens"`
}

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfgPath := os.Getenv("CONFIG_FILE")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal("config", zap.Error(err))
	}

	if cfg.Birdeye.Enabled && cfg.Birdeye.APIKey == "" {
		log.Warn("birdeye.enabled=true but BIRDEYE_API_KEY not set; enrichment disabled")
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	httpClient.UserAgent = "tokenfeed/1.0"

	var providers []provider.Provider
	if cfg.DexScreener.Enabled {
		var p provider.Provider = dexscreener.New(dexscreener.Config{}, httpClient)
		providers = append(providers, limited(p, cfg.DexScreener.MaxRequestsPerMinute, cfg.DexScreener.Burst, cfg.DexScreener.MinRequestIntervalSec))
	}
	if cfg.GeckoTerminal.Enabled {
		var p provider.Provider = geckoterminal.New(geckoterminal.Config{}, httpClient)
		providers = append(providers, limited(p, cfg.GeckoTerminal.MaxRequestsPerMinute, cfg.GeckoTerminal.Burst, cfg.GeckoTerminal.MinRequestIntervalSec))
	}
	if len(providers) == 0 {
		log.Fatal("no listing providers enabled")
	}

	var enricher aggregate.Enricher
	if cfg.Birdeye.Enabled && cfg.Birdeye.APIKey != "" {
		enricher = birdeye.New(birdeye.Config{
			APIKey:      cfg.Birdeye.APIKey,
			MetadataTTL: time.Duration(cfg.Birdeye.CacheTTLSeconds) * time.Second,
			MaxPerPass:  cfg.Birdeye.MaxPerPass,
		}, httpClient)
	}

	feed := aggregate.New(aggregate.Config{
		TrendingSize: cfg.Feed.TrendingSize,
		PageSize:     cfg.Feed.PageSize,
		CorpusSize:   cfg.Feed.CorpusSize,
		TrendingTTL:  time.Duration(cfg.Feed.TrendingTTLSeconds) * time.Second,
		PageTTL:      time.Duration(cfg.Feed.PageTTLSeconds) * time.Second,
	}, providers, enricher, log.Named("feed"))

	jupOpts := []jupiter.ClientOption{
		jupiter.WithBaseURL(cfg.Jupiter.Endpoint),
		jupiter.WithHTTPClient(httpClient.HTTP),
	}
	if cfg.Jupiter.APIKey != "" {
		jupOpts = append(jupOpts, jupiter.WithHeader(http.Header{"X-API-KEY": []string{cfg.Jupiter.APIKey}}))
	}
	jup := jupiter.NewClient(jupOpts...)

	ledger := swap.NewRPCLedger(cfg.Solana.RPCEndpoint, log.Named("ledger"))
	quotes := swap.NewPipeline(jup, ledger, log.Named("quote"),
		swap.WithDebounce(time.Duration(cfg.Swap.DebounceMs)*time.Millisecond))

	var wallet swap.Wallet
	if cfg.Solana.WalletKey != "" {
		w, err := swap.NewLocalWallet(cfg.Solana.WalletKey)
		if err != nil {
			log.Fatal("wallet", zap.Error(err))
		}
		wallet = w
		log.Info("wallet loaded", zap.Stringer("pubkey", w.PublicKey()))
	}
	execCfg := swap.ExecutionConfig{
		SubmitAttempts: cfg.Swap.SubmitAttempts,
		SubmitBackoff:  time.Duration(cfg.Swap.SubmitBackoffMs) * time.Millisecond,
		ConfirmTimeout: time.Duration(cfg.Swap.ConfirmTimeoutSec) * time.Second,
	}

	hub := stream.NewHub(log.Named("stream"))

	api := http.NewServeMux()
	api.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	api.HandleFunc("/api/trending", func(w http.ResponseWriter, r *http.Request) {
		handleTrending(w, r, feed)
	})
	api.HandleFunc("/api/feed", func(w http.ResponseWriter, r *http.Request) {
		handleFeed(w, r, feed)
	})
	api.HandleFunc("/api/quote", func(w http.ResponseWriter, r *http.Request) {
		handleQuote(w, r, quotes, cfg.Swap.SlippagePct)
	})
	api.HandleFunc("/api/swap", func(w http.ResponseWriter, r *http.Request) {
		handleSwap(w, r, quotes, wallet, ledger, jup, execCfg, cfg.Swap.SlippagePct, log)
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/ws/trending", hub)
	mux.Handle("/", withJSONHeaders(withGzip(recoverPanic(limitBody(api)))))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go broadcastTrending(ctx, feed, hub, time.Duration(cfg.Feed.TrendingTTLSeconds)*time.Second, log)

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// limited wraps p the way the config asks: token bucket when RPM is set,
// min-interval otherwise, bare when neither is.
func limited(p provider.Provider, rpm, burst, minIntervalSec int) provider.Provider {
	if rpm > 0 {
		if burst <= 0 {
			burst = 1
		}
		return &ratelimit.TokenBucketProvider{P: p, TB: ratelimit.NewTokenBucket(float64(rpm)/60.0, burst)}
	}
	if minIntervalSec > 0 {
		return &ratelimit.MinInterval{P: p, Interval: time.Duration(minIntervalSec) * time.Second}
	}
	return p
}

// broadcastTrending pushes a fresh trending snapshot to websocket clients
// once per cache period.
func broadcastTrending(ctx context.Context, feed *aggregate.Service, hub *stream.Hub, period time.Duration, log *zap.Logger) {
	if period <= 0 {
		period = time.Minute
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if hub.ClientCount() == 0 {
			continue
		}
		tokens, err := feed.Trending(ctx, token.ChainSolana)
		if err != nil {
			log.Warn("trending broadcast skipped", zap.Error(err))
			continue
		}
		hub.Broadcast(feedResponse{Network: string(token.ChainSolana), Tokens: tokens})
	}
}

func parseNetwork(r *http.Request) (token.Chain, bool) {
	raw := r.URL.Query().Get("network")
	if raw == "" {
		return token.ChainSolana, true
	}
	return token.ParseChain(raw)
}

func handleTrending(w http.ResponseWriter, r *http.Request, feed *aggregate.Service) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	network, ok := parseNetwork(r)
	if !ok {
		http.Error(w, "unknown network", http.StatusBadRequest)
		return
	}
	tokens, err := feed.Trending(r.Context(), network)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, feedResponse{Network: string(network), Tokens: tokens})
}

func handleFeed(w http.ResponseWriter, r *http.Request, feed *aggregate.Service) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	network, ok := parseNetwork(r)
	if !ok {
		http.Error(w, "unknown network", http.StatusBadRequest)
		return
	}
	reset := false
	switch strings.ToLower(r.URL.Query().Get("reset")) {
	case "1", "true", "yes":
		reset = true
	}
	tokens, err := feed.NextPage(r.Context(), network, reset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, feedResponse{Network: string(network), Tokens: tokens})
}

type quoteBody struct {
	InputMint   string  `json:"input_mint"`
	OutputMint  string  `json:"output_mint"`
	Amount      string  `json:"amount"`
	SlippagePct float64 `json:"slippage_pct"`
}

type quoteResponse struct {
	EstimatedOutput string  `json:"estimated_output"`
	MinimumReceived string  `json:"minimum_received"`
	PriceImpactPct  float64 `json:"price_impact_pct"`
	SlippageBps     int     `json:"slippage_bps"`
	DecimalsAssumed bool    `json:"decimals_assumed,omitempty"`
}

func decodeQuoteBody(w http.ResponseWriter, r *http.Request, defaultSlippagePct float64) (quoteBody, bool) {
	var b quoteBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&b); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return b, false
	}
	if b.InputMint == "" || b.OutputMint == "" || b.Amount == "" {
		http.Error(w, "input_mint, output_mint and amount are required", http.StatusBadRequest)
		return b, false
	}
	if b.SlippagePct == 0 {
		b.SlippagePct = defaultSlippagePct
	}
	return b, true
}

func handleQuote(w http.ResponseWriter, r *http.Request, quotes *swap.Pipeline, defaultSlippagePct float64) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	b, ok := decodeQuoteBody(w, r, defaultSlippagePct)
	if !ok {
		return
	}
	view, err := quotes.QuoteNow(r.Context(), swap.Input{
		InputMint:   b.InputMint,
		OutputMint:  b.OutputMint,
		AmountText:  b.Amount,
		SlippagePct: b.SlippagePct,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, quoteResponse{
		EstimatedOutput: view.EstimatedOutput.String(),
		MinimumReceived: view.MinimumReceived.String(),
		PriceImpactPct:  view.PriceImpactPct,
		SlippageBps:     view.Quote.SlippageBps,
		DecimalsAssumed: view.DecimalsAssumed,
	})
}

type swapResponse struct {
	Signature string `json:"signature"`
	Status    string `json:"status"`
}

func handleSwap(w http.ResponseWriter, r *http.Request, quotes *swap.Pipeline, wallet swap.Wallet, ledger swap.Ledger, txs swap.TransactionService, cfg swap.ExecutionConfig, defaultSlippagePct float64, log *zap.Logger) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if wallet == nil {
		http.Error(w, "no wallet configured", http.StatusServiceUnavailable)
		return
	}
	b, ok := decodeQuoteBody(w, r, defaultSlippagePct)
	if !ok {
		return
	}
	view, err := quotes.QuoteNow(r.Context(), swap.Input{
		InputMint:   b.InputMint,
		OutputMint:  b.OutputMint,
		AmountText:  b.Amount,
		SlippagePct: b.SlippagePct,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	exec := swap.NewExecution(view.Quote, wallet, ledger, txs, cfg, log.Named("exec"))
	sig, err := exec.Run(r.Context())
	if err != nil {
		resp := map[string]string{"status": string(exec.Status()), "error": err.Error()}
		if !sig.IsZero() {
			resp["signature"] = sig.String()
		}
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(resp)
		return
	}
	writeJSON(w, swapResponse{Signature: sig.String(), Status: string(exec.Status())})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
