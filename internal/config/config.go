package config

import (
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "strings"
)

type Server struct {
    Port              string `json:"port"`
    RequestTimeoutSec int    `json:"request_timeout_sec"`
}

type DexScreener struct {
    Enabled               bool `json:"enabled"`
    MaxRequestsPerMinute  int  `json:"max_requests_per_minute"`
    MinRequestIntervalSec int  `json:"min_request_interval_sec"`
    Burst                 int  `json:"burst"`
}

type GeckoTerminal struct {
    Enabled               bool `json:"enabled"`
    MaxRequestsPerMinute  int  `json:"max_requests_per_minute"`
    MinRequestIntervalSec int  `json:"min_request_interval_sec"`
    Burst                 int  `json:"burst"`
}

type Birdeye struct {
    Enabled         bool   `json:"enabled"`
    APIKey          string `json:"api_key"`
    CacheTTLSeconds int    `json:"cache_ttl_sec"`
    MaxPerPass      int    `json:"max_per_pass"`
}

type Jupiter struct {
    Endpoint string `json:"endpoint"`
    APIKey   string `json:"api_key"`
}

type Solana struct {
    RPCEndpoint string `json:"rpc_endpoint"`
    WalletKey   string `json:"wallet_key"`
}

type Feed struct {
    TrendingSize       int `json:"trending_size"`
    PageSize           int `json:"page_size"`
    CorpusSize         int `json:"corpus_size"`
    TrendingTTLSeconds int `json:"trending_ttl_sec"`
    PageTTLSeconds     int `json:"page_ttl_sec"`
}

type Swap struct {
    DebounceMs        int     `json:"debounce_ms"`
    SlippagePct       float64 `json:"slippage_pct"`
    SubmitAttempts    int     `json:"submit_attempts"`
    SubmitBackoffMs   int     `json:"submit_backoff_ms"`
    ConfirmTimeoutSec int     `json:"confirm_timeout_sec"`
}

type Config struct {
    Server        Server        `json:"server"`
    DexScreener   DexScreener   `json:"dexscreener"`
    GeckoTerminal GeckoTerminal `json:"geckoterminal"`
    Birdeye       Birdeye       `json:"birdeye"`
    Jupiter       Jupiter       `json:"jupiter"`
    Solana        Solana        `json:"solana"`
    Feed          Feed          `json:"feed"`
    Swap          Swap          `json:"swap"`
}

func Default() Config {
    return Config{
        Server: Server{Port: "8080", RequestTimeoutSec: 10},
        DexScreener: DexScreener{
            Enabled:              true,
            MaxRequestsPerMinute: 60,
            Burst:                5,
        },
        GeckoTerminal: GeckoTerminal{
            Enabled:              true,
            MaxRequestsPerMinute: 30,
            Burst:                2,
        },
        Birdeye: Birdeye{
            Enabled:         false,
            CacheTTLSeconds: 1800,
            MaxPerPass:      10,
        },
        Jupiter: Jupiter{
            Endpoint: "https://quote-api.jup.ag",
        },
        Solana: Solana{
            RPCEndpoint: "https://api.mainnet-beta.solana.com",
        },
        Feed: Feed{
            TrendingSize:       5,
            PageSize:           20,
            CorpusSize:         60,
            TrendingTTLSeconds: 60,
            PageTTLSeconds:     60,
        },
        Swap: Swap{
            DebounceMs:        500,
            SlippagePct:       0.5,
            SubmitAttempts:    3,
            SubmitBackoffMs:   500,
            ConfirmTimeoutSec: 60,
        },
    }
}

// Load reads JSON config from path. If path is empty or file does not exist,
// it returns defaults. Environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
    cfg := Default()
    if path == "" {
        if _, err := os.Stat("config.json"); err == nil {
            path = "config.json"
        }
    }
    if path != "" {
        b, err := os.ReadFile(path)
        if err != nil && !errors.Is(err, os.ErrNotExist) {
            return cfg, fmt.Errorf("read config: %w", err)
        }
        if err == nil {
            if err := json.Unmarshal(b, &cfg); err != nil {
                return cfg, fmt.Errorf("parse config: %w", err)
            }
        }
    }
    applyEnv(&cfg)
    return cfg, nil
}

func applyEnv(cfg *Config) {
    if v := os.Getenv("PORT"); v != "" { cfg.Server.Port = v }
    if v := os.Getenv("REQUEST_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Server.RequestTimeoutSec = x }
    }

    if v := os.Getenv("DEXSCREENER_ENABLED"); v != "" { cfg.DexScreener.Enabled = parseBool(v, cfg.DexScreener.Enabled) }
    if v := os.Getenv("DEXSCREENER_MAX_RPM"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.DexScreener.MaxRequestsPerMinute = x }
    }
    if v := os.Getenv("DEXSCREENER_MIN_INTERVAL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.DexScreener.MinRequestIntervalSec = x }
    }
    if v := os.Getenv("DEXSCREENER_BURST"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.DexScreener.Burst = x }
    }

    if v := os.Getenv("GECKOTERMINAL_ENABLED"); v != "" { cfg.GeckoTerminal.Enabled = parseBool(v, cfg.GeckoTerminal.Enabled) }
    if v := os.Getenv("GECKOTERMINAL_MAX_RPM"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.GeckoTerminal.MaxRequestsPerMinute = x }
    }
    if v := os.Getenv("GECKOTERMINAL_MIN_INTERVAL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.GeckoTerminal.MinRequestIntervalSec = x }
    }
    if v := os.Getenv("GECKOTERMINAL_BURST"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.GeckoTerminal.Burst = x }
    }

    if v := os.Getenv("BIRDEYE_API_KEY"); v != "" { cfg.Birdeye.APIKey = v; cfg.Birdeye.Enabled = true }
    if v := os.Getenv("BIRDEYE_ENABLED"); v != "" { cfg.Birdeye.Enabled = parseBool(v, cfg.Birdeye.Enabled) }
    if v := os.Getenv("BIRDEYE_CACHE_TTL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Birdeye.CacheTTLSeconds = x }
    }
    if v := os.Getenv("BIRDEYE_MAX_PER_PASS"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Birdeye.MaxPerPass = x }
    }

    if v := os.Getenv("JUPITER_ENDPOINT"); v != "" { cfg.Jupiter.Endpoint = v }
    if v := os.Getenv("JUPITER_API_KEY"); v != "" { cfg.Jupiter.APIKey = v }

    if v := os.Getenv("SOLANA_RPC_ENDPOINT"); v != "" { cfg.Solana.RPCEndpoint = v }
    if v := os.Getenv("SOLANA_WALLET_KEY"); v != "" { cfg.Solana.WalletKey = v }

    if v := os.Getenv("FEED_TRENDING_SIZE"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Feed.TrendingSize = x }
    }
    if v := os.Getenv("FEED_PAGE_SIZE"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Feed.PageSize = x }
    }
    if v := os.Getenv("FEED_CORPUS_SIZE"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Feed.CorpusSize = x }
    }
    if v := os.Getenv("FEED_TRENDING_TTL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Feed.TrendingTTLSeconds = x }
    }
    if v := os.Getenv("FEED_PAGE_TTL_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Feed.PageTTLSeconds = x }
    }

    if v := os.Getenv("SWAP_DEBOUNCE_MS"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x >= 0 { cfg.Swap.DebounceMs = x }
    }
    if v := os.Getenv("SWAP_SLIPPAGE_PCT"); v != "" {
        var x float64; fmt.Sscanf(v, "%f", &x); if x > 0 { cfg.Swap.SlippagePct = x }
    }
    if v := os.Getenv("SWAP_SUBMIT_ATTEMPTS"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Swap.SubmitAttempts = x }
    }
    if v := os.Getenv("SWAP_CONFIRM_TIMEOUT_SEC"); v != "" {
        var x int; fmt.Sscanf(v, "%d", &x); if x > 0 { cfg.Swap.ConfirmTimeoutSec = x }
    }
}

func parseBool(v string, def bool) bool {
    switch strings.ToLower(v) {
    case "1", "true", "yes", "y":
        return true
    case "0", "false", "no", "n":
        return false
    }
    return def
}
