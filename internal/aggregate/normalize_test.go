package aggregate

import (
	"testing"
	"time"

	"tokenfeed/internal/provider"
	"tokenfeed/internal/token"
)

func TestNormalize_RejectsRecordsWithoutIdentityOrPrice(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		raw  provider.RawPair
	}{
		{"no pair id", provider.RawPair{Chain: "solana", BaseSymbol: "BONK", PriceUSD: "1"}},
		{"no base symbol", provider.RawPair{PairID: "p", Chain: "solana", PriceUSD: "1"}},
		{"blank base symbol", provider.RawPair{PairID: "p", Chain: "solana", BaseSymbol: "  ", PriceUSD: "1"}},
		{"unparsable price", provider.RawPair{PairID: "p", Chain: "solana", BaseSymbol: "BONK", PriceUSD: "n/a"}},
		{"negative price", provider.RawPair{PairID: "p", Chain: "solana", BaseSymbol: "BONK", PriceUSD: "-1"}},
		{"unknown chain", provider.RawPair{PairID: "p", Chain: "dogechain", BaseSymbol: "BONK", PriceUSD: "1"}},
	}
	for _, tc := range cases {
		if _, ok := Normalize(tc.raw, now); ok {
			t.Fatalf("%s: want rejection, got acceptance", tc.name)
		}
	}
}

func TestNormalize_MarketCapFallsBackToFDV(t *testing.T) {
	now := time.Now()
	raw := provider.RawPair{
		PairID: "p", Chain: "solana", BaseSymbol: "BONK", PriceUSD: "1",
		FDVUSD: 5_000_000,
	}
	tok, ok := Normalize(raw, now)
	if !ok {
		t.Fatal("want acceptance")
	}
	if tok.MarketCapUSD != 5_000_000 {
		t.Fatalf("want FDV fallback, got %v", tok.MarketCapUSD)
	}

	raw.MarketCapUSD = 3_000_000
	tok, _ = Normalize(raw, now)
	if tok.MarketCapUSD != 3_000_000 {
		t.Fatalf("want market cap to win over FDV, got %v", tok.MarketCapUSD)
	}
}

func TestNormalize_NewListingFlag(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	raw := provider.RawPair{PairID: "p", Chain: "solana", BaseSymbol: "BONK", PriceUSD: "1"}

	raw.CreatedAtMs = now.Add(-2 * time.Hour).UnixMilli()
	tok, _ := Normalize(raw, now)
	if !tok.New {
		t.Fatal("2h-old pair should carry the new flag")
	}

	raw.CreatedAtMs = now.Add(-48 * time.Hour).UnixMilli()
	tok, _ = Normalize(raw, now)
	if tok.New {
		t.Fatal("48h-old pair should not carry the new flag")
	}

	raw.CreatedAtMs = 0
	tok, _ = Normalize(raw, now)
	if tok.New {
		t.Fatal("unknown creation time should not carry the new flag")
	}
}

func TestNormalize_AvatarAssignedOnlyWithoutImage(t *testing.T) {
	now := time.Now()
	raw := provider.RawPair{PairID: "p", Chain: "solana", BaseSymbol: "BONK", PriceUSD: "1"}

	tok, _ := Normalize(raw, now)
	if tok.AvatarID == "" {
		t.Fatal("want a deterministic avatar when no image is present")
	}
	again, _ := Normalize(raw, now)
	if again.AvatarID != tok.AvatarID {
		t.Fatalf("avatar not stable: %s vs %s", again.AvatarID, tok.AvatarID)
	}

	raw.ImageURL = "https://img.example/bonk.png"
	tok, _ = Normalize(raw, now)
	if tok.AvatarID != "" {
		t.Fatalf("image-bearing token should not get an avatar, got %s", tok.AvatarID)
	}
}

func TestNormalize_ChainAliasesAndQuoteCasing(t *testing.T) {
	now := time.Now()
	raw := provider.RawPair{PairID: "p", Chain: "eth", BaseSymbol: "PEPE", QuoteSymbol: "weth", PriceUSD: "0.0001"}
	tok, ok := Normalize(raw, now)
	if !ok {
		t.Fatal("want acceptance for eth alias")
	}
	if tok.Chain != token.ChainEthereum {
		t.Fatalf("want ethereum, got %s", tok.Chain)
	}
	if tok.QuoteSymbol != "WETH" {
		t.Fatalf("want upper-cased quote, got %s", tok.QuoteSymbol)
	}
}

func TestNormalize_NegativeVolumeAndLiquidityFloored(t *testing.T) {
	now := time.Now()
	raw := provider.RawPair{
		PairID: "p", Chain: "solana", BaseSymbol: "BONK", PriceUSD: "1",
		Volume24: -5, LiquidityUSD: -10,
	}
	tok, _ := Normalize(raw, now)
	if tok.Volume24 != 0 || tok.LiquidityUSD != 0 {
		t.Fatalf("want negative figures floored to zero, got %+v", tok)
	}
}
