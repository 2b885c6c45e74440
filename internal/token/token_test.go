package token

import "testing"

func TestParseChain_Aliases(t *testing.T) {
	cases := map[string]Chain{
		"solana":    ChainSolana,
		"SOL":       ChainSolana,
		"eth":       ChainEthereum,
		"Ethereum":  ChainEthereum,
		"bsc":       ChainBSC,
		"bnb":       ChainBSC,
		"polygon":   ChainPolygon,
		"matic":     ChainPolygon,
		"avalanche": ChainAvalanche,
		"avax":      ChainAvalanche,
	}
	for in, want := range cases {
		got, ok := ParseChain(in)
		if !ok || got != want {
			t.Fatalf("ParseChain(%q) = %s %v, want %s", in, got, ok, want)
		}
	}
	if _, ok := ParseChain("dogechain"); ok {
		t.Fatal("unknown chain accepted")
	}
}

func TestQuoteAccepted(t *testing.T) {
	for _, sym := range []string{"SOL", "usdc", "WETH", "Usdt"} {
		if !QuoteAccepted(sym) {
			t.Fatalf("%q should be accepted", sym)
		}
	}
	for _, sym := range []string{"", "SHIB", "RANDOM"} {
		if QuoteAccepted(sym) {
			t.Fatalf("%q should be rejected", sym)
		}
	}
}

func TestAvatarFor_DeterministicAndBounded(t *testing.T) {
	a := AvatarFor("BONK")
	b := AvatarFor("BONK")
	if a != b {
		t.Fatalf("avatar not stable: %s vs %s", a, b)
	}
	if a == "" {
		t.Fatal("empty avatar id")
	}
	if AvatarFor("WIF") == "" {
		t.Fatal("empty avatar id for WIF")
	}
}
