package id

import (
	"strings"
	"testing"
)

func TestParseChainInputs(t *testing.T) {
	cases := []struct {
		in      string
		id      int64
		slug    string
		testnet bool
	}{
		{"base", 8453, "base", false},
		{"mainnet", 1, "ethereum", false},
		{"Base Sepolia", 84532, "base-sepolia", true},
		{" arbitrum_sepolia ", 421614, "arbitrum-sepolia", true},
		{"11155111", 11155111, "sepolia", true},
		{"eip155:10", 10, "optimism", false},
	}
	for _, tc := range cases {
		chain, err := ParseChain(tc.in)
		if err != nil {
			t.Fatalf("ParseChain(%q): %v", tc.in, err)
		}
		if chain.EVMChainID != tc.id || chain.Slug != tc.slug || chain.Testnet != tc.testnet {
			t.Fatalf("ParseChain(%q) = %+v", tc.in, chain)
		}
	}
}

func TestParseChainUnknownNumericIsAccepted(t *testing.T) {
	chain, err := ParseChain("eip155:999999")
	if err != nil {
		t.Fatalf("ParseChain: %v", err)
	}
	if chain.EVMChainID != 999999 || IsKnownChain(999999) {
		t.Fatalf("unexpected chain: %+v", chain)
	}
	if _, err := ParseChain("solana"); err == nil {
		t.Fatal("expected error for non-EVM name")
	}
}

func TestParseAssetResolvesRegistryTokens(t *testing.T) {
	base, _ := ParseChain("base-sepolia")
	cases := []struct {
		in       string
		symbol   string
		decimals int
		native   bool
	}{
		{in: "USDC", symbol: "USDC", decimals: 6},
		{in: "eth", symbol: "ETH", decimals: 18, native: true},
		{in: "0x036CbD53842c5426634e7929541eC2318f3dCF7e", symbol: "USDC", decimals: 6},
		{in: "eip155:84532/erc20:0x4200000000000000000000000000000000000006", symbol: "WETH", decimals: 18},
	}
	for _, tc := range cases {
		asset, err := ParseAsset(tc.in, base)
		if err != nil {
			t.Fatalf("ParseAsset(%q): %v", tc.in, err)
		}
		if asset.Symbol != tc.symbol || asset.Decimals != tc.decimals || asset.Native != tc.native {
			t.Fatalf("ParseAsset(%q) = %+v", tc.in, asset)
		}
		if !strings.HasPrefix(asset.AssetID, "eip155:84532/") {
			t.Fatalf("asset id %q not scoped to chain", asset.AssetID)
		}
	}
}

func TestParseAssetNativeOnUnknownChain(t *testing.T) {
	asset, err := ParseAsset("ETH", ChainByID(999))
	if err != nil {
		t.Fatalf("ParseAsset: %v", err)
	}
	if !asset.Native || asset.Address != NativeAddress {
		t.Fatalf("expected native fallback, got %+v", asset)
	}
}

func TestParseAssetRejectsForeignCAIP19(t *testing.T) {
	base, _ := ParseChain("base")
	if _, err := ParseAsset("eip155:1/erc20:0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", base); err == nil {
		t.Fatal("expected chain mismatch error")
	}
	if _, err := ParseAsset("PEPE", base); err == nil {
		t.Fatal("expected unknown symbol error")
	}
}

func TestChainsAreSortedAndUnique(t *testing.T) {
	chains := Chains()
	if len(chains) != len(chainByID) {
		t.Fatalf("expected %d chains, got %d", len(chainByID), len(chains))
	}
	for i := 1; i < len(chains); i++ {
		if chains[i-1].EVMChainID >= chains[i].EVMChainID {
			t.Fatalf("chains not sorted: %d before %d", chains[i-1].EVMChainID, chains[i].EVMChainID)
		}
	}
}
