package registry

import (
	"fmt"
	"strings"
)

// Canonical default EVM RPC endpoints by chain ID.
// Config rpc overrides take precedence.
var defaultRPCByChainID = map[int64]string{
	1:        "https://eth.llamarpc.com",
	10:       "https://mainnet.optimism.io",
	8453:     "https://mainnet.base.org",
	42161:    "https://arb1.arbitrum.io/rpc",
	11155111: "https://ethereum-sepolia-rpc.publicnode.com",
	11155420: "https://optimism-sepolia.publicnode.com",
	421614:   "https://arbitrum-sepolia.publicnode.com",
	84532:    "https://base-sepolia.public.blastapi.io",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", fmt.Errorf("no rpc configured for chain id %d; set rpc.%d in config", chainID, chainID)
}
