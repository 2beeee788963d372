package id

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
)

var (
	eip155ChainPattern = regexp.MustCompile(`^eip155:[0-9]+$`)
	evmAddressPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	eip155AssetPattern = regexp.MustCompile(`^eip155:[0-9]+/erc20:0x[0-9a-fA-F]{40}$`)
)

// NativeAddress is the zero-address placeholder used for a chain's native currency.
const NativeAddress = "0x0000000000000000000000000000000000000000"

type Chain struct {
	Name       string
	Slug       string
	CAIP2      string
	EVMChainID int64
	Testnet    bool
	Explorer   string
}

type Asset struct {
	ChainID  string
	AssetID  string
	Address  string
	Symbol   string
	Decimals int
	Native   bool
}

type Token struct {
	Symbol   string
	Address  string
	Decimals int
	Native   bool
}

var chainBySlug = map[string]Chain{
	"ethereum":         {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1, Explorer: "https://etherscan.io"},
	"mainnet":          {Name: "Ethereum", Slug: "ethereum", CAIP2: "eip155:1", EVMChainID: 1, Explorer: "https://etherscan.io"},
	"optimism":         {Name: "Optimism", Slug: "optimism", CAIP2: "eip155:10", EVMChainID: 10, Explorer: "https://optimistic.etherscan.io"},
	"arbitrum":         {Name: "Arbitrum", Slug: "arbitrum", CAIP2: "eip155:42161", EVMChainID: 42161, Explorer: "https://arbiscan.io"},
	"base":             {Name: "Base", Slug: "base", CAIP2: "eip155:8453", EVMChainID: 8453, Explorer: "https://basescan.org"},
	"sepolia":          {Name: "Sepolia", Slug: "sepolia", CAIP2: "eip155:11155111", EVMChainID: 11155111, Testnet: true, Explorer: "https://sepolia.etherscan.io"},
	"optimism-sepolia": {Name: "Optimism Sepolia", Slug: "optimism-sepolia", CAIP2: "eip155:11155420", EVMChainID: 11155420, Testnet: true, Explorer: "https://sepolia-optimism.etherscan.io"},
	"arbitrum-sepolia": {Name: "Arbitrum Sepolia", Slug: "arbitrum-sepolia", CAIP2: "eip155:421614", EVMChainID: 421614, Testnet: true, Explorer: "https://sepolia.arbiscan.io"},
	"base-sepolia":     {Name: "Base Sepolia", Slug: "base-sepolia", CAIP2: "eip155:84532", EVMChainID: 84532, Testnet: true, Explorer: "https://base-sepolia.blockscout.com"},
}

var chainByID = map[int64]Chain{
	1:        chainBySlug["ethereum"],
	10:       chainBySlug["optimism"],
	8453:     chainBySlug["base"],
	42161:    chainBySlug["arbitrum"],
	11155111: chainBySlug["sepolia"],
	11155420: chainBySlug["optimism-sepolia"],
	421614:   chainBySlug["arbitrum-sepolia"],
	84532:    chainBySlug["base-sepolia"],
}

var nativeETH = Token{Symbol: "ETH", Address: NativeAddress, Decimals: 18, Native: true}

// Bootstrap registry for the supported networks. ETH is native everywhere.
var tokenRegistry = map[string][]Token{
	"eip155:1": {
		nativeETH,
		{Symbol: "USDC", Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Decimals: 6},
		{Symbol: "USDT", Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Decimals: 6},
		{Symbol: "DAI", Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Decimals: 18},
		{Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
	},
	"eip155:8453": {
		nativeETH,
		{Symbol: "USDC", Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
		{Symbol: "DAI", Address: "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb", Decimals: 18},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"eip155:42161": {
		nativeETH,
		{Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		{Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebe478A1C0b69FCbb9", Decimals: 6},
		{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
		{Symbol: "WETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
	},
	"eip155:10": {
		nativeETH,
		{Symbol: "USDC", Address: "0x7F5c764cBc14f9669B88837ca1490cCa17c31607", Decimals: 6},
		{Symbol: "USDT", Address: "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58", Decimals: 6},
		{Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"eip155:11155111": {
		nativeETH,
		{Symbol: "USDC", Address: "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238", Decimals: 6},
		{Symbol: "WETH", Address: "0xfff9976782d46cc05630d1f6ebab18b2324d6b14", Decimals: 18},
	},
	"eip155:84532": {
		nativeETH,
		{Symbol: "USDC", Address: "0x036cbd53842c5426634e7929541ec2318f3dcf7e", Decimals: 6},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"eip155:11155420": {
		nativeETH,
		{Symbol: "USDC", Address: "0x5fd84259d66Cd46123540766Be93DFE6D43130D7", Decimals: 6},
		{Symbol: "WETH", Address: "0x4200000000000000000000000000000000000006", Decimals: 18},
	},
	"eip155:421614": {
		nativeETH,
		{Symbol: "USDC", Address: "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d", Decimals: 6},
		{Symbol: "WETH", Address: "0x980B62Da83eFf3D4576C647993b0c1D7faf17c73", Decimals: 18},
	},
}

// ParseChain accepts slugs, display names ("Base Sepolia"), numeric ids and CAIP-2 ids.
func ParseChain(input string) (Chain, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Chain{}, clierr.New(clierr.CodeUsage, "chain is required")
	}
	norm := strings.ToLower(strings.Join(strings.Fields(strings.ReplaceAll(raw, "_", " ")), "-"))

	if chain, ok := chainBySlug[norm]; ok {
		return chain, nil
	}

	if eip155ChainPattern.MatchString(norm) {
		parts := strings.Split(norm, ":")
		id, _ := strconv.ParseInt(parts[1], 10, 64)
		if known, ok := chainByID[id]; ok {
			return known, nil
		}
		return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: norm, EVMChainID: id}, nil
	}

	if id, err := strconv.ParseInt(norm, 10, 64); err == nil {
		return ChainByID(id), nil
	}

	return Chain{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported chain input: %s", input))
}

// ChainByID returns the registered chain or a generic EVM descriptor.
func ChainByID(id int64) Chain {
	if chain, ok := chainByID[id]; ok {
		return chain
	}
	return Chain{Name: fmt.Sprintf("EVM-%d", id), Slug: fmt.Sprintf("evm-%d", id), CAIP2: fmt.Sprintf("eip155:%d", id), EVMChainID: id}
}

func IsKnownChain(id int64) bool {
	_, ok := chainByID[id]
	return ok
}

// Chains lists the registered networks ordered by chain id.
func Chains() []Chain {
	out := make([]Chain, 0, len(chainByID))
	for _, chain := range chainByID {
		out = append(out, chain)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EVMChainID < out[j].EVMChainID })
	return out
}

func ParseAsset(input string, chain Chain) (Asset, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return Asset{}, clierr.New(clierr.CodeUsage, "asset is required")
	}

	if strings.Contains(raw, "/") {
		if !eip155AssetPattern.MatchString(raw) {
			return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid CAIP-19 asset format: %s", input))
		}
		parts := strings.SplitN(raw, "/", 2)
		if parts[0] != chain.CAIP2 {
			return Asset{}, clierr.New(clierr.CodeUsage, "asset chain does not match --chain")
		}
		address := strings.TrimPrefix(parts[1], "erc20:")
		return assetFromAddress(chain, address), nil
	}

	if evmAddressPattern.MatchString(raw) {
		return assetFromAddress(chain, raw), nil
	}

	matches := findTokensBySymbol(chain.CAIP2, raw)
	if len(matches) == 0 {
		if strings.EqualFold(raw, "ETH") {
			return nativeAsset(chain), nil
		}
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s not found in registry for chain %s", input, chain.CAIP2))
	}
	if len(matches) > 1 {
		addresses := make([]string, 0, len(matches))
		for _, m := range matches {
			addresses = append(addresses, m.Address)
		}
		sort.Strings(addresses)
		return Asset{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("symbol %s is ambiguous on chain %s, use address or CAIP-19 (%s)", input, chain.CAIP2, strings.Join(addresses, ", ")))
	}
	t := matches[0]
	if t.Native {
		return nativeAsset(chain), nil
	}
	return Asset{
		ChainID:  chain.CAIP2,
		AssetID:  canonicalAssetID(chain.CAIP2, t.Address),
		Address:  t.Address,
		Symbol:   t.Symbol,
		Decimals: t.Decimals,
	}, nil
}

func assetFromAddress(chain Chain, address string) Asset {
	addr := strings.ToLower(strings.TrimSpace(address))
	if addr == NativeAddress {
		return nativeAsset(chain)
	}
	token, _ := findTokenByAddress(chain.CAIP2, addr)
	return Asset{ChainID: chain.CAIP2, AssetID: canonicalAssetID(chain.CAIP2, addr), Address: addr, Symbol: token.Symbol, Decimals: token.Decimals}
}

func nativeAsset(chain Chain) Asset {
	return Asset{
		ChainID:  chain.CAIP2,
		AssetID:  chain.CAIP2 + "/slip44:60",
		Address:  NativeAddress,
		Symbol:   "ETH",
		Decimals: 18,
		Native:   true,
	}
}

func IsEVMAddress(v string) bool {
	return evmAddressPattern.MatchString(strings.TrimSpace(v))
}

func canonicalAssetID(chainID, address string) string {
	return fmt.Sprintf("%s/erc20:%s", chainID, strings.ToLower(strings.TrimSpace(address)))
}

func findTokenByAddress(chainID, address string) (Token, bool) {
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Address, address) {
			return Token{
				Symbol:   strings.ToUpper(t.Symbol),
				Address:  strings.ToLower(t.Address),
				Decimals: t.Decimals,
				Native:   t.Native,
			}, true
		}
	}
	return Token{}, false
}

func findTokensBySymbol(chainID, symbol string) []Token {
	matches := []Token{}
	for _, t := range tokenRegistry[chainID] {
		if strings.EqualFold(t.Symbol, symbol) {
			matches = append(matches, Token{
				Symbol:   strings.ToUpper(t.Symbol),
				Address:  strings.ToLower(t.Address),
				Decimals: t.Decimals,
				Native:   t.Native,
			})
		}
	}
	return matches
}

func KnownToken(chainID, symbol string) (Token, bool) {
	matches := findTokensBySymbol(chainID, symbol)
	if len(matches) != 1 {
		return Token{}, false
	}
	return matches[0], true
}

func LookupByAddress(chainID, address string) (Token, bool) {
	return findTokenByAddress(chainID, strings.ToLower(strings.TrimSpace(address)))
}
