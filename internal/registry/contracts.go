package registry

import "strings"

// Permit2 is deployed at the same address on every supported chain.
const Permit2Address = "0x000000000022D473030F116dDEE9F6B43aC78BA3"

// NativeTokenSentinel is how the 0x APIs name the chain's native currency.
const NativeTokenSentinel = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// Chains the 0x swap and gasless APIs accept.
var zeroXChainIDs = map[int64]struct{}{
	1:        {},
	10:       {},
	8453:     {},
	42161:    {},
	11155111: {},
}

func Permit2Spender(chainID int64) (string, bool) {
	if _, ok := zeroXChainIDs[chainID]; !ok {
		return "", false
	}
	return Permit2Address, true
}

func ZeroXSupportsChain(chainID int64) bool {
	_, ok := zeroXChainIDs[chainID]
	return ok
}

// IsNativeSentinel reports whether addr is one of the placeholders aggregators use for the native currency.
func IsNativeSentinel(addr string) bool {
	a := strings.ToLower(strings.TrimSpace(addr))
	return a == "" || a == "0x0000000000000000000000000000000000000000" || a == strings.ToLower(NativeTokenSentinel)
}
