package registry

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func TestERC20ABIParses(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(ERC20MinimalABI))
	if err != nil {
		t.Fatalf("failed to parse abi json: %v", err)
	}
	for _, method := range []string{"balanceOf", "allowance", "approve", "decimals"} {
		if _, ok := parsed.Methods[method]; !ok {
			t.Fatalf("missing method %s", method)
		}
	}
}

func TestPermit2Spender(t *testing.T) {
	addr, ok := Permit2Spender(1)
	if !ok || addr != Permit2Address {
		t.Fatalf("unexpected permit2 spender: ok=%v addr=%q", ok, addr)
	}
	if _, ok := Permit2Spender(84532); ok {
		t.Fatal("did not expect permit2 spender for unsupported chain")
	}
}

func TestIsNativeSentinel(t *testing.T) {
	for _, v := range []string{"", "0x0000000000000000000000000000000000000000", "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"} {
		if !IsNativeSentinel(v) {
			t.Fatalf("expected %q to be native", v)
		}
	}
	if IsNativeSentinel(Permit2Address) {
		t.Fatal("permit2 is not a native sentinel")
	}
}

func TestResolveRPCURL(t *testing.T) {
	got, err := ResolveRPCURL(" https://custom.example ", 1)
	if err != nil || got != "https://custom.example" {
		t.Fatalf("unexpected override result: %q %v", got, err)
	}
	got, err = ResolveRPCURL("", 84532)
	if err != nil || got == "" {
		t.Fatalf("expected default rpc for base sepolia: %q %v", got, err)
	}
	if _, err := ResolveRPCURL("", 424242); err == nil {
		t.Fatal("expected error for unknown chain")
	}
}

func TestIsAllowedStepURL(t *testing.T) {
	if !IsAllowedStepURL("") {
		t.Fatal("expected empty endpoint to be allowed")
	}
	if !IsAllowedStepURL("https://api.relay.link/execute/permits") {
		t.Fatal("expected https endpoint to be allowed")
	}
	if !IsAllowedStepURL("https://api.relay.link:443/intents/status") {
		t.Fatal("expected https endpoint with explicit default port to be allowed")
	}
	if IsAllowedStepURL("http://api.relay.link/execute/permits") {
		t.Fatal("did not expect non-https endpoint to be allowed for non-loopback")
	}
	if !IsAllowedStepURL("http://127.0.0.1:8080/status") {
		t.Fatal("expected loopback endpoint to be allowed for tests/dev")
	}
	if IsAllowedStepURL("ftp://localhost/status") {
		t.Fatal("did not expect non-http scheme")
	}
	if IsAllowedStepURL("not-a-url") {
		t.Fatal("did not expect malformed endpoint to be allowed")
	}
}

func TestSameOrigin(t *testing.T) {
	if !SameOrigin(RelayMainnetBaseURL, "https://api.relay.link:443/intents/status/v2") {
		t.Fatal("expected same origin")
	}
	if SameOrigin(RelayMainnetBaseURL, RelayTestnetBaseURL+"/quote") {
		t.Fatal("did not expect testnet host to match mainnet")
	}
	if RelayBaseURL(true) != RelayTestnetBaseURL || RelayBaseURL(false) != RelayMainnetBaseURL {
		t.Fatal("unexpected relay base selection")
	}
}
