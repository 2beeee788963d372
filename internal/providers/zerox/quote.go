package zerox

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ggonzalez94/wallet-agent/internal/chain"
	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/execution/signer"
	"github.com/ggonzalez94/wallet-agent/internal/guard"
	"github.com/ggonzalez94/wallet-agent/internal/httpx"
	"github.com/ggonzalez94/wallet-agent/internal/model"
	"github.com/ggonzalez94/wallet-agent/internal/providers"
	"github.com/ggonzalez94/wallet-agent/internal/registry"
)

// Chain is the slice of the chain adapter both drivers use.
type Chain interface {
	chain.Reader
	SendTransaction(ctx context.Context, binding chain.Binding, req chain.TxRequest) (common.Hash, error)
	WaitForReceipt(ctx context.Context, chainID int64, hash common.Hash, opts chain.ReceiptOptions) (*types.Receipt, error)
	SignTypedData(ctx context.Context, binding chain.Binding, data apitypes.TypedData) ([]byte, error)
}

type Options struct {
	Receipt         chain.ReceiptOptions
	PollInterval    time.Duration
	PollMaxAttempts uint
}

func DefaultOptions() Options {
	return Options{Receipt: chain.DefaultReceiptOptions(), PollInterval: 3 * time.Second, PollMaxAttempts: 20}
}

func providerInfo(name string, capabilities ...string) model.ProviderInfo {
	auth := make([]model.ProviderCapabilityAuth, 0, len(capabilities))
	for _, c := range capabilities {
		auth = append(auth, model.ProviderCapabilityAuth{Capability: c, KeyEnvVar: KeyEnvVar})
	}
	return model.ProviderInfo{
		Name:           name,
		Type:           "swap",
		RequiresKey:    true,
		KeyEnvVarName:  KeyEnvVar,
		Capabilities:   capabilities,
		CapabilityAuth: auth,
	}
}

func validateRequest(req providers.SwapQuoteRequest) error {
	if !registry.ZeroXSupportsChain(req.ChainID) {
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("0x does not support chain %d", req.ChainID))
	}
	if !common.IsHexAddress(req.Taker) {
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid taker address %q", req.Taker))
	}
	if strings.TrimSpace(req.SellToken) == "" || strings.TrimSpace(req.BuyToken) == "" {
		return clierr.New(clierr.CodeUsage, "sellToken and buyToken are required")
	}
	if _, err := sellAmount(req); err != nil {
		return err
	}
	return nil
}

func sellAmount(req providers.SwapQuoteRequest) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(req.SellAmount), 10)
	if !ok || v.Sign() <= 0 {
		return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("sellAmount must be a positive base-unit integer, got %q", req.SellAmount))
	}
	return v, nil
}

// summarize maps the firm quote into the shared output fields.
func summarize(provider string, quoteData map[string]any) providers.SwapQuote {
	gas := str(quoteData["estimatedGas"])
	if gas == "" {
		gas = str(quoteData["gas"])
	}
	return providers.SwapQuote{
		Provider:    provider,
		Output:      str(quoteData["buyAmount"]),
		Gas:         gas,
		Time:        str(quoteData["expectedDuration"]),
		PriceImpact: priceImpact(quoteData["estimatedPriceImpact"]),
	}
}

func failed(provider, gas, prefix string, err error) providers.SwapQuote {
	q := providers.SwapQuote{
		Provider: provider,
		Output:   "0",
		Gas:      gas,
		Reason:   fmt.Sprintf("%s: %s", prefix, err.Error()),
	}
	if se, ok := httpx.AsStatusError(err); ok {
		q.RawQuote = se.Details()
	}
	return q
}

func successReason(quoteData map[string]any, fallback string) string {
	if r := str(quoteData["reason"]); r != "" {
		return r
	}
	return fallback
}

// checkBalance runs the guard on the sell token. A false result always carries a reason.
func checkBalance(ctx context.Context, g *guard.Guard, req providers.SwapQuoteRequest) (bool, string) {
	amount, _ := sellAmount(req)
	br := guard.BalanceRequest{
		Wallet:         common.HexToAddress(req.Taker),
		RequiredAmount: amount,
		ChainID:        req.ChainID,
	}
	if !registry.IsNativeSentinel(req.SellToken) {
		token := common.HexToAddress(req.SellToken)
		br.Token = &token
	}
	res := g.CheckBalance(ctx, br)
	if res.Error != "" {
		return false, fmt.Sprintf("Error checking on-chain balance for taker address %s.", req.Taker)
	}
	if !res.HasSufficientBalance {
		return false, fmt.Sprintf("Insufficient balance: taker address %s has %s, needs %s.", req.Taker, res.CurrentBalance, res.RequiredAmount)
	}
	return true, ""
}

func bindAccount(req providers.SwapQuoteRequest) (chain.Binding, error) {
	if got := req.Account.Address(); !strings.EqualFold(got.Hex(), common.HexToAddress(req.Taker).Hex()) {
		return chain.Binding{}, clierr.New(clierr.CodeSigner, fmt.Sprintf("signer %s does not match taker %s", got.Hex(), req.Taker))
	}
	return chain.Binding{ChainID: req.ChainID, Account: req.Account}, nil
}

// typedDataAt extracts an EIP-712 payload nested under path, e.g. permit2.eip712.
func typedDataAt(m map[string]any, path ...string) (apitypes.TypedData, bool, error) {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return apitypes.TypedData{}, false, nil
		}
		cur, ok = obj[key]
		if !ok || cur == nil {
			return apitypes.TypedData{}, false, nil
		}
	}
	raw, err := json.Marshal(cur)
	if err != nil {
		return apitypes.TypedData{}, true, err
	}
	td, err := signer.ParseTypedData(raw)
	if err != nil {
		return apitypes.TypedData{}, true, clierr.Wrap(clierr.CodeMalformedQuote, strings.Join(path, "."), err)
	}
	return td, true, nil
}

func object(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func priceImpact(v any) string {
	s := str(v)
	if s == "" {
		return ""
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f == 0 {
		return ""
	}
	return fmt.Sprintf("%.2f%%", f*100)
}

func parseUint(v any) (*big.Int, error) {
	s := strings.TrimSpace(str(v))
	if s == "" {
		return new(big.Int), nil
	}
	digits, base := s, 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits, base = s[2:], 16
	}
	if strings.HasPrefix(digits, "-") || strings.HasPrefix(digits, "+") {
		return nil, fmt.Errorf("invalid unsigned integer %q", s)
	}
	if n, ok := new(big.Int).SetString(digits, base); ok && n.Sign() >= 0 {
		return n, nil
	}
	return nil, fmt.Errorf("invalid unsigned integer %q", s)
}

// splitSignature renders a 65-byte signature the way the gasless submit endpoint expects.
func splitSignature(sig []byte) (map[string]any, error) {
	r, sv, v, err := signer.Split(sig)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "split signature", err)
	}
	return map[string]any{
		"v":             int(v),
		"r":             hexutil.Encode(r[:]),
		"s":             hexutil.Encode(sv[:]),
		"signatureType": 2,
	}, nil
}
