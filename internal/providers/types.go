package providers

import (
	"context"

	"github.com/ggonzalez94/wallet-agent/internal/execution/signer"
	"github.com/ggonzalez94/wallet-agent/internal/model"
)

type Provider interface {
	Info() model.ProviderInfo
}

// DEXAggregator drivers never return an error: every failure becomes a SwapQuote
// with Recommended=false and a Reason.
type DEXAggregator interface {
	Provider
	GetSwapQuote(ctx context.Context, req SwapQuoteRequest) []SwapQuote
}

type SwapQuoteRequest struct {
	ChainID    int64
	SellToken  string
	BuyToken   string
	SellAmount string
	Taker      string
	// Account lets the driver approve, sign and submit. Nil means quote only.
	Account signer.Signer
}

type SwapQuote struct {
	Provider        string `json:"provider"`
	Output          string `json:"output"`
	Gas             string `json:"gas"`
	Time            string `json:"time"`
	PriceImpact     string `json:"price_impact"`
	Recommended     bool   `json:"recommended"`
	Reason          string `json:"reason"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	TradeHash       string `json:"trade_hash,omitempty"`
	RawQuote        any    `json:"raw_quote,omitempty"`
}
