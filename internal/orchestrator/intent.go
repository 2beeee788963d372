package orchestrator

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/id"
	"github.com/ggonzalez94/wallet-agent/internal/preview"
	"github.com/ggonzalez94/wallet-agent/internal/providers/relay"
)

type Intent string

const (
	IntentSwap     Intent = "Swap"
	IntentBridge   Intent = "Bridge"
	IntentTransfer Intent = "Transfer"
)

// IntentRequest is an already-structured user intent.
type IntentRequest struct {
	Intent        Intent `json:"intent"`
	SourceNetwork string `json:"source_network"`
	// DestNetwork defaults to SourceNetwork.
	DestNetwork string `json:"dest_network,omitempty"`
	Token       string `json:"token"`
	// BuyToken is the output token of a Swap.
	BuyToken  string `json:"buy_token,omitempty"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient,omitempty"`
	UID       string `json:"uid,omitempty"`
}

// plan is an intent resolved against the chain and token registry.
type plan struct {
	kind        preview.Kind
	origin      id.Chain
	destination id.Chain
	sell        id.Asset
	buy         id.Asset
	amount      *big.Int
	amountText  string
	recipient   string
}

func (p plan) quoteRequest(user common.Address) relay.QuoteRequest {
	return relay.QuoteRequest{
		User:                user.Hex(),
		Recipient:           p.recipient,
		OriginChainID:       p.origin.EVMChainID,
		DestinationChainID:  p.destination.EVMChainID,
		OriginCurrency:      p.sell.Address,
		DestinationCurrency: p.buy.Address,
		Amount:              p.amount.String(),
		TradeType:           relay.TradeTypeExactInput,
	}
}

func (p plan) previewRequest(from common.Address) preview.Request {
	return preview.Request{
		Type:      p.kind,
		From:      from,
		To:        p.recipient,
		Amount:    p.amountText,
		Token:     p.sell.Symbol,
		ChainID:   p.origin.EVMChainID,
		AmountWei: p.nativeValue(),
	}
}

// QuoteRequestFor resolves req into the relay quote body for user without executing anything.
func QuoteRequestFor(req IntentRequest, user common.Address) (relay.QuoteRequest, error) {
	p, err := resolveIntent(req)
	if err != nil {
		return relay.QuoteRequest{}, err
	}
	return p.quoteRequest(user), nil
}

// PreviewRequestFor resolves req into a preview request for from.
func PreviewRequestFor(req IntentRequest, from common.Address) (preview.Request, error) {
	p, err := resolveIntent(req)
	if err != nil {
		return preview.Request{}, err
	}
	return p.previewRequest(from), nil
}

// nativeValue is the amount of native currency the intent moves.
func (p plan) nativeValue() *big.Int {
	if p.sell.Native {
		return new(big.Int).Set(p.amount)
	}
	return new(big.Int)
}

func resolveIntent(req IntentRequest) (plan, error) {
	var kind preview.Kind
	switch Intent(strings.TrimSpace(string(req.Intent))) {
	case IntentSwap:
		kind = preview.KindSwap
	case IntentBridge:
		kind = preview.KindBridge
	case IntentTransfer:
		kind = preview.KindTransfer
	default:
		return plan{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("Unsupported intent: %s", req.Intent))
	}

	origin, err := id.ParseChain(req.SourceNetwork)
	if err != nil {
		return plan{}, err
	}
	destination := origin
	if strings.TrimSpace(req.DestNetwork) != "" {
		if destination, err = id.ParseChain(req.DestNetwork); err != nil {
			return plan{}, err
		}
	}

	sell, err := id.ParseAsset(req.Token, origin)
	if err != nil {
		return plan{}, err
	}
	buySymbol := req.Token
	if kind == preview.KindSwap {
		if strings.TrimSpace(req.BuyToken) == "" {
			return plan{}, clierr.New(clierr.CodeUsage, "swap requires a buy token")
		}
		buySymbol = req.BuyToken
	}
	buy, err := id.ParseAsset(buySymbol, destination)
	if err != nil {
		return plan{}, err
	}

	if sell.Decimals == 0 && !sell.Native {
		return plan{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown decimals for token %s on %s", req.Token, origin.Name))
	}
	base, err := id.ToBaseUnits(req.Amount, sell.Decimals)
	if err != nil {
		return plan{}, err
	}
	amount, ok := new(big.Int).SetString(base, 10)
	if !ok || amount.Sign() <= 0 {
		return plan{}, clierr.New(clierr.CodeUsage, "amount must be greater than zero")
	}

	p := plan{kind: kind, origin: origin, destination: destination, sell: sell, buy: buy, amount: amount, amountText: strings.TrimSpace(req.Amount)}
	if kind == preview.KindTransfer {
		if !id.IsEVMAddress(req.Recipient) {
			return plan{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("recipient %q is not a valid address", req.Recipient))
		}
		p.recipient = common.HexToAddress(req.Recipient).Hex()
	}
	return p, nil
}
