package zerox

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	"github.com/ggonzalez94/wallet-agent/internal/chain"
	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/execution"
	"github.com/ggonzalez94/wallet-agent/internal/guard"
	"github.com/ggonzalez94/wallet-agent/internal/model"
	"github.com/ggonzalez94/wallet-agent/internal/providers"
)

const (
	GaslessProviderName  = "gasless-dex-api"
	gaslessDefaultReason = "Live quote from Gasless DEX API"
)

// GaslessDriver runs the meta-transaction flow: the user signs, a relayer pays gas.
type GaslessDriver struct {
	api    *Client
	chain  Chain
	guard  *guard.Guard
	poll   execution.PollOptions
	logger *zap.Logger
}

func NewGaslessDriver(api *Client, chainClient Chain, opts Options, logger *zap.Logger) *GaslessDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named(GaslessProviderName)
	return &GaslessDriver{
		api:   api,
		chain: chainClient,
		guard: guard.New(chainClient, logger),
		poll: execution.PollOptions{
			Interval:    opts.PollInterval,
			MaxAttempts: opts.PollMaxAttempts,
			Success:     execution.GaslessSuccessStatuses,
			Failure:     execution.GaslessFailureStatuses,
			Headers:     api.headers(),
			Logger:      logger,
		},
		logger: logger,
	}
}

func (d *GaslessDriver) Info() model.ProviderInfo {
	return providerInfo(GaslessProviderName, "swap.quote", "swap.gasless")
}

func (d *GaslessDriver) GetSwapQuote(ctx context.Context, req providers.SwapQuoteRequest) []providers.SwapQuote {
	if err := validateRequest(req); err != nil {
		return []providers.SwapQuote{failed(GaslessProviderName, "0", "Error fetching gasless quote", err)}
	}
	log := d.logger.With(zap.Int64("chain_id", req.ChainID), zap.String("taker", req.Taker))

	priceData, err := d.api.GaslessPrice(ctx, req)
	if err != nil {
		return []providers.SwapQuote{failed(GaslessProviderName, "0", "Error fetching gasless quote", err)}
	}
	quoteData, err := d.api.GaslessQuote(ctx, req)
	if err != nil {
		return []providers.SwapQuote{failed(GaslessProviderName, "0", "Error fetching gasless quote", err)}
	}

	q := summarize(GaslessProviderName, quoteData)
	q.Gas = "0"
	raw := map[string]any{
		"priceData":    priceData,
		"quoteData":    quoteData,
		"submitResult": nil,
		"statusResult": nil,
	}
	q.RawQuote = raw

	ok, reason := checkBalance(ctx, d.guard, req)
	raw["hasSufficientBalance"] = ok
	if !ok {
		log.Info("gasless swap not executable", zap.String("reason", reason))
		q.Reason = reason
		return []providers.SwapQuote{q}
	}
	q.Recommended = true
	q.Reason = successReason(quoteData, gaslessDefaultReason)
	if req.Account == nil {
		return []providers.SwapQuote{q}
	}

	binding, err := bindAccount(req)
	if err != nil {
		return []providers.SwapQuote{executionFailed(q, err)}
	}
	payload, err := d.signPayload(ctx, binding, quoteData)
	if err != nil {
		log.Warn("gasless signing failed", zap.Error(err))
		return []providers.SwapQuote{executionFailed(q, err)}
	}
	submit, err := d.api.GaslessSubmit(ctx, payload)
	if err != nil {
		log.Warn("gasless submit failed", zap.Error(err))
		return []providers.SwapQuote{executionFailed(q, err)}
	}
	raw["submitResult"] = submit
	tradeHash := str(submit["tradeHash"])
	if tradeHash == "" {
		return []providers.SwapQuote{executionFailed(q, clierr.New(clierr.CodeMalformedQuote, "submit response is missing tradeHash"))}
	}
	q.TradeHash = tradeHash
	log.Info("gasless trade submitted", zap.String("trade_hash", tradeHash))

	status, err := execution.PollStatus(ctx, d.api.http, d.api.GaslessStatusURL(tradeHash), d.poll)
	if err != nil {
		log.Warn("gasless trade did not settle", zap.String("trade_hash", tradeHash), zap.Error(err))
		return []providers.SwapQuote{executionFailed(q, err)}
	}
	raw["statusResult"] = status
	q.TransactionHash = settledTxHash(status)
	return []providers.SwapQuote{q}
}

// signPayload signs trade.eip712 and, when present, approval.eip712 into one
// submission. The approval signature never travels without the trade.
func (d *GaslessDriver) signPayload(ctx context.Context, binding chain.Binding, quoteData map[string]any) (map[string]any, error) {
	trade := object(quoteData["trade"])
	tradeTyped, present, err := typedDataAt(quoteData, "trade", "eip712")
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, clierr.New(clierr.CodeMalformedQuote, "quote is missing trade.eip712")
	}
	tradeSig, err := d.signSplit(ctx, binding, tradeTyped)
	if err != nil {
		return nil, fmt.Errorf("sign trade: %w", err)
	}
	payload := map[string]any{
		"trade": map[string]any{
			"type":      trade["type"],
			"eip712":    trade["eip712"],
			"signature": tradeSig,
		},
		"chainId": binding.ChainID,
	}

	approvalTyped, present, err := typedDataAt(quoteData, "approval", "eip712")
	if err != nil {
		return nil, err
	}
	if present {
		approval := object(quoteData["approval"])
		approvalSig, err := d.signSplit(ctx, binding, approvalTyped)
		if err != nil {
			return nil, fmt.Errorf("sign approval: %w", err)
		}
		payload["approval"] = map[string]any{
			"type":      approval["type"],
			"eip712":    approval["eip712"],
			"signature": approvalSig,
		}
	}
	return payload, nil
}

func (d *GaslessDriver) signSplit(ctx context.Context, binding chain.Binding, typed apitypes.TypedData) (map[string]any, error) {
	sig, err := d.chain.SignTypedData(ctx, binding, typed)
	if err != nil {
		return nil, err
	}
	return splitSignature(sig)
}

// settledTxHash picks the first hash reported by the status endpoint.
func settledTxHash(status map[string]any) string {
	txs, _ := status["transactions"].([]any)
	for _, tx := range txs {
		if h := str(object(tx)["hash"]); h != "" {
			return h
		}
	}
	return ""
}
