package zerox

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/ggonzalez94/wallet-agent/internal/chain"
	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/guard"
	"github.com/ggonzalez94/wallet-agent/internal/model"
	"github.com/ggonzalez94/wallet-agent/internal/providers"
	"github.com/ggonzalez94/wallet-agent/internal/registry"
)

const (
	SwapProviderName  = "swap-dex-api"
	swapDefaultReason = "Live quote from SWAP DEX API with Permit2"
)

// SwapDriver runs the gas-paying Permit2 flow:
// price, firm quote, balance, allowance, sign and submit.
type SwapDriver struct {
	api     *Client
	chain   Chain
	guard   *guard.Guard
	receipt chain.ReceiptOptions
	logger  *zap.Logger
}

func NewSwapDriver(api *Client, chainClient Chain, opts Options, logger *zap.Logger) *SwapDriver {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named(SwapProviderName)
	return &SwapDriver{
		api:     api,
		chain:   chainClient,
		guard:   guard.New(chainClient, logger),
		receipt: opts.Receipt,
		logger:  logger,
	}
}

func (d *SwapDriver) Info() model.ProviderInfo {
	return providerInfo(SwapProviderName, "swap.quote", "swap.execute")
}

type swapExecution struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	BlockNumber     string `json:"blockNumber"`
	Data            string `json:"data"`
}

func (d *SwapDriver) GetSwapQuote(ctx context.Context, req providers.SwapQuoteRequest) []providers.SwapQuote {
	if err := validateRequest(req); err != nil {
		return []providers.SwapQuote{failed(SwapProviderName, "", "Error fetching quote", err)}
	}
	log := d.logger.With(zap.Int64("chain_id", req.ChainID), zap.String("taker", req.Taker))

	priceData, err := d.api.SwapPrice(ctx, req)
	if err != nil {
		return []providers.SwapQuote{failed(SwapProviderName, "", "Error fetching quote", err)}
	}
	quoteData, err := d.api.SwapQuote(ctx, req)
	if err != nil {
		return []providers.SwapQuote{failed(SwapProviderName, "", "Error fetching quote", err)}
	}

	q := summarize(SwapProviderName, quoteData)
	raw := map[string]any{
		"priceData": priceData,
		"quoteData": quoteData,
		"permit2":   quoteData["permit2"],
	}
	q.RawQuote = raw

	ok, reason := checkBalance(ctx, d.guard, req)
	if !ok {
		log.Info("swap not executable", zap.String("reason", reason))
		q.Reason = reason
		raw["allowanceSet"] = false
		return []providers.SwapQuote{q}
	}
	q.Recommended = true
	q.Reason = successReason(quoteData, swapDefaultReason)
	if req.Account == nil {
		return []providers.SwapQuote{q}
	}

	binding, err := bindAccount(req)
	if err != nil {
		return []providers.SwapQuote{executionFailed(q, err)}
	}
	if err := d.ensureAllowance(ctx, binding, req); err != nil {
		log.Warn("permit2 allowance failed", zap.Error(err))
		q.Recommended = false
		q.Reason = "Failed to set token allowance for Permit2"
		raw["allowanceSet"] = false
		return []providers.SwapQuote{q}
	}
	raw["allowanceSet"] = true

	result, err := d.execute(ctx, binding, quoteData)
	if err != nil {
		log.Warn("swap execution failed", zap.Error(err))
		q.TransactionHash = result.TransactionHash
		return []providers.SwapQuote{executionFailed(q, err)}
	}
	raw["executionResult"] = result
	q.TransactionHash = result.TransactionHash
	log.Info("swap executed", zap.String("tx_hash", result.TransactionHash))
	return []providers.SwapQuote{q}
}

// ensureAllowance approves Permit2 for the max amount when the current
// allowance is short, and returns only after the approval receipt is seen.
func (d *SwapDriver) ensureAllowance(ctx context.Context, binding chain.Binding, req providers.SwapQuoteRequest) error {
	if registry.IsNativeSentinel(req.SellToken) {
		return nil
	}
	spender, ok := registry.Permit2Spender(req.ChainID)
	if !ok {
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("no Permit2 deployment known for chain %d", req.ChainID))
	}
	amount, _ := sellAmount(req)
	token := common.HexToAddress(req.SellToken)
	permit2 := common.HexToAddress(spender)

	res := d.guard.CheckAllowance(ctx, guard.AllowanceRequest{
		Owner:          binding.Account.Address(),
		Token:          token,
		Spender:        permit2,
		RequiredAmount: amount,
		ChainID:        req.ChainID,
	})
	if res.Error != "" {
		return clierr.New(clierr.CodeUnavailable, "read allowance: "+res.Error)
	}
	if res.HasSufficientAllowance {
		return nil
	}

	data, err := chain.ApproveCalldata(permit2, math.MaxBig256)
	if err != nil {
		return err
	}
	hash, err := d.chain.SendTransaction(ctx, binding, chain.TxRequest{To: token, Data: data})
	if err != nil {
		return err
	}
	d.logger.Info("permit2 approval submitted", zap.String("tx_hash", hash.Hex()))
	receipt, err := d.chain.WaitForReceipt(ctx, req.ChainID, hash, d.receipt)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return clierr.New(clierr.CodeOnChain, fmt.Sprintf("approval transaction %s reverted", hash.Hex()))
	}
	return nil
}

func (d *SwapDriver) execute(ctx context.Context, binding chain.Binding, quoteData map[string]any) (swapExecution, error) {
	tx := object(quoteData["transaction"])
	if tx == nil || !common.IsHexAddress(str(tx["to"])) {
		return swapExecution{}, clierr.New(clierr.CodeMalformedQuote, "quote is missing transaction.to")
	}
	data, err := hexutil.Decode(str(tx["data"]))
	if err != nil {
		return swapExecution{}, clierr.Wrap(clierr.CodeMalformedQuote, "decode transaction.data", err)
	}
	value, err := parseUint(tx["value"])
	if err != nil {
		return swapExecution{}, clierr.Wrap(clierr.CodeMalformedQuote, "decode transaction.value", err)
	}
	gas, err := parseUint(tx["gas"])
	if err != nil || !gas.IsUint64() {
		return swapExecution{}, clierr.New(clierr.CodeMalformedQuote, "invalid transaction.gas")
	}

	typed, present, err := typedDataAt(quoteData, "permit2", "eip712")
	if err != nil {
		return swapExecution{}, err
	}
	if present {
		sig, err := d.chain.SignTypedData(ctx, binding, typed)
		if err != nil {
			return swapExecution{}, err
		}
		data = appendSignature(data, sig)
	}

	hash, err := d.chain.SendTransaction(ctx, binding, chain.TxRequest{
		To:    common.HexToAddress(str(tx["to"])),
		Data:  data,
		Value: value,
		Gas:   gas.Uint64(),
	})
	if err != nil {
		return swapExecution{}, err
	}
	out := swapExecution{TransactionHash: hash.Hex(), Status: "submitted", Data: hexutil.Encode(data)}
	receipt, err := d.chain.WaitForReceipt(ctx, binding.ChainID, hash, d.receipt)
	if err != nil {
		return out, err
	}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.String()
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		out.Status = "reverted"
		return out, clierr.New(clierr.CodeOnChain, fmt.Sprintf("transaction %s reverted", hash.Hex()))
	}
	out.Status = "success"
	return out, nil
}

// appendSignature appends uint256(len(sig)) and sig to calldata.
func appendSignature(data, sig []byte) []byte {
	out := make([]byte, 0, len(data)+32+len(sig))
	out = append(out, data...)
	out = append(out, math.U256Bytes(big.NewInt(int64(len(sig))))...)
	return append(out, sig...)
}

func executionFailed(q providers.SwapQuote, err error) providers.SwapQuote {
	q.Recommended = false
	q.Reason = "Execution failed: " + err.Error()
	return q
}
