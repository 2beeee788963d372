package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
)

// FeeEstimate prices one transaction at the current base fee.
type FeeEstimate struct {
	ChainID              int64  `json:"chain_id"`
	GasEstimateRaw       uint64 `json:"gas_estimate_raw"`
	GasLimit             uint64 `json:"gas_limit"`
	BaseFeePerGasWei     string `json:"base_fee_per_gas_wei"`
	MaxPriorityFeeWei    string `json:"max_priority_fee_per_gas_wei"`
	MaxFeePerGasWei      string `json:"max_fee_per_gas_wei"`
	EffectiveGasPriceWei string `json:"effective_gas_price_wei"`
	LikelyFeeWei         string `json:"likely_fee_wei"`
	WorstCaseFeeWei      string `json:"worst_case_fee_wei"`
}

// EstimateFees estimates gas for req sent from `from` without signing anything.
func (c *Client) EstimateFees(ctx context.Context, chainID int64, from common.Address, req TxRequest) (FeeEstimate, error) {
	b, err := c.backend(ctx, chainID)
	if err != nil {
		return FeeEstimate{}, err
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To
	raw := req.Gas
	if raw == 0 {
		raw, err = b.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: req.Data})
		if err != nil {
			return FeeEstimate{}, clierr.Wrap(clierr.CodeOnChain, "estimate gas", err)
		}
	}
	gasLimit := uint64(float64(raw) * c.gasMultiplier)
	if req.Gas != 0 {
		gasLimit = req.Gas
	}
	baseFee, tipCap, feeCap, err := c.feeCaps(ctx, b)
	if err != nil {
		return FeeEstimate{}, err
	}

	effective := new(big.Int).Add(baseFee, tipCap)
	if effective.Cmp(feeCap) > 0 {
		effective = new(big.Int).Set(feeCap)
	}
	limit := new(big.Int).SetUint64(gasLimit)
	return FeeEstimate{
		ChainID:              chainID,
		GasEstimateRaw:       raw,
		GasLimit:             gasLimit,
		BaseFeePerGasWei:     baseFee.String(),
		MaxPriorityFeeWei:    tipCap.String(),
		MaxFeePerGasWei:      feeCap.String(),
		EffectiveGasPriceWei: effective.String(),
		LikelyFeeWei:         new(big.Int).Mul(limit, effective).String(),
		WorstCaseFeeWei:      new(big.Int).Mul(limit, feeCap).String(),
	}, nil
}

// feeCaps resolves base fee, tip and fee cap, honouring configured gwei overrides.
func (c *Client) feeCaps(ctx context.Context, b Backend) (baseFee, tipCap, feeCap *big.Int, err error) {
	if c.maxPriorityFee != nil {
		tipCap = new(big.Int).Set(c.maxPriorityFee)
	} else {
		tipCap = resolveTipCap(ctx, b)
	}
	header, err := b.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, nil, clierr.Wrap(clierr.CodeUnavailable, "fetch latest header", err)
	}
	baseFee = header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	if c.maxFee != nil {
		if c.maxFee.Cmp(tipCap) < 0 {
			return nil, nil, nil, clierr.New(clierr.CodeUsage, "max fee must be >= max priority fee")
		}
		return baseFee, tipCap, new(big.Int).Set(c.maxFee), nil
	}
	feeCap = new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return baseFee, tipCap, feeCap, nil
}

func resolveTipCap(ctx context.Context, b Backend) *big.Int {
	tipCap, err := b.SuggestGasTipCap(ctx)
	if err != nil || tipCap == nil {
		return big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	return tipCap
}

// ParseGwei converts a decimal gwei amount into wei.
func ParseGwei(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return nil, fmt.Errorf("empty gwei value")
	}
	rat, ok := new(big.Rat).SetString(clean)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", v)
	}
	if rat.Sign() < 0 {
		return nil, fmt.Errorf("value must be non-negative")
	}
	rat.Mul(rat, big.NewRat(1_000_000_000, 1))
	if !rat.IsInt() {
		return nil, fmt.Errorf("value must resolve to an integer wei amount")
	}
	return new(big.Int).Set(rat.Num()), nil
}
