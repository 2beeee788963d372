package preview

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ggonzalez94/wallet-agent/internal/chain"
	"github.com/ggonzalez94/wallet-agent/internal/guard"
	"github.com/ggonzalez94/wallet-agent/internal/id"
)

const (
	RiskENSRecipient     = "ENS address - verify resolved address"
	RiskLargeAmount      = "Large transaction amount"
	RiskLimitExceeded    = "Exceeds daily spending limit"
	RiskLimitNear        = "Approaching daily spending limit"
	RiskUnknownRecipient = "Unrecognized recipient format"

	defaultGas       = 21000
	largeAmountUnits = 10
)

type Kind string

const (
	KindSwap     Kind = "swap"
	KindBridge   Kind = "bridge"
	KindTransfer Kind = "transfer"
)

type Request struct {
	Type Kind
	From common.Address
	// To is the recipient for transfers and may be an ENS name.
	To      string
	Amount  string
	Token   string
	ChainID int64
	// AmountWei is the native value moved, for the spending limit check.
	AmountWei *big.Int
	// Tx, when set, is priced with eth_estimateGas instead of the transfer default.
	Tx          *chain.TxRequest
	Description string
}

type TransactionPreview struct {
	Type          Kind     `json:"type"`
	From          string   `json:"from"`
	To            string   `json:"to"`
	Amount        string   `json:"amount"`
	Token         string   `json:"token"`
	Network       string   `json:"network"`
	ChainID       int64    `json:"chain_id"`
	EstimatedGas  string   `json:"estimated_gas"`
	EstimatedCost string   `json:"estimated_cost"`
	Description   string   `json:"description"`
	Risks         []string `json:"risks"`
}

type FeeEstimator interface {
	EstimateFees(ctx context.Context, chainID int64, from common.Address, req chain.TxRequest) (chain.FeeEstimate, error)
}

type Builder struct {
	fees    FeeEstimator
	limiter *guard.SpendingLimiter
	logger  *zap.Logger
}

// NewBuilder accepts nil fees and limiter; the related fields fall back to defaults.
func NewBuilder(fees FeeEstimator, limiter *guard.SpendingLimiter, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{fees: fees, limiter: limiter, logger: logger.Named("preview")}
}

func (b *Builder) Build(ctx context.Context, req Request) TransactionPreview {
	p := TransactionPreview{
		Type:          req.Type,
		From:          req.From.Hex(),
		To:            req.To,
		Amount:        req.Amount,
		Token:         strings.ToUpper(req.Token),
		Network:       id.ChainByID(req.ChainID).Name,
		ChainID:       req.ChainID,
		EstimatedGas:  strconv.Itoa(defaultGas),
		EstimatedCost: "0",
		Description:   req.Description,
		Risks:         []string{},
	}
	if p.Description == "" {
		p.Description = describe(req, p.Network)
	}
	b.estimate(ctx, req, &p)
	p.Risks = b.risks(req)
	return p
}

func (b *Builder) estimate(ctx context.Context, req Request, p *TransactionPreview) {
	if b.fees == nil {
		return
	}
	tx := chain.TxRequest{Value: req.AmountWei}
	if req.Tx != nil {
		tx = *req.Tx
	} else if common.IsHexAddress(req.To) {
		tx.To = common.HexToAddress(req.To)
		tx.Gas = defaultGas
	} else {
		return
	}
	est, err := b.fees.EstimateFees(ctx, req.ChainID, req.From, tx)
	if err != nil {
		b.logger.Debug("fee estimate unavailable", zap.Int64("chain_id", req.ChainID), zap.Error(err))
		return
	}
	p.EstimatedGas = strconv.FormatUint(est.GasLimit, 10)
	p.EstimatedCost = id.FormatUnits(est.LikelyFeeWei, 18) + " ETH"
}

func (b *Builder) risks(req Request) []string {
	out := []string{}
	to := strings.TrimSpace(req.To)
	switch {
	case strings.HasSuffix(strings.ToLower(to), ".eth"):
		out = append(out, RiskENSRecipient)
	case to != "" && !common.IsHexAddress(to):
		out = append(out, RiskUnknownRecipient)
	}
	if amount, err := strconv.ParseFloat(strings.TrimSpace(req.Amount), 64); err == nil && amount > largeAmountUnits {
		out = append(out, RiskLargeAmount)
	}
	if b.limiter != nil && req.AmountWei != nil && req.AmountWei.Sign() > 0 {
		st := b.limiter.Check(req.From, req.AmountWei)
		if !st.Allowed {
			out = append(out, RiskLimitExceeded)
		} else if nearLimit(st, req.AmountWei) {
			out = append(out, RiskLimitNear)
		}
	}
	return out
}

// nearLimit is true when the request would leave less than a tenth of the daily limit.
func nearLimit(st guard.LimitStatus, amount *big.Int) bool {
	limit, ok := new(big.Int).SetString(st.LimitWei, 10)
	if !ok {
		return false
	}
	remaining, ok := new(big.Int).SetString(st.Remaining, 10)
	if !ok {
		return false
	}
	left := new(big.Int).Sub(remaining, amount)
	return new(big.Int).Mul(left, big.NewInt(10)).Cmp(limit) < 0
}

func describe(req Request, network string) string {
	token := strings.ToUpper(req.Token)
	switch req.Type {
	case KindTransfer:
		return fmt.Sprintf("Transfer %s %s to %s on %s", req.Amount, token, req.To, network)
	case KindBridge:
		return fmt.Sprintf("Bridge %s %s from %s", req.Amount, token, network)
	default:
		return fmt.Sprintf("Swap %s %s on %s", req.Amount, token, network)
	}
}
