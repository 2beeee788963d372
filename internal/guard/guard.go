package guard

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ggonzalez94/wallet-agent/internal/chain"
)

// Guard compares on-chain balances and allowances against required amounts.
// It never returns an error: RPC failures produce an insufficient result with Error set.
type Guard struct {
	reader chain.Reader
	logger *zap.Logger
}

func New(reader chain.Reader, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{reader: reader, logger: logger.Named("guard")}
}

type BalanceRequest struct {
	Wallet common.Address
	// Token is nil for the chain's native currency.
	Token          *common.Address
	RequiredAmount *big.Int
	ChainID        int64
}

type BalanceResult struct {
	HasSufficientBalance bool   `json:"has_sufficient_balance"`
	CurrentBalance       string `json:"current_balance"`
	RequiredAmount       string `json:"required_amount"`
	Error                string `json:"error,omitempty"`
}

func (g *Guard) CheckBalance(ctx context.Context, req BalanceRequest) BalanceResult {
	required := amountOrZero(req.RequiredAmount)
	res := BalanceResult{CurrentBalance: "0", RequiredAmount: required.String()}

	var (
		balance *big.Int
		err     error
	)
	if req.Token == nil {
		balance, err = g.reader.BalanceAt(ctx, req.ChainID, req.Wallet)
	} else {
		balance, err = chain.ERC20Balance(ctx, g.reader, req.ChainID, *req.Token, req.Wallet)
	}
	if err != nil {
		g.logger.Warn("balance check failed",
			zap.Int64("chain_id", req.ChainID),
			zap.String("wallet", req.Wallet.Hex()),
			zap.Error(err),
		)
		res.Error = err.Error()
		return res
	}
	res.CurrentBalance = balance.String()
	res.HasSufficientBalance = balance.Cmp(required) >= 0
	return res
}

type AllowanceRequest struct {
	Owner          common.Address
	Token          common.Address
	Spender        common.Address
	RequiredAmount *big.Int
	ChainID        int64
}

type AllowanceResult struct {
	HasSufficientAllowance bool   `json:"has_sufficient_allowance"`
	CurrentAllowance       string `json:"current_allowance"`
	RequiredAmount         string `json:"required_amount"`
	Error                  string `json:"error,omitempty"`
}

func (g *Guard) CheckAllowance(ctx context.Context, req AllowanceRequest) AllowanceResult {
	required := amountOrZero(req.RequiredAmount)
	res := AllowanceResult{CurrentAllowance: "0", RequiredAmount: required.String()}

	allowance, err := chain.ERC20Allowance(ctx, g.reader, req.ChainID, req.Token, req.Owner, req.Spender)
	if err != nil {
		g.logger.Warn("allowance check failed",
			zap.Int64("chain_id", req.ChainID),
			zap.String("owner", req.Owner.Hex()),
			zap.String("spender", req.Spender.Hex()),
			zap.Error(err),
		)
		res.Error = err.Error()
		return res
	}
	res.CurrentAllowance = allowance.String()
	res.HasSufficientAllowance = allowance.Cmp(required) >= 0
	return res
}

func amountOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
