package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ggonzalez94/wallet-agent/internal/registry"
)

// Reader is the read-only half of the adapter.
type Reader interface {
	ReadContract(ctx context.Context, chainID int64, to common.Address, calldata []byte) ([]byte, error)
	BalanceAt(ctx context.Context, chainID int64, account common.Address) (*big.Int, error)
}

var erc20ABI = mustParseABI(registry.ERC20MinimalABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

func ERC20Balance(ctx context.Context, r Reader, chainID int64, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	return readUint256(ctx, r, chainID, token, "balanceOf", data)
}

func ERC20Allowance(ctx context.Context, r Reader, chainID int64, token, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("pack allowance: %w", err)
	}
	return readUint256(ctx, r, chainID, token, "allowance", data)
}

// ApproveCalldata encodes approve(spender, amount).
func ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("pack approve: %w", err)
	}
	return data, nil
}

func readUint256(ctx context.Context, r Reader, chainID int64, token common.Address, method string, calldata []byte) (*big.Int, error) {
	out, err := r.ReadContract(ctx, chainID, token, calldata)
	if err != nil {
		return nil, err
	}
	values, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("decode %s: unexpected output length %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected output type %T", method, values[0])
	}
	return v, nil
}
