package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/execution/signer"
	"github.com/ggonzalez94/wallet-agent/internal/registry"
)

// Backend is the subset of the JSON-RPC surface the adapter needs. *ethclient.Client satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

func DialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	return ethclient.DialContext(ctx, rpcURL)
}

// Binding pairs a chain with the account acting on it. Every write carries one.
type Binding struct {
	ChainID int64
	Account signer.Signer
}

type TxRequest struct {
	To    common.Address
	Data  []byte
	Value *big.Int
	// Gas skips estimation when non-zero.
	Gas uint64
}

type ReceiptOptions struct {
	Interval    time.Duration
	MaxAttempts uint
}

func DefaultReceiptOptions() ReceiptOptions {
	return ReceiptOptions{Interval: 2 * time.Second, MaxAttempts: 200}
}

type Config struct {
	RPCURLs       map[int64]string
	GasMultiplier float64
	// Optional gwei overrides for the EIP-1559 caps.
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	Dialer             Dialer
}

// Client dials one backend per chain id on first use and is safe for concurrent use.
type Client struct {
	mu             sync.Mutex
	backends       map[int64]Backend
	rpcURLs        map[int64]string
	dial           Dialer
	gasMultiplier  float64
	maxFee         *big.Int
	maxPriorityFee *big.Int
	logger         *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dial := cfg.Dialer
	if dial == nil {
		dial = DialEthclient
	}
	mult := cfg.GasMultiplier
	if mult <= 1 {
		mult = 1.2
	}
	urls := make(map[int64]string, len(cfg.RPCURLs))
	for k, v := range cfg.RPCURLs {
		urls[k] = v
	}
	c := &Client{
		backends:      map[int64]Backend{},
		rpcURLs:       urls,
		dial:          dial,
		gasMultiplier: mult,
		logger:        logger.Named("chain"),
	}
	if strings.TrimSpace(cfg.MaxPriorityFeeGwei) != "" {
		v, err := ParseGwei(cfg.MaxPriorityFeeGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max priority fee", err)
		}
		c.maxPriorityFee = v
	}
	if strings.TrimSpace(cfg.MaxFeeGwei) != "" {
		v, err := ParseGwei(cfg.MaxFeeGwei)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "parse max fee", err)
		}
		c.maxFee = v
	}
	return c, nil
}

// Supports reports whether an RPC endpoint is known for chainID.
func (c *Client) Supports(chainID int64) bool {
	_, err := registry.ResolveRPCURL(c.rpcURLs[chainID], chainID)
	return err == nil
}

func (c *Client) backend(ctx context.Context, chainID int64) (Backend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.backends[chainID]; ok {
		return b, nil
	}
	url, err := registry.ResolveRPCURL(c.rpcURLs[chainID], chainID)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnsupported, "resolve rpc", err)
	}
	b, err := c.dial(ctx, url)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect rpc", err)
	}
	c.backends[chainID] = b
	return b, nil
}

// Close releases every dialled backend.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, b := range c.backends {
		if closer, ok := b.(interface{ Close() }); ok {
			closer.Close()
		} else if closer, ok := b.(io.Closer); ok {
			_ = closer.Close()
		}
		delete(c.backends, id)
	}
}

func (c *Client) SendTransaction(ctx context.Context, binding Binding, req TxRequest) (common.Hash, error) {
	if binding.Account == nil {
		return common.Hash{}, clierr.New(clierr.CodeSigner, "missing signer")
	}
	b, err := c.backend(ctx, binding.ChainID)
	if err != nil {
		return common.Hash{}, err
	}
	chainID, err := b.ChainID(ctx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "read chain id", err)
	}
	if chainID.Int64() != binding.ChainID {
		return common.Hash{}, clierr.New(clierr.CodeChainMismatch, fmt.Sprintf("rpc reports chain %d, binding expects %d", chainID.Int64(), binding.ChainID))
	}

	from := binding.Account.Address()
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	to := req.To
	msg := ethereum.CallMsg{From: from, To: &to, Value: value, Data: req.Data}

	gasLimit := req.Gas
	if gasLimit == 0 {
		estimated, err := b.EstimateGas(ctx, msg)
		if err != nil {
			return common.Hash{}, clierr.Wrap(clierr.CodeOnChain, "estimate gas", err)
		}
		gasLimit = uint64(float64(estimated) * c.gasMultiplier)
	}

	_, tipCap, feeCap, err := c.feeCaps(ctx, b)
	if err != nil {
		return common.Hash{}, err
	}

	nonce, err := b.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "fetch nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})
	signed, err := binding.Account.SignTx(chainID, tx)
	if err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeSigner, "sign transaction", err)
	}
	if err := b.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, clierr.Wrap(clierr.CodeUnavailable, "broadcast transaction", err)
	}
	c.logger.Info("transaction submitted",
		zap.Int64("chain_id", binding.ChainID),
		zap.String("from", from.Hex()),
		zap.String("to", to.Hex()),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
	)
	return signed.Hash(), nil
}

var errReceiptPending = errors.New("receipt not yet available")

// WaitForReceipt polls until the receipt is observed or the attempt budget runs out.
// A receipt that created a contract is rejected; callers never deploy.
func (c *Client) WaitForReceipt(ctx context.Context, chainID int64, hash common.Hash, opts ReceiptOptions) (*types.Receipt, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultReceiptOptions().Interval
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultReceiptOptions().MaxAttempts
	}
	b, err := c.backend(ctx, chainID)
	if err != nil {
		return nil, err
	}

	var receipt *types.Receipt
	err = retry.Do(func() error {
		r, rerr := b.TransactionReceipt(ctx, hash)
		if rerr != nil {
			if errors.Is(rerr, ethereum.NotFound) {
				return errReceiptPending
			}
			return retry.Unrecoverable(rerr)
		}
		if r == nil {
			return errReceiptPending
		}
		receipt = r
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(opts.MaxAttempts),
		retry.Delay(opts.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if errors.Is(err, errReceiptPending) {
			return nil, clierr.New(clierr.CodeTimeout, fmt.Sprintf("no receipt for %s after %d attempts; outcome unknown (pending or dropped)", hash.Hex(), opts.MaxAttempts))
		}
		if ctx.Err() != nil {
			return nil, clierr.Wrap(clierr.CodeTimeout, fmt.Sprintf("wait for receipt %s", hash.Hex()), ctx.Err())
		}
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("fetch receipt %s", hash.Hex()), err)
	}
	if receipt.ContractAddress != (common.Address{}) {
		return receipt, clierr.New(clierr.CodeOnChain, fmt.Sprintf("transaction %s unexpectedly created contract %s", hash.Hex(), receipt.ContractAddress.Hex()))
	}
	return receipt, nil
}

func (c *Client) SignTypedData(_ context.Context, binding Binding, data apitypes.TypedData) ([]byte, error) {
	if binding.Account == nil {
		return nil, clierr.New(clierr.CodeSigner, "missing signer")
	}
	sig, err := binding.Account.SignTypedData(data)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign typed data", err)
	}
	return sig, nil
}

func (c *Client) SignMessage(_ context.Context, binding Binding, message []byte) ([]byte, error) {
	if binding.Account == nil {
		return nil, clierr.New(clierr.CodeSigner, "missing signer")
	}
	sig, err := binding.Account.SignMessage(message)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "sign message", err)
	}
	return sig, nil
}

// ReadContract runs eth_call against the latest block.
func (c *Client) ReadContract(ctx context.Context, chainID int64, to common.Address, calldata []byte) ([]byte, error) {
	b, err := c.backend(ctx, chainID)
	if err != nil {
		return nil, err
	}
	out, err := b.CallContract(ctx, ethereum.CallMsg{To: &to, Data: calldata}, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "eth_call", err)
	}
	return out, nil
}

func (c *Client) BalanceAt(ctx context.Context, chainID int64, account common.Address) (*big.Int, error) {
	b, err := c.backend(ctx, chainID)
	if err != nil {
		return nil, err
	}
	bal, err := b.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "fetch native balance", err)
	}
	return bal, nil
}
