package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/ggonzalez94/wallet-agent/internal/chain"
	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/execution"
	"github.com/ggonzalez94/wallet-agent/internal/execution/signer"
	"github.com/ggonzalez94/wallet-agent/internal/guard"
	"github.com/ggonzalez94/wallet-agent/internal/httpx"
	"github.com/ggonzalez94/wallet-agent/internal/id"
	"github.com/ggonzalez94/wallet-agent/internal/preview"
)

// QuoteSource fetches bridge/swap quotes and names the request status endpoint.
type QuoteSource interface {
	Quote(ctx context.Context, body any) (json.RawMessage, error)
	StatusURL(requestID string) string
	BaseURL() string
}

type StepExecutor interface {
	ExecuteQuote(ctx context.Context, quote execution.Quote, binding chain.Binding, opts execution.ExecuteOptions) (execution.Result, error)
}

// Chain is what the orchestrator reads from the chain adapter.
type Chain interface {
	chain.Reader
	preview.FeeEstimator
	Supports(chainID int64) bool
}

type Options struct {
	Execute execution.ExecuteOptions
	// SupportedChains restricts origin chains. Empty means every registered chain.
	SupportedChains []int64
	// DefaultChainID binds quotes that carry no transaction step.
	DefaultChainID int64
	// WaitForCompletion polls the whole-request status after the last step.
	WaitForCompletion bool
}

func DefaultOptions() Options {
	exec := execution.DefaultExecuteOptions()
	exec.PollInterval = 5 * time.Second
	exec.PollMaxAttempts = 30
	return Options{Execute: exec, DefaultChainID: 84532}
}

type Deps struct {
	Relay    QuoteSource
	Executor StepExecutor
	Chain    Chain
	HTTP     *httpx.Client
	Limiter  *guard.SpendingLimiter
	Account  signer.Signer
	Logger   *zap.Logger
}

// Orchestrator turns a structured intent into a relay quote and drives it
// through the step executor with the configured account.
type Orchestrator struct {
	relay    QuoteSource
	executor StepExecutor
	chain    Chain
	http     *httpx.Client
	guard    *guard.Guard
	limiter  *guard.SpendingLimiter
	previews *preview.Builder
	account  signer.Signer
	opts     Options
	logger   *zap.Logger
}

func New(deps Deps, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("orchestrator")
	limiter := deps.Limiter
	if limiter == nil {
		limiter = guard.NewSpendingLimiter(nil)
	}
	if opts.Execute.RelayAPIBase == "" && deps.Relay != nil {
		opts.Execute.RelayAPIBase = deps.Relay.BaseURL()
	}
	return &Orchestrator{
		relay:    deps.Relay,
		executor: deps.Executor,
		chain:    deps.Chain,
		http:     deps.HTTP,
		guard:    guard.New(deps.Chain, logger),
		limiter:  limiter,
		previews: preview.NewBuilder(deps.Chain, limiter, logger),
		account:  deps.Account,
		opts:     opts,
		logger:   logger,
	}
}

// Execute runs a Swap, Bridge or Transfer intent end to end.
func (o *Orchestrator) Execute(ctx context.Context, req IntentRequest) Response {
	log := o.logger.With(zap.String("intent", string(req.Intent)), zap.String("uid", req.UID))
	if o.account == nil {
		return errorResponse(clierr.New(clierr.CodeSigner, "no signing account configured"))
	}
	p, err := resolveIntent(req)
	if err != nil {
		return errorResponse(err)
	}
	account := o.account.Address()
	log = log.With(zap.Int64("origin_chain_id", p.origin.EVMChainID), zap.String("account", account.Hex()))

	pv := o.previews.Build(ctx, p.previewRequest(account))

	balance := o.guard.CheckBalance(ctx, guard.BalanceRequest{
		Wallet:         account,
		Token:          tokenAddress(p.sell),
		RequiredAmount: p.amount,
		ChainID:        p.origin.EVMChainID,
	})
	if !balance.HasSufficientBalance {
		log.Info("intent blocked", zap.String("reason", BlockedInsufficientBalance), zap.String("balance", balance.CurrentBalance))
		return Response{
			Status:     StatusBlocked,
			HTTPStatus: http.StatusUnprocessableEntity,
			Reason:     BlockedInsufficientBalance,
			Error:      fmt.Sprintf("Insufficient balance: %s has %s, needs %s", account.Hex(), balance.CurrentBalance, balance.RequiredAmount),
			Preview:    &pv,
			Balance:    &balance,
		}
	}

	native := p.nativeValue()
	if err := o.limiter.Reserve(account, native); err != nil {
		st := o.limiter.Check(account, native)
		log.Info("intent blocked", zap.String("reason", BlockedSpendingLimit))
		return Response{
			Status:     StatusBlocked,
			HTTPStatus: http.StatusUnprocessableEntity,
			Reason:     BlockedSpendingLimit,
			Error:      err.Error(),
			Preview:    &pv,
			Limit:      &st,
		}
	}

	raw, resp, ok := o.fetchQuote(ctx, p.quoteRequest(account))
	if !ok {
		o.limiter.Release(account, native)
		resp.Preview = &pv
		return resp
	}

	if !o.supported(p.origin.EVMChainID) {
		o.limiter.Release(account, native)
		return Response{
			Status:     StatusError,
			HTTPStatus: http.StatusBadRequest,
			Error:      fmt.Sprintf("Unsupported chainId: %d", p.origin.EVMChainID),
		}
	}

	quote, err := execution.ParseQuote(raw)
	if err != nil {
		o.limiter.Release(account, native)
		return errorResponse(err)
	}
	out := o.run(ctx, quote, chain.Binding{ChainID: p.origin.EVMChainID, Account: o.account}, log)
	if out.Status != StatusSuccess && out.TransactionHash == "" {
		o.limiter.Release(account, native)
	}
	out.Preview = &pv
	return out
}

// ExecuteQuote runs a quote obtained elsewhere. The account binds to the chain
// of the first transaction step.
func (o *Orchestrator) ExecuteQuote(ctx context.Context, raw json.RawMessage, uid string) Response {
	log := o.logger.With(zap.String("uid", uid))
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return Response{Status: StatusError, HTTPStatus: http.StatusBadRequest, Error: "Missing quote"}
	}
	if o.account == nil {
		return errorResponse(clierr.New(clierr.CodeSigner, "no signing account configured"))
	}
	quote, err := execution.ParseQuote(raw)
	if err != nil {
		return errorResponse(err)
	}
	chainID := o.opts.DefaultChainID
	for _, step := range quote.Steps {
		if tx, ok := step.(execution.TransactionStep); ok {
			chainID = tx.ChainID
			break
		}
	}
	if !o.supported(chainID) {
		return Response{
			Status:     StatusError,
			HTTPStatus: http.StatusBadRequest,
			Error:      fmt.Sprintf("Unsupported chainId: %d", chainID),
		}
	}
	return o.run(ctx, quote, chain.Binding{ChainID: chainID, Account: o.account}, log.With(zap.Int64("chain_id", chainID)))
}

func (o *Orchestrator) run(ctx context.Context, quote execution.Quote, binding chain.Binding, log *zap.Logger) Response {
	result, err := o.executor.ExecuteQuote(ctx, quote, binding, o.opts.Execute)
	if err != nil {
		log.Warn("quote execution failed", zap.String("request_id", result.RequestID), zap.Error(err))
		resp := errorResponse(err)
		resp.RequestID = result.RequestID
		resp.TransactionHash = result.TransactionHash
		resp.ExecutionID = result.ExecutionID
		return resp
	}
	if o.opts.WaitForCompletion && result.RequestID != "" && o.http != nil {
		_, err := execution.PollStatus(ctx, o.http, o.relay.StatusURL(result.RequestID), execution.PollOptions{
			Interval:    o.opts.Execute.PollInterval,
			MaxAttempts: o.opts.Execute.PollMaxAttempts,
			Success:     execution.RelaySuccessStatuses,
			Failure:     execution.RelayFailureStatuses,
			Logger:      log,
		})
		if err != nil {
			resp := errorResponse(err)
			resp.RequestID = result.RequestID
			resp.TransactionHash = result.TransactionHash
			resp.ExecutionID = result.ExecutionID
			return resp
		}
	}
	log.Info("intent executed", zap.String("request_id", result.RequestID), zap.String("tx_hash", result.TransactionHash))
	return Response{
		Status:          StatusSuccess,
		HTTPStatus:      http.StatusOK,
		RequestID:       result.RequestID,
		TransactionHash: result.TransactionHash,
		ExecutionID:     result.ExecutionID,
		Message:         "Transaction executed successfully!",
	}
}

func (o *Orchestrator) supported(chainID int64) bool {
	if o.chain == nil || !o.chain.Supports(chainID) {
		return false
	}
	if len(o.opts.SupportedChains) == 0 {
		return id.IsKnownChain(chainID)
	}
	for _, c := range o.opts.SupportedChains {
		if c == chainID {
			return true
		}
	}
	return false
}

func tokenAddress(asset id.Asset) *common.Address {
	if asset.Native {
		return nil
	}
	addr := common.HexToAddress(asset.Address)
	return &addr
}
