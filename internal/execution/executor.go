package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ggonzalez94/wallet-agent/internal/chain"
	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/httpx"
	"github.com/ggonzalez94/wallet-agent/internal/registry"
)

// ChainClient is the part of the chain adapter the executor drives.
type ChainClient interface {
	SendTransaction(ctx context.Context, binding chain.Binding, req chain.TxRequest) (common.Hash, error)
	WaitForReceipt(ctx context.Context, chainID int64, hash common.Hash, opts chain.ReceiptOptions) (*types.Receipt, error)
	SignTypedData(ctx context.Context, binding chain.Binding, data apitypes.TypedData) ([]byte, error)
	SignMessage(ctx context.Context, binding chain.Binding, message []byte) ([]byte, error)
}

type ExecuteOptions struct {
	PollStatus      bool
	PollInterval    time.Duration
	PollMaxAttempts uint
	// RelayAPIBase resolves relative post and check endpoints.
	RelayAPIBase string
	Receipt      chain.ReceiptOptions
}

func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		PollStatus:      true,
		PollInterval:    3 * time.Second,
		PollMaxAttempts: 20,
		RelayAPIBase:    registry.RelayTestnetBaseURL,
		Receipt:         chain.DefaultReceiptOptions(),
	}
}

type Result struct {
	ExecutionID     string `json:"execution_id,omitempty"`
	RequestID       string `json:"request_id"`
	TransactionHash string `json:"transaction_hash,omitempty"`
}

type Executor struct {
	chain  ChainClient
	http   *httpx.Client
	// post delivers signatures with a single attempt; a retried POST could
	// submit the same signature twice after an ambiguous failure.
	post   *httpx.Client
	store  *Store
	logger *zap.Logger
}

// NewExecutor wires the executor. store may be nil to skip persistence.
func NewExecutor(chainClient ChainClient, httpClient *httpx.Client, store *Store, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		chain:  chainClient,
		http:   httpClient,
		post:   httpClient.WithoutRetries(),
		store:  store,
		logger: logger.Named("executor"),
	}
}

// ExecuteQuote runs every step of quote in order against binding. The first
// failing step aborts the run; steps already confirmed on-chain stay confirmed.
// On failure the returned Result still carries the last observed transaction hash.
func (e *Executor) ExecuteQuote(ctx context.Context, quote Quote, binding chain.Binding, opts ExecuteOptions) (Result, error) {
	if binding.Account == nil {
		return Result{}, clierr.New(clierr.CodeSigner, "missing signer")
	}
	if len(quote.Steps) == 0 {
		return Result{}, clierr.New(clierr.CodeMalformedQuote, "quote has no steps")
	}
	if strings.TrimSpace(opts.RelayAPIBase) == "" {
		opts.RelayAPIBase = registry.RelayTestnetBaseURL
	}
	opts.RelayAPIBase = strings.TrimRight(opts.RelayAPIBase, "/")

	exec := NewExecution(uuid.NewString(), quote, binding.Account.Address().Hex(), binding.ChainID)
	result := Result{ExecutionID: exec.ExecutionID, RequestID: quote.RequestID}
	log := e.logger.With(
		zap.String("execution_id", exec.ExecutionID),
		zap.String("request_id", quote.RequestID),
		zap.Int64("chain_id", binding.ChainID),
	)
	e.save(ctx, log, &exec)

	for i, step := range quote.Steps {
		rec := &exec.Steps[i]
		log.Info("executing step", zap.Int("step", i), zap.String("kind", string(step.Kind())))

		var err error
		switch s := step.(type) {
		case TransactionStep:
			err = e.runTransaction(ctx, s, binding, opts, rec, &result)
		case SignatureStep:
			err = e.runSignature(ctx, s, binding, opts, rec)
		default:
			err = clierr.New(clierr.CodeMalformedQuote, fmt.Sprintf("unsupported step type %T", step))
		}
		if err == nil && opts.PollStatus {
			if check := step.StatusCheck(); check != nil {
				if _, err = e.pollCheck(ctx, check, opts, log); err == nil {
					rec.Status = StepStatusChecked
				}
			}
		}
		if err != nil {
			wrapped := clierr.Wrap(clierr.CodeOf(err), fmt.Sprintf("step %d (%s) failed", i, step.Kind()), err)
			markStepFailed(&exec, rec, wrapped.Error())
			exec.TransactionHash = result.TransactionHash
			e.save(ctx, log, &exec)
			log.Warn("step failed", zap.Int("step", i), zap.Error(err))
			return result, wrapped
		}
		exec.TransactionHash = result.TransactionHash
		exec.Touch()
		e.save(ctx, log, &exec)
	}

	exec.Status = ExecutionStatusCompleted
	exec.Touch()
	e.save(ctx, log, &exec)
	log.Info("quote executed", zap.String("tx_hash", result.TransactionHash))
	return result, nil
}

func (e *Executor) runTransaction(ctx context.Context, step TransactionStep, binding chain.Binding, opts ExecuteOptions, rec *StepRecord, result *Result) error {
	if step.ChainID != binding.ChainID {
		return clierr.New(clierr.CodeChainMismatch, fmt.Sprintf("chain mismatch: step chainId %d, wallet chainId %d", step.ChainID, binding.ChainID))
	}
	value := step.Value
	if value == nil {
		value = new(big.Int)
	}
	hash, err := e.chain.SendTransaction(ctx, binding, chain.TxRequest{To: step.To, Data: step.Data, Value: value})
	if err != nil {
		return err
	}
	rec.Status = StepStatusSubmitted
	rec.TxHash = hash.Hex()
	result.TransactionHash = hash.Hex()

	receipt, err := e.chain.WaitForReceipt(ctx, step.ChainID, hash, opts.Receipt)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return clierr.New(clierr.CodeOnChain, fmt.Sprintf("transaction %s reverted", hash.Hex()))
	}
	rec.Status = StepStatusConfirmed
	return nil
}

func (e *Executor) runSignature(ctx context.Context, step SignatureStep, binding chain.Binding, opts ExecuteOptions, rec *StepRecord) error {
	var (
		sig []byte
		err error
	)
	switch {
	case step.Payload.TypedData != nil:
		sig, err = e.chain.SignTypedData(ctx, binding, *step.Payload.TypedData)
	case len(step.Payload.Message) > 0:
		sig, err = e.chain.SignMessage(ctx, binding, step.Payload.Message)
	default:
		return clierr.New(clierr.CodeMalformedQuote, "signature step has nothing to sign")
	}
	if err != nil {
		return err
	}
	rec.Status = StepStatusSigned

	postURL := resolveEndpoint(opts.RelayAPIBase, step.PostEndpoint)
	rec.PostURL = postURL
	if isAbsoluteURL(step.PostEndpoint) && !registry.SameOrigin(opts.RelayAPIBase, postURL) {
		e.logger.Warn("posting signature outside the relay origin", zap.String("url", postURL))
	}
	body := make(map[string]any, len(step.PostData)+1)
	for k, v := range step.PostData {
		body[k] = v
	}
	body["signature"] = hexutil.Encode(sig)
	if _, err := e.post.DoBodyJSON(ctx, step.PostMethod, postURL, body, nil, nil); err != nil {
		return clierr.Wrap(clierr.CodeOf(err), "signature step POST failed", err)
	}
	rec.Status = StepStatusPosted
	return nil
}

func (e *Executor) pollCheck(ctx context.Context, check *Check, opts ExecuteOptions, log *zap.Logger) (map[string]any, error) {
	return PollStatus(ctx, e.http, resolveEndpoint(opts.RelayAPIBase, check.Endpoint), PollOptions{
		Method:      check.Method,
		Interval:    opts.PollInterval,
		MaxAttempts: opts.PollMaxAttempts,
		Success:     RelaySuccessStatuses,
		Failure:     RelayFailureStatuses,
		Logger:      log,
	})
}

// save persists exec even after ctx is cancelled so a timed-out run still records its final state.
func (e *Executor) save(ctx context.Context, log *zap.Logger, exec *Execution) {
	if e.store == nil {
		return
	}
	if err := e.store.Save(context.WithoutCancel(ctx), *exec); err != nil {
		log.Warn("persist execution", zap.Error(err))
	}
}

func markStepFailed(exec *Execution, rec *StepRecord, msg string) {
	rec.Status = StepStatusFailed
	rec.Error = msg
	exec.Status = ExecutionStatusFailed
	exec.Error = msg
	exec.Touch()
}

func resolveEndpoint(base, endpoint string) string {
	if isAbsoluteURL(endpoint) {
		return endpoint
	}
	return base + endpoint
}
