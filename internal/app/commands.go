package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/execution"
	"github.com/ggonzalez94/wallet-agent/internal/guard"
	"github.com/ggonzalez94/wallet-agent/internal/id"
	"github.com/ggonzalez94/wallet-agent/internal/model"
	"github.com/ggonzalez94/wallet-agent/internal/orchestrator"
	"github.com/ggonzalez94/wallet-agent/internal/providers"
	"github.com/ggonzalez94/wallet-agent/internal/providers/relay"
	"github.com/ggonzalez94/wallet-agent/internal/registry"
)

func (s *runtimeState) newServeCommand() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			srv, err := s.services.server()
			if err != nil {
				return err
			}
			addr := listen
			if addr == "" {
				addr = s.settings.ListenAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := srv.Run(ctx, addr); err != nil {
				return clierr.Wrap(clierr.CodeInternal, "serve http", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config, :3000)")
	return cmd
}

func (s *runtimeState) newRelayCommand() *cobra.Command {
	root := &cobra.Command{Use: "relay", Short: "Relay bridge API"}

	root.AddCommand(&cobra.Command{
		Use:   "chains",
		Short: "Chains supported by relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runRelay(cmd, func(ctx context.Context, c *relay.Client) (json.RawMessage, error) {
				return c.Chains(ctx)
			})
		},
	})

	var requestID string
	status := &cobra.Command{
		Use:   "status",
		Short: "Execution status of a relay request",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runRelay(cmd, func(ctx context.Context, c *relay.Client) (json.RawMessage, error) {
				return c.ExecutionStatus(ctx, requestID)
			})
		},
	}
	status.Flags().StringVar(&requestID, "request-id", "", "Relay request id")
	_ = status.MarkFlagRequired("request-id")
	root.AddCommand(status)

	var user, hash, continuation string
	var limit int
	requests := &cobra.Command{
		Use:   "requests",
		Short: "List relay requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			query := url.Values{}
			if user != "" {
				query.Set("user", user)
			}
			if hash != "" {
				query.Set("hash", hash)
			}
			if continuation != "" {
				query.Set("continuation", continuation)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			return s.runRelay(cmd, func(ctx context.Context, c *relay.Client) (json.RawMessage, error) {
				return c.Requests(ctx, query)
			})
		},
	}
	requests.Flags().StringVar(&user, "user", "", "Filter by user address")
	requests.Flags().StringVar(&hash, "hash", "", "Filter by transaction hash")
	requests.Flags().StringVar(&continuation, "continuation", "", "Pagination cursor")
	requests.Flags().IntVar(&limit, "limit", 0, "Page size")
	root.AddCommand(requests)

	var priceAddress, priceChain string
	price := &cobra.Command{
		Use:   "price",
		Short: "Token price from relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := id.ParseChain(priceChain)
			if err != nil {
				return err
			}
			asset, err := id.ParseAsset(priceAddress, chain)
			if err != nil {
				return err
			}
			return s.runRelay(cmd, func(ctx context.Context, c *relay.Client) (json.RawMessage, error) {
				return c.TokenPrice(ctx, asset.Address, chain.EVMChainID)
			})
		},
	}
	price.Flags().StringVar(&priceAddress, "token", "", "Token symbol or address")
	price.Flags().StringVar(&priceChain, "chain", "", "Chain id/name/CAIP-2")
	_ = price.MarkFlagRequired("token")
	_ = price.MarkFlagRequired("chain")
	root.AddCommand(price)

	var intent orchestrator.IntentRequest
	var quoteUser string
	quote := &cobra.Command{
		Use:   "quote",
		Short: "Fetch a relay quote for an intent without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			userAddr, err := s.resolveUser(quoteUser)
			if err != nil {
				return err
			}
			body, err := orchestrator.QuoteRequestFor(intent, userAddr)
			if err != nil {
				return err
			}
			return s.runRelay(cmd, func(ctx context.Context, c *relay.Client) (json.RawMessage, error) {
				return c.Quote(ctx, body)
			})
		},
	}
	bindIntentFlags(quote, &intent)
	quote.Flags().StringVar(&quoteUser, "user", "", "Quoting address (default: configured signer)")
	root.AddCommand(quote)

	root.AddCommand(s.newRelayPostCommand("currencies", "Search relay currencies", func(c *relay.Client) func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return c.Currencies
	}))
	root.AddCommand(s.newRelayPostCommand("multi-input-quote", "Quote a multi-input swap", func(c *relay.Client) func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return c.MultiInputQuote
	}))
	root.AddCommand(s.newRelayPostCommand("index-transaction", "Index a transaction with relay", func(c *relay.Client) func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return c.IndexTransaction
	}))
	root.AddCommand(s.newRelayPostCommand("index-single-transaction", "Index a single transaction with relay", func(c *relay.Client) func(context.Context, json.RawMessage) (json.RawMessage, error) {
		return c.IndexSingleTransaction
	}))
	return root
}

// newRelayPostCommand forwards a JSON body from --body or --body-file.
func (s *runtimeState) newRelayPostCommand(use, short string, pick func(*relay.Client) func(context.Context, json.RawMessage) (json.RawMessage, error)) *cobra.Command {
	var body, bodyFile string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readJSONInput(cmd.InOrStdin(), body, bodyFile)
			if err != nil {
				return err
			}
			return s.runRelay(cmd, func(ctx context.Context, c *relay.Client) (json.RawMessage, error) {
				return pick(c)(ctx, raw)
			})
		},
	}
	cmd.Flags().StringVar(&body, "body", "", "JSON request body")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Read JSON body from file (- for stdin)")
	return cmd
}

func (s *runtimeState) runRelay(cmd *cobra.Command, call func(context.Context, *relay.Client) (json.RawMessage, error)) error {
	c, err := s.services.relayClient()
	if err != nil {
		return err
	}
	start := time.Now()
	data, err := call(cmd.Context(), c)
	status := []model.ProviderStatus{{Name: relay.ProviderName, Status: statusFromErr(err), LatencyMS: time.Since(start).Milliseconds()}}
	if err != nil {
		return err
	}
	return s.emitSuccess(trimRootPath(cmd.CommandPath()), data, nil, status)
}

func (s *runtimeState) newExecuteCommand() *cobra.Command {
	var quoteArg, quoteFile, uid string
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a relay quote step by step with the configured signer",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readJSONInput(cmd.InOrStdin(), quoteArg, quoteFile)
			if err != nil {
				return err
			}
			if _, err := s.services.signer(); err != nil {
				return err
			}
			orch, err := s.services.orchestrator()
			if err != nil {
				return err
			}
			return s.emitResponse(cmd, orch.ExecuteQuote(cmd.Context(), raw, uid))
		},
	}
	cmd.Flags().StringVar(&quoteArg, "quote", "", "Quote JSON")
	cmd.Flags().StringVar(&quoteFile, "quote-file", "", "Read quote JSON from file (- for stdin)")
	cmd.Flags().StringVar(&uid, "uid", "", "Caller id recorded in logs")
	return cmd
}

func (s *runtimeState) newIntentCommand() *cobra.Command {
	var req orchestrator.IntentRequest
	cmd := &cobra.Command{
		Use:   "intent",
		Short: "Quote and execute a Swap, Bridge or Transfer intent",
		Example: "  wagent intent --intent Bridge --from-network base-sepolia --to-network sepolia --token ETH --amount 0.01\n" +
			"  wagent intent --intent Swap --from-network base --token USDC --buy-token ETH --amount 25",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := s.services.signer(); err != nil {
				return err
			}
			orch, err := s.services.orchestrator()
			if err != nil {
				return err
			}
			return s.emitResponse(cmd, orch.Execute(cmd.Context(), req))
		},
	}
	bindIntentFlags(cmd, &req)
	cmd.Flags().StringVar(&req.UID, "uid", "", "Caller id recorded in logs")
	return cmd
}

func bindIntentFlags(cmd *cobra.Command, req *orchestrator.IntentRequest) {
	f := cmd.Flags()
	f.Var(newIntentValue(&req.Intent), "intent", "Intent type (Swap|Bridge|Transfer)")
	f.StringVar(&req.SourceNetwork, "from-network", "", "Source chain id/name/CAIP-2")
	f.StringVar(&req.DestNetwork, "to-network", "", "Destination chain (default: source)")
	f.StringVar(&req.Token, "token", "", "Token to send (symbol or address)")
	f.StringVar(&req.BuyToken, "buy-token", "", "Token to receive for swaps")
	f.StringVar(&req.Amount, "amount", "", "Human readable amount")
	f.StringVar(&req.Recipient, "recipient", "", "Recipient address for transfers")
	_ = cmd.MarkFlagRequired("intent")
	_ = cmd.MarkFlagRequired("from-network")
	_ = cmd.MarkFlagRequired("token")
	_ = cmd.MarkFlagRequired("amount")
}

// emitResponse renders a successful orchestrator response, or turns a blocked
// or failed one into a typed error carrying the response message.
func (s *runtimeState) emitResponse(cmd *cobra.Command, resp orchestrator.Response) error {
	if resp.Status == orchestrator.StatusSuccess {
		return s.emitSuccess(trimRootPath(cmd.CommandPath()), resp, nil, nil)
	}
	msg := resp.Error
	if msg == "" {
		msg = resp.Message
	}
	if resp.Status == orchestrator.StatusBlocked {
		return clierr.New(clierr.CodeBlocked, fmt.Sprintf("%s: %s", resp.Reason, msg))
	}
	if resp.RequestID != "" || resp.TransactionHash != "" {
		msg = fmt.Sprintf("%s (request %s, tx %s)", msg, resp.RequestID, resp.TransactionHash)
	}
	return clierr.New(responseCode(resp), msg)
}

func responseCode(resp orchestrator.Response) clierr.Code {
	switch {
	case resp.Code == orchestrator.CodeRelayUnavailable:
		return clierr.CodeUnavailable
	case resp.Code != "":
		return clierr.CodeForType(resp.Code)
	case resp.HTTPStatus == http.StatusUnauthorized || resp.HTTPStatus == http.StatusForbidden:
		return clierr.CodeAuth
	case resp.HTTPStatus == http.StatusTooManyRequests:
		return clierr.CodeRateLimited
	case resp.HTTPStatus >= 500:
		return clierr.CodeUnavailable
	case resp.HTTPStatus >= 400:
		return clierr.CodeUsage
	default:
		return clierr.CodeInternal
	}
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	root := &cobra.Command{Use: "swap", Short: "0x swap quotes and execution"}
	var provider, chainArg, sell, buy, amount, taker string
	var execute bool
	quote := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap with the 0x drivers, optionally executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := id.ParseChain(chainArg)
			if err != nil {
				return err
			}
			sellAsset, err := id.ParseAsset(sell, chain)
			if err != nil {
				return err
			}
			buyAsset, err := id.ParseAsset(buy, chain)
			if err != nil {
				return err
			}
			base, err := id.ToBaseUnits(amount, sellAsset.Decimals)
			if err != nil {
				return err
			}
			req := providers.SwapQuoteRequest{
				ChainID:    chain.EVMChainID,
				SellToken:  swapTokenAddress(sellAsset),
				BuyToken:   swapTokenAddress(buyAsset),
				SellAmount: base,
				Taker:      taker,
			}
			if execute {
				account, err := s.services.signer()
				if err != nil {
					return err
				}
				req.Account = account
				if req.Taker == "" {
					req.Taker = account.Address().Hex()
				}
			}
			if !id.IsEVMAddress(req.Taker) {
				return clierr.New(clierr.CodeUsage, "--taker must be a valid address (or pass --execute with a configured signer)")
			}
			drivers, err := s.services.swapDrivers()
			if err != nil {
				return err
			}
			selected, err := selectDrivers(drivers, provider)
			if err != nil {
				return err
			}
			results := providers.Route(cmd.Context(), selected, req)
			statuses := make([]model.ProviderStatus, 0, len(results))
			for _, r := range results {
				statuses = append(statuses, model.ProviderStatus{Name: r.Driver, Status: quoteStatus(r.Quotes), LatencyMS: r.Latency.Milliseconds()})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), providers.Flatten(results), nil, statuses)
		},
	}
	quote.Flags().StringVar(&provider, "provider", "", "Driver name (default: all)")
	quote.Flags().StringVar(&chainArg, "chain", "", "Chain id/name/CAIP-2")
	quote.Flags().StringVar(&sell, "sell", "", "Sell token symbol or address")
	quote.Flags().StringVar(&buy, "buy", "", "Buy token symbol or address")
	quote.Flags().StringVar(&amount, "amount", "", "Human readable sell amount")
	quote.Flags().StringVar(&taker, "taker", "", "Taker address (default: signer with --execute)")
	quote.Flags().BoolVar(&execute, "execute", false, "Quote all drivers, then approve, sign and submit on the best recommended one")
	_ = quote.MarkFlagRequired("chain")
	_ = quote.MarkFlagRequired("sell")
	_ = quote.MarkFlagRequired("buy")
	_ = quote.MarkFlagRequired("amount")
	root.AddCommand(quote)
	return root
}

// swapTokenAddress maps the native currency to the 0x sentinel.
func swapTokenAddress(a id.Asset) string {
	if a.Native {
		return registry.NativeTokenSentinel
	}
	return a.Address
}

func quoteStatus(quotes []providers.SwapQuote) string {
	for _, q := range quotes {
		if q.Recommended {
			return "ok"
		}
	}
	return "error"
}

func selectDrivers(drivers []providers.DEXAggregator, name string) ([]providers.DEXAggregator, error) {
	if strings.TrimSpace(name) == "" {
		return drivers, nil
	}
	for _, d := range drivers {
		if strings.EqualFold(d.Info().Name, strings.TrimSpace(name)) {
			return []providers.DEXAggregator{d}, nil
		}
	}
	return nil, clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown provider %q", name))
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var address, chainArg, token, amount string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Check a native or ERC-20 balance against a required amount",
		RunE: func(cmd *cobra.Command, args []string) error {
			wallet, err := s.resolveUser(address)
			if err != nil {
				return err
			}
			chain, asset, required, err := parseAmountOn(chainArg, token, amount)
			if err != nil {
				return err
			}
			g, err := s.services.guard()
			if err != nil {
				return err
			}
			req := guard.BalanceRequest{Wallet: wallet, RequiredAmount: required, ChainID: chain.EVMChainID}
			if !asset.Native {
				addr := common.HexToAddress(asset.Address)
				req.Token = &addr
			}
			res := g.CheckBalance(cmd.Context(), req)
			if res.Error != "" {
				return clierr.New(clierr.CodeUnavailable, "balance check failed: "+res.Error)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{
				"address":   wallet.Hex(),
				"chain_id":  chain.EVMChainID,
				"chain":     chain.Name,
				"token":     asset.Symbol,
				"balance":   id.FormatUnits(res.CurrentBalance, asset.Decimals),
				"check":     res,
			}, nil, nil)
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Wallet address (default: configured signer)")
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain id/name/CAIP-2")
	cmd.Flags().StringVar(&token, "token", "", "Token symbol or address (default: native)")
	cmd.Flags().StringVar(&amount, "amount", "", "Required human readable amount")
	_ = cmd.MarkFlagRequired("chain")
	return cmd
}

func (s *runtimeState) newAllowanceCommand() *cobra.Command {
	var owner, spender, chainArg, token, amount string
	cmd := &cobra.Command{
		Use:   "allowance",
		Short: "Check an ERC-20 allowance (defaults to the Permit2 spender)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ownerAddr, err := s.resolveUser(owner)
			if err != nil {
				return err
			}
			chain, asset, required, err := parseAmountOn(chainArg, token, amount)
			if err != nil {
				return err
			}
			if asset.Native {
				return clierr.New(clierr.CodeUsage, "native currency has no allowance")
			}
			if spender == "" {
				permit2, ok := registry.Permit2Spender(chain.EVMChainID)
				if !ok {
					return clierr.New(clierr.CodeUsage, "--spender is required on this chain")
				}
				spender = permit2
			}
			if !id.IsEVMAddress(spender) {
				return clierr.New(clierr.CodeUsage, "--spender must be a valid address")
			}
			g, err := s.services.guard()
			if err != nil {
				return err
			}
			res := g.CheckAllowance(cmd.Context(), guard.AllowanceRequest{
				Owner:          ownerAddr,
				Token:          common.HexToAddress(asset.Address),
				Spender:        common.HexToAddress(spender),
				RequiredAmount: required,
				ChainID:        chain.EVMChainID,
			})
			if res.Error != "" {
				return clierr.New(clierr.CodeUnavailable, "allowance check failed: "+res.Error)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), map[string]any{
				"owner":    ownerAddr.Hex(),
				"spender":  common.HexToAddress(spender).Hex(),
				"chain_id": chain.EVMChainID,
				"token":    asset.Symbol,
				"check":    res,
			}, nil, nil)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Token owner (default: configured signer)")
	cmd.Flags().StringVar(&spender, "spender", "", "Spender address")
	cmd.Flags().StringVar(&chainArg, "chain", "", "Chain id/name/CAIP-2")
	cmd.Flags().StringVar(&token, "token", "", "Token symbol or address")
	cmd.Flags().StringVar(&amount, "amount", "", "Required human readable amount")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func (s *runtimeState) newPreviewCommand() *cobra.Command {
	var req orchestrator.IntentRequest
	var from string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Describe an intent with fee estimate and risks without sending anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			fromAddr, err := s.resolveUser(from)
			if err != nil {
				return err
			}
			pr, err := orchestrator.PreviewRequestFor(req, fromAddr)
			if err != nil {
				return err
			}
			builder, err := s.services.previews()
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), builder.Build(cmd.Context(), pr), nil, nil)
		},
	}
	bindIntentFlags(cmd, &req)
	cmd.Flags().StringVar(&from, "from", "", "Sender address (default: configured signer)")
	return cmd
}

func (s *runtimeState) newExecutionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "executions", Short: "Persisted quote executions"}
	var filter execution.ListFilter
	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent executions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.services.executionStore()
			if err != nil {
				return err
			}
			filter.Status = execution.ExecutionStatus(strings.ToLower(strings.TrimSpace(status)))
			items, err := store.List(cmd.Context(), filter)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list executions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), items, nil, nil)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Filter by status (running|completed|failed)")
	list.Flags().StringVar(&filter.Account, "account", "", "Filter by signing account")
	list.Flags().IntVar(&filter.Limit, "limit", 20, "Maximum executions")
	root.AddCommand(list)

	root.AddCommand(&cobra.Command{
		Use:   "get <execution-id|request-id>",
		Short: "Show one execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := s.services.executionStore()
			if err != nil {
				return err
			}
			exec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				byRequest, reqErr := store.FindByRequestID(cmd.Context(), args[0])
				if reqErr != nil {
					return err
				}
				exec = byRequest
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), exec, nil, nil)
		},
	})
	return root
}

type chainRow struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ChainID  int64  `json:"chain_id"`
	CAIP2    string `json:"caip2"`
	Testnet  bool   `json:"testnet"`
	Explorer string `json:"explorer"`
	RPC      bool   `json:"rpc_configured"`
	ZeroX    bool   `json:"zerox"`
}

func (s *runtimeState) newChainsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "Chains known to the agent and their capabilities",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := []chainRow{}
			for _, c := range id.Chains() {
				_, rpcErr := registry.ResolveRPCURL(s.settings.RPCURLs[c.EVMChainID], c.EVMChainID)
				rows = append(rows, chainRow{
					Name:     c.Name,
					Slug:     c.Slug,
					ChainID:  c.EVMChainID,
					CAIP2:    c.CAIP2,
					Testnet:  c.Testnet,
					Explorer: c.Explorer,
					RPC:      rpcErr == nil,
					ZeroX:    registry.ZeroXSupportsChain(c.EVMChainID),
				})
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), rows, nil, nil)
		},
	}
}

// resolveUser returns the explicit address, or the configured signer's.
func (s *runtimeState) resolveUser(explicit string) (common.Address, error) {
	if strings.TrimSpace(explicit) != "" {
		if !id.IsEVMAddress(explicit) {
			return common.Address{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("%q is not a valid address", explicit))
		}
		return common.HexToAddress(explicit), nil
	}
	account, err := s.services.signer()
	if err != nil {
		return common.Address{}, clierr.Wrap(clierr.CodeUsage, "no address given and no signer configured", err)
	}
	return account.Address(), nil
}

func parseAmountOn(chainArg, token, amount string) (id.Chain, id.Asset, *big.Int, error) {
	chain, err := id.ParseChain(chainArg)
	if err != nil {
		return id.Chain{}, id.Asset{}, nil, err
	}
	asset, err := id.ParseAsset(defaultString(token, "ETH"), chain)
	if err != nil {
		return id.Chain{}, id.Asset{}, nil, err
	}
	required := new(big.Int)
	if strings.TrimSpace(amount) != "" {
		base, err := id.ToBaseUnits(amount, asset.Decimals)
		if err != nil {
			return id.Chain{}, id.Asset{}, nil, err
		}
		required.SetString(base, 10)
	}
	return chain, asset, required, nil
}

func defaultString(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// readJSONInput takes inline JSON, a file path, or "-" for in.
func readJSONInput(in io.Reader, inline, path string) (json.RawMessage, error) {
	var raw []byte
	switch {
	case strings.TrimSpace(inline) != "":
		raw = []byte(inline)
	case path == "-":
		buf, err := io.ReadAll(in)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "read stdin", err)
		}
		raw = buf
	case strings.TrimSpace(path) != "":
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeUsage, "read input file", err)
		}
		raw = buf
	default:
		return nil, clierr.New(clierr.CodeUsage, "a JSON body is required (inline or file)")
	}
	if !json.Valid(raw) {
		return nil, clierr.New(clierr.CodeUsage, "input is not valid JSON")
	}
	return json.RawMessage(raw), nil
}
