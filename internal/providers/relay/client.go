package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ggonzalez94/wallet-agent/internal/cache"
	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/httpx"
	"github.com/ggonzalez94/wallet-agent/internal/model"
	"github.com/ggonzalez94/wallet-agent/internal/registry"
)

const (
	ProviderName = "relay"

	chainsPath           = "/chains"
	executionStatusPath  = "/intents/status/v2"
	requestsPath         = "/requests/v2"
	tokenPricePath       = "/currencies/token/price"
	currenciesPath       = "/currencies/v2"
	quotePath            = "/quote"
	multiInputQuotePath  = "/execute/swap/multi-input"
	indexTransactionPath = "/transactions/index"
	indexSinglePath      = "/transactions/single"

	DefaultCacheTTL = 5 * time.Minute
)

// TradeTypeExactInput is the only trade type the orchestrator requests.
const TradeTypeExactInput = "EXACT_INPUT"

// QuoteRequest is the body of POST /quote built from a structured intent.
type QuoteRequest struct {
	User                string `json:"user"`
	Recipient           string `json:"recipient,omitempty"`
	OriginChainID       int64  `json:"originChainId"`
	DestinationChainID  int64  `json:"destinationChainId"`
	OriginCurrency      string `json:"originCurrency"`
	DestinationCurrency string `json:"destinationCurrency"`
	Amount              string `json:"amount"`
	TradeType           string `json:"tradeType"`
}

// Client is a thin pass-through to the Relay bridging API. Responses are
// returned verbatim; callers that need structure normalize them.
type Client struct {
	http     *httpx.Client
	baseURL  string
	cache    *cache.Store
	cacheTTL time.Duration
	logger   *zap.Logger
}

func New(httpClient *httpx.Client, baseURL string, logger *zap.Logger) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = registry.RelayTestnetBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named(ProviderName),
	}
}

// WithCache enables the lookup cache for chains, prices and currency metadata.
func (c *Client) WithCache(store *cache.Store, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c.cache = store
	c.cacheTTL = ttl
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        ProviderName,
		Type:        "bridge",
		RequiresKey: false,
		Capabilities: []string{
			"bridge.quote",
			"bridge.execute",
			"chains.list",
			"token.price",
		},
	}
}

func (c *Client) Chains(ctx context.Context) (json.RawMessage, error) {
	return c.cached(ctx, cache.Key("relay.chains", c.baseURL), func() (json.RawMessage, error) {
		return c.get(ctx, chainsPath, nil)
	})
}

func (c *Client) ExecutionStatus(ctx context.Context, requestID string) (json.RawMessage, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, clierr.New(clierr.CodeUsage, "requestId is required")
	}
	return c.get(ctx, executionStatusPath, url.Values{"requestId": {requestID}})
}

// StatusURL is the whole-request status endpoint polled after execution.
func (c *Client) StatusURL(requestID string) string {
	return c.baseURL + executionStatusPath + "?" + url.Values{"requestId": {requestID}}.Encode()
}

func (c *Client) Requests(ctx context.Context, query url.Values) (json.RawMessage, error) {
	return c.get(ctx, requestsPath, query)
}

func (c *Client) TokenPrice(ctx context.Context, address string, chainID int64) (json.RawMessage, error) {
	if strings.TrimSpace(address) == "" {
		return nil, clierr.New(clierr.CodeUsage, "address is required")
	}
	chain := strconv.FormatInt(chainID, 10)
	key := cache.Key("relay.price", c.baseURL, strings.ToLower(address), chain)
	return c.cached(ctx, key, func() (json.RawMessage, error) {
		return c.get(ctx, tokenPricePath, url.Values{"address": {address}, "chainId": {chain}})
	})
}

func (c *Client) Currencies(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return c.cached(ctx, cache.Key("relay.currencies", c.baseURL, string(body)), func() (json.RawMessage, error) {
		return c.post(ctx, currenciesPath, body)
	})
}

// Quote posts body as is. body may be a QuoteRequest or raw JSON.
func (c *Client) Quote(ctx context.Context, body any) (json.RawMessage, error) {
	return c.post(ctx, quotePath, body)
}

func (c *Client) MultiInputQuote(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return c.post(ctx, multiInputQuotePath, body)
}

func (c *Client) IndexTransaction(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return c.post(ctx, indexTransactionPath, body)
}

func (c *Client) IndexSingleTransaction(ctx context.Context, body json.RawMessage) (json.RawMessage, error) {
	return c.post(ctx, indexSinglePath, body)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build relay request", err)
	}
	var out json.RawMessage
	if _, err := c.http.DoJSON(ctx, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	if raw, ok := body.(json.RawMessage); ok && len(raw) == 0 {
		body = map[string]any{}
	}
	var out json.RawMessage
	if _, err := c.http.DoBodyJSON(ctx, http.MethodPost, c.baseURL+path, body, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// cached serves fresh entries from the store, refreshes misses, and falls
// back to an expired entry when the upstream is unavailable.
func (c *Client) cached(ctx context.Context, key string, fetch func() (json.RawMessage, error)) (json.RawMessage, error) {
	if c.cache == nil {
		return fetch()
	}
	entry, hit, err := c.cache.Lookup(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	if hit && !entry.Expired {
		return json.RawMessage(entry.Value), nil
	}
	fresh, err := fetch()
	if err != nil {
		if hit && clierr.CodeOf(err) == clierr.CodeUnavailable {
			c.logger.Warn("serving expired relay lookup", zap.String("key", key), zap.Duration("age", entry.Age), zap.Error(err))
			return json.RawMessage(entry.Value), nil
		}
		return nil, err
	}
	if err := c.cache.Put(ctx, key, fresh, c.cacheTTL); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return fresh, nil
}
