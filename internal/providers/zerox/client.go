package zerox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/httpx"
	"github.com/ggonzalez94/wallet-agent/internal/providers"
	"github.com/ggonzalez94/wallet-agent/internal/registry"
)

const KeyEnvVar = "WAGENT_ZEROX_API_KEY"

// Client talks to the 0x swap and gasless APIs. Responses are kept as generic
// JSON with numbers preserved, and only the fields the drivers need are checked.
type Client struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
}

func New(httpClient *httpx.Client, baseURL, apiKey string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = registry.ZeroXBaseURL
	}
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

func (c *Client) headers() map[string]string {
	return map[string]string{
		"0x-api-key": c.apiKey,
		"0x-version": "v2",
	}
}

func (c *Client) requireKey() error {
	if strings.TrimSpace(c.apiKey) == "" {
		return clierr.New(clierr.CodeAuth, fmt.Sprintf("missing required API key for 0x (%s)", KeyEnvVar))
	}
	return nil
}

func (c *Client) getSwap(ctx context.Context, path string, req providers.SwapQuoteRequest) (map[string]any, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	vals := url.Values{}
	vals.Set("chainId", strconv.FormatInt(req.ChainID, 10))
	vals.Set("sellToken", req.SellToken)
	vals.Set("buyToken", req.BuyToken)
	vals.Set("sellAmount", req.SellAmount)
	vals.Set("taker", req.Taker)
	return c.get(ctx, path+"?"+vals.Encode())
}

func (c *Client) get(ctx context.Context, pathAndQuery string) (map[string]any, error) {
	hReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build 0x request", err)
	}
	for k, v := range c.headers() {
		hReq.Header.Set(k, v)
	}
	var raw json.RawMessage
	if _, err := c.http.DoJSON(ctx, hReq, &raw); err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

func (c *Client) post(ctx context.Context, path string, body any) (map[string]any, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if _, err := c.http.DoBodyJSON(ctx, http.MethodPost, c.baseURL+path, body, c.headers(), &raw); err != nil {
		return nil, err
	}
	return decodeObject(raw)
}

func (c *Client) SwapPrice(ctx context.Context, req providers.SwapQuoteRequest) (map[string]any, error) {
	return c.getSwap(ctx, "/swap/permit2/price", req)
}

func (c *Client) SwapQuote(ctx context.Context, req providers.SwapQuoteRequest) (map[string]any, error) {
	return c.getSwap(ctx, "/swap/permit2/quote", req)
}

func (c *Client) GaslessPrice(ctx context.Context, req providers.SwapQuoteRequest) (map[string]any, error) {
	return c.getSwap(ctx, "/gasless/price", req)
}

func (c *Client) GaslessQuote(ctx context.Context, req providers.SwapQuoteRequest) (map[string]any, error) {
	return c.getSwap(ctx, "/gasless/quote", req)
}

func (c *Client) GaslessSubmit(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return c.post(ctx, "/gasless/submit", payload)
}

// GaslessStatusURL is polled by the gasless driver through the shared status poller.
func (c *Client) GaslessStatusURL(tradeHash string) string {
	return c.baseURL + "/gasless/status/" + url.PathEscape(tradeHash)
}

func decodeObject(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "decode 0x response", err)
	}
	if out == nil {
		return nil, clierr.New(clierr.CodeUnavailable, "0x response is not an object")
	}
	return out, nil
}
