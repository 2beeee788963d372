package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gin-gonic/gin"

	"github.com/ggonzalez94/wallet-agent/internal/execution/signer"
	"github.com/ggonzalez94/wallet-agent/internal/guard"
	"github.com/ggonzalez94/wallet-agent/internal/httpx"
	"github.com/ggonzalez94/wallet-agent/internal/model"
	"github.com/ggonzalez94/wallet-agent/internal/orchestrator"
	"github.com/ggonzalez94/wallet-agent/internal/providers"
	"github.com/ggonzalez94/wallet-agent/internal/providers/relay"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeOrchestrator struct {
	intents []orchestrator.IntentRequest
	quotes  []string
	resp    orchestrator.Response
}

func (f *fakeOrchestrator) Execute(_ context.Context, req orchestrator.IntentRequest) orchestrator.Response {
	f.intents = append(f.intents, req)
	return f.resp
}

func (f *fakeOrchestrator) ExecuteQuote(_ context.Context, raw json.RawMessage, _ string) orchestrator.Response {
	f.quotes = append(f.quotes, string(raw))
	if len(bytes.TrimSpace(raw)) == 0 {
		return orchestrator.Response{Status: orchestrator.StatusError, HTTPStatus: http.StatusBadRequest, Error: "Missing quote"}
	}
	return f.resp
}

type fakeDriver struct {
	name string
	reqs []providers.SwapQuoteRequest
}

func (d *fakeDriver) Info() model.ProviderInfo { return model.ProviderInfo{Name: d.name} }

func (d *fakeDriver) GetSwapQuote(_ context.Context, req providers.SwapQuoteRequest) []providers.SwapQuote {
	d.reqs = append(d.reqs, req)
	return []providers.SwapQuote{{Provider: d.name, Output: "42", Recommended: true}}
}

type fakeReader struct {
	native *big.Int
	erc20  *big.Int
}

func (f fakeReader) ReadContract(context.Context, int64, common.Address, []byte) ([]byte, error) {
	return math.U256Bytes(new(big.Int).Set(f.erc20)), nil
}

func (f fakeReader) BalanceAt(context.Context, int64, common.Address) (*big.Int, error) {
	return f.native, nil
}

type fixture struct {
	server   *Server
	orch     *fakeOrchestrator
	drivers  []*fakeDriver
	upstream []string
}

func newFixture(t *testing.T, upstream http.HandlerFunc) *fixture {
	t.Helper()
	f := &fixture{orch: &fakeOrchestrator{}}
	relaySrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.upstream = append(f.upstream, r.Method+" "+r.URL.RequestURI())
		upstream(w, r)
	}))
	t.Cleanup(relaySrv.Close)

	f.drivers = []*fakeDriver{{name: "swap-dex-api"}, {name: "gasless-dex-api"}}
	f.server = New(Deps{
		Relay:        relay.New(httpx.New(2*time.Second, 0), relaySrv.URL, nil),
		Orchestrator: f.orch,
		Drivers:      []providers.DEXAggregator{f.drivers[0], f.drivers[1]},
		Guard:        guard.New(fakeReader{native: big.NewInt(1_500_000_000_000_000_000), erc20: big.NewInt(250_000_000)}, nil),
	})
	return f
}

func okUpstream(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func TestHealthzSetsCorrelationID(t *testing.T) {
	f := newFixture(t, okUpstream)
	w := f.do(t, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || decode(t, w)["status"] != "ok" {
		t.Fatalf("unexpected health response %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get(CorrelationIDHeader) == "" {
		t.Fatal("expected correlation id header")
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Header().Get(CorrelationIDHeader) != "abc-123" {
		t.Fatalf("expected caller correlation id, got %q", rec.Header().Get(CorrelationIDHeader))
	}
}

func TestRelayPassThroughRoutes(t *testing.T) {
	f := newFixture(t, okUpstream)
	cases := []struct {
		method, path, body, upstream string
	}{
		{http.MethodGet, "/api/relay/chains", "", "GET /chains"},
		{http.MethodGet, "/api/relay/execution-status?requestId=0x1", "", "GET /intents/status/v2?requestId=0x1"},
		{http.MethodGet, "/api/relay/requests?user=0xabc", "", "GET /requests/v2?user=0xabc"},
		{http.MethodGet, "/api/relay/token-price?address=0xt&chainId=1", "", "GET /currencies/token/price?address=0xt&chainId=1"},
		{http.MethodPost, "/api/relay/currencies", `{"chainIds":[1]}`, "POST /currencies/v2"},
		{http.MethodPost, "/api/relay/quote", `{"user":"0x1"}`, "POST /quote"},
		{http.MethodPost, "/api/relay/multi-input-quote", `{"origins":[]}`, "POST /execute/swap/multi-input"},
		{http.MethodPost, "/api/relay/index-transaction", `{"txHash":"0x1"}`, "POST /transactions/index"},
		{http.MethodPost, "/api/relay/index-single-transaction", `{"tx":{}}`, "POST /transactions/single"},
	}
	for _, tc := range cases {
		before := len(f.upstream)
		w := f.do(t, tc.method, tc.path, tc.body)
		if w.Code != http.StatusOK || w.Body.String() != `{"ok":true}` {
			t.Fatalf("%s %s: unexpected response %d %s", tc.method, tc.path, w.Code, w.Body.String())
		}
		if len(f.upstream) != before+1 || f.upstream[before] != tc.upstream {
			t.Fatalf("%s %s: expected upstream %q, got %v", tc.method, tc.path, tc.upstream, f.upstream[before:])
		}
	}
}

func TestRelayRouteValidation(t *testing.T) {
	f := newFixture(t, okUpstream)
	cases := []struct {
		method, path, body, want string
	}{
		{http.MethodGet, "/api/relay/execution-status", "", "Missing requestId"},
		{http.MethodGet, "/api/relay/token-price?address=0xt", "", "Missing address or chainId"},
		{http.MethodPost, "/api/relay/quote", "", "Missing request body"},
	}
	for _, tc := range cases {
		w := f.do(t, tc.method, tc.path, tc.body)
		if w.Code != http.StatusBadRequest || decode(t, w)["error"] != tc.want {
			t.Fatalf("%s %s: unexpected response %d %s", tc.method, tc.path, w.Code, w.Body.String())
		}
	}
	if len(f.upstream) != 0 {
		t.Fatalf("validation failures must not reach upstream, got %v", f.upstream)
	}
}

func TestRelayErrorKeepsUpstreamStatusAndBody(t *testing.T) {
	f := newFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid chain","errorCode":"INVALID_INPUT_CURRENCY"}`))
	})
	w := f.do(t, http.MethodPost, "/api/relay/quote", `{"user":"0x1"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected upstream status, got %d", w.Code)
	}
	body := decode(t, w)
	upstream, ok := body["error"].(map[string]any)
	if !ok || upstream["errorCode"] != "INVALID_INPUT_CURRENCY" {
		t.Fatalf("expected upstream body under error, got %s", w.Body.String())
	}
}

func TestExecuteQuoteRoute(t *testing.T) {
	f := newFixture(t, okUpstream)
	f.orch.resp = orchestrator.Response{Status: orchestrator.StatusSuccess, HTTPStatus: http.StatusOK, RequestID: "0xreq", TransactionHash: "0xtx"}

	w := f.do(t, http.MethodPost, "/api/relay/execute-quote", `{"quote":{"steps":[]},"uid":"u1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["status"] != "success" || body["transactionHash"] != "0xtx" || body["requestId"] != "0xreq" {
		t.Fatalf("unexpected body %v", body)
	}
	if len(f.orch.quotes) != 1 || f.orch.quotes[0] != `{"steps":[]}` {
		t.Fatalf("expected raw quote forwarded, got %v", f.orch.quotes)
	}

	w = f.do(t, http.MethodPost, "/api/relay/execute-quote", `{"uid":"u1"}`)
	if w.Code != http.StatusBadRequest || decode(t, w)["error"] != "Missing quote" {
		t.Fatalf("expected missing quote, got %d %s", w.Code, w.Body.String())
	}
}

func TestQuoteAndExecuteRoute(t *testing.T) {
	f := newFixture(t, okUpstream)
	f.orch.resp = orchestrator.Response{
		Status:     orchestrator.StatusBlocked,
		HTTPStatus: http.StatusUnprocessableEntity,
		Reason:     orchestrator.BlockedInsufficientBalance,
	}
	w := f.do(t, http.MethodPost, "/api/relay/quote-and-execute",
		`{"intent":"Bridge","source_network":"Base Sepolia","dest_network":"Sepolia","token":"ETH","amount":"0.01"}`)
	if w.Code != http.StatusUnprocessableEntity || decode(t, w)["reason"] != "insufficient_balance" {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
	if len(f.orch.intents) != 1 || f.orch.intents[0].DestNetwork != "Sepolia" {
		t.Fatalf("unexpected intents %+v", f.orch.intents)
	}

	w = f.do(t, http.MethodPost, "/api/relay/quote-and-execute", `{"token":"ETH"}`)
	if w.Code != http.StatusBadRequest || decode(t, w)["error"] != "Missing intent" {
		t.Fatalf("expected missing intent, got %d %s", w.Code, w.Body.String())
	}
}

func TestSwapQuoteRoute(t *testing.T) {
	f := newFixture(t, okUpstream)
	body := `{"chainId":8453,"sellToken":"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913","buyToken":"0x4200000000000000000000000000000000000006","sellAmount":"100000000","taker":"0x00000000000000000000000000000000000000bb"}`

	w := f.do(t, http.MethodPost, "/api/swap/quote", body)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d %s", w.Code, w.Body.String())
	}
	quotes, _ := decode(t, w)["quotes"].([]any)
	if len(quotes) != 2 {
		t.Fatalf("expected quotes from both drivers, got %v", quotes)
	}
	if f.drivers[0].reqs[0].Account != nil {
		t.Fatal("quote-only request must not bind an account")
	}

	w = f.do(t, http.MethodPost, "/api/swap/quote", strings.Replace(body, `"chainId"`, `"provider":"gasless-dex-api","chainId"`, 1))
	quotes, _ = decode(t, w)["quotes"].([]any)
	if len(quotes) != 1 || len(f.drivers[1].reqs) != 2 || len(f.drivers[0].reqs) != 1 {
		t.Fatalf("expected only the gasless driver, got %v", quotes)
	}

	w = f.do(t, http.MethodPost, "/api/swap/quote", strings.Replace(body, `"chainId"`, `"provider":"nope","chainId"`, 1))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown provider rejection, got %d", w.Code)
	}

	w = f.do(t, http.MethodPost, "/api/swap/quote", strings.Replace(body, `"chainId"`, `"execute":true,"chainId"`, 1))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected execution without signer to be rejected, got %d", w.Code)
	}
}

func TestSwapQuoteExecuteBindsAccountToOneDriver(t *testing.T) {
	f := newFixture(t, okUpstream)
	account, err := signer.FromHex("59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1")
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	f.server.account = account
	body := `{"execute":true,"chainId":8453,"sellToken":"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913","buyToken":"0x4200000000000000000000000000000000000006","sellAmount":"100000000"}`

	w := f.do(t, http.MethodPost, "/api/swap/quote", body)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d %s", w.Code, w.Body.String())
	}
	executing := 0
	for _, d := range f.drivers {
		for _, req := range d.reqs {
			if req.Account != nil {
				executing++
			}
		}
	}
	if executing != 1 {
		t.Fatalf("expected the account on exactly one driver call, got %d", executing)
	}
	if got := decode(t, w)["executed_by"]; got != "swap-dex-api" {
		t.Fatalf("unexpected executed_by %v", got)
	}
}

func TestBalanceCheckRoute(t *testing.T) {
	f := newFixture(t, okUpstream)

	w := f.do(t, http.MethodPost, "/api/balance/check", `{"address":"0x00000000000000000000000000000000000000bb","chainId":84532}`)
	if w.Code != http.StatusOK {
		t.Fatalf("unexpected status %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["balance"] != "1.5" || body["chainName"] != "Base Sepolia" || body["token"] != "ETH" {
		t.Fatalf("unexpected native balance body %v", body)
	}

	w = f.do(t, http.MethodPost, "/api/balance/check", `{"address":"0x00000000000000000000000000000000000000bb","chainId":84532,"token":"USDC","amount":"300"}`)
	body = decode(t, w)
	check, _ := body["check"].(map[string]any)
	if body["balance"] != "250" || check["has_sufficient_balance"] != false || check["required_amount"] != "300000000" {
		t.Fatalf("unexpected token balance body %v", body)
	}

	w = f.do(t, http.MethodPost, "/api/balance/check", `{"address":"0x00000000000000000000000000000000000000bb"}`)
	if w.Code != http.StatusBadRequest || decode(t, w)["error"] != "Missing address or chainId" {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/balance/check", `{"address":"0x00000000000000000000000000000000000000bb","chainId":56}`)
	if w.Code != http.StatusBadRequest || decode(t, w)["error"] != "Unsupported chainId" {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}
