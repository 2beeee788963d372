package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ggonzalez94/wallet-agent/internal/chain"
	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/execution/signer"
	"github.com/ggonzalez94/wallet-agent/internal/httpx"
)

const testPrivateKey = "59c6995e998f97a5a0044976f0945388cf9b7e5e5f4f9d2d9d8f1f5b7f6d11d1"

type recorder struct {
	mu     sync.Mutex
	events []string
	bodies []map[string]any
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeChain struct {
	rec      *recorder
	sends    int
	revertOn map[int]bool
}

func (f *fakeChain) SendTransaction(_ context.Context, binding chain.Binding, req chain.TxRequest) (common.Hash, error) {
	f.sends++
	f.rec.add(fmt.Sprintf("send:%d:%s", binding.ChainID, strings.ToLower(req.To.Hex())))
	return common.BigToHash(big.NewInt(int64(f.sends))), nil
}

func (f *fakeChain) WaitForReceipt(_ context.Context, _ int64, hash common.Hash, _ chain.ReceiptOptions) (*types.Receipt, error) {
	f.rec.add("receipt:" + hash.Big().String())
	status := types.ReceiptStatusSuccessful
	if f.revertOn[int(hash.Big().Int64())] {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{Status: status, TxHash: hash}, nil
}

func (f *fakeChain) SignTypedData(context.Context, chain.Binding, apitypes.TypedData) ([]byte, error) {
	f.rec.add("sign_typed")
	return make([]byte, 65), nil
}

func (f *fakeChain) SignMessage(_ context.Context, _ chain.Binding, msg []byte) ([]byte, error) {
	f.rec.add("sign_message:" + string(msg))
	sig := make([]byte, 65)
	sig[64] = 27
	return sig, nil
}

func relayServer(t *testing.T, rec *recorder) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasPrefix(r.URL.Path, "/intents/status"):
			rec.add("check:" + r.URL.Query().Get("requestId"))
			_, _ = w.Write([]byte(`{"status":"completed"}`))
		case r.URL.Path == "/failing":
			rec.add("check:failing")
			_, _ = w.Write([]byte(`{"status":"refund"}`))
		default:
			raw, _ := io.ReadAll(r.Body)
			var body map[string]any
			_ = json.Unmarshal(raw, &body)
			rec.mu.Lock()
			rec.bodies = append(rec.bodies, body)
			rec.mu.Unlock()
			rec.add(r.Method + ":" + r.URL.Path)
			_, _ = w.Write([]byte(`{"message":"ok"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testBinding(t *testing.T, chainID int64) chain.Binding {
	t.Helper()
	s, err := signer.FromHex(testPrivateKey)
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	return chain.Binding{ChainID: chainID, Account: s}
}

func testOptions(base string) ExecuteOptions {
	opts := DefaultExecuteOptions()
	opts.RelayAPIBase = base
	opts.PollInterval = time.Millisecond
	opts.PollMaxAttempts = 3
	return opts
}

func mustQuote(t *testing.T, raw string) Quote {
	t.Helper()
	q, err := ParseQuote([]byte(raw))
	if err != nil {
		t.Fatalf("ParseQuote: %v", err)
	}
	return q
}

const bridgeQuote = `{"requestId": "0xreq", "steps": [
	{"kind": "transaction", "requestId": "0xreq", "to": "0x00000000000000000000000000000000000000aa", "data": "0x01", "chainId": 1,
	 "check": {"endpoint": "/intents/status/v2?requestId=tx", "method": "GET"}},
	{"kind": "signature", "requestId": "0xreq", "signData": "authorize", "postEndpoint": "/authorize", "postData": {"orderId": "o-1"},
	 "check": {"endpoint": "/intents/status/v2?requestId=sig", "method": "GET"}}
]}`

func TestExecuteQuoteRunsStepsInOrder(t *testing.T) {
	rec := &recorder{}
	srv := relayServer(t, rec)
	fc := &fakeChain{rec: rec}
	exec := NewExecutor(fc, httpx.New(time.Second, 0), nil, nil)

	res, err := exec.ExecuteQuote(context.Background(), mustQuote(t, bridgeQuote), testBinding(t, 1), testOptions(srv.URL))
	if err != nil {
		t.Fatalf("ExecuteQuote failed: %v", err)
	}
	want := []string{
		"send:1:0x00000000000000000000000000000000000000aa",
		"receipt:1",
		"check:tx",
		"sign_message:authorize",
		"POST:/authorize",
		"check:sig",
	}
	got := rec.snapshot()
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected call order:\n got  %v\n want %v", got, want)
	}
	if res.RequestID != "0xreq" || res.TransactionHash != common.BigToHash(big.NewInt(1)).Hex() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ExecutionID == "" {
		t.Fatal("expected execution id")
	}
	body := rec.bodies[0]
	if body["orderId"] != "o-1" || !strings.HasPrefix(fmt.Sprint(body["signature"]), "0x") {
		t.Fatalf("expected postData merged with signature, got %+v", body)
	}
}

func TestExecuteQuoteChainMismatchSendsNothing(t *testing.T) {
	rec := &recorder{}
	srv := relayServer(t, rec)
	fc := &fakeChain{rec: rec}
	exec := NewExecutor(fc, httpx.New(time.Second, 0), nil, nil)

	_, err := exec.ExecuteQuote(context.Background(), mustQuote(t, bridgeQuote), testBinding(t, 10), testOptions(srv.URL))
	if clierr.CodeOf(err) != clierr.CodeChainMismatch {
		t.Fatalf("expected chain mismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "step 0 (transaction)") {
		t.Fatalf("expected error to name the step, got %v", err)
	}
	if events := rec.snapshot(); len(events) != 0 {
		t.Fatalf("expected no side effects, got %v", events)
	}
}

func TestExecuteQuoteRevertStopsSequence(t *testing.T) {
	rec := &recorder{}
	srv := relayServer(t, rec)
	fc := &fakeChain{rec: rec, revertOn: map[int]bool{1: true}}
	exec := NewExecutor(fc, httpx.New(time.Second, 0), nil, nil)

	quote := mustQuote(t, `{"steps": [
		{"kind": "transaction", "requestId": "r", "to": "0x00000000000000000000000000000000000000aa", "data": "0x01", "chainId": 1},
		{"kind": "transaction", "requestId": "r", "to": "0x00000000000000000000000000000000000000bb", "data": "0x02", "chainId": 1}
	]}`)
	res, err := exec.ExecuteQuote(context.Background(), quote, testBinding(t, 1), testOptions(srv.URL))
	if clierr.CodeOf(err) != clierr.CodeOnChain {
		t.Fatalf("expected on-chain failure, got %v", err)
	}
	hash := common.BigToHash(big.NewInt(1)).Hex()
	if !strings.Contains(err.Error(), hash) {
		t.Fatalf("expected error to name %s, got %v", hash, err)
	}
	if fc.sends != 1 {
		t.Fatalf("expected second step to be skipped, got %d sends", fc.sends)
	}
	if res.TransactionHash != hash {
		t.Fatalf("expected partial result to carry hash, got %+v", res)
	}
}

func TestExecuteQuoteSignaturePut(t *testing.T) {
	rec := &recorder{}
	srv := relayServer(t, rec)
	fc := &fakeChain{rec: rec}
	exec := NewExecutor(fc, httpx.New(time.Second, 0), nil, nil)

	quote := mustQuote(t, `{"requestId": "r", "steps": [
		{"kind": "signature", "requestId": "r", "signData": {"types": {"Permit": [{"name": "nonce", "type": "uint256"}]}, "primaryType": "Permit", "domain": {"name": "X"}, "message": {"nonce": 1}},
		 "postEndpoint": "`+srv.URL+`/permits", "postMethod": "put"}
	]}`)
	if _, err := exec.ExecuteQuote(context.Background(), quote, testBinding(t, 1), testOptions(srv.URL)); err != nil {
		t.Fatalf("ExecuteQuote failed: %v", err)
	}
	got := rec.snapshot()
	if len(got) != 2 || got[0] != "sign_typed" || got[1] != "PUT:/permits" {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestExecuteQuoteFailedCheckAborts(t *testing.T) {
	rec := &recorder{}
	srv := relayServer(t, rec)
	fc := &fakeChain{rec: rec}
	exec := NewExecutor(fc, httpx.New(time.Second, 0), nil, nil)

	quote := mustQuote(t, `{"steps": [
		{"kind": "transaction", "requestId": "r", "to": "0x00000000000000000000000000000000000000aa", "data": "0x01", "chainId": 1, "check": {"endpoint": "/failing"}},
		{"kind": "signature", "requestId": "r", "signData": "never", "postEndpoint": "/authorize"}
	]}`)
	_, err := exec.ExecuteQuote(context.Background(), quote, testBinding(t, 1), testOptions(srv.URL))
	if clierr.CodeOf(err) != clierr.CodeOnChain {
		t.Fatalf("expected refund status to fail the run, got %v", err)
	}
	for _, e := range rec.snapshot() {
		if strings.HasPrefix(e, "sign_message") {
			t.Fatal("signature step must not run after a failed check")
		}
	}
}

func TestExecuteQuoteSkipsChecksWhenPollingDisabled(t *testing.T) {
	rec := &recorder{}
	srv := relayServer(t, rec)
	fc := &fakeChain{rec: rec}
	exec := NewExecutor(fc, httpx.New(time.Second, 0), nil, nil)

	opts := testOptions(srv.URL)
	opts.PollStatus = false
	if _, err := exec.ExecuteQuote(context.Background(), mustQuote(t, bridgeQuote), testBinding(t, 1), opts); err != nil {
		t.Fatalf("ExecuteQuote failed: %v", err)
	}
	for _, e := range rec.snapshot() {
		if strings.HasPrefix(e, "check:") {
			t.Fatalf("unexpected status check %s", e)
		}
	}
}

func TestExecuteQuotePersistsExecution(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "executions.db"), filepath.Join(dir, "executions.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	rec := &recorder{}
	srv := relayServer(t, rec)
	exec := NewExecutor(&fakeChain{rec: rec}, httpx.New(time.Second, 0), store, nil)

	res, err := exec.ExecuteQuote(context.Background(), mustQuote(t, bridgeQuote), testBinding(t, 1), testOptions(srv.URL))
	if err != nil {
		t.Fatalf("ExecuteQuote failed: %v", err)
	}
	saved, err := store.Get(context.Background(), res.ExecutionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if saved.Status != ExecutionStatusCompleted || len(saved.Steps) != 2 {
		t.Fatalf("unexpected execution record: %+v", saved)
	}
	if saved.Steps[0].Status != StepStatusChecked || saved.Steps[0].TxHash == "" {
		t.Fatalf("unexpected transaction record: %+v", saved.Steps[0])
	}
	if saved.Steps[1].Status != StepStatusChecked || !strings.HasSuffix(saved.Steps[1].PostURL, "/authorize") {
		t.Fatalf("unexpected signature record: %+v", saved.Steps[1])
	}

	byRequest, err := store.FindByRequestID(context.Background(), "0xreq")
	if err != nil || byRequest.ExecutionID != res.ExecutionID {
		t.Fatalf("FindByRequestID: %+v, %v", byRequest, err)
	}
}

func TestExecuteQuoteDeliversSignatureOnce(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Method + ":" + r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	fc := &fakeChain{rec: rec}
	exec := NewExecutor(fc, httpx.New(time.Second, 3), nil, nil)

	quote := mustQuote(t, `{"steps": [{"kind": "signature", "requestId": "r", "signData": "authorize", "postEndpoint": "/authorize"}]}`)
	if _, err := exec.ExecuteQuote(context.Background(), quote, testBinding(t, 1), testOptions(srv.URL)); err == nil {
		t.Fatal("expected signature delivery to fail")
	}
	posts := 0
	for _, e := range rec.snapshot() {
		if e == "POST:/authorize" {
			posts++
		}
	}
	if posts != 1 {
		t.Fatalf("expected exactly one signature POST, got %d (%v)", posts, rec.snapshot())
	}
}

func TestExecuteQuoteHonorsCheckMethod(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.Method + ":" + r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"completed"}`))
	}))
	t.Cleanup(srv.Close)
	fc := &fakeChain{rec: rec}
	exec := NewExecutor(fc, httpx.New(time.Second, 0), nil, nil)

	quote := mustQuote(t, `{"steps": [
		{"kind": "transaction", "requestId": "r", "to": "0x00000000000000000000000000000000000000aa", "data": "0x01", "chainId": 1,
		 "check": {"endpoint": "/intents/status", "method": "post"}}
	]}`)
	if _, err := exec.ExecuteQuote(context.Background(), quote, testBinding(t, 1), testOptions(srv.URL)); err != nil {
		t.Fatalf("ExecuteQuote failed: %v", err)
	}
	got := rec.snapshot()
	if got[len(got)-1] != "POST:/intents/status" {
		t.Fatalf("expected status check sent as POST, got %v", got)
	}
}
