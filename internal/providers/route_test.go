package providers

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/ggonzalez94/wallet-agent/internal/model"
)

type stubSigner struct{}

func (stubSigner) Address() common.Address { return common.HexToAddress("0x00000000000000000000000000000000000000aa") }
func (stubSigner) SignTx(*big.Int, *types.Transaction) (*types.Transaction, error) {
	return nil, nil
}
func (stubSigner) SignMessage([]byte) ([]byte, error) { return nil, nil }
func (stubSigner) SignTypedData(apitypes.TypedData) ([]byte, error) { return nil, nil }

type countingDriver struct {
	name        string
	output      string
	recommended bool
	calls       int
	executions  int
}

func (d *countingDriver) Info() model.ProviderInfo { return model.ProviderInfo{Name: d.name} }

func (d *countingDriver) GetSwapQuote(_ context.Context, req SwapQuoteRequest) []SwapQuote {
	d.calls++
	q := SwapQuote{Provider: d.name, Output: d.output, Recommended: d.recommended}
	if req.Account != nil {
		d.executions++
		q.TransactionHash = "0xfeed"
	}
	return []SwapQuote{q}
}

func TestRouteQuoteOnlyNeverBindsAccount(t *testing.T) {
	a := &countingDriver{name: "a", output: "10", recommended: true}
	b := &countingDriver{name: "b", output: "20", recommended: true}
	results := Route(context.Background(), []DEXAggregator{a, b}, SwapQuoteRequest{SellAmount: "1"})
	if len(Flatten(results)) != 2 || a.executions+b.executions != 0 {
		t.Fatalf("unexpected quote-only routing: %+v", results)
	}
}

func TestRouteExecutesOnlyBestRecommendedDriver(t *testing.T) {
	low := &countingDriver{name: "low", output: "10", recommended: true}
	high := &countingDriver{name: "high", output: "30", recommended: true}
	broken := &countingDriver{name: "broken", output: "99", recommended: false}

	results := Route(context.Background(), []DEXAggregator{low, high, broken}, SwapQuoteRequest{SellAmount: "1", Account: stubSigner{}})
	if low.executions != 0 || broken.executions != 0 || high.executions != 1 {
		t.Fatalf("expected exactly one execution on the best driver: low=%d high=%d broken=%d", low.executions, high.executions, broken.executions)
	}
	if !results[1].Executed || results[1].Quotes[0].TransactionHash != "0xfeed" {
		t.Fatalf("executed result not reported: %+v", results[1])
	}
}

func TestRouteSkipsExecutionWithoutRecommendedQuote(t *testing.T) {
	a := &countingDriver{name: "a", output: "0"}
	b := &countingDriver{name: "b", output: "0"}
	Route(context.Background(), []DEXAggregator{a, b}, SwapQuoteRequest{SellAmount: "1", Account: stubSigner{}})
	if a.executions+b.executions != 0 {
		t.Fatal("no driver may execute when nothing is recommended")
	}
}
