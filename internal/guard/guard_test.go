package guard

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"github.com/ggonzalez94/wallet-agent/internal/chain"
	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/id"
)

type fakeReader struct {
	native   *big.Int
	erc20    *big.Int
	err      error
	calldata []byte
}

func (f *fakeReader) ReadContract(_ context.Context, _ int64, _ common.Address, calldata []byte) ([]byte, error) {
	f.calldata = calldata
	if f.err != nil {
		return nil, f.err
	}
	return math.U256Bytes(new(big.Int).Set(f.erc20)), nil
}

func (f *fakeReader) BalanceAt(_ context.Context, _ int64, _ common.Address) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.native, nil
}

var (
	wallet  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	usdc    = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
	permit2 = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
)

func TestCheckBalanceInsufficientUSDC(t *testing.T) {
	required, err := id.ToBaseUnits("100", 6)
	if err != nil {
		t.Fatalf("ToBaseUnits failed: %v", err)
	}
	want, _ := new(big.Int).SetString(required, 10)

	g := New(&fakeReader{erc20: big.NewInt(50_000_000)}, nil)
	res := g.CheckBalance(context.Background(), BalanceRequest{Wallet: wallet, Token: &usdc, RequiredAmount: want, ChainID: 84532})
	if res.HasSufficientBalance {
		t.Fatal("expected insufficient balance")
	}
	if res.CurrentBalance != "50000000" || res.RequiredAmount != "100000000" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Error != "" {
		t.Fatalf("unexpected error text: %q", res.Error)
	}
}

func TestCheckBalanceNativeExactAmountIsSufficient(t *testing.T) {
	g := New(&fakeReader{native: big.NewInt(1000)}, nil)
	res := g.CheckBalance(context.Background(), BalanceRequest{Wallet: wallet, RequiredAmount: big.NewInt(1000), ChainID: 1})
	if !res.HasSufficientBalance || res.CurrentBalance != "1000" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCheckBalanceRPCFailureIsInsufficient(t *testing.T) {
	g := New(&fakeReader{err: errors.New("dial tcp: connection refused")}, nil)
	res := g.CheckBalance(context.Background(), BalanceRequest{Wallet: wallet, Token: &usdc, RequiredAmount: big.NewInt(1), ChainID: 84532})
	if res.HasSufficientBalance {
		t.Fatal("expected RPC failure to be treated as insufficient")
	}
	if res.Error == "" || res.CurrentBalance != "0" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestCheckAllowanceEncodesOwnerAndSpender(t *testing.T) {
	reader := &fakeReader{erc20: big.NewInt(10)}
	g := New(reader, nil)
	res := g.CheckAllowance(context.Background(), AllowanceRequest{Owner: wallet, Token: usdc, Spender: permit2, RequiredAmount: big.NewInt(11), ChainID: 1})
	if res.HasSufficientAllowance || res.CurrentAllowance != "10" {
		t.Fatalf("unexpected result: %+v", res)
	}
	// allowance(address,address)
	if !bytes.Equal(reader.calldata[:4], common.FromHex("0xdd62ed3e")) {
		t.Fatalf("unexpected selector %x", reader.calldata[:4])
	}
	if !bytes.Contains(reader.calldata, permit2.Bytes()) || !bytes.Contains(reader.calldata, wallet.Bytes()) {
		t.Fatal("calldata should encode owner and spender")
	}
}

func TestSpendingLimiterDailyWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	l := NewSpendingLimiter(big.NewInt(100))
	l.now = func() time.Time { return now }

	if err := l.Reserve(wallet, big.NewInt(60)); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if st := l.Check(wallet, big.NewInt(40)); !st.Allowed || st.Remaining != "40" {
		t.Fatalf("expected exactly the remaining budget to be allowed: %+v", st)
	}
	err := l.Reserve(wallet, big.NewInt(41))
	if clierr.CodeOf(err) != clierr.CodeBlocked {
		t.Fatalf("expected blocked error, got %v", err)
	}

	other := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	if st := l.Check(other, big.NewInt(100)); !st.Allowed {
		t.Fatal("limits should be tracked per account")
	}

	now = now.Add(2 * time.Hour)
	if st := l.Check(wallet, big.NewInt(100)); !st.Allowed || st.SpentWei != "0" {
		t.Fatalf("expected reset on the next UTC day: %+v", st)
	}
}

func TestSpendingLimiterRelease(t *testing.T) {
	l := NewSpendingLimiter(nil)
	if l.limit.Cmp(DefaultDailyLimitWei) != 0 {
		t.Fatalf("unexpected default limit %s", l.limit)
	}
	if err := l.Reserve(wallet, DefaultDailyLimitWei); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	l.Release(wallet, DefaultDailyLimitWei)
	if st := l.Check(wallet, big.NewInt(1)); !st.Allowed || st.SpentWei != "0" {
		t.Fatalf("expected released budget: %+v", st)
	}
}

var _ chain.Reader = (*fakeReader)(nil)
