package guard

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
)

// DefaultDailyLimitWei is 1 ETH.
var DefaultDailyLimitWei = big.NewInt(1_000_000_000_000_000_000)

// SpendingLimiter caps the native value each account may move per UTC day.
type SpendingLimiter struct {
	mu    sync.Mutex
	limit *big.Int
	day   string
	spent map[common.Address]*big.Int
	now   func() time.Time
}

func NewSpendingLimiter(limit *big.Int) *SpendingLimiter {
	if limit == nil || limit.Sign() <= 0 {
		limit = DefaultDailyLimitWei
	}
	return &SpendingLimiter{
		limit: new(big.Int).Set(limit),
		spent: map[common.Address]*big.Int{},
		now:   time.Now,
	}
}

type LimitStatus struct {
	Allowed   bool   `json:"allowed"`
	LimitWei  string `json:"limit_wei"`
	SpentWei  string `json:"spent_wei"`
	Remaining string `json:"remaining_wei"`
}

// Check reports whether amount fits in today's remaining budget without reserving it.
func (l *SpendingLimiter) Check(account common.Address, amount *big.Int) LimitStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	return l.status(account, amountOrZero(amount))
}

// Reserve records amount against today's budget, or returns CodeBlocked when it would exceed it.
func (l *SpendingLimiter) Reserve(account common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	amount = amountOrZero(amount)
	st := l.status(account, amount)
	if !st.Allowed {
		return clierr.New(clierr.CodeBlocked, fmt.Sprintf("daily spending limit exceeded: %s wei requested, %s wei remaining", amount, st.Remaining))
	}
	l.spentFor(account).Add(l.spentFor(account), amount)
	return nil
}

// Release returns a reservation, for runs that failed before moving funds.
func (l *SpendingLimiter) Release(account common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollover()
	spent := l.spentFor(account)
	spent.Sub(spent, amountOrZero(amount))
	if spent.Sign() < 0 {
		spent.SetInt64(0)
	}
}

func (l *SpendingLimiter) status(account common.Address, amount *big.Int) LimitStatus {
	spent := l.spentFor(account)
	remaining := new(big.Int).Sub(l.limit, spent)
	if remaining.Sign() < 0 {
		remaining.SetInt64(0)
	}
	return LimitStatus{
		Allowed:   new(big.Int).Add(spent, amount).Cmp(l.limit) <= 0,
		LimitWei:  l.limit.String(),
		SpentWei:  spent.String(),
		Remaining: remaining.String(),
	}
}

func (l *SpendingLimiter) spentFor(account common.Address) *big.Int {
	v, ok := l.spent[account]
	if !ok {
		v = new(big.Int)
		l.spent[account] = v
	}
	return v
}

func (l *SpendingLimiter) rollover() {
	today := l.now().UTC().Format(time.DateOnly)
	if today == l.day {
		return
	}
	l.day = today
	l.spent = map[common.Address]*big.Int{}
}
