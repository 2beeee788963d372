package providers

import (
	"context"
	"math/big"
	"time"
)

// DriverResult is what one driver returned for a request.
type DriverResult struct {
	Driver  string
	Quotes  []SwapQuote
	Latency time.Duration
	// Executed marks the single driver that received the signing account.
	Executed bool
}

// Route quotes every driver without an account. When req.Account is set it then
// executes on exactly one driver: the one whose recommended quote has the
// largest output. Nothing executes when no quote is recommended.
func Route(ctx context.Context, drivers []DEXAggregator, req SwapQuoteRequest) []DriverResult {
	quoteReq := req
	quoteReq.Account = nil

	results := make([]DriverResult, 0, len(drivers))
	for _, d := range drivers {
		start := time.Now()
		got := d.GetSwapQuote(ctx, quoteReq)
		results = append(results, DriverResult{Driver: d.Info().Name, Quotes: got, Latency: time.Since(start)})
	}
	if req.Account == nil {
		return results
	}

	best := bestRecommended(results)
	if best < 0 {
		return results
	}
	start := time.Now()
	results[best].Quotes = drivers[best].GetSwapQuote(ctx, req)
	results[best].Latency += time.Since(start)
	results[best].Executed = true
	return results
}

// Flatten joins the quotes of every result in driver order.
func Flatten(results []DriverResult) []SwapQuote {
	out := []SwapQuote{}
	for _, r := range results {
		out = append(out, r.Quotes...)
	}
	return out
}

func bestRecommended(results []DriverResult) int {
	best := -1
	var bestOut *big.Int
	for i, r := range results {
		for _, q := range r.Quotes {
			if !q.Recommended {
				continue
			}
			out, ok := new(big.Int).SetString(q.Output, 10)
			if !ok {
				out = new(big.Int)
			}
			if best < 0 || out.Cmp(bestOut) > 0 {
				best, bestOut = i, out
			}
		}
	}
	return best
}
