package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/guard"
	"github.com/ggonzalez94/wallet-agent/internal/httpx"
	"github.com/ggonzalez94/wallet-agent/internal/preview"
	"github.com/ggonzalez94/wallet-agent/internal/providers/relay"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusBlocked Status = "blocked"
	StatusError   Status = "error"
)

const (
	BlockedInsufficientBalance = "insufficient_balance"
	BlockedSpendingLimit       = "spending_limit"

	CodeRelayUnavailable = "RELAY_API_UNAVAILABLE"
)

var requiredQuoteFields = []string{"steps", "fees", "details"}

// Response is the outcome of one orchestrated request. HTTPStatus is the
// status the HTTP surface replies with.
type Response struct {
	Status          Status                      `json:"status"`
	HTTPStatus      int                         `json:"-"`
	RequestID       string                      `json:"requestId,omitempty"`
	TransactionHash string                      `json:"transactionHash,omitempty"`
	ExecutionID     string                      `json:"executionId,omitempty"`
	Message         string                      `json:"message,omitempty"`
	Reason          string                      `json:"reason,omitempty"`
	Code            string                      `json:"code,omitempty"`
	Error           string                      `json:"error,omitempty"`
	Details         any                         `json:"details,omitempty"`
	Preview         *preview.TransactionPreview `json:"preview,omitempty"`
	Balance         *guard.BalanceResult        `json:"balance,omitempty"`
	Limit           *guard.LimitStatus          `json:"limit,omitempty"`
}

// fetchQuote returns the raw quote, or a ready error response when the quote
// could not be obtained or lacks the fields execution depends on.
func (o *Orchestrator) fetchQuote(ctx context.Context, req relay.QuoteRequest) (json.RawMessage, Response, bool) {
	raw, err := o.relay.Quote(ctx, req)
	if err != nil {
		o.logger.Warn("quote request failed", zap.Error(err))
		return nil, quoteErrorResponse(err), false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, Response{
			Status:     StatusError,
			HTTPStatus: http.StatusInternalServerError,
			Error:      "Quote response is null or undefined",
		}, false
	}
	var missing []string
	for _, name := range requiredQuoteFields {
		if isEmptyJSON(fields[name]) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, Response{
			Status:     StatusError,
			HTTPStatus: http.StatusInternalServerError,
			Error:      "Quote response missing required fields: " + strings.Join(missing, ", "),
		}, false
	}
	return raw, Response{}, true
}

func quoteErrorResponse(err error) Response {
	if httpx.IsNetworkError(err) {
		return Response{
			Status:     StatusError,
			HTTPStatus: http.StatusServiceUnavailable,
			Code:       CodeRelayUnavailable,
			Error:      "Relay API is not available. Please ensure the relay service is running.",
			Details:    "The quote service is currently unavailable. This could be because the relay API is not deployed or not running.",
		}
	}
	if statusErr, ok := httpx.AsStatusError(err); ok {
		return Response{
			Status:     StatusError,
			HTTPStatus: statusErr.StatusCode,
			Error:      "Quote API error: " + statusErr.Error(),
			Details:    statusErr.Details(),
		}
	}
	return Response{
		Status:     StatusError,
		HTTPStatus: http.StatusInternalServerError,
		Error:      fmt.Sprintf("Quote request failed: %v", err),
	}
}

// errorResponse maps a typed error onto an HTTP status.
func errorResponse(err error) Response {
	resp := Response{
		Status:     StatusError,
		HTTPStatus: HTTPStatusFor(err),
		Error:      err.Error(),
	}
	if cerr, ok := clierr.As(err); ok {
		resp.Code = clierr.TypeName(cerr.Code)
	}
	if statusErr, ok := httpx.AsStatusError(err); ok {
		resp.Details = statusErr.Details()
	}
	return resp
}

func HTTPStatusFor(err error) int {
	switch clierr.CodeOf(err) {
	case clierr.CodeUsage, clierr.CodeChainMismatch:
		return http.StatusBadRequest
	case clierr.CodeAuth:
		return http.StatusUnauthorized
	case clierr.CodeRateLimited:
		return http.StatusTooManyRequests
	case clierr.CodeUnavailable:
		return http.StatusServiceUnavailable
	case clierr.CodeUnsupported:
		return http.StatusBadRequest
	case clierr.CodeBlocked, clierr.CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case clierr.CodeMalformedQuote:
		return http.StatusBadGateway
	case clierr.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func isEmptyJSON(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false", `""`, "0":
		return true
	}
	return false
}
