package execution

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/httpx"
)

// Terminal status vocabularies.
var (
	RelaySuccessStatuses   = []string{"completed"}
	RelayFailureStatuses   = []string{"failed", "refund"}
	GaslessSuccessStatuses = []string{"confirmed", "succeeded"}
	GaslessFailureStatuses = []string{"failed"}
)

type PollOptions struct {
	// Method defaults to GET.
	Method      string
	Interval    time.Duration
	MaxAttempts uint
	Success     []string
	Failure     []string
	Headers     map[string]string
	Logger      *zap.Logger
}

// StatusFailedError reports a terminal failure status returned by a status endpoint.
type StatusFailedError struct {
	Status string
	Body   map[string]any
}

func (e *StatusFailedError) Error() string {
	return fmt.Sprintf("step status: %s", e.Status)
}

var errStatusPending = errors.New("status not terminal")

// PollStatus requests url (GET unless opts.Method says otherwise) until a
// success status (returns the body), a failure status (CodeOnChain, no further
// attempts), or MaxAttempts attempts have been made (CodeTimeout). Transport
// errors and unknown statuses are retried.
func PollStatus(ctx context.Context, client *httpx.Client, url string, opts PollOptions) (map[string]any, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 20
	}
	if len(opts.Success) == 0 {
		opts.Success = RelaySuccessStatuses
	}
	if len(opts.Failure) == 0 {
		opts.Failure = RelayFailureStatuses
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		body    map[string]any
		attempt uint
	)
	err := retry.Do(func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, opts.Method, url, nil)
		if err != nil {
			return retry.Unrecoverable(clierr.Wrap(clierr.CodeInternal, "build status request", err))
		}
		for k, v := range opts.Headers {
			req.Header.Set(k, v)
		}
		var out map[string]any
		if _, err := client.DoJSON(ctx, req, &out); err != nil {
			logger.Debug("status poll error", zap.String("url", url), zap.Uint("attempt", attempt), zap.Error(err))
			return errStatusPending
		}
		status, _ := out["status"].(string)
		status = strings.ToLower(strings.TrimSpace(status))
		logger.Debug("status poll", zap.String("url", url), zap.Uint("attempt", attempt), zap.String("status", status))
		switch {
		case status == "":
			return errStatusPending
		case containsStatus(opts.Success, status):
			body = out
			return nil
		case containsStatus(opts.Failure, status):
			return retry.Unrecoverable(&StatusFailedError{Status: status, Body: out})
		default:
			return errStatusPending
		}
	},
		retry.Context(ctx),
		retry.Attempts(opts.MaxAttempts),
		retry.Delay(opts.Interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return body, nil
	}
	var failed *StatusFailedError
	if errors.As(err, &failed) {
		return failed.Body, clierr.Wrap(clierr.CodeOnChain, "status check reported failure", failed)
	}
	if errors.Is(err, errStatusPending) {
		return nil, clierr.New(clierr.CodeTimeout, fmt.Sprintf("polling for execution status timed out after %d attempts", opts.MaxAttempts))
	}
	if ctx.Err() != nil {
		return nil, clierr.Wrap(clierr.CodeTimeout, "polling for execution status cancelled", ctx.Err())
	}
	return nil, err
}

func containsStatus(set []string, status string) bool {
	for _, s := range set {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}
