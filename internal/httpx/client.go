package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	clierr "github.com/ggonzalez94/wallet-agent/internal/errors"
	"github.com/ggonzalez94/wallet-agent/internal/version"
)

type Client struct {
	httpClient *http.Client
	retries    int
	userAgent  string
}

// StatusError preserves a non-2xx upstream response for diagnostics.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if msg := upstreamMessage(e.Body); msg != "" {
		return fmt.Sprintf("status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}

// Details decodes the upstream body as JSON, falling back to the raw text.
func (e *StatusError) Details() any {
	var v any
	if err := json.Unmarshal(e.Body, &v); err == nil {
		return v
	}
	return strings.TrimSpace(string(e.Body))
}

// NetworkError marks failures where the upstream could not be reached at all.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return e.Err.Error() }

func (e *NetworkError) Unwrap() error { return e.Err }

func New(timeout time.Duration, retries int) *Client {
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retries:    retries,
		userAgent:  "wagent/" + version.CLIVersion,
	}
}

// WithoutRetries returns a client sharing the transport that makes exactly one
// attempt. Use it for writes the upstream may have applied before failing.
func (c *Client) WithoutRetries() *Client {
	clone := *c
	clone.retries = 0
	return &clone
}

// DoJSON sends req and decodes a 2xx JSON body into out. Network failures, 429
// and 5xx responses are retried with jittered exponential backoff; every other
// status fails immediately with the upstream body attached.
func (c *Client) DoJSON(ctx context.Context, req *http.Request, out any) (http.Header, error) {
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var header http.Header
	var buf []byte
	err := retry.Do(func() error {
		attemptReq, err := cloneRequest(ctx, req)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		resp, err := c.httpClient.Do(attemptReq)
		if err != nil {
			return mapNetError(err)
		}
		header = resp.Header
		buf, err = io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return retry.Unrecoverable(clierr.Wrap(clierr.CodeUnavailable, "read upstream response", err))
		}
		return classifyStatus(resp.StatusCode, buf)
	},
		retry.Context(ctx),
		retry.Attempts(uint(c.retries)+1),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration { return backoff(int(n) + 1) }),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, clierr.Wrap(clierr.CodeUnavailable, "request cancelled", ctxErr)
		}
		return header, err
	}

	if out == nil {
		return header, nil
	}
	if len(bytes.TrimSpace(buf)) == 0 {
		return header, clierr.New(clierr.CodeUnavailable, "upstream returned empty response")
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return header, clierr.Wrap(clierr.CodeUnavailable, "decode upstream JSON", err)
	}
	return header, nil
}

// classifyStatus returns nil for 2xx, a retryable error for 429 and 5xx and an
// unrecoverable one for everything else.
func classifyStatus(code int, body []byte) error {
	statusErr := &StatusError{StatusCode: code, Body: body}
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return clierr.Wrap(clierr.CodeRateLimited, "upstream rate limited request", statusErr)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return retry.Unrecoverable(clierr.Wrap(clierr.CodeAuth, "upstream authentication failed", statusErr))
	case code >= http.StatusInternalServerError:
		return clierr.Wrap(clierr.CodeUnavailable, "upstream unavailable", statusErr)
	default:
		return retry.Unrecoverable(clierr.Wrap(clierr.CodeUnsupported, "upstream rejected request", statusErr))
	}
}

func cloneRequest(ctx context.Context, req *http.Request) (*http.Request, error) {
	clone := req.Clone(ctx)
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "clone request body", err)
		}
		clone.Body = body
	}
	return clone, nil
}

// DoBodyJSON sends body (JSON-encoded when non-nil) and decodes the response into out.
func (c *Client) DoBodyJSON(ctx context.Context, method, url string, body any, headers map[string]string, out any) (http.Header, error) {
	var payload []byte
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, clierr.Wrap(clierr.CodeInternal, "encode request body", err)
		}
		payload = buf
	}
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "build request", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(payload)), nil
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.DoJSON(ctx, req, out)
}

// AsStatusError extracts the upstream response carried by err, if any.
func AsStatusError(err error) (*StatusError, bool) {
	var target *StatusError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func IsNetworkError(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

func mapNetError(err error) error {
	wrapped := &NetworkError{Err: err}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeUnavailable, "upstream timeout", wrapped)
	}
	return clierr.Wrap(clierr.CodeUnavailable, "upstream request failed", wrapped)
}

func upstreamMessage(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		text := strings.TrimSpace(string(body))
		if len(text) > 200 {
			text = text[:200]
		}
		return text
	}
	for _, key := range []string{"message", "error", "reason"} {
		switch v := obj[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case map[string]any:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return ""
}

// backoff doubles from 150ms per attempt, capped at 2s, plus up to 100ms of jitter.
func backoff(attempt int) time.Duration {
	d := 150 * time.Millisecond << uint(attempt-1)
	if d > 2*time.Second || d <= 0 {
		d = 2 * time.Second
	}
	return d + time.Duration(rand.Int63n(int64(100*time.Millisecond)))
}
