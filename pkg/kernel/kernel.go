package kernel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"routecodex-hq/routecodex/pkg/config"
)

// maxErrorBody bounds how much of an upstream error body is carried
// inside a normalized error.
const maxErrorBody = 4096

// Exchange describes one upstream HTTP call. The endpoint, body, and
// headers are fully resolved by the protocol adapter and family profile
// before the exchange reaches the kernel.
type Exchange struct {
	// Method is the HTTP method.
	Method string

	// URL is the fully resolved upstream URL.
	URL string

	// Headers are the outbound headers. The kernel adds the credential
	// and a default Content-Type, nothing else.
	Headers map[string]string

	// Body is the serialized request body.
	Body []byte

	// Stream marks a streaming exchange; the response body is handed
	// back open for SSE consumption.
	Stream bool

	// AuthHeader, when set, names the header the credential must land
	// in. A bearer Authorization value applied by the credential is moved
	// there with its "Bearer " prefix stripped. Empty keeps Authorization.
	AuthHeader string

	// RequestID correlates the exchange with the inbound request.
	RequestID string
}

// Kernel executes upstream HTTP exchanges for one provider entry. It owns
// the connection pool, the retry policy, credential application, error
// normalization, and snapshot emission. It holds no brand knowledge.
type Kernel struct {
	providerKey string
	client      *http.Client
	cred        Credential
	retry       config.RetryConfig
	timeout     time.Duration
	sem         *semaphore.Weighted
	sink        SnapshotSink
}

// New creates a kernel for one provider entry. The snapshot sink may be
// nil to disable audit capture.
func New(providerKey string, cfg config.ProviderConfig, sink SnapshotSink) (*Kernel, error) {
	cred, err := NewCredential(providerKey, cfg.Auth)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConnsPerHost * 2,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	retry := cfg.Retry
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}

	k := &Kernel{
		providerKey: providerKey,
		client:      &http.Client{Transport: transport},
		cred:        cred,
		retry:       retry,
		timeout:     cfg.Timeout,
		sink:        sink,
	}

	if cfg.MaxConcurrentPerHost > 0 {
		k.sem = semaphore.NewWeighted(int64(cfg.MaxConcurrentPerHost))
	}

	return k, nil
}

// ProviderKey returns the provider entry this kernel serves.
func (k *Kernel) ProviderKey() string {
	return k.providerKey
}

// ApplyCredential applies the kernel's credential to a request. Health
// probes use it to verify credential material is still assemblable.
func (k *Kernel) ApplyCredential(req *http.Request) error {
	return k.cred.Apply(req)
}

// Do executes the exchange with the configured retry policy. On success
// the response is returned with its body open; the caller owns closing
// it. Failures are always a *Error or *CredentialError.
//
// Retries apply only to connection errors and 5xx responses. The overall
// deadline is governed by ctx and is never extended by retries; each
// attempt additionally respects the per-attempt timeout.
func (k *Kernel) Do(ctx context.Context, ex *Exchange) (*http.Response, error) {
	if k.sem != nil {
		if err := k.sem.Acquire(ctx, 1); err != nil {
			return nil, k.transportError(ex, err)
		}
		defer k.sem.Release(1)
	}

	k.snapshot(ex, "request", 0, ex.Body)

	var lastErr *Error
	for attempt := 1; attempt <= k.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := k.backoff(ctx, attempt); err != nil {
				return nil, k.transportError(ex, err)
			}
			slog.Debug("retrying upstream exchange",
				"provider", k.providerKey,
				"request_id", ex.RequestID,
				"attempt", attempt,
				"policy", k.retry.Policy,
			)
		}

		resp, err := k.attempt(ctx, ex)
		if err == nil {
			return resp, nil
		}

		var ke *Error
		if !errors.As(err, &ke) {
			return nil, err
		}
		if !ke.Retryable() {
			return nil, ke
		}
		lastErr = ke
	}

	slog.Warn("upstream exchange exhausted retries",
		"provider", k.providerKey,
		"request_id", ex.RequestID,
		"attempts", k.retry.MaxAttempts,
		"error", lastErr,
	)
	return nil, lastErr
}

// DoBytes executes the exchange and reads the full response body.
func (k *Kernel) DoBytes(ctx context.Context, ex *Exchange) ([]byte, int, http.Header, error) {
	resp, err := k.Do(ctx, ex)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, nil, k.transportError(ex, err)
	}

	k.snapshot(ex, "response", resp.StatusCode, body)
	return body, resp.StatusCode, resp.Header, nil
}

// attempt performs exactly one HTTP call.
func (k *Kernel) attempt(ctx context.Context, ex *Exchange) (*http.Response, error) {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if k.timeout > 0 && !ex.Stream {
		attemptCtx, cancel = context.WithTimeout(ctx, k.timeout)
	}
	release := func() {
		if cancel != nil {
			cancel()
		}
	}

	var bodyReader io.Reader
	if ex.Body != nil {
		bodyReader = bytes.NewReader(ex.Body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, ex.Method, ex.URL, bodyReader)
	if err != nil {
		release()
		return nil, k.transportError(ex, err)
	}

	for key, value := range ex.Headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && ex.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := k.cred.Apply(req); err != nil {
		release()
		return nil, err
	}
	if ex.AuthHeader != "" && !strings.EqualFold(ex.AuthHeader, "Authorization") {
		if v := req.Header.Get("Authorization"); v != "" && req.Header.Get(ex.AuthHeader) == "" {
			req.Header.Del("Authorization")
			req.Header.Set(ex.AuthHeader, strings.TrimPrefix(v, "Bearer "))
		}
	}

	resp, err := k.client.Do(req)
	if err != nil {
		release()
		if ctx.Err() != nil {
			return nil, &Error{
				Code:        CodeCancelled,
				ProviderKey: k.providerKey,
				RequestID:   ex.RequestID,
				Cause:       ctx.Err(),
			}
		}
		if attemptCtx.Err() != nil {
			return nil, &Error{
				Code:        CodeTimeout,
				ProviderKey: k.providerKey,
				RequestID:   ex.RequestID,
				Cause:       attemptCtx.Err(),
			}
		}
		return nil, &Error{
			Code:        CodeConnection,
			ProviderKey: k.providerKey,
			RequestID:   ex.RequestID,
			Cause:       err,
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if cancel != nil {
			// Tie the attempt context to body consumption.
			resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
		}
		return resp, nil
	}

	errorBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	release()

	k.snapshot(ex, "response", resp.StatusCode, errorBody)

	return nil, &Error{
		StatusCode:  resp.StatusCode,
		Code:        classifyStatus(resp.StatusCode),
		ProviderKey: k.providerKey,
		RequestID:   ex.RequestID,
		Body:        truncate(errorBody, maxErrorBody),
	}
}

// backoff waits according to the retry policy before the given attempt.
func (k *Kernel) backoff(ctx context.Context, attempt int) error {
	var delay time.Duration
	switch k.retry.Policy {
	case "retry-immediate":
		return nil
	case "retry-delayed":
		delay = k.retry.Delay
	case "retry-exponential":
		delay = k.retry.Delay << (attempt - 2)
	default:
		delay = k.retry.Delay
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// transportError wraps a non-HTTP failure.
func (k *Kernel) transportError(ex *Exchange, err error) *Error {
	code := CodeConnection
	if errors.Is(err, context.Canceled) {
		code = CodeCancelled
	} else if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return &Error{
		Code:        code,
		ProviderKey: k.providerKey,
		RequestID:   ex.RequestID,
		Cause:       err,
	}
}

// snapshot emits an audit snapshot when a sink is configured.
func (k *Kernel) snapshot(ex *Exchange, phase string, status int, body []byte) {
	if k.sink == nil {
		return
	}
	k.sink.Record(Snapshot{
		RequestID:   ex.RequestID,
		ProviderKey: k.providerKey,
		Phase:       phase,
		Method:      ex.Method,
		URL:         ex.URL,
		StatusCode:  status,
		Headers:     redactHeaders(ex.Headers),
		Body:        body,
		Timestamp:   time.Now(),
	})
}

// Close releases the credential source and idle connections.
func (k *Kernel) Close() error {
	k.client.CloseIdleConnections()
	return k.cred.Close()
}

// classifyStatus maps an upstream HTTP status to a kernel error code.
func classifyStatus(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return CodeAuthRejected
	case http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeUpstream
	}
}

// cancelReadCloser cancels the attempt context when the body is closed.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
