// Package remote is the terminal's client for the business-logic service:
// one RPC endpoint taking {operation, params} and answering {data} or
// {error: {code, message}}.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JKKN-Institutions/JKKNPOS/internal/dto"
	"github.com/JKKN-Institutions/JKKNPOS/internal/metrics"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 8 << 20
)

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration // per call
	Breaker BreakerConfig
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
	cb         *CircuitBreaker
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		cb:         NewCircuitBreaker(cfg.Breaker),
	}
}

type callOptions struct {
	idempotencyKey string
	timeout        time.Duration
}

type CallOption func(*callOptions)

// WithIdempotencyKey sends key in the Idempotency-Key header. The queue uses
// the entry id so a replay of the same entry is recognisable server side.
func WithIdempotencyKey(key string) CallOption {
	return func(o *callOptions) { o.idempotencyKey = key }
}

// WithTimeout overrides the client's per-call timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Breaker exposes the circuit breaker so background loops can skip work
// while it is open.
func (c *Client) Breaker() *CircuitBreaker { return c.cb }

// Call invokes operation with params and decodes the result into out (which
// may be nil). Failures are always *Error.
func (c *Client) Call(ctx context.Context, operation string, params, out interface{}, opts ...CallOption) error {
	o := callOptions{timeout: c.timeout}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	defer func() {
		metrics.RemoteCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	var callErr error
	cbErr := c.cb.Execute(func() error {
		callErr = c.do(ctx, operation, params, out, o)
		if IsConnectivity(callErr) {
			return callErr
		}
		return nil
	})
	if errors.Is(cbErr, ErrCircuitOpen) {
		return &Error{Kind: KindConnectivity, Code: "CIRCUIT_OPEN", Message: operation + ": service marked unavailable", Err: cbErr}
	}
	return callErr
}

func (c *Client) do(ctx context.Context, operation string, params, out interface{}, o callOptions) error {
	rawParams, err := json.Marshal(params)
	if err != nil {
		return &Error{Kind: KindValidation, Message: "marshal params: " + err.Error(), Err: err}
	}
	body, err := json.Marshal(dto.RPCRequest{Operation: operation, Params: rawParams})
	if err != nil {
		return &Error{Kind: KindValidation, Message: "marshal request: " + err.Error(), Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rpc/"+operation, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindValidation, Message: "create request: " + err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if o.idempotencyKey != "" {
		req.Header.Set(dto.IdempotencyHeader, o.idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return connectivity(operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return connectivity(operation, err)
	}

	var env dto.RPCResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return &Error{Kind: KindConnectivity, Status: resp.StatusCode, Message: operation + ": malformed response", Err: err}
		}
		return &Error{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Message: fmt.Sprintf("%s: service returned %d", operation, resp.StatusCode)}
	}
	if env.Error != nil {
		return fromEnvelope(resp.StatusCode, env.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{Kind: kindForStatus(resp.StatusCode), Status: resp.StatusCode, Message: fmt.Sprintf("%s: service returned %d", operation, resp.StatusCode)}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &Error{Kind: KindConnectivity, Status: resp.StatusCode, Message: operation + ": decode data: " + err.Error(), Err: err}
		}
	}
	return nil
}

// Ping checks GET /health. It bypasses the breaker so the connectivity probe
// keeps working while the breaker is open; a successful ping closes it.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return connectivity("ping", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return connectivity("ping", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return &Error{Kind: KindConnectivity, Status: resp.StatusCode, Message: fmt.Sprintf("ping: service returned %d", resp.StatusCode)}
	}
	c.cb.Reset()
	return nil
}
