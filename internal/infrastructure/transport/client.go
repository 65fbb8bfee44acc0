// Package transport implements the SDK's HTTP capability on top of go-retryablehttp.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	domainService "github.com/turtacn/contentsdk/internal/domain/service"
	"github.com/turtacn/contentsdk/pkg/constants"
	"github.com/turtacn/contentsdk/pkg/errors"
	"github.com/turtacn/contentsdk/pkg/logger"
)

// maxErrorBody bounds the response text copied into error metadata.
const maxErrorBody = 512

// Config tunes the HTTP client.
type Config struct {
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
}

// Client is a domainService.HTTPClient that retries 429 and 5xx responses with backoff
// and classifies every failure into an SDK error kind.
type Client struct {
	rc        *retryablehttp.Client
	timeout   time.Duration
	userAgent string
	logger    logger.Logger
	metrics   domainService.Metrics
}

// NewClient creates a transport client.
func NewClient(cfg Config, log logger.Logger, metrics domainService.Metrics) *Client {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if metrics == nil {
		metrics = domainService.NewNoopMetrics()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultHTTPTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = constants.UserAgent
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	// Per-request deadlines come from the context; long-poll waits outlast the default.
	rc.HTTPClient.Timeout = 0
	rc.Logger = newRetryLogger(log)
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		rc:        rc,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		logger:    log.WithComponent("transport"),
		metrics:   metrics,
	}
}

func (c *Client) Get(ctx context.Context, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error) {
	return c.do(ctx, http.MethodGet, rawURL, opts)
}

func (c *Client) Options(ctx context.Context, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error) {
	return c.do(ctx, http.MethodOptions, rawURL, opts)
}

func (c *Client) Post(ctx context.Context, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error) {
	return c.do(ctx, http.MethodPost, rawURL, opts)
}

func (c *Client) do(ctx context.Context, method, rawURL string, opts domainService.RequestOptions) (*domainService.Response, error) {
	target, err := mergeQuery(rawURL, opts.Query)
	if err != nil {
		return nil, errors.ErrInvalidConfig(fmt.Sprintf("invalid request url %q", rawURL)).WithCause(err)
	}

	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body []byte
	if opts.Form != nil {
		body = []byte(opts.Form.Encode())
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.ErrInvalidConfig("failed to build request").WithCause(err)
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if opts.Form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get(constants.HeaderRequestID) == "" {
		req.Header.Set(constants.HeaderRequestID, uuid.NewString())
	}

	start := time.Now()
	resp, err := c.rc.Do(req)
	if err != nil {
		c.metrics.RecordHTTPRequest(method, 0, time.Since(start))
		return nil, errors.ErrTransport(fmt.Sprintf("%s %s failed", method, redact(target)), 0).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.metrics.RecordHTTPRequest(method, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, errors.ErrTransport(fmt.Sprintf("reading %s %s response failed", method, redact(target)), resp.StatusCode).WithCause(err)
	}

	out := &domainService.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return out, nil
	}
	return out, classify(method, target, out)
}

// classify maps a non-2xx response onto an SDK error.
func classify(method, target string, resp *domainService.Response) error {
	msg := fmt.Sprintf("%s %s returned %d", method, redact(target), resp.StatusCode)
	var sdkErr errors.SDKError
	if resp.StatusCode == http.StatusUnauthorized {
		sdkErr = errors.ErrAuthExpired(msg)
	} else {
		sdkErr = errors.ErrTransport(msg, resp.StatusCode)
	}
	if len(resp.Body) > 0 {
		snippet := resp.Body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		sdkErr = sdkErr.WithMetadata("body", string(bytes.TrimSpace(snippet)))
	}
	if id := resp.Header.Get(constants.HeaderRequestID); id != "" {
		sdkErr = sdkErr.WithMetadata("request_id", id)
	}
	return sdkErr
}

// mergeQuery sets params on rawURL and keeps the parameters it already carries.
func mergeQuery(rawURL string, params url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if len(params) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact drops the query string, which may carry channel secrets.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}
