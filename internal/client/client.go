package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	apihttp "github.com/soeminnminn/run-js/internal/api/http"
	"github.com/soeminnminn/run-js/internal/infrastructure/resilience"
	"github.com/soeminnminn/run-js/internal/runner"
)

// Config defines how to reach a remote server
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// Breaker opens after this many failed calls in a row
	Threshold int
	Cooldown  time.Duration
}

// DefaultConfig returns client settings for a server at baseURL
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Timeout:      30 * time.Second,
		Retries:      3,
		RetryWaitMin: 200 * time.Millisecond,
		RetryWaitMax: 5 * time.Second,
		Threshold:    5,
		Cooldown:     30 * time.Second,
	}
}

// StatusError is a non-2xx answer from the server
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Temporary reports whether the server may succeed on a later call
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Client submits scripts to a remote run-js server
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// New creates a client. Transient failures are retried with
// retryablehttp's backoff; repeated failures open the breaker.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Pooled transport from retryablehttp's client
	pooled := retryablehttp.NewClient()
	pooled.Logger = nil

	r := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetTransport(pooled.HTTPClient.Transport).
		SetLogger(logger.Sugar()).
		SetHeader("User-Agent", "run-js-client/"+apihttp.Version).
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(cfg.RetryWaitMin).
		SetRetryMaxWaitTime(cfg.RetryWaitMax).
		SetRetryAfter(func(_ *resty.Client, resp *resty.Response) (time.Duration, error) {
			return retryablehttp.DefaultBackoff(cfg.RetryWaitMin, cfg.RetryWaitMax, resp.Request.Attempt, resp.RawResponse), nil
		}).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code >= 500
		})

	c := &Client{resty: r, logger: logger}
	c.breaker = resilience.New("runjs-remote", resilience.Settings{
		Threshold: cfg.Threshold,
		Cooldown:  cfg.Cooldown,
		IsFailure: func(err error) bool {
			var status *StatusError
			if errors.As(err, &status) {
				return status.Temporary()
			}
			return err != nil && !errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
	return c
}

// Run submits req and returns the server's answer
func (c *Client) Run(ctx context.Context, req runner.Request) (*apihttp.RunResponse, error) {
	return resilience.Do(ctx, c.breaker, func(ctx context.Context) (*apihttp.RunResponse, error) {
		var (
			result apihttp.RunResponse
			failed struct {
				Error string `json:"error"`
			}
		)
		resp, err := c.resty.R().
			SetContext(ctx).
			SetQueryParam("codec", "json").
			SetBody(req).
			SetResult(&result).
			SetError(&failed).
			Post("/run")
		if err != nil {
			return nil, fmt.Errorf("post run: %w", err)
		}
		if resp.IsError() {
			return nil, &StatusError{Status: resp.StatusCode(), Message: failed.Error}
		}
		c.logger.Debug("Remote run complete", zap.String("id", resp.Header().Get("X-Run-Id")))
		return &result, nil
	})
}

// Health checks that the server answers its health endpoint
func (c *Client) Health(ctx context.Context) error {
	_, err := resilience.Do(ctx, c.breaker, func(ctx context.Context) (struct{}, error) {
		resp, err := c.resty.R().SetContext(ctx).Get("/health")
		if err != nil {
			return struct{}{}, err
		}
		if resp.IsError() {
			return struct{}{}, &StatusError{Status: resp.StatusCode(), Message: resp.String()}
		}
		return struct{}{}, nil
	})
	return err
}

// Breaker exposes the circuit state
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}
