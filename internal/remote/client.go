package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"flambient/internal/logging"
	"flambient/internal/services"
)

const (
	defaultHTTPTimeout    = 120 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryAttempts  = 5

	apiKeyHeader    = "x-api-key"
	requestIDHeader = "X-Request-ID"
)

// Config captures the runtime settings required to talk to the editing API.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// Client wraps the photo-editing HTTP API. API calls carry the key header;
// signed upload and download URLs are fetched through a separate client that
// adds nothing to the request.
type Client struct {
	cfg            Config
	httpClient     *http.Client
	transferClient *http.Client
	logger         *slog.Logger

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTransferClient overrides the HTTP client used for signed URL transfers.
func WithTransferClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.transferClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count (defaults to 5).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient:       &http.Client{Timeout: timeout},
		transferClient:   newTransferClient(),
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	client.logger = logging.NewComponentLogger(client.logger, "remote")
	return client
}

// newTransferClient returns a client whose transport never adds
// Accept-Encoding. Signed URLs are rejected when unexpected headers are
// present. No overall timeout is set because large files can take minutes;
// request contexts bound each transfer instead.
func newTransferClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableCompression = true
	return &http.Client{Transport: transport}
}

// envelope is the wrapper every API response uses.
type envelope struct {
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// doJSON sends one API request with retries and decodes the data envelope into
// out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	op := method + " " + path
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return services.Wrap(services.ErrValidation, "remote", op, "encode request body", err)
		}
	}
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "remote", op, "build url", err)
	}
	requestID := requestIDFor(ctx)

	var body []byte
	err = c.withRetry(ctx, op, func() error {
		var bodyReader io.Reader
		if encoded != nil {
			bodyReader = bytes.NewReader(encoded)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
		if err != nil {
			return fmt.Errorf("new request: %w", err)
		}
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")
		req.Header.Set(requestIDHeader, requestID)
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http error (timeout=%s): %w", c.timeoutDuration(), err)
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode >= http.StatusMultipleChoices {
			return newStatusError(resp, body)
		}
		return nil
	})
	if err != nil {
		return classify(op, err)
	}

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return services.Wrap(services.ErrRemote, "remote", op, "decode response", err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return services.Wrap(services.ErrRemote, "remote", op, "response missing data envelope", nil)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return services.Wrap(services.ErrRemote, "remote", op, "decode data", err)
	}
	return nil
}

// classify tags a failed call: exhausted transient failures keep the
// transient marker so callers can suggest a resume, everything else is a
// fatal remote error.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrCancelled, "remote", op, "request cancelled", err)
	}
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "remote", op, "API key rejected", err)
		case http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "remote", op, "resource not found", err)
		}
		if isRetryableStatus(statusErr.StatusCode) {
			return services.Wrap(services.ErrTransient, "remote", op, "retries exhausted", err)
		}
		return services.Wrap(services.ErrRemote, "remote", op, "request rejected", err)
	}
	if services.IsTransient(err) || isTimeout(err) {
		return services.Wrap(services.ErrTransient, "remote", op, "retries exhausted", err)
	}
	return services.Wrap(services.ErrRemote, "remote", op, "request failed", err)
}

func requestIDFor(ctx context.Context) string {
	if id, ok := services.RequestIDFromContext(ctx); ok {
		return id
	}
	return uuid.NewString()
}

func (c *Client) timeoutDuration() time.Duration {
	if c == nil || c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}
