package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
)

// maxReplyBytes bounds how much of a remote reply is read.
const maxReplyBytes = 1 << 20

// HTTPConfig configures HTTPClient.
type HTTPConfig struct {
	URL      string
	Timeout  time.Duration
	Attempts uint
	Backoff  time.Duration
}

// DefaultHTTPConfig returns default configuration for url.
func DefaultHTTPConfig(url string) HTTPConfig {
	return HTTPConfig{
		URL:      url,
		Timeout:  8 * time.Second,
		Attempts: 1,
		Backoff:  200 * time.Millisecond,
	}
}

// HTTPClient posts turns to a JSON endpoint.
type HTTPClient struct {
	url        string
	httpClient *http.Client
	attempts   uint
	backoff    time.Duration
	logger     *slog.Logger
}

// NewHTTPClient creates a client for cfg.URL. Zero fields take defaults.
func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultHTTPConfig(cfg.URL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = def.Backoff
	}
	return &HTTPClient{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		attempts:   cfg.Attempts,
		backoff:    cfg.Backoff,
		logger:     logger,
	}
}

// Analyze posts req and decodes the reply. Transport errors, 429 and 5xx are
// retried up to the configured attempts; other failures return immediately.
func (c *HTTPClient) Analyze(ctx context.Context, req Request) (*Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal remote request: %w", err)
	}

	var reply *Reply
	err = retry.Do(
		func() error {
			r, err := c.post(ctx, body)
			if err != nil {
				return err
			}
			reply = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.backoff),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("Retrying remote analyzer", "attempt", n+1, "session_id", req.SessionID, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *HTTPClient) post(ctx context.Context, body []byte) (*Reply, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("build remote request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("post remote analyzer: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close remote response body", "error", closeErr)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("read remote reply: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Code: resp.StatusCode}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, retry.Unrecoverable(statusErr)
	}

	reply, err := DecodeReply(data)
	if err != nil {
		return nil, retry.Unrecoverable(err)
	}
	return reply, nil
}
