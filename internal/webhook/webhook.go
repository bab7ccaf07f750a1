// Package webhook forwards completed assessments to an external endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/symptom-checker/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Payload is the body posted for each completed assessment.
type Payload struct {
	Symptoms  []string        `json:"symptoms"`
	Duration  string          `json:"duration"`
	Age       *int            `json:"age"`
	RiskLevel domain.RiskTier `json:"risk_level"`
	Category  domain.Category `json:"category"`
}

// PayloadFrom builds the webhook body for in.
func PayloadFrom(in *domain.Interaction) Payload {
	symptoms := in.Symptoms
	if symptoms == nil {
		symptoms = []string{}
	}
	category := in.Category
	if category == "" {
		category = domain.CategoryGeneral
	}
	var age *int
	if in.Age > 0 {
		age = &in.Age
	}
	return Payload{
		Symptoms:  symptoms,
		Duration:  in.Duration,
		Age:       age,
		RiskLevel: in.RiskTier,
		Category:  category,
	}
}

// Notifier delivers payloads asynchronously. A Notifier with no URL drops
// everything it is given.
type Notifier struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// New creates a notifier posting to url. A zero timeout selects 10s.
func New(url string, timeout time.Duration, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Notifier{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Enabled reports whether a URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Notify posts p in the background. Failures are logged and never returned.
func (n *Notifier) Notify(p Payload) {
	if !n.Enabled() {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.Send(context.Background(), p); err != nil {
			n.logger.Warn("Webhook delivery failed", "error", err)
			return
		}
		n.logger.Debug("Webhook delivered", "risk_level", p.RiskLevel, "category", p.Category)
	}()
}

// Send posts p synchronously.
func (n *Notifier) Send(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Wait blocks until every pending delivery has finished.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
