// Package remote talks to the optional remote symptom analyzer.
package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/symptom-checker/internal/domain"
	"github.com/tidwall/gjson"
)

var (
	// ErrStatus is matched by every non-2xx response.
	ErrStatus = errors.New("remote analyzer returned non-success status")
	// ErrMalformed is returned when the reply body cannot be used.
	ErrMalformed = errors.New("remote analyzer returned malformed payload")
)

// Request is the body sent to the remote analyzer.
type Request struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// Reply is a decoded remote answer.
type Reply struct {
	Response string
	RiskTier domain.RiskTier
}

// Client analyzes one user turn remotely.
type Client interface {
	Analyze(ctx context.Context, req Request) (*Reply, error)
}

// StatusError carries the HTTP status of a failed remote call.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d", ErrStatus, e.Code)
}

// Is makes errors.Is(err, ErrStatus) true for any StatusError.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// DecodeReply parses a `{response, risk_level}` object. A missing or unknown
// risk_level becomes low; a missing or blank response is malformed.
func DecodeReply(data []byte) (*Reply, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformed)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: expected object", ErrMalformed)
	}

	response := root.Get("response")
	if response.Type != gjson.String || strings.TrimSpace(response.Str) == "" {
		return nil, fmt.Errorf("%w: missing response", ErrMalformed)
	}

	tier := domain.RiskLow
	if t, ok := domain.ParseRiskTier(root.Get("risk_level").String()); ok {
		tier = t
	}
	return &Reply{Response: response.Str, RiskTier: tier}, nil
}
