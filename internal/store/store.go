// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/symptom-checker/internal/domain"
)

// Repository persists anonymized assessment records. It never stores message
// text or transcripts.
type Repository interface {
	// SaveInteraction records one local assessment. An empty ID is filled in.
	SaveInteraction(ctx context.Context, in *domain.Interaction) error

	// CountByRisk returns the number of recorded assessments per risk tier.
	CountByRisk(ctx context.Context) (map[domain.RiskTier]int64, error)

	// CleanupOlderThan removes records older than retention.
	CleanupOlderThan(ctx context.Context, retention time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

// Nop is used when recording is disabled.
type Nop struct{}

// NewNop returns a Repository that discards every record.
func NewNop() Repository { return Nop{} }

func (Nop) SaveInteraction(context.Context, *domain.Interaction) error { return nil }

func (Nop) CountByRisk(context.Context) (map[domain.RiskTier]int64, error) {
	return map[domain.RiskTier]int64{}, nil
}

func (Nop) CleanupOlderThan(context.Context, time.Duration) (int64, error) { return 0, nil }
func (Nop) Ping(context.Context) error                                     { return nil }
func (Nop) Close() error                                                   { return nil }
