// Package domain contains core domain types for the symptom checker.
package domain

import "strings"

// RiskTier is the coarse urgency bucket assigned to a user message.
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskModerate RiskTier = "moderate"
	RiskHigh     RiskTier = "high"
)

// Rank orders tiers so LOW < MODERATE < HIGH. Unknown tiers rank below LOW.
func (t RiskTier) Rank() int {
	switch t {
	case RiskLow:
		return 1
	case RiskModerate:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is one of the three known tiers.
func (t RiskTier) Valid() bool {
	return t.Rank() > 0
}

// Ptr returns a pointer to a copy of t, for optional JSON fields.
func (t RiskTier) Ptr() *RiskTier {
	return &t
}

// ParseRiskTier converts a free-form label ("HIGH", " moderate ") into a tier.
func ParseRiskTier(s string) (RiskTier, bool) {
	t := RiskTier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", false
	}
	return t, true
}

// MaxRisk returns the higher of two tiers.
func MaxRisk(a, b RiskTier) RiskTier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Category labels the broad kind of concern, used only for anonymized records.
type Category string

const (
	CategoryGeneral         Category = "general"
	CategoryUrgent          Category = "urgent"
	CategoryMentalWellbeing Category = "mental_wellbeing"
)
