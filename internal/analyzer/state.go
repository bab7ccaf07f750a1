package analyzer

import (
	"slices"

	"github.com/ashureev/symptom-checker/internal/domain"
)

// Phase is the observable state of the dialogue policy.
type Phase string

const (
	PhaseCollecting       Phase = "collecting"
	PhaseAwaitingDuration Phase = "awaiting_duration"
)

// State is the conversation state of one chat session. The zero value is a
// fresh session. It is not safe for concurrent use; the owning session
// serializes turns.
type State struct {
	Symptoms         []string         `json:"symptoms"`
	Duration         string           `json:"duration,omitempty"`
	LastRiskTier     *domain.RiskTier `json:"last_risk_tier,omitempty"`
	AwaitingDuration bool             `json:"awaiting_duration"`
	Category         domain.Category  `json:"category,omitempty"`
	Age              int              `json:"age,omitempty"`
}

// Turn is the decision taken for one user message.
type Turn struct {
	Kind     domain.ReplyKind
	Tier     *domain.RiskTier // nil when the tier is withheld
	Result   Classification
	Symptoms []string
	Duration string
	Category domain.Category
	Age      int

	// DurationCaptured is true on the turn a duration first became known.
	DurationCaptured bool
}

// Phase reports the current dialogue phase.
func (s *State) Phase() Phase {
	if s.AwaitingDuration {
		return PhaseAwaitingDuration
	}
	return PhaseCollecting
}

// Snapshot returns a deep copy of s.
func (s *State) Snapshot() State {
	cp := *s
	cp.Symptoms = slices.Clone(s.Symptoms)
	if s.LastRiskTier != nil {
		cp.LastRiskTier = s.LastRiskTier.Ptr()
	}
	return cp
}

// Advance applies one user message to the state and decides whether the
// reply is the duration follow-up question or an assessment.
//
// While awaiting a duration only a "<number> <unit>" expression clears the
// flag, and the turn is answered with an assessment whether or not one was
// found. HIGH-tier sessions are never held back by the follow-up question.
//
// The tier only escalates: each turn reports the highest tier seen so far in
// the session, so a calmer follow-up never lowers it. The first stated age is
// kept and, like duration, never overwritten.
func (s *State) Advance(a *Analyzer, message string) Turn {
	res := a.Analyze(message)
	s.mergeSymptoms(res.MatchedSymptoms)
	s.mergeCategory(a.Categorize(message))
	if s.Age == 0 {
		s.Age = res.Age
	}

	tier := res.Tier
	if s.LastRiskTier != nil {
		tier = domain.MaxRisk(*s.LastRiskTier, tier)
	}
	s.LastRiskTier = tier.Ptr()

	hadDuration := s.Duration != ""
	switch {
	case s.AwaitingDuration:
		if d, ok := a.ExtractDuration(message); ok {
			s.Duration = d
			s.AwaitingDuration = false
		}
	case !res.HasDuration && s.Duration == "" && len(s.Symptoms) > 0 && tier != domain.RiskHigh:
		s.AwaitingDuration = true
		return s.turn(domain.KindQuestion, nil, res, false)
	case res.HasDuration && s.Duration == "":
		if d, ok := a.ExtractAnyDuration(message); ok {
			s.Duration = d
		}
	}

	return s.turn(domain.KindAssessment, tier.Ptr(), res, !hadDuration && s.Duration != "")
}

func (s *State) turn(kind domain.ReplyKind, tier *domain.RiskTier, res Classification, captured bool) Turn {
	return Turn{
		Kind:             kind,
		Tier:             tier,
		Result:           res,
		Symptoms:         slices.Clone(s.Symptoms),
		Duration:         s.Duration,
		Category:         s.Category,
		Age:              s.Age,
		DurationCaptured: captured,
	}
}

// mergeSymptoms unions found into the accumulated set, keeping first-seen order.
func (s *State) mergeSymptoms(found []string) {
	for _, sym := range found {
		if !slices.Contains(s.Symptoms, sym) {
			s.Symptoms = append(s.Symptoms, sym)
		}
	}
}

func (s *State) mergeCategory(c domain.Category) {
	if categoryRank(c) > categoryRank(s.Category) {
		s.Category = c
	}
}

func categoryRank(c domain.Category) int {
	switch c {
	case domain.CategoryUrgent:
		return 3
	case domain.CategoryMentalWellbeing:
		return 2
	case domain.CategoryGeneral:
		return 1
	default:
		return 0
	}
}
