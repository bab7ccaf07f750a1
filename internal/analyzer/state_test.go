package analyzer

import (
	"strings"
	"testing"

	"github.com/ashureev/symptom-checker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceAsksForDurationThenAssesses(t *testing.T) {
	t.Parallel()

	a := New(nil)
	var s State

	first := s.Advance(a, "I have a headache")
	assert.Equal(t, domain.KindQuestion, first.Kind)
	assert.Nil(t, first.Tier)
	assert.Equal(t, PhaseAwaitingDuration, s.Phase())

	second := s.Advance(a, "for 2 days")
	assert.Equal(t, domain.KindAssessment, second.Kind)
	require.NotNil(t, second.Tier)
	assert.Equal(t, "2 days", s.Duration)
	assert.True(t, second.DurationCaptured)
	assert.Equal(t, PhaseCollecting, s.Phase())
	assert.Equal(t, []string{"headache"}, second.Symptoms)
}

func TestAdvanceStatedAgeStillAsksForDuration(t *testing.T) {
	t.Parallel()

	a := New(nil)
	var s State

	first := s.Advance(a, "I'm 30 years old and I have a headache")
	assert.Equal(t, domain.KindQuestion, first.Kind)
	assert.Nil(t, first.Tier)
	assert.Empty(t, s.Duration)
	assert.True(t, s.AwaitingDuration)
	assert.Equal(t, 30, s.Age)
	assert.Equal(t, 30, first.Age)
	assert.Equal(t, []string{"headache"}, first.Symptoms)

	second := s.Advance(a, "for 3 days. I'm 31.")
	assert.Equal(t, domain.KindAssessment, second.Kind)
	assert.Equal(t, "3 days", s.Duration)
	assert.Equal(t, 30, second.Age)
}

func TestAdvanceHighRiskSkipsQuestion(t *testing.T) {
	t.Parallel()

	a := New(nil)
	var s State

	turn := s.Advance(a, "I have chest pain")
	assert.Equal(t, domain.KindAssessment, turn.Kind)
	require.NotNil(t, turn.Tier)
	assert.Equal(t, domain.RiskHigh, *turn.Tier)
	assert.False(t, s.AwaitingDuration)
	assert.Equal(t, domain.CategoryUrgent, turn.Category)
}

func TestAdvanceAwaitingFlagPersistsUntilDurationMatched(t *testing.T) {
	t.Parallel()

	a := New(nil)
	var s State

	s.Advance(a, "I have a cough")
	require.True(t, s.AwaitingDuration)

	turn := s.Advance(a, "not sure, a while")
	assert.Equal(t, domain.KindAssessment, turn.Kind)
	assert.True(t, s.AwaitingDuration)
	assert.Empty(t, s.Duration)

	// Relative words do not satisfy the follow-up.
	s.Advance(a, "since yesterday")
	assert.True(t, s.AwaitingDuration)

	s.Advance(a, "about 3 days")
	assert.False(t, s.AwaitingDuration)
	assert.Equal(t, "3 days", s.Duration)
}

func TestAdvanceNoSymptomsGivesAssessment(t *testing.T) {
	t.Parallel()

	a := New(nil)
	var s State

	turn := s.Advance(a, "I feel bad")
	assert.Equal(t, domain.KindAssessment, turn.Kind)
	require.NotNil(t, turn.Tier)
	assert.Equal(t, domain.RiskLow, *turn.Tier)
	assert.False(t, s.AwaitingDuration)
}

func TestAdvanceDurationInFirstMessage(t *testing.T) {
	t.Parallel()

	a := New(nil)
	var s State

	turn := s.Advance(a, "I've had a fever since yesterday")
	assert.Equal(t, domain.KindAssessment, turn.Kind)
	assert.Equal(t, "yesterday", s.Duration)
	assert.True(t, turn.DurationCaptured)
}

func TestAdvanceDurationNeverOverwritten(t *testing.T) {
	t.Parallel()

	a := New(nil)
	var s State

	s.Advance(a, "fever for 2 days")
	require.Equal(t, "2 days", s.Duration)

	turn := s.Advance(a, "actually a cough for 5 weeks too")
	assert.Equal(t, "2 days", s.Duration)
	assert.False(t, turn.DurationCaptured)
}

func TestAdvanceSymptomsOnlyGrow(t *testing.T) {
	t.Parallel()

	a := New(nil)
	var s State

	s.Advance(a, "headache and fever for 1 day")
	s.Advance(a, "nothing new")
	s.Advance(a, "now a cough and the headache again")

	assert.Equal(t, []string{"headache", "fever", "cough"}, s.Symptoms)
}

func TestAdvanceTierEscalatesAcrossTurns(t *testing.T) {
	t.Parallel()

	a := New(nil)
	var s State

	s.Advance(a, "I have a fever for 2 days")
	turn := s.Advance(a, "thanks")
	require.NotNil(t, turn.Tier)
	assert.Equal(t, domain.RiskModerate, *turn.Tier)
}

func TestSnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	a := New(nil)
	var s State
	s.Advance(a, "fever for 2 days")

	snap := s.Snapshot()
	snap.Symptoms[0] = "changed"
	*snap.LastRiskTier = domain.RiskHigh

	assert.Equal(t, "fever", s.Symptoms[0])
	assert.Equal(t, domain.RiskModerate, *s.LastRiskTier)
}

func TestRenderIsPure(t *testing.T) {
	t.Parallel()

	first := Render(domain.RiskModerate, []string{"headache", "fever"}, "2 days")
	second := Render(domain.RiskModerate, []string{"headache", "fever"}, "2 days")
	assert.Equal(t, first, second)
}

func TestRenderTierBlocks(t *testing.T) {
	t.Parallel()

	high := Render(domain.RiskHigh, []string{"chest pain"}, "")
	assert.True(t, strings.HasPrefix(high, "You mentioned chest pain."))
	assert.Contains(t, high, "emergency")
	assert.True(t, strings.HasSuffix(high, Disclaimer))

	moderate := Render(domain.RiskModerate, []string{"headache"}, "2 days")
	assert.Contains(t, moderate, "You mentioned headache for 2 days.")
	assert.Contains(t, moderate, "24-48 hours")

	low := Render(domain.RiskLow, nil, "yesterday")
	assert.Contains(t, low, "since yesterday")
	assert.Contains(t, low, "Monitor your symptoms")

	unknown := Render(domain.RiskTier("bogus"), nil, "")
	assert.Contains(t, unknown, "lower-risk")
}

func TestRenderQuestion(t *testing.T) {
	t.Parallel()

	q := RenderQuestion([]string{"headache", "fever", "cough"})
	assert.Contains(t, q, "headache, fever and cough")
	assert.True(t, strings.HasSuffix(q, "How long have you been experiencing these symptoms?"))
}
