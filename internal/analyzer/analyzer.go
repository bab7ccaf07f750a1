package analyzer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ashureev/symptom-checker/internal/domain"
)

// Classification is the per-message result of the analyzer. It is not retained.
type Classification struct {
	Tier            domain.RiskTier
	MatchedSymptoms []string
	HasDuration     bool
	Age             int // 0 when no age was stated
}

// maxAge is the largest stated age accepted as plausible.
const maxAge = 120

// Analyzer applies a RuleSet to raw messages. It holds no conversation state
// and may be shared by every session.
type Analyzer struct {
	rules *RuleSet
}

// New creates an analyzer over rules. A nil rules selects the embedded table.
func New(rules *RuleSet) *Analyzer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Analyzer{rules: rules}
}

// RulesVersion returns the version of the loaded rule table.
func (a *Analyzer) RulesVersion() int {
	return a.rules.Version
}

// Analyze runs the classifier, extractor and duration detector on message.
func (a *Analyzer) Analyze(message string) Classification {
	return Classification{
		Tier:            a.Classify(message),
		MatchedSymptoms: a.ExtractSymptoms(message),
		HasDuration:     a.HasDuration(message),
		Age:             a.extractAge(message),
	}
}

// Classify maps message to a risk tier. HIGH patterns are checked before
// MODERATE ones and the first match wins. A message matching nothing is LOW,
// which means unrecognized phrasing of a serious problem is also LOW.
func (a *Analyzer) Classify(message string) domain.RiskTier {
	for _, re := range a.rules.high {
		if re.MatchString(message) {
			return domain.RiskHigh
		}
	}
	for _, re := range a.rules.moderate {
		if re.MatchString(message) {
			return domain.RiskModerate
		}
	}
	return domain.RiskLow
}

// ExtractSymptoms returns every symptom phrase found in message, lower-cased,
// without duplicates and in first-seen order.
func (a *Analyzer) ExtractSymptoms(message string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, re := range a.rules.symptoms {
		for _, m := range re.FindAllString(message, -1) {
			s := normalizeSpace(strings.ToLower(m))
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// HasDuration reports whether message contains any temporal expression.
// Stated ages such as "30 years old" do not count.
func (a *Analyzer) HasDuration(message string) bool {
	message = a.withoutAge(message)
	return a.rules.measured.MatchString(message) ||
		a.rules.prefixed.MatchString(message) ||
		a.rules.relative.MatchString(message)
}

// ExtractDuration returns the first "<number> <unit>" expression in message,
// normalized to e.g. "2 days" or "1 hour".
func (a *Analyzer) ExtractDuration(message string) (string, bool) {
	m := a.rules.measured.FindStringSubmatch(a.withoutAge(message))
	if len(m) < 3 {
		return "", false
	}
	amount := m[1]
	unit := canonicalUnit(strings.ToLower(m[2]))
	if amount != "1" {
		unit += "s"
	}
	return fmt.Sprintf("%s %s", amount, unit), true
}

// ExtractAnyDuration is ExtractDuration extended with relative-time words
// such as "yesterday" or "this morning".
func (a *Analyzer) ExtractAnyDuration(message string) (string, bool) {
	if d, ok := a.ExtractDuration(message); ok {
		return d, true
	}
	if m := a.rules.relative.FindString(a.withoutAge(message)); m != "" {
		return normalizeSpace(strings.ToLower(m)), true
	}
	return "", false
}

// ExtractAge returns the age stated in message, trying the age patterns in
// table order. Values above 120 or of zero are ignored.
func (a *Analyzer) ExtractAge(message string) (int, bool) {
	for _, re := range a.rules.age {
		for _, m := range re.FindAllStringSubmatch(message, -1) {
			n, err := strconv.Atoi(m[1])
			if err == nil && n > 0 && n <= maxAge {
				return n, true
			}
		}
	}
	return 0, false
}

func (a *Analyzer) extractAge(message string) int {
	n, _ := a.ExtractAge(message)
	return n
}

// withoutAge blanks every age expression so it cannot be read as a duration.
func (a *Analyzer) withoutAge(message string) string {
	for _, re := range a.rules.age {
		message = re.ReplaceAllString(message, " ")
	}
	return message
}

// Categorize labels message with the first matching category, or general.
func (a *Analyzer) Categorize(message string) domain.Category {
	for _, rule := range a.rules.categories {
		for _, re := range rule.patterns {
			if re.MatchString(message) {
				return rule.category
			}
		}
	}
	return domain.CategoryGeneral
}

func canonicalUnit(unit string) string {
	switch unit {
	case "min":
		return "minute"
	case "hr":
		return "hour"
	default:
		return unit
	}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
