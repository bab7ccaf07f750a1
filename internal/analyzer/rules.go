// Package analyzer implements the local, rule-based symptom analyzer used
// whenever the remote analyzer is unavailable.
package analyzer

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sync"

	"github.com/ashureev/symptom-checker/internal/domain"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// ruleFile mirrors the on-disk layout of rules.yaml.
type ruleFile struct {
	Version int `yaml:"version"`
	Risk    struct {
		High     []string `yaml:"high"`
		Moderate []string `yaml:"moderate"`
	} `yaml:"risk"`
	Symptoms []struct {
		Family   string   `yaml:"family"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"symptoms"`
	Duration struct {
		Measured string `yaml:"measured"`
		Prefixed string `yaml:"prefixed"`
		Relative string `yaml:"relative"`
	} `yaml:"duration"`
	Age        []string `yaml:"age"`
	Categories []struct {
		Name     string   `yaml:"name"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"categories"`
}

type categoryRule struct {
	category domain.Category
	patterns []*regexp.Regexp
}

// RuleSet is a compiled, immutable rule table. It is safe for concurrent use.
type RuleSet struct {
	Version int

	high     []*regexp.Regexp
	moderate []*regexp.Regexp
	symptoms []*regexp.Regexp

	measured *regexp.Regexp
	prefixed *regexp.Regexp
	relative *regexp.Regexp

	age []*regexp.Regexp

	categories []categoryRule
}

var (
	defaultRulesOnce sync.Once
	defaultRules     *RuleSet
)

// DefaultRules returns the embedded rule table.
func DefaultRules() *RuleSet {
	defaultRulesOnce.Do(func() {
		rs, err := ParseRules(defaultRulesYAML)
		if err != nil {
			panic("analyzer: embedded rules are invalid: " + err.Error())
		}
		defaultRules = rs
	})
	return defaultRules
}

// LoadRules reads a rule table from path. An empty path selects the embedded
// defaults.
func LoadRules(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	rs, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return rs, nil
}

// ParseRules compiles a YAML rule table. Every invalid pattern is reported.
func ParseRules(data []byte) (*RuleSet, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	c := &compiler{}

	rs := &RuleSet{Version: rf.Version}
	if rf.Version <= 0 {
		c.fail(fmt.Errorf("version must be > 0"))
	}
	if len(rf.Risk.High) == 0 {
		c.fail(fmt.Errorf("risk.high must list at least one pattern"))
	}
	if len(rf.Risk.Moderate) == 0 {
		c.fail(fmt.Errorf("risk.moderate must list at least one pattern"))
	}

	rs.high = c.compileAll("risk.high", rf.Risk.High)
	rs.moderate = c.compileAll("risk.moderate", rf.Risk.Moderate)
	for _, fam := range rf.Symptoms {
		rs.symptoms = append(rs.symptoms, c.compileAll("symptoms."+fam.Family, fam.Patterns)...)
	}

	rs.measured = c.compile("duration.measured", rf.Duration.Measured)
	rs.prefixed = c.compile("duration.prefixed", rf.Duration.Prefixed)
	rs.relative = c.compile("duration.relative", rf.Duration.Relative)
	if rs.measured != nil && rs.measured.NumSubexp() < 2 {
		c.fail(fmt.Errorf("duration.measured must capture amount and unit"))
	}

	rs.age = c.compileAll("age", rf.Age)
	for i, re := range rs.age {
		if re.NumSubexp() < 1 {
			c.fail(fmt.Errorf("age[%d]: must capture the age", i))
		}
	}

	for _, cat := range rf.Categories {
		category := domain.Category(cat.Name)
		if category != domain.CategoryUrgent && category != domain.CategoryMentalWellbeing && category != domain.CategoryGeneral {
			c.fail(fmt.Errorf("categories: unknown category %q", cat.Name))
			continue
		}
		rs.categories = append(rs.categories, categoryRule{
			category: category,
			patterns: c.compileAll("categories."+cat.Name, cat.Patterns),
		})
	}

	if err := c.errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return rs, nil
}

type compiler struct {
	errs *multierror.Error
}

func (c *compiler) fail(err error) {
	c.errs = multierror.Append(c.errs, err)
}

func (c *compiler) compile(field, pattern string) *regexp.Regexp {
	if pattern == "" {
		c.fail(fmt.Errorf("%s: empty pattern", field))
		return nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		c.fail(fmt.Errorf("%s: %w", field, err))
		return nil
	}
	return re
}

func (c *compiler) compileAll(field string, patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		if re := c.compile(fmt.Sprintf("%s[%d]", field, i), p); re != nil {
			out = append(out, re)
		}
	}
	return out
}
