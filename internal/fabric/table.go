package fabric

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category is the classification outcome for a single fiber name.
type Category string

const (
	Natural       Category = "natural"
	SemiSynthetic Category = "semi-synthetic"
	Banned        Category = "banned"
)

// Policy holds the thresholds applied by the evaluator.
type Policy struct {
	MinNaturalPercent         float64 `yaml:"min_natural_percent" json:"min_natural_percent"`
	MaxLiningSyntheticPercent float64 `yaml:"max_lining_synthetic_percent" json:"max_lining_synthetic_percent"`
	ApprovedReason            string  `yaml:"approved_reason" json:"approved_reason"`
}

// Table is the classification table and policy used to classify and evaluate fibers.
// A loaded Table is never mutated and may be shared between goroutines.
type Table struct {
	policy           Policy
	natural          []string
	semiSynthetic    []string
	banned           []string
	liningExceptions []string
}

type tableFile struct {
	Policy           Policy              `yaml:"policy"`
	Categories       map[string][]string `yaml:"categories"`
	LiningExceptions []string            `yaml:"lining_exceptions"`
}

//go:embed fiber_table.yaml
var defaultTableYAML []byte

var defaultTable = mustParseTable(defaultTableYAML)

// DefaultTable returns the embedded classification table.
func DefaultTable() *Table {
	return defaultTable
}

// LoadTable reads a YAML classification table from disk.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read fiber table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes and validates a YAML classification table.
func ParseTable(data []byte) (*Table, error) {
	var raw tableFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal fiber table: %w", err)
	}

	t := &Table{
		policy:           raw.Policy,
		liningExceptions: normalizeTerms(raw.LiningExceptions),
	}
	t.policy.ApprovedReason = strings.TrimSpace(t.policy.ApprovedReason)
	for key, terms := range raw.Categories {
		switch Category(strings.ToLower(strings.TrimSpace(key))) {
		case Natural:
			t.natural = normalizeTerms(terms)
		case SemiSynthetic:
			t.semiSynthetic = normalizeTerms(terms)
		case Banned:
			t.banned = normalizeTerms(terms)
		default:
			return nil, fmt.Errorf("unknown fiber category %q", key)
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate ensures the table carries a usable configuration.
func (t *Table) Validate() error {
	if t == nil {
		return errors.New("fiber table is nil")
	}
	if len(t.natural) == 0 {
		return errors.New("natural fiber set missing")
	}
	if t.policy.MinNaturalPercent <= 0 || t.policy.MinNaturalPercent > 100 {
		return fmt.Errorf("min_natural_percent out of range: %v", t.policy.MinNaturalPercent)
	}
	if t.policy.MaxLiningSyntheticPercent < 0 || t.policy.MaxLiningSyntheticPercent > 100 {
		return fmt.Errorf("max_lining_synthetic_percent out of range: %v", t.policy.MaxLiningSyntheticPercent)
	}
	if t.policy.ApprovedReason == "" {
		return errors.New("approved_reason missing")
	}
	return nil
}

// Policy returns the evaluation thresholds.
func (t *Table) Policy() Policy {
	return t.policy
}

// Terms exposes a copy of the reference substrings for a category (primarily for the API
// and tests).
func (t *Table) Terms(c Category) []string {
	var src []string
	switch c {
	case Natural:
		src = t.natural
	case SemiSynthetic:
		src = t.semiSynthetic
	case Banned:
		src = t.banned
	}
	return append([]string(nil), src...)
}

// LiningExceptions returns a copy of the fibers tolerated in lining up to the cap.
func (t *Table) LiningExceptions() []string {
	return append([]string(nil), t.liningExceptions...)
}

func mustParseTable(data []byte) *Table {
	t, err := ParseTable(data)
	if err != nil {
		panic(fmt.Sprintf("embedded fiber table: %v", err))
	}
	return t
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		term = normalizeFiber(term)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}

func normalizeFiber(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
