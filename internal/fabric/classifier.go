package fabric

import "strings"

// Classification reports how a fiber name was categorised.
type Classification struct {
	Category Category `json:"category"`
	// Matched is the reference substring that decided the category, empty for the
	// closed-world fallback.
	Matched string `json:"matched,omitempty"`
	// Recognized is false when the name matched no reference set at all.
	Recognized bool `json:"recognized"`
}

// ClassifyFiber categorises a fiber name using the default table.
func ClassifyFiber(name string) Category {
	return defaultTable.Classify(name)
}

// Classify normalizes the name and tests substring containment against the natural set,
// then the semi-synthetic set. Names matching neither are banned.
func (t *Table) Classify(name string) Category {
	return t.Lookup(name).Category
}

// Lookup is Classify with the matching reference term attached.
func (t *Table) Lookup(name string) Classification {
	normalized := normalizeFiber(name)
	if term, ok := containsAny(normalized, t.natural); ok {
		return Classification{Category: Natural, Matched: term, Recognized: true}
	}
	if term, ok := containsAny(normalized, t.semiSynthetic); ok {
		return Classification{Category: SemiSynthetic, Matched: term, Recognized: true}
	}
	if term, ok := containsAny(normalized, t.banned); ok {
		return Classification{Category: Banned, Matched: term, Recognized: true}
	}
	return Classification{Category: Banned}
}

// IsLiningException reports whether the fiber is tolerated in lining up to the policy cap.
func (t *Table) IsLiningException(name string) bool {
	_, ok := containsAny(normalizeFiber(name), t.liningExceptions)
	return ok
}

func containsAny(normalized string, terms []string) (string, bool) {
	if normalized == "" {
		return "", false
	}
	for _, term := range terms {
		if strings.Contains(normalized, term) {
			return term, true
		}
	}
	return "", false
}
