package match

import (
	"regexp"
	"strings"

	"intertexe/backend/internal/fabric"
)

var (
	whitespace   = regexp.MustCompile(`\s+`)
	aliasJoiners = regexp.MustCompile(`\s*[-/&+]\s*`)
)

// canonicalNames maps lower-cased fiber spellings seen on retailer pages to display names.
var canonicalNames = map[string]string{
	"spandex":          "Elastane",
	"lycra":            "Elastane",
	"elastan":          "Elastane",
	"elasthanne":       "Elastane",
	"elastane":         "Elastane",
	"elastane spandex": "Elastane",
	"spandex elastane": "Elastane",
	"elastane lycra":   "Elastane",
	"polyamide":        "Polyamide",
	"nylon":            "Nylon",
	"polyester":        "Polyester",
	"viscose":          "Viscose",
	"rayon":            "Viscose",
	"viscose rayon":    "Viscose",
	"lyocell":          "Lyocell",
	"tencel":           "Tencel",
	"tencel lyocell":   "Tencel Lyocell",
	"modal":            "Modal",
	"cupro":            "Cupro",
	"cotton":           "Cotton",
	"linen":            "Linen",
	"flax":             "Linen",
	"silk":             "Silk",
	"wool":             "Wool",
	"cashmere":         "Cashmere",
}

// FiberProfile captures the normalization output for a raw fiber name.
type FiberProfile struct {
	Original  string
	Key       string
	Canonical string
	Category  fabric.Category
}

// NormalizeFiber resolves a raw fiber name to its canonical display form and category.
func NormalizeFiber(table *fabric.Table, input string) FiberProfile {
	key := Key(input)
	canonical := strings.TrimSpace(whitespace.ReplaceAllString(input, " "))
	if name, ok := canonicalNames[key]; ok {
		canonical = name
	}
	if table == nil {
		table = fabric.DefaultTable()
	}
	return FiberProfile{
		Original:  input,
		Key:       key,
		Canonical: canonical,
		Category:  table.Classify(canonical),
	}
}

// CanonicalFiber returns the display name for a raw fiber name, e.g. "Elastane-Spandex"
// becomes "Elastane". Unknown names are returned with whitespace collapsed.
func CanonicalFiber(input string) string {
	key := Key(input)
	if name, ok := canonicalNames[key]; ok {
		return name
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(input, " "))
}

// Key lower-cases a fiber name and folds joiners ("-", "/", "&", "+") and runs of
// whitespace into single spaces.
func Key(input string) string {
	lower := strings.ToLower(strings.TrimSpace(input))
	lower = aliasJoiners.ReplaceAllString(lower, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(lower, " "))
}

// CanonicalEntries rewrites fiber names of parsed entries to their display form. Percent
// and lining flags are copied unchanged.
func CanonicalEntries(entries []fabric.FiberEntry) []fabric.FiberEntry {
	out := make([]fabric.FiberEntry, 0, len(entries))
	for _, entry := range entries {
		entry.Fiber = CanonicalFiber(entry.Fiber)
		out = append(out, entry)
	}
	return out
}
