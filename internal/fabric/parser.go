package fabric

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	segmentSplitter = regexp.MustCompile(`[,;]`)
	// "99% Cotton", "99%Cotton 1%Elastane", ".5% Elastane"
	percentFirst = regexp.MustCompile(`(\d*\.?\d+)\s*%\s*([^\d%.\r\n]+)`)
	// "Cotton 99%", "Cotton 99% Elastane 1%", "Elastane .5%"
	fiberFirst      = regexp.MustCompile(`([^\d%\r\n]+?)\s*(\d*\.?\d+)\s*%`)
	trailingPercent = regexp.MustCompile(`\d\s*%\s*$`)
)

const fiberCutset = " \t\r\n:.-–"

// ParseResult is the outcome of parsing a free-text composition.
type ParseResult struct {
	Entries []FiberEntry `json:"entries"`
	// Unparsed lists the non-blank segments that matched neither shape.
	Unparsed []string `json:"unparsed,omitempty"`
}

// ParseFabricString converts free text such as "99%Cotton 1%Elastane-Spandex" into fiber
// entries. Segments that cannot be read are dropped. Entries are never marked as lining.
func ParseFabricString(text string) []FiberEntry {
	return ParseDetailed(text).Entries
}

// ParseDetailed parses like ParseFabricString and also reports the dropped segments.
func ParseDetailed(text string) ParseResult {
	result := ParseResult{Entries: []FiberEntry{}}
	for _, segment := range segmentSplitter.Split(text, -1) {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		entries := parseSegment(segment)
		if len(entries) == 0 {
			result.Unparsed = append(result.Unparsed, strings.TrimSpace(segment))
			continue
		}
		result.Entries = append(result.Entries, entries...)
	}
	return result
}

// parseSegment tries the percent-first shape, then the fiber-first shape. A segment that
// ends in a percentage is read fiber-first only.
func parseSegment(segment string) []FiberEntry {
	if !trailingPercent.MatchString(segment) {
		if entries := collectEntries(percentFirst.FindAllStringSubmatch(segment, -1), 1, 2); len(entries) > 0 {
			return entries
		}
	}
	return collectEntries(fiberFirst.FindAllStringSubmatch(segment, -1), 2, 1)
}

func collectEntries(matches [][]string, percentIdx, fiberIdx int) []FiberEntry {
	var out []FiberEntry
	for _, m := range matches {
		fiber := strings.Trim(m[fiberIdx], fiberCutset)
		if !hasLetter(fiber) {
			continue
		}
		percent, err := strconv.ParseFloat(m[percentIdx], 64)
		if err != nil {
			continue
		}
		out = append(out, FiberEntry{Fiber: fiber, Percent: percent})
	}
	return out
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
