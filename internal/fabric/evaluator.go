package fabric

import (
	"fmt"
	"strconv"
)

// FiberEntry is one line item of a composition.
type FiberEntry struct {
	Fiber    string  `json:"fiber"`
	Percent  float64 `json:"percent"`
	IsLining bool    `json:"is_lining,omitempty"`
}

// Composition is the declared fiber make-up of a product. Percentages are not required
// to sum to 100.
type Composition struct {
	ProductName  string       `json:"product_name,omitempty"`
	Compositions []FiberEntry `json:"compositions"`
}

// Evaluation is the verdict for a composition. Reasons is never empty.
type Evaluation struct {
	Approved         bool     `json:"approved"`
	NaturalPercent   float64  `json:"natural_percent"`
	SyntheticPercent float64  `json:"synthetic_percent"`
	Reasons          []string `json:"reasons"`
}

// EvaluateProduct evaluates a composition against the default table.
func EvaluateProduct(c Composition) Evaluation {
	return defaultTable.Evaluate(c)
}

// Evaluate applies the fabric policy. Main fabric may contain no banned fiber and must be
// at least MinNaturalPercent natural plus semi-synthetic. Lining tolerates the exception
// fibers up to MaxLiningSyntheticPercent and no other banned fiber. The first failing
// check decides the verdict.
func (t *Table) Evaluate(c Composition) Evaluation {
	var main, lining []FiberEntry
	for _, entry := range c.Compositions {
		if entry.IsLining {
			lining = append(lining, entry)
		} else {
			main = append(main, entry)
		}
	}

	var naturalPct, semiPct, bannedPct float64
	var bannedEntries int
	reasons := []string{}
	for _, entry := range main {
		switch t.Classify(entry.Fiber) {
		case Natural:
			naturalPct += entry.Percent
		case SemiSynthetic:
			semiPct += entry.Percent
		default:
			bannedPct += entry.Percent
			bannedEntries++
			reasons = append(reasons, fmt.Sprintf("Contains %s%% %s in main fabric (banned)", formatPercent(entry.Percent), entry.Fiber))
		}
	}

	// Any banned main-fabric entry fails, including one declared at 0%.
	if bannedEntries > 0 {
		return Evaluation{
			Approved:         false,
			NaturalPercent:   naturalPct,
			SyntheticPercent: bannedPct + semiPct,
			Reasons:          reasons,
		}
	}

	acceptable := naturalPct + semiPct
	if acceptable < t.policy.MinNaturalPercent {
		reasons = append(reasons, fmt.Sprintf("Only %s%% natural or semi-synthetic fibers in main fabric (minimum %s%%)",
			formatPercent(acceptable), formatPercent(t.policy.MinNaturalPercent)))
		return Evaluation{
			Approved:         false,
			NaturalPercent:   naturalPct,
			SyntheticPercent: bannedPct + semiPct,
			Reasons:          reasons,
		}
	}

	var liningBannedPct float64
	for _, entry := range lining {
		if t.IsLiningException(entry.Fiber) {
			liningBannedPct += entry.Percent
			continue
		}
		if t.Classify(entry.Fiber) == Banned {
			reasons = append(reasons, fmt.Sprintf("Lining contains %s%% %s (not allowed even in lining)", formatPercent(entry.Percent), entry.Fiber))
			return Evaluation{
				Approved:         false,
				NaturalPercent:   naturalPct,
				SyntheticPercent: semiPct + liningBannedPct + entry.Percent,
				Reasons:          reasons,
			}
		}
	}

	if liningBannedPct > t.policy.MaxLiningSyntheticPercent {
		reasons = append(reasons, fmt.Sprintf("Lining contains %s%% synthetic fibers (maximum %s%%)",
			formatPercent(liningBannedPct), formatPercent(t.policy.MaxLiningSyntheticPercent)))
		return Evaluation{
			Approved:         false,
			NaturalPercent:   naturalPct,
			SyntheticPercent: semiPct + liningBannedPct,
			Reasons:          reasons,
		}
	}

	if liningBannedPct > 0 {
		reasons = append(reasons, fmt.Sprintf("Lining contains %s%% synthetic fibers (within %s%% tolerance)",
			formatPercent(liningBannedPct), formatPercent(t.policy.MaxLiningSyntheticPercent)))
	}
	return Evaluation{
		Approved:         true,
		NaturalPercent:   naturalPct,
		SyntheticPercent: bannedPct + semiPct + liningBannedPct,
		Reasons:          withFallbackReason(reasons, t.policy.ApprovedReason),
	}
}

func withFallbackReason(reasons []string, fallback string) []string {
	if len(reasons) == 0 {
		return []string{fallback}
	}
	return reasons
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
