package fabric

import (
	"reflect"
	"testing"
)

func TestEvaluateProductScenarios(t *testing.T) {
	tests := []struct {
		name          string
		entries       []FiberEntry
		approved      bool
		natural       float64
		synthetic     float64
		expectReasons []string
	}{
		{
			name:          "pure cotton",
			entries:       []FiberEntry{{Fiber: "Cotton", Percent: 100}},
			approved:      true,
			natural:       100,
			synthetic:     0,
			expectReasons: []string{"Meets INTERTEXE fabric standards"},
		},
		{
			name:          "one percent elastane",
			entries:       []FiberEntry{{Fiber: "Cotton", Percent: 99}, {Fiber: "Elastane", Percent: 1}},
			approved:      false,
			natural:       99,
			synthetic:     1,
			expectReasons: []string{"Contains 1% Elastane in main fabric (banned)"},
		},
		{
			name:          "cotton viscose blend",
			entries:       []FiberEntry{{Fiber: "Cotton", Percent: 50}, {Fiber: "Viscose", Percent: 30}},
			approved:      true,
			natural:       50,
			synthetic:     30,
			expectReasons: []string{"Meets INTERTEXE fabric standards"},
		},
		{
			name:          "lining over tolerance",
			entries:       []FiberEntry{{Fiber: "Cotton", Percent: 100}, {Fiber: "Polyester", Percent: 20, IsLining: true}},
			approved:      false,
			natural:       100,
			synthetic:     20,
			expectReasons: []string{"Lining contains 20% synthetic fibers (maximum 15%)"},
		},
		{
			name:          "lining within tolerance",
			entries:       []FiberEntry{{Fiber: "Wool", Percent: 100}, {Fiber: "Nylon", Percent: 15, IsLining: true}},
			approved:      true,
			natural:       100,
			synthetic:     15,
			expectReasons: []string{"Lining contains 15% synthetic fibers (within 15% tolerance)"},
		},
		{
			name:          "non exception banned lining",
			entries:       []FiberEntry{{Fiber: "Silk", Percent: 100}, {Fiber: "Acrylic", Percent: 5, IsLining: true}},
			approved:      false,
			natural:       100,
			synthetic:     5,
			expectReasons: []string{"Lining contains 5% Acrylic (not allowed even in lining)"},
		},
		{
			name:          "natural lining",
			entries:       []FiberEntry{{Fiber: "Linen", Percent: 100}, {Fiber: "Cupro", Percent: 100, IsLining: true}},
			approved:      true,
			natural:       100,
			synthetic:     0,
			expectReasons: []string{"Meets INTERTEXE fabric standards"},
		},
		{
			name:          "below threshold",
			entries:       []FiberEntry{{Fiber: "Cotton", Percent: 40}, {Fiber: "Modal", Percent: 29.5}},
			approved:      false,
			natural:       40,
			synthetic:     29.5,
			expectReasons: []string{"Only 69.5% natural or semi-synthetic fibers in main fabric (minimum 70%)"},
		},
		{
			name:          "exactly at threshold",
			entries:       []FiberEntry{{Fiber: "Cotton", Percent: 70}},
			approved:      true,
			natural:       70,
			synthetic:     0,
			expectReasons: []string{"Meets INTERTEXE fabric standards"},
		},
		{
			name:          "empty composition",
			entries:       nil,
			approved:      false,
			natural:       0,
			synthetic:     0,
			expectReasons: []string{"Only 0% natural or semi-synthetic fibers in main fabric (minimum 70%)"},
		},
		{
			name: "multiple banned entries",
			entries: []FiberEntry{
				{Fiber: "Cotton", Percent: 60},
				{Fiber: "Polyester", Percent: 35},
				{Fiber: "Spandex", Percent: 5},
			},
			approved:  false,
			natural:   60,
			synthetic: 40,
			expectReasons: []string{
				"Contains 35% Polyester in main fabric (banned)",
				"Contains 5% Spandex in main fabric (banned)",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := EvaluateProduct(Composition{Compositions: tc.entries})
			if result.Approved != tc.approved {
				t.Fatalf("expected approved=%v got %v (%v)", tc.approved, result.Approved, result.Reasons)
			}
			if result.NaturalPercent != tc.natural {
				t.Fatalf("expected natural %v got %v", tc.natural, result.NaturalPercent)
			}
			if result.SyntheticPercent != tc.synthetic {
				t.Fatalf("expected synthetic %v got %v", tc.synthetic, result.SyntheticPercent)
			}
			if !reflect.DeepEqual(result.Reasons, tc.expectReasons) {
				t.Fatalf("expected reasons %q got %q", tc.expectReasons, result.Reasons)
			}
		})
	}
}

func TestEvaluateBannedMainFabricAlwaysFails(t *testing.T) {
	for _, pct := range []float64{0, 0.01, 0.5, 1, 30} {
		result := EvaluateProduct(Composition{Compositions: []FiberEntry{
			{Fiber: "Cashmere", Percent: 100},
			{Fiber: "Polyurethane", Percent: pct},
		}})
		if result.Approved {
			t.Fatalf("expected failure for %v%% polyurethane", pct)
		}
		if len(result.Reasons) == 0 {
			t.Fatalf("expected reasons for %v%% polyurethane", pct)
		}
	}
}

func TestEvaluateBannedShortCircuitsLining(t *testing.T) {
	result := EvaluateProduct(Composition{Compositions: []FiberEntry{
		{Fiber: "Cotton", Percent: 90},
		{Fiber: "Nylon", Percent: 10},
		{Fiber: "Acrylic", Percent: 100, IsLining: true},
	}})
	want := []string{"Contains 10% Nylon in main fabric (banned)"}
	if result.Approved || !reflect.DeepEqual(result.Reasons, want) {
		t.Fatalf("expected main-fabric failure only, got %+v", result)
	}
}

func TestEvaluateReasonsNeverEmpty(t *testing.T) {
	inputs := [][]FiberEntry{
		nil,
		{{Fiber: "Cotton", Percent: 100}},
		{{Fiber: "Nylon", Percent: 100}},
		{{Fiber: "Cotton", Percent: 100}, {Fiber: "Polyamide", Percent: 3, IsLining: true}},
		{{Fiber: "", Percent: 0, IsLining: true}},
	}
	for i, entries := range inputs {
		if result := EvaluateProduct(Composition{Compositions: entries}); len(result.Reasons) == 0 {
			t.Fatalf("case %d: empty reasons", i)
		}
	}
}

func TestEvaluateUsesTablePolicy(t *testing.T) {
	table, err := ParseTable([]byte(`
policy:
  min_natural_percent: 90
  max_lining_synthetic_percent: 5
  approved_reason: ok
categories:
  natural: [cotton]
  semi-synthetic: [viscose]
lining_exceptions: [polyester]
`))
	if err != nil {
		t.Fatalf("parse table: %v", err)
	}

	blend := table.Evaluate(Composition{Compositions: []FiberEntry{{Fiber: "Cotton", Percent: 50}, {Fiber: "Viscose", Percent: 30}}})
	if blend.Approved {
		t.Fatalf("expected 80%% blend to fail a 90%% threshold")
	}

	lined := table.Evaluate(Composition{Compositions: []FiberEntry{{Fiber: "Cotton", Percent: 100}, {Fiber: "Polyester", Percent: 10, IsLining: true}}})
	if lined.Approved {
		t.Fatalf("expected 10%% lining to fail a 5%% cap")
	}

	plain := table.Evaluate(Composition{Compositions: []FiberEntry{{Fiber: "Cotton", Percent: 100}}})
	if !plain.Approved || !reflect.DeepEqual(plain.Reasons, []string{"ok"}) {
		t.Fatalf("unexpected result %+v", plain)
	}
}
