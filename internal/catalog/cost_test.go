package catalog

import (
	"math"
	"testing"

	"github.com/davidahmann/proofofchoice/pkg/types"
)

func optionsWithCosts(costs ...int64) []types.DecisionOption {
	out := make([]types.DecisionOption, len(costs))
	for i, c := range costs {
		out[i] = types.DecisionOption{ID: string(rune('a' + i)), Title: "opt", CostImpact: c}
	}
	return out
}

func TestCostPercentagesEqualCosts(t *testing.T) {
	got := CostPercentages(optionsWithCosts(100, 100, 100))
	for i, pct := range got {
		if pct != 50 {
			t.Fatalf("option %d: expected 50, got %v", i, pct)
		}
	}
}

func TestCostPercentagesFloor(t *testing.T) {
	got := CostPercentages(optionsWithCosts(0, 50, 100))
	want := []float64{10, 50, 100}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("option %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestCostPercentagesNegativeImpact(t *testing.T) {
	got := CostPercentages(optionsWithCosts(-2000, 0, 2000))
	want := []float64{10, 50, 100}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("option %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestCostPercentagesWideRange(t *testing.T) {
	got := CostPercentages(optionsWithCosts(math.MinInt64/2-10, 0, math.MaxInt64/2+10))
	if got[0] != 10 || got[2] != 100 {
		t.Fatalf("unexpected extremes: %v", got)
	}
	if math.Abs(got[1]-50) > 0.001 {
		t.Fatalf("expected midpoint near 50, got %v", got[1])
	}
}

func TestCostPercentagesEmpty(t *testing.T) {
	if got := CostPercentages(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestCostsBands(t *testing.T) {
	costs := Costs(optionsWithCosts(5000, 8000, 6500))
	if costs[0].Band != CostLow || costs[1].Band != CostHigh || costs[2].Band != CostMedium {
		t.Fatalf("unexpected bands: %+v", costs)
	}
	if costs[2].Percent != 50 {
		t.Fatalf("expected midpoint at 50, got %v", costs[2].Percent)
	}
}
