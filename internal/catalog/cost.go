package catalog

import "github.com/davidahmann/proofofchoice/pkg/types"

const (
	costFloorPercent = 10.0
	costEqualPercent = 50.0
)

type CostBand string

const (
	CostLow    CostBand = "low"
	CostMedium CostBand = "medium"
	CostHigh   CostBand = "high"
)

// OptionCost is the relative cost position of one option for comparison views.
type OptionCost struct {
	OptionID   string   `json:"optionId"`
	CostImpact int64    `json:"costImpact"`
	Percent    float64  `json:"percent"`
	Band       CostBand `json:"band"`
}

// CostPercentages ranks options on a 0-100 scale between the cheapest and the most
// expensive. Results are floored at 10; when every cost is equal each option gets 50.
func CostPercentages(options []types.DecisionOption) []float64 {
	if len(options) == 0 {
		return nil
	}
	lo, hi := options[0].CostImpact, options[0].CostImpact
	for _, opt := range options[1:] {
		lo = min(lo, opt.CostImpact)
		hi = max(hi, opt.CostImpact)
	}

	out := make([]float64, len(options))
	for i, opt := range options {
		if hi == lo {
			out[i] = costEqualPercent
			continue
		}
		pct := (float64(opt.CostImpact) - float64(lo)) / (float64(hi) - float64(lo)) * 100
		out[i] = max(pct, costFloorPercent)
	}
	return out
}

// Band buckets a percentage the way the comparison bar colours it.
func Band(pct float64) CostBand {
	switch {
	case pct < 33:
		return CostLow
	case pct < 66:
		return CostMedium
	default:
		return CostHigh
	}
}

func Costs(options []types.DecisionOption) []OptionCost {
	pcts := CostPercentages(options)
	out := make([]OptionCost, len(options))
	for i, opt := range options {
		out[i] = OptionCost{OptionID: opt.ID, CostImpact: opt.CostImpact, Percent: pcts[i], Band: Band(pcts[i])}
	}
	return out
}
