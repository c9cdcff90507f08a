package allocation

import (
	"github.com/shopspring/decimal"
)

// PlannedCandidate is one ranked candidate with its suggested share of the
// requirement. IsSuggested marks the candidates the greedy walk actually used.
type PlannedCandidate struct {
	Candidate
	SuggestedQuantity decimal.Decimal `json:"suggested_quantity"`
	IsSuggested       bool            `json:"is_suggested"`
}

// PlanResult is the planner output for one demand line.
type PlanResult struct {
	Candidates     []PlannedCandidate `json:"candidates"`
	TotalSuggested decimal.Decimal    `json:"total_suggested"`
	Shortfall      decimal.Decimal    `json:"shortfall"`
}

// Plan distributes the required quantity across ranked candidates greedily:
// each candidate takes min(available, remaining) until the requirement is
// covered or the pool is exhausted. Identical input always yields identical
// output.
func Plan(candidates []Candidate, required decimal.Decimal) PlanResult {
	result := PlanResult{
		Candidates:     make([]PlannedCandidate, len(candidates)),
		TotalSuggested: decimal.Zero,
	}

	remaining := required
	for i, c := range candidates {
		planned := PlannedCandidate{Candidate: c}

		if remaining.IsPositive() {
			take := decimal.Min(c.AvailableQuantity, remaining)
			planned.SuggestedQuantity = take
			planned.IsSuggested = true
			remaining = remaining.Sub(take)
			result.TotalSuggested = result.TotalSuggested.Add(take)
		}

		result.Candidates[i] = planned
	}

	result.Shortfall = decimal.Max(decimal.Zero, required.Sub(result.TotalSuggested))
	return result
}
