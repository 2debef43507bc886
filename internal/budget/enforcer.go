package budget

import (
	"math"
	"sort"

	"agentkernel.ai/internal/model"
)

const ActionDownTierOrDrop = "downTierOrDrop"

type EnforceInput struct {
	Selections []model.Selection
	// BudgetTokens is the cap; nil means uncapped.
	BudgetTokens *float64
}

type TrimAction struct {
	ID            string `json:"id"`
	Action        string `json:"action"`
	AmountTrimmed int    `json:"amountTrimmed"`
}

type EnforceResult struct {
	Selections     []model.Selection `json:"selections"`
	Actions        []TrimAction      `json:"actions"`
	TotalRequested float64           `json:"totalRequested"`
	TotalApproved  float64           `json:"totalApproved"`
}

// EnforceBudget fits the requested counts under the cap by removing units
// from the most expensive selection first (stable on input order). It is a
// greedy fit, not a knapsack. Returned selections are copies; their instance
// lists are cut to the approved count.
func EnforceBudget(in EnforceInput) EnforceResult {
	sels := model.CloneSelections(in.Selections)
	if sels == nil {
		sels = []model.Selection{}
	}
	res := EnforceResult{Actions: []TrimAction{}}

	for i := range sels {
		n := requestedCount(sels[i])
		sels[i].ApprovedCount = n
		res.TotalRequested += unitOf(sels[i]) * float64(n)
	}
	res.TotalApproved = res.TotalRequested

	if in.BudgetTokens != nil && res.TotalApproved > *in.BudgetTokens {
		order := make([]int, len(sels))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return unitOf(sels[order[a]]) > unitOf(sels[order[b]])
		})

		budget := *in.BudgetTokens
		for _, idx := range order {
			if !exceeds(res.TotalApproved, budget) {
				break
			}
			unit := unitOf(sels[idx])
			if unit <= 0 {
				// Order is by descending cost, nothing cheaper can help.
				break
			}
			trimmed := trimCount(res.TotalApproved-budget, unit, sels[idx].ApprovedCount)
			sels[idx].ApprovedCount -= trimmed
			res.TotalApproved = approvedTotal(sels)
			// Settle float error at the boundary in either direction.
			for sels[idx].ApprovedCount > 0 && exceeds(res.TotalApproved, budget) {
				sels[idx].ApprovedCount--
				trimmed++
				res.TotalApproved = approvedTotal(sels)
			}
			for trimmed > 0 && !exceeds(res.TotalApproved+unit, budget) {
				sels[idx].ApprovedCount++
				trimmed--
				res.TotalApproved = approvedTotal(sels)
			}
			if trimmed > 0 {
				res.Actions = append(res.Actions, TrimAction{
					ID:            sels[idx].ItemID(),
					Action:        ActionDownTierOrDrop,
					AmountTrimmed: trimmed,
				})
			}
		}
	}

	for i := range sels {
		if len(sels[i].Instances) > sels[i].ApprovedCount {
			sels[i].Instances = sels[i].Instances[:sels[i].ApprovedCount]
		}
	}
	res.Selections = sels
	return res
}

// trimCount is the number of units of cost unit that cover excess, at most have.
func trimCount(excess, unit float64, have int) int {
	if excess <= 0 || have <= 0 {
		return 0
	}
	n := math.Ceil(excess/unit - costEpsilon)
	if n < 0 {
		return 0
	}
	if n >= float64(have) {
		return have
	}
	return int(n)
}

func approvedTotal(sels []model.Selection) float64 {
	total := 0.0
	for _, s := range sels {
		total += unitOf(s) * float64(s.ApprovedCount)
	}
	return total
}

// costEpsilon absorbs float error when comparing token totals to the cap.
const costEpsilon = 1e-9

func exceeds(total, budget float64) bool {
	return total-budget > costEpsilon*math.Max(1, math.Abs(budget))
}

func requestedCount(s model.Selection) int {
	if s.Requested.Count < 0 {
		return 0
	}
	return s.Requested.Count
}

func unitOf(s model.Selection) float64 {
	return finiteOr(s.Applied.Cost, 0)
}

// Tokens is a helper for building EnforceInput.BudgetTokens.
func Tokens(n float64) *float64 { return &n }
