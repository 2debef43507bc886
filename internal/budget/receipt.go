package budget

import (
	"math"

	"agentkernel.ai/internal/protocol"
)

// IssueReceipt prices every item of the price list against the budget.
// Items that are non-finite, negative or cost more than the whole budget are
// denied. Remaining is the budget itself; nothing has been spent yet.
func IssueReceipt(b protocol.BudgetArtifact, prices protocol.PriceListInput, meta protocol.Meta) protocol.BudgetReceiptArtifact {
	tokens := finiteOr(b.Budget.Tokens, 0)
	items := make([]protocol.LineItem, 0, len(prices.Items))
	for _, p := range prices.Items {
		status := protocol.LineItemApproved
		if math.IsNaN(p.UnitCost) || math.IsInf(p.UnitCost, 0) || p.UnitCost < 0 || p.UnitCost > tokens {
			status = protocol.LineItemDenied
		}
		items = append(items, protocol.LineItem{ID: p.ID, Kind: p.Kind, UnitCost: p.UnitCost, Quantity: 1, Status: status})
	}
	priceRef := protocol.RefOf(prices.Header, protocol.SchemaPriceList)
	return protocol.BudgetReceiptArtifact{
		Header:       protocol.NewHeader(protocol.SchemaBudgetReceipt, meta),
		BudgetRef:    protocol.RefOf(b.Header, protocol.SchemaBudget),
		PriceListRef: &priceRef,
		LineItems:    items,
		Remaining:    tokens,
	}
}
