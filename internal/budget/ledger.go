// Package budget holds the spend ledger reducer and the cap enforcer.
//
// Both are lenient by contract: missing or non-numeric inputs fall back to
// cost 0, quantity 1 and remaining 0 instead of failing.
package budget

import (
	"math"

	"agentkernel.ai/internal/protocol"
)

type LedgerResult struct {
	Ledger protocol.BudgetLedgerArtifact `json:"ledger"`
}

// UpdateLedger prices spend events against the receipt's non-denied line
// items. Remaining is not clamped; overspend shows up as a negative balance.
// A nil receiptRef is derived from the receipt header.
func UpdateLedger(receipt protocol.BudgetReceiptArtifact, spend []protocol.SpendRequest, meta *protocol.Meta, receiptRef *protocol.Ref) LedgerResult {
	events := make([]protocol.SpendEvent, 0, len(spend))
	spent := 0.0
	for _, s := range spend {
		q := NormalizeQuantity(s.Quantity)
		unit := unitCost(receipt.LineItems, s.ID, s.Kind)
		total := unit * q
		spent += total
		events = append(events, protocol.SpendEvent{
			ID:        s.ID,
			Kind:      s.Kind,
			Quantity:  q,
			UnitCost:  unit,
			TotalCost: total,
		})
	}

	var m protocol.Meta
	if meta != nil {
		m = *meta
	}

	budgetRef := receipt.BudgetRef
	if budgetRef.ID == "" {
		budgetRef = protocol.UnknownRef(protocol.SchemaBudget)
	}
	rr := protocol.RefOf(receipt.Header, protocol.SchemaBudgetReceipt)
	if receiptRef != nil && receiptRef.ID != "" {
		rr = *receiptRef
	}

	return LedgerResult{Ledger: protocol.BudgetLedgerArtifact{
		Header:      protocol.NewHeader(protocol.SchemaBudgetLedger, m),
		Remaining:   finiteOr(receipt.Remaining, 0) - spent,
		SpendEvents: events,
		BudgetRef:   budgetRef,
		ReceiptRef:  rr,
	}}
}

// NormalizeQuantity maps non-finite or sub-unit quantities to 1 and floors
// fractional ones, so every recorded quantity is an integer >= 1.
func NormalizeQuantity(q float64) float64 {
	if math.IsNaN(q) || math.IsInf(q, 0) || q < 1 {
		return 1
	}
	return math.Floor(q)
}

func unitCost(items []protocol.LineItem, id, kind string) float64 {
	for _, li := range items {
		if li.ID != id || li.Kind != kind || li.Status == protocol.LineItemDenied {
			continue
		}
		return finiteOr(li.UnitCost, 0)
	}
	return 0
}

func finiteOr(f, fallback float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return f
}

// Spent sums the totals of a ledger's spend events.
func Spent(l protocol.BudgetLedgerArtifact) float64 {
	sum := 0.0
	for _, e := range l.SpendEvents {
		sum += e.TotalCost
	}
	return sum
}
