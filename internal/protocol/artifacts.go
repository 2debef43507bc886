package protocol

// BudgetArtifact declares the token budget for a run.
type BudgetArtifact struct {
	Header
	Budget       Budget `json:"budget"`
	PriceListRef *Ref   `json:"priceListRef,omitempty"`
}

type Budget struct {
	Tokens float64 `json:"tokens"`
}

// PriceListInput is the per-unit price list a receipt is computed against.
type PriceListInput struct {
	Header
	Items []PriceItem `json:"items"`
}

type PriceItem struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	UnitCost float64 `json:"unitCost"`
}

const (
	LineItemApproved = "approved"
	LineItemDenied   = "denied"
)

// BudgetReceiptArtifact is the priced answer to a budget request.
type BudgetReceiptArtifact struct {
	Header
	BudgetRef    Ref        `json:"budgetRef,omitempty"`
	PriceListRef *Ref       `json:"priceListRef,omitempty"`
	LineItems    []LineItem `json:"lineItems"`
	Remaining    float64    `json:"remaining"`
}

type LineItem struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	UnitCost float64 `json:"unitCost"`
	Quantity float64 `json:"quantity,omitempty"`
	Status   string  `json:"status,omitempty"`
}

// SpendRequest is one raw spend input; Quantity may be missing or garbage.
type SpendRequest struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	Quantity float64 `json:"quantity"`
}

type SpendEvent struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Quantity  float64 `json:"quantity"`
	UnitCost  float64 `json:"unitCost"`
	TotalCost float64 `json:"totalCost"`
}

type BudgetLedgerArtifact struct {
	Header
	Remaining   float64      `json:"remaining"`
	SpendEvents []SpendEvent `json:"spendEvents"`
	BudgetRef   Ref          `json:"budgetRef"`
	ReceiptRef  Ref          `json:"receiptRef"`
}
