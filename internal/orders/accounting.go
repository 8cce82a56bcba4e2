package orders

import (
	"fmt"
	"strings"
)

// AccountingRow is a sold product as seen by the accounting page.
type AccountingRow struct {
	ProductID          string `json:"product_id"`
	Name               string `json:"name"`
	PriceCents         int64  `json:"price_cents"`
	PurchasePriceCents *int64 `json:"purchase_price_cents,omitempty"`
	PaidAmountCents    int64  `json:"paid_amount_cents"`
	DebtCents          int64  `json:"debt_cents"`
}

type AccountingSummary struct {
	CashReceivedCents int64           `json:"cash_received_cents"`
	PurchasesCents    int64           `json:"purchases_cents"`
	DebtCents         int64           `json:"debt_cents"`
	ProfitCents       int64           `json:"profit_cents"`
	Rows              []AccountingRow `json:"rows"`
}

// Summarize computes cash-basis totals; profit ignores outstanding debt.
func Summarize(rows []AccountingRow) AccountingSummary {
	s := AccountingSummary{Rows: rows}
	for _, r := range rows {
		s.CashReceivedCents += r.PaidAmountCents
		if r.PurchasePriceCents != nil {
			s.PurchasesCents += *r.PurchasePriceCents
		}
		s.DebtCents += r.DebtCents
	}
	s.ProfitCents = s.CashReceivedCents - s.PurchasesCents
	if s.Rows == nil {
		s.Rows = []AccountingRow{}
	}
	return s
}

// ApplyPayment returns the new paid amount and remaining debt after a
// customer pays `amount` towards a product sold on credit.
func ApplyPayment(priceCents, paidCents, amount int64) (newPaid, debt int64, err error) {
	if amount <= 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	newPaid = paidCents + amount
	debt = priceCents - newPaid
	if debt < 0 {
		debt = 0
	}
	return newPaid, debt, nil
}

// ValidateProduct checks what an admin may submit when creating or editing.
func ValidateProduct(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if p.PriceCents <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidProduct)
	}
	switch p.Condition {
	case ConditionNew, ConditionUsed:
	default:
		return fmt.Errorf("%w: condition must be new or used", ErrInvalidProduct)
	}
	seen := map[string]bool{}
	for _, s := range p.Sizes {
		if strings.TrimSpace(s.Label) == "" {
			return fmt.Errorf("%w: empty size label", ErrInvalidProduct)
		}
		if seen[s.Label] {
			return fmt.Errorf("%w: duplicate size %q", ErrInvalidProduct, s.Label)
		}
		seen[s.Label] = true
		if s.Stock < 0 {
			return fmt.Errorf("%w: negative stock for size %q", ErrInvalidProduct, s.Label)
		}
	}
	return nil
}
