package orders

import (
	"errors"
	"testing"
)

func TestApplyPayment(t *testing.T) {
	paid, debt, err := ApplyPayment(5000, 1000, 1500)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if paid != 2500 || debt != 2500 {
		t.Errorf("Expected paid 2500 debt 2500, got %d %d", paid, debt)
	}

	// overpayment never turns into negative debt
	_, debt, _ = ApplyPayment(5000, 4000, 3000)
	if debt != 0 {
		t.Errorf("Expected debt 0, got %d", debt)
	}

	for _, amount := range []int64{0, -10} {
		if _, _, err := ApplyPayment(5000, 0, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %d: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
}

func TestSummarize(t *testing.T) {
	cost := int64(2000)
	rows := []AccountingRow{
		{ProductID: "a", PriceCents: 5000, PurchasePriceCents: &cost, PaidAmountCents: 5000},
		{ProductID: "b", PriceCents: 3000, PaidAmountCents: 1000, DebtCents: 2000},
	}
	s := Summarize(rows)
	if s.CashReceivedCents != 6000 || s.PurchasesCents != 2000 || s.DebtCents != 2000 || s.ProfitCents != 4000 {
		t.Errorf("unexpected summary %+v", s)
	}
	if empty := Summarize(nil); empty.Rows == nil {
		t.Errorf("Expected non-nil rows for an empty summary")
	}
}

func TestValidateProduct(t *testing.T) {
	ok := Product{Name: "Coat", PriceCents: 100, Condition: ConditionNew, Sizes: []SizeStock{{Label: "M", Stock: 0}}}
	if err := ValidateProduct(ok); err != nil {
		t.Fatalf("Expected valid, got %v", err)
	}

	bad := map[string]Product{
		"no name":        {PriceCents: 100, Condition: ConditionNew},
		"zero price":     {Name: "x", Condition: ConditionNew},
		"bad condition":  {Name: "x", PriceCents: 1, Condition: "mint"},
		"empty label":    {Name: "x", PriceCents: 1, Condition: ConditionUsed, Sizes: []SizeStock{{Label: " "}}},
		"duplicate size": {Name: "x", PriceCents: 1, Condition: ConditionUsed, Sizes: []SizeStock{{Label: "M"}, {Label: "M"}}},
		"negative stock": {Name: "x", PriceCents: 1, Condition: ConditionUsed, Sizes: []SizeStock{{Label: "M", Stock: -1}}},
	}
	for name, p := range bad {
		if err := ValidateProduct(p); !errors.Is(err, ErrInvalidProduct) {
			t.Errorf("%s: expected ErrInvalidProduct, got %v", name, err)
		}
	}
}

func TestProductStockHelpers(t *testing.T) {
	p := Product{Sizes: []SizeStock{{Label: "S", Stock: 1}, {Label: "M", Stock: 2}}}
	if !p.HasSizes() || p.TotalStock() != 3 {
		t.Errorf("Expected sized product with 3 units, got %+v", p)
	}
	if n, ok := p.StockFor("M"); !ok || n != 2 {
		t.Errorf("Expected M stock 2, got %d %v", n, ok)
	}
	if _, ok := p.StockFor("XL"); ok {
		t.Errorf("Expected XL unknown")
	}
	items := []LineItem{{Qty: 2, PriceCents: 5000}, {Qty: 1, PriceCents: 1200}}
	if SumItems(items) != 11200 {
		t.Errorf("Expected 11200, got %d", SumItems(items))
	}
}
