package orders

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusAwaitingPayment, true},
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusDelivered, false},
		{StatusAwaitingPayment, StatusPaid, true},
		{StatusAwaitingPayment, StatusPending, false},
		{StatusProcessing, StatusDelivered, true},
		{StatusPaid, StatusDelivered, true},
		{StatusPaid, StatusPending, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{Status("shipped"), StatusDelivered, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []Status{StatusDelivered, StatusCancelled} {
		if !s.Terminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}
	if StatusPaid.Terminal() || Status("nope").Terminal() {
		t.Errorf("Expected paid and unknown statuses not to be terminal")
	}
}

func TestProductTransitions(t *testing.T) {
	if CanTransitionProduct(ProductAvailable, ProductSold) {
		t.Errorf("available must go through reserved before sold")
	}
	for _, tr := range [][2]ProductStatus{
		{ProductAvailable, ProductReserved},
		{ProductReserved, ProductSold},
		{ProductReserved, ProductAvailable},
		{ProductSold, ProductAvailable},
	} {
		if !CanTransitionProduct(tr[0], tr[1]) {
			t.Errorf("Expected %s -> %s allowed", tr[0], tr[1])
		}
	}
}
