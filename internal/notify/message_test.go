package notify

import (
	"testing"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

func TestFormatAmount(t *testing.T) {
	tests := map[int64]string{0: "0.00 RWF", 5: "0.05 RWF", 10000: "100.00 RWF", 123456: "1234.56 RWF"}
	for in, want := range tests {
		if got := FormatAmount(in); got != want {
			t.Errorf("%d: expected %q, got %q", in, want, got)
		}
	}
}

func TestPlacedMessages(t *testing.T) {
	p := orders.OrderPlacedPayload{Confirmation: orders.Confirmation{
		OrderID:    "order-1",
		Items:      []orders.LineItem{{ProductName: "Jacket", Size: "M", Qty: 2}, {ProductName: "Scarf", Qty: 1}},
		TotalCents: 11200,
		Phone:      "+250788000000",
	}}

	msgs := placedMessages(p, "")
	if len(msgs) != 2 || msgs[0].Channel != ChannelAdminInbox || msgs[1].Channel != ChannelBuyerWhatsApp {
		t.Fatalf("Expected inbox and buyer messages without an admin phone, got %+v", msgs)
	}
	for _, m := range msgs {
		if m.IdempotencyKey != "order-1" {
			t.Errorf("Expected the order id as key, got %q", m.IdempotencyKey)
		}
	}
	if msgs[0].Body != "New order placed. Items: 2, Total: 112.00 RWF" {
		t.Errorf("unexpected admin body %q", msgs[0].Body)
	}
	if got := itemSummary(p.Items); got != "2x Jacket (M), 1x Scarf" {
		t.Errorf("unexpected summary %q", got)
	}

	if msgs := placedMessages(p, "+250700000001"); len(msgs) != 3 {
		t.Errorf("Expected 3 messages with an admin phone, got %d", len(msgs))
	}
}

func TestStatusMessagesNeedPhone(t *testing.T) {
	if msgs := statusMessages(orders.OrderStatusChangedPayload{OrderID: "o", To: orders.StatusPaid}); len(msgs) != 0 {
		t.Errorf("Expected no message without a phone, got %d", len(msgs))
	}
	msgs := statusMessages(orders.OrderStatusChangedPayload{OrderID: "o", Phone: "1", To: orders.StatusPaid})
	if len(msgs) != 1 || msgs[0].IdempotencyKey != "o:paid" {
		t.Errorf("Expected one message keyed o:paid, got %+v", msgs)
	}
}
