// Package notify fans order events out to the admin inbox and WhatsApp. The
// API side only writes outbox rows; delivery happens in the worker, which
// dedupes every (idempotency key, channel) pair before sending.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

const (
	ChannelAdminInbox    = "admin_inbox"
	ChannelAdminWhatsApp = "admin_whatsapp"
	ChannelBuyerWhatsApp = "buyer_whatsapp"
)

type Message struct {
	Channel        string
	Recipient      string
	Title          string
	Body           string
	Link           string
	IdempotencyKey string
}

// Sink delivers one message. Delivery is at least once; sinks that can
// dedupe on IdempotencyKey should.
type Sink interface {
	Send(ctx context.Context, m Message) error
}

func FormatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d RWF", cents/100, cents%100)
}

func itemSummary(items []orders.LineItem) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		s := fmt.Sprintf("%dx %s", it.Qty, it.ProductName)
		if it.Size != "" {
			s += " (" + it.Size + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", ")
}

// placedMessages builds the admin notification and the buyer acknowledgment
// of one placed order.
func placedMessages(p orders.OrderPlacedPayload, adminPhone string) []Message {
	key := p.IdempotencyKey
	if key == "" {
		key = p.OrderID
	}
	summary := fmt.Sprintf("New order placed. Items: %d, Total: %s", len(p.Items), FormatAmount(p.TotalCents))
	out := []Message{{
		Channel:        ChannelAdminInbox,
		Recipient:      "admin",
		Title:          "New Order",
		Body:           summary,
		Link:           "/admin/orders/" + p.OrderID,
		IdempotencyKey: key,
	}}
	if adminPhone != "" {
		out = append(out, Message{
			Channel:        ChannelAdminWhatsApp,
			Recipient:      adminPhone,
			Title:          "New Order",
			Body:           fmt.Sprintf("%s. %s. Phone %s, %s", summary, itemSummary(p.Items), p.Phone, p.Address),
			IdempotencyKey: key,
		})
	}
	if p.Phone != "" {
		out = append(out, Message{
			Channel:        ChannelBuyerWhatsApp,
			Recipient:      p.Phone,
			Title:          "Order Received",
			Body:           fmt.Sprintf("Thank you! Order %s (%s) total %s is %s.", shortID(p.OrderID), itemSummary(p.Items), FormatAmount(p.TotalCents), p.Status),
			IdempotencyKey: key,
		})
	}
	return out
}

func statusMessages(p orders.OrderStatusChangedPayload) []Message {
	if p.Phone == "" {
		return nil
	}
	key := p.IdempotencyKey
	if key == "" {
		key = orders.StatusChangeKey(p.OrderID, p.To)
	}
	return []Message{{
		Channel:        ChannelBuyerWhatsApp,
		Recipient:      p.Phone,
		Title:          "Order Update",
		Body:           fmt.Sprintf("Order %s is now %s.", shortID(p.OrderID), strings.ReplaceAll(string(p.To), "_", " ")),
		IdempotencyKey: key,
	}}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
