package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/google/uuid"
)

// Notifier records confirmations and status changes, deduped by
// idempotency key, and keeps an admin inbox of them.
type Notifier struct {
	mu      sync.Mutex
	placed  []orders.Confirmation
	changes []orders.OrderStatusChangedPayload
	seen    map[string]bool
	inbox   []orders.Notification

	// Fail, when set, is returned by every call without recording.
	Fail error
}

func NewNotifier() *Notifier { return &Notifier{seen: map[string]bool{}} }

func (n *Notifier) OrderPlaced(_ context.Context, c orders.Confirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail != nil {
		return n.Fail
	}
	if n.seen[c.OrderID] {
		return nil
	}
	n.seen[c.OrderID] = true
	n.placed = append(n.placed, c)
	n.inbox = append(n.inbox, orders.Notification{
		ID:        uuid.NewString(),
		Title:     "New Order",
		Message:   fmt.Sprintf("New order placed. Items: %d, Total: %d", len(c.Items), c.TotalCents),
		Link:      "/admin/orders/" + c.OrderID,
		CreatedAt: time.Now(),
	})
	return nil
}

func (n *Notifier) OrderStatusChanged(_ context.Context, p orders.OrderStatusChangedPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Fail != nil {
		return n.Fail
	}
	key := orders.StatusChangeKey(p.OrderID, p.To)
	if n.seen[key] {
		return nil
	}
	n.seen[key] = true
	n.changes = append(n.changes, p)
	return nil
}

func (n *Notifier) Placed() []orders.Confirmation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]orders.Confirmation(nil), n.placed...)
}

func (n *Notifier) Changes() []orders.OrderStatusChangedPayload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]orders.OrderStatusChangedPayload(nil), n.changes...)
}

func (n *Notifier) List(_ context.Context, unreadOnly bool, limit int) ([]orders.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := []orders.Notification{}
	for i := len(n.inbox) - 1; i >= 0; i-- {
		if unreadOnly && n.inbox[i].IsRead {
			continue
		}
		out = append(out, n.inbox[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (n *Notifier) MarkRead(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := range n.inbox {
		if n.inbox[i].ID == id {
			n.inbox[i].IsRead = true
			return nil
		}
	}
	return orders.ErrNotFound
}
