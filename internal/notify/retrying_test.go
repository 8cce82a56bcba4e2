package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type flakyNotifier struct {
	mu       sync.Mutex
	failures int
	placed   []string
	changed  []string
}

func (f *flakyNotifier) fail() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker down")
	}
	return nil
}

func (f *flakyNotifier) OrderPlaced(_ context.Context, c orders.Confirmation) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.mu.Lock()
	f.placed = append(f.placed, c.OrderID)
	f.mu.Unlock()
	return nil
}

func (f *flakyNotifier) OrderStatusChanged(_ context.Context, p orders.OrderStatusChangedPayload) error {
	if err := f.fail(); err != nil {
		return err
	}
	f.mu.Lock()
	f.changed = append(f.changed, p.OrderID)
	f.mu.Unlock()
	return nil
}

func TestRetryingPassesThrough(t *testing.T) {
	next := &flakyNotifier{}
	r := &Retrying{Next: next, Log: logging.Discard()}
	if err := r.OrderPlaced(context.Background(), orders.Confirmation{OrderID: "o1"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	r.Wait()
	if len(next.placed) != 1 {
		t.Errorf("Expected 1 delivery, got %d", len(next.placed))
	}
}

func TestRetryingReportsAndRetries(t *testing.T) {
	next := &flakyNotifier{failures: 2}
	r := &Retrying{Next: next, Log: logging.Discard(), Initial: time.Millisecond, MaxElapsed: 5 * time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	err := r.OrderStatusChanged(ctx, orders.OrderStatusChangedPayload{OrderID: "o2", To: orders.StatusPaid})
	cancel() // the background retry must outlive the request
	if !errors.Is(err, checkout.ErrNotificationDeliveryFailed) {
		t.Fatalf("Expected ErrNotificationDeliveryFailed, got %v", err)
	}
	r.Wait()

	next.mu.Lock()
	defer next.mu.Unlock()
	if len(next.changed) != 1 || next.changed[0] != "o2" {
		t.Errorf("Expected the retry to deliver o2 once, got %v", next.changed)
	}
}
