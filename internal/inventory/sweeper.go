package inventory

import (
	"context"
	"time"
)

// OrderLookup tells the sweeper whether a hold's order made it to the store.
type OrderLookup interface {
	OrderExists(ctx context.Context, id string) (bool, error)
}

// Sweeper returns stock held by abandoned checkouts once their TTL passes.
type Sweeper struct {
	Inventory *Service
	Orders    OrderLookup
	Interval  time.Duration
	Batch     int
}

func (w *Sweeper) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	log := w.Inventory.log()
	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopping")
			return nil
		case <-t.C:
			n, err := w.SweepOnce(ctx)
			if err != nil {
				log.Error("sweep failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("expired holds released", "count", n)
			}
		}
	}
}

// SweepOnce handles one batch of expired holds and returns how many were
// released. Holds whose order exists are attached instead: the order row was
// written but the attach step never ran.
func (w *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	batch := w.Batch
	if batch <= 0 {
		batch = 100
	}
	s := w.Inventory
	now := s.now()
	holds, err := s.Store.ExpiredHolds(ctx, now, batch)
	if err != nil {
		return 0, err
	}

	exists := map[string]bool{}
	released := 0
	for _, h := range holds {
		ok, seen := exists[h.OrderID]
		if !seen {
			ok, err = w.Orders.OrderExists(ctx, h.OrderID)
			if err != nil {
				return released, err
			}
			exists[h.OrderID] = ok
			if ok {
				if err := s.Attach(ctx, h.OrderID); err != nil {
					return released, err
				}
				s.log().Warn("attached holds of persisted order", "order_id", h.OrderID)
			}
		}
		if ok {
			continue
		}
		// re-checked under the row lock: the order may have been saved since
		done, err := s.Store.ReleaseExpiredHold(ctx, h.ID, now)
		if err != nil {
			return released, err
		}
		if done {
			released++
			s.Metrics.HoldReleased(ctx, "expired")
		}
	}
	return released, nil
}
