package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type cartKey struct{ productID, size string }

// Carts is an in-memory cart.Store.
type Carts struct {
	mu    sync.Mutex
	carts map[string]map[cartKey]int
}

func NewCarts() *Carts { return &Carts{carts: map[string]map[cartKey]int{}} }

func (c *Carts) Lines(_ context.Context, buyerID string) ([]orders.CartLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]orders.CartLine, 0, len(c.carts[buyerID]))
	for k, q := range c.carts[buyerID] {
		out = append(out, orders.CartLine{ProductID: k.productID, Size: k.size, Qty: q})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Size < out[j].Size
	})
	return out, nil
}

func (c *Carts) bucket(buyerID string) map[cartKey]int {
	b, ok := c.carts[buyerID]
	if !ok {
		b = map[cartKey]int{}
		c.carts[buyerID] = b
	}
	return b
}

func (c *Carts) Incr(_ context.Context, buyerID, productID, size string, by int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b := c.bucket(buyerID)
	k := cartKey{productID, size}
	b[k] += by
	return b[k], nil
}

func (c *Carts) Set(_ context.Context, buyerID, productID, size string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bucket(buyerID)[cartKey{productID, size}] = qty
	return nil
}

func (c *Carts) Remove(_ context.Context, buyerID, productID, size string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts[buyerID], cartKey{productID, size})
	return nil
}

func (c *Carts) Clear(_ context.Context, buyerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.carts, buyerID)
	return nil
}
