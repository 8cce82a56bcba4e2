// Package memstore holds mutex-guarded in-memory stores with the same
// semantics as the Postgres repositories. They back the tests and the
// STORE=memory dev mode.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/google/uuid"
)

// Store is catalog, hold ledger and order store in one, so that
// DeleteProduct can see which products orders reference.
type Store struct {
	mu       sync.Mutex
	products map[string]*orders.Product
	holds    map[string]*orders.Hold
	holdSeq  []string
	orders   map[string]*orders.Order
	orderSeq []string

	Now func() time.Time

	// FailCreateOrder, when set, is returned by CreateOrderWithItems
	// without writing anything.
	FailCreateOrder error
}

func New() *Store {
	return &Store{
		products: map[string]*orders.Product{},
		holds:    map[string]*orders.Hold{},
		orders:   map[string]*orders.Order{},
	}
}

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cloneProduct(p *orders.Product) orders.Product {
	c := *p
	c.Sizes = append([]orders.SizeStock(nil), p.Sizes...)
	c.Images = append([]string(nil), p.Images...)
	if p.PurchasePriceCents != nil {
		v := *p.PurchasePriceCents
		c.PurchasePriceCents = &v
	}
	if p.PaidAt != nil {
		v := *p.PaidAt
		c.PaidAt = &v
	}
	return c
}

func cloneOrder(o *orders.Order) orders.Order {
	c := *o
	c.Items = append([]orders.LineItem(nil), o.Items...)
	return c
}

func cloneHold(h *orders.Hold) orders.Hold {
	c := *h
	if h.ExpiresAt != nil {
		v := *h.ExpiresAt
		c.ExpiresAt = &v
	}
	return c
}

// ---- catalog ----

func (s *Store) GetProduct(_ context.Context, id string) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return orders.Product{}, orders.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (s *Store) ListProducts(_ context.Context, status orders.ProductStatus) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Product
	for _, p := range s.products {
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) insertHold(h *orders.Hold) {
	c := cloneHold(h)
	c.Status = orders.HoldHeld
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.holds[c.ID] = &c
	s.holdSeq = append(s.holdSeq, c.ID)
}

func (s *Store) CompareAndSwapStatus(_ context.Context, id string, expected, next orders.ProductStatus, hold *orders.Hold) (bool, error) {
	if !orders.CanTransitionProduct(expected, next) {
		return false, fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, expected, next)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok || p.Status != expected {
		return false, nil
	}
	p.Status = next
	p.Version++
	p.UpdatedAt = s.now()
	if next == orders.ProductSold && p.PaidAt == nil {
		t := s.now()
		p.PaidAt = &t
	}
	if hold != nil {
		s.insertHold(hold)
	}
	return true, nil
}

func (s *Store) DecrementSizeStock(_ context.Context, id, size string, expected, qty int, hold *orders.Hold) (bool, error) {
	if qty < 1 {
		return false, fmt.Errorf("invalid qty %d", qty)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok || p.Status != orders.ProductAvailable {
		return false, nil
	}
	i := sizeIndex(p, size)
	if i < 0 || p.Sizes[i].Stock != expected || p.Sizes[i].Stock < qty {
		return false, nil
	}
	p.Sizes[i].Stock -= qty
	p.Version++
	p.UpdatedAt = s.now()
	if p.TotalStock() == 0 {
		p.Status = orders.ProductReserved
	}
	if hold != nil {
		s.insertHold(hold)
	}
	return true, nil
}

func sizeIndex(p *orders.Product, size string) int {
	for i, sz := range p.Sizes {
		if sz.Label == size {
			return i
		}
	}
	return -1
}

func (s *Store) CreateProduct(_ context.Context, p orders.Product) (orders.Product, error) {
	if err := orders.ValidateProduct(p); err != nil {
		return orders.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, dup := s.products[p.ID]; dup {
		return orders.Product{}, fmt.Errorf("%w: id %s exists", orders.ErrInvalidProduct, p.ID)
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	p.Status = orders.ProductAvailable
	p.Version = 0
	p.PaidAmountCents, p.DebtCents, p.PaidAt = 0, 0, nil
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	c := cloneProduct(&p)
	s.products[p.ID] = &c
	return cloneProduct(&c), nil
}

func (s *Store) UpdateProduct(_ context.Context, p orders.Product) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.products[p.ID]
	if !ok {
		return orders.Product{}, orders.ErrNotFound
	}
	p.Sizes = cur.Sizes
	if err := orders.ValidateProduct(p); err != nil {
		return orders.Product{}, err
	}
	cur.Name, cur.Description, cur.PriceCents, cur.Condition = p.Name, p.Description, p.PriceCents, p.Condition
	cur.Images = append([]string{}, p.Images...)
	cur.Version++
	cur.UpdatedAt = s.now()
	return cloneProduct(cur), nil
}

func (s *Store) RestockSize(_ context.Context, id, size string, qty int) (orders.Product, error) {
	if qty < 1 || size == "" {
		return orders.Product{}, fmt.Errorf("%w: restock needs a size and a positive qty", orders.ErrInvalidProduct)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return orders.Product{}, orders.ErrNotFound
	}
	if !p.HasSizes() {
		return orders.Product{}, fmt.Errorf("%w: product has no sizes", orders.ErrInvalidProduct)
	}
	if i := sizeIndex(p, size); i >= 0 {
		p.Sizes[i].Stock += qty
	} else {
		p.Sizes = append(p.Sizes, orders.SizeStock{Label: size, Stock: qty})
	}
	p.Status = orders.ProductAvailable
	p.Version++
	p.UpdatedAt = s.now()
	return cloneProduct(p), nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return orders.ErrNotFound
	}
	for _, o := range s.orders {
		for _, it := range o.Items {
			if it.ProductID == id {
				return orders.ErrProductInUse
			}
		}
	}
	for _, h := range s.holds {
		if h.ProductID == id && h.Status == orders.HoldHeld {
			return orders.ErrProductInUse
		}
	}
	delete(s.products, id)
	return nil
}

func (s *Store) SetPurchasePrice(_ context.Context, id string, cents int64) error {
	if cents < 0 {
		return fmt.Errorf("%w: negative purchase price", orders.ErrInvalidAmount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return orders.ErrNotFound
	}
	p.PurchasePriceCents = &cents
	p.UpdatedAt = s.now()
	return nil
}

func accountingRow(p *orders.Product) orders.AccountingRow {
	c := cloneProduct(p)
	return orders.AccountingRow{
		ProductID:          c.ID,
		Name:               c.Name,
		PriceCents:         c.PriceCents,
		PurchasePriceCents: c.PurchasePriceCents,
		PaidAmountCents:    c.PaidAmountCents,
		DebtCents:          c.DebtCents,
	}
}

func (s *Store) RecordPayment(_ context.Context, id string, amount int64) (orders.AccountingRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return orders.AccountingRow{}, orders.ErrNotFound
	}
	paid, debt, err := orders.ApplyPayment(p.PriceCents, p.PaidAmountCents, amount)
	if err != nil {
		return orders.AccountingRow{}, err
	}
	p.PaidAmountCents, p.DebtCents = paid, debt
	if p.PaidAt == nil {
		t := s.now()
		p.PaidAt = &t
	}
	return accountingRow(p), nil
}

func (s *Store) SoldProducts(_ context.Context) ([]orders.AccountingRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sold []*orders.Product
	for _, p := range s.products {
		if p.Status == orders.ProductSold {
			sold = append(sold, p)
		}
	}
	sort.Slice(sold, func(i, j int) bool {
		a, b := sold[i].PaidAt, sold[j].PaidAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.After(*b)
	})
	out := make([]orders.AccountingRow, 0, len(sold))
	for _, p := range sold {
		out = append(out, accountingRow(p))
	}
	return out, nil
}

// ---- holds ----

func (s *Store) ReleaseHold(_ context.Context, holdID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(holdID, nil), nil
}

func (s *Store) ReleaseExpiredHold(_ context.Context, holdID string, before time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(holdID, &before), nil
}

func (s *Store) releaseLocked(holdID string, expiredBefore *time.Time) bool {
	h, ok := s.holds[holdID]
	if !ok || h.Status != orders.HoldHeld {
		return false
	}
	if expiredBefore != nil && (h.ExpiresAt == nil || !h.ExpiresAt.Before(*expiredBefore)) {
		return false
	}
	if p, ok := s.products[h.ProductID]; ok {
		if h.Size != "" {
			if i := sizeIndex(p, h.Size); i >= 0 {
				p.Sizes[i].Stock += h.Qty
			}
		}
		if p.Status == orders.ProductReserved {
			p.Status = orders.ProductAvailable
		}
		p.Version++
		p.UpdatedAt = s.now()
	}
	h.Status = orders.HoldReleased
	h.ExpiresAt = nil
	return true
}

func (s *Store) AttachHolds(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.holds {
		if h.OrderID == orderID && h.Status == orders.HoldHeld {
			h.ExpiresAt = nil
		}
	}
	return nil
}

func (s *Store) ConfirmHolds(_ context.Context, orderID string) ([]orders.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Hold
	for _, id := range s.holdSeq {
		h := s.holds[id]
		if h.OrderID != orderID {
			continue
		}
		if h.Status == orders.HoldHeld {
			h.Status = orders.HoldConfirmed
			h.ExpiresAt = nil
		}
		if h.Status == orders.HoldConfirmed {
			out = append(out, cloneHold(h))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Size < out[j].Size
	})
	return out, nil
}

func (s *Store) ExpiredHolds(_ context.Context, before time.Time, limit int) ([]orders.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Hold
	for _, id := range s.holdSeq {
		h := s.holds[id]
		if h.Status == orders.HoldHeld && h.ExpiresAt != nil && h.ExpiresAt.Before(before) {
			out = append(out, cloneHold(h))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountActiveHolds(_ context.Context, productID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.holds {
		if h.ProductID == productID && h.Status == orders.HoldHeld {
			n++
		}
	}
	return n, nil
}

func (s *Store) HoldsForOrder(_ context.Context, orderID string) ([]orders.Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Hold
	for _, id := range s.holdSeq {
		if h := s.holds[id]; h.OrderID == orderID {
			out = append(out, cloneHold(h))
		}
	}
	return out, nil
}

// ---- orders ----

func (s *Store) CreateOrderWithItems(_ context.Context, o orders.Order, items []orders.LineItem) (orders.Order, error) {
	if s.FailCreateOrder != nil {
		return orders.Order{}, s.FailCreateOrder
	}
	if len(items) == 0 {
		return orders.Order{}, errors.New("order without items")
	}
	if sum := orders.SumItems(items); sum != o.TotalCents {
		return orders.Order{}, fmt.Errorf("total mismatch: order=%d items=%d", o.TotalCents, sum)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.orders[o.ID]; dup {
		return orders.Order{}, orders.ErrDuplicateOrder
	}
	if o.ExternalID != "" {
		for _, x := range s.orders {
			if x.UserID == o.UserID && x.ExternalID == o.ExternalID {
				return orders.Order{}, orders.ErrDuplicateOrder
			}
		}
	}
	for _, h := range s.holds {
		if h.OrderID == o.ID && h.Status == orders.HoldReleased {
			return orders.Order{}, orders.ErrHoldsReleased
		}
	}
	for _, h := range s.holds {
		if h.OrderID == o.ID && h.Status == orders.HoldHeld {
			h.ExpiresAt = nil
		}
	}
	o.CreatedAt = s.now()
	o.UpdatedAt = o.CreatedAt
	o.Items = make([]orders.LineItem, len(items))
	for i, it := range items {
		it.OrderID = o.ID
		o.Items[i] = it
	}
	c := cloneOrder(&o)
	s.orders[o.ID] = &c
	s.orderSeq = append(s.orderSeq, o.ID)
	return cloneOrder(&c), nil
}

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s *Store) FindByExternalID(_ context.Context, userID, externalID string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.UserID == userID && o.ExternalID == externalID && externalID != "" {
			return cloneOrder(o), nil
		}
	}
	return orders.Order{}, orders.ErrNotFound
}

func (s *Store) OrderExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.orders[id]
	return ok, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]orders.Order, error) {
	return s.listOrders(func(o *orders.Order) bool { return o.UserID == userID }), nil
}

func (s *Store) ListOrders(_ context.Context, status orders.Status) ([]orders.Order, error) {
	return s.listOrders(func(o *orders.Order) bool { return status == "" || o.Status == status }), nil
}

// newest first, like the SQL ORDER BY created_at DESC
func (s *Store) listOrders(keep func(*orders.Order) bool) []orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for i := len(s.orderSeq) - 1; i >= 0; i-- {
		if o := s.orders[s.orderSeq[i]]; keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	return out
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, from, to orders.Status) error {
	if !orders.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.ErrNotFound
	}
	if o.Status != from {
		return orders.ErrStaleStatus
	}
	o.Status = to
	o.UpdatedAt = s.now()
	return nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, id string, from, to orders.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.ErrNotFound
	}
	if o.PaymentStatus != from || o.Status == orders.StatusCancelled {
		return orders.ErrStaleStatus
	}
	o.PaymentStatus = to
	o.UpdatedAt = s.now()
	return nil
}
