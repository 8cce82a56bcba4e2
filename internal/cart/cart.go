// Package cart is the server-side cart. Every mutation is announced to
// subscribers so views can refresh without polling.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

var (
	ErrUnavailable     = errors.New("product is not available")
	ErrUnknownSize     = errors.New("unknown size")
	ErrSizeRequired    = errors.New("size is required for this product")
	ErrNotEnoughStock  = errors.New("not enough stock")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

type Store interface {
	Lines(ctx context.Context, buyerID string) ([]orders.CartLine, error)
	Incr(ctx context.Context, buyerID, productID, size string, by int) (int, error)
	Set(ctx context.Context, buyerID, productID, size string, qty int) error
	Remove(ctx context.Context, buyerID, productID, size string) error
	Clear(ctx context.Context, buyerID string) error
}

type Products interface {
	GetProduct(ctx context.Context, id string) (orders.Product, error)
}

type EventKind string

const (
	EventAdded   EventKind = "added"
	EventUpdated EventKind = "updated"
	EventRemoved EventKind = "removed"
	EventCleared EventKind = "cleared"
)

type Event struct {
	Kind      EventKind
	BuyerID   string
	ProductID string
	Size      string
	Qty       int
}

type Service struct {
	Store    Store
	Products Products

	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

// Subscribe registers fn for every cart change. The returned func removes it.
func (s *Service) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = map[int]func(Event){}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Service) publish(e Event) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(e)
	}
}

func (s *Service) Lines(ctx context.Context, buyerID string) ([]orders.CartLine, error) {
	return s.Store.Lines(ctx, buyerID)
}

// Add puts qty more units of a product (and size) in the cart. Products
// that are reserved or sold, and sizes without stock, are refused.
func (s *Service) Add(ctx context.Context, buyerID string, line orders.CartLine) (int, error) {
	if line.Qty == 0 {
		line.Qty = 1
	}
	if line.Qty < 1 {
		return 0, ErrInvalidQuantity
	}
	p, err := s.Products.GetProduct(ctx, line.ProductID)
	if err != nil {
		return 0, err
	}
	limit, err := addable(p, line.Size)
	if err != nil {
		return 0, err
	}
	cur, err := s.qtyOf(ctx, buyerID, line.ProductID, line.Size)
	if err != nil {
		return 0, err
	}
	if cur+line.Qty > limit {
		return 0, fmt.Errorf("%w: %d left", ErrNotEnoughStock, limit)
	}
	n, err := s.Store.Incr(ctx, buyerID, line.ProductID, line.Size, line.Qty)
	if err != nil {
		return 0, err
	}
	s.publish(Event{Kind: EventAdded, BuyerID: buyerID, ProductID: line.ProductID, Size: line.Size, Qty: n})
	return n, nil
}

// addable returns how many units of the product can be in a cart at most.
func addable(p orders.Product, size string) (int, error) {
	if p.Status != orders.ProductAvailable {
		return 0, fmt.Errorf("%w: %s is %s", ErrUnavailable, p.ID, p.Status)
	}
	if !p.HasSizes() {
		if size != "" {
			return 0, fmt.Errorf("%w: %q", ErrUnknownSize, size)
		}
		return 1, nil
	}
	if size == "" {
		return 0, ErrSizeRequired
	}
	stock, ok := p.StockFor(size)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSize, size)
	}
	if stock == 0 {
		return 0, fmt.Errorf("%w: size %s sold out", ErrUnavailable, size)
	}
	return stock, nil
}

func (s *Service) qtyOf(ctx context.Context, buyerID, productID, size string) (int, error) {
	lines, err := s.Store.Lines(ctx, buyerID)
	if err != nil {
		return 0, err
	}
	for _, l := range lines {
		if l.ProductID == productID && l.Size == size {
			return l.Qty, nil
		}
	}
	return 0, nil
}

// SetQuantity replaces the line's quantity. Values below 1 become 1; the
// same stock limit as Add applies.
func (s *Service) SetQuantity(ctx context.Context, buyerID, productID, size string, qty int) (int, error) {
	qty = max(qty, 1)
	p, err := s.Products.GetProduct(ctx, productID)
	if err != nil {
		return 0, err
	}
	limit, err := addable(p, size)
	if err != nil {
		return 0, err
	}
	if qty > limit {
		return 0, fmt.Errorf("%w: %d left", ErrNotEnoughStock, limit)
	}
	if err := s.Store.Set(ctx, buyerID, productID, size, qty); err != nil {
		return 0, err
	}
	s.publish(Event{Kind: EventUpdated, BuyerID: buyerID, ProductID: productID, Size: size, Qty: qty})
	return qty, nil
}

func (s *Service) Remove(ctx context.Context, buyerID, productID, size string) error {
	if err := s.Store.Remove(ctx, buyerID, productID, size); err != nil {
		return err
	}
	s.publish(Event{Kind: EventRemoved, BuyerID: buyerID, ProductID: productID, Size: size})
	return nil
}

func (s *Service) Clear(ctx context.Context, buyerID string) error {
	if err := s.Store.Clear(ctx, buyerID); err != nil {
		return err
	}
	s.publish(Event{Kind: EventCleared, BuyerID: buyerID})
	return nil
}
