package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	Carts *cart.Service
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.view)
	r.Delete("/cart", h.clear)
	r.Get("/cart/items", h.lines)
	r.Post("/cart/items", h.add)
	r.Put("/cart/items", h.set)
	r.Delete("/cart/items", h.remove)
}

type cartView struct {
	Lines      []cartViewLine `json:"lines"`
	TotalCents int64          `json:"total_cents"`
}

type cartViewLine struct {
	orders.CartLine
	Name          string               `json:"name"`
	PriceCents    int64                `json:"price_cents"`
	SubtotalCents int64                `json:"subtotal_cents"`
	Status        orders.ProductStatus `json:"status"`
}

func (h *CartHandler) lines(w http.ResponseWriter, r *http.Request) {
	u := auth.FromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	lines, err := h.Carts.Lines(ctx, u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if lines == nil {
		lines = []orders.CartLine{}
	}
	writeJSON(w, http.StatusOK, lines)
}

// view prices the cart at current catalog prices. Lines whose product was
// deleted are shown without a price; checkout will refuse them.
func (h *CartHandler) view(w http.ResponseWriter, r *http.Request) {
	u := auth.FromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	lines, err := h.Carts.Lines(ctx, u.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := cartView{Lines: make([]cartViewLine, 0, len(lines))}
	for _, l := range lines {
		v := cartViewLine{CartLine: l}
		p, err := h.Carts.Products.GetProduct(ctx, l.ProductID)
		switch {
		case errors.Is(err, orders.ErrNotFound):
		case err != nil:
			writeError(w, err)
			return
		default:
			v.Name, v.PriceCents, v.Status = p.Name, p.PriceCents, p.Status
			v.SubtotalCents = int64(l.Qty) * p.PriceCents
			out.TotalCents += v.SubtotalCents
		}
		out.Lines = append(out.Lines, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var line orders.CartLine
	if err := decodeJSON(w, r, &line); err != nil || line.ProductID == "" {
		badRequest(w, "product_id is required")
		return
	}
	u := auth.FromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	n, err := h.Carts.Add(ctx, u.ID, line)
	if err != nil {
		writeError(w, err)
		return
	}
	line.Qty = n
	writeJSON(w, http.StatusOK, line)
}

func (h *CartHandler) set(w http.ResponseWriter, r *http.Request) {
	var line orders.CartLine
	if err := decodeJSON(w, r, &line); err != nil || line.ProductID == "" {
		badRequest(w, "product_id is required")
		return
	}
	u := auth.FromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	n, err := h.Carts.SetQuantity(ctx, u.ID, line.ProductID, line.Size, line.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	line.Qty = n
	writeJSON(w, http.StatusOK, line)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pid := q.Get("product_id")
	if pid == "" {
		badRequest(w, "product_id is required")
		return
	}
	u := auth.FromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Carts.Remove(ctx, u.ID, pid, q.Get("size")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	u := auth.FromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Carts.Clear(ctx, u.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
