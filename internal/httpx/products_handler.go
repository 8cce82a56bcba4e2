package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-chi/chi/v5"
)

type ProductsHandler struct {
	Catalog   Catalog
	Products  ProductAdmin
	Inventory *inventory.Service
	Log       *slog.Logger
}

func (h *ProductsHandler) RegisterAdmin(r chi.Router) {
	r.Post("/products", h.create)
	r.Put("/products/{id}", h.update)
	r.Delete("/products/{id}", h.delete)
	r.Post("/products/{id}/restock", h.restock)
	r.Post("/products/{id}/repost", h.repost)
	r.Post("/products/{id}/purchase-price", h.setPurchasePrice)
	r.Post("/products/{id}/payments", h.recordPayment)
	r.Get("/accounting", h.accounting)
}

// buyers never see what the shop paid or who still owes money
func publicView(p orders.Product) orders.Product {
	p.PurchasePriceCents = nil
	p.PaidAmountCents, p.DebtCents, p.PaidAt = 0, 0, nil
	return p
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	status := orders.ProductStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		badRequest(w, "unknown status")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx, status)
	if err != nil {
		h.Log.Error("list products", "err", err)
		writeError(w, err)
		return
	}
	if !auth.FromContext(r.Context()).IsAdmin() {
		for i := range ps {
			ps[i] = publicView(ps[i])
		}
	}
	if ps == nil {
		ps = []orders.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Catalog.GetProduct(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if !auth.FromContext(r.Context()).IsAdmin() {
		p = publicView(p)
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) create(w http.ResponseWriter, r *http.Request) {
	var p orders.Product
	if err := decodeJSON(w, r, &p); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	created, err := h.Products.CreateProduct(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Log.Info("product created", "product_id", created.ID, "sizes", len(created.Sizes))
	writeJSON(w, http.StatusCreated, created)
}

func (h *ProductsHandler) update(w http.ResponseWriter, r *http.Request) {
	var p orders.Product
	if err := decodeJSON(w, r, &p); err != nil {
		badRequest(w, "invalid json")
		return
	}
	p.ID = chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	updated, err := h.Products.UpdateProduct(ctx, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ProductsHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	if err := h.Products.DeleteProduct(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	h.Log.Info("product deleted", "product_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type restockReq struct {
	Size string `json:"size"`
	Qty  int    `json:"qty"`
}

func (h *ProductsHandler) restock(w http.ResponseWriter, r *http.Request) {
	var req restockReq
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Products.RestockSize(ctx, chi.URLParam(r, "id"), req.Size, req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductsHandler) repost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Inventory.Repost(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	h.Log.Info("product reposted", "product_id", p.ID)
	writeJSON(w, http.StatusOK, p)
}

type purchasePriceReq struct {
	PurchasePriceCents int64 `json:"purchase_price_cents"`
}

func (h *ProductsHandler) setPurchasePrice(w http.ResponseWriter, r *http.Request) {
	var req purchasePriceReq
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Products.SetPurchasePrice(ctx, chi.URLParam(r, "id"), req.PurchasePriceCents); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type paymentReq struct {
	AmountCents int64 `json:"amount_cents"`
}

func (h *ProductsHandler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentReq
	if err := decodeJSON(w, r, &req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	row, err := h.Products.RecordPayment(ctx, chi.URLParam(r, "id"), req.AmountCents)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *ProductsHandler) accounting(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rows, err := h.Products.SoldProducts(ctx)
	if err != nil {
		h.Log.Error("load accounting", "err", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders.Summarize(rows))
}
