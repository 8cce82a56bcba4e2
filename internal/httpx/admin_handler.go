package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/invoice"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

type AdminHandler struct {
	Orders        OrderReader
	Lifecycle     *checkout.Lifecycle
	Products      ProductAdmin
	Inbox         Inbox
	Redis         redis.Cmdable
	PublicBaseURL string
	Log           *slog.Logger
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Post("/orders/{id}/status", h.updateStatus)
	r.Post("/orders/{id}/payment", h.confirmPayment)
	r.Get("/orders/{id}/invoice", h.invoice)
	r.Get("/notifications", h.notifications)
	r.Post("/notifications/{id}/read", h.markRead)
}

func (h *AdminHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	status := orders.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		badRequest(w, "unknown status")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Orders.ListOrders(ctx, status)
	if err != nil {
		h.Log.Error("list orders", "err", err)
		writeError(w, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	writeJSON(w, http.StatusOK, list)
}

type statusReq struct {
	Status orders.Status `json:"status"`
}

func (h *AdminHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decodeJSON(w, r, &req); err != nil || req.Status == "" {
		badRequest(w, "status is required")
		return
	}
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Lifecycle.UpdateStatus(ctx, id, req.Status)
	invalidateOrder(context.WithoutCancel(ctx), h.Redis, id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Log.Info("order status updated", "order_id", id, "status", o.Status)
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Lifecycle.ConfirmPayment(ctx, id)
	invalidateOrder(context.WithoutCancel(ctx), h.Redis, id)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Log.Info("payment confirmed", "order_id", id)
	writeJSON(w, http.StatusOK, o)
}

func (h *AdminHandler) invoice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	url := strings.TrimRight(h.PublicBaseURL, "/") + "/orders/" + o.ID
	pdf, err := invoice.Render(o, url)
	if err != nil {
		h.Log.Error("render invoice", "order_id", id, "err", err)
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="invoice-%s.pdf"`, o.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *AdminHandler) notifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			badRequest(w, "limit must be a positive number")
			return
		}
		limit = min(n, 200)
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Inbox.List(ctx, q.Get("unread") == "true", limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []orders.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AdminHandler) markRead(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Inbox.MarkRead(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
