package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/cart"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Field     string `json:"field,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Size      string `json:"size,omitempty"`
}

// statusOf maps domain errors to HTTP status codes and a stable code string.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, checkout.ErrValidation),
		errors.Is(err, orders.ErrInvalidProduct),
		errors.Is(err, orders.ErrInvalidAmount),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrSizeRequired),
		errors.Is(err, cart.ErrUnknownSize):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, checkout.ErrItemUnavailable),
		errors.Is(err, cart.ErrUnavailable),
		errors.Is(err, cart.ErrNotEnoughStock):
		return http.StatusConflict, "item_unavailable"
	case errors.Is(err, checkout.ErrConcurrentConflict), errors.Is(err, orders.ErrStaleStatus):
		return http.StatusConflict, "conflict"
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, orders.ErrProductInUse):
		return http.StatusConflict, "product_in_use"
	case errors.Is(err, orders.ErrPaymentRequired):
		return http.StatusUnprocessableEntity, "payment_required"
	case errors.Is(err, checkout.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, name := statusOf(err)
	body := errorBody{Error: err.Error(), Code: name}
	if code == http.StatusInternalServerError || code == http.StatusServiceUnavailable {
		// detail stays in the logs
		body.Error = http.StatusText(code)
		if errors.Is(err, checkout.ErrStoreUnavailable) {
			body.Error = checkout.ErrStoreUnavailable.Error()
		}
	}
	var ve *checkout.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	var ue *checkout.ItemUnavailableError
	if errors.As(err, &ue) {
		body.ProductID, body.Size = ue.ProductID, ue.Size
	}
	writeJSON(w, code, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "validation"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
