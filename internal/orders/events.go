package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "storefront-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// Confirmation is what the buyer gets back from a successful checkout and
// what the notification pipeline fans out.
type Confirmation struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	UserEmail     string        `json:"user_email,omitempty"`
	Items         []LineItem    `json:"items"`
	TotalCents    int64         `json:"total_cents"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod string        `json:"payment_method"`
	Phone         string        `json:"phone"`
	Address       string        `json:"address"`
	CreatedAt     time.Time     `json:"created_at"`
	Replayed      bool          `json:"replayed,omitempty"`
}

func ConfirmationFor(o Order) Confirmation {
	return Confirmation{
		OrderID:       o.ID,
		UserID:        o.UserID,
		Items:         o.Items,
		TotalCents:    o.TotalCents,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		Phone:         o.Phone,
		Address:       o.Address,
		CreatedAt:     o.CreatedAt,
	}
}

// ---- Payload tipe per event ----

type OrderPlacedPayload struct {
	Confirmation
	IdempotencyKey string `json:"idempotency_key"`
}

type OrderStatusChangedPayload struct {
	OrderID        string `json:"order_id"`
	UserID         string `json:"user_id"`
	Phone          string `json:"phone,omitempty"`
	From           Status `json:"from"`
	To             Status `json:"to"`
	IdempotencyKey string `json:"idempotency_key"`
}

// StatusChangeKey identifies one transition of one order.
func StatusChangeKey(orderID string, to Status) string { return orderID + ":" + string(to) }
