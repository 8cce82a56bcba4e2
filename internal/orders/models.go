package orders

import "time"

type Condition string

const (
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
)

// SizeStock is one size label of a product and how many units of it are left.
type SizeStock struct {
	Label string `json:"label"`
	Stock int    `json:"stock"`
}

type Product struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	PriceCents  int64         `json:"price_cents"`
	Images      []string      `json:"images"`
	Condition   Condition     `json:"condition"`
	Sizes       []SizeStock   `json:"sizes,omitempty"` // urutan tampilan
	Status      ProductStatus `json:"status"`
	Version     int64         `json:"version"`

	// accounting (admin only)
	PurchasePriceCents *int64     `json:"purchase_price_cents,omitempty"`
	PaidAmountCents    int64      `json:"paid_amount_cents"`
	DebtCents          int64      `json:"debt_cents"`
	PaidAt             *time.Time `json:"paid_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p Product) HasSizes() bool { return len(p.Sizes) > 0 }

func (p Product) StockFor(size string) (int, bool) {
	for _, s := range p.Sizes {
		if s.Label == size {
			return s.Stock, true
		}
	}
	return 0, false
}

func (p Product) TotalStock() int {
	n := 0
	for _, s := range p.Sizes {
		n += s.Stock
	}
	return n
}

// CartLine is one (product, size) entry of a buyer's cart.
type CartLine struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size,omitempty"`
	Qty       int    `json:"qty"`
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

const PaymentCashOnDelivery = "cash_on_delivery"

type Order struct {
	ID            string        `json:"id"`
	ExternalID    string        `json:"external_id,omitempty"`
	UserID        string        `json:"user_id"`
	Items         []LineItem    `json:"items"`
	TotalCents    int64         `json:"total_cents"`
	Status        Status        `json:"status"` // lihat status.go
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod string        `json:"payment_method"`
	Phone         string        `json:"phone"`
	Address       string        `json:"address"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// LineItem is frozen at checkout; later catalog edits never touch it.
type LineItem struct {
	OrderID     string `json:"order_id,omitempty"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Size        string `json:"size,omitempty"`
	Qty         int    `json:"qty"`
	PriceCents  int64  `json:"price_cents"`
}

func (li LineItem) Subtotal() int64 { return int64(li.Qty) * li.PriceCents }

func SumItems(items []LineItem) int64 {
	var total int64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

type HoldStatus string

const (
	HoldHeld      HoldStatus = "held"
	HoldConfirmed HoldStatus = "confirmed"
	HoldReleased  HoldStatus = "released"
)

// Hold is a claim on stock taken for an order attempt. ExpiresAt is nil once
// the order row exists; until then the sweeper may release it.
type Hold struct {
	ID        string     `json:"id"`
	OrderID   string     `json:"order_id"`
	ProductID string     `json:"product_id"`
	Size      string     `json:"size,omitempty"`
	Qty       int        `json:"qty"`
	Status    HoldStatus `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Notification is an admin inbox entry.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Link      string    `json:"link,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
