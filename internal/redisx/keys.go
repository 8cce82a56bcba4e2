package redisx

import "time"

const (
	// Cart per buyer: hash cart:{buyer_id} field "{product_id}|{size}" -> qty
	KeyCart = "cart:%s"

	// Checkout idempotency: idem:checkout:{buyer_id}:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cache order: order_status:{order_id} -> JSON order (termasuk user_id untuk cek pemilik)
	KeyOrderStatus = "order_status:%s"

	// Dedup notifikasi: notify:{idempotency_key}:{channel}
	KeyNotifyDedup = "notify:%s:%s"
)

var (
	TTLCart        = 30 * 24 * time.Hour
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
