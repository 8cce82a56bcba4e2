package orders

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStaleStatus       = errors.New("status changed concurrently")
	ErrHoldsReleased     = errors.New("reservation expired before the order was saved")
	ErrProductInUse      = errors.New("product is referenced by orders")
	ErrPaymentRequired   = errors.New("order must be paid first")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrInvalidAmount     = errors.New("invalid amount")
)
