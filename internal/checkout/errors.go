package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated            = errors.New("unauthenticated")
	ErrValidation                 = errors.New("validation failed")
	ErrItemUnavailable            = errors.New("item unavailable")
	ErrConcurrentConflict         = errors.New("concurrent conflict, refresh and retry")
	ErrStoreUnavailable           = errors.New("order failed, try again")
	ErrNotificationDeliveryFailed = errors.New("notification delivery failed")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ItemUnavailableError names the line the buyer has to remove.
type ItemUnavailableError struct {
	ProductID string
	Size      string
	Reason    string
}

func (e *ItemUnavailableError) Error() string {
	if e.Size != "" {
		return fmt.Sprintf("product %s size %s unavailable: %s", e.ProductID, e.Size, e.Reason)
	}
	return fmt.Sprintf("product %s unavailable: %s", e.ProductID, e.Reason)
}

func (e *ItemUnavailableError) Unwrap() error { return ErrItemUnavailable }

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}

// Reason is a short label for metrics and logs.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrItemUnavailable):
		return "item_unavailable"
	case errors.Is(err, ErrConcurrentConflict):
		return "conflict"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "other"
	}
}
