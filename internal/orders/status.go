package orders

type Status string

const (
	StatusPending         Status = "pending"
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusProcessing      Status = "processing"
	StatusPaid            Status = "paid"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:         {StatusAwaitingPayment: true, StatusProcessing: true, StatusPaid: true, StatusCancelled: true},
	StatusAwaitingPayment: {StatusProcessing: true, StatusPaid: true, StatusCancelled: true},
	StatusProcessing:      {StatusPaid: true, StatusDelivered: true, StatusCancelled: true},
	StatusPaid:            {StatusProcessing: true, StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:       {},
	StatusCancelled:       {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

type ProductStatus string

const (
	ProductAvailable ProductStatus = "available"
	ProductReserved  ProductStatus = "reserved"
	ProductSold      ProductStatus = "sold"
)

// sold hanya bisa dicapai lewat reserved.
var validProductNext = map[ProductStatus]map[ProductStatus]bool{
	ProductAvailable: {ProductReserved: true},
	ProductReserved:  {ProductSold: true, ProductAvailable: true},
	ProductSold:      {ProductAvailable: true},
}

func CanTransitionProduct(from, to ProductStatus) bool {
	return validProductNext[from][to]
}

func (s ProductStatus) Valid() bool {
	_, ok := validProductNext[s]
	return ok
}
