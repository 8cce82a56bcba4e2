package checkout

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// KeyGuard serialises checkouts that share an idempotency key, so a double
// submit cannot reserve stock twice while the first is still in flight.
type KeyGuard interface {
	Begin(ctx context.Context, buyerID, key string) (bool, error)
	Complete(ctx context.Context, buyerID, key, orderID string) error
	Abort(ctx context.Context, buyerID, key string) error
}

type RedisGuard struct {
	RDB redis.Cmdable
}

func guardKey(buyerID, key string) string {
	return fmt.Sprintf(redisx.KeyIdemCheckout, buyerID, key)
}

func (g *RedisGuard) Begin(ctx context.Context, buyerID, key string) (bool, error) {
	return g.RDB.SetNX(ctx, guardKey(buyerID, key), "pending", redisx.TTLIdempotency).Result()
}

func (g *RedisGuard) Complete(ctx context.Context, buyerID, key, orderID string) error {
	return g.RDB.Set(ctx, guardKey(buyerID, key), orderID, redisx.TTLIdempotency).Err()
}

// Abort frees the key so the buyer can retry a failed checkout with it.
func (g *RedisGuard) Abort(ctx context.Context, buyerID, key string) error {
	return g.RDB.Del(ctx, guardKey(buyerID, key)).Err()
}
