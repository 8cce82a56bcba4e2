package cart

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per buyer: field "{product_id}|{size}" -> qty.
type RedisStore struct {
	RDB redis.Cmdable
}

func cartKey(buyerID string) string { return fmt.Sprintf(redisx.KeyCart, buyerID) }

func field(productID, size string) string { return productID + "|" + size }

func (r *RedisStore) Lines(ctx context.Context, buyerID string) ([]orders.CartLine, error) {
	m, err := r.RDB.HGetAll(ctx, cartKey(buyerID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]orders.CartLine, 0, len(m))
	for f, v := range m {
		pid, size, _ := strings.Cut(f, "|")
		qty, err := strconv.Atoi(v)
		if err != nil || qty < 1 {
			continue
		}
		out = append(out, orders.CartLine{ProductID: pid, Size: size, Qty: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].Size < out[j].Size
	})
	return out, nil
}

func (r *RedisStore) Incr(ctx context.Context, buyerID, productID, size string, by int) (int, error) {
	key := cartKey(buyerID)
	var incr *redis.IntCmd
	_, err := r.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.HIncrBy(ctx, key, field(productID, size), int64(by))
		p.Expire(ctx, key, redisx.TTLCart)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

func (r *RedisStore) Set(ctx context.Context, buyerID, productID, size string, qty int) error {
	key := cartKey(buyerID)
	_, err := r.RDB.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, field(productID, size), qty)
		p.Expire(ctx, key, redisx.TTLCart)
		return nil
	})
	return err
}

func (r *RedisStore) Remove(ctx context.Context, buyerID, productID, size string) error {
	return r.RDB.HDel(ctx, cartKey(buyerID), field(productID, size)).Err()
}

func (r *RedisStore) Clear(ctx context.Context, buyerID string) error {
	return r.RDB.Del(ctx, cartKey(buyerID)).Err()
}
