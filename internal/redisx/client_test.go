package redisx

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestClaimOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	ok, err := Claim(ctx, rdb, "notify:o1:admin", TTLDedup)
	if err != nil || !ok {
		t.Fatalf("Expected first claim to win, got ok=%v err=%v", ok, err)
	}
	ok, err = Claim(ctx, rdb, "notify:o1:admin", TTLDedup)
	if err != nil || ok {
		t.Fatalf("Expected second claim to lose, got ok=%v err=%v", ok, err)
	}
	if !mr.Exists("notify:o1:admin") {
		t.Error("Expected key to exist")
	}
	if ttl := mr.TTL("notify:o1:admin"); ttl != TTLDedup {
		t.Errorf("Expected ttl %s, got %s", TTLDedup, ttl)
	}
}
