package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper answers "have I seen this key" with a single SETNX round
// trip, marking the key seen in the same call. Entries expire so the
// key space stays bounded; a provider never redelivers a webhook weeks
// later.
type Deduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewDeduper(rdb *redis.Client, ttl time.Duration) *Deduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{rdb: rdb, ttl: ttl}
}

// Seen returns true if key was already recorded. The first caller for
// a key gets false and owns processing it.
func (d *Deduper) Seen(ctx context.Context, key string) (bool, error) {
	set, err := d.rdb.SetNX(ctx, key, 1, d.ttl).Result()
	if err != nil {
		return false, err
	}
	return !set, nil
}
