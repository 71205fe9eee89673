package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// UpdateDeduper detecta updates de Telegram re-entregados o duplicados.
type UpdateDeduper interface {
	// FirstSeen devuelve true la primera vez que ve la clave dentro del ttl.
	FirstSeen(key string, ttl time.Duration) (bool, error)
}

const memoryDeduperPruneThreshold = 4096

type memoryUpdateDeduper struct {
	mu    sync.Mutex
	items map[string]time.Time
	now   func() time.Time
}

func NewMemoryUpdateDeduper() UpdateDeduper {
	return &memoryUpdateDeduper{
		items: make(map[string]time.Time),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (d *memoryUpdateDeduper) FirstSeen(key string, ttl time.Duration) (bool, error) {
	if strings.TrimSpace(key) == "" {
		return true, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if exp, ok := d.items[key]; ok && now.Before(exp) {
		return false, nil
	}
	if len(d.items) >= memoryDeduperPruneThreshold {
		for k, exp := range d.items {
			if !now.Before(exp) {
				delete(d.items, k)
			}
		}
	}
	d.items[key] = now.Add(ttl)
	return true, nil
}

type redisSetNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

type redisUpdateDeduper struct {
	client redisSetNXer
	prefix string
}

func NewRedisUpdateDeduper(client *redis.Client) UpdateDeduper {
	if client == nil {
		return nil
	}
	return &redisUpdateDeduper{
		client: client,
		prefix: "leech:update:",
	}
}

func (d *redisUpdateDeduper) FirstSeen(key string, ttl time.Duration) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return true, nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return d.client.SetNX(ctx, d.prefix+key, 1, ttl).Result()
}
