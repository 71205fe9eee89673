package service

import (
	"context"
	"sync"
	"time"
)

// RateLimiter limita cuántos links de verificación puede pedir un usuario por ventana.
// Si niega, devuelve cuánto falta para que se libere un cupo.
type RateLimiter interface {
	Allow(ctx context.Context, userID int64) (allowed bool, retryAfter time.Duration, err error)
}

type memoryRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[int64][]time.Time
	now    func() time.Time
}

// NewMemoryRateLimiter crea un rate limiter en memoria de ventana deslizante.
func NewMemoryRateLimiter(window time.Duration, max int) RateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[int64][]time.Time),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *memoryRateLimiter) Allow(_ context.Context, userID int64) (bool, time.Duration, error) {
	if userID == 0 {
		return false, 0, ErrInvalidUser
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.pruneLocked(now)

	kept := l.hits[userID]
	if len(kept) >= l.max {
		return false, kept[0].Add(l.window).Sub(now), nil
	}
	l.hits[userID] = append(kept, now)
	return true, 0, nil
}

// pruneLocked descarta golpes fuera de la ventana y borra las claves vacías.
func (l *memoryRateLimiter) pruneLocked(now time.Time) {
	cutoff := now.Add(-l.window)
	for userID, entries := range l.hits {
		kept := entries[:0]
		for _, ts := range entries {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(l.hits, userID)
			continue
		}
		l.hits[userID] = kept
	}
}
