// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
)

// MemoryDedup is an in-process saga.EventDedup keeping seen event ids in a
// map. Entries older than the TTL are evicted lazily on each call, which is
// enough for a cache whose only job is absorbing broker redeliveries.
type MemoryDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

// NewMemoryDedup creates a dedup cache with the given entry TTL. A
// non-positive TTL defaults to one hour.
func NewMemoryDedup(ttl time.Duration) *MemoryDedup {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryDedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
	}
}

// Seen records the event id and reports whether it was already present.
func (d *MemoryDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for id, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, id)
		}
	}

	if _, exists := d.seen[eventID]; exists {
		return true, nil
	}
	d.seen[eventID] = now
	return false, nil
}

// Close is a no-op for the in-memory cache.
func (d *MemoryDedup) Close() error { return nil }

// RedisDedup is a saga.EventDedup backed by Redis so multiple orchestrator
// replicas share one view of processed event ids. SETNX gives the check-and-
// record a single atomic round trip.
type RedisDedup struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisDedupConfig configures the Redis-backed dedup cache.
type RedisDedupConfig struct {
	// Addr is the Redis host:port.
	Addr string

	// Password is optional.
	Password string

	// DB selects the Redis logical database.
	DB int

	// KeyPrefix namespaces dedup keys. Defaults to "saga:event:".
	KeyPrefix string

	// TTL bounds how long an event id is remembered. Defaults to 24h.
	TTL time.Duration
}

// NewRedisDedup connects to Redis and verifies connectivity.
func NewRedisDedup(ctx context.Context, config *RedisDedupConfig) (*RedisDedup, error) {
	if config == nil || config.Addr == "" {
		return nil, fmt.Errorf("redis dedup: addr is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "saga:event:"
	}
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis dedup: ping: %w", err)
	}
	return &RedisDedup{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}, nil
}

// Seen atomically records the event id and reports whether it was already
// present. A Redis failure is surfaced to the caller, which treats the event
// as unseen; the state manager's idempotent transitions absorb the duplicate.
func (d *RedisDedup) Seen(ctx context.Context, eventID string) (bool, error) {
	set, err := d.client.SetNX(ctx, d.keyPrefix+eventID, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis dedup: setnx %s: %w", eventID, err)
	}
	return !set, nil
}

// Close releases the Redis connection.
func (d *RedisDedup) Close() error {
	return d.client.Close()
}

var (
	_ saga.EventDedup = (*MemoryDedup)(nil)
	_ saga.EventDedup = (*RedisDedup)(nil)
)
