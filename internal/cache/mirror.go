package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"permgate/internal/decision"
	"permgate/internal/obslog"
)

// RedisMirror is a cluster-wide Mirror backing the exact cache, letting
// every hook process on a host fleet sharing one project read through a hit
// another process already taught, grounded on the connector dial/pool
// settings used elsewhere in the pack for Redis clients. Mirror failures are
// logged and treated as a miss — the mirror is an optimization, never a
// point of cascade failure.
type RedisMirror struct {
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	log     *obslog.Logger
	timeout time.Duration
}

// NewRedisMirror connects to addr (host:port) with the given password/db.
// ttl of zero means entries never expire server-side.
func NewRedisMirror(addr, password string, db int, ttl time.Duration) *RedisMirror {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     50,
		MinIdleConns: 5,
	})
	return &RedisMirror{
		client:  client,
		ttl:     ttl,
		prefix:  "permgate:cache:",
		log:     obslog.New("cache-mirror"),
		timeout: 2 * time.Second,
	}
}

// Ping verifies connectivity; callers typically fall back to NoOpMirror if
// this fails at startup.
func (m *RedisMirror) Ping(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func (m *RedisMirror) redisKey(key decision.CacheKey) string {
	return fmt.Sprintf("%s%s|%s|%s", m.prefix, key.Tool, key.Role, key.SanitizedInput)
}

func (m *RedisMirror) Get(key decision.CacheKey) (decision.Record, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	raw, err := m.client.Get(ctx, m.redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			m.log.Warn("", "redis mirror get failed", map[string]interface{}{"error": err.Error()})
		}
		return decision.Record{}, false
	}
	var rec decision.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		m.log.Warn("", "redis mirror payload corrupt", map[string]interface{}{"error": err.Error()})
		return decision.Record{}, false
	}
	return rec, true
}

func (m *RedisMirror) Put(key decision.CacheKey, record decision.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	b, err := json.Marshal(record)
	if err != nil {
		m.log.Warn("", "redis mirror marshal failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := m.client.Set(ctx, m.redisKey(key), b, m.ttl).Err(); err != nil {
		m.log.Warn("", "redis mirror set failed", map[string]interface{}{"error": err.Error()})
	}
}

// Close releases the underlying connection pool.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
