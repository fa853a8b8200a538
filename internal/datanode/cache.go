package datanode

import (
	"context"
	"fmt"
	"time"

	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Cache is an optional read-through cache in front of a data node's
// hottest, highest-fan-in DataOps queries (verifyUser, userExists,
// chatroomExists). It is never the system of record — the file tree
// remains authoritative — and every entry is invalidated on the
// corresponding doCommit. A nil *Cache (or one with a nil client) degrades
// to a pure pass-through, matching the teacher's nil-safe bus.Service.
type Cache struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
	ttl    time.Duration
}

// NewCache creates a Cache backed by client. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	st := gobreaker.Settings{
		Name:        "datanode-cache",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("datanode-cache").Set(stateVal)
		},
	}

	return &Cache{client: client, cb: gobreaker.NewCircuitBreaker(st), ttl: ttl}
}

func (c *Cache) get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}

	start := time.Now()
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.client.Get(ctx, key).Result()
	})
	metrics.CacheOperationDuration.WithLabelValues("get").Observe(time.Since(start).Seconds())

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("datanode-cache").Inc()
		}
		if err != redis.Nil {
			metrics.CacheOperationsTotal.WithLabelValues("get", "error").Inc()
			logging.Warn(ctx, "cache get failed", zap.String("key", key), zap.Error(err))
		} else {
			metrics.CacheOperationsTotal.WithLabelValues("get", "miss").Inc()
		}
		return "", false
	}

	metrics.CacheOperationsTotal.WithLabelValues("get", "hit").Inc()
	return res.(string), true
}

func (c *Cache) set(ctx context.Context, key, value string) {
	if c == nil || c.client == nil {
		return
	}

	start := time.Now()
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.client.Set(ctx, key, value, c.ttl).Err()
	})
	metrics.CacheOperationDuration.WithLabelValues("set").Observe(time.Since(start).Seconds())

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("datanode-cache").Inc()
		}
		metrics.CacheOperationsTotal.WithLabelValues("set", "error").Inc()
		logging.Warn(ctx, "cache set failed", zap.String("key", key), zap.Error(err))
		return
	}
	metrics.CacheOperationsTotal.WithLabelValues("set", "success").Inc()
}

// invalidate drops a cached entry; called from doCommit so the cache never
// serves state older than the durable record it fronts.
func (c *Cache) invalidate(ctx context.Context, keys ...string) {
	if c == nil || c.client == nil || len(keys) == 0 {
		return
	}
	if _, err := c.cb.Execute(func() (interface{}, error) {
		return nil, c.client.Del(ctx, keys...).Err()
	}); err != nil && err != gobreaker.ErrOpenState {
		logging.Warn(ctx, "cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func userExistsKey(username string) string       { return fmt.Sprintf("user:exists:%s", username) }
func chatroomExistsKey(chatroom string) string    { return fmt.Sprintf("chatroom:exists:%s", chatroom) }
func userPasswordKey(username string) string      { return fmt.Sprintf("user:password:%s", username) }

// cachedUserExists is the read-through path for DataOps.userExists.
func (h *DataOpsHandler) cachedUserExists(ctx context.Context, username string) bool {
	if h.cache != nil {
		if v, ok := h.cache.get(ctx, userExistsKey(username)); ok {
			return v == "1"
		}
	}
	exists := h.store.UserExists(username)
	if h.cache != nil {
		v := "0"
		if exists {
			v = "1"
		}
		h.cache.set(ctx, userExistsKey(username), v)
	}
	return exists
}

// cachedChatroomExists is the read-through path for DataOps.chatroomExists.
func (h *DataOpsHandler) cachedChatroomExists(ctx context.Context, chatroom string) bool {
	if h.cache != nil {
		if v, ok := h.cache.get(ctx, chatroomExistsKey(chatroom)); ok {
			return v == "1"
		}
	}
	exists := h.store.ChatroomExists(chatroom)
	if h.cache != nil {
		v := "0"
		if exists {
			v = "1"
		}
		h.cache.set(ctx, chatroomExistsKey(chatroom), v)
	}
	return exists
}

// cachedVerifyUser is the read-through path for DataOps.verifyUser. It
// caches the password, not the verification outcome, so a cache hit can
// answer any (username, password) pair without a false positive for a
// wrong password.
func (h *DataOpsHandler) cachedVerifyUser(ctx context.Context, username, password string) bool {
	if h.cache != nil {
		if v, ok := h.cache.get(ctx, userPasswordKey(username)); ok {
			return v == password
		}
	}
	ok := h.store.VerifyUser(username, password)
	if ok && h.cache != nil {
		h.cache.set(ctx, userPasswordKey(username), password)
	}
	return ok
}
