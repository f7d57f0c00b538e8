package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	database "github.com/AgentRank/agentrank-backend/internal"
	"github.com/AgentRank/agentrank-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// getSyncSecret reads the shared secret protecting the sync trigger.
func getSyncSecret() string {
	return strings.TrimSpace(os.Getenv("AGENTRANK_SYNC_SECRET"))
}

// SyncAuthMiddleware authenticates the sync trigger with a bearer shared
// secret. A short-lived HS256 JWT signed with the same secret is also
// accepted so schedulers can mint per-run tokens instead of shipping the raw
// secret. No work happens before this check.
func SyncAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := getSyncSecret()
		if secret == "" {
			abortError(c, http.StatusInternalServerError, CodeInternal, "sync secret not configured")
			return
		}
		auth := c.GetHeader("Authorization")
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortError(c, http.StatusUnauthorized, CodeUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}
		token := strings.TrimSpace(parts[1])
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1 {
			c.Next()
			return
		}
		// Fall back to a JWT signed with the shared secret.
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !parsed.Valid {
			abortError(c, http.StatusUnauthorized, CodeUnauthorized, "invalid sync credentials")
			return
		}
		c.Next()
	}
}

// ApiKeyAuthMiddleware authenticates requests using an issued API key.
// Expected header: either X-API-Key or Authorization: Bearer <key>.
func ApiKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-API-Key")
		if raw == "" {
			auth := c.GetHeader("Authorization")
			parts := strings.SplitN(auth, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				raw = parts[1]
			}
		}
		if raw == "" {
			abortError(c, http.StatusUnauthorized, CodeUnauthorized, "API key required")
			return
		}
		const prefix = "agentrank_sk_"
		if !strings.HasPrefix(raw, prefix) || len(raw) <= len(prefix)+utils.KeyPrefixLen {
			abortError(c, http.StatusUnauthorized, CodeUnauthorized, "invalid API key format")
			return
		}
		keyPrefix := raw[len(prefix) : len(prefix)+utils.KeyPrefixLen]

		var key database.APIKey
		err := database.DB.Get(&key, `SELECT id, name, key_prefix, hashed_key, last_used_at, expires_at, revoked_at, created_at FROM api_keys WHERE key_prefix=$1 AND revoked_at IS NULL LIMIT 1`, keyPrefix)
		if err != nil {
			abortError(c, http.StatusUnauthorized, CodeUnauthorized, "API key not found or revoked")
			return
		}
		if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
			abortError(c, http.StatusUnauthorized, CodeUnauthorized, "API key expired")
			return
		}
		if !utils.CheckKeyHash(raw, key.HashedKey) {
			abortError(c, http.StatusUnauthorized, CodeUnauthorized, "invalid API key")
			return
		}
		now := time.Now()
		_, _ = database.DB.Exec(`UPDATE api_keys SET last_used_at=$1 WHERE id=$2`, now, key.ID)
		c.Set("apiKeyPrefix", keyPrefix)
		c.Next()
	}
}

// RequestIDMiddleware ensures every request has an X-Request-ID. If absent, generate one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.New().String()
		}
		c.Set("requestID", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// Simple in-memory IP rate limiter (fixed window)
type clientWindow struct {
	count       int
	windowStart time.Time
}

type ipLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	limit   int
	window  time.Duration
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*clientWindow),
		limit:   limit,
		window:  window,
	}
}

func (l *ipLimiter) allow(ip string) (bool, time.Duration) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	cw, ok := l.clients[ip]
	if !ok {
		l.clients[ip] = &clientWindow{count: 1, windowStart: now}
		return true, 0
	}
	if now.Sub(cw.windowStart) >= l.window {
		cw.count = 1
		cw.windowStart = now
		return true, 0
	}
	if cw.count < l.limit {
		cw.count++
		return true, 0
	}
	return false, l.window - now.Sub(cw.windowStart)
}

// RateLimitMiddleware limits requests per client IP.
func RateLimitMiddleware(limitPerMinute int) gin.HandlerFunc {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	limiter := newIPLimiter(limitPerMinute, time.Minute)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if net.ParseIP(ip) == nil {
			ip = "unknown"
		}
		ok, retryAfter := limiter.allow(ip)
		if !ok {
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			abortError(c, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, try again later")
			return
		}
		c.Next()
	}
}

// RateLimitMiddlewareFromEnv builds a rate-limit middleware using env config.
// AGENTRANK_RPM (default 60). If AGENTRANK_REDIS_ADDR is set, minute-window
// keys in Redis make the limit global across replicas; else in-memory.
func RateLimitMiddlewareFromEnv() gin.HandlerFunc {
	rpm := parseEnvInt("AGENTRANK_RPM", 60)
	rc := getRedisFromEnv()
	if rc == nil {
		return RateLimitMiddleware(rpm)
	}
	fallback := RateLimitMiddleware(rpm)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if net.ParseIP(ip) == nil {
			ip = "unknown"
		}
		now := time.Now().UTC()
		key := fmt.Sprintf("rl:%s:%04d%02d%02d%02d%02d", ip, now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute())
		ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		defer cancel()

		n, err := rc.Incr(ctx, key).Result()
		if err != nil {
			// Redis down: degrade to the local limiter rather than fail open.
			fallback(c)
			return
		}
		_ = rc.Expire(ctx, key, 61*time.Second).Err()
		if int(n) > rpm {
			c.Header("Retry-After", "60")
			abortError(c, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, try again later")
			return
		}
		c.Next()
	}
}

// --- shared helpers ---

var (
	redisOnce   sync.Once
	redisClient *redis.Client
)

// getRedisFromEnv returns the shared Redis client, or nil when
// AGENTRANK_REDIS_ADDR is unset (callers fall back to in-memory state).
func getRedisFromEnv() *redis.Client {
	redisOnce.Do(func() {
		addr := os.Getenv("AGENTRANK_REDIS_ADDR")
		if addr == "" {
			return
		}
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("AGENTRANK_REDIS_PASSWORD"),
			DB:       parseEnvInt("AGENTRANK_REDIS_DB", 0),
		})
	})
	return redisClient
}

func parseEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
