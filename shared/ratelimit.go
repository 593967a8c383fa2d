// shared/ratelimit.go
package shared

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RateLimiter provides per-IP rate limiting with optional Redis backend
type RateLimiter struct {
	rpm        int
	redis      *redis.Client
	inMemMu    sync.Mutex
	inMemCount map[string]int
	inMemSince time.Time
}

func NewRateLimiter(rpm int, redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{rpm: rpm, redis: redisClient, inMemCount: map[string]int{}}
}

// key for the current minute window
func minuteKey(ip string) string {
	return fmt.Sprintf("ratelimit:%s:%d", ip, time.Now().Unix()/60)
}

// Allow returns whether the request is allowed and remaining quota (best-effort)
func (r *RateLimiter) Allow(ip string) (bool, int) {
	if r.rpm <= 0 {
		return true, 0
	}
	if r.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		key := minuteKey(ip)
		n, err := r.redis.Incr(ctx, key).Result()
		if err != nil {
			// Fallback to in-memory on error
			return r.allowInMem(ip)
		}
		if n == 1 {
			_ = r.redis.Expire(ctx, key, 65*time.Second).Err()
		}
		return int(n) <= r.rpm, r.rpm - int(n)
	}
	return r.allowInMem(ip)
}

func (r *RateLimiter) allowInMem(ip string) (bool, int) {
	now := time.Now()
	r.inMemMu.Lock()
	defer r.inMemMu.Unlock()
	// Reset counts on minute boundary
	if now.Sub(r.inMemSince) > 60*time.Second {
		r.inMemCount = map[string]int{}
		r.inMemSince = now
	}
	r.inMemCount[ip]++
	n := r.inMemCount[ip]
	return n <= r.rpm, r.rpm - n
}

// GetClientIP extracts client IP from headers or RemoteAddr
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return strings.TrimSpace(rip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
