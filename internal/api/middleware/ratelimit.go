package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimit defines limits for an endpoint pattern. A request matches when
// its method equals Method, its path starts with Prefix and ends with Suffix.
type RateLimit struct {
	Method   string
	Prefix   string
	Suffix   string
	Exact    bool
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

func (l RateLimit) matches(r *http.Request) bool {
	if r.Method != l.Method {
		return false
	}
	if l.Exact {
		return r.URL.Path == l.Prefix
	}
	return strings.HasPrefix(r.URL.Path, l.Prefix) && strings.HasSuffix(r.URL.Path, l.Suffix)
}

// DefaultLimits covers the collaboration routes. Order matters: the first
// match wins.
func DefaultLimits() []RateLimit {
	return []RateLimit{
		{Method: "POST", Prefix: "/rooms", Exact: true, Requests: 30, Window: time.Hour, KeyFunc: userKey},
		{Method: "POST", Prefix: "/rooms/", Suffix: "/messages", Requests: 600, Window: time.Minute, KeyFunc: userKey},
		{Method: "POST", Prefix: "/rooms/", Suffix: "/typing", Requests: 300, Window: time.Minute, KeyFunc: userKey},
		{Method: "GET", Prefix: "/rooms/", Suffix: "/ws", Requests: 30, Window: time.Minute, KeyFunc: userKey},
		{Method: "GET", Prefix: "/rooms/", Suffix: "/messages", Requests: 120, Window: time.Minute, KeyFunc: userKey},
		{Method: "PUT", Prefix: "/presence", Exact: true, Requests: 120, Window: time.Minute, KeyFunc: userKey},
		{Method: "GET", Prefix: "/stats", Exact: true, Requests: 60, Window: time.Minute, KeyFunc: ipKey},
	}
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
	Limits           []RateLimit
}

// RateLimiter implements fixed window rate limiting backed by Redis.
type RateLimiter struct {
	client           *redis.Client
	limits           []RateLimit
	blocker          *IPBlocker
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
	now              func() time.Time
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	limits := cfg.Limits
	if limits == nil {
		limits = DefaultLimits()
	}
	rl := &RateLimiter{
		client:           client,
		limits:           limits,
		blocker:          NewIPBlocker(client),
		logger:           logger.With().Str("component", "ratelimit").Logger(),
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
		now:              time.Now,
	}

	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				rl.logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		rl.logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ipKey returns rate limit key based on client IP.
func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// userKey limits per tenant user, falling back to the client IP for
// anonymous requests.
func userKey(r *http.Request) string {
	tenant, user := r.Header.Get(HeaderTenant), r.Header.Get(HeaderUser)
	if tenant == "" || user == "" {
		return ipKey(r)
	}
	return "ratelimit:user:" + tenant + ":" + user
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// CheckAndIncrement counts a request against key and reports whether it is
// allowed. Redis errors fail open.
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, remaining int, resetAt time.Time) {
	now := rl.now()
	bucket := now.Unix() / int64(window.Seconds())
	windowKey := fmt.Sprintf("%s:%d", key, bucket)
	resetAt = time.Unix((bucket+1)*int64(window.Seconds()), 0)

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, windowKey, "-inf", strconv.FormatInt(now.Add(-window).UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, windowKey)
	pipe.ZAdd(ctx, windowKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, windowKey, window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return true, limit, resetAt
	}

	count := int(countCmd.Val())
	remaining = limit - count - 1
	if remaining < 0 {
		remaining = 0
	}
	return count < limit, remaining, resetAt
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.autoBlockEnabled && rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked ip attempted request")
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit, ok := rl.findLimit(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		allowed, remaining, resetAt := rl.CheckAndIncrement(r.Context(), key, limit.Requests, limit.Window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retry := int(resetAt.Sub(rl.now()).Seconds())
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))

			rl.trackViolation(r.Context(), ip)

			rl.logger.Warn().
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("tenant_id", r.Header.Get(HeaderTenant)).
				Str("user_id", r.Header.Get(HeaderUser)).
				Str("endpoint", r.URL.Path).
				Msg("rate limit exceeded")

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) findLimit(r *http.Request) (RateLimit, bool) {
	for _, l := range rl.limits {
		if l.matches(r) {
			return l, true
		}
	}
	return RateLimit{}, false
}

// trackViolation counts violations per IP and blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	key := "ratelimit:violations:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	rl.client.Expire(ctx, key, time.Hour)

	if count >= 10 {
		rl.blocker.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations")
		rl.logger.Warn().
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("ip auto-blocked for repeated violations")
	}
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string { return "ratelimit:blocked:" + ip }

// IsBlocked checks if an IP is blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	n, _ := b.client.Exists(ctx, blockKey(ip)).Result()
	return n > 0
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	b.client.Set(ctx, blockKey(ip), reason, duration)
}
