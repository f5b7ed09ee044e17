package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/rooms":                   "/rooms",
		"/rooms/":                  "/rooms/",
		"/rooms/abc":               "/rooms/:id",
		"/rooms/abc/messages":      "/rooms/:id/messages",
		"/rooms/abc/ws":            "/rooms/:id/ws",
		"/health":                  "/health",
		"/rooms/abc/presence/more": "/rooms/:id/presence/more",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestStatusWriterSupportsHijack(t *testing.T) {
	var _ http.Hijacker = &statusWriter{}
}

func TestRequireIdentity(t *testing.T) {
	var got Identity
	h := RequireIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetIdentity(r.Context())
	}))

	tests := []struct {
		name   string
		tenant string
		user   string
		status int
	}{
		{"valid", "acme", "agent-7", http.StatusOK},
		{"missing tenant", "", "agent-7", http.StatusUnauthorized},
		{"missing user", "acme", "", http.StatusUnauthorized},
		{"bad characters", "acme", "agent 7", http.StatusBadRequest},
		{"too long", strings.Repeat("a", 129), "agent-7", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
			req.Header.Set(HeaderTenant, tt.tenant)
			req.Header.Set(HeaderUser, tt.user)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	assert.Equal(t, Identity{TenantID: "acme", UserID: "agent-7"}, got)
}

func TestValidateRequest(t *testing.T) {
	h := ValidateRequest(okHandler)

	tests := []struct {
		name   string
		method string
		target string
		ct     string
		body   string
		status int
	}{
		{"json post", http.MethodPost, "/rooms", "application/json", `{}`, http.StatusOK},
		{"form post", http.MethodPost, "/rooms", "text/plain", `x`, http.StatusUnsupportedMediaType},
		{"empty post", http.MethodPost, "/rooms/x/leave", "", ``, http.StatusOK},
		{"traversal", http.MethodGet, "/rooms/../etc", "", ``, http.StatusBadRequest},
		{"script query", http.MethodGet, "/rooms?x=javascript:alert(1)", "", ``, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.ct != "" {
				req.Header.Set("Content-Type", tt.ct)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestMaxBodySize(t *testing.T) {
	h := MaxBodySize(4)(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/rooms", strings.NewReader("too large"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func newLimiter(t *testing.T, cfg RateLimiterConfig) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	rl := NewRateLimiter(client, zerolog.Nop(), cfg)
	rl.now = func() time.Time { return time.Date(2026, 5, 1, 9, 0, 30, 0, time.UTC) }
	return rl, mr
}

func limitedRequest(user, ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/rooms/r1/messages", nil)
	req.Header.Set(HeaderTenant, "acme")
	req.Header.Set(HeaderUser, user)
	req.RemoteAddr = ip + ":4321"
	return req
}

func TestRateLimiterPerUser(t *testing.T) {
	rl, _ := newLimiter(t, RateLimiterConfig{Limits: []RateLimit{
		{Method: "POST", Prefix: "/rooms/", Suffix: "/messages", Requests: 2, Window: time.Minute, KeyFunc: userKey},
	}})
	h := rl.Middleware(okHandler)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, limitedRequest("u1", "10.0.0.1"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, limitedRequest("u1", "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// Another user has its own budget.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, limitedRequest("u2", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, w.Code)

	// Unmatched routes are not limited.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
}

func TestRateLimiterWhitelist(t *testing.T) {
	rl, _ := newLimiter(t, RateLimiterConfig{
		Whitelist: []string{"10.1.0.0/16", "192.168.1.5", "not-a-cidr/99"},
		Limits: []RateLimit{
			{Method: "POST", Prefix: "/rooms/", Suffix: "/messages", Requests: 1, Window: time.Minute, KeyFunc: userKey},
		},
	})
	h := rl.Middleware(okHandler)

	for _, ip := range []string{"10.1.2.3", "192.168.1.5"} {
		for i := 0; i < 3; i++ {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, limitedRequest("u1", ip))
			assert.Equal(t, http.StatusOK, w.Code, ip)
		}
	}
}

func TestRateLimiterAutoBlock(t *testing.T) {
	rl, mr := newLimiter(t, RateLimiterConfig{
		AutoBlockEnabled: true,
		Limits: []RateLimit{
			{Method: "POST", Prefix: "/rooms/", Suffix: "/messages", Requests: 1, Window: time.Minute, KeyFunc: userKey},
		},
	})
	h := rl.Middleware(okHandler)

	for i := 0; i < 11; i++ {
		h.ServeHTTP(httptest.NewRecorder(), limitedRequest("u1", "10.0.0.9"))
	}
	assert.True(t, mr.Exists(blockKey("10.0.0.9")))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, limitedRequest("u2", "10.0.0.9"))
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	rl, mr := newLimiter(t, RateLimiterConfig{Limits: []RateLimit{
		{Method: "POST", Prefix: "/rooms/", Suffix: "/messages", Requests: 1, Window: time.Minute, KeyFunc: userKey},
	}})
	mr.Close()

	w := httptest.NewRecorder()
	rl.Middleware(okHandler).ServeHTTP(w, limitedRequest("u1", "10.0.0.1"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDefaultLimitsOrder(t *testing.T) {
	rl, _ := newLimiter(t, RateLimiterConfig{})

	create := httptest.NewRequest(http.MethodPost, "/rooms", nil)
	l, found := rl.findLimit(create)
	require.True(t, found)
	assert.Equal(t, time.Hour, l.Window)

	send := httptest.NewRequest(http.MethodPost, "/rooms/r1/messages", nil)
	l, found = rl.findLimit(send)
	require.True(t, found)
	assert.Equal(t, 600, l.Requests)

	_, found = rl.findLimit(httptest.NewRequest(http.MethodGet, "/rooms/r1", nil))
	assert.False(t, found)
}
