package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeaders adds security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("Content-Security-Policy", "default-src 'none'")
		next.ServeHTTP(w, r)
	})
}

// MaxBodySize limits request body size.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				jsonError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateRequest rejects non-JSON bodies and paths or queries carrying
// common attack patterns.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			ct := r.Header.Get("Content-Type")
			if r.ContentLength > 0 && !strings.HasPrefix(ct, "application/json") {
				jsonError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
				return
			}
		}

		if containsSuspiciousPatterns(r.URL.Path) || containsSuspiciousPatterns(r.URL.RawQuery) {
			jsonError(w, http.StatusBadRequest, "invalid request")
			return
		}

		next.ServeHTTP(w, r)
	})
}

var suspiciousPatterns = []string{
	"..",          // path traversal
	"//",          // path manipulation
	"<script",     // XSS
	"javascript:", // XSS
	"vbscript:",   // XSS
	"onload=",
	"onerror=",
}

func containsSuspiciousPatterns(input string) bool {
	if input == "" {
		return false
	}
	lower := strings.ToLower(input)
	for _, s := range suspiciousPatterns {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
