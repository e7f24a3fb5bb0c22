package security

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"strings"
)

// CSRF enforces the double-submit pattern used by the marketplace: the
// storefront echoes the XSRF cookie value in a request header.
type CSRF struct {
	Header string
	Cookie string
}

// Middleware rejects non-idempotent requests whose CSRF header does not match
// the cookie. Bearer-authenticated requests are exempt.
func (c CSRF) Middleware(next http.Handler) http.Handler {
	headerName := strings.TrimSpace(c.Header)
	if headerName == "" {
		headerName = "X-XSRF-TOKEN"
	}
	cookieName := strings.TrimSpace(c.Cookie)
	if cookieName == "" {
		cookieName = "XSRF-TOKEN"
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions || method == http.MethodTrace {
			next.ServeHTTP(w, r)
			return
		}

		auth := strings.TrimSpace(r.Header.Get("Authorization"))
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(headerName))
		if token == "" {
			http.Error(w, "missing csrf token", http.StatusForbidden)
			return
		}

		cookie, err := r.Cookie(cookieName)
		if err != nil || strings.TrimSpace(cookie.Value) == "" {
			http.Error(w, "missing csrf cookie", http.StatusForbidden)
			return
		}
		// the cookie is URL-encoded; the header carries the decoded value
		expected, err := url.QueryUnescape(cookie.Value)
		if err != nil {
			expected = cookie.Value
		}

		if subtleConstantTimeCompare(token, expected) != 1 {
			http.Error(w, "invalid csrf token", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func subtleConstantTimeCompare(a, b string) int {
	if len(a) != len(b) {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b))
}
