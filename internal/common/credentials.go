package common

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const credentialsKey ctxKey = "marketplace/credentials"

// Credentials are the caller's session credentials forwarded verbatim to the marketplace API.
type Credentials struct {
	Cookie        string
	Authorization string
	CSRFToken     string
}

// Empty reports whether no credential material is present.
func (c Credentials) Empty() bool {
	return c.Cookie == "" && c.Authorization == "" && c.CSRFToken == ""
}

// WithCredentials stores the caller credentials on the provided context.
func WithCredentials(ctx context.Context, creds Credentials) context.Context {
	return context.WithValue(ctx, credentialsKey, creds)
}

// CredentialsFrom extracts forwarded credentials from the context if present.
func CredentialsFrom(ctx context.Context) (Credentials, bool) {
	v, ok := ctx.Value(credentialsKey).(Credentials)
	return v, ok
}

// ForwardCredentials captures Cookie, Authorization and the CSRF header of inbound requests.
func ForwardCredentials(csrfHeader string) func(http.Handler) http.Handler {
	csrfHeader = strings.TrimSpace(csrfHeader)
	if csrfHeader == "" {
		csrfHeader = "X-XSRF-TOKEN"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds := Credentials{
				Cookie:        strings.TrimSpace(r.Header.Get("Cookie")),
				Authorization: strings.TrimSpace(r.Header.Get("Authorization")),
				CSRFToken:     strings.TrimSpace(r.Header.Get(csrfHeader)),
			}
			next.ServeHTTP(w, r.WithContext(WithCredentials(r.Context(), creds)))
		})
	}
}
