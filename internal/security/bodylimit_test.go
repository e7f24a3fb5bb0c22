package security

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBodyLimit(t *testing.T) {
	cases := []struct {
		name          string
		body          string
		contentLength int64
		wantStatus    int
		wantCode      string
	}{
		{name: "note within limit", body: `{"note":"ok"}`, contentLength: -1, wantStatus: http.StatusOK},
		{name: "streamed past limit", body: `{"note":"` + strings.Repeat("a", 40) + `"}`, contentLength: -1, wantStatus: http.StatusRequestEntityTooLarge, wantCode: "PAYLOAD_TOO_LARGE"},
		{name: "declared past limit", body: `{}`, contentLength: 1 << 20, wantStatus: http.StatusRequestEntityTooLarge, wantCode: "PAYLOAD_TOO_LARGE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var reads []string
			handler := BodyLimit{Max: 32}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				first, _ := io.ReadAll(r.Body)
				reads = append(reads, string(first))
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPut, "/api/v1/checkout/sessions/s1/stores/0/note", strings.NewReader(tc.body))
			req.ContentLength = tc.contentLength
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if tc.wantCode == "" {
				if len(reads) != 1 || reads[0] != tc.body {
					t.Fatalf("expected handler to see body %q, got %v", tc.body, reads)
				}
				return
			}
			if len(reads) != 0 {
				t.Fatalf("handler must not run for rejected body")
			}
			var env struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode error envelope: %v", err)
			}
			if env.Error.Code != tc.wantCode {
				t.Fatalf("expected code %s, got %q", tc.wantCode, env.Error.Code)
			}
		})
	}
}

func TestBodyLimitDisabledPassesThrough(t *testing.T) {
	called := false
	handler := BodyLimit{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout/sessions", strings.NewReader(strings.Repeat("x", 1024)))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatalf("expected handler to run when no limit is set")
	}
}
