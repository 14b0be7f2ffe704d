package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testToken = "0123456789abcdef"

func newTokenHandler(called *bool) http.Handler {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewBridgeTokenMiddleware(testToken, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	}))
}

func TestBridgeTokenMiddleware_SafeMethods_PassThroughWithoutToken(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			called := false
			handler := newTokenHandler(&called)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/health", nil))

			if w.Result().StatusCode != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
			}
			if !called {
				t.Error("next handler should be called")
			}
		})
	}
}

func TestBridgeTokenMiddleware_StateMutatingMethods_RequireToken(t *testing.T) {
	tests := []struct {
		name   string
		method string
		token  string
		want   int
	}{
		{"POST without token", http.MethodPost, "", http.StatusForbidden},
		{"POST with wrong token", http.MethodPost, "wrong", http.StatusForbidden},
		{"POST with valid token", http.MethodPost, testToken, http.StatusOK},
		{"PUT without token", http.MethodPut, "", http.StatusForbidden},
		{"PATCH without token", http.MethodPatch, "", http.StatusForbidden},
		{"DELETE with valid token", http.MethodDelete, testToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := newTokenHandler(&called)

			req := httptest.NewRequest(tt.method, "/invoke/items:create", nil)
			if tt.token != "" {
				req.Header.Set(BridgeTokenHeader, tt.token)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			resp := w.Result()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			if called != (tt.want == http.StatusOK) {
				t.Errorf("handler called = %v", called)
			}
			if tt.want == http.StatusForbidden {
				var body ErrorResponseBody
				if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
					t.Fatalf("failed to decode: %v", err)
				}
				if body.Code != "FORBIDDEN" {
					t.Errorf("code = %q, want FORBIDDEN", body.Code)
				}
			}
		})
	}
}

func TestGenerateToken_UniqueHex(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Errorf("token length = %d, want 64", len(a))
	}
	if a == b {
		t.Error("tokens should differ")
	}
}
