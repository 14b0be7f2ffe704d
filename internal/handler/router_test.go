package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/resaleman/internal/dispatch"
	"github.com/hitoshi/resaleman/internal/metrics"
	"github.com/hitoshi/resaleman/internal/middleware"
	"github.com/hitoshi/resaleman/internal/model"
	"github.com/prometheus/client_golang/prometheus"
)

const testToken = "bridge-test-token"

type stubHealth struct {
	err error
}

func (s stubHealth) PingContext(ctx context.Context) error { return s.err }

func newTestRouter(t *testing.T, health HealthChecker) (http.Handler, *prometheus.Registry) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	d := dispatch.New(logger, collector)
	d.Register("echo:args", func(ctx context.Context, args dispatch.Args) (any, error) {
		var name string
		if err := args.Decode(0, &name); err != nil {
			return nil, err
		}
		n, err := args.IntOr(1, 1)
		if err != nil {
			return nil, err
		}
		return map[string]any{"name": name, "count": n}, nil
	})
	d.Register("items:findById", func(ctx context.Context, args dispatch.Args) (any, error) {
		return nil, model.NewNotFoundError("Item")
	})
	d.RegisterFlag("images:delete", func(ctx context.Context, args dispatch.Args) (bool, error) {
		return false, nil
	})

	return NewRouter(&RouterDeps{
		Invoker:       d,
		HealthChecker: health,
		Gatherer:      reg,
		Logger:        logger,
		BridgeToken:   testToken,
	}), reg
}

func invoke(t *testing.T, router http.Handler, channel, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/invoke/"+channel, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.BridgeTokenHeader, testToken)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	return env
}

func TestRouter_Invoke_Success(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := invoke(t, router, "echo:args", `["camera", 3]`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	env := decodeEnvelope(t, w)
	if env["success"] != true {
		t.Fatalf("success = %v, want true", env["success"])
	}
	data, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("data = %#v", env["data"])
	}
	if data["name"] != "camera" || data["count"] != float64(3) {
		t.Errorf("data = %#v", data)
	}
	if _, exists := env["error"]; exists {
		t.Error("error field should be omitted on success")
	}
}

func TestRouter_Invoke_EndpointFailureIsEnvelope(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := invoke(t, router, "items:findById", `[42]`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	env := decodeEnvelope(t, w)
	if env["success"] != false {
		t.Errorf("success = %v, want false", env["success"])
	}
	if env["error"] != "Item not found" {
		t.Errorf("error = %v, want %q", env["error"], "Item not found")
	}
}

func TestRouter_Invoke_MissingArgumentIsEnvelope(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := invoke(t, router, "echo:args", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	env := decodeEnvelope(t, w)
	if env["success"] != false {
		t.Errorf("success = %v, want false", env["success"])
	}
	if env["error"] != "Missing argument 0" {
		t.Errorf("error = %v", env["error"])
	}
}

func TestRouter_Invoke_FlagEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := invoke(t, router, "images:delete", `[1]`)

	env := decodeEnvelope(t, w)
	if env["success"] != false || env["data"] != false {
		t.Errorf("envelope = %#v", env)
	}
}

func TestRouter_Invoke_TransportErrors(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	tests := []struct {
		name     string
		channel  string
		body     string
		wantCode int
		wantErr  string
	}{
		{"unknown channel", "nope:missing", `[]`, http.StatusNotFound, "UNKNOWN_CHANNEL"},
		{"object body", "echo:args", `{"name":"camera"}`, http.StatusBadRequest, "INVALID_ARGUMENTS"},
		{"broken json", "echo:args", `["camera"`, http.StatusBadRequest, "INVALID_ARGUMENTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := invoke(t, router, tt.channel, tt.body)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var body middleware.ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", body.Code, tt.wantErr)
			}
		})
	}
}

func TestRouter_Invoke_BodyTooLarge(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	body := `["` + strings.Repeat("a", MaxInvokeBodyBytes) + `"]`
	w := invoke(t, router, "echo:args", body)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestRouter_Invoke_RequiresToken(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/invoke/echo:args", strings.NewReader(`["x"]`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRouter_Channels(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/channels", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp channelsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	want := []string{"echo:args", "images:delete", "items:findById"}
	if strings.Join(resp.Channels, ",") != strings.Join(want, ",") {
		t.Errorf("channels = %v, want %v", resp.Channels, want)
	}
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name   string
		health HealthChecker
		want   int
	}{
		{"no checker", nil, http.StatusOK},
		{"db ok", stubHealth{}, http.StatusOK},
		{"db down", stubHealth{err: errors.New("database is closed")}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, tt.health)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
				t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
			}
		})
	}
}

func TestRouter_Metrics_ExposeDispatchCounters(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	invoke(t, router, "echo:args", `["camera"]`)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), `channel="echo:args"`) {
		t.Errorf("metrics output should contain the dispatched channel label:\n%s", w.Body.String())
	}
}
