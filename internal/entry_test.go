package internal

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/hearsay/internal/sse"
	"github.com/starford/hearsay/internal/testutil"
)

func testHandler(t *testing.T) (http.Handler, func() error) {
	t.Helper()
	return testHandlerWith(t, validConfig())
}

func testHandlerWith(t *testing.T, cfg *Config) (http.Handler, func() error) {
	t.Helper()
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "hearsay.db")
	svc, db, err := NewService(cfg, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	broker := sse.NewBroker(time.Second)
	t.Cleanup(broker.Close)
	return NewHandler(cfg, svc, broker), db.Close
}

func TestHealthEndpoints(t *testing.T) {
	h, closeDB := testHandler(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s = %d", path, w.Code)
		}
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if !strings.Contains(w.Body.String(), `"subscribers":0`) {
		t.Errorf("ready body = %s", w.Body.String())
	}

	_ = closeDB()
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with closed store = %d, want 503", w.Code)
	}
}

func TestAPIRequiresStoreToken(t *testing.T) {
	h, _ := testHandler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/pow", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/pow", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("with token = %d", w.Code)
	}
}

// postFrom sends a write whose forwarding headers claim a different client
// each time. The body is irrelevant; the limiter runs first.
func postFrom(h http.Handler, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/claims", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Forwarded-For", forwardedFor)
	req.Header.Set("X-Real-IP", forwardedFor)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitIgnoresForwardingHeaders(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.RPS = 0.001
	cfg.RateLimit.Burst = 2
	h, _ := testHandlerWith(t, cfg)

	throttled := 0
	for i := 0; i < 10; i++ {
		if postFrom(h, fmt.Sprintf("10.0.0.%d", i)) == http.StatusTooManyRequests {
			throttled++
		}
	}
	if throttled != 8 {
		t.Errorf("throttled = %d of 10, want 8", throttled)
	}
}

func TestRateLimitTrustsProxyWhenConfigured(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.RPS = 0.001
	cfg.RateLimit.Burst = 2
	cfg.RateLimit.TrustProxy = true
	h, _ := testHandlerWith(t, cfg)

	for i := 0; i < 10; i++ {
		if code := postFrom(h, fmt.Sprintf("10.0.0.%d", i)); code == http.StatusTooManyRequests {
			t.Fatalf("request %d throttled behind a trusted proxy", i)
		}
	}
}
