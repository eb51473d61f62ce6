package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Drrein86/lockerweb-core/internal/dispatch"
	"github.com/Drrein86/lockerweb-core/internal/infrastructure/config"
	"github.com/Drrein86/lockerweb-core/internal/infrastructure/logging"
	"github.com/Drrein86/lockerweb-core/internal/locker"
)

const (
	testJWTSecret = "test-secret-key-at-least-32-characters-long"
	testDeviceKey = "test-device-key"
)

// testServer creates a Server wired to a real registry, correlator and
// dispatcher, with a short liveness window for offline tests.
func testServer(t *testing.T) (*Server, *locker.Registry) {
	t.Helper()

	registry := locker.NewRegistry(time.Minute)
	correlator := dispatch.NewCorrelator(nil)
	dispatcher := dispatch.NewDispatcher(registry, correlator, time.Second, nil)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{
				Secret:         testJWTSecret,
				AccessTokenTTL: 15,
			},
			Admin: config.AdminConfig{
				Username: "admin",
				Password: "test-password",
			},
			DeviceKey: testDeviceKey,
		},
		Locker: config.LockerConfig{
			LivenessWindow:   60,
			SnapshotInterval: 30,
			CommandTimeoutMs: 1000,
			PollQueueSize:    8,
		},
		Logger:     log,
		Registry:   registry,
		Correlator: correlator,
		Dispatcher: dispatcher,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	// Initialise hub and sink for tests (normally done in Start)
	srv.hub = NewHub(srv.wsCfg, log)
	srv.hub.SetSnapshotFunc(srv.fleetSnapshotPayload)
	go srv.hub.Run(context.Background())
	srv.sink = srv.hub
	dispatcher.SetEventSink(srv.hub)

	return srv, registry
}

// authHeader signs a short-lived admin token for protected routes.
func authHeader(t *testing.T) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub": "admin",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Minute).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}
	return "Bearer " + signed
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestCORS_Preflight(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("ACAO = %q, want %q", got, "http://localhost:3000")
	}
}

func TestLogin(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{
			name:       "valid credentials",
			body:       `{"username":"admin","password":"test-password"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong password",
			body:       `{"username":"admin","password":"nope"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unknown user",
			body:       `{"username":"eve","password":"test-password"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed body",
			body:       `{not json`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				var resp loginResponse
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
				if resp.AccessToken == "" || resp.TokenType != "Bearer" {
					t.Errorf("login response = %+v", resp)
				}
			}
		})
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lockers", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("no-token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/lockers", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad-token status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestListLockers(t *testing.T) {
	srv, registry := testServer(t)
	router := srv.buildRouter()

	registry.Register("LOC002", "10.0.0.2", nil, nil)
	registry.Register("LOC001", "10.0.0.1", nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lockers", nil)
	req.Header.Set("Authorization", authHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Lockers []locker.Locker `json:"lockers"`
		Count   int             `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.Lockers) != 2 {
		t.Fatalf("count = %d, lockers = %d, want 2", resp.Count, len(resp.Lockers))
	}
	// Sorted by device ID.
	if resp.Lockers[0].DeviceID != "LOC001" || resp.Lockers[1].DeviceID != "LOC002" {
		t.Errorf("order = %s, %s", resp.Lockers[0].DeviceID, resp.Lockers[1].DeviceID)
	}
}

func TestGetLocker(t *testing.T) {
	srv, registry := testServer(t)
	router := srv.buildRouter()

	registry.Register("LOC001", "10.0.0.1", map[string]locker.CellUpdate{
		"A1": {Locked: boolPtr(true)},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lockers/LOC001", nil)
	req.Header.Set("Authorization", authHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var l locker.Locker
	if err := json.Unmarshal(w.Body.Bytes(), &l); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if l.DeviceID != "LOC001" || !l.Online || !l.Cells["A1"].Locked {
		t.Errorf("locker = %+v", l)
	}
}

func TestGetLocker_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lockers/ghost", nil)
	req.Header.Set("Authorization", authHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestStats(t *testing.T) {
	srv, registry := testServer(t)
	router := srv.buildRouter()

	registry.Register("LOC001", "", nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", authHeader(t))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if int(resp["lockers_total"].(float64)) != 1 {
		t.Errorf("lockers_total = %v, want 1", resp["lockers_total"])
	}
}

func boolPtr(b bool) *bool { return &b }
