package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"zigbee-ncp-host/internal/ash"
	"zigbee-ncp-host/internal/automation"
	"zigbee-ncp-host/internal/coordinator"
	"zigbee-ncp-host/internal/ezsp"
	"zigbee-ncp-host/internal/ncp"
	"zigbee-ncp-host/internal/store"
)

type fakeBackend struct {
	events *coordinator.EventBus
	store  *store.BoltStore

	mu        sync.Mutex
	permits   []uint8
	permitErr error
}

func (f *fakeBackend) Events() *coordinator.EventBus { return f.events }
func (f *fakeBackend) Store() store.Store            { return f.store }

func (f *fakeBackend) NetworkInfo() map[string]any {
	return map[string]any{"state": "up", "channel": 15, "pan_id": "0x1A62"}
}

func (f *fakeBackend) PermitJoin(_ context.Context, seconds uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permits = append(f.permits, seconds)
	return f.permitErr
}

func (f *fakeBackend) RemoveDevice(eui string) error {
	return f.store.DeleteDevice(eui)
}

func (f *fakeBackend) Stats() ncp.Stats {
	return ncp.Stats{
		Stats:    ash.Stats{FramesOut: 12, DataOut: 9, Retransmits: 2},
		Commands: 9,
		Timeouts: 1,
		Ready:    true,
	}
}

// scriptBackend adds the unicast method scripts need.
type scriptBackend struct{ *fakeBackend }

func (scriptBackend) SendUnicast(context.Context, uint16, ezsp.ApsFrame, []byte) (uint8, error) {
	return 0, errors.New("unicast not supported")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestServer(t *testing.T, opts ...ServerOption) (*Server, *fakeBackend) {
	t.Helper()
	db, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	backend := &fakeBackend{events: coordinator.NewEventBus(testLogger()), store: db}
	s := NewServer(backend, testLogger(), opts...)
	t.Cleanup(s.Stop)
	return s, backend
}

func do(t *testing.T, s *Server, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestAPINetworkInfo(t *testing.T) {
	s, backend := setupTestServer(t)
	if err := backend.store.SaveDevice(&store.Device{EUI64: "00124b001234abcd", NodeID: 0x1234}); err != nil {
		t.Fatal(err)
	}

	w := do(t, s, "GET", "/api/network", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", w.Code)
	}
	info := decode[map[string]any](t, w)
	if info["state"] != "up" || info["device_count"] != float64(1) {
		t.Errorf("info: got %v", info)
	}
}

func TestAPIPermitJoin(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		permitErr  error
		wantStatus int
		wantPermit []uint8
	}{
		{"open", `{"duration": 60}`, nil, http.StatusOK, []uint8{60}},
		{"close", `{"duration": 0}`, nil, http.StatusOK, []uint8{0}},
		{"missing", `{}`, nil, http.StatusBadRequest, nil},
		{"too long", `{"duration": 255}`, nil, http.StatusBadRequest, nil},
		{"negative", `{"duration": -1}`, nil, http.StatusBadRequest, nil},
		{"garbage", `nope`, nil, http.StatusBadRequest, nil},
		{"ncp failure", `{"duration": 30}`, errors.New("link down"), http.StatusServiceUnavailable, []uint8{30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, backend := setupTestServer(t)
			backend.permitErr = tt.permitErr

			w := do(t, s, "POST", "/api/permit_join", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if len(backend.permits) != len(tt.wantPermit) {
				t.Fatalf("permits: got %v, want %v", backend.permits, tt.wantPermit)
			}
			for i := range tt.wantPermit {
				if backend.permits[i] != tt.wantPermit[i] {
					t.Errorf("permit %d: got %d, want %d", i, backend.permits[i], tt.wantPermit[i])
				}
			}
		})
	}
}

func TestAPIDevices(t *testing.T) {
	s, backend := setupTestServer(t)

	w := do(t, s, "GET", "/api/devices", "")
	if w.Code != http.StatusOK || w.Body.String() != "[]\n" {
		t.Errorf("empty list: got %d %q", w.Code, w.Body.String())
	}

	if err := backend.store.SaveDevice(&store.Device{EUI64: "00124b001234abcd", NodeID: 0x1234}); err != nil {
		t.Fatal(err)
	}

	w = do(t, s, "GET", "/api/devices", "")
	if got := decode[[]store.Device](t, w); len(got) != 1 || got[0].NodeID != 0x1234 {
		t.Errorf("list: got %+v", got)
	}

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{"get by colon form", "GET", "/api/devices/00:12:4B:00:12:34:AB:CD", "", http.StatusOK},
		{"get unknown", "GET", "/api/devices/0000000000000001", "", http.StatusNotFound},
		{"get malformed", "GET", "/api/devices/xyz", "", http.StatusBadRequest},
		{"rename", "PATCH", "/api/devices/00124b001234abcd", `{"friendly_name": "hall sensor"}`, http.StatusOK},
		{"rename unknown", "PATCH", "/api/devices/0000000000000001", `{"friendly_name": "x"}`, http.StatusNotFound},
		{"rename bad body", "PATCH", "/api/devices/00124b001234abcd", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	dev, err := backend.store.GetDevice("00124b001234abcd")
	if err != nil {
		t.Fatal(err)
	}
	if dev.FriendlyName != "hall sensor" {
		t.Errorf("friendly name: got %q, want hall sensor", dev.FriendlyName)
	}

	if w := do(t, s, "DELETE", "/api/devices/00124b001234abcd", ""); w.Code != http.StatusOK {
		t.Errorf("delete: got %d, want 200", w.Code)
	}
	if w := do(t, s, "DELETE", "/api/devices/00124b001234abcd", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", w.Code)
	}
}

func TestAPIStatsAndVersion(t *testing.T) {
	s, _ := setupTestServer(t, WithVersion("1.2.3"))

	stats := decode[map[string]any](t, do(t, s, "GET", "/api/stats", ""))
	want := map[string]any{"ready": true, "frames_out": float64(12), "data_out": float64(9),
		"retransmits": float64(2), "commands": float64(9), "timeouts": float64(1)}
	for k, v := range want {
		if stats[k] != v {
			t.Errorf("stats[%s]: got %v, want %v", k, stats[k], v)
		}
	}

	version := decode[map[string]string](t, do(t, s, "GET", "/api/version", ""))
	if version["version"] != "1.2.3" {
		t.Errorf("version: got %q, want 1.2.3", version["version"])
	}
}

func TestAPIKey(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	s, _ := setupTestServer(t, WithAPIKey("secret"), WithMetrics(metrics))

	tests := []struct {
		name       string
		path       string
		header     []string
		wantStatus int
	}{
		{"no key", "/api/version", nil, http.StatusUnauthorized},
		{"wrong key", "/api/version", []string{"X-API-Key", "nope"}, http.StatusUnauthorized},
		{"header key", "/api/version", []string{"X-API-Key", "secret"}, http.StatusOK},
		{"bearer", "/api/version", []string{"Authorization", "Bearer secret"}, http.StatusOK},
		{"basic is not bearer", "/api/version", []string{"Authorization", "Basic secret"}, http.StatusUnauthorized},
		{"metrics protected", "/metrics", nil, http.StatusUnauthorized},
		{"metrics with key", "/metrics", []string{"X-API-Key", "secret"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(t, s, "GET", tt.path, "", tt.header...); w.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestMetricsNotRegisteredByDefault(t *testing.T) {
	s, _ := setupTestServer(t)
	if w := do(t, s, "GET", "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", w.Code)
	}
}

func TestCORS(t *testing.T) {
	s, _ := setupTestServer(t, WithAllowedOrigins([]string{"http://dash.local"}))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"preflight allowed", "OPTIONS", "http://dash.local", http.StatusNoContent, "http://dash.local"},
		{"preflight denied", "OPTIONS", "http://evil.example", http.StatusForbidden, ""},
		{"post denied", "POST", "http://evil.example", http.StatusForbidden, ""},
		{"get from other origin", "GET", "http://evil.example", http.StatusOK, ""},
		{"get allowed", "GET", "http://dash.local", http.StatusOK, "http://dash.local"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := ""
			path := "/api/version"
			if tt.method == "POST" {
				path, body = "/api/permit_join", `{"duration": 1}`
			}
			w := do(t, s, tt.method, path, body, "Origin", tt.origin)
			if w.Code != tt.wantStatus {
				t.Errorf("status: got %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("allow origin: got %q, want %q", got, tt.wantAllow)
			}
		})
	}
}

func TestAPIScripts(t *testing.T) {
	_, backend := setupTestServer(t)
	mgr, err := automation.NewManager(filepath.Join(t.TempDir(), "scripts"))
	if err != nil {
		t.Fatal(err)
	}
	engine := automation.NewEngine(scriptBackend{backend}, mgr, testLogger())
	t.Cleanup(engine.Stop)
	s := NewServer(backend, testLogger(), WithAutomation(engine, mgr))
	t.Cleanup(s.Stop)

	if w := do(t, s, "GET", "/api/scripts", ""); w.Body.String() != "[]\n" {
		t.Errorf("empty list: got %q", w.Body.String())
	}

	w := do(t, s, "PUT", "/api/scripts/greet", `{"name": "Greet", "lua_code": "ncp.log('hi')", "enabled": true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("save: got %d (%s)", w.Code, w.Body.String())
	}
	if n := engine.Running(); n != 1 {
		t.Errorf("running after save: got %d, want 1", n)
	}

	scripts := decode[[]automation.Script](t, do(t, s, "GET", "/api/scripts", ""))
	if len(scripts) != 1 || scripts[0].ID != "greet" || scripts[0].Meta.Name != "Greet" {
		t.Errorf("list: got %+v", scripts)
	}

	res := decode[automation.RunResult](t, do(t, s, "POST", "/api/scripts/run", `{"id": "greet"}`))
	if !res.OK || len(res.Logs) != 1 || res.Logs[0] != "hi" {
		t.Errorf("run by id: got %+v", res)
	}
	res = decode[automation.RunResult](t, do(t, s, "POST", "/api/scripts/run", `{"lua_code": "ncp.permit_join(5)"}`))
	if !res.OK || len(backend.permits) != 1 || backend.permits[0] != 5 {
		t.Errorf("run inline: got %+v, permits %v", res, backend.permits)
	}
	if w := do(t, s, "POST", "/api/scripts/run", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("run without code: got %d, want 400", w.Code)
	}

	if w := do(t, s, "DELETE", "/api/scripts/greet", ""); w.Code != http.StatusOK {
		t.Errorf("delete: got %d", w.Code)
	}
	if n := engine.Running(); n != 0 {
		t.Errorf("running after delete: got %d, want 0", n)
	}
	if w := do(t, s, "DELETE", "/api/scripts/greet", ""); w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", w.Code)
	}
}

func TestAPIScriptsWithoutAutomation(t *testing.T) {
	s, _ := setupTestServer(t)
	if w := do(t, s, "POST", "/api/scripts/run", `{"lua_code": "x"}`); w.Code != http.StatusNotImplemented {
		t.Errorf("run: got %d, want 501", w.Code)
	}
}
