package ws

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fixmux/fixmux/internal/config"
	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/registry"
	"github.com/fixmux/fixmux/internal/sim"
)

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

type testEnv struct {
	srv         *httptest.Server
	sim         *sim.Service
	reg         *registry.Registry
	broadcaster *Broadcaster
}

func newTestEnv(t *testing.T, token string) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Server.AuthToken = token
	cfg.Broadcast.Throttle = 5 * time.Millisecond

	svc := sim.New(cfg.Sim)
	b := NewBroadcaster(cfg.Broadcast.Throttle, time.Hour, cfg.Broadcast.MaxClients, cfg.Broadcast.ClientBuffer)
	reg := registry.New(svc, b, cfg)
	b.SetSessionLister(reg)

	s := NewServer(cfg.Server, reg, b)
	s.SetProviderController(svc)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		reg.Close()
		b.Stop()
	})
	return &testEnv{srv: srv, sim: svc, reg: reg, broadcaster: b}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeResult(t *testing.T, resp *http.Response) ResultResponse {
	t.Helper()
	var out ResultResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestStartAndStopSession(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/api/sessions", StartRequest{Handle: 7, Sources: []string{"gps", "network"}, IntervalMs: 500})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	res := decodeResult(t, resp)
	if res.Code != position.NoError || res.Name != "no_error" {
		t.Errorf("result = %+v, want no_error", res)
	}
	if res.Session == nil || res.Session.Sources != "gps|network" || res.Session.IntervalMs != 500 {
		t.Errorf("session = %+v", res.Session)
	}

	resp = env.do(t, http.MethodGet, "/api/sessions", nil)
	var list []registry.Info
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Handle != 7 {
		t.Fatalf("list = %+v, want handle 7", list)
	}

	resp = env.do(t, http.MethodDelete, "/api/sessions/7", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	if env.reg.Count() != 0 {
		t.Errorf("Count after delete = %d, want 0", env.reg.Count())
	}

	resp = env.do(t, http.MethodGet, "/api/sessions/7", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestStartPermissionDenied(t *testing.T) {
	env := newTestEnv(t, "")
	if err := env.sim.SetProvider("gps", true, true); err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, http.MethodPost, "/api/sessions", StartRequest{Handle: 1, Sources: []string{"gps"}})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
	if res := decodeResult(t, resp); res.Code != position.AccessError || res.Session != nil {
		t.Errorf("result = %+v, want access_error without session", res)
	}
}

func TestStartSourcesClosed(t *testing.T) {
	env := newTestEnv(t, "")
	if err := env.sim.SetProvider("network", false, false); err != nil {
		t.Fatal(err)
	}

	resp := env.do(t, http.MethodPost, "/api/sessions", StartRequest{Handle: 2, Sources: []string{"network"}})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	if res := decodeResult(t, resp); res.Code != position.ClosedError || res.Session == nil {
		t.Errorf("result = %+v, want closed_error with session", res)
	}
}

func TestSatelliteAndSingleRoutes(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/api/sessions/3/satellites", SatelliteRequest{IntervalMs: 1000})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("satellites status = %d, want 201", resp.StatusCode)
	}
	res := decodeResult(t, resp)
	if res.Code != position.SatelliteNoError || res.Name != "no_error" {
		t.Errorf("satellite result = %+v", res)
	}

	resp = env.do(t, http.MethodPost, "/api/sessions/4/single", SingleRequest{Sources: []string{"network"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("single status = %d, want 201", resp.StatusCode)
	}
	if res := decodeResult(t, resp); res.Session == nil || !res.Session.SingleShot {
		t.Errorf("single result = %+v", res)
	}

	resp = env.do(t, http.MethodPost, "/api/sessions/x/single", SingleRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad handle status = %d, want 400", resp.StatusCode)
	}
}

func TestBadBodyRejected(t *testing.T) {
	env := newTestEnv(t, "")
	resp := env.do(t, http.MethodPost, "/api/sessions", map[string]any{"handle": 1, "bogus": true})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestLastKnownAndProviders(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodGet, "/api/position/last", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("last known before any tick = %d, want 404", resp.StatusCode)
	}

	env.sim.Step(time.Now())
	resp = env.do(t, http.MethodGet, "/api/position/last?satelliteOnly=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("last known status = %d, want 200", resp.StatusCode)
	}
	var fix position.Fix
	if err := json.NewDecoder(resp.Body).Decode(&fix); err != nil {
		t.Fatal(err)
	}
	if fix.Source != position.GPS {
		t.Errorf("source = %v, want gps", fix.Source)
	}

	resp = env.do(t, http.MethodGet, "/api/providers", nil)
	var kinds []position.SourceKind
	if err := json.NewDecoder(resp.Body).Decode(&kinds); err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 3 || kinds[0] != position.GPS || kinds[2] != position.Passive {
		t.Errorf("providers = %v, want [gps network passive]", kinds)
	}
}

func TestSimToggle(t *testing.T) {
	env := newTestEnv(t, "")

	resp := env.do(t, http.MethodPost, "/api/sim/providers/network", ProviderToggle{Enabled: false})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	for _, name := range env.sim.EnabledProviders() {
		if name == "network" {
			t.Error("network still enabled")
		}
	}

	resp = env.do(t, http.MethodPost, "/api/sim/providers/glonass", ProviderToggle{Enabled: true})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown provider status = %d, want 404", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")
	env.reg.Start(1, position.MaskGPS, time.Second)

	resp := env.do(t, http.MethodGet, "/api/health", nil)
	var h HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Sessions != 1 {
		t.Errorf("health = %+v", h)
	}
	if h.Goroutines == 0 {
		t.Error("goroutine count missing")
	}
}

func TestAuthorize(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	resp := env.do(t, http.MethodGet, "/api/sessions", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/sessions?token=s3cret", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query token status = %d, want 200", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/health", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	r, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	r.Body.Close()
	if r.StatusCode != http.StatusOK {
		t.Errorf("bearer status = %d, want 200", r.StatusCode)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin", nil, "", true},
		{"localhost", nil, "http://localhost:5173", true},
		{"loopback", nil, "http://127.0.0.1:9000", true},
		{"same host", nil, "http://example.com:8080", true},
		{"foreign", nil, "http://evil.test", false},
		{"allowed list", []string{"http://app.test"}, "http://app.test", true},
		{"allowed list blocks localhost", []string{"http://app.test"}, "http://localhost:5173", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(config.ServerConfig{AllowedOrigins: tt.allowed}, nil, nil)
			req := httptest.NewRequest(http.MethodGet, "http://example.com:8080/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := s.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestWebsocketStream(t *testing.T) {
	env := newTestEnv(t, "")
	if !env.reg.Start(5, position.MaskGPS, time.Millisecond).OK() {
		t.Fatal("start failed")
	}

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var msg decoded
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if msg.Type != MsgSnapshot {
		t.Fatalf("first message = %q, want snapshot", msg.Type)
	}
	var snap SnapshotPayload
	if err := json.Unmarshal(msg.Payload, &snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Sessions) != 1 || snap.Sessions[0].Handle != 5 {
		t.Fatalf("snapshot = %+v", snap)
	}

	env.sim.Step(time.Now())
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read position: %v", err)
	}
	if msg.Type != MsgPosition {
		t.Fatalf("message = %q, want position", msg.Type)
	}
	var pos PositionPayload
	if err := json.Unmarshal(msg.Payload, &pos); err != nil {
		t.Fatal(err)
	}
	if len(pos.Updates) != 1 || pos.Updates[0].Handle != 5 {
		t.Errorf("position = %+v", pos)
	}
}
