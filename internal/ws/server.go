package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/fixmux/fixmux/internal/config"
	"github.com/fixmux/fixmux/internal/locsvc"
	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/registry"
	"github.com/fixmux/fixmux/internal/sim"
)

// ProviderController toggles simulated providers. Only available when the
// daemon runs against the simulator.
type ProviderController interface {
	SetProvider(name string, enabled, denied bool) error
	ProviderStates() []sim.ProviderState
}

type Server struct {
	registry       *registry.Registry
	broadcaster    *Broadcaster
	providers      ProviderController
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	started        time.Time
	proc           *process.Process
}

func NewServer(cfg config.ServerConfig, reg *registry.Registry, broadcaster *Broadcaster) *Server {
	s := &Server{
		registry:       reg,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.AuthToken,
		started:        time.Now(),
	}

	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = p
	} else {
		log.Printf("[server] process stats unavailable: %v", err)
	}

	return s
}

// SetProviderController enables the /api/sim routes. Must be called before
// SetupRoutes.
func (s *Server) SetProviderController(pc ProviderController) {
	s.providers = pc
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /api/sessions", s.guard(s.handleStart))
	mux.HandleFunc("GET /api/sessions", s.guard(s.handleList))
	mux.HandleFunc("GET /api/sessions/{handle}", s.guard(s.handleGet))
	mux.HandleFunc("DELETE /api/sessions/{handle}", s.guard(s.handleStop))
	mux.HandleFunc("POST /api/sessions/{handle}/single", s.guard(s.handleSingle))
	mux.HandleFunc("POST /api/sessions/{handle}/satellites", s.guard(s.handleSatellites))
	mux.HandleFunc("GET /api/position/last", s.guard(s.handleLastKnown))
	mux.HandleFunc("GET /api/providers", s.guard(s.handleProviders))
	mux.HandleFunc("GET /api/health", s.guard(s.handleHealth))

	if s.providers != nil {
		log.Printf("[server] simulator controls enabled")
		mux.HandleFunc("GET /api/sim/providers", s.guard(s.handleSimProviders))
		mux.HandleFunc("POST /api/sim/providers/{name}", s.guard(s.handleSimToggle))
	}
}

// Handler returns the full HTTP handler with security headers applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) guard(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		log.Printf("[ws] rejecting %s: %v", r.RemoteAddr, err)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}
	log.Printf("[ws] client connected: %s", r.RemoteAddr)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("[ws] client disconnected: %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res := s.registry.Start(req.Handle, position.ParseMask(req.Sources...), time.Duration(req.IntervalMs)*time.Millisecond)
	s.writeResult(w, req.Handle, res)
}

func (s *Server) handleSingle(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathHandle(w, r)
	if !ok {
		return
	}
	var req SingleRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res := s.registry.RequestSingleUpdate(handle, position.ParseMask(req.Sources...))
	s.writeResult(w, handle, res)
}

func (s *Server) handleSatellites(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathHandle(w, r)
	if !ok {
		return
	}
	var req SatelliteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res := s.registry.StartSatelliteUpdates(handle, time.Duration(req.IntervalMs)*time.Millisecond, req.SingleShot)
	s.writeResult(w, handle, res)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathHandle(w, r)
	if !ok {
		return
	}
	s.registry.Stop(handle)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathHandle(w, r)
	if !ok {
		return
	}
	info, found := s.registry.Lookup(handle)
	if !found {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleLastKnown(w http.ResponseWriter, r *http.Request) {
	satelliteOnly, _ := strconv.ParseBool(r.URL.Query().Get("satelliteOnly"))
	fix, ok := s.registry.QueryLastKnownPosition(satelliteOnly)
	if !ok {
		http.Error(w, "no last known position", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, fix)
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListAvailableProviders())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		Sessions:   s.registry.Count(),
		Clients:    s.broadcaster.ClientCount(),
		UptimeSec:  int64(time.Since(s.started).Seconds()),
		Goroutines: runtime.NumGoroutine(),
	}
	if s.proc != nil {
		if mem, err := s.proc.MemoryInfo(); err == nil {
			resp.RSSBytes = mem.RSS
		}
		if cpu, err := s.proc.CPUPercent(); err == nil {
			resp.CPUPercent = cpu
		}
		if n, err := s.proc.NumThreads(); err == nil {
			resp.Threads = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSimProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.providers.ProviderStates())
}

func (s *Server) handleSimToggle(w http.ResponseWriter, r *http.Request) {
	var req ProviderToggle
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.providers.SetProvider(r.PathValue("name"), req.Enabled, req.Denied); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, locsvc.ErrUnknownProvider) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, s.providers.ProviderStates())
}

func (s *Server) writeResult(w http.ResponseWriter, handle position.Handle, res position.Result) {
	resp := ResultResponse{Code: res.Code, Name: res.String()}
	if info, ok := s.registry.Lookup(handle); ok {
		resp.Session = &info
	}
	writeJSON(w, statusFor(res), resp)
}

// statusFor maps a registry result to an HTTP status. A session stored
// with every source disabled is reported as accepted.
func statusFor(res position.Result) int {
	switch {
	case res.OK():
		return http.StatusCreated
	case res.Code == position.ClosedError:
		return http.StatusAccepted
	case res.Code == position.AccessError:
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

func pathHandle(w http.ResponseWriter, r *http.Request) (position.Handle, bool) {
	n, err := strconv.Atoi(r.PathValue("handle"))
	if err != nil {
		http.Error(w, "invalid handle", http.StatusBadRequest)
		return 0, false
	}
	return position.Handle(n), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorPayload{Message: err.Error()})
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Fixmux-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Hostname()
	return parsed.Host == r.Host || host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// ListenAndServe serves handler until ctx is cancelled, then shuts down
// gracefully.
func ListenAndServe(ctx context.Context, host string, port int, handler http.Handler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
