package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fixmux/fixmux/internal/position"
	"github.com/fixmux/fixmux/internal/registry"
	"github.com/fixmux/fixmux/internal/sim"
	"github.com/fixmux/fixmux/internal/ws"
)

// ErrNotFound is returned when the server has nothing at the requested path,
// including when no last known position exists.
var ErrNotFound = errors.New("not found")

// HTTPClient makes REST calls to a fixmuxd server.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8080").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Sessions fetches GET /api/sessions.
func (c *HTTPClient) Sessions() ([]registry.Info, error) {
	var out []registry.Info
	if err := c.get("/api/sessions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// StartSession sends POST /api/sessions. Registry refusals come back as a
// result with a non-OK code, not as an error.
func (c *HTTPClient) StartSession(handle position.Handle, sources []string, interval time.Duration) (*ws.ResultResponse, error) {
	body := ws.StartRequest{Handle: handle, Sources: sources, IntervalMs: interval.Milliseconds()}
	return c.result(http.MethodPost, "/api/sessions", body)
}

// RequestSingle sends POST /api/sessions/{handle}/single.
func (c *HTTPClient) RequestSingle(handle position.Handle, sources []string) (*ws.ResultResponse, error) {
	return c.result(http.MethodPost, sessionPath(handle)+"/single", ws.SingleRequest{Sources: sources})
}

// StartSatellites sends POST /api/sessions/{handle}/satellites.
func (c *HTTPClient) StartSatellites(handle position.Handle, interval time.Duration, singleShot bool) (*ws.ResultResponse, error) {
	body := ws.SatelliteRequest{IntervalMs: interval.Milliseconds(), SingleShot: singleShot}
	return c.result(http.MethodPost, sessionPath(handle)+"/satellites", body)
}

// StopSession sends DELETE /api/sessions/{handle}.
func (c *HTTPClient) StopSession(handle position.Handle) error {
	resp, err := c.do(http.MethodDelete, sessionPath(handle), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

// LastKnown fetches GET /api/position/last.
func (c *HTTPClient) LastKnown(satelliteOnly bool) (*position.Fix, error) {
	var fix position.Fix
	path := "/api/position/last?satelliteOnly=" + url.QueryEscape(strconv.FormatBool(satelliteOnly))
	if err := c.get(path, &fix); err != nil {
		return nil, err
	}
	return &fix, nil
}

// Providers fetches GET /api/providers.
func (c *HTTPClient) Providers() ([]position.SourceKind, error) {
	var out []position.SourceKind
	if err := c.get("/api/providers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health fetches GET /api/health.
func (c *HTTPClient) Health() (*ws.HealthResponse, error) {
	var out ws.HealthResponse
	if err := c.get("/api/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SimProviders fetches GET /api/sim/providers.
func (c *HTTPClient) SimProviders() ([]sim.ProviderState, error) {
	var out []sim.ProviderState
	if err := c.get("/api/sim/providers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetSimProvider sends POST /api/sim/providers/{name}.
func (c *HTTPClient) SetSimProvider(name string, enabled, denied bool) ([]sim.ProviderState, error) {
	resp, err := c.do(http.MethodPost, "/api/sim/providers/"+url.PathEscape(name), ws.ProviderToggle{Enabled: enabled, Denied: denied})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var out []sim.ProviderState
	return out, json.NewDecoder(resp.Body).Decode(&out)
}

func sessionPath(handle position.Handle) string {
	return "/api/sessions/" + strconv.Itoa(int(handle))
}

func (c *HTTPClient) result(method, path string, body any) (*ws.ResultResponse, error) {
	resp, err := c.do(method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusAccepted, http.StatusForbidden, http.StatusUnprocessableEntity:
	default:
		return nil, checkStatus(resp)
	}
	var out ws.ResultResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s %s: decode result: %w", method, path, err)
	}
	return &out, nil
}

func (c *HTTPClient) get(path string, out any) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPClient) do(method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuth(req)
	return c.client.Do(req)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", resp.Request.Method, resp.Request.URL.Path, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %d %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
