package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/sockhttp/internal/server/endpoint"
	"github.com/yndnr/sockhttp/internal/server/httpconn"
	"github.com/yndnr/sockhttp/internal/telemetry/logger"
)

type fakeRegistrar struct {
	mu      sync.Mutex
	routes  map[string]endpoint.AppListener
	failOn  string
	removed []string
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{routes: make(map[string]endpoint.AppListener)}
}

func (r *fakeRegistrar) AddPrefix(p string, l endpoint.AppListener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == r.failOn {
		return errors.New("refused")
	}
	r.routes[p] = l
	return nil
}

func (r *fakeRegistrar) RemovePrefix(p string, _ endpoint.AppListener) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, p)
	r.removed = append(r.removed, p)
	return nil
}

func (r *fakeRegistrar) keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.routes))
	for k := range r.routes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApp_StartStop(t *testing.T) {
	reg := newFakeRegistrar()
	a := New("demo", nil)

	prefixes := []string{"http://*:8080/a/", "http://*:8080/b/"}
	if err := a.Start(reg, prefixes); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !equal(reg.keys(), prefixes) || !equal(a.Prefixes(), prefixes) {
		t.Errorf("registered %v, app has %v", reg.keys(), a.Prefixes())
	}
	if err := a.Start(reg, prefixes); err == nil {
		t.Error("second Start() succeeded")
	}

	if err := a.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(reg.keys()) != 0 || len(a.Prefixes()) != 0 {
		t.Errorf("prefixes left after Stop: %v %v", reg.keys(), a.Prefixes())
	}
	if err := a.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestApp_StartRollsBack(t *testing.T) {
	reg := newFakeRegistrar()
	reg.failOn = "http://*:8080/bad/"
	a := New("demo", nil)

	err := a.Start(reg, []string{"http://*:8080/a/", "http://*:8080/bad/", "http://*:8080/c/"})
	if err == nil {
		t.Fatal("Start() succeeded")
	}
	if len(reg.keys()) != 0 {
		t.Errorf("prefixes left after failed Start: %v", reg.keys())
	}
	if !equal(reg.removed, []string{"http://*:8080/a/"}) {
		t.Errorf("removed = %v", reg.removed)
	}

	// A failed start can be retried.
	reg.failOn = ""
	if err := a.Start(reg, []string{"http://*:8080/a/"}); err != nil {
		t.Errorf("retry Start() error = %v", err)
	}
}

func TestApp_SetPrefixes(t *testing.T) {
	reg := newFakeRegistrar()
	a := New("demo", nil)

	if err := a.SetPrefixes([]string{"http://*/"}); err == nil {
		t.Error("SetPrefixes() before Start succeeded")
	}

	if err := a.Start(reg, []string{"http://*/a/", "http://*/b/"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := a.SetPrefixes([]string{"http://*/b/", "http://*/c/"}); err != nil {
		t.Fatalf("SetPrefixes() error = %v", err)
	}

	want := []string{"http://*:80/b/", "http://*:80/c/"}
	if !equal(reg.keys(), want) || !equal(a.Prefixes(), want) {
		t.Errorf("registered %v, app has %v, want %v", reg.keys(), a.Prefixes(), want)
	}

	reg.failOn = "http://*:80/d/"
	if err := a.SetPrefixes([]string{"http://*/d/"}); err == nil {
		t.Error("SetPrefixes() with a refused prefix succeeded")
	}
	if len(a.Prefixes()) != 0 {
		t.Errorf("app has %v, want none", a.Prefixes())
	}
}

func TestApp_InvalidPrefixRegistersNothing(t *testing.T) {
	reg := newFakeRegistrar()
	a := New("demo", nil)

	if err := a.Start(reg, []string{"http://*:8080/a/", "ftp://*:8080/b/"}); err == nil {
		t.Fatal("Start() with an invalid prefix succeeded")
	}
	if len(reg.keys()) != 0 || len(reg.removed) != 0 {
		t.Errorf("registrar touched: routes %v, removed %v", reg.keys(), reg.removed)
	}

	if err := a.Start(reg, []string{"http://*:8080/a/"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := a.SetPrefixes([]string{"http://*:8080/b/", "http://*:8080/no-slash"}); err == nil {
		t.Fatal("SetPrefixes() with an invalid prefix succeeded")
	}
	if want := []string{"http://*:8080/a/"}; !equal(reg.keys(), want) || !equal(a.Prefixes(), want) {
		t.Errorf("registered %v, app has %v, want %v", reg.keys(), a.Prefixes(), want)
	}
}

func TestApp_EquivalentSpellingsShareOneRoute(t *testing.T) {
	reg := newFakeRegistrar()
	a := New("demo", nil)

	if err := a.Start(reg, []string{"http://Example.org/x/", "http://example.org:80/x/"}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	want := []string{"http://example.org:80/x/"}
	if !equal(reg.keys(), want) || !equal(a.Prefixes(), want) {
		t.Fatalf("registered %v, app has %v, want %v", reg.keys(), a.Prefixes(), want)
	}

	if err := a.SetPrefixes([]string{"http://EXAMPLE.ORG/x/"}); err != nil {
		t.Fatalf("SetPrefixes() error = %v", err)
	}
	if len(reg.removed) != 0 || !equal(reg.keys(), want) {
		t.Errorf("respelling changed routes: registered %v, removed %v", reg.keys(), reg.removed)
	}
}

func TestApp_RespelledPrefixKeepsEndpoint(t *testing.T) {
	mgr := endpoint.NewManager(endpoint.ManagerOptions{
		BindHost:    "127.0.0.1",
		CertDir:     t.TempDir(),
		ConnFactory: httpconn.Factory(httpconn.Options{ReadTimeout: 2 * time.Second}),
	})
	t.Cleanup(func() { _ = mgr.Close() })

	port := freePort(t)
	a := New("docs", StaticHandler{Body: "docs"}.Handle)
	lower := fmt.Sprintf("http://localhost:%d/x/", port)
	upper := fmt.Sprintf("http://LOCALHOST:%d/x/", port)

	if err := a.Start(mgr, []string{lower, upper}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := a.SetPrefixes([]string{lower}); err != nil {
		t.Fatalf("SetPrefixes() error = %v", err)
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	if _, ok := mgr.Endpoint(addr); !ok {
		t.Fatalf("endpoint %s torn down", addr)
	}
	if got := a.Prefixes(); !equal(got, []string{lower}) {
		t.Errorf("Prefixes() = %v, want [%s]", got, lower)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	req, _ := http.NewRequest(http.MethodGet, "http://"+addr+"/x/page", nil)
	req.Host = "localhost"
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if b, _ := io.ReadAll(resp.Body); resp.StatusCode != http.StatusOK || string(b) != "docs" {
		t.Errorf("GET = %d %q", resp.StatusCode, b)
	}
}

func TestCanonicalPrefix(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://Example.org/", "http://example.org:80/"},
		{"https://+/api/", "https://+:443/api/"},
		{"HTTP://[::1]:8080/a/", "http://[::1]:8080/a/"},
	}
	for _, tt := range tests {
		got, err := CanonicalPrefix(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("CanonicalPrefix(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
		}
	}
	if _, err := CanonicalPrefix("http://h/no-slash"); err == nil {
		t.Error("CanonicalPrefix() accepted a path without trailing slash")
	}
}

func TestApp_ServeContextLogsWithRequestContext(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New(logger.Config{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("logger.New() error = %v", err)
	}
	defer logger.SetLevel("info")

	a := New("api", StaticHandler{Status: http.StatusCreated}.Handle, WithLogger(log))
	ctx := logger.WithRequestID(logger.WithConnID(context.Background(), "conn-7"), "req-7")
	a.ServeContext(endpoint.NewContext(ctx, "req-7", &endpoint.Request{}))

	out := buf.String()
	for _, want := range []string{`"app":"api"`, `"conn_id":"conn-7"`, `"request_id":"req-7"`, `"status":201`} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %s", out, want)
		}
	}
}

func TestApp_TracksContexts(t *testing.T) {
	var seen *endpoint.Context
	a := New("demo", func(c *endpoint.Context) { seen = c })

	c := endpoint.NewContext(nil, "req-1", &endpoint.Request{Path: "/"})
	a.ServeContext(c)

	if seen != c {
		t.Fatal("handler not called with the context")
	}
	if a.Active() != 1 || a.Served() != 1 {
		t.Errorf("Active=%d Served=%d, want 1 1", a.Active(), a.Served())
	}
	a.UnregisterContext(c)
	if a.Active() != 0 {
		t.Errorf("Active=%d after unregister", a.Active())
	}
}

func TestApp_NilHandler(t *testing.T) {
	a := New("empty", nil)
	c := endpoint.NewContext(nil, "req", &endpoint.Request{})
	a.ServeContext(c)
	if c.Response.Status != http.StatusNoContent {
		t.Errorf("status = %d, want 204", c.Response.Status)
	}
}

func TestStaticHandler(t *testing.T) {
	c := endpoint.NewContext(nil, "req", &endpoint.Request{})
	StaticHandler{Status: http.StatusTeapot, Body: "short and stout", ContentType: "text/plain"}.Handle(c)

	if c.Response.Status != http.StatusTeapot {
		t.Errorf("status = %d", c.Response.Status)
	}
	if c.Response.Header.Get("Content-Type") != "text/plain" {
		t.Errorf("Content-Type = %q", c.Response.Header.Get("Content-Type"))
	}
	if c.Response.Body.String() != "short and stout" {
		t.Errorf("body = %q", c.Response.Body.String())
	}

	d := endpoint.NewContext(nil, "req", &endpoint.Request{})
	StaticHandler{Headers: map[string]string{"cache-control": "no-store"}}.Handle(d)
	if d.Response.Status != http.StatusOK {
		t.Errorf("default status = %d, want 200", d.Response.Status)
	}
	if got := d.Response.Header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
}

func TestApp_SetHandler(t *testing.T) {
	a := New("swap", StaticHandler{Body: "one"}.Handle)

	c := endpoint.NewContext(nil, "r1", &endpoint.Request{})
	a.ServeContext(c)
	a.SetHandler(StaticHandler{Body: "two"}.Handle)
	d := endpoint.NewContext(nil, "r2", &endpoint.Request{})
	a.ServeContext(d)

	if c.Response.Body.String() != "one" || d.Response.Body.String() != "two" {
		t.Errorf("bodies = %q, %q; want one, two", c.Response.Body.String(), d.Response.Body.String())
	}
	a.SetHandler(nil)
	e := endpoint.NewContext(nil, "r3", &endpoint.Request{})
	a.ServeContext(e)
	if e.Response.Status != http.StatusNoContent {
		t.Errorf("status = %d, want 204", e.Response.Status)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestApp_EndToEnd(t *testing.T) {
	mgr := endpoint.NewManager(endpoint.ManagerOptions{
		BindHost:    "127.0.0.1",
		CertDir:     t.TempDir(),
		ConnFactory: httpconn.Factory(httpconn.Options{ReadTimeout: 2 * time.Second}),
	})
	t.Cleanup(func() { _ = mgr.Close() })

	port := freePort(t)
	hello := New("hello", StaticHandler{Body: "hello"}.Handle)
	api := New("api", StaticHandler{Status: http.StatusCreated, Body: "api"}.Handle)

	if err := hello.Start(mgr, []string{fmt.Sprintf("http://*:%d/", port)}); err != nil {
		t.Fatalf("hello.Start() error = %v", err)
	}
	if err := api.Start(mgr, []string{fmt.Sprintf("http://localhost:%d/api/", port)}); err != nil {
		t.Fatalf("api.Start() error = %v", err)
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	client := &http.Client{Timeout: 5 * time.Second}

	fetch := func(host, path string) (int, string) {
		t.Helper()
		req, _ := http.NewRequest(http.MethodGet, "http://"+addr+path, nil)
		req.Host = host
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("GET %s%s: %v", host, path, err)
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(b)
	}

	if code, b := fetch("localhost", "/api/v1"); code != http.StatusCreated || b != "api" {
		t.Errorf("api = %d %q", code, b)
	}
	if code, b := fetch("example.org", "/api/v1"); code != http.StatusOK || b != "hello" {
		t.Errorf("wildcard = %d %q", code, b)
	}

	if err := hello.Stop(); err != nil {
		t.Fatalf("hello.Stop() error = %v", err)
	}
	if code, _ := fetch("example.org", "/"); code != http.StatusNotFound {
		t.Errorf("after hello stopped status = %d, want 404", code)
	}

	if err := api.Stop(); err != nil {
		t.Fatalf("api.Stop() error = %v", err)
	}
	if len(mgr.Endpoints()) != 0 {
		t.Error("endpoint not torn down after last app stopped")
	}
}
