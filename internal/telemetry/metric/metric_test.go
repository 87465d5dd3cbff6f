package metric

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry(nil)
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if r.Prometheus() == nil {
		t.Error("Prometheus() returned nil")
	}
}

func TestEndpointMetrics_NilSafe(t *testing.T) {
	var r *Registry
	m := r.Endpoint("127.0.0.1:80")
	if m != nil {
		t.Fatal("nil registry should yield nil endpoint metrics")
	}

	// Should not panic
	m.Accepted()
	m.Released()
	m.Rejected()
	m.AcceptError(AcceptErrorReset)
	m.SocketRecreated()
	m.Lookup(true)
}

func TestEndpointMetrics_Record(t *testing.T) {
	r := NewRegistry(prometheus.NewRegistry())
	m := r.Endpoint("127.0.0.1:8080")

	m.Accepted()
	m.Accepted()
	m.Released()
	m.Rejected()
	m.AcceptError(AcceptErrorReset)
	m.AcceptError(AcceptErrorTransient)
	m.AcceptError(AcceptErrorTransient)
	m.SocketRecreated()
	m.Lookup(true)
	m.Lookup(false)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"accepted", r.connectionsAccepted.WithLabelValues("127.0.0.1:8080"), 2},
		{"active", r.connectionsActive.WithLabelValues("127.0.0.1:8080"), 1},
		{"rejected", r.connectionsRejected.WithLabelValues("127.0.0.1:8080"), 1},
		{"reset", r.acceptErrors.WithLabelValues("127.0.0.1:8080", AcceptErrorReset), 1},
		{"transient", r.acceptErrors.WithLabelValues("127.0.0.1:8080", AcceptErrorTransient), 2},
		{"recreations", r.socketRecreations.WithLabelValues("127.0.0.1:8080"), 1},
		{"hits", r.routeLookups.WithLabelValues("127.0.0.1:8080", "hit"), 1},
		{"misses", r.routeLookups.WithLabelValues("127.0.0.1:8080", "miss"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestCollector(t *testing.T) {
	c := NewCollector(func() []EndpointStats {
		return []EndpointStats{
			{Name: "0.0.0.0:80", Exact: 2, AnyHost: 1, Connections: 3},
			{Name: "0.0.0.0:443", AllHosts: 1, Secure: true, HasCert: false},
		}
	})

	// 4 series for the plain endpoint, 5 for the secure one.
	if n := testutil.CollectAndCount(c); n != 9 {
		t.Errorf("CollectAndCount() = %d, want 9", n)
	}
}

func TestCollector_NilSource(t *testing.T) {
	c := NewCollector(nil)
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Errorf("CollectAndCount() = %d, want 0", n)
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry(nil)
	r.Endpoint("ep").Accepted()
	r.EndpointsActive.Set(1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"sockhttp_endpoint_connections_accepted_total",
		"sockhttp_endpoints_active",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
