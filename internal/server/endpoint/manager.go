package endpoint

import (
	"errors"
	"net"
	"sort"
	"strconv"
	"sync"

	"github.com/yndnr/sockhttp/internal/core/domain"
	"github.com/yndnr/sockhttp/internal/telemetry/logger"
	"github.com/yndnr/sockhttp/internal/telemetry/metric"
)

// ManagerOptions configures a Manager. It carries the per-endpoint
// settings shared by every endpoint the manager creates.
type ManagerOptions struct {
	// BindHost is the address bound for prefixes whose host is not a
	// literal IP. Empty binds all interfaces.
	BindHost          string
	CertDir           string
	WatchCertificates bool

	ConnFactory ConnFactory
	Listen      ListenFunc

	Logger  logger.Logger
	Metrics *metric.Registry
}

// Manager owns the endpoints of a process, one per bind address. It
// creates an endpoint on the first prefix for an address and drops it when
// the endpoint's last prefix is removed.
type Manager struct {
	opts ManagerOptions
	log  logger.Logger

	mu        sync.Mutex
	endpoints map[string]*Endpoint
}

// NewManager creates an empty manager.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Manager{
		opts:      opts,
		log:       opts.Logger,
		endpoints: make(map[string]*Endpoint),
	}
}

func (m *Manager) bindAddr(p domain.RoutePrefix) string {
	host := m.opts.BindHost
	if ip := net.ParseIP(p.Host); ip != nil {
		host = ip.String()
	}
	return net.JoinHostPort(host, strconv.Itoa(p.Port))
}

// AddPrefix parses prefix and registers it for l on its endpoint, creating
// the endpoint if needed.
func (m *Manager) AddPrefix(prefix string, l AppListener) error {
	p, err := domain.ParsePrefix(prefix)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	addr := m.bindAddr(p)
	ep, ok := m.endpoints[addr]
	if ok && ep.Closed() {
		m.dropLocked(addr, ep)
		ok = false
	}
	if ok && ep.Secure() != p.Secure {
		return domain.ErrEndpointConflict.WithDetails(addr)
	}
	created := !ok
	if created {
		ep, err = New(Options{
			Addr:              addr,
			Secure:            p.Secure,
			CertDir:           m.opts.CertDir,
			WatchCertificates: m.opts.WatchCertificates,
			ConnFactory:       m.opts.ConnFactory,
			Listen:            m.opts.Listen,
			Remover:           m,
			Logger:            m.log,
			Metrics:           m.opts.Metrics,
		})
		if err != nil {
			return err
		}
		m.endpoints[addr] = ep
		if m.opts.Metrics != nil {
			m.opts.Metrics.EndpointsActive.Inc()
		}
	}

	if err := ep.AddPrefix(p, l); err != nil {
		if created {
			m.dropLocked(addr, ep)
			_ = ep.Close()
		}
		return err
	}
	ep.rearm()
	return nil
}

// RemovePrefix unregisters prefix for l. Unknown prefixes are ignored.
func (m *Manager) RemovePrefix(prefix string, l AppListener) error {
	p, err := domain.ParsePrefix(prefix)
	if err != nil {
		return err
	}

	m.mu.Lock()
	ep := m.endpoints[m.bindAddr(p)]
	m.mu.Unlock()

	// The endpoint calls back into RemoveEndpoint, so the lock is not held.
	if ep != nil {
		ep.RemovePrefix(p, l)
	}
	return nil
}

// RemoveEndpoint closes ep and forgets it, unless a prefix was added to it
// after it became empty.
func (m *Manager) RemoveEndpoint(ep *Endpoint, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !ep.Empty() {
		ep.rearm()
		return
	}
	m.dropLocked(addr, ep)
	if err := ep.Close(); err != nil {
		m.log.Warn("endpoint close failed", "endpoint", addr, "error", err)
	}
}

func (m *Manager) dropLocked(addr string, ep *Endpoint) {
	if cur, ok := m.endpoints[addr]; !ok || cur != ep {
		return
	}
	delete(m.endpoints, addr)
	if m.opts.Metrics != nil {
		m.opts.Metrics.EndpointsActive.Dec()
	}
}

// Endpoint returns the endpoint bound for the given address, if any.
func (m *Manager) Endpoint(addr string) (*Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ep, ok := m.endpoints[addr]
	return ep, ok
}

// Endpoints returns the open endpoints ordered by address.
func (m *Manager) Endpoints() []*Endpoint {
	m.mu.Lock()
	out := make([]*Endpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		out = append(out, ep)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].addr < out[j].addr })
	return out
}

// Stats returns one snapshot per endpoint. It is a metric.StatsSource.
func (m *Manager) Stats() []metric.EndpointStats {
	eps := m.Endpoints()
	out := make([]metric.EndpointStats, len(eps))
	for i, ep := range eps {
		out[i] = ep.Stats()
	}
	return out
}

// Close closes every endpoint.
func (m *Manager) Close() error {
	m.mu.Lock()
	eps := make([]*Endpoint, 0, len(m.endpoints))
	for addr, ep := range m.endpoints {
		eps = append(eps, ep)
		m.dropLocked(addr, ep)
	}
	m.mu.Unlock()

	var errs []error
	for _, ep := range eps {
		if err := ep.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
