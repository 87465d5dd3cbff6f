package endpoint

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/yndnr/sockhttp/internal/core/domain"
	"github.com/yndnr/sockhttp/internal/infra/certstore"
	"github.com/yndnr/sockhttp/internal/telemetry/logger"
	"github.com/yndnr/sockhttp/internal/telemetry/metric"
)

// Accept loop backoff bounds for transient errors.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// ListenFunc creates a listening socket. net.Listen has this signature.
type ListenFunc func(network, address string) (net.Listener, error)

// Remover is told when an endpoint's last prefix is removed.
type Remover interface {
	RemoveEndpoint(ep *Endpoint, addr string)
}

// Options configures an Endpoint.
type Options struct {
	// Addr is the host:port to bind.
	Addr string
	// Secure marks the endpoint as https.
	Secure bool
	// CertDir holds <port>.crt and <port>.key. Empty means certstore.DefaultDir.
	CertDir string
	// WatchCertificates reloads the pair when it changes on disk.
	WatchCertificates bool

	// ConnFactory wraps accepted sockets. Required.
	ConnFactory ConnFactory
	// Listen creates the listening socket. Defaults to net.Listen.
	Listen ListenFunc
	// Remover is notified on teardown. Without one the endpoint closes itself.
	Remover Remover

	Logger  logger.Logger
	Metrics *metric.Registry
}

// Endpoint is a listening socket on one address and port. It routes
// requests on that socket to listeners by prefix and owns every connection
// it accepts.
type Endpoint struct {
	addr    string
	secure  bool
	listen  ListenFunc
	newConn ConnFactory
	remover Remover
	log     logger.Logger
	metrics *metric.EndpointMetrics

	boundAddr string

	cert        atomic.Pointer[tls.Certificate]
	certWatcher *certstore.Watcher

	table *PrefixTable
	conns *ConnRegistry

	sockMu sync.Mutex
	sock   net.Listener

	closed   atomic.Bool
	tornDown atomic.Bool
	done     chan struct{}
	loopDone chan struct{}

	errLog rate.Sometimes
}

// New loads the certificate for secure endpoints, binds the socket and
// starts accepting.
//
// A missing or broken certificate is not an error: the endpoint is created
// and closes every connection it accepts until a certificate becomes
// available.
func New(opts Options) (*Endpoint, error) {
	if opts.ConnFactory == nil {
		return nil, errors.New("endpoint: ConnFactory is required")
	}
	if opts.Listen == nil {
		opts.Listen = net.Listen
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	e := &Endpoint{
		addr:     opts.Addr,
		secure:   opts.Secure,
		listen:   opts.Listen,
		newConn:  opts.ConnFactory,
		remover:  opts.Remover,
		log:      opts.Logger.With("endpoint", opts.Addr),
		metrics:  opts.Metrics.Endpoint(opts.Addr),
		table:    NewPrefixTable(),
		conns:    NewConnRegistry(),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		errLog:   rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}

	if e.secure {
		e.loadCertificate(opts.CertDir, opts.WatchCertificates)
	}

	ln, err := e.listen("tcp", e.addr)
	if err != nil {
		if e.certWatcher != nil {
			e.certWatcher.Stop()
		}
		return nil, domain.ErrEndpointBind.WithDetails(e.addr).WithCause(err)
	}
	e.sock = ln
	e.boundAddr = ln.Addr().String()

	e.log.Info("endpoint listening", "bound", e.boundAddr, "secure", e.secure)

	go e.acceptLoop()
	return e, nil
}

func (e *Endpoint) loadCertificate(dir string, watch bool) {
	if dir == "" {
		dir = certstore.DefaultDir()
	}
	port := portOf(e.addr)

	if watch {
		e.certWatcher = certstore.NewWatcher(dir, port,
			certstore.WithLogger(e.log),
			certstore.WithOnReload(func(c *tls.Certificate) { e.cert.Store(c) }),
		)
		e.certWatcher.StartAsync()
		return
	}

	cert, err := certstore.Load(dir, port)
	if err != nil {
		e.log.Warn("no certificate for secure endpoint", "dir", dir, "error", err)
		return
	}
	e.cert.Store(cert)
}

func portOf(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(p)
	return n
}

// Addr returns the address the socket is bound to.
func (e *Endpoint) Addr() string {
	return e.boundAddr
}

// Secure reports whether the endpoint serves https.
func (e *Endpoint) Secure() bool {
	return e.secure
}

// Closed reports whether Close has been called.
func (e *Endpoint) Closed() bool {
	return e.closed.Load()
}

// Done is closed once the accept loop has exited.
func (e *Endpoint) Done() <-chan struct{} {
	return e.loopDone
}

// Certificate returns the current certificate. It has the signature of
// tls.Config.GetCertificate.
func (e *Endpoint) Certificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	if c := e.cert.Load(); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("endpoint %s: no certificate", e.addr)
}

// HasCertificate reports whether a certificate is loaded.
func (e *Endpoint) HasCertificate() bool {
	return e.cert.Load() != nil
}

// Logger returns the endpoint logger.
func (e *Endpoint) Logger() logger.Logger {
	return e.log
}

// Stats returns a snapshot for the metrics collector.
func (e *Endpoint) Stats() metric.EndpointStats {
	exact, anyHost, allHosts := e.table.Counts()
	return metric.EndpointStats{
		Name:        e.addr,
		Exact:       exact,
		AnyHost:     anyHost,
		AllHosts:    allHosts,
		Connections: e.conns.Len(),
		Secure:      e.secure,
		HasCert:     e.HasCertificate(),
	}
}

func (e *Endpoint) currentSocket() net.Listener {
	e.sockMu.Lock()
	defer e.sockMu.Unlock()
	return e.sock
}

func (e *Endpoint) acceptLoop() {
	defer close(e.loopDone)

	var delay time.Duration
	for !e.closed.Load() {
		ln := e.currentSocket()
		if ln == nil {
			return
		}

		raw, err := ln.Accept()
		if e.closed.Load() {
			if raw != nil {
				_ = raw.Close()
			}
			return
		}

		if err != nil {
			if isSocketReset(err) {
				e.metrics.AcceptError(metric.AcceptErrorReset)
				e.log.Warn("listening socket reset, recreating",
					"error", domain.ErrSocketAcceptFault.WithCause(err))
				if !e.recreateSocket(ln) {
					return
				}
				delay = 0
				continue
			}

			e.metrics.AcceptError(metric.AcceptErrorTransient)
			e.errLog.Do(func() {
				e.log.Error("accept failed", "error", domain.ErrSocketAcceptError.WithCause(err))
			})
			delay = nextDelay(delay)
			if !e.sleep(delay) {
				return
			}
			continue
		}

		delay = 0
		e.handleAccepted(raw)
	}
}

// isSocketReset reports whether err means the listening socket itself is
// unusable and must be replaced.
func isSocketReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, net.ErrClosed)
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}
	d *= 2
	if d > maxAcceptDelay {
		d = maxAcceptDelay
	}
	return d
}

// sleep waits for d and returns false if the endpoint closed meanwhile.
func (e *Endpoint) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-e.done:
		return false
	case <-t.C:
		return true
	}
}

// recreateSocket replaces old with a fresh socket on the bound address.
// It retries with backoff and returns false if the endpoint closed first.
func (e *Endpoint) recreateSocket(old net.Listener) bool {
	e.sockMu.Lock()
	if e.sock == old {
		e.sock = nil
	}
	e.sockMu.Unlock()
	_ = old.Close()

	var delay time.Duration
	for {
		if e.closed.Load() {
			return false
		}
		ln, err := e.listen("tcp", e.boundAddr)
		if err == nil {
			e.sockMu.Lock()
			if e.closed.Load() {
				e.sockMu.Unlock()
				_ = ln.Close()
				return false
			}
			e.sock = ln
			e.sockMu.Unlock()

			e.metrics.SocketRecreated()
			e.log.Info("listening socket recreated", "bound", e.boundAddr)
			return true
		}

		e.errLog.Do(func() {
			e.log.Error("cannot recreate listening socket", "error", err)
		})
		delay = nextDelay(delay)
		if !e.sleep(delay) {
			return false
		}
	}
}

func (e *Endpoint) handleAccepted(raw net.Conn) {
	if e.secure && !e.HasCertificate() {
		e.metrics.Rejected()
		e.log.Debug("no certificate, closing connection", "remote", raw.RemoteAddr())
		_ = raw.Close()
		return
	}

	id := NewConnID()
	c := e.newConn(ConnParams{
		ID:       id,
		Raw:      raw,
		Endpoint: e,
		Secure:   e.secure,
		Logger:   e.log.WithContext(logger.WithConnID(context.Background(), id)),
	})

	e.conns.Register(c)
	e.metrics.Accepted()

	// Close may have snapshotted the registry before Register.
	if e.closed.Load() {
		if e.conns.Unregister(c) {
			e.metrics.Released()
			c.Close(true)
		}
		return
	}

	c.BeginRequestRead()
}

// Unregister drops c from the connection registry. Connections call it
// once they are done.
func (e *Endpoint) Unregister(c Conn) {
	if e.conns.Unregister(c) {
		e.metrics.Released()
	}
}

// AddPrefix routes p to l.
func (e *Endpoint) AddPrefix(p domain.RoutePrefix, l AppListener) error {
	if e.closed.Load() {
		return domain.ErrEndpointClosed.WithDetails(e.addr)
	}
	if p.Secure != e.secure {
		return domain.ErrEndpointConflict.WithDetails(p.String())
	}
	return e.table.Add(p, l)
}

// RemovePrefix drops p if it routes to l. When the table becomes empty the
// endpoint is torn down; this happens once per transition to empty.
func (e *Endpoint) RemovePrefix(p domain.RoutePrefix, l AppListener) {
	if !e.table.Remove(p, l) {
		return
	}
	if !e.table.Empty() || !e.tornDown.CompareAndSwap(false, true) {
		return
	}

	e.log.Debug("last prefix removed", "prefix", p.String())
	if e.remover != nil {
		e.remover.RemoveEndpoint(e, e.addr)
		return
	}
	if err := e.Close(); err != nil {
		e.log.Warn("endpoint close failed", "error", err)
	}
}

// Empty reports whether no prefixes are registered.
func (e *Endpoint) Empty() bool {
	return e.table.Empty()
}

// rearm allows another teardown after a prefix was added back.
func (e *Endpoint) rearm() {
	e.tornDown.Store(false)
}

// BindContext attaches the best matching listener to c. It returns false
// if no prefix matches.
func (e *Endpoint) BindContext(c *Context) bool {
	if c == nil || c.Request == nil {
		return false
	}
	m, ok := e.table.Lookup(c.Request.Host, c.Request.Port, c.Request.Path)
	e.metrics.Lookup(ok)
	if !ok {
		return false
	}
	c.Listener = m.Listener
	prefix := m.Prefix
	c.Prefix = &prefix
	return true
}

// UnbindContext hands a finished context back to its listener.
func (e *Endpoint) UnbindContext(c *Context) {
	if c == nil || c.Listener == nil {
		return
	}
	c.Listener.UnregisterContext(c)
}

// Close stops accepting, closes the socket and force-closes every tracked
// connection. Only the first call has an effect.
func (e *Endpoint) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.done)

	e.sockMu.Lock()
	ln := e.sock
	e.sock = nil
	e.sockMu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil {
			err = domain.ErrCloseFault.WithDetails(e.boundAddr).WithCause(cerr)
		}
	}

	if e.certWatcher != nil {
		e.certWatcher.Stop()
	}

	n := e.conns.CloseAll()
	for i := 0; i < n; i++ {
		e.metrics.Released()
	}

	e.log.Info("endpoint closed", "connections_closed", n)
	return err
}
