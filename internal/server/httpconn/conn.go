package httpconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/yndnr/sockhttp/internal/server/endpoint"
	"github.com/yndnr/sockhttp/internal/telemetry/logger"
)

// Handler serves a bound context. Application listeners that want requests
// dispatched to them implement it next to endpoint.AppListener.
type Handler interface {
	ServeContext(c *endpoint.Context)
}

// Options configures connections.
type Options struct {
	// ReadTimeout bounds the TLS handshake and reading the request (default: 30s).
	ReadTimeout time.Duration
	// WriteTimeout bounds writing the response (default: 30s).
	WriteTimeout time.Duration
	// MaxHeaderBytes caps the request line and headers (default: 1 MiB).
	MaxHeaderBytes int64
	// MaxBodyBytes caps a Content-Length body (default: 1 MiB).
	MaxBodyBytes int64
	// ServerName is sent as the Server header unless the handler sets one.
	ServerName string
}

// DefaultOptions returns the default connection options.
func DefaultOptions() Options {
	return Options{
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   1 << 20,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.MaxHeaderBytes <= 0 {
		o.MaxHeaderBytes = d.MaxHeaderBytes
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = d.MaxBodyBytes
	}
	return o
}

// Factory returns an endpoint.ConnFactory producing Conns with opts.
func Factory(opts Options) endpoint.ConnFactory {
	opts = opts.withDefaults()
	return func(p endpoint.ConnParams) endpoint.Conn {
		return newConn(p, opts)
	}
}

// Conn serves a single HTTP/1.x request on an accepted socket.
type Conn struct {
	id     string
	raw    net.Conn
	ep     *endpoint.Endpoint
	secure bool
	ctx    context.Context
	log    logger.Logger
	opts   Options

	closed atomic.Bool
	forced atomic.Bool
}

// New wraps an accepted socket with default options.
func New(p endpoint.ConnParams) *Conn {
	return newConn(p, DefaultOptions())
}

func newConn(p endpoint.ConnParams, opts Options) *Conn {
	log := p.Logger
	if log == nil {
		log = logger.Nop()
	}
	ctx := logger.WithConnID(context.Background(), p.ID)
	return &Conn{
		id:     p.ID,
		raw:    p.Raw,
		ep:     p.Endpoint,
		secure: p.Secure,
		ctx:    ctx,
		log:    log.WithContext(ctx),
		opts:   opts,
	}
}

// ID returns the connection id.
func (c *Conn) ID() string {
	return c.id
}

// BeginRequestRead starts serving on a new goroutine.
func (c *Conn) BeginRequestRead() {
	go c.serve()
}

// Close closes the socket and unregisters the connection. Only the first
// call has an effect.
func (c *Conn) Close(forced bool) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.forced.Store(forced)
	_ = c.raw.Close()
	if c.ep != nil {
		c.ep.Unregister(c)
	}
}

func (c *Conn) serve() {
	defer c.Close(false)

	var stream net.Conn = c.raw
	if err := c.raw.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout)); err != nil {
		return
	}

	if c.secure {
		tc := tls.Server(c.raw, &tls.Config{
			GetCertificate: c.ep.Certificate,
			MinVersion:     tls.VersionTLS12,
		})
		if err := tc.Handshake(); err != nil {
			c.log.Debug("tls handshake failed", "remote", c.raw.RemoteAddr(), "error", err)
			return
		}
		stream = tc
	}

	br := bufio.NewReader(io.LimitReader(stream, c.opts.MaxHeaderBytes+c.opts.MaxBodyBytes))
	req, body, err := readRequest(br, c.opts.MaxBodyBytes)
	if err != nil {
		c.rejectRequest(stream, req, err)
		return
	}
	req.Body = body
	req.Port = localPort(c.raw)
	req.RemoteAddr = c.raw.RemoteAddr()
	req.Secure = c.secure

	id := uuid.NewString()
	ctx := logger.WithLogger(logger.WithRequestID(c.ctx, id), c.log)
	bc := endpoint.NewContext(ctx, id, req)
	log := logger.L(ctx).With("method", req.Method, "path", req.Path)

	start := time.Now()
	if !c.ep.BindContext(bc) {
		c.finish(stream, req.Method, http.StatusNotFound, nil, []byte("Not Found\n"))
		log.Debug("no prefix matched", "host", req.Host)
		return
	}
	defer c.ep.UnbindContext(bc)

	h, ok := bc.Listener.(Handler)
	if !ok {
		c.finish(stream, req.Method, http.StatusServiceUnavailable, nil, []byte("Service Unavailable\n"))
		log.Warn("bound listener does not serve requests", "prefix", bc.Prefix.String())
		return
	}

	if !c.dispatch(h, bc, log) {
		c.finish(stream, req.Method, http.StatusInternalServerError, nil, []byte("Internal Server Error\n"))
		return
	}
	if c.closed.Load() {
		log.Debug("connection closed before response", "forced", c.forced.Load())
		return
	}

	bc.Response.Header.Set("X-Request-Id", id)
	c.finish(stream, req.Method, bc.Response.Status, bc.Response.Header, bc.Response.Body.Bytes())
	log.Debug("request served",
		"prefix", bc.Prefix.String(),
		"status", bc.Response.Status,
		"duration", time.Since(start))
}

// dispatch runs h and reports whether it returned normally.
func (c *Conn) dispatch(h Handler, bc *endpoint.Context, log logger.Logger) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", "panic", r)
			ok = false
		}
	}()
	h.ServeContext(bc)
	return true
}

func (c *Conn) rejectRequest(w io.Writer, req *endpoint.Request, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return
	case errors.As(err, &netErr) && netErr.Timeout():
		c.log.Debug("request read timed out", "remote", c.raw.RemoteAddr())
		return
	}

	method := ""
	if req != nil {
		method = req.Method
	}
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, errBodyTooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, errUnsupportedTE):
		status = http.StatusNotImplemented
	}
	c.log.Debug("bad request", "remote", c.raw.RemoteAddr(), "status", status, "error", err)
	_ = c.raw.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	_ = writeStatus(w, method, status)
}

func (c *Conn) finish(w io.Writer, method string, status int, header textproto.MIMEHeader, body []byte) {
	if c.closed.Load() {
		return
	}
	if err := c.raw.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return
	}
	if c.opts.ServerName != "" {
		if header == nil {
			header = make(textproto.MIMEHeader)
		}
		if header.Get("Server") == "" {
			header.Set("Server", c.opts.ServerName)
		}
	}
	if err := writeResponse(w, method, status, header, body); err != nil {
		c.log.Debug("write response failed", "error", err)
	}
}

func localPort(c net.Conn) int {
	if addr, ok := c.LocalAddr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
