package endpoint

import (
	"bytes"
	"context"
	"net"
	"net/textproto"

	"github.com/yndnr/sockhttp/internal/core/domain"
)

// AppListener is the application-level owner of registered prefixes.
// The endpoint calls UnregisterContext when a request bound to it ends.
// Listeners are compared with ==; implement it on a pointer type.
type AppListener interface {
	UnregisterContext(c *Context)
}

// Request is the parsed request line and headers of one HTTP request.
type Request struct {
	Method   string
	Target   string
	Proto    string
	Host     string // lowercased, without port
	Port     int    // local port the request arrived on
	Path     string // raw path of Target, without the query
	RawQuery string
	Header   textproto.MIMEHeader
	Body     []byte

	RemoteAddr net.Addr
	Secure     bool
}

// Response is what a handler fills in for a bound request.
type Response struct {
	Status int
	Header textproto.MIMEHeader
	Body   bytes.Buffer
}

// Context is one request/response pair bound to a listener.
type Context struct {
	ID       string
	Request  *Request
	Response *Response

	// Set by BindContext.
	Listener AppListener
	Prefix   *domain.RoutePrefix

	ctx context.Context
}

// NewContext creates an unbound context for req.
func NewContext(parent context.Context, id string, req *Request) *Context {
	if parent == nil {
		parent = context.Background()
	}
	return &Context{
		ID:      id,
		Request: req,
		Response: &Response{
			Status: 200,
			Header: make(textproto.MIMEHeader),
		},
		ctx: parent,
	}
}

// Context returns the context.Context carried with the request.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Bound reports whether BindContext attached a listener.
func (c *Context) Bound() bool {
	return c.Listener != nil
}
