package endpoint

import (
	"net"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/sockhttp/internal/telemetry/logger"
)

// Conn is an accepted connection owned by an endpoint.
//
// BeginRequestRead must not block; reading happens on the connection's own
// goroutine. Close must be idempotent. A forced close aborts any request in
// flight.
type Conn interface {
	ID() string
	BeginRequestRead()
	Close(forced bool)
}

// ConnParams is what a ConnFactory gets for every accepted socket.
type ConnParams struct {
	ID       string
	Raw      net.Conn
	Endpoint *Endpoint
	Secure   bool
	Logger   logger.Logger
}

// ConnFactory wraps an accepted socket.
type ConnFactory func(p ConnParams) Conn

// NewConnID returns a unique, time-ordered connection id.
func NewConnID() string {
	return "conn-" + strings.ToLower(ulid.Make().String())
}
