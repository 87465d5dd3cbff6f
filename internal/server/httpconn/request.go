package httpconn

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"

	"github.com/yndnr/sockhttp/internal/server/endpoint"
)

var (
	errMalformed     = errors.New("httpconn: malformed request")
	errBodyTooLarge  = errors.New("httpconn: request body too large")
	errUnsupportedTE = errors.New("httpconn: transfer-encoding not supported")
)

// readRequest parses the request line, headers and a Content-Length body.
func readRequest(br *bufio.Reader, maxBody int64) (*endpoint.Request, []byte, error) {
	tp := textproto.NewReader(br)

	line, err := tp.ReadLine()
	if err != nil {
		return nil, nil, err
	}
	method, rest, ok1 := strings.Cut(line, " ")
	target, proto, ok2 := strings.Cut(rest, " ")
	if !ok1 || !ok2 || method == "" || target == "" || !strings.HasPrefix(proto, "HTTP/1.") {
		return nil, nil, fmt.Errorf("%w: request line %q", errMalformed, line)
	}

	header, err := tp.ReadMIMEHeader()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errMalformed, err)
	}

	u, err := url.ParseRequestURI(target)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: target %q", errMalformed, target)
	}

	host := header.Get("Host")
	if host == "" && u.Host != "" {
		host = u.Host
	}

	req := &endpoint.Request{
		Method:   method,
		Target:   target,
		Proto:    proto,
		Host:     strings.ToLower(stripPort(host)),
		Path:     u.EscapedPath(),
		RawQuery: u.RawQuery,
		Header:   header,
	}

	if header.Get("Transfer-Encoding") != "" {
		return req, nil, errUnsupportedTE
	}
	body, err := readBody(br, header.Get("Content-Length"), maxBody)
	if err != nil {
		return req, nil, err
	}
	return req, body, nil
}

func readBody(br *bufio.Reader, contentLength string, maxBody int64) ([]byte, error) {
	if contentLength == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(contentLength), 10, 64)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: content-length %q", errMalformed, contentLength)
	}
	if n > maxBody {
		return nil, errBodyTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, err
	}
	return body, nil
}

// stripPort removes an optional port and IPv6 brackets from a Host value.
func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}
