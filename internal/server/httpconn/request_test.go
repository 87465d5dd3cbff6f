package httpconn

import (
	"bufio"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestReadRequest(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		host     string
		path     string
		rawQuery string
		body     string
	}{
		{
			name: "origin form",
			raw:  "GET /app/index.html?x=1 HTTP/1.1\r\nHost: Example.COM:8080\r\n\r\n",
			host: "example.com", path: "/app/index.html", rawQuery: "x=1",
		},
		{
			name: "escaped path kept raw",
			raw:  "GET /a%20b/ HTTP/1.1\r\nHost: h\r\n\r\n",
			host: "h", path: "/a%20b/",
		},
		{
			name: "absolute form without host header",
			raw:  "GET http://other.org/x HTTP/1.0\r\n\r\n",
			host: "other.org", path: "/x",
		},
		{
			name: "ipv6 host",
			raw:  "GET / HTTP/1.1\r\nHost: [::1]:80\r\n\r\n",
			host: "::1", path: "/",
		},
		{
			name: "no host",
			raw:  "GET / HTTP/1.1\r\n\r\n",
			host: "", path: "/",
		},
		{
			name: "content-length body",
			raw:  "POST /p HTTP/1.1\r\nHost: h\r\nContent-Length: 5\r\n\r\nhello",
			host: "h", path: "/p", body: "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, body, err := readRequest(bufio.NewReader(strings.NewReader(tt.raw)), 1024)
			if err != nil {
				t.Fatalf("readRequest() error = %v", err)
			}
			if req.Host != tt.host {
				t.Errorf("Host = %q, want %q", req.Host, tt.host)
			}
			if req.Path != tt.path {
				t.Errorf("Path = %q, want %q", req.Path, tt.path)
			}
			if req.RawQuery != tt.rawQuery {
				t.Errorf("RawQuery = %q, want %q", req.RawQuery, tt.rawQuery)
			}
			if string(body) != tt.body {
				t.Errorf("body = %q, want %q", body, tt.body)
			}
		})
	}
}

func TestReadRequest_Errors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", io.EOF},
		{"no proto", "GET /\r\n\r\n", errMalformed},
		{"bad proto", "GET / SPDY/3\r\n\r\n", errMalformed},
		{"bad target", "GET a%%b HTTP/1.1\r\n\r\n", errMalformed},
		{"bad length", "POST / HTTP/1.1\r\nContent-Length: x\r\n\r\n", errMalformed},
		{"too large", "POST / HTTP/1.1\r\nContent-Length: 9999\r\n\r\n", errBodyTooLarge},
		{"chunked", "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n", errUnsupportedTE},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := readRequest(bufio.NewReader(strings.NewReader(tt.raw)), 1024)
			if !errors.Is(err, tt.want) {
				t.Errorf("readRequest() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWriteResponse(t *testing.T) {
	var sb strings.Builder
	header := map[string][]string{"X-App": {"demo"}}
	if err := writeResponse(&sb, http.MethodGet, http.StatusCreated, header, []byte("made")); err != nil {
		t.Fatalf("writeResponse() error = %v", err)
	}

	resp, err := http.ReadResponse(bufio.NewReader(strings.NewReader(sb.String())), nil)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d, want 201", resp.StatusCode)
	}
	if !resp.Close {
		t.Error("response does not close the connection")
	}
	if resp.Header.Get("X-App") != "demo" {
		t.Errorf("X-App = %q", resp.Header.Get("X-App"))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "made" {
		t.Errorf("body = %q, want made", body)
	}
}

func TestWriteResponse_Head(t *testing.T) {
	var sb strings.Builder
	if err := writeResponse(&sb, http.MethodHead, http.StatusOK, nil, []byte("hidden")); err != nil {
		t.Fatalf("writeResponse() error = %v", err)
	}
	if strings.Contains(sb.String(), "hidden") {
		t.Error("HEAD response carries a body")
	}
	if !strings.Contains(sb.String(), "Content-Length: 6\r\n") {
		t.Errorf("HEAD response lacks Content-Length: %q", sb.String())
	}
}
