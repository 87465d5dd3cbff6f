package httpconn

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"sort"
	"strconv"
)

// writeResponse writes a complete HTTP/1.1 response. Every response closes
// the connection.
func writeResponse(w io.Writer, method string, status int, header textproto.MIMEHeader, body []byte) error {
	if header == nil {
		header = make(textproto.MIMEHeader)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))
	header.Set("Connection", "close")
	if header.Get("Content-Type") == "" && len(body) > 0 {
		header.Set("Content-Type", "text/plain; charset=utf-8")
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))

	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range header[k] {
			fmt.Fprintf(bw, "%s: %s\r\n", k, v)
		}
	}
	bw.WriteString("\r\n")

	if method != http.MethodHead {
		bw.Write(body)
	}
	return bw.Flush()
}

func writeStatus(w io.Writer, method string, status int) error {
	return writeResponse(w, method, status, nil, []byte(http.StatusText(status)+"\n"))
}
