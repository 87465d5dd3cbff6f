// Package httpconn serves one HTTP/1.x request per accepted connection.
//
// A Conn optionally performs the TLS handshake with the endpoint's
// certificate, reads the request line, headers and a Content-Length body,
// binds the request through its endpoint and dispatches it to the bound
// listener if that listener implements Handler. Every response carries
// "Connection: close"; keep-alive and chunked bodies are not supported.
package httpconn
