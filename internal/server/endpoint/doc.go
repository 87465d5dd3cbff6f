// Package endpoint implements HTTP listening endpoints on raw TCP sockets.
//
// An Endpoint owns one listening socket. Applications register URL
// prefixes on it; each request arriving on the socket is bound to the
// application whose prefix matches it best:
//
//   - a literal host beats the "*" and "+" wildcards
//   - "*" is tried before "+"
//   - within a collection the longest path wins
//
// Routing tables are copy-on-write snapshots, so lookups never block on
// registration. A Manager creates endpoints on demand and tears an
// endpoint down when its last prefix goes away.
//
// Connections are produced by a ConnFactory; see package httpconn for the
// HTTP/1.x implementation.
package endpoint
