// Package app provides the application listener that owns prefixes on
// endpoints and serves the requests bound to them.
package app
