// Package certstore locates and loads per-port TLS material.
//
// Secure endpoints look for <port>.crt and <port>.key under a fixed
// per-user directory:
//
//   - store.go: path convention, loading and self-signed generation
//   - watcher.go: certificate hot-reload via fsnotify
package certstore
