// Package domain defines the core domain models for sockhttp.
//
// Domain models are plain values without IO dependencies. This package
// contains:
//
//   - RoutePrefix: a parsed scheme://host:port/path/ registration key
//   - Errors: coded domain errors shared by every layer
package domain
