// Package config provides the sockhttp-server configuration.
//
//   - spec.go: ServerConfig struct definition
//   - default.go: default values
//   - verify.go: validation (prefix syntax, unique names and prefixes)
//   - sanitize.go: masking of sensitive values for output
//
// Configuration is loaded through internal/infra/confloader.
package config
