// Package config defines the server configuration structure.
package config

import "time"

// ServerConfig is the root configuration for sockhttp-server.
//
// Every field carries matching koanf and yaml tags: defaults are fed to
// the loader through yaml.v3, and the config command prints YAML.
type ServerConfig struct {
	Listener ListenerSection `koanf:"listener" yaml:"listener"`
	Apps     []AppConfig     `koanf:"apps" yaml:"apps"`
	Metrics  MetricsSection  `koanf:"metrics" yaml:"metrics"`
	Log      LogSection      `koanf:"log" yaml:"log"`
}

// ListenerSection configures endpoints and connections.
type ListenerSection struct {
	// BindHost is bound for prefixes whose host is not a literal IP.
	// Empty binds all interfaces.
	BindHost string `koanf:"bind_host" yaml:"bind_host"`

	// CertDir holds <port>.crt and <port>.key for https endpoints.
	// Empty uses the per-user default directory.
	CertDir string `koanf:"cert_dir" yaml:"cert_dir"`

	// WatchCerts reloads certificates when their files change.
	WatchCerts bool `koanf:"watch_certs" yaml:"watch_certs"`

	ReadTimeout  time.Duration `koanf:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout" yaml:"write_timeout"`
}

// AppConfig describes one application listener and its static response.
type AppConfig struct {
	Name        string            `koanf:"name" yaml:"name"`
	Prefixes    []string          `koanf:"prefixes" yaml:"prefixes"`
	Status      int               `koanf:"status" yaml:"status"`
	Body        string            `koanf:"body" yaml:"body"`
	ContentType string            `koanf:"content_type" yaml:"content_type"`
	Headers     map[string]string `koanf:"headers" yaml:"headers,omitempty"`
}

// MetricsSection configures the admin metrics server.
type MetricsSection struct {
	Enabled bool   `koanf:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" yaml:"addr"`
	Path    string `koanf:"path" yaml:"path"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}
