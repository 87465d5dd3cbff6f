package config

import "time"

// Default configuration values.
const (
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 30 * time.Second

	DefaultMetricsAddr = "127.0.0.1:9464"
	DefaultMetricsPath = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration. It has no apps.
func Default() *ServerConfig {
	return &ServerConfig{
		Listener: ListenerSection{
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		Apps: []AppConfig{},
		Metrics: MetricsSection{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
			Path:    DefaultMetricsPath,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
