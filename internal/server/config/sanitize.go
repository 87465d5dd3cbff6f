package config

import "github.com/yndnr/sockhttp/internal/telemetry/logger"

// Sanitize returns a deep copy of cfg with sensitive app header values
// masked, for logging and printing.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	sanitized := *cfg
	sanitized.Apps = make([]AppConfig, len(cfg.Apps))

	for i, app := range cfg.Apps {
		app.Prefixes = append([]string(nil), app.Prefixes...)
		if app.Headers != nil {
			headers := make(map[string]string, len(app.Headers))
			for k, v := range app.Headers {
				headers[k] = logger.RedactField(k, v)
			}
			app.Headers = headers
		}
		sanitized.Apps[i] = app
	}
	return &sanitized
}
