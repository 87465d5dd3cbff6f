package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/yndnr/sockhttp/internal/core/domain"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *ServerConfig) error {
	var errs []error
	errs = append(errs, verifyListener(&cfg.Listener)...)
	errs = append(errs, verifyApps(cfg.Apps)...)
	errs = append(errs, verifyMetrics(&cfg.Metrics)...)
	errs = append(errs, verifyLog(&cfg.Log)...)
	return errors.Join(errs...)
}

func verifyListener(cfg *ListenerSection) []error {
	var errs []error
	if cfg.BindHost != "" && net.ParseIP(cfg.BindHost) == nil {
		errs = append(errs, fmt.Errorf("listener.bind_host %q is not an IP address", cfg.BindHost))
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, errors.New("listener.read_timeout must not be negative"))
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, errors.New("listener.write_timeout must not be negative"))
	}
	return errs
}

func verifyApps(apps []AppConfig) []error {
	var errs []error
	names := make(map[string]struct{}, len(apps))
	owners := make(map[string]string)

	for i, app := range apps {
		field := fmt.Sprintf("apps[%d]", i)
		if app.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", field))
		} else if _, dup := names[app.Name]; dup {
			errs = append(errs, fmt.Errorf("%s.name %q is not unique", field, app.Name))
		}
		names[app.Name] = struct{}{}

		if app.Status != 0 && (app.Status < 100 || app.Status > 599) {
			errs = append(errs, fmt.Errorf("%s.status %d out of range", field, app.Status))
		}

		for _, raw := range app.Prefixes {
			p, err := domain.ParsePrefix(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s.prefixes: %w", field, err))
				continue
			}
			key := p.String()
			if owner, taken := owners[key]; taken {
				errs = append(errs, fmt.Errorf("%s.prefixes: %s already used by %q", field, key, owner))
				continue
			}
			owners[key] = app.Name
		}

		for k := range app.Headers {
			if strings.ContainsAny(k, " :\r\n") {
				errs = append(errs, fmt.Errorf("%s.headers: invalid name %q", field, k))
			}
		}
	}
	return errs
}

func verifyMetrics(cfg *MetricsSection) []error {
	if !cfg.Enabled {
		return nil
	}
	var errs []error
	if cfg.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	} else if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		errs = append(errs, fmt.Errorf("metrics.addr: %w", err))
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		errs = append(errs, errors.New("metrics.path must start with /"))
	}
	return errs
}

func verifyLog(cfg *LogSection) []error {
	var errs []error
	switch strings.ToLower(cfg.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn or error", cfg.Level))
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not json or text", cfg.Format))
	}
	return errs
}
