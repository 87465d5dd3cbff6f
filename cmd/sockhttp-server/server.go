package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/yndnr/sockhttp/internal/infra/buildinfo"
	"github.com/yndnr/sockhttp/internal/infra/confloader"
	"github.com/yndnr/sockhttp/internal/infra/shutdown"
	"github.com/yndnr/sockhttp/internal/server/app"
	"github.com/yndnr/sockhttp/internal/server/config"
	"github.com/yndnr/sockhttp/internal/server/endpoint"
	"github.com/yndnr/sockhttp/internal/server/httpconn"
	"github.com/yndnr/sockhttp/internal/telemetry/logger"
	"github.com/yndnr/sockhttp/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

// server owns the endpoint manager and the configured apps.
type server struct {
	log     logger.Logger
	metrics *metric.Registry
	mgr     *endpoint.Manager

	reloadMu sync.Mutex

	mu       sync.Mutex
	listener config.ListenerSection
	apps     map[string]*app.App

	admin *http.Server
}

func newServer(cfg *config.ServerConfig, log logger.Logger, reg *metric.Registry) *server {
	mgr := endpoint.NewManager(endpoint.ManagerOptions{
		BindHost:          cfg.Listener.BindHost,
		CertDir:           cfg.Listener.CertDir,
		WatchCertificates: cfg.Listener.WatchCerts,
		ConnFactory: httpconn.Factory(httpconn.Options{
			ReadTimeout:  cfg.Listener.ReadTimeout,
			WriteTimeout: cfg.Listener.WriteTimeout,
			ServerName:   buildinfo.ServerName(),
		}),
		Logger:  log,
		Metrics: reg,
	})
	reg.Prometheus().MustRegister(metric.NewCollector(mgr.Stats))

	return &server{
		log:      log,
		metrics:  reg,
		mgr:      mgr,
		listener: cfg.Listener,
		apps:     make(map[string]*app.App),
	}
}

func staticHandler(cfg config.AppConfig) app.HandlerFunc {
	return app.StaticHandler{
		Status:      cfg.Status,
		Body:        cfg.Body,
		ContentType: cfg.ContentType,
		Headers:     cfg.Headers,
	}.Handle
}

// applyApps reconciles the running apps with cfgs. Apps missing from cfgs
// are stopped and prefixes leaving an app are released before any prefix
// is added, so a prefix can move between apps in one pass.
func (s *server) applyApps(cfgs []config.AppConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]config.AppConfig, len(cfgs))
	for _, c := range cfgs {
		want[c.Name] = c
	}

	var errs []error
	for name, a := range s.apps {
		c, ok := want[name]
		if !ok {
			if err := a.Stop(); err != nil {
				errs = append(errs, err)
			}
			delete(s.apps, name)
			continue
		}
		if err := a.SetPrefixes(intersect(a.Prefixes(), c.Prefixes)); err != nil {
			errs = append(errs, err)
		}
	}

	for _, c := range cfgs {
		if a, ok := s.apps[c.Name]; ok {
			a.SetHandler(staticHandler(c))
			if err := a.SetPrefixes(c.Prefixes); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		a := app.New(c.Name, staticHandler(c), app.WithLogger(s.log))
		if err := a.Start(s.mgr, c.Prefixes); err != nil {
			errs = append(errs, err)
			continue
		}
		s.apps[c.Name] = a
	}
	return errors.Join(errs...)
}

// intersect returns the canonical prefixes in have that some spelling in
// want also names.
func intersect(have, want []string) []string {
	keep := make(map[string]struct{}, len(want))
	for _, p := range want {
		if c, err := app.CanonicalPrefix(p); err == nil {
			keep[c] = struct{}{}
		}
	}
	var out []string
	for _, p := range have {
		if _, ok := keep[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// reload loads the configuration again and applies what can change at
// runtime: apps and the log level.
func (s *server) reload(loader *confloader.Loader) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cfg, err := loadConfig(loader)
	if err != nil {
		return err
	}
	logger.SetLevel(cfg.Log.Level)

	s.mu.Lock()
	if !reflect.DeepEqual(s.listener, cfg.Listener) {
		s.log.Warn("listener settings changed; restart to apply them")
	}
	s.mu.Unlock()

	if err := s.applyApps(cfg.Apps); err != nil {
		return err
	}
	s.log.Info("configuration reloaded", "apps", len(cfg.Apps), "endpoints", len(s.mgr.Endpoints()))
	return nil
}

// appNames returns the running app names, sorted.
func (s *server) appNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.apps))
	for name := range s.apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *server) lookupApp(name string) (*app.App, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[name]
	return a, ok
}

// stopApps stops every app. Endpoints are torn down as their last prefix
// goes away.
func (s *server) stopApps() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, a := range s.apps {
		if err := a.Stop(); err != nil {
			errs = append(errs, err)
		}
		delete(s.apps, name)
	}
	return errors.Join(errs...)
}

// startAdmin serves metrics and a health check on cfg.Addr.
func (s *server) startAdmin(cfg config.MetricsSection) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("admin listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, s.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "ok\napps: %d\nendpoints: %d\n", len(s.appNames()), len(s.mgr.Endpoints()))
	})

	s.admin = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.log.Info("admin server listening", "addr", ln.Addr().String(), "metrics_path", cfg.Path)
		if err := s.admin.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("admin server error", "error", err)
		}
	}()
	return nil
}

func (s *server) stopAdmin(ctx context.Context) error {
	if s.admin == nil {
		return nil
	}
	return s.admin.Shutdown(ctx)
}

func newLogger(cfg config.LogSection) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// runServe runs the server until a shutdown signal arrives or ctx ends.
func runServe(ctx context.Context, loader *confloader.Loader, watch bool) error {
	cfg, err := loadConfig(loader)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("starting sockhttp-server",
		"version", buildinfo.Get().Version,
		"commit", buildinfo.Get().Commit,
		"config", loader.FilePath())

	srv := newServer(cfg, log, metric.NewRegistry(nil))
	h := shutdown.NewHandler(shutdownTimeout, shutdown.WithLogger(log))

	// Hooks run in reverse order: apps stop before endpoints are closed.
	h.OnShutdown("endpoints", func(context.Context) error { return srv.mgr.Close() })
	h.OnShutdown("apps", func(context.Context) error { return srv.stopApps() })

	// fail runs the hooks registered so far and returns err.
	fail := func(err error) error {
		h.Trigger()
		_ = h.Wait(context.Background())
		return err
	}

	if err := srv.applyApps(cfg.Apps); err != nil {
		return fail(fmt.Errorf("start apps: %w", err))
	}
	for _, ep := range srv.mgr.Endpoints() {
		log.Info("endpoint listening", "addr", ep.Addr(), "secure", ep.Secure())
	}

	if cfg.Metrics.Enabled {
		if err := srv.startAdmin(cfg.Metrics); err != nil {
			return fail(err)
		}
		h.OnShutdown("admin", srv.stopAdmin)
	}

	reloadCtx, cancelReload := context.WithCancel(ctx)
	defer cancelReload()
	doReload := func() {
		if err := srv.reload(loader); err != nil {
			log.Error("configuration reload failed", "error", err)
		}
	}
	shutdown.NotifyReload(reloadCtx, doReload)

	if path := loader.FilePath(); watch && path != "" {
		w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
		if err != nil {
			return fail(fmt.Errorf("config watcher: %w", err))
		}
		if err := w.Watch(path); err != nil {
			_ = w.Stop()
			return fail(fmt.Errorf("config watcher: %w", err))
		}
		w.OnChange(func(string) { doReload() })
		w.StartAsync()
		h.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
	}

	log.Info("server started", "apps", len(cfg.Apps))
	if err := h.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}
