package app

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/yndnr/sockhttp/internal/core/domain"
	"github.com/yndnr/sockhttp/internal/server/endpoint"
	"github.com/yndnr/sockhttp/internal/telemetry/logger"
	"github.com/yndnr/sockhttp/pkg/cmap"
)

// Registrar registers prefixes for listeners. *endpoint.Manager implements it.
type Registrar interface {
	AddPrefix(prefix string, l endpoint.AppListener) error
	RemovePrefix(prefix string, l endpoint.AppListener) error
}

// HandlerFunc fills in the response of a bound context.
type HandlerFunc func(c *endpoint.Context)

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *App) {
		a.log = l
	}
}

// App is an application listener: it owns a set of prefixes and serves the
// requests bound to them.
type App struct {
	name    string
	handler atomic.Pointer[HandlerFunc]
	log     logger.Logger

	mu       sync.Mutex
	reg      Registrar
	prefixes map[string]struct{}

	contexts *cmap.Map[string, *endpoint.Context]
	served   atomic.Int64
}

// New creates an app that serves requests with h.
func New(name string, h HandlerFunc, opts ...Option) *App {
	a := &App{
		name:     name,
		log:      logger.Nop(),
		prefixes: make(map[string]struct{}),
		contexts: cmap.New[string, *endpoint.Context](),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("app", name)
	a.SetHandler(h)
	return a
}

// SetHandler replaces the handler for requests dispatched from now on.
// A nil handler answers 204 No Content.
func (a *App) SetHandler(h HandlerFunc) {
	a.handler.Store(&h)
}

// Name returns the app name.
func (a *App) Name() string {
	return a.name
}

// CanonicalPrefix returns the form prefixes are routed by, so spellings
// that differ only in host case or a default port compare equal.
func CanonicalPrefix(s string) (string, error) {
	p, err := domain.ParsePrefix(s)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

// canonical converts prefixes to their canonical form, dropping duplicates.
// Nothing is returned if any prefix fails to parse.
func canonical(prefixes []string) ([]string, error) {
	seen := make(map[string]struct{}, len(prefixes))
	out := make([]string, 0, len(prefixes))
	for _, raw := range prefixes {
		p, err := CanonicalPrefix(raw)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}

// Start registers prefixes with reg. If any prefix fails, the ones already
// registered are removed again and the error is returned.
func (a *App) Start(reg Registrar, prefixes []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reg != nil {
		return fmt.Errorf("app %s: already started", a.name)
	}
	prefixes, err := canonical(prefixes)
	if err != nil {
		return fmt.Errorf("app %s: %w", a.name, err)
	}

	var added []string
	for _, p := range prefixes {
		if err := reg.AddPrefix(p, a); err != nil {
			for _, done := range added {
				_ = reg.RemovePrefix(done, a)
			}
			return fmt.Errorf("app %s: add prefix %s: %w", a.name, p, err)
		}
		added = append(added, p)
	}

	a.reg = reg
	for _, p := range added {
		a.prefixes[p] = struct{}{}
	}
	a.log.Info("app started", "prefixes", added)
	return nil
}

// SetPrefixes makes the registered prefixes equal to prefixes. Removals
// happen first so a prefix can move between apps in one reload.
func (a *App) SetPrefixes(prefixes []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reg == nil {
		return fmt.Errorf("app %s: not started", a.name)
	}
	prefixes, err := canonical(prefixes)
	if err != nil {
		return fmt.Errorf("app %s: %w", a.name, err)
	}

	want := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		want[p] = struct{}{}
	}

	var errs []error
	for p := range a.prefixes {
		if _, ok := want[p]; ok {
			continue
		}
		if err := a.reg.RemovePrefix(p, a); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(a.prefixes, p)
	}
	for _, p := range prefixes {
		if _, ok := a.prefixes[p]; ok {
			continue
		}
		if err := a.reg.AddPrefix(p, a); err != nil {
			errs = append(errs, fmt.Errorf("add prefix %s: %w", p, err))
			continue
		}
		a.prefixes[p] = struct{}{}
	}

	if len(errs) > 0 {
		return fmt.Errorf("app %s: %w", a.name, errors.Join(errs...))
	}
	return nil
}

// Stop removes every prefix. Requests still in flight finish normally.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.reg == nil {
		return nil
	}

	var errs []error
	for p := range a.prefixes {
		if err := a.reg.RemovePrefix(p, a); err != nil {
			errs = append(errs, err)
		}
	}
	a.prefixes = make(map[string]struct{})
	a.reg = nil

	if n := len(a.contexts.Drain()); n > 0 {
		a.log.Info("app stopped with requests in flight", "requests", n)
	} else {
		a.log.Info("app stopped")
	}
	return errors.Join(errs...)
}

// Prefixes returns the registered prefixes in canonical form, sorted.
func (a *App) Prefixes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.prefixes))
	for p := range a.prefixes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Active returns the number of requests being served.
func (a *App) Active() int {
	return a.contexts.Count()
}

// Served returns the number of requests dispatched so far.
func (a *App) Served() int64 {
	return a.served.Load()
}

// ServeContext implements httpconn.Handler.
func (a *App) ServeContext(c *endpoint.Context) {
	a.contexts.Set(c.ID, c)
	a.served.Add(1)

	log := a.log.WithContext(c.Context())
	if c.Prefix != nil {
		log = log.With("prefix", c.Prefix.String())
	}
	h := *a.handler.Load()
	if h == nil {
		c.Response.Status = http.StatusNoContent
		log.Debug("no handler, answering 204")
		return
	}
	h(c)
	log.Debug("request handled", "status", c.Response.Status)
}

// UnregisterContext implements endpoint.AppListener.
func (a *App) UnregisterContext(c *endpoint.Context) {
	a.contexts.Pop(c.ID)
}
