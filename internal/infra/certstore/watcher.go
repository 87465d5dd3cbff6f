package certstore

import (
	"crypto/tls"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yndnr/sockhttp/internal/telemetry/logger"
)

// Watcher watches a certificate/key pair and reloads it on changes.
type Watcher struct {
	certFile string
	keyFile  string
	cert     *tls.Certificate
	mu       sync.RWMutex
	done     chan struct{}
	stopOnce sync.Once
	logger   logger.Logger
	onReload func(*tls.Certificate)

	// Debounce settings to avoid multiple reloads
	debounce   time.Duration
	settle     time.Duration
	lastReload time.Time
	reloadMu   sync.Mutex
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(l logger.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = l
	}
}

// WithDebounce sets the debounce duration.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithOnReload sets a callback invoked with every successfully reloaded pair.
func WithOnReload(fn func(*tls.Certificate)) WatcherOption {
	return func(w *Watcher) {
		w.onReload = fn
	}
}

// NewWatcher creates a watcher for the pair of port under dir.
//
// The pair does not need to exist yet; Current returns nil until a load
// succeeds.
func NewWatcher(dir string, port int, opts ...WatcherOption) *Watcher {
	certFile, keyFile := Locate(dir, port)
	w := &Watcher{
		certFile: certFile,
		keyFile:  keyFile,
		done:     make(chan struct{}),
		logger:   logger.Nop(),
		debounce: 500 * time.Millisecond,
		settle:   100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(w)
	}

	if err := w.reload(); err != nil {
		w.logger.Debug("certificate not loaded yet", "cert_file", certFile, "error", err)
	}

	return w
}

// Start starts watching for certificate changes.
// This function blocks until Stop() is called.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("certstore: create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editor-style renames are seen.
	dir := filepath.Dir(w.certFile)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("certstore: watch dir %s: %w", dir, err)
	}

	w.logger.Info("certificate watcher started",
		"cert_file", w.certFile,
		"key_file", w.keyFile,
	)

	certBase := filepath.Base(w.certFile)
	keyBase := filepath.Base(w.keyFile)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			changed := filepath.Base(event.Name)
			if changed != certBase && changed != keyBase {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.logger.Debug("certificate file changed",
				"file", event.Name,
				"op", event.Op.String(),
			)

			if err := w.debouncedReload(); err != nil {
				w.logger.Warn("certificate reload failed",
					"error", err,
					"cert_file", w.certFile,
				)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("certificate watcher error", "error", err, "cert_file", w.certFile)

		case <-w.done:
			return nil
		}
	}
}

// StartAsync starts watching in a goroutine.
func (w *Watcher) StartAsync() {
	go func() {
		if err := w.Start(); err != nil {
			w.logger.Error("certificate watcher stopped with error", "error", err)
		}
	}()
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

// Current returns the last successfully loaded pair, or nil.
func (w *Watcher) Current() *tls.Certificate {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cert
}

// GetCertificate implements tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	if c := w.Current(); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("certstore: no certificate for %s", w.certFile)
}

func (w *Watcher) debouncedReload() error {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	now := time.Now()
	if now.Sub(w.lastReload) < w.debounce {
		return nil
	}
	w.lastReload = now

	// Give the writer a moment to finish both files.
	time.Sleep(w.settle)

	return w.reload()
}

func (w *Watcher) reload() error {
	cert, err := loadPair(w.certFile, w.keyFile)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.cert = cert
	w.mu.Unlock()

	w.logger.Info("certificate reloaded", "cert_file", w.certFile)

	if w.onReload != nil {
		w.onReload(cert)
	}
	return nil
}
