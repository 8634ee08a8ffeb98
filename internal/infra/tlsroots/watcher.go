package tlsroots

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/yndnr/routemesh-go/internal/infra/confloader"
)

// DefaultDebounce is how long the key pair files must stay quiet before
// a reload. Renewal tools write the certificate and key separately.
const DefaultDebounce = 500 * time.Millisecond

// Watcher serves a key pair and reloads it when either file changes.
type Watcher struct {
	certFile string
	keyFile  string
	debounce time.Duration
	logger   *slog.Logger

	cert  atomic.Pointer[tls.Certificate]
	files *confloader.Watcher
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets the logger for the watcher.
func WithLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounce sets the debounce duration.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// NewWatcher loads the key pair and returns a watcher serving it.
// Files are not watched until Start.
func NewWatcher(certFile, keyFile string, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		certFile: certFile,
		keyFile:  keyFile,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}

	if err := w.Reload(); err != nil {
		return nil, fmt.Errorf("tlsroots: initial load: %w", err)
	}

	files, err := confloader.NewWatcher(
		confloader.WithWatcherLogger(w.logger),
		confloader.WithDebounce(w.debounce),
	)
	if err != nil {
		return nil, fmt.Errorf("tlsroots: create watcher: %w", err)
	}
	w.files = files
	return w, nil
}

// Start watches the key pair and blocks until Stop.
func (w *Watcher) Start() error {
	for _, f := range []string{w.certFile, w.keyFile} {
		if err := w.files.Watch(f); err != nil {
			return fmt.Errorf("tlsroots: watch %s: %w", f, err)
		}
	}
	w.files.OnChange(func(path string) {
		if err := w.Reload(); err != nil {
			w.logger.Error("certificate reload failed, keeping current certificate",
				"error", err,
				"changed", path,
			)
		}
	})
	w.files.Start()
	return nil
}

// StartAsync runs Start in a goroutine.
func (w *Watcher) StartAsync() {
	go func() {
		if err := w.Start(); err != nil {
			w.logger.Error("certificate watcher stopped", "error", err)
		}
	}()
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	_ = w.files.Stop()
}

// GetCertificate implements tls.Config.GetCertificate.
func (w *Watcher) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return w.Certificate(), nil
}

// Certificate returns the certificate currently served.
func (w *Watcher) Certificate() *tls.Certificate {
	return w.cert.Load()
}

// Reload loads the key pair now. On failure the previous certificate
// stays in service.
func (w *Watcher) Reload() error {
	cert, err := tls.LoadX509KeyPair(w.certFile, w.keyFile)
	if err != nil {
		return fmt.Errorf("load key pair: %w", err)
	}
	w.cert.Store(&cert)

	attrs := []any{"cert_file", w.certFile}
	if leaf := cert.Leaf; leaf != nil {
		attrs = append(attrs,
			"subject", leaf.Subject.String(),
			"not_after", leaf.NotAfter.UTC().Format(time.RFC3339),
		)
	}
	w.logger.Info("certificate loaded", attrs...)
	return nil
}
