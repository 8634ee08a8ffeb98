package command

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/routemesh-go/internal/auth"
	"github.com/yndnr/routemesh-go/internal/infra/buildinfo"
	"github.com/yndnr/routemesh-go/internal/infra/confloader"
	"github.com/yndnr/routemesh-go/internal/infra/shutdown"
	"github.com/yndnr/routemesh-go/internal/infra/tlsroots"
	"github.com/yndnr/routemesh-go/internal/server/config"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
	"github.com/yndnr/routemesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/routemesh-go/internal/storage"
	"github.com/yndnr/routemesh-go/internal/telemetry/logger"
	"github.com/yndnr/routemesh-go/internal/telemetry/metric"
)

// DefaultShutdownTimeout bounds the graceful shutdown.
const DefaultShutdownTimeout = 15 * time.Second

// ServeCommand returns the serve command.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server (default command)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Override server.http.addr",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "Time allowed for in-flight requests on shutdown",
				Value: DefaultShutdownTimeout,
			},
			&cli.BoolFlag{
				Name:  "no-watch",
				Usage: "Do not reload the configuration file when it changes",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := initLogger(cfg, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	info := buildinfo.Get()
	log.Info("starting routemesh-server",
		"version", info.Version,
		"commit", info.Commit,
		"config", c.String("config"),
	)

	app, err := newServerApp(cfg, log)
	if err != nil {
		return err
	}
	if err := app.start(c.Context); err != nil {
		app.close()
		return err
	}

	timeout := c.Duration("shutdown-timeout")
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	h := shutdown.NewHandler(timeout, shutdown.WithLogger(log))
	h.OnShutdown("resources", func(context.Context) error { return app.close() })

	if path := c.String("config"); path != "" && !c.Bool("no-watch") {
		w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
		if err != nil {
			log.Warn("configuration watcher unavailable", "error", err)
		} else if err := w.Watch(path); err != nil {
			log.Warn("configuration watcher unavailable", "error", err)
			w.Stop()
		} else {
			ov := overrides(c)
			w.OnChange(func(string) { app.reload(path, ov) })
			w.StartAsync()
			h.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
		}
	}

	h.OnShutdown("http server", app.server.Shutdown)

	log.Info("server started, press Ctrl+C to stop", "addr", app.server.Addr().String())
	if err := h.Wait(c.Context); err != nil {
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// serverApp is a configured server with everything it owns.
type serverApp struct {
	cfg     *config.ServerConfig
	logger  *slog.Logger
	metrics *metric.Registry
	server  *httpserver.Server

	store   storage.UserStore
	limiter *auth.AttemptLimiter
	certs   *tlsroots.Watcher

	stop chan struct{}
}

// newServerApp builds the server described by cfg without binding it.
func newServerApp(cfg *config.ServerConfig, log *slog.Logger) (_ *serverApp, err error) {
	a := &serverApp{
		cfg:     cfg,
		logger:  log,
		metrics: metric.Nop(),
		stop:    make(chan struct{}),
	}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.Metrics.Enabled {
		a.metrics = metric.NewRegistry(cfg.Metrics.Namespace)
	}

	h := cfg.Server.HTTP
	srvCfg := &httpserver.Config{
		Network:          h.Network,
		Address:          h.Addr,
		ReadTimeout:      h.ReadTimeout,
		WriteTimeout:     h.WriteTimeout,
		MaxContentLength: h.MaxContentLength,
		MaxRedirects:     h.MaxRedirects,
	}
	if h.TLSEnabled() {
		if srvCfg.TLSConfig, err = a.buildTLS(h); err != nil {
			return nil, err
		}
	}

	var opts []httpserver.DispatcherOption
	gate, err := a.buildGate(&cfg.Auth)
	if err != nil {
		return nil, err
	}
	if gate != nil {
		opts = append(opts, httpserver.WithAuthenticator(gate))
	}

	a.server = httpserver.New(srvCfg, log, a.metrics, opts...)
	if err := a.metrics.Register(metric.NewCollector(cfg.Metrics.Namespace, a.server)); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	if err := a.mountResources(); err != nil {
		return nil, err
	}
	a.server.SetRedirects(cfg.RedirectMap())
	return a, nil
}

func (a *serverApp) buildTLS(h config.HTTPConfig) (*tls.Config, error) {
	certs, err := tlsroots.NewWatcher(h.TLSCertFile, h.TLSKeyFile, tlsroots.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.certs = certs

	var clientCAs *tlsroots.Pool
	if h.TLSClientCAFile != "" {
		if clientCAs, err = tlsroots.LoadPool(h.TLSClientCAFile); err != nil {
			return nil, err
		}
	}
	return tlsroots.ServerConfig(certs, clientCAs), nil
}

// buildGate returns nil when authentication is disabled.
func (a *serverApp) buildGate(cfg *config.AuthSection) (*auth.Gate, error) {
	var verifier auth.Verifier
	switch cfg.Mode {
	case config.AuthModeBasic:
		bcfg := storage.DefaultBadgerConfig(cfg.StoreDir)
		if cfg.StoreEncryptionKey != "" {
			bcfg.EncryptionKey = []byte(cfg.StoreEncryptionKey)
		}
		store, err := storage.OpenBadgerUserStore(bcfg, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open user store: %w", err)
		}
		a.store = store
		if err := store.RegisterMetrics(a.metrics.Registerer(), a.cfg.Metrics.Namespace); err != nil {
			return nil, fmt.Errorf("register user store metrics: %w", err)
		}
		if verifier, err = auth.NewBasicAuth(store, cfg.Realm, a.logger); err != nil {
			return nil, err
		}
	case config.AuthModeBearer:
		bearer, err := auth.NewBearerAuth(auth.BearerConfig{
			Secret:       []byte(cfg.JWTSecret),
			Issuer:       cfg.JWTIssuer,
			RequiredRole: cfg.RequiredRole,
			Realm:        cfg.Realm,
			Leeway:       cfg.JWTLeeway,
			Logger:       a.logger,
		})
		if err != nil {
			return nil, err
		}
		verifier = bearer
	default:
		return nil, nil
	}

	opts := []auth.GateOption{auth.WithGateLogger(a.logger)}
	if cfg.AttemptsPerSecond > 0 {
		a.limiter = auth.NewAttemptLimiter(cfg.AttemptsPerSecond, cfg.AttemptsBurst)
		opts = append(opts, auth.WithLimiter(a.limiter))
	}
	return auth.NewGate(auth.NewScope(cfg.Restrict, cfg.Permit), verifier, opts...), nil
}

func (a *serverApp) mountResources() error {
	deps := handler.Deps{Logger: a.logger, Metrics: a.metrics}
	audit := httpserver.Audit(a.logger)

	for _, rc := range a.cfg.Resources {
		h, err := handler.New(rc.Service, rc.Path, handler.Options(rc.Options), deps)
		if err != nil {
			return err
		}
		mws := []httpserver.Middleware{audit}
		if len(rc.Allow) > 0 {
			mws = append(mws, httpserver.NetworkACL(rc.Allow, a.logger))
		}
		if len(rc.Methods) > 0 {
			mws = append(mws, httpserver.AllowMethods(rc.Methods...))
		}
		if !a.server.AddResource(rc.Path, httpserver.Chain(h, mws...)) {
			return fmt.Errorf("resource %q is registered twice", rc.Path)
		}
	}

	m := a.cfg.Metrics
	if m.Enabled && m.Path != "" {
		h, err := handler.New("metrics", m.Path, nil, deps)
		if err != nil {
			return err
		}
		if !a.server.AddResource(m.Path, httpserver.Chain(h, audit)) {
			a.logger.Warn("metrics path already served by a configured resource", "path", m.Path)
		}
	}
	return nil
}

// start binds the listener and starts the background maintenance.
func (a *serverApp) start(ctx context.Context) error {
	if err := a.server.Start(ctx); err != nil {
		return err
	}
	if a.certs != nil {
		a.certs.StartAsync()
	}
	if a.limiter != nil {
		go a.sweepLimiter(auth.DefaultLimiterIdle / 2)
	}
	return nil
}

func (a *serverApp) sweepLimiter(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := a.limiter.Sweep(); n > 0 {
				a.logger.Debug("dropped idle attempt budgets", "clients", n)
			}
		case <-a.stop:
			return
		}
	}
}

// reload re-reads the configuration file and applies the settings that
// can change while running: redirects and the log level.
func (a *serverApp) reload(path string, ov map[string]any) {
	cfg, err := config.Load(path, ov)
	if err != nil {
		a.logger.Error("configuration reload rejected", "error", err)
		return
	}

	a.server.SetRedirects(cfg.RedirectMap())
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		a.logger.Error("log level not applied", "error", err)
	}
	a.logger.Info("configuration reloaded",
		"redirects", len(cfg.Redirects),
		"log_level", cfg.Log.Level,
	)
}

// close releases everything except the listener, which the shutdown
// hook drains first.
func (a *serverApp) close() error {
	select {
	case <-a.stop:
		return nil
	default:
		close(a.stop)
	}
	if a.certs != nil {
		a.certs.Stop()
	}
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close user store: %w", err))
		}
	}
	return errors.Join(errs...)
}
