package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/routemesh-go/internal/auth"
	"github.com/yndnr/routemesh-go/internal/server/httpserver"
	"github.com/yndnr/routemesh-go/internal/server/httpserver/handler"
	"github.com/yndnr/routemesh-go/internal/telemetry/logger"
)

// Verify validates the configuration and returns the first problem found.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyResources(cfg.Resources); err != nil {
		return err
	}
	if err := verifyRedirects(cfg.Redirects); err != nil {
		return err
	}
	if err := verifyAuth(&cfg.Auth); err != nil {
		return err
	}
	if err := verifyMetrics(&cfg.Metrics); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	h := cfg.HTTP
	if h.Addr == "" {
		return errors.New("server.http.addr is required")
	}
	switch h.Network {
	case "", "tcp":
		if _, _, err := net.SplitHostPort(h.Addr); err != nil {
			return fmt.Errorf("server.http.addr: %w", err)
		}
	case "unix":
	default:
		return fmt.Errorf("server.http.network must be tcp or unix, got %q", h.Network)
	}

	if h.ReadTimeout < 0 || h.WriteTimeout < 0 {
		return errors.New("server.http timeouts must not be negative")
	}
	if h.MaxContentLength < 0 {
		return errors.New("server.http.max_content_length must not be negative")
	}
	if h.MaxRedirects < 0 {
		return errors.New("server.http.max_redirects must not be negative")
	}

	if (h.TLSCertFile == "") != (h.TLSKeyFile == "") {
		return errors.New("server.http.tls_cert_file and tls_key_file must be set together")
	}
	if h.TLSClientCAFile != "" && !h.TLSEnabled() {
		return errors.New("server.http.tls_client_ca_file requires a certificate pair")
	}
	for _, f := range []string{h.TLSCertFile, h.TLSKeyFile, h.TLSClientCAFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("server.http tls file: %w", err)
		}
	}
	return nil
}

func verifyResources(resources []ResourceConfig) error {
	known := handler.Names()
	seen := make(map[string]bool, len(resources))
	for i, r := range resources {
		if r.Path != "" && !strings.HasPrefix(r.Path, "/") {
			return fmt.Errorf("resources[%d].path %q must start with /", i, r.Path)
		}
		key := httpserver.StripTrailingSlash(r.Path)
		if seen[key] {
			return fmt.Errorf("resources[%d].path %q is registered twice", i, r.Path)
		}
		seen[key] = true

		if !containsFold(known, r.Service) {
			return fmt.Errorf("resources[%d].service %q is unknown (known: %s)",
				i, r.Service, strings.Join(known, ", "))
		}
		for _, entry := range r.Allow {
			if !validNetwork(entry) {
				return fmt.Errorf("resources[%d].allow entry %q is not an IP or CIDR", i, entry)
			}
		}
	}
	return nil
}

func verifyRedirects(redirects []RedirectConfig) error {
	for i, r := range redirects {
		if r.From == "" || r.To == "" {
			return fmt.Errorf("redirects[%d] needs both from and to", i)
		}
	}
	return nil
}

func verifyAuth(cfg *AuthSection) error {
	switch strings.ToLower(cfg.Mode) {
	case "", AuthModeNone:
		return nil
	case AuthModeBasic:
		if cfg.StoreDir == "" {
			return errors.New("auth.store_dir is required for basic auth")
		}
		switch len(cfg.StoreEncryptionKey) {
		case 0, 16, 24, 32:
		default:
			return errors.New("auth.store_encryption_key must be 16, 24 or 32 bytes")
		}
	case AuthModeBearer:
		if len(cfg.JWTSecret) < auth.MinSecretLength {
			return fmt.Errorf("auth.jwt_secret must be at least %d bytes", auth.MinSecretLength)
		}
		if cfg.JWTLeeway < 0 {
			return errors.New("auth.jwt_leeway must not be negative")
		}
	default:
		return fmt.Errorf("auth.mode must be none, basic or bearer, got %q", cfg.Mode)
	}

	if cfg.AttemptsPerSecond < 0 {
		return errors.New("auth.attempts_per_second must not be negative")
	}
	if cfg.AttemptsPerSecond > 0 && cfg.AttemptsBurst < 1 {
		return errors.New("auth.attempts_burst must be at least 1 when throttling is enabled")
	}
	return nil
}

func verifyMetrics(cfg *MetricsSection) error {
	if cfg.Enabled && cfg.Path != "" && !strings.HasPrefix(cfg.Path, "/") {
		return fmt.Errorf("metrics.path %q must start with /", cfg.Path)
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if _, err := logger.ParseLevel(cfg.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json", "text", "console":
		return nil
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Format)
	}
}

func validNetwork(entry string) bool {
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		return err == nil
	}
	return net.ParseIP(entry) != nil
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
