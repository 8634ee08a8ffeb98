package config

import "time"

// ServerConfig is the root configuration for routemesh-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	Resources []ResourceConfig `koanf:"resources"`
	Redirects []RedirectConfig `koanf:"redirects"`
	Auth      AuthSection      `koanf:"auth"`
	Metrics   MetricsSection   `koanf:"metrics"`
	Log       LogSection       `koanf:"log"`
}

// ServerSection configures server endpoints.
type ServerSection struct {
	HTTP HTTPConfig `koanf:"http"`
}

// HTTPConfig configures the HTTP listener and the engine limits.
type HTTPConfig struct {
	Addr    string `koanf:"addr"`
	Network string `koanf:"network"`

	TLSCertFile string `koanf:"tls_cert_file"`
	TLSKeyFile  string `koanf:"tls_key_file"`

	// TLSClientCAFile enables mutual TLS when set.
	TLSClientCAFile string `koanf:"tls_client_ca_file"`

	// ReadTimeout of zero disables the reader timeout.
	ReadTimeout      time.Duration `koanf:"read_timeout"`
	WriteTimeout     time.Duration `koanf:"write_timeout"`
	MaxContentLength int64         `koanf:"max_content_length"`
	MaxRedirects     int           `koanf:"max_redirects"`
}

// TLSEnabled reports whether a certificate pair is configured.
func (c HTTPConfig) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// ResourceConfig mounts a plugin service at a resource path.
type ResourceConfig struct {
	Path    string            `koanf:"path"`
	Service string            `koanf:"service"`
	Options map[string]string `koanf:"options"`

	// Methods restricts the accepted request methods. Empty allows all.
	Methods []string `koanf:"methods"`

	// Allow restricts clients to these IPs or CIDRs. Empty allows all.
	Allow []string `koanf:"allow"`
}

// RedirectConfig maps one resource onto another.
type RedirectConfig struct {
	From string `koanf:"from"`
	To   string `koanf:"to"`
}

// Auth modes.
const (
	AuthModeNone   = "none"
	AuthModeBasic  = "basic"
	AuthModeBearer = "bearer"
)

// AuthSection configures the authentication gate.
type AuthSection struct {
	Mode  string `koanf:"mode"`
	Realm string `koanf:"realm"`

	// Restrict lists the resources that require credentials; Permit
	// carves public resources out of them.
	Restrict []string `koanf:"restrict"`
	Permit   []string `koanf:"permit"`

	// StoreDir holds the basic-auth user database.
	StoreDir string `koanf:"store_dir"`

	// StoreEncryptionKey encrypts the user database at rest
	// (16, 24 or 32 bytes).
	StoreEncryptionKey string `koanf:"store_encryption_key"`

	JWTSecret    string        `koanf:"jwt_secret"`
	JWTIssuer    string        `koanf:"jwt_issuer"`
	JWTLeeway    time.Duration `koanf:"jwt_leeway"`
	RequiredRole string        `koanf:"required_role"`

	// AttemptsPerSecond of zero disables throttling of failed attempts.
	AttemptsPerSecond float64 `koanf:"attempts_per_second"`
	AttemptsBurst     int     `koanf:"attempts_burst"`
}

// MetricsSection configures the Prometheus registry and its endpoint.
type MetricsSection struct {
	Enabled   bool   `koanf:"enabled"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// RedirectMap returns the redirects in the form the dispatcher accepts.
// Later entries override earlier ones with the same source.
func (c *ServerConfig) RedirectMap() map[string]string {
	m := make(map[string]string, len(c.Redirects))
	for _, r := range c.Redirects {
		m[r.From] = r.To
	}
	return m
}
