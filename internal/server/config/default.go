package config

import "time"

// Default configuration values.
const (
	DefaultHTTPAddr         = "127.0.0.1:8080"
	DefaultNetwork          = "tcp"
	DefaultReadTimeout      = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultMaxContentLength = 1 << 20
	DefaultMaxRedirects     = 10

	DefaultAuthMode          = AuthModeNone
	DefaultRealm             = "routemesh"
	DefaultStoreDir          = "/var/lib/routemesh-server/users"
	DefaultJWTLeeway         = 30 * time.Second
	DefaultAttemptsPerSecond = 1.0
	DefaultAttemptsBurst     = 5

	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "routemesh"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			HTTP: HTTPConfig{
				Addr:             DefaultHTTPAddr,
				Network:          DefaultNetwork,
				ReadTimeout:      DefaultReadTimeout,
				WriteTimeout:     DefaultWriteTimeout,
				MaxContentLength: DefaultMaxContentLength,
				MaxRedirects:     DefaultMaxRedirects,
			},
		},
		Auth: AuthSection{
			Mode:              DefaultAuthMode,
			Realm:             DefaultRealm,
			StoreDir:          DefaultStoreDir,
			JWTLeeway:         DefaultJWTLeeway,
			AttemptsPerSecond: DefaultAttemptsPerSecond,
			AttemptsBurst:     DefaultAttemptsBurst,
		},
		Metrics: MetricsSection{
			Enabled:   true,
			Path:      DefaultMetricsPath,
			Namespace: DefaultMetricsNamespace,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
