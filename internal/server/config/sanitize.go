package config

import "strings"

// Sanitize returns a copy of cfg that is safe to print or log: every
// secret is masked and the slices are not shared with cfg.
func Sanitize(cfg *ServerConfig) *ServerConfig {
	out := *cfg
	out.Resources = append([]ResourceConfig(nil), cfg.Resources...)
	out.Redirects = append([]RedirectConfig(nil), cfg.Redirects...)

	for _, secret := range []*string{
		&out.Auth.JWTSecret,
		&out.Auth.StoreEncryptionKey,
	} {
		if *secret != "" {
			*secret = maskSecret(*secret)
		}
	}
	return &out
}

// maskSecret keeps two characters at each end of s.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
