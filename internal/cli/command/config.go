package command

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/routemesh-go/internal/cli/output"
	"github.com/yndnr/routemesh-go/internal/server/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "check",
				Usage:  "Load and verify the configuration, then print it with secrets masked",
				Action: configCheck,
			},
		},
	}
}

func configCheck(c *cli.Context) error {
	cfg, sources, err := config.LoadWithSources(c.String("config"), overrides(c))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	s := summarize(config.Sanitize(cfg))
	s.Sources = append([]string{"defaults"}, sources...)
	return printResult(c, s)
}

// configSummary is the printable form of a ServerConfig.
type configSummary struct {
	Sources          []string          `json:"sources" yaml:"sources"`
	Listen           string            `json:"listen" yaml:"listen"`
	TLS              bool              `json:"tls" yaml:"tls"`
	MutualTLS        bool              `json:"mutual_tls" yaml:"mutual_tls"`
	ReadTimeout      string            `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout     string            `json:"write_timeout" yaml:"write_timeout"`
	MaxContentLength int64             `json:"max_content_length" yaml:"max_content_length"`
	MaxRedirects     int               `json:"max_redirects" yaml:"max_redirects"`
	Resources        []resourceSummary `json:"resources" yaml:"resources"`
	Redirects        map[string]string `json:"redirects" yaml:"redirects"`
	AuthMode         string            `json:"auth_mode" yaml:"auth_mode"`
	AuthRestrict     []string          `json:"auth_restrict,omitempty" yaml:"auth_restrict,omitempty"`
	AuthPermit       []string          `json:"auth_permit,omitempty" yaml:"auth_permit,omitempty"`
	JWTSecret        string            `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`
	Metrics          string            `json:"metrics" yaml:"metrics"`
	LogLevel         string            `json:"log_level" yaml:"log_level"`
	LogFormat        string            `json:"log_format" yaml:"log_format"`
}

type resourceSummary struct {
	Path    string   `json:"path" yaml:"path"`
	Service string   `json:"service" yaml:"service"`
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`
	Allow   []string `json:"allow,omitempty" yaml:"allow,omitempty"`
}

func summarize(cfg *config.ServerConfig) *configSummary {
	h := cfg.Server.HTTP
	s := &configSummary{
		Listen:           h.Network + "://" + h.Addr,
		TLS:              h.TLSEnabled(),
		MutualTLS:        h.TLSClientCAFile != "",
		ReadTimeout:      durationOrOff(h.ReadTimeout.String(), h.ReadTimeout == 0),
		WriteTimeout:     durationOrOff(h.WriteTimeout.String(), h.WriteTimeout == 0),
		MaxContentLength: h.MaxContentLength,
		MaxRedirects:     h.MaxRedirects,
		Redirects:        cfg.RedirectMap(),
		AuthMode:         cfg.Auth.Mode,
		JWTSecret:        cfg.Auth.JWTSecret,
		Metrics:          "off",
		LogLevel:         cfg.Log.Level,
		LogFormat:        cfg.Log.Format,
	}
	if cfg.Auth.Mode != config.AuthModeNone {
		s.AuthRestrict = cfg.Auth.Restrict
		s.AuthPermit = cfg.Auth.Permit
	}
	if cfg.Metrics.Enabled {
		s.Metrics = cfg.Metrics.Path
	}
	for _, r := range cfg.Resources {
		s.Resources = append(s.Resources, resourceSummary{
			Path:    r.Path,
			Service: strings.ToLower(r.Service),
			Methods: r.Methods,
			Allow:   r.Allow,
		})
	}
	return s
}

func durationOrOff(s string, off bool) string {
	if off {
		return "off"
	}
	return s
}

// Table implements output.Tabular.
func (s *configSummary) Table() *output.Table {
	t := output.NewTable("SETTING", "VALUE")
	t.AddRow("sources", strings.Join(s.Sources, " < "))
	t.AddRow("listen", s.Listen)
	t.AddRow("tls", tlsMode(s.TLS, s.MutualTLS))
	t.AddRow("read_timeout", s.ReadTimeout)
	t.AddRow("write_timeout", s.WriteTimeout)
	t.AddRow("max_content_length", strconv.FormatInt(s.MaxContentLength, 10))
	t.AddRow("max_redirects", strconv.Itoa(s.MaxRedirects))
	for _, r := range s.Resources {
		t.AddRow("resource "+r.Path, describeResource(r))
	}
	for _, from := range sortedKeys(s.Redirects) {
		t.AddRow("redirect "+from, s.Redirects[from])
	}
	t.AddRow("auth", s.AuthMode)
	if len(s.AuthRestrict) > 0 {
		t.AddRow("auth_restrict", strings.Join(s.AuthRestrict, ", "))
	}
	if len(s.AuthPermit) > 0 {
		t.AddRow("auth_permit", strings.Join(s.AuthPermit, ", "))
	}
	if s.JWTSecret != "" {
		t.AddRow("jwt_secret", s.JWTSecret)
	}
	t.AddRow("metrics", s.Metrics)
	t.AddRow("log", fmt.Sprintf("%s (%s)", s.LogLevel, s.LogFormat))
	return t
}

func tlsMode(enabled, mutual bool) string {
	switch {
	case mutual:
		return "mutual"
	case enabled:
		return "on"
	default:
		return "off"
	}
}

func describeResource(r resourceSummary) string {
	parts := []string{r.Service}
	if len(r.Methods) > 0 {
		parts = append(parts, "methods="+strings.Join(r.Methods, ","))
	}
	if len(r.Allow) > 0 {
		parts = append(parts, "allow="+strings.Join(r.Allow, ","))
	}
	return strings.Join(parts, " ")
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
