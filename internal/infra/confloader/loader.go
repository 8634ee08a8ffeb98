package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "ROUTEMESH_"

// envLevelSeparator separates nesting levels in variable names, since
// key names themselves contain single underscores.
const envLevelSeparator = "__"

// Source names reported by Loader.Sources.
const (
	SourceFile      = "file"
	SourceEnv       = "env"
	SourceOverrides = "overrides"
)

// Loader layers configuration sources over a caller-supplied target.
// Later sources win: file, then environment, then overrides.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	overrides map[string]any
	applied   []string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// WithConfigFile sets the YAML file read first. Empty means none.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.filePath = path }
}

// WithOverrides sets dotted-key values applied after every other
// source, typically taken from command-line flags.
func WithOverrides(values map[string]any) Option {
	return func(l *Loader) { l.overrides = values }
}

// NewLoader creates a loader. Nothing is read until Load.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		k:         koanf.New("."),
		envPrefix: DefaultEnvPrefix,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FilePath returns the configured file path, if any.
func (l *Loader) FilePath() string {
	return l.filePath
}

// Load applies every configured source and unmarshals into target.
// Fields of target that no source sets keep their current values, so a
// target pre-filled with defaults yields defaults for missing keys.
func (l *Loader) Load(target any) error {
	steps := []struct {
		name string
		skip bool
		load func() error
	}{
		{SourceFile, l.filePath == "", func() error { return l.LoadFile(l.filePath) }},
		{SourceEnv, false, l.LoadEnv},
		{SourceOverrides, len(l.overrides) == 0, func() error { return l.LoadMap(l.overrides) }},
	}

	for _, step := range steps {
		if step.skip {
			continue
		}
		if err := step.load(); err != nil {
			return fmt.Errorf("load %s: %w", step.name, err)
		}
	}

	if err := l.Unmarshal(target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// Sources lists the sources applied so far, in order.
func (l *Loader) Sources() []string {
	return append([]string(nil), l.applied...)
}

// LoadFile merges a YAML file.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	l.applied = append(l.applied, SourceFile)
	return nil
}

// LoadEnv merges prefixed environment variables.
// ROUTEMESH_AUTH__JWT_SECRET maps to auth.jwt_secret.
func (l *Loader) LoadEnv() error {
	if err := l.k.Load(env.Provider(l.envPrefix, ".", l.envKey), nil); err != nil {
		return err
	}
	l.applied = append(l.applied, SourceEnv)
	return nil
}

func (l *Loader) envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, l.envPrefix))
	return strings.ReplaceAll(name, envLevelSeparator, ".")
}

// LoadMap merges a map whose keys may be dotted paths.
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return err
	}
	l.applied = append(l.applied, SourceOverrides)
	return nil
}

// Unmarshal decodes the merged configuration into target using koanf
// tags.
func (l *Loader) Unmarshal(target any) error {
	return l.k.Unmarshal("", target)
}

// Value returns the merged value at a dotted key.
func (l *Loader) Value(key string) (any, bool) {
	if !l.k.Exists(key) {
		return nil, false
	}
	return l.k.Get(key), true
}
