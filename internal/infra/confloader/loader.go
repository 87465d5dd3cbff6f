package confloader

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "SOCKHTTP_"

// Loader loads configuration from defaults, a YAML file and the
// environment, in increasing priority.
type Loader struct {
	k         *koanf.Koanf
	envPrefix string
	filePath  string
	defaults  any
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		l.envPrefix = prefix
	}
}

// WithConfigFile sets the configuration file path.
func WithConfigFile(path string) Option {
	return func(l *Loader) {
		l.filePath = path
	}
}

// WithDefaults sets the lowest priority source. v is marshalled with
// yaml.v3, so its yaml tags must match its koanf tags.
func WithDefaults(v any) Option {
	return func(l *Loader) {
		l.defaults = v
	}
}

// NewLoader creates a configuration loader.
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

// FilePath returns the configuration file, if any.
func (l *Loader) FilePath() string {
	return l.filePath
}

// Load reads every source from scratch and unmarshals into target, so it
// can be called again to reload.
func (l *Loader) Load(target any) error {
	l.k = koanf.New(".")

	if l.defaults != nil {
		if err := l.LoadDefaults(l.defaults); err != nil {
			return err
		}
	}
	if err := l.LoadFile(l.filePath); err != nil {
		return fmt.Errorf("load config file: %w", err)
	}
	if err := l.LoadEnv(); err != nil {
		return err
	}
	if err := l.Unmarshal(target); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

// LoadDefaults loads v, marshalled as YAML.
func (l *Loader) LoadDefaults(v any) error {
	b, err := yamlv3.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	if err := l.k.Load(bytesProvider(b), yaml.Parser()); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}
	return nil
}

// LoadFile loads a YAML file. An empty path is ignored.
func (l *Loader) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if err := l.k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("load file %s: %w", path, err)
	}
	return nil
}

// LoadEnv loads variables starting with the env prefix.
//
// SOCKHTTP_LISTENER_CERT_DIR resolves to listener.cert_dir when that key is
// already known from the defaults or the file; unknown names map every
// underscore to a dot.
func (l *Loader) LoadEnv() error {
	known := make(map[string]string)
	for _, key := range l.k.Keys() {
		known[strings.ReplaceAll(key, ".", "_")] = key
	}

	transform := func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, l.envPrefix))
		if key, ok := known[s]; ok {
			return key
		}
		return strings.ReplaceAll(s, "_", ".")
	}

	if err := l.k.Load(env.Provider(l.envPrefix, ".", transform), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// LoadMap loads flat or nested values, e.g. from command-line flags.
func (l *Loader) LoadMap(data map[string]any) error {
	if err := l.k.Load(mapProvider(data), nil); err != nil {
		return fmt.Errorf("load map: %w", err)
	}
	return nil
}

// Unmarshal unmarshals the loaded configuration into target using koanf tags.
func (l *Loader) Unmarshal(target any) error {
	return l.k.Unmarshal("", target)
}

// String returns a string value by key.
func (l *Loader) String(key string) string {
	return l.k.String(key)
}

// All returns the merged configuration as a flat map.
func (l *Loader) All() map[string]any {
	return l.k.All()
}
