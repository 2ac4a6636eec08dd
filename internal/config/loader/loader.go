// Package loader provides multi-source configuration loading
package loader

import (
	"sort"

	"ghostline-core/internal/config/schema"
	"ghostline-core/internal/config/source"
	"ghostline-core/internal/config/validator"
	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
)

// DefaultPrefix is the environment variable prefix
const DefaultPrefix = "GHOSTLINE"

// Loader loads configuration from multiple sources in priority order
type Loader struct {
	sources      []source.Source
	skipValidate bool
}

// NewLoader creates a new Loader
func NewLoader() *Loader {
	return &Loader{}
}

// AddSource adds a configuration source
func (l *Loader) AddSource(s source.Source) {
	l.sources = append(l.sources, s)
}

// Load applies every source in ascending priority and validates the result
func (l *Loader) Load() (*schema.Root, error) {
	if len(l.sources) == 0 {
		return nil, coreerrors.New(coreerrors.CodeInvalidParam, "no configuration sources registered")
	}

	sorted := make([]source.Source, len(l.sources))
	copy(sorted, l.sources)
	sort.Stable(source.ByPriority(sorted))

	cfg := &schema.Root{}
	for _, s := range sorted {
		corelog.Default().Debugf("loading configuration from source: %s (priority %d)", s.Name(), s.Priority())
		if err := s.LoadInto(cfg); err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError,
				"failed to load configuration from source %s", s.Name())
		}
	}

	if !l.skipValidate {
		if result := validator.ValidateConfig(cfg); !result.IsValid() {
			return nil, coreerrors.New(coreerrors.CodeConfigError, result.Error())
		}
	}

	return cfg, nil
}

// LoaderBuilder helps build a Loader with the standard source chain
type LoaderBuilder struct {
	prefix       string
	configFile   string
	appEnv       string
	enableDotEnv bool
	skipValidate bool
}

// NewLoaderBuilder creates a new LoaderBuilder
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{
		prefix:       DefaultPrefix,
		enableDotEnv: true,
	}
}

// WithPrefix sets the environment variable prefix
func (b *LoaderBuilder) WithPrefix(prefix string) *LoaderBuilder {
	b.prefix = prefix
	return b
}

// WithConfigFile sets the configuration file path
func (b *LoaderBuilder) WithConfigFile(path string) *LoaderBuilder {
	b.configFile = path
	return b
}

// WithAppEnv sets the application environment used to pick .env.{env}
func (b *LoaderBuilder) WithAppEnv(env string) *LoaderBuilder {
	b.appEnv = env
	return b
}

// WithDotEnv enables or disables .env file loading
func (b *LoaderBuilder) WithDotEnv(enabled bool) *LoaderBuilder {
	b.enableDotEnv = enabled
	return b
}

// WithSkipValidate disables validation (used by commands that only need part of the config)
func (b *LoaderBuilder) WithSkipValidate(skip bool) *LoaderBuilder {
	b.skipValidate = skip
	return b
}

// Build creates the configured Loader
func (b *LoaderBuilder) Build() *Loader {
	l := NewLoader()
	l.skipValidate = b.skipValidate

	l.AddSource(source.NewDefaultSource())

	configFile := source.FindConfigFile(b.configFile)
	if configFile != "" {
		l.AddSource(source.NewYAMLSource(configFile))
		corelog.Default().Debugf("using config file: %s", configFile)
	}

	if b.enableDotEnv {
		l.AddSource(source.NewDotEnvSource(b.prefix, source.FindDotEnvDirs(configFile), b.appEnv))
	}

	l.AddSource(source.NewEnvSource(b.prefix))
	return l
}

// Load is a convenience function using the standard source chain
func Load(configFile string) (*schema.Root, error) {
	return NewLoaderBuilder().WithConfigFile(configFile).Build().Load()
}
