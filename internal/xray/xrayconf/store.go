package xrayconf

import (
	"context"

	"ghostline-core/internal/executor"
	corelog "ghostline-core/internal/core/log"
)

// Store reads and writes the proxy configuration file through an executor backend
type Store struct {
	backend executor.Backend
	path    string
	logger  corelog.Logger
}

// NewStore creates a Store for the file at path
func NewStore(backend executor.Backend, path string, logger corelog.Logger) *Store {
	if logger == nil {
		logger = corelog.Default()
	}
	return &Store{
		backend: backend,
		path:    path,
		logger:  logger.WithFields(corelog.Fields{corelog.FieldComponent: "xrayconf", corelog.FieldPath: path}),
	}
}

// Path returns the configuration file path
func (s *Store) Path() string {
	return s.path
}

// Read fetches and parses the configuration
func (s *Store) Read(ctx context.Context) (*ProxyConfig, error) {
	data, err := s.backend.ReadFile(ctx, s.path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(s.path, data)
	if err != nil {
		s.logger.WithError(err).Errorf("proxy config is corrupt")
		return nil, err
	}
	return cfg, nil
}

// Write serializes and replaces the configuration
func (s *Store) Write(ctx context.Context, cfg *ProxyConfig) error {
	data, err := cfg.Encode()
	if err != nil {
		return err
	}
	return s.backend.WriteFile(ctx, s.path, data)
}
