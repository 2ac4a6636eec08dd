// Package executor runs shell commands and file operations against the host
// that carries the proxy, either locally or over SSH.
//
// The backend is chosen once at start-up; callers only see Backend.
package executor

import (
	"context"
	"strings"
	"time"

	"ghostline-core/internal/config/schema"
	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/metrics"
)

// Backend executes commands and file I/O on the proxy host
type Backend interface {
	// RunCommand runs cmd through a POSIX shell and returns its stdout
	RunCommand(ctx context.Context, cmd string) (string, error)
	// ReadFile returns the full file content
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// WriteFile replaces the file content in place
	WriteFile(ctx context.Context, path string, content []byte) error
	// Name identifies the backend in logs ("local" / "remote")
	Name() string
	Close() error
}

// DefaultTimeout bounds a single command when no timeout is configured
const DefaultTimeout = 30 * time.Second

// New selects the backend from configuration
func New(cfg schema.ExecutorConfig, logger corelog.Logger, m metrics.Metrics) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.Mode {
	case schema.ExecutorModeLocal, "":
		b = NewLocal(LocalOptions{Timeout: cfg.CommandTimeout}, logger)
	case schema.ExecutorModeRemote:
		b, err = NewRemote(RemoteOptions{
			Host:          cfg.Remote.Host,
			Port:          cfg.Remote.Port,
			User:          cfg.Remote.User,
			KeyPath:       cfg.Remote.KeyPath,
			KeyPassphrase: cfg.Remote.KeyPassphrase.Value(),
			KnownHosts:    cfg.Remote.KnownHosts,
			UseSudo:       cfg.Remote.UseSudo,
			DialTimeout:   cfg.Remote.DialTimeout,
			Timeout:       cfg.CommandTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
	default:
		return nil, coreerrors.Newf(coreerrors.CodeConfigError, "unknown executor mode %q", cfg.Mode)
	}

	if m != nil {
		b = Instrument(b, m)
	}
	return b, nil
}

// shellQuote wraps s in single quotes for POSIX shells
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = DefaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
