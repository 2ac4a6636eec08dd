package executor

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
)

// LocalOptions configures the local backend
type LocalOptions struct {
	Timeout time.Duration
	Shell   string // defaults to /bin/sh
}

// Local runs commands on this host
type Local struct {
	opts   LocalOptions
	logger corelog.Logger
}

var _ Backend = (*Local)(nil)

// NewLocal creates a local backend
func NewLocal(opts LocalOptions, logger corelog.Logger) *Local {
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	if logger == nil {
		logger = corelog.Default()
	}
	return &Local{opts: opts, logger: logger.WithField(corelog.FieldBackend, "local")}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Close() error { return nil }

func (l *Local) RunCommand(ctx context.Context, command string) (string, error) {
	ctx, cancel := withTimeout(ctx, l.opts.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, l.opts.Shell, "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	l.logger.Debugf("run: %s", command)
	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	execErr := &coreerrors.ExecutionError{
		Backend:  "local",
		Op:       "run",
		Target:   command,
		ExitCode: -1,
		Stderr:   stderr.String(),
		Cause:    err,
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		execErr.Cause = ctxErr
		return stdout.String(), execErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		execErr.ExitCode = exitErr.ExitCode()
	}
	return stdout.String(), execErr
}

func (l *Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, l.fileError("read", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, l.fileError("read", path, err)
	}
	return data, nil
}

// WriteFile truncates and rewrites the file in place. The inode is kept so the
// proxy's open access-log handle and container bind mounts keep pointing at it.
func (l *Local) WriteFile(ctx context.Context, path string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return l.fileError("write", path, err)
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return l.fileError("write", path, err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return l.fileError("write", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return l.fileError("write", path, err)
	}
	if err := f.Close(); err != nil {
		return l.fileError("write", path, err)
	}
	l.logger.WithField(corelog.FieldPath, path).Debugf("wrote %d bytes", len(content))
	return nil
}

func (l *Local) fileError(op, path string, err error) error {
	return &coreerrors.ExecutionError{Backend: "local", Op: op, Target: path, ExitCode: -1, Cause: err}
}
