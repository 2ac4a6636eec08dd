package executor

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostline-core/internal/config/schema"
	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
	"ghostline-core/internal/core/metrics"
)

func TestLocal_RunCommand(t *testing.T) {
	l := NewLocal(LocalOptions{Timeout: 5 * time.Second}, corelog.NewTestLogger(t))

	out, err := l.RunCommand(context.Background(), "echo hello && echo oops >&2")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestLocal_RunCommand_NonZeroExit(t *testing.T) {
	l := NewLocal(LocalOptions{Timeout: 5 * time.Second}, corelog.NewTestLogger(t))

	_, err := l.RunCommand(context.Background(), "echo 'no such container' >&2; exit 3")
	require.Error(t, err)

	var execErr *coreerrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 3, execErr.ExitCode)
	assert.Equal(t, "local", execErr.Backend)
	assert.Contains(t, execErr.Stderr, "no such container")
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeExecutionFailed))
}

func TestLocal_RunCommand_Timeout(t *testing.T) {
	l := NewLocal(LocalOptions{Timeout: 100 * time.Millisecond}, corelog.NewTestLogger(t))

	start := time.Now()
	_, err := l.RunCommand(context.Background(), "sleep 5")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeExecutionFailed))
}

func TestLocal_ReadWriteFile(t *testing.T) {
	l := NewLocal(LocalOptions{}, corelog.NewTestLogger(t))
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("old content that is longer"), 0o600))

	// keep a handle open like the proxy does on its access log
	held, err := os.Open(path)
	require.NoError(t, err)
	defer held.Close()
	before, err := held.Stat()
	require.NoError(t, err)

	require.NoError(t, l.WriteFile(context.Background(), path, []byte(`{"a":1}`)))

	data, err := l.ReadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after), "write must keep the inode")
	assert.Equal(t, os.FileMode(0o600), after.Mode().Perm())
}

func TestLocal_ReadFile_Missing(t *testing.T) {
	l := NewLocal(LocalOptions{}, nil)
	_, err := l.ReadFile(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestNew_SelectsBackend(t *testing.T) {
	m := metrics.NewMemoryMetrics()
	b, err := New(schema.ExecutorConfig{Mode: schema.ExecutorModeLocal, CommandTimeout: time.Second}, nil, m)
	require.NoError(t, err)
	assert.Equal(t, "local", b.Name())

	_, err = b.RunCommand(context.Background(), "true")
	require.NoError(t, err)
	n, _ := m.GetCounter(metrics.ExecutorCommands, metrics.Labels("backend", "local", "op", "run", "result", "ok"))
	assert.Equal(t, 1.0, n)

	_, err = New(schema.ExecutorConfig{Mode: "carrier-pigeon"}, nil, nil)
	assert.True(t, coreerrors.IsCode(err, coreerrors.CodeConfigError))

	_, err = New(schema.ExecutorConfig{Mode: schema.ExecutorModeRemote}, nil, nil)
	assert.Error(t, err, "remote mode without host")
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'/etc/xray/config.json'`, shellQuote("/etc/xray/config.json"))
	assert.Equal(t, `'it'"'"'s'`, shellQuote("it's"))
}
