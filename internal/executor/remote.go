package executor

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	coreerrors "ghostline-core/internal/core/errors"
	corelog "ghostline-core/internal/core/log"
)

// RemoteOptions configures the SSH backend
type RemoteOptions struct {
	Host          string
	Port          int
	User          string
	KeyPath       string
	KeyPassphrase string
	Signer        ssh.Signer // overrides KeyPath when set
	KnownHosts    string
	UseSudo       bool
	DialTimeout   time.Duration
	Timeout       time.Duration
}

// Remote runs commands over a persistent SSH connection. The connection is
// dialed lazily and re-dialed after a transport failure.
type Remote struct {
	opts    RemoteOptions
	addr    string
	sshConf *ssh.ClientConfig
	logger  corelog.Logger

	mu     sync.Mutex
	client *ssh.Client
	closed bool
}

var _ Backend = (*Remote)(nil)

// NewRemote validates options and prepares the SSH client configuration
func NewRemote(opts RemoteOptions, logger corelog.Logger) (*Remote, error) {
	if opts.Host == "" {
		return nil, coreerrors.New(coreerrors.CodeConfigError, "remote host is required")
	}
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = corelog.Default()
	}
	logger = logger.WithFields(corelog.Fields{corelog.FieldBackend: "remote", "host": opts.Host})

	signer := opts.Signer
	if signer == nil {
		var err error
		signer, err = loadSigner(opts.KeyPath, opts.KeyPassphrase)
		if err != nil {
			return nil, err
		}
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if opts.KnownHosts != "" {
		cb, err := knownhosts.New(opts.KnownHosts)
		if err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError, "failed to load known_hosts %s", opts.KnownHosts)
		}
		hostKeyCallback = cb
	} else {
		logger.Warnf("known_hosts not configured, remote host key is not verified")
	}

	return &Remote{
		opts: opts,
		addr: net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)),
		sshConf: &ssh.ClientConfig{
			User:            opts.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         opts.DialTimeout,
		},
		logger: logger,
	}, nil
}

func loadSigner(path, passphrase string) (ssh.Signer, error) {
	if path == "" {
		return nil, coreerrors.New(coreerrors.CodeConfigError, "remote key_path is required")
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError, "failed to read private key %s", path)
	}
	var signer ssh.Signer
	if passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey(pem)
	}
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError, "failed to parse private key %s", path)
	}
	return signer, nil
}

func (r *Remote) Name() string { return "remote" }

// Close closes the SSH connection; later calls fail with SERVICE_CLOSED
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.client == nil {
		return nil
	}
	err := r.client.Close()
	r.client = nil
	return err
}

func (r *Remote) RunCommand(ctx context.Context, cmd string) (string, error) {
	out, err := r.exec(ctx, "run", cmd, cmd, nil)
	return string(out), err
}

func (r *Remote) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return r.exec(ctx, "read", path, r.sudo()+"cat "+shellQuote(path), nil)
}

// WriteFile streams base64 on stdin and decodes it on the remote side, so the
// payload never passes through shell quoting
func (r *Remote) WriteFile(ctx context.Context, path string, content []byte) error {
	cmd := fmt.Sprintf("base64 -d | %stee %s > /dev/null", r.sudo(), shellQuote(path))
	payload := base64.StdEncoding.EncodeToString(content)
	_, err := r.exec(ctx, "write", path, cmd, strings.NewReader(payload))
	return err
}

func (r *Remote) sudo() string {
	if r.opts.UseSudo {
		return "sudo -n "
	}
	return ""
}

func (r *Remote) exec(ctx context.Context, op, target, cmd string, stdin io.Reader) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, r.opts.Timeout)
	defer cancel()

	execErr := func(cause error, exitCode int, stderr string) error {
		return &coreerrors.ExecutionError{
			Backend:  "remote",
			Op:       op,
			Target:   target,
			ExitCode: exitCode,
			Stderr:   stderr,
			Cause:    cause,
		}
	}

	session, err := r.newSession(ctx)
	if err != nil {
		return nil, execErr(err, -1, "")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != nil {
		session.Stdin = stdin
	}

	r.logger.WithField(corelog.FieldOp, op).Debugf("exec: %s", cmd)

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return nil, execErr(ctx.Err(), -1, "")
	case err := <-done:
		if err == nil {
			if stderr.Len() > 0 {
				r.logger.Debugf("stderr on success: %s", strings.TrimSpace(stderr.String()))
			}
			return stdout.Bytes(), nil
		}
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), execErr(err, exitErr.ExitStatus(), stderr.String())
		}
		// 传输层错误：丢弃连接，下次调用重新拨号
		r.dropClient()
		return nil, execErr(err, -1, stderr.String())
	}
}

// newSession opens a session, re-dialing once if the cached connection is dead
func (r *Remote) newSession(ctx context.Context) (*ssh.Session, error) {
	for attempt := 0; attempt < 2; attempt++ {
		client, err := r.getClient(ctx)
		if err != nil {
			return nil, err
		}
		session, err := client.NewSession()
		if err == nil {
			return session, nil
		}
		r.logger.WithError(err).Warnf("ssh session failed, reconnecting")
		r.dropClient()
	}
	return nil, coreerrors.New(coreerrors.CodeNetworkError, "unable to open ssh session")
}

func (r *Remote) getClient(ctx context.Context) (*ssh.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, coreerrors.ErrServiceClosed
	}
	if r.client != nil {
		return r.client, nil
	}

	dialer := net.Dialer{Timeout: r.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeNetworkError, "dial %s", r.addr)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, r.addr, r.sshConf)
	if err != nil {
		_ = conn.Close()
		return nil, coreerrors.Wrapf(err, coreerrors.CodeNetworkError, "ssh handshake with %s", r.addr)
	}
	_ = conn.SetDeadline(time.Time{})

	r.client = ssh.NewClient(c, chans, reqs)
	r.logger.Infof("ssh connected to %s as %s", r.addr, r.opts.User)
	return r.client, nil
}

func (r *Remote) dropClient() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		_ = r.client.Close()
		r.client = nil
	}
}
