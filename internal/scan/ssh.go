package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// ExecResult is the outcome of one remote command.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// RemoteExecutor runs a single command on a remote address. Defined here,
// where it is consumed; the orchestrator never depends on the concrete
// SSH client.
type RemoteExecutor interface {
	Execute(ctx context.Context, address, command string, timeout time.Duration) (*ExecResult, error)
}

// SSHOptions carries the credentials and connection settings for the SSH
// executor. A private key file takes precedence over a password.
type SSHOptions struct {
	User           string
	Password       string
	PrivateKeyFile string
	Port           int
	ConnectTimeout time.Duration
}

// SSHExecutor implements RemoteExecutor over golang.org/x/crypto/ssh.
type SSHExecutor struct {
	clientConfig *ssh.ClientConfig
	port         int

	// dial defaults to ssh.Dial; overridden in tests.
	dial func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)
}

// NewSSHExecutor builds an executor from options. Credential problems are
// configuration errors and fail construction.
func NewSSHExecutor(opts SSHOptions) (*SSHExecutor, error) {
	if opts.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}

	var auth []ssh.AuthMethod
	switch {
	case opts.PrivateKeyFile != "":
		keyData, err := os.ReadFile(opts.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key %q: %w", opts.PrivateKeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse private key %q: %w", opts.PrivateKeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	case opts.Password != "":
		auth = append(auth, ssh.Password(opts.Password))
	default:
		return nil, fmt.Errorf("ssh needs a password or a private key file")
	}

	port := opts.Port
	if port == 0 {
		port = 22
	}
	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &SSHExecutor{
		clientConfig: &ssh.ClientConfig{
			User:            opts.User,
			Auth:            auth,
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // G106: inventory hosts, host key pinning is a future enhancement
			Timeout:         timeout,
		},
		port: port,
		dial: ssh.Dial,
	}, nil
}

// Execute opens a session, runs command, and returns its output and exit
// code. The context and timeout bound the whole exchange.
func (e *SSHExecutor) Execute(ctx context.Context, address, command string, timeout time.Duration) (*ExecResult, error) {
	addr := net.JoinHostPort(address, strconv.Itoa(e.port))
	client, err := e.dial("tcp", addr, e.clientConfig)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session on %s: %w", addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-runCtx.Done():
		session.Close()
		return nil, fmt.Errorf("run %q on %s: %w", command, addr, runCtx.Err())
	case err = <-done:
	}

	result := &ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return nil, fmt.Errorf("run %q on %s: %w", command, addr, err)
	}
	return result, nil
}
