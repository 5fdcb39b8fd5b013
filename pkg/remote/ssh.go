package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/sfctest/pkg/util"
)

// SSHConfig holds credentials for a testbed host.
type SSHConfig struct {
	User     string
	Password string
	KeyFile  string
	Timeout  time.Duration
}

func (c SSHConfig) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if c.KeyFile != "" {
		pem, err := os.ReadFile(c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", c.KeyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("parse key %s: %w", c.KeyFile, err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if c.Password != "" {
		auth = append(auth, ssh.Password(c.Password))
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("no SSH credentials for user %q", c.User)
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}, nil
}

// Client is an SSH connection to one host.
type Client struct {
	name   string
	addr   string
	user   string
	client *ssh.Client
}

// Dial connects to addr (host or host:port) with cfg.
func Dial(name, addr string, cfg SSHConfig) (*Client, error) {
	cc, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}
	addr = withPort(addr)
	client, err := ssh.Dial("tcp", addr, cc)
	if err != nil {
		return nil, fmt.Errorf("ssh %s: %w", addr, err)
	}
	return &Client{name: name, addr: addr, user: cfg.User, client: client}, nil
}

// DialVia connects to addr through an established jump host connection,
// the way installer-managed nodes are reached from outside the admin network.
func DialVia(jump *Client, name, addr string, cfg SSHConfig) (*Client, error) {
	cc, err := cfg.clientConfig()
	if err != nil {
		return nil, err
	}
	addr = withPort(addr)
	conn, err := jump.client.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ssh %s via %s: %w", addr, jump.addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cc)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh %s via %s: %w", addr, jump.addr, err)
	}
	return &Client{name: name, addr: addr, user: cfg.User, client: ssh.NewClient(c, chans, reqs)}, nil
}

// WaitForSSH polls until an SSH login to addr succeeds and a trivial command
// runs, or until attempts are exhausted.
func WaitForSSH(name, addr string, cfg SSHConfig, attempts int, interval time.Duration) (*Client, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		c, err := Dial(name, addr, cfg)
		if err == nil {
			_, err = c.Run(context.Background(), "echo ready")
			if err == nil {
				return c, nil
			}
			c.Close()
		}
		lastErr = err
		util.WithNode(name).Debugf("ssh attempt %d/%d: %v", i+1, attempts, err)
		if i < attempts-1 {
			time.Sleep(interval)
		}
	}
	return nil, fmt.Errorf("ssh %s: %w (last error: %v)", addr, &util.UnreachableError{Target: addr, Attempts: attempts}, lastErr)
}

// Name returns the host name given at dial time.
func (c *Client) Name() string { return c.name }

// Addr returns host:port.
func (c *Client) Addr() string { return c.addr }

// User returns the login user.
func (c *Client) User() string { return c.user }

// Run executes cmd in a new session. Cancelling ctx kills the session.
func (c *Client) Run(ctx context.Context, cmd string) (*Result, error) {
	session, err := c.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("ssh session %s: %w", c.addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("ssh %s: %q: %w", c.addr, cmd, ctx.Err())
	case err = <-done:
	}

	res := &Result{Command: cmd, Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitStatus = exitErr.ExitStatus()
			return res, &ExitError{Command: cmd, Status: res.ExitStatus, Stderr: res.Stderr}
		}
		return nil, fmt.Errorf("ssh %s: %q: %w", c.addr, cmd, err)
	}
	return res, nil
}

// ReadFile returns the content of a remote file.
func (c *Client) ReadFile(ctx context.Context, path string) ([]byte, error) {
	res, err := c.Run(ctx, util.Sudo(c.user, "cat "+util.SingleQuote(path)))
	if err != nil {
		return nil, err
	}
	return []byte(res.Stdout), nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.client.Close()
}

func withPort(addr string) string {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr
	}
	return net.JoinHostPort(addr, "22")
}
