// Copyright 2024 Alexandre Mahdhaoui
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/alexandremahdhaoui/vboxctl/pkg/execcontext"
	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const defaultDialTimeout = 10 * time.Second

var (
	ErrReadPrivateKey  = errors.New("unable to read private key")
	ErrParsePrivateKey = errors.New("unable to parse private key")
	ErrKnownHosts      = errors.New("unable to load known_hosts")
	ErrConnect         = errors.New("unable to connect")
	ErrRemoteCommand   = errors.New("remote command failed")
	ErrAwaitServer     = errors.New("timed out waiting for SSH server")
)

var _ Runner = (*Client)(nil)

// Client implements the Runner interface for real SSH connections.
type Client struct {
	Host string
	Port int
	User string

	signer          ssh.Signer
	hostKeyCallback ssh.HostKeyCallback
	dialTimeout     time.Duration
	logger          logr.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithKnownHosts verifies host keys against the known_hosts file at path.
// Without it host keys are not verified.
func WithKnownHosts(path string) Option {
	return func(c *Client) error {
		cb, err := knownhosts.New(path)
		if err != nil {
			return errors.Join(err, ErrKnownHosts)
		}
		c.hostKeyCallback = cb
		return nil
	}
}

// WithDialTimeout bounds the TCP connection and the SSH handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.dialTimeout = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger logr.Logger) Option {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// NewClient creates a new SSH client authenticating with the private key at
// privateKeyPath.
func NewClient(host string, port int, user, privateKeyPath string, opts ...Option) (*Client, error) {
	key, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadPrivateKey, err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParsePrivateKey, err)
	}

	c := &Client{
		Host:            host,
		Port:            port,
		User:            user,
		signer:          signer,
		hostKeyCallback: ssh.InsecureIgnoreHostKey(), // guests are reached through a local forwarded port
		dialTimeout:     defaultDialTimeout,
		logger:          logr.Discard(),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Client) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Client) dial(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback: c.hostKeyCallback,
		Timeout:         c.dialTimeout,
	}

	addr := c.addr()
	dialer := &net.Dialer{Timeout: c.dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w to %s: %w", ErrConnect, addr, err)
	}

	if c.dialTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.dialTimeout))
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w to %s: %w", ErrConnect, addr, err)
	}

	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Run executes cmd on the remote host. The arguments are quoted and joined
// into a single shell command line.
func (c *Client) Run(ctx context.Context, cmd ...string) (stdout, stderr string, err error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return "", "", err
	}
	defer c.runFuncAndLogErr(conn.Close)

	// closing the connection unblocks session.Run on cancellation
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	session, err := conn.NewSession()
	if err != nil {
		return "", "", fmt.Errorf("unable to create SSH session: %w", err)
	}
	defer c.runFuncAndLogErr(session.Close)

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	line := execcontext.FormatCmd(execcontext.Empty(), cmd...)
	c.logger.V(1).Info("running remote command", "addr", c.addr(), "cmd", line)

	if err := session.Run(line); err != nil {
		return stdoutBuf.String(), stderrBuf.String(), fmt.Errorf("%w: %w", ErrRemoteCommand, err)
	}

	return stdoutBuf.String(), stderrBuf.String(), nil
}

// AwaitServer dials the SSH server every interval until the handshake
// succeeds or ctx is done.
func (c *Client) AwaitServer(ctx context.Context, interval time.Duration) error {
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		conn, err := c.dial(ctx)
		if err == nil {
			_ = conn.Close()
			return nil // SSH server is available
		}

		c.logger.V(1).Info("ssh server not ready", "addr", c.addr(), "err", err.Error())

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w at %s: %w", ErrAwaitServer, c.addr(), err)
		case <-tick.C:
		}
	}
}

func (c *Client) runFuncAndLogErr(f func() error) {
	if err := f(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.V(1).Info("error closing ssh session or connection", "err", err.Error())
	}
}
