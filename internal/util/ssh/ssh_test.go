/*
Copyright 2024 Alexandre Mahdhaoui

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

//go:build unit

package ssh_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	internalssh "github.com/alexandremahdhaoui/vboxctl/internal/util/ssh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// writeKey generates an ed25519 key, writes it in OpenSSH format and returns
// its path and public key.
func writeKey(t *testing.T) (string, ssh.PublicKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "test@vboxctl")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	return path, sshPub
}

// startServer starts an SSH server on a random local port. It answers exec
// requests by echoing the command line, or by failing when it contains
// "fail".
func startServer(t *testing.T, authorized ssh.PublicKey) int {
	t.Helper()

	_, hostKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	hostSigner, err := ssh.NewSignerFromKey(hostKey)
	require.NoError(t, err)

	config := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), authorized.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unauthorized key")
		},
	}
	config.AddHostKey(hostSigner)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, config)
		}
	}()

	return l.Addr().(*net.TCPAddr).Port
}

func serveConn(conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()

	_, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}

		ch, chReqs, err := newCh.Accept()
		if err != nil {
			return
		}

		go func() {
			defer ch.Close()

			for req := range chReqs {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}

				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				status := uint32(0)
				if strings.Contains(payload.Command, "fail") {
					_, _ = fmt.Fprint(ch.Stderr(), "boom")
					status = 1
				} else {
					_, _ = fmt.Fprint(ch, payload.Command)
				}

				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				return
			}
		}()
	}
}

func TestNewClient(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		keyPath, _ := writeKey(t)

		client, err := internalssh.NewClient("127.0.0.1", 2222, "vagrant", keyPath)
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1", client.Host)
		assert.Equal(t, 2222, client.Port)
		assert.Equal(t, "vagrant", client.User)
	})

	t.Run("FileNotFound", func(t *testing.T) {
		client, err := internalssh.NewClient("127.0.0.1", 22, "vagrant", "/nonexistent/path/id_rsa")
		assert.ErrorIs(t, err, internalssh.ErrReadPrivateKey)
		assert.Nil(t, client)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "id_rsa")
		require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))

		_, err := internalssh.NewClient("127.0.0.1", 22, "vagrant", path)
		assert.ErrorIs(t, err, internalssh.ErrParsePrivateKey)
	})

	t.Run("KnownHostsNotFound", func(t *testing.T) {
		keyPath, _ := writeKey(t)

		_, err := internalssh.NewClient("127.0.0.1", 22, "vagrant", keyPath,
			internalssh.WithKnownHosts("/nonexistent/known_hosts"))
		assert.ErrorIs(t, err, internalssh.ErrKnownHosts)
	})
}

func TestClient_Run(t *testing.T) {
	ctx := context.Background()
	keyPath, pub := writeKey(t)
	port := startServer(t, pub)

	t.Run("Success", func(t *testing.T) {
		client, err := internalssh.NewClient("127.0.0.1", port, "vagrant", keyPath)
		require.NoError(t, err)

		stdout, stderr, err := client.Run(ctx, "uname", "-a")
		require.NoError(t, err)
		assert.Equal(t, `"uname" "-a"`, stdout)
		assert.Empty(t, stderr)
	})

	t.Run("RemoteFailure", func(t *testing.T) {
		client, err := internalssh.NewClient("127.0.0.1", port, "vagrant", keyPath)
		require.NoError(t, err)

		_, stderr, err := client.Run(ctx, "fail")
		assert.ErrorIs(t, err, internalssh.ErrRemoteCommand)
		assert.Equal(t, "boom", stderr)

		var exitErr *ssh.ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, 1, exitErr.ExitStatus())
	})

	t.Run("Unauthorized", func(t *testing.T) {
		otherKey, _ := writeKey(t)
		client, err := internalssh.NewClient("127.0.0.1", port, "vagrant", otherKey)
		require.NoError(t, err)

		_, _, err = client.Run(ctx, "true")
		assert.ErrorIs(t, err, internalssh.ErrConnect)
	})
}

func TestClient_AwaitServer(t *testing.T) {
	keyPath, pub := writeKey(t)

	t.Run("Available", func(t *testing.T) {
		port := startServer(t, pub)
		client, err := internalssh.NewClient("127.0.0.1", port, "vagrant", keyPath)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		assert.NoError(t, client.AwaitServer(ctx, 50*time.Millisecond))
	})

	t.Run("Timeout", func(t *testing.T) {
		// reserve a port with nothing listening on it
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := l.Addr().(*net.TCPAddr).Port
		require.NoError(t, l.Close())

		client, err := internalssh.NewClient("127.0.0.1", port, "vagrant", keyPath)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()

		err = client.AwaitServer(ctx, 50*time.Millisecond)
		assert.ErrorIs(t, err, internalssh.ErrAwaitServer)
	})
}
