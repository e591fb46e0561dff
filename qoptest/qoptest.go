// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package qoptest contains shared testing utilities for qop's packages: a
// temp-file tree builder, a real daemon on a loopback port, and a
// one-response stub server, so that package tests don't each reinvent
// fixtures for the wire protocol.
package qoptest

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/s-fleck/qop/client"
	"github.com/s-fleck/qop/daemon"
	"github.com/s-fleck/qop/protocol"
)

// Tree writes files into a fresh temp directory, one per entry in files,
// where each key is a slash-separated path relative to the tree's root
// and each value is the file's contents. Parent directories are created
// as needed. It returns the root directory.
func Tree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, contents := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}
	return root
}

// DaemonOptions overrides the defaults StartDaemon applies to a
// daemon.Config. Zero values fall back to single-worker, non-persistent
// settings suited to a short-lived test daemon.
type DaemonOptions struct {
	TransferMax int
	ConvertMax  int
	Persist     bool
	JournalPath string
	StagingDir  string
}

// StartDaemon starts a real *daemon.Daemon on a free loopback port and
// blocks until it answers DAEMON_IS_ACTIVE, returning the daemon and its
// address. The daemon and its queue file are cleaned up via t.Cleanup.
func StartDaemon(t *testing.T, opts DaemonOptions) (*daemon.Daemon, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	transferMax := opts.TransferMax
	if transferMax == 0 {
		transferMax = 1
	}
	convertMax := opts.ConvertMax
	if convertMax == 0 {
		convertMax = 1
	}

	cfg := daemon.Config{
		Port:        port,
		QueuePath:   filepath.Join(t.TempDir(), "qop.db"),
		Persist:     opts.Persist,
		TransferMax: transferMax,
		ConvertMax:  convertMax,
		JournalPath: opts.JournalPath,
		StagingDir:  opts.StagingDir,
	}
	d, err := daemon.New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go d.Listen(ctx)

	addr := "127.0.0.1:" + strconv.Itoa(port)
	require.Eventually(t, func() bool {
		return client.New(addr).IsDaemonActive()
	}, 2*time.Second, 10*time.Millisecond)

	return d, addr
}

// StubServer accepts exactly one connection, reads one CommandMessage,
// passes it to handler, and writes back whatever StatusMessage handler
// returns. It's for client-side tests that need to script a single
// response without standing up a real daemon.
func StubServer(t *testing.T, handler func(protocol.CommandMessage) protocol.StatusMessage) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		cmd, err := protocol.ReadCommand(conn)
		if err != nil {
			return
		}
		_ = protocol.WriteStatus(conn, handler(cmd))
	}()

	return ln.Addr().String()
}
