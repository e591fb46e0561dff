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

package daemon

import (
	"context"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-fleck/qop/client"
	"github.com/s-fleck/qop/protocol"
)

func startTestDaemon(t *testing.T) (*Daemon, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := Config{
		Port:        port,
		QueuePath:   filepath.Join(t.TempDir(), "qop.db"),
		Persist:     true,
		TransferMax: 1,
		ConvertMax:  1,
	}
	d, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan struct{})
	go func() {
		d.Listen(ctx)
		close(done)
	}()

	addr := "127.0.0.1:" + strconv.Itoa(port)
	require.Eventually(t, func() bool {
		return client.New(addr).IsDaemonActive()
	}, 2*time.Second, 10*time.Millisecond)

	return d, addr
}

func TestDaemonIsActive(t *testing.T) {
	_, addr := startTestDaemon(t)
	c := client.New(addr)
	resp, err := c.Send(protocol.CommandMessage{Command: protocol.CommandDaemonIsActive})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)
}

func TestDaemonQueueProgress(t *testing.T) {
	_, addr := startTestDaemon(t)
	c := client.New(addr)
	m, err := c.GetQueueProgress(1)
	require.NoError(t, err)
	assert.Equal(t, float64(0), m["total"])
}

func TestDaemonPutEcho(t *testing.T) {
	_, addr := startTestDaemon(t)
	c := client.New(addr)

	resp, err := c.Send(protocol.CommandMessage{
		Command: protocol.CommandQueuePut,
		Payload: map[string]any{"type": float64(1), "msg": "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)
}

func TestDaemonStop(t *testing.T) {
	d, addr := startTestDaemon(t)
	c := client.New(addr)

	resp, err := c.Send(protocol.CommandMessage{Command: protocol.CommandDaemonStop})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, resp.Status)

	assert.Eventually(t, func() bool {
		return d.getState() == StateClosed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDaemonFacts(t *testing.T) {
	_, addr := startTestDaemon(t)
	c := client.New(addr)

	facts, err := c.GatherFacts(3)
	require.NoError(t, err)
	assert.Contains(t, facts, "pid")
	assert.Contains(t, facts, "go_version")
}
