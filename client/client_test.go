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

package client

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-fleck/qop/protocol"
	"github.com/s-fleck/qop/tasks"
)

// stubDaemon accepts exactly one connection, reads one CommandMessage,
// and replies with resp, mirroring the one-request-one-response contract
// the real daemon implements without pulling in the daemon
// package itself.
func stubDaemon(t *testing.T, resp protocol.StatusMessage) string {
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
		if _, err := protocol.ReadCommand(conn); err != nil {
			return
		}
		_ = protocol.WriteStatus(conn, resp)
	}()

	return ln.Addr().String()
}

func TestIsDaemonActive(t *testing.T) {
	addr := stubDaemon(t, protocol.StatusMessage{Status: protocol.StatusOK})
	c := New(addr)
	assert.True(t, c.IsDaemonActive())
}

func TestIsDaemonActiveUnreachable(t *testing.T) {
	c := New("127.0.0.1:1")
	c.DialTimeout = 0
	assert.False(t, c.IsDaemonActive())
}

func TestGatherFacts(t *testing.T) {
	addr := stubDaemon(t, protocol.StatusMessage{
		Status:       protocol.StatusOK,
		Payload:      map[string]any{"port": float64(9393), "pid": float64(1234)},
		PayloadClass: protocol.PayloadDaemonFacts,
	})
	c := New(addr)
	facts, err := c.GatherFacts(3)
	require.NoError(t, err)
	assert.Equal(t, float64(9393), facts["port"])
}

func TestPutTaskTracksStats(t *testing.T) {
	addr := stubDaemon(t, protocol.StatusMessage{
		Status:       protocol.StatusSkip,
		Payload:      map[string]any{"type": float64(1)},
		PayloadClass: protocol.PayloadTask,
	})
	c := New(addr)
	resp, err := c.PutTask(tasks.Echo{Msg: "hi"})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusSkip, resp.Status)
	assert.Equal(t, Stats{Skip: 1}, c.Stats())
}

func TestActiveProcesses(t *testing.T) {
	addr := stubDaemon(t, protocol.StatusMessage{
		Status:  protocol.StatusOK,
		Payload: map[string]any{"transfer": float64(1), "convert": float64(3)},
	})
	c := New(addr)
	transfer, convert, err := c.ActiveProcesses()
	require.NoError(t, err)
	assert.Equal(t, 1, transfer)
	assert.Equal(t, 3, convert)
}
