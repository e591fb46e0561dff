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

// Package client is a blocking, one-shot client for qop's wire protocol:
// open, send one CommandMessage, read one StatusMessage, close.
package client

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/s-fleck/qop/protocol"
	"github.com/s-fleck/qop/tasks"
)

// DefaultDialTimeout bounds how long Client waits to establish the TCP
// connection for a single request.
const DefaultDialTimeout = 2 * time.Second

// Stats tallies the outcomes of every QUEUE_PUT this client has sent,
// mirroring original_source/qop/daemon.py's QopClient.stats counters.
type Stats struct {
	OK   int
	Skip int
	Fail int
}

// Client is a thin, stateless-per-call wrapper around one daemon
// address. It is safe for concurrent use; Stats updates are mutex
// guarded.
type Client struct {
	Addr        string
	DialTimeout time.Duration

	mu    sync.Mutex
	stats Stats
}

// New returns a Client targeting addr (host:port).
func New(addr string) *Client {
	return &Client{Addr: addr, DialTimeout: DefaultDialTimeout}
}

// Stats returns a snapshot of this client's enqueue counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Send performs one request/response round trip: dial, write cmd, read
// and return the daemon's StatusMessage, close.
func (c *Client) Send(cmd protocol.CommandMessage) (protocol.StatusMessage, error) {
	conn, err := net.DialTimeout("tcp", c.Addr, c.DialTimeout)
	if err != nil {
		return protocol.StatusMessage{}, fmt.Errorf("client: dialing %s: %w", c.Addr, err)
	}
	defer conn.Close()

	if err := protocol.WriteCommand(conn, cmd); err != nil {
		return protocol.StatusMessage{}, fmt.Errorf("client: sending command: %w", err)
	}
	resp, err := protocol.ReadStatus(conn)
	if err != nil {
		return protocol.StatusMessage{}, fmt.Errorf("client: reading response: %w", err)
	}
	return resp, nil
}

// IsDaemonActive reports whether a TCP connection to the daemon can be
// established at all.
func (c *Client) IsDaemonActive() bool {
	conn, err := net.DialTimeout("tcp", c.Addr, c.DialTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// GatherFacts requests DAEMON_FACTS, retrying up to maxTries times with
// a 100ms pause between attempts if the daemon is transiently
// unreachable.
func (c *Client) GatherFacts(maxTries int) (map[string]any, error) {
	if maxTries < 1 {
		maxTries = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxTries; attempt++ {
		resp, err := c.Send(protocol.CommandMessage{Command: protocol.CommandDaemonFacts})
		if err == nil {
			facts, ok := asMap(resp.Payload)
			if !ok {
				return nil, fmt.Errorf("client: unexpected DAEMON_FACTS payload shape")
			}
			return facts, nil
		}
		lastErr = err
		if attempt < maxTries-1 {
			time.Sleep(100 * time.Millisecond)
		}
	}
	return nil, lastErr
}

// IsQueueActive requests QUEUE_IS_ACTIVE.
func (c *Client) IsQueueActive() (bool, error) {
	resp, err := c.Send(protocol.CommandMessage{Command: protocol.CommandQueueIsActive})
	if err != nil {
		return false, err
	}
	return boolValue(resp.Payload)
}

// ActiveProcesses requests QUEUE_ACTIVE_PROCESSES, returning the
// transfer and convert worker counts.
func (c *Client) ActiveProcesses() (transfer, convert int, err error) {
	resp, err := c.Send(protocol.CommandMessage{Command: protocol.CommandQueueActiveProc})
	if err != nil {
		return 0, 0, err
	}
	m, ok := asMap(resp.Payload)
	if !ok {
		return 0, 0, fmt.Errorf("client: unexpected QUEUE_ACTIVE_PROCESSES payload shape")
	}
	return intField(m, "transfer"), intField(m, "convert"), nil
}

// GetQueueProgress requests QUEUE_PROGRESS, retrying like GatherFacts.
func (c *Client) GetQueueProgress(maxTries int) (map[string]any, error) {
	if maxTries < 1 {
		maxTries = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxTries; attempt++ {
		resp, err := c.Send(protocol.CommandMessage{Command: protocol.CommandQueueProgress})
		if err == nil {
			m, ok := asMap(resp.Payload)
			if !ok {
				return nil, fmt.Errorf("client: unexpected QUEUE_PROGRESS payload shape")
			}
			return m, nil
		}
		lastErr = err
		if attempt < maxTries-1 {
			time.Sleep(100 * time.Millisecond)
		}
	}
	return nil, lastErr
}

// PutTask enqueues task and updates this client's Stats according to
// the response status.
func (c *Client) PutTask(task tasks.Task) (protocol.StatusMessage, error) {
	body, err := tasks.Marshal(task)
	if err != nil {
		return protocol.StatusMessage{}, fmt.Errorf("client: encoding task: %w", err)
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return protocol.StatusMessage{}, fmt.Errorf("client: re-decoding task: %w", err)
	}

	resp, err := c.Send(protocol.CommandMessage{
		Command: protocol.CommandQueuePut, Payload: payload, PayloadClass: protocol.PayloadTask,
	})
	if err != nil {
		return protocol.StatusMessage{}, err
	}

	c.mu.Lock()
	switch resp.Status {
	case protocol.StatusOK:
		c.stats.OK++
	case protocol.StatusSkip:
		c.stats.Skip++
	case protocol.StatusFail:
		c.stats.Fail++
	}
	c.mu.Unlock()

	return resp, nil
}

func asMap(payload any) (map[string]any, bool) {
	m, ok := payload.(map[string]any)
	return m, ok
}

func boolValue(payload any) (bool, error) {
	m, ok := asMap(payload)
	if !ok {
		return false, fmt.Errorf("client: unexpected payload shape")
	}
	v, _ := m["value"].(bool)
	return v, nil
}

func intField(m map[string]any, key string) int {
	v, ok := m[key].(float64) // json numbers decode to float64
	if !ok {
		return 0
	}
	return int(v)
}
