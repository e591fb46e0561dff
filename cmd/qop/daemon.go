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

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/s-fleck/qop/client"
	"github.com/s-fleck/qop/protocol"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Control the qopd background process",
}

func init() {
	daemonCmd.AddCommand(daemonRestartCmd, daemonStopCmd, daemonIsActiveCmd, daemonDestroyCmd, daemonFactsCmd)
	rootCmd.AddCommand(daemonCmd)
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if !c.IsDaemonActive() {
			fmt.Println("SKIP [daemon is not active]")
			return nil
		}
		resp, err := c.Send(protocol.CommandMessage{Command: protocol.CommandDaemonStop})
		if err != nil {
			return fmt.Errorf("qop: stopping daemon: %w", err)
		}
		fmt.Println(formatResponse(resp))
		return nil
	},
}

var daemonDestroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Flush the queue and stop the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if _, err := c.Send(protocol.CommandMessage{Command: protocol.CommandQueueFlushAll}); err != nil {
			return fmt.Errorf("qop: flushing queue: %w", err)
		}
		resp, err := c.Send(protocol.CommandMessage{Command: protocol.CommandDaemonStop})
		if err != nil {
			return fmt.Errorf("qop: stopping daemon: %w", err)
		}
		fmt.Println(formatResponse(resp))
		return nil
	},
}

var daemonIsActiveCmd = &cobra.Command{
	Use:   "is-active",
	Short: "Report whether the daemon is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		active := newClient().IsDaemonActive()
		fmt.Println(active)
		if !active {
			os.Exit(1)
		}
		return nil
	},
}

var daemonFactsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Print the daemon's DAEMON_FACTS payload",
	RunE: func(cmd *cobra.Command, args []string) error {
		facts, err := newClient().GatherFacts(1)
		if err != nil {
			return fmt.Errorf("qop: gathering daemon facts: %w", err)
		}
		data, _ := json.MarshalIndent(facts, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}

var daemonRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Stop the daemon if running, then start a fresh one",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		wasActive := c.IsDaemonActive()

		if wasActive {
			if _, err := c.Send(protocol.CommandMessage{Command: protocol.CommandDaemonStop}); err != nil {
				return fmt.Errorf("qop: stopping daemon: %w", err)
			}
			if err := waitForDaemon(c, 10*time.Second, false); err != nil {
				return err
			}
		}

		if err := spawnDaemon(); err != nil {
			return fmt.Errorf("qop: starting daemon: %w", err)
		}
		if err := waitForDaemon(c, 10*time.Second, true); err != nil {
			return fmt.Errorf("qop: daemon did not come back up: %w", err)
		}

		fmt.Println("OK [daemon restarted]")
		return nil
	},
}

// spawnDaemon launches qopd as a detached background process, the way
// original_source/qop/cli.py's handle_daemon_start shells out to qopd.py.
func spawnDaemon() error {
	bin, err := exec.LookPath("qopd")
	if err != nil {
		return fmt.Errorf("qopd not found on PATH: %w", err)
	}
	cmd := exec.Command(bin)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Stdin = nil
	return cmd.Start()
}

// waitForDaemon polls until the daemon reaches the desired active state or
// timeout elapses.
func waitForDaemon(c *client.Client, timeout time.Duration, wantActive bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsDaemonActive() == wantActive {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timed out waiting for daemon")
}
