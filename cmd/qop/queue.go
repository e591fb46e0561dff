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

	"github.com/spf13/cobra"

	"github.com/s-fleck/qop/protocol"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Control and inspect the daemon's task queue",
}

func init() {
	queueCmd.AddCommand(
		simpleQueueCmd("start", protocol.CommandQueueStart, "Start draining the queue"),
		simpleQueueCmd("stop", protocol.CommandQueueStop, "Stop every worker and reset ACTIVE rows to PENDING"),
		simpleQueueCmd("flush", protocol.CommandQueueFlushAll, "Remove every row from the queue"),
		simpleQueueCmd("flush-pending", protocol.CommandQueueFlushPending, "Remove only PENDING rows from the queue"),
		simpleQueueCmd("active", protocol.CommandQueueActiveProc, "Show the live transfer/convert worker counts"),
		simpleQueueCmd("is-active", protocol.CommandQueueIsActive, "Report whether any worker is currently running"),
		simpleQueueCmd("show", protocol.CommandQueueShow, "List every ACTIVE record"),
		queueProgressCmd,
	)
	rootCmd.AddCommand(queueCmd)
}

func simpleQueueCmd(use string, command protocol.Command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := newClient().Send(protocol.CommandMessage{Command: command})
			if err != nil {
				return fmt.Errorf("qop: %s: %w", use, err)
			}
			printPayload(resp)
			fmt.Println(formatResponse(resp))
			os.Exit(exitStatus(resp))
			return nil
		},
	}
}

var queueProgressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Print the current pending/active/ok/skip/fail tallies once",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newClient().GetQueueProgress(1)
		if err != nil {
			return fmt.Errorf("qop: queue progress: %w", err)
		}
		data, _ := json.MarshalIndent(p, "", "  ")
		fmt.Println(string(data))
		return nil
	},
}

func printPayload(resp protocol.StatusMessage) {
	if resp.Payload == nil {
		return
	}
	switch resp.PayloadClass {
	case protocol.PayloadValue:
		if m, ok := resp.Payload.(map[string]any); ok {
			fmt.Println(m["value"])
		}
	case protocol.PayloadTaskList:
		data, _ := json.MarshalIndent(resp.Payload, "", "  ")
		fmt.Println(string(data))
	default:
		data, _ := json.MarshalIndent(resp.Payload, "", "  ")
		fmt.Println(string(data))
	}
}
