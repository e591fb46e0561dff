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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Poll the daemon and print queue progress until it drains",
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchProgress()
	},
}

func init() {
	rootCmd.AddCommand(progressCmd)
}

// watchProgress polls DAEMON_FACTS every 100ms, mirroring
// original_source/qop/cli.py's handle_queue_progress (minus the tqdm bars,
// which have no equivalent dependency in this module's stack).
func watchProgress() error {
	c := newClient()

	facts, err := c.GatherFacts(1)
	if err != nil {
		return fmt.Errorf("qop: gathering daemon facts: %w", err)
	}
	taskFacts, _ := facts["tasks"].(map[string]any)
	if total, _ := taskFacts["total"].(float64); total == 0 {
		fmt.Println("queue is empty")
		return nil
	}

	for {
		time.Sleep(100 * time.Millisecond)

		facts, err = c.GatherFacts(1)
		if err != nil {
			continue
		}
		taskFacts, _ = facts["tasks"].(map[string]any)
		procFacts, _ := facts["processes"].(map[string]any)

		total, _ := taskFacts["total"].(float64)
		pending, _ := taskFacts["pending"].(float64)
		transfer, _ := procFacts["transfer"].(float64)
		convert, _ := procFacts["convert"].(float64)

		fmt.Printf("\r%.0f/%.0f done | transfer: %.0f | convert: %.0f     ", total-pending, total, transfer, convert)

		if !c.IsDaemonActive() || transfer+convert < 1 {
			break
		}
	}
	fmt.Println()

	taskFacts, _ = facts["tasks"].(map[string]any)
	total, _ := taskFacts["total"].(float64)
	ok, _ := taskFacts["ok"].(float64)
	skip, _ := taskFacts["skip"].(float64)
	if total == ok+skip {
		fmt.Println("all files transferred successfully")
		return nil
	}
	fmt.Println("could not transfer all files")
	os.Exit(1)
	return nil
}
