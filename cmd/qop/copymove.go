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

	"github.com/spf13/cobra"

	"github.com/s-fleck/qop/protocol"
	"github.com/s-fleck/qop/tasks"
)

var (
	copyInclude     []string
	copyExclude     []string
	copyEnqueueOnly bool
	copyVerbose     bool
)

var copyCmd = &cobra.Command{
	Use:   "copy SOURCE... DESTINATION",
	Short: "Copy files or directory trees into DESTINATION",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCopyMove("copy", args, copyInclude, copyExclude, copyEnqueueOnly, copyVerbose)
	},
}

var (
	moveInclude     []string
	moveExclude     []string
	moveEnqueueOnly bool
	moveVerbose     bool
)

var moveCmd = &cobra.Command{
	Use:   "move SOURCE... DESTINATION",
	Short: "Move files or directory trees into DESTINATION",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCopyMove("move", args, moveInclude, moveExclude, moveEnqueueOnly, moveVerbose)
	},
}

func init() {
	copyCmd.Flags().StringSliceVar(&copyInclude, "include", nil, "only enqueue files with these extensions")
	copyCmd.Flags().StringSliceVar(&copyExclude, "exclude", nil, "skip files with these extensions")
	copyCmd.Flags().BoolVar(&copyEnqueueOnly, "enqueue-only", false, "enqueue tasks without starting the worker pools")
	copyCmd.Flags().BoolVarP(&copyVerbose, "verbose", "v", false, "print every enqueue response")

	moveCmd.Flags().StringSliceVar(&moveInclude, "include", nil, "only enqueue files with these extensions")
	moveCmd.Flags().StringSliceVar(&moveExclude, "exclude", nil, "skip files with these extensions")
	moveCmd.Flags().BoolVar(&moveEnqueueOnly, "enqueue-only", false, "enqueue tasks without starting the worker pools")
	moveCmd.Flags().BoolVarP(&moveVerbose, "verbose", "v", false, "print every enqueue response")

	rootCmd.AddCommand(copyCmd, moveCmd)
}

// runCopyMove enqueues a Copy or Move task for every file discovered
// under paths[:len(paths)-1], landing each under paths[len(paths)-1],
// mirroring original_source/qop/cli.py's handle_copy_move.
func runCopyMove(mode string, paths []string, include, exclude []string, enqueueOnly, verbose bool) error {
	sources := paths[:len(paths)-1]
	dstDir := paths[len(paths)-1]

	if err := saveLastArgs(lastArgs{
		Mode: mode, Paths: paths, Include: include, Exclude: exclude, EnqueueOnly: enqueueOnly,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "qop: warning: could not cache arguments for `qop re`: %s\n", err)
	}

	files, err := scan(sources, include, exclude)
	if err != nil {
		return err
	}

	c := newClient()
	active, err := c.IsQueueActive()
	if err != nil {
		return fmt.Errorf("qop: checking queue state: %w", err)
	}

	for _, f := range files {
		dst, err := destPath(f, dstDir)
		if err != nil {
			return err
		}

		var task tasks.Task
		if mode == "move" {
			task = tasks.Move{Src: f.Path, Dst: dst}
		} else {
			task = tasks.Copy{Src: f.Path, Dst: dst}
		}

		resp, err := c.PutTask(task)
		if err != nil {
			return fmt.Errorf("qop: enqueuing %s: %w", f.Path, err)
		}

		if !active && !enqueueOnly {
			if _, err := c.Send(protocol.CommandMessage{Command: protocol.CommandQueueStart}); err != nil {
				return fmt.Errorf("qop: starting queue: %w", err)
			}
			active = true
		}

		if verbose {
			fmt.Println(formatResponse(resp))
		}
		printSummary(c.Stats())
	}
	fmt.Println()

	if !enqueueOnly {
		if _, err := c.Send(protocol.CommandMessage{Command: protocol.CommandQueueStart}); err != nil {
			return fmt.Errorf("qop: starting queue: %w", err)
		}
	}

	if c.Stats().Fail > 0 {
		os.Exit(1)
	}
	return nil
}
