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

	"github.com/s-fleck/qop/client"
	"github.com/s-fleck/qop/protocol"
)

// statusName renders a Status the way original_source/qop/cli.py's
// color_status does, minus the color (the pack carries no terminal
// colorization library).
func statusName(s protocol.Status) string {
	switch s {
	case protocol.StatusOK:
		return "OK"
	case protocol.StatusSkip:
		return "SKIP"
	case protocol.StatusFail:
		return "FAIL"
	case protocol.StatusActive:
		return "ACTIVE"
	case protocol.StatusPending:
		return "PENDING"
	default:
		return "?"
	}
}

// formatResponse renders one StatusMessage as a single line of output.
func formatResponse(resp protocol.StatusMessage) string {
	line := fmt.Sprintf("%-6s", statusName(resp.Status))
	if resp.Msg != "" {
		line += " [" + resp.Msg + "]"
	}
	return line
}

// printSummary prints a running tally of a client's enqueue outcomes,
// overwriting the previous line.
func printSummary(s client.Stats) {
	total := s.OK + s.Skip + s.Fail
	fmt.Printf("\renqueue: %6d | ok: %6d | skip: %6d | fail: %6d", total, s.OK, s.Skip, s.Fail)
}

// exitStatus maps a StatusMessage onto the CLI's process exit code: 0 on
// OK or SKIP, non-zero on FAIL.
func exitStatus(resp protocol.StatusMessage) int {
	if resp.Status == protocol.StatusFail {
		return 1
	}
	return 0
}
