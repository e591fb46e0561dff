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

// Package queue implements qop's durable, prioritized task store: the
// single source of truth shared by the daemon's dispatcher and every
// worker, guarded only by the store's own transactional locking.
package queue

import "fmt"

// Status is a queue record's lifecycle state.
type Status int

const (
	StatusFail    Status = -1
	StatusPending Status = 0
	StatusOK      Status = 1
	StatusSkip    Status = 2
	StatusActive  Status = 3
)

func (s Status) String() string {
	switch s {
	case StatusFail:
		return "FAIL"
	case StatusPending:
		return "PENDING"
	case StatusOK:
		return "OK"
	case StatusSkip:
		return "SKIP"
	case StatusActive:
		return "ACTIVE"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// IsTerminal reports whether s is one of the three terminal statuses a
// task settles into (OK, SKIP, FAIL).
func (s Status) IsTerminal() bool {
	return s == StatusOK || s == StatusSkip || s == StatusFail
}
