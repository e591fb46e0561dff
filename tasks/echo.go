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

package tasks

import (
	"log/slog"
	"time"
)

// Echo logs a diagnostic message. It is the simplest possible task, used
// mainly to exercise the queue and protocol without touching the
// filesystem.
type Echo struct {
	Msg string
}

// Kind identifies this variant for serialization.
func (Echo) Kind() Kind { return KindEcho }

// Validate always succeeds: Echo has no preconditions.
func (Echo) Validate() error { return nil }

// Run logs Msg and returns nil.
func (t Echo) Run() error {
	slog.Info(t.Msg)
	return nil
}

// Spawn never produces a follow-up task.
func (Echo) Spawn(int64) Task { return nil }

// Sleep blocks a worker for a fixed duration. Used in tests and manual
// exercises of the worker pool and restart-recovery behavior.
type Sleep struct {
	Seconds float64
}

// Kind identifies this variant for serialization.
func (Sleep) Kind() Kind { return KindSleep }

// Validate always succeeds: Sleep has no preconditions.
func (Sleep) Validate() error { return nil }

// Run blocks for the configured duration.
func (t Sleep) Run() error {
	time.Sleep(time.Duration(t.Seconds * float64(time.Second)))
	return nil
}

// Spawn never produces a follow-up task.
func (Sleep) Spawn(int64) Task { return nil }

// Fail always errors when run. Used to exercise FAIL propagation.
type Fail struct{}

// Kind identifies this variant for serialization.
func (Fail) Kind() Kind { return KindFail }

// Validate always succeeds; Fail only fails at Run time.
func (Fail) Validate() error { return nil }

// Run always returns an error.
func (Fail) Run() error { return errFailTask }

// Spawn never produces a follow-up task.
func (Fail) Spawn(int64) Task { return nil }

var errFailTask = &failError{}

type failError struct{}

func (*failError) Error() string { return "tasks: fail task always fails" }
