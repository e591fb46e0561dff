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

// Package tasks defines the closed set of file-operation task variants
// that flow through the queue: the units of work a worker pops, runs, and
// reports a terminal status for.
package tasks

import (
	"fmt"

	"github.com/s-fleck/qop/converters"
)

// Kind tags a Task variant for (de)serialization and for the worker
// pool's include/exclude kind filter.
type Kind int

const (
	KindEcho Kind = iota + 1
	KindSleep
	KindFail
	KindDelete
	KindCopy
	KindMove
	KindSimpleConvert
	KindConvert
)

func (k Kind) String() string {
	switch k {
	case KindEcho:
		return "echo"
	case KindSleep:
		return "sleep"
	case KindFail:
		return "fail"
	case KindDelete:
		return "delete"
	case KindCopy:
		return "copy"
	case KindMove:
		return "move"
	case KindSimpleConvert:
		return "simple_convert"
	case KindConvert:
		return "convert"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result names the two non-failure task outcomes. Validate and Run do not
// return it: they report SKIP as a *SkipError and failure as any other
// error.
type Result int

const (
	// ResultOK means the task completed (or will complete) successfully.
	ResultOK Result = iota
	// ResultSkip means the task is a no-op and should be recorded as SKIP
	// without running (e.g. destination already identical to source).
	ResultSkip
)

// SkipError is returned by Validate when a task should be recorded as
// SKIP rather than run or failed -- e.g. a copy/move whose destination
// already exists and is byte-identical to the source, or a convert task whose destination already
// exists and simply cannot be compared byte-wise.
type SkipError struct {
	Reason string
}

func (e *SkipError) Error() string { return e.Reason }

// Task is the closed sum type of file-operation work items. Every
// concrete variant below implements it.
type Task interface {
	// Kind identifies the concrete variant for serialization and for the
	// worker pool's kind filter.
	Kind() Kind

	// Validate reports whether the task's preconditions hold, without any
	// side effects. It returns a *SkipError for conditions that should be
	// recorded as SKIP (not run, not failed), or any other error for
	// conditions that should be recorded as FAIL.
	Validate() error

	// Run performs the task's file operation. Callers must call Validate
	// first; Run re-validates internally to catch races (the worker does
	// this to guard against state changing between pop and execution).
	Run() error

	// Spawn returns a follow-up task to enqueue after this one completes
	// successfully, or nil if there is none. Only Convert returns a
	// non-nil follow-up (a Move from its staging path to its final
	// destination).
	Spawn(recordID int64) Task
}

// wireTask is the on-the-wire JSON shape for any task variant. Only the
// fields relevant to Type are populated.
type wireTask struct {
	Type      Kind               `json:"type"`
	Msg       string             `json:"msg,omitempty"`
	Seconds   float64            `json:"seconds,omitempty"`
	Src       string             `json:"src,omitempty"`
	Dst       string             `json:"dst,omitempty"`
	TmpDst    string             `json:"tmpdst,omitempty"`
	Converter *converterEnvelope `json:"converter,omitempty"`
}

// converterEnvelope lets a task's JSON carry an embedded, independently
// serialized Converter without tasks importing converters' internal wire
// format directly.
type converterEnvelope struct {
	Raw []byte
}

func (c converterEnvelope) MarshalJSON() ([]byte, error) {
	return c.Raw, nil
}

func (c *converterEnvelope) UnmarshalJSON(data []byte) error {
	c.Raw = append([]byte(nil), data...)
	return nil
}

// Converter re-exports converters.Converter so callers that only import
// tasks can still spell out a converter type.
type Converter = converters.Converter

// SrcDst extracts the source and destination paths from a task, for
// variants that have them. Echo, Sleep, and Fail have neither and return
// empty strings for both.
func SrcDst(t Task) (src, dst string) {
	switch v := t.(type) {
	case Delete:
		return v.Src, ""
	case Copy:
		return v.Src, v.Dst
	case Move:
		return v.Src, v.Dst
	case SimpleConvert:
		return v.Src, v.Dst
	case Convert:
		return v.Src, v.Dst
	default:
		return "", ""
	}
}
