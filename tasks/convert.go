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
	"fmt"
	"os"
)

// SimpleConvert transcodes Src directly to its final destination Dst.
// Unlike Convert, it does not stage to a temporary path first, which makes
// it safe to treat as a Transfer-class task (it writes only to its final
// destination, the way Copy/Move do).
type SimpleConvert struct {
	Src, Dst  string
	Converter Converter
}

// Kind identifies this variant for serialization.
func (SimpleConvert) Kind() Kind { return KindSimpleConvert }

// Validate checks Src's preconditions. Because transcoded output cannot
// be byte-compared to Src, an existing Dst is always a SkipError rather
// than a content comparison.
func (t SimpleConvert) Validate() error {
	if err := validateSrc(t.Src); err != nil {
		return err
	}
	if _, err := os.Stat(t.Dst); err == nil {
		return &SkipError{Reason: fmt.Sprintf("destination %s already exists and cannot be compared to source", t.Dst)}
	} else if !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Run transcodes Src to Dst using Converter.
func (t SimpleConvert) Run() error {
	if err := t.Validate(); err != nil {
		return err
	}
	return t.Converter.Run(t.Src, t.Dst)
}

// Spawn never produces a follow-up task.
func (SimpleConvert) Spawn(int64) Task { return nil }

// Convert transcodes Src into a staging path TmpDst, then spawns a
// follow-up Move from TmpDst to the final Dst. Splitting convert into
// "transcode to staging, then atomically move" lets the CPU-bound convert
// pool and the I/O-bound transfer pool proceed independently.
type Convert struct {
	Src, Dst, TmpDst string
	Converter        Converter
}

// Kind identifies this variant for serialization.
func (Convert) Kind() Kind { return KindConvert }

// Validate mirrors SimpleConvert.Validate: an existing Dst is always a
// SkipError, since transcoded output cannot be byte-compared to Src.
func (t Convert) Validate() error {
	if err := validateSrc(t.Src); err != nil {
		return err
	}
	if _, err := os.Stat(t.Dst); err == nil {
		return &SkipError{Reason: fmt.Sprintf("destination %s already exists and cannot be compared to source", t.Dst)}
	} else if !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Run transcodes Src into TmpDst only; the final move to Dst happens in
// the follow-up task produced by Spawn.
func (t Convert) Run() error {
	if err := t.Validate(); err != nil {
		return err
	}
	return t.Converter.Run(t.Src, t.TmpDst)
}

// Spawn returns a Move from TmpDst to Dst, with ParentID set to this
// convert task's own queue record id so the worker pool can mirror the
// move's terminal status onto the parent.
func (t Convert) Spawn(recordID int64) Task {
	return Move{Src: t.TmpDst, Dst: t.Dst, ParentID: recordID, HasParent: true}
}
