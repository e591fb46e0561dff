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

package journal

import "fmt"

// CantOpenError indicates that the journal's database file could not be
// opened.
type CantOpenError struct {
	Message string
}

func (e CantOpenError) Error() string {
	return fmt.Sprintf("journal: can't open: %s", e.Message)
}

// CantCloseError indicates that the journal's database file could not be
// closed cleanly.
type CantCloseError struct {
	Message string
}

func (e CantCloseError) Error() string {
	return fmt.Sprintf("journal: can't close: %s", e.Message)
}

// NewRecordError indicates that a record could not be appended.
type NewRecordError struct {
	ID      int64
	Message string
}

func (e NewRecordError) Error() string {
	return fmt.Sprintf("journal: can't record task %d: %s", e.ID, e.Message)
}

// InvalidRecordError indicates that a record stored in the journal could
// not be decoded.
type InvalidRecordError struct {
	Key     string
	Message string
}

func (e InvalidRecordError) Error() string {
	return fmt.Sprintf("journal: invalid record at %s: %s", e.Key, e.Message)
}
