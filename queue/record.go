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

package queue

import "github.com/s-fleck/qop/tasks"

// Record is one row of the queue: a task body plus the bookkeeping the
// store maintains around it.
type Record struct {
	ID       int64
	Priority int
	Task     tasks.Task
	Status   Status
	Lock     string
	Parent   *int64
}

// Progress summarizes how many records hold each terminal or in-flight
// status. It excludes records with a non-nil Parent unless the queue's
// Progress was asked to IncludeChildren, since a spawned Move's outcome
// is reported through its parent Convert record.
type Progress struct {
	Pending int64
	Active  int64
	OK      int64
	Skip    int64
	Fail    int64
	Total   int64
}
