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

package workers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-fleck/qop/converters"
	"github.com/s-fleck/qop/journal"
	"github.com/s-fleck/qop/queue"
	"github.com/s-fleck/qop/tasks"
)

func openTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qop.db")
	q, err := queue.Open(context.Background(), path, 4)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func waitForDrain(t *testing.T, q *queue.Queue) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := q.Progress(ctx, true)
		require.NoError(t, err)
		if p.Pending == 0 && p.Active == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("queue did not drain in time")
}

func TestPoolRunsTransferTasks(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	id, err := q.Put(ctx, tasks.Copy{Src: src, Dst: dst}, 0, nil)
	require.NoError(t, err)

	p := NewPool(ClassTransfer, q, nil, nil)
	p.Rebalance(ctx, 1)
	waitForDrain(t, q)
	p.StopAll()

	recs, err := q.Fetch(ctx, queue.StatusOK, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestPoolMarksSkip(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(dst, []byte("same"), 0o644))

	_, err := q.Put(ctx, tasks.Copy{Src: src, Dst: dst}, 0, nil)
	require.NoError(t, err)

	p := NewPool(ClassTransfer, q, nil, nil)
	p.Rebalance(ctx, 1)
	waitForDrain(t, q)
	p.StopAll()

	recs, err := q.Fetch(ctx, queue.StatusSkip, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestPoolMarksFail(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	_, err := q.Put(ctx, tasks.Fail{}, 0, nil)
	require.NoError(t, err)

	p := NewPool(ClassTransfer, q, nil, nil)
	p.Rebalance(ctx, 1)
	waitForDrain(t, q)
	p.StopAll()

	recs, err := q.Fetch(ctx, queue.StatusFail, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestPoolSpawnsAndMirrorsConvert(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	dir := t.TempDir()
	src := filepath.Join(dir, "src.wav")
	require.NoError(t, os.WriteFile(src, []byte("audio"), 0o644))
	dst := filepath.Join(dir, "out", "final.wav")
	tmp := filepath.Join(dir, "staging", "final.wav.tmp")

	parentID, err := q.Put(ctx, tasks.Convert{
		Src: src, Dst: dst, TmpDst: tmp, Converter: converters.Copy{},
	}, 0, nil)
	require.NoError(t, err)

	convertPool := NewPool(ClassConvert, q, nil, nil)
	convertPool.Rebalance(ctx, 1)
	transferPool := NewPool(ClassTransfer, q, nil, nil)
	transferPool.Rebalance(ctx, 1)

	waitForDrain(t, q)
	convertPool.StopAll()
	transferPool.StopAll()

	recs, err := q.Fetch(ctx, queue.StatusOK, 10)
	require.NoError(t, err)

	var sawParent bool
	for _, r := range recs {
		if r.ID == parentID {
			sawParent = true
		}
	}
	assert.True(t, sawParent, "parent convert record should mirror its spawned move's OK status")

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "audio", string(got))
}

func TestPoolRecordsJournalEntries(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	j, err := journal.Open(filepath.Join(t.TempDir(), "qop-journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	_, err = q.Put(ctx, tasks.Copy{Src: src, Dst: dst}, 0, nil)
	require.NoError(t, err)

	p := NewPool(ClassTransfer, q, nil, j)
	p.Rebalance(ctx, 1)
	waitForDrain(t, q)
	p.StopAll()

	now := time.Now()
	recs, err := j.Records(now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "OK", recs[0].Status)
	assert.Equal(t, "copy", recs[0].Kind)
	assert.Equal(t, src, recs[0].Src)
	assert.Equal(t, dst, recs[0].Dst)
}

func TestRebalanceStopsExcess(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	p := NewPool(ClassTransfer, q, nil, nil)
	p.Rebalance(ctx, 3)
	assert.Equal(t, 3, p.Alive())

	p.Rebalance(ctx, 1)
	// allow cancellation to propagate through the goroutine loops
	assert.Eventually(t, func() bool { return p.Alive() == 1 }, time.Second, 10*time.Millisecond)

	p.StopAll()
	assert.Equal(t, 0, p.Alive())
}
