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

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s-fleck/qop/converters"
	"github.com/s-fleck/qop/tasks"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qop.db")
	q, err := Open(context.Background(), path, 4)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestPutPop(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	id, err := q.Put(ctx, tasks.Echo{Msg: "hello"}, 0, nil)
	require.NoError(t, err)
	assert.Positive(t, id)

	rec, err := q.Pop(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, id, rec.ID)
	assert.Equal(t, StatusActive, rec.Status)
	assert.NotEmpty(t, rec.Lock)
	assert.Equal(t, tasks.Echo{Msg: "hello"}, rec.Task)
}

func TestPopEmpty(t *testing.T) {
	q := openTestQueue(t)
	_, err := q.Pop(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)
}

// TestPopPriorityOrder confirms Pop drains in strictly ascending priority
// order: lower priority numbers pop first (priority -1, the value given
// to spawned Convert->Move follow-ups, jumps ahead of ordinary priority-0
// work).
func TestPopPriorityOrder(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	ordinaryID, err := q.Put(ctx, tasks.Echo{Msg: "ordinary"}, 0, nil)
	require.NoError(t, err)
	urgentID, err := q.Put(ctx, tasks.Echo{Msg: "urgent"}, -1, nil)
	require.NoError(t, err)

	rec, err := q.Pop(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, urgentID, rec.ID)

	rec, err = q.Pop(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ordinaryID, rec.ID)
}

// TestPopSpawnedFollowUpJumpsAheadOfPendingWork exercises the scenario
// spec.md's staging policy exists for: a spawned Move follow-up (priority
// -1) enqueued while an ordinary priority-0 task is still PENDING must be
// the next thing Pop returns, not the older ordinary task.
func TestPopSpawnedFollowUpJumpsAheadOfPendingWork(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	pendingID, err := q.Put(ctx, tasks.Echo{Msg: "pending ordinary work"}, 0, nil)
	require.NoError(t, err)

	convertID, err := q.Put(ctx, tasks.Convert{
		Src: "/tmp/src.wav", Dst: "/tmp/dst.mp3", TmpDst: "/tmp/staging/dst.mp3",
		Converter: converters.Copy{},
	}, 0, nil)
	require.NoError(t, err)

	convertKind := tasks.KindConvert
	convertRec, err := q.Pop(ctx, &convertKind, nil)
	require.NoError(t, err)
	require.Equal(t, convertID, convertRec.ID)

	followUp := convertRec.Task.Spawn(convertRec.ID)
	require.NotNil(t, followUp)
	parent := convertRec.ID
	followUpID, err := q.Put(ctx, followUp, -1, &parent)
	require.NoError(t, err)

	rec, err := q.Pop(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, followUpID, rec.ID, "spawned follow-up must pop before older pending ordinary work")

	rec, err = q.Pop(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, pendingID, rec.ID)
}

func TestPopKindFilter(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	_, err := q.Put(ctx, tasks.Echo{Msg: "e"}, 0, nil)
	require.NoError(t, err)
	sleepID, err := q.Put(ctx, tasks.Sleep{Seconds: 1}, 0, nil)
	require.NoError(t, err)

	sleepKind := tasks.KindSleep
	rec, err := q.Pop(ctx, &sleepKind, nil)
	require.NoError(t, err)
	assert.Equal(t, sleepID, rec.ID)

	rec, err = q.Pop(ctx, nil, &sleepKind)
	require.NoError(t, err)
	assert.Equal(t, tasks.KindEcho, rec.Task.Kind())
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	id, err := q.Put(ctx, tasks.Echo{Msg: "hi"}, 0, nil)
	require.NoError(t, err)
	_, err = q.Pop(ctx, nil, nil)
	require.NoError(t, err)

	require.NoError(t, q.SetStatus(ctx, id, StatusOK))

	recs, err := q.Fetch(ctx, StatusOK, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.Empty(t, recs[0].Lock)
}

func TestSetStatusNotFound(t *testing.T) {
	q := openTestQueue(t)
	err := q.SetStatus(context.Background(), 9999, StatusOK)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestartRecovery(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "qop.db")

	q1, err := Open(ctx, path, 4)
	require.NoError(t, err)
	id, err := q1.Put(ctx, tasks.Echo{Msg: "crash me"}, 0, nil)
	require.NoError(t, err)
	rec, err := q1.Pop(ctx, nil, nil)
	require.NoError(t, err)
	require.Equal(t, id, rec.ID)
	require.NoError(t, q1.Close())

	q2, err := Open(ctx, path, 4)
	require.NoError(t, err)
	defer q2.Close()

	recs, err := q2.Fetch(ctx, StatusPending, 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].ID)
	assert.Empty(t, recs[0].Lock)
}

func TestProgressExcludesChildren(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	parentID, err := q.Put(ctx, tasks.Echo{Msg: "parent"}, 0, nil)
	require.NoError(t, err)
	_, err = q.Put(ctx, tasks.Echo{Msg: "child"}, 0, &parentID)
	require.NoError(t, err)

	p, err := q.Progress(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Pending)
	assert.Equal(t, int64(1), p.Total)

	p, err = q.Progress(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), p.Pending)
}

func TestPopRestoresMoveParent(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	parentID, err := q.Put(ctx, tasks.Convert{Src: "a.wav", Dst: "a.mp3", TmpDst: "a.tmp", Converter: converters.Copy{}}, 0, nil)
	require.NoError(t, err)

	moveTask := tasks.Move{Src: "a.tmp", Dst: "a.mp3"}
	_, err = q.Put(ctx, moveTask, 0, &parentID)
	require.NoError(t, err)

	// drain the parent convert record first (higher insertion order does not
	// matter here; both are priority 0, so FIFO applies)
	_, err = q.Pop(ctx, nil, nil)
	require.NoError(t, err)

	rec, err := q.Pop(ctx, nil, nil)
	require.NoError(t, err)
	mv, ok := rec.Task.(tasks.Move)
	require.True(t, ok)
	assert.True(t, mv.HasParent)
	assert.Equal(t, parentID, mv.ParentID)
}

func TestFlush(t *testing.T) {
	ctx := context.Background()
	q := openTestQueue(t)

	_, err := q.Put(ctx, tasks.Echo{Msg: "a"}, 0, nil)
	require.NoError(t, err)
	_, err = q.Put(ctx, tasks.Sleep{Seconds: 1}, 0, nil)
	require.NoError(t, err)

	n, err := q.Flush(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	p, err := q.Progress(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.Total)
}
