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
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/s-fleck/qop/tasks"
)

// Queue is a durable, prioritized task store backed by a single SQLite
// file. Every worker and the daemon's dispatcher share one Queue through
// a pooled set of connections; the queue never hands out its own
// in-process lock, relying entirely on SQLite's transaction boundary to
// arbitrate concurrent Pop calls.
type Queue struct {
	pool *sqlitex.Pool
}

// Open opens (creating if necessary) the SQLite-backed queue at path and
// runs restart recovery: any record left ACTIVE by a prior process that
// crashed or was killed mid-task is reset to PENDING, since its worker's
// in-memory lock token is gone. poolSize should be at
// least the combined size of the transfer and convert worker pools plus
// a couple of spare connections for Put/Fetch/Progress callers.
func Open(ctx context.Context, path string, poolSize int) (*Queue, error) {
	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		Flags:    sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenWAL,
		PoolSize: poolSize,
		PrepareConn: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteTransient(conn, "PRAGMA busy_timeout = 5000;", nil)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("queue: opening store %s: %w", path, err)
	}

	q := &Queue{pool: pool}
	if err := q.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := q.resetActiveTasks(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return q, nil
}

// Close releases the underlying connection pool.
func (q *Queue) Close() error { return q.pool.Close() }

func (q *Queue) withConn(ctx context.Context, fn func(conn *sqlite.Conn) error) error {
	conn, err := q.pool.Get(ctx)
	if err != nil {
		return fmt.Errorf("queue: acquiring connection: %w", err)
	}
	defer q.pool.Put(conn)
	return fn(conn)
}

// withRetry runs fn, retrying with a fixed 100ms backoff when SQLite
// reports the database as transiently busy or locked. Any other error, including the queue's own sentinel
// errors, is returned immediately without retrying.
func withRetry(fn func() error) error {
	const maxAttempts = 10
	const backoff = 100 * time.Millisecond

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		time.Sleep(backoff)
	}
	return err
}

func isBusy(err error) bool {
	switch sqlite.ErrCode(err) {
	case sqlite.ResultBusy, sqlite.ResultLocked:
		return true
	default:
		return false
	}
}

func (q *Queue) migrate(ctx context.Context) error {
	return q.withConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, `
CREATE TABLE IF NOT EXISTS tasks (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	priority INTEGER NOT NULL,
	task     TEXT NOT NULL,
	status   INTEGER NOT NULL,
	lock     TEXT,
	parent   INTEGER,
	UNIQUE(task, status)
)`, nil)
	})
}

func (q *Queue) resetActiveTasks(ctx context.Context) error {
	return q.withConn(ctx, func(conn *sqlite.Conn) error {
		return withRetry(func() error {
			query := `UPDATE tasks SET status = ?, lock = NULL WHERE status = ?`
			return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
				Args: []any{int(StatusPending), int(StatusActive)},
			})
		})
	})
}

// ResetActive resets every ACTIVE record back to PENDING, clearing its
// lock. Open already does this once at construction for crash recovery;
// the daemon also calls it directly on QUEUE_STOP, since stopping the
// worker pools abandons any task they had claimed.
func (q *Queue) ResetActive(ctx context.Context) error {
	return q.resetActiveTasks(ctx)
}

// Put enqueues task at priority, returning its new record id. If parent
// is non-nil, the record is marked as a child of that record (used for
// the Move spawned by a completed Convert); Progress excludes child
// records from its counts by default. Re-enqueueing an identical task
// body while a prior record of the same body and status still exists
// replaces that record, per the store's UNIQUE(task, status) constraint.
func (q *Queue) Put(ctx context.Context, task tasks.Task, priority int, parent *int64) (int64, error) {
	body, err := tasks.Marshal(task)
	if err != nil {
		return 0, fmt.Errorf("queue: marshaling task: %w", err)
	}

	var id int64
	err = q.withConn(ctx, func(conn *sqlite.Conn) error {
		return withRetry(func() error {
			query := `INSERT OR REPLACE INTO tasks(priority, task, status, lock, parent) VALUES (?, ?, ?, NULL, ?)`
			var parentArg any
			if parent != nil {
				parentArg = *parent
			}
			if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
				Args: []any{priority, string(body), int(StatusPending), parentArg},
			}); err != nil {
				return err
			}
			id = conn.LastInsertRowID()
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("queue: enqueueing task: %w", err)
	}
	return id, nil
}

// Pop atomically selects the earliest PENDING record (lowest priority
// number first) matching the include/exclude kind filter (either may be
// nil to mean "any"), marks it ACTIVE under a freshly generated lock
// token, and returns it.
// The whole select-then-claim-then-confirm sequence runs inside one
// SQLite savepoint so a second caller racing for the same record either
// sees it already claimed (ErrAlreadyClaimed, safe to retry against a
// different candidate) or not yet PENDING at all (ErrEmpty).
func (q *Queue) Pop(ctx context.Context, include, exclude *tasks.Kind) (*Record, error) {
	var rec *Record
	err := q.withConn(ctx, func(conn *sqlite.Conn) error {
		return withRetry(func() error {
			var innerErr error
			release := sqlitex.Save(conn)
			defer release(&innerErr)

			var candidate *Record
			selectQuery := `SELECT id, priority, task, status, lock, parent FROM tasks WHERE status = ? ORDER BY priority ASC, id ASC`
			innerErr = sqlitex.Execute(conn, selectQuery, &sqlitex.ExecOptions{
				Args: []any{int(StatusPending)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					if candidate != nil {
						return nil
					}
					r, scanErr := scanRecord(stmt)
					if scanErr != nil {
						return scanErr
					}
					kind := r.Task.Kind()
					if include != nil && kind != *include {
						return nil
					}
					if exclude != nil && kind == *exclude {
						return nil
					}
					candidate = &r
					return nil
				},
			})
			if innerErr != nil {
				return innerErr
			}
			if candidate == nil {
				innerErr = ErrEmpty
				return innerErr
			}

			token := uuid.NewString()
			updateQuery := `UPDATE tasks SET status = ?, lock = ? WHERE id = ? AND status = ?`
			innerErr = sqlitex.Execute(conn, updateQuery, &sqlitex.ExecOptions{
				Args: []any{int(StatusActive), token, candidate.ID, int(StatusPending)},
			})
			if innerErr != nil {
				return innerErr
			}
			if conn.Changes() == 0 {
				innerErr = ErrAlreadyClaimed
				return innerErr
			}

			var confirmedLock string
			checkQuery := `SELECT lock FROM tasks WHERE id = ?`
			innerErr = sqlitex.Execute(conn, checkQuery, &sqlitex.ExecOptions{
				Args: []any{candidate.ID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					confirmedLock = stmt.ColumnText(0)
					return nil
				},
			})
			if innerErr != nil {
				return innerErr
			}
			if confirmedLock != token {
				innerErr = ErrAlreadyClaimed
				return innerErr
			}

			candidate.Status = StatusActive
			candidate.Lock = token
			rec = candidate
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SetStatus records a terminal (or PENDING) status for record id and
// clears its lock. It does not itself mirror the status onto a parent
// record; the worker pool does that explicitly after a spawned Move
// completes, since only the worker knows a Move came from Spawn.
func (q *Queue) SetStatus(ctx context.Context, id int64, status Status) error {
	return q.withConn(ctx, func(conn *sqlite.Conn) error {
		return withRetry(func() error {
			query := `UPDATE tasks SET status = ?, lock = NULL WHERE id = ?`
			if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
				Args: []any{int(status), id},
			}); err != nil {
				return err
			}
			if conn.Changes() == 0 {
				return ErrNotFound
			}
			return nil
		})
	})
}

// Fetch returns up to limit records with the given status, in strict
// ascending priority order (lower priority number first), ties broken by
// insertion order.
func (q *Queue) Fetch(ctx context.Context, status Status, limit int) ([]Record, error) {
	var records []Record
	err := q.withConn(ctx, func(conn *sqlite.Conn) error {
		return withRetry(func() error {
			records = nil
			query := `SELECT id, priority, task, status, lock, parent FROM tasks WHERE status = ? ORDER BY priority ASC, id ASC LIMIT ?`
			return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
				Args: []any{int(status), limit},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					r, err := scanRecord(stmt)
					if err != nil {
						return err
					}
					records = append(records, r)
					return nil
				},
			})
		})
	})
	return records, err
}

// Peek returns the record Pop would claim next (with no kind filter),
// without claiming it.
func (q *Queue) Peek(ctx context.Context) (*Record, error) {
	records, err := q.Fetch(ctx, StatusPending, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmpty
	}
	return &records[0], nil
}

// Progress summarizes the queue's record counts by status. Child
// records (those with a non-nil Parent) are excluded unless
// includeChildren is set, since their outcome is already reflected in
// their parent's status.
func (q *Queue) Progress(ctx context.Context, includeChildren bool) (Progress, error) {
	var p Progress
	err := q.withConn(ctx, func(conn *sqlite.Conn) error {
		return withRetry(func() error {
			p = Progress{}
			query := `SELECT status, COUNT(*) FROM tasks`
			if !includeChildren {
				query += ` WHERE parent IS NULL`
			}
			query += ` GROUP BY status`
			return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					status := Status(stmt.ColumnInt64(0))
					count := stmt.ColumnInt64(1)
					switch status {
					case StatusPending:
						p.Pending = count
					case StatusActive:
						p.Active = count
					case StatusOK:
						p.OK = count
					case StatusSkip:
						p.Skip = count
					case StatusFail:
						p.Fail = count
					}
					p.Total += count
					return nil
				},
			})
		})
	})
	return p, err
}

// CountByStatus returns the number of records (including children) that
// currently hold status. It is a narrower, cheaper alternative to
// Progress for callers that only need one number.
func (q *Queue) CountByStatus(ctx context.Context, status Status) (int64, error) {
	var count int64
	err := q.withConn(ctx, func(conn *sqlite.Conn) error {
		return withRetry(func() error {
			query := `SELECT COUNT(*) FROM tasks WHERE status = ?`
			return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
				Args: []any{int(status)},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					count = stmt.ColumnInt64(0)
					return nil
				},
			})
		})
	})
	return count, err
}

// Flush deletes every record with the given status, or every record in
// the queue if status is nil, and returns the number deleted.
func (q *Queue) Flush(ctx context.Context, status *Status) (int64, error) {
	var deleted int64
	err := q.withConn(ctx, func(conn *sqlite.Conn) error {
		return withRetry(func() error {
			query := `DELETE FROM tasks`
			var args []any
			if status != nil {
				query += ` WHERE status = ?`
				args = append(args, int(*status))
			}
			if err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
				return err
			}
			deleted = int64(conn.Changes())
			return nil
		})
	})
	return deleted, err
}

// scanRecord reads one row of a SELECT id, priority, task, status, lock,
// parent query into a Record, restoring a popped Move's ParentID/HasParent
// from the row's parent column (these never round-trip through the
// task's own JSON body; see tasks.Unmarshal).
func scanRecord(stmt *sqlite.Stmt) (Record, error) {
	rec := Record{
		ID:       stmt.ColumnInt64(0),
		Priority: int(stmt.ColumnInt64(1)),
		Status:   Status(stmt.ColumnInt64(3)),
	}

	task, err := tasks.Unmarshal([]byte(stmt.ColumnText(2)))
	if err != nil {
		return Record{}, fmt.Errorf("queue: decoding record %d: %w", rec.ID, err)
	}
	rec.Task = task

	if stmt.ColumnType(4) != sqlite.TypeNull {
		rec.Lock = stmt.ColumnText(4)
	}
	if stmt.ColumnType(5) != sqlite.TypeNull {
		parent := stmt.ColumnInt64(5)
		rec.Parent = &parent
		if mv, ok := rec.Task.(tasks.Move); ok {
			mv.HasParent = true
			mv.ParentID = parent
			rec.Task = mv
		}
	}

	return rec, nil
}
