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

// Package workers implements qop's two worker classes: goroutine pools
// that drain the queue in parallel, one handling everything except
// Convert tasks (transfer-class) and one handling Convert tasks only
// (convert-class).
package workers

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/s-fleck/qop/journal"
	"github.com/s-fleck/qop/queue"
	"github.com/s-fleck/qop/tasks"
)

// idlePoll is how long a worker sleeps after finding the queue empty or
// losing a claim race, before trying again.
const idlePoll = 200 * time.Millisecond

// Class identifies which disjoint slice of task kinds a pool drains.
type Class int

const (
	// ClassTransfer handles every task kind except Convert. Its default
	// pool size is 1, to avoid concurrent writers to a single destination
	// volume.
	ClassTransfer Class = iota
	// ClassConvert handles Convert tasks only. SimpleConvert is
	// transfer-class, since it writes directly to its final destination
	// rather than staging through a temp path.
	ClassConvert
)

func (c Class) String() string {
	if c == ClassConvert {
		return "convert"
	}
	return "transfer"
}

func (c Class) kindFilter() (include, exclude *tasks.Kind) {
	convert := tasks.KindConvert
	if c == ClassConvert {
		return &convert, nil
	}
	return nil, &convert
}

// StagingCleaner removes a convert worker's staging directory best-effort
// once its loop ends. nil means no cleanup is configured.
type StagingCleaner func() error

// Pool manages one class's goroutines against a shared Queue. It is safe
// for concurrent use: Rebalance may be called repeatedly from the
// daemon's request-handling loop without additional synchronization.
type Pool struct {
	class   Class
	q       *queue.Queue
	cleanup StagingCleaner
	journal *journal.Journal

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates an idle pool for class, backed by q. Call Rebalance to
// bring it up to a target size. j may be nil, in which case terminal
// outcomes are not journaled.
func NewPool(class Class, q *queue.Queue, cleanup StagingCleaner, j *journal.Journal) *Pool {
	return &Pool{class: class, q: q, cleanup: cleanup, journal: j}
}

// Alive reports how many worker goroutines are currently running.
func (p *Pool) Alive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cancels)
}

// Rebalance converges the pool to exactly max running workers: spawning
// more if under, stopping the newest ones if over. It never blocks on a
// worker's current task.
func (p *Pool) Rebalance(ctx context.Context, max int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.cancels) > max {
		last := len(p.cancels) - 1
		p.cancels[last]()
		p.cancels = p.cancels[:last]
	}
	for len(p.cancels) < max {
		workerCtx, cancel := context.WithCancel(ctx)
		p.cancels = append(p.cancels, cancel)
		p.wg.Add(1)
		go p.run(workerCtx)
	}
}

// StopAll cancels every worker in the pool and waits for their loops to
// return. Used by QUEUE_STOP and by daemon shutdown.
func (p *Pool) StopAll() {
	p.mu.Lock()
	for _, cancel := range p.cancels {
		cancel()
	}
	p.cancels = nil
	p.mu.Unlock()
	p.wg.Wait()
}

// run is one worker's main loop: pop, run, record a terminal status,
// spawn and mirror as needed, repeat until the queue has drained or ctx
// is canceled.
func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	defer func() {
		if p.cleanup != nil {
			if err := p.cleanup(); err != nil {
				slog.Warn("workers: staging cleanup failed", "class", p.class, "error", err)
			}
		}
	}()

	include, exclude := p.class.kindFilter()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		progress, err := p.q.Progress(ctx, true)
		if err != nil {
			slog.Error("workers: reading progress", "class", p.class, "error", err)
			return
		}
		if progress.Pending == 0 && progress.Active == 0 {
			return
		}

		rec, err := p.q.Pop(ctx, include, exclude)
		if err != nil {
			if err == queue.ErrEmpty || err == queue.ErrAlreadyClaimed {
				select {
				case <-ctx.Done():
					return
				case <-time.After(idlePoll):
				}
				continue
			}
			slog.Error("workers: popping task", "class", p.class, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(idlePoll):
			}
			continue
		}

		p.execute(ctx, rec)
	}
}

// execute runs one claimed record to completion and applies the
// terminal-status and spawn/mirror policy.
func (p *Pool) execute(ctx context.Context, rec *queue.Record) {
	start := time.Now()
	runErr := rec.Task.Run()

	switch {
	case runErr == nil:
		if err := p.q.SetStatus(ctx, rec.ID, queue.StatusOK); err != nil {
			slog.Error("workers: marking OK", "id", rec.ID, "error", err)
		}
		p.recordJournal(rec, "OK", "", start)
		if follow := rec.Task.Spawn(rec.ID); follow != nil {
			if _, err := p.q.Put(ctx, follow, -1, &rec.ID); err != nil {
				slog.Error("workers: enqueueing follow-up", "id", rec.ID, "error", err)
			}
		}
		if rec.Parent != nil {
			if err := p.q.SetStatus(ctx, *rec.Parent, queue.StatusOK); err != nil {
				slog.Error("workers: mirroring OK to parent", "parent", *rec.Parent, "error", err)
			}
		}
	case isSkip(runErr):
		if err := p.q.SetStatus(ctx, rec.ID, queue.StatusSkip); err != nil {
			slog.Error("workers: marking SKIP", "id", rec.ID, "error", err)
		}
		p.recordJournal(rec, "SKIP", runErr.Error(), start)
	default:
		slog.Warn("workers: task failed", "id", rec.ID, "kind", rec.Task.Kind(), "error", runErr)
		if err := p.q.SetStatus(ctx, rec.ID, queue.StatusFail); err != nil {
			slog.Error("workers: marking FAIL", "id", rec.ID, "error", err)
		}
		p.recordJournal(rec, "FAIL", runErr.Error(), start)
		if rec.Parent != nil {
			if err := p.q.SetStatus(ctx, *rec.Parent, queue.StatusFail); err != nil {
				slog.Error("workers: mirroring FAIL to parent", "parent", *rec.Parent, "error", err)
			}
		}
	}
}

// recordJournal appends a terminal outcome to the journal, if one is
// configured. A journal write failure is logged but never affects the
// task's already-committed queue status.
func (p *Pool) recordJournal(rec *queue.Record, status, errMsg string, start time.Time) {
	if p.journal == nil {
		return
	}
	src, dst := tasks.SrcDst(rec.Task)
	if err := p.journal.Record(journal.Record{
		ID: rec.ID, Kind: rec.Task.Kind().String(), Src: src, Dst: dst,
		Status: status, Error: errMsg, StartTime: start, StopTime: time.Now(),
	}); err != nil {
		slog.Error("workers: journal write failed", "id", rec.ID, "error", err)
	}
}

func isSkip(err error) bool {
	_, ok := err.(*tasks.SkipError)
	return ok
}

// DefaultConvertMax returns cpu_count-1 (minimum 1), the default convert
// pool size. Callers that want an operator-configured override
// read it from the config package instead.
func DefaultConvertMax() int {
	if n := runtime.NumCPU(); n > 1 {
		return n - 1
	}
	return 1
}
