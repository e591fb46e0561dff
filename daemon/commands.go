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

package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/s-fleck/qop/protocol"
	"github.com/s-fleck/qop/queue"
	"github.com/s-fleck/qop/tasks"
)

// dispatch reads one CommandMessage from conn, runs the requested
// command, and writes one StatusMessage back. Every error from a command
// handler -- including a malformed request -- is caught and reported as
// a FAIL status; the daemon never terminates on an ill-formed request. A
// panic anywhere in a command handler (e.g. a bad type assertion while
// decoding a payload) is recovered here too, at the per-connection
// boundary, so a single bad request can never take down the accept loop.
func (d *Daemon) dispatch(ctx context.Context, conn io.ReadWriter) (stopRequested bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("daemon: recovered panic handling request", "panic", r)
			writeFail(conn, fmt.Sprintf("internal error: %v", r))
			stopRequested = false
		}
	}()

	cmd, err := protocol.ReadCommand(conn)
	if err != nil {
		writeFail(conn, "malformed request: "+err.Error())
		return false
	}

	switch cmd.Command {
	case protocol.CommandDaemonStart:
		writeFail(conn, "the daemon is started externally; DAEMON_START is not accepted over the wire")
		return false

	case protocol.CommandDaemonStop:
		writeStatus(conn, protocol.StatusOK, "shutting down daemon", nil, 0)
		return true

	case protocol.CommandDaemonIsActive:
		writeValue(conn, true)
		return false

	case protocol.CommandDaemonFacts:
		facts, err := d.facts(ctx)
		if err != nil {
			writeFail(conn, err.Error())
			return false
		}
		writeStatus(conn, protocol.StatusOK, "", facts, protocol.PayloadDaemonFacts)
		return false

	case protocol.CommandQueueStart:
		d.transfer.Rebalance(ctx, d.cfg.TransferMax)
		d.convert.Rebalance(ctx, d.cfg.ConvertMax)
		writeStatus(conn, protocol.StatusOK, "queue started", nil, 0)
		return false

	case protocol.CommandQueueStop:
		if d.transfer.Alive() == 0 && d.convert.Alive() == 0 {
			writeStatus(conn, protocol.StatusSkip, "no running workers found", nil, 0)
			return false
		}
		d.transfer.StopAll()
		d.convert.StopAll()
		if err := d.q.ResetActive(ctx); err != nil {
			writeFail(conn, err.Error())
			return false
		}
		writeStatus(conn, protocol.StatusOK, "queue stopped", nil, 0)
		return false

	case protocol.CommandQueueIsActive:
		active := d.transfer.Alive() > 0 || d.convert.Alive() > 0
		writeValue(conn, active)
		return false

	case protocol.CommandQueuePut:
		d.handlePut(ctx, conn, cmd)
		return false

	case protocol.CommandQueueFlushPending:
		pending := queue.StatusPending
		if _, err := d.q.Flush(ctx, &pending); err != nil {
			writeFail(conn, err.Error())
			return false
		}
		writeStatus(conn, protocol.StatusOK, "flushed pending tasks", nil, 0)
		return false

	case protocol.CommandQueueFlushAll:
		if _, err := d.q.Flush(ctx, nil); err != nil {
			writeFail(conn, err.Error())
			return false
		}
		writeStatus(conn, protocol.StatusOK, "flushed queue", nil, 0)
		return false

	case protocol.CommandQueueProgress:
		p, err := d.q.Progress(ctx, false)
		if err != nil {
			writeFail(conn, err.Error())
			return false
		}
		writeStatus(conn, protocol.StatusOK, "", progressPayload{
			Pending: p.Pending, Active: p.Active, OK: p.OK, Skip: p.Skip, Fail: p.Fail, Total: p.Total,
		}, protocol.PayloadQueueProgress)
		return false

	case protocol.CommandQueueActiveProc:
		writeStatus(conn, protocol.StatusOK, "", map[string]int{
			"transfer": d.transfer.Alive(),
			"convert":  d.convert.Alive(),
		}, protocol.PayloadValue)
		return false

	case protocol.CommandQueueMaxProcesses:
		writeValue(conn, d.cfg.TransferMax+d.cfg.ConvertMax)
		return false

	case protocol.CommandQueueShow:
		d.handleShow(ctx, conn)
		return false

	default:
		writeFail(conn, "unknown command")
		return false
	}
}

// handlePut validates and enqueues a QUEUE_PUT request's task payload,
// echoing the task back with the outcome status, matching
// original_source/qop/daemon.py's three-way FileExistsAndShouldBeSkipped
// / FileExistsError / generic-exception dispatch.
func (d *Daemon) handlePut(ctx context.Context, conn io.Writer, cmd protocol.CommandMessage) {
	raw, err := json.Marshal(cmd.Payload)
	if err != nil {
		writeFail(conn, "decoding task payload: "+err.Error())
		return
	}
	body := json.RawMessage(raw)
	task, err := tasks.Unmarshal(raw)
	if err != nil {
		writeFail(conn, "decoding task payload: "+err.Error())
		return
	}

	if err := task.Validate(); err != nil {
		if skipErr, ok := err.(*tasks.SkipError); ok {
			writeStatus(conn, protocol.StatusSkip, skipErr.Reason, body, protocol.PayloadTask)
			return
		}
		writeStatus(conn, protocol.StatusFail, err.Error(), body, protocol.PayloadTask)
		return
	}

	if _, err := d.q.Put(ctx, task, 0, nil); err != nil {
		writeStatus(conn, protocol.StatusFail, err.Error(), body, protocol.PayloadTask)
		return
	}
	writeStatus(conn, protocol.StatusOK, "", body, protocol.PayloadTask)
}

// handleShow responds with every currently ACTIVE record.
func (d *Daemon) handleShow(ctx context.Context, conn io.Writer) {
	recs, err := d.q.Fetch(ctx, queue.StatusActive, 1000)
	if err != nil {
		writeFail(conn, err.Error())
		return
	}
	summaries := make([]taskSummary, len(recs))
	for i, r := range recs {
		summaries[i] = taskSummary{ID: r.ID, Kind: r.Task.Kind().String(), Priority: r.Priority}
	}
	writeStatus(conn, protocol.StatusOK, "", summaries, protocol.PayloadTaskList)
}

type taskSummary struct {
	ID       int64  `json:"id"`
	Kind     string `json:"kind"`
	Priority int    `json:"priority"`
}

type progressPayload struct {
	Pending int64 `json:"pending"`
	Active  int64 `json:"active"`
	OK      int64 `json:"ok"`
	Skip    int64 `json:"skip"`
	Fail    int64 `json:"fail"`
	Total   int64 `json:"total"`
}

// facts is the payload returned by DAEMON_FACTS: {port, queue.*,
// processes.*, tasks.*}, plus PID, uptime, the Go runtime version, and
// the queue file's size on disk, carried over from the original CLI's
// "daemon facts" subcommand expectations (see DESIGN.md).
type facts struct {
	Port      int             `json:"port"`
	Queue     queueFacts      `json:"queue"`
	Processes processesFacts  `json:"processes"`
	Tasks     progressPayload `json:"tasks"`
	PID       int             `json:"pid"`
	Uptime    float64         `json:"uptime_seconds"`
	GoVersion string          `json:"go_version"`
}

type queueFacts struct {
	Path      string `json:"path"`
	Persist   bool   `json:"persist"`
	SizeBytes int64  `json:"size_bytes"`
}

type processesFacts struct {
	Transfer    int `json:"transfer"`
	Convert     int `json:"convert"`
	TransferMax int `json:"transfer_max"`
	ConvertMax  int `json:"convert_max"`
}

func (d *Daemon) facts(ctx context.Context) (facts, error) {
	p, err := d.q.Progress(ctx, false)
	if err != nil {
		return facts{}, err
	}

	var size int64
	if info, err := os.Stat(d.cfg.QueuePath); err == nil {
		size = info.Size()
	}

	return facts{
		Port: d.cfg.Port,
		Queue: queueFacts{
			Path:      d.cfg.QueuePath,
			Persist:   d.cfg.Persist,
			SizeBytes: size,
		},
		Processes: processesFacts{
			Transfer:    d.transfer.Alive(),
			Convert:     d.convert.Alive(),
			TransferMax: d.cfg.TransferMax,
			ConvertMax:  d.cfg.ConvertMax,
		},
		Tasks: progressPayload{
			Pending: p.Pending, Active: p.Active, OK: p.OK, Skip: p.Skip, Fail: p.Fail, Total: p.Total,
		},
		PID:       os.Getpid(),
		Uptime:    time.Since(d.startTime).Seconds(),
		GoVersion: runtime.Version(),
	}, nil
}

func writeStatus(w io.Writer, status protocol.Status, msg string, payload any, class protocol.PayloadClass) {
	if err := protocol.WriteStatus(w, protocol.StatusMessage{
		Status: status, Msg: msg, Payload: payload, PayloadClass: class,
	}); err != nil {
		slog.Error("daemon: writing status message", "error", err)
	}
}

func writeFail(w io.Writer, msg string) {
	writeStatus(w, protocol.StatusFail, msg, nil, 0)
}

func writeValue(w io.Writer, value any) {
	writeStatus(w, protocol.StatusOK, "", map[string]any{"value": value}, protocol.PayloadValue)
}
