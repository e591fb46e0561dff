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

// Package daemon owns the listener, the queue, and the two worker pools
// that make up a running qop instance.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"github.com/s-fleck/qop/journal"
	"github.com/s-fleck/qop/queue"
	"github.com/s-fleck/qop/workers"
)

// State is one stage of the daemon's lifecycle state machine.
// Transitions only move forward; Close is idempotent from any state.
type State int

const (
	StateConstructed State = iota
	StateBound
	StateListening
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "constructed"
	case StateBound:
		return "bound"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// DefaultPort is the daemon's default listening port.
const DefaultPort = 9393

// DefaultMaxConnections bounds how many simultaneous client connections
// the listener accepts, via golang.org/x/net/netutil.LimitListener.
const DefaultMaxConnections = 64

// Config configures a new Daemon.
type Config struct {
	Port           int
	QueuePath      string
	Persist        bool
	MaxConnections int
	TransferMax    int
	ConvertMax     int
	StagingDir     string
	// JournalPath is where completed-task audit records are written. If
	// empty, journaling is disabled.
	JournalPath string
}

// Daemon is a single running qop instance: one listener, one Queue, and
// the transfer/convert worker pools that drain it.
type Daemon struct {
	cfg       Config
	q         *queue.Queue
	journal   *journal.Journal
	transfer  *workers.Pool
	convert   *workers.Pool
	startTime time.Time

	mu       sync.Mutex
	state    State
	listener net.Listener
}

// New constructs a Daemon against the queue store at cfg.QueuePath,
// triggering the store's ACTIVE->PENDING restart recovery.
// Worker pools are created idle; call Listen to bind and start serving,
// which also brings the pools up to their configured maximums.
func New(cfg Config) (*Daemon, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.TransferMax == 0 {
		cfg.TransferMax = 1
	}
	if cfg.ConvertMax == 0 {
		cfg.ConvertMax = workers.DefaultConvertMax()
	}

	q, err := queue.Open(context.Background(), cfg.QueuePath, cfg.TransferMax+cfg.ConvertMax+2)
	if err != nil {
		return nil, fmt.Errorf("daemon: opening queue: %w", err)
	}

	var j *journal.Journal
	if cfg.JournalPath != "" {
		j, err = journal.Open(cfg.JournalPath)
		if err != nil {
			q.Close()
			return nil, fmt.Errorf("daemon: opening journal: %w", err)
		}
	}

	d := &Daemon{cfg: cfg, q: q, journal: j, state: StateConstructed}
	d.transfer = workers.NewPool(workers.ClassTransfer, q, nil, j)
	d.convert = workers.NewPool(workers.ClassConvert, q, d.cleanStaging, j)
	return d, nil
}

func (d *Daemon) cleanStaging() error {
	if d.cfg.StagingDir == "" {
		return nil
	}
	if err := os.RemoveAll(d.cfg.StagingDir); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *Daemon) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

func (d *Daemon) getState() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// reuseAddrControl applies SO_REUSEADDR to the listening socket so a
// daemon restart does not collide with a socket still in TIME_WAIT.
func reuseAddrControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return sockErr
}

// Listen binds the listener, starts both worker pools at their
// configured maximums, and runs the accept loop until a DAEMON_STOP
// command is handled or ctx is canceled. It returns nil on a clean stop.
func (d *Daemon) Listen(ctx context.Context) error {
	d.mu.Lock()
	if d.state != StateConstructed {
		d.mu.Unlock()
		return fmt.Errorf("daemon: Listen called from state %s", d.state)
	}
	d.mu.Unlock()

	lc := net.ListenConfig{Control: reuseAddrControl}
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", d.cfg.Port))
	if err != nil {
		return fmt.Errorf("daemon: binding port %d: %w", d.cfg.Port, err)
	}
	listener = netutil.LimitListener(listener, d.cfg.MaxConnections)

	d.mu.Lock()
	d.listener = listener
	d.state = StateBound
	d.startTime = time.Now()
	d.mu.Unlock()

	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			listener.Close()
		case <-stopWatch:
		}
	}()

	d.transfer.Rebalance(ctx, d.cfg.TransferMax)
	d.convert.Rebalance(ctx, d.cfg.ConvertMax)

	d.setState(StateListening)
	slog.Info("daemon: listening", "port", d.cfg.Port, "queue", d.cfg.QueuePath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if d.getState() == StateStopping || d.getState() == StateClosed {
				return nil
			}
			if ctx.Err() != nil {
				d.shutdown(ctx)
				return nil
			}
			return fmt.Errorf("daemon: accept: %w", err)
		}

		stop := d.handleConn(ctx, conn)
		if stop {
			d.shutdown(ctx)
			return nil
		}
	}
}

// handleConn processes exactly one request on conn: read one
// CommandMessage, dispatch it, write one StatusMessage, close the
// connection. It reports true if the command was DAEMON_STOP, telling
// Listen to shut down after this response is sent.
func (d *Daemon) handleConn(ctx context.Context, conn net.Conn) (stopRequested bool) {
	defer conn.Close()
	return d.dispatch(ctx, conn)
}

// shutdown stops both worker pools, closes the listener, and -- unless
// the queue was configured to persist -- removes the store file.
func (d *Daemon) shutdown(ctx context.Context) {
	d.setState(StateStopping)
	d.transfer.StopAll()
	d.convert.StopAll()

	d.mu.Lock()
	listener := d.listener
	d.mu.Unlock()
	if listener != nil {
		listener.Close()
	}

	if err := d.q.Close(); err != nil {
		slog.Warn("daemon: closing queue", "error", err)
	}
	if d.journal != nil {
		if err := d.journal.Close(); err != nil {
			slog.Warn("daemon: closing journal", "error", err)
		}
	}
	if !d.cfg.Persist {
		if err := os.Remove(d.cfg.QueuePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("daemon: removing non-persistent queue file", "path", d.cfg.QueuePath, "error", err)
		}
	}

	d.setState(StateClosed)
	slog.Info("daemon: stopped")
}

// Close shuts the daemon down immediately, as if a DAEMON_STOP request
// had been received. It is idempotent.
func (d *Daemon) Close(ctx context.Context) {
	if d.getState() == StateClosed {
		return
	}
	d.shutdown(ctx)
}
