// Package log is the process-wide redo log: a strictly ordered append
// target shared by all committing mini-transactions.
//
// Appending is a two-phase protocol. Reserve hands out a disjoint LSN range
// under a short critical section that does no copying; the caller fills the
// returned region without any lock and publishes it with Finish. Regions
// become readable, flushable and durable strictly in LSN order.
package log

import (
	stdsync "sync"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/pkg/errors"
	"github.com/wilhasse/innodb-mtr/ut"
)

// ErrClosed is returned by operations on a closed log.
var ErrClosed = errors.New("log: closed")

// Entry holds the bytes appended by one reservation.
type Entry struct {
	StartLSN uint64
	EndLSN   uint64
	Data     []byte
}

// Reservation is an exclusively owned region of the log address space.
type Reservation struct {
	StartLSN uint64
	EndLSN   uint64
	buf      []byte
}

// Buffer returns the region to be filled before Finish.
func (r *Reservation) Buffer() []byte {
	return r.buf
}

// Len returns the number of reserved bytes.
func (r *Reservation) Len() int {
	return len(r.buf)
}

// Stats holds log counters.
type Stats struct {
	Reservations uint64
	BytesWritten uint64
	Flushes      uint64
	Checkpoints  uint64
}

// Log holds redo log state.
type Log struct {
	// mu is the log serialization primitive. It guards lsn only.
	mu  stdsync.Mutex
	lsn uint64

	readyMu    stdsync.Mutex
	readyCond  *stdsync.Cond
	ready      uint64
	pending    map[uint64]*Reservation
	entries    []Entry
	checkpoint uint64
	closed     bool
	stats      Stats

	// flushOrder is held shared by commits that make pages dirty, from
	// reservation until the pages are stamped, and exclusively by a
	// checkpoint reading the oldest modification.
	flushOrder stdsync.RWMutex

	// checkpointMu serializes checkpoints of this log.
	checkpointMu stdsync.Mutex

	flushMu stdsync.Mutex
	flushed uint64
	written uint64
	sink    *FileSink

	startLSN    uint64
	syncOnFlush bool
	logger      *tools.Nixomosetools_logger
}

// Open creates a redo log.
func Open(cfg Config) (*Log, error) {
	cfg = normalizeConfig(cfg)
	l := &Log{
		lsn:         cfg.StartLSN,
		ready:       cfg.StartLSN,
		pending:     map[uint64]*Reservation{},
		checkpoint:  cfg.StartLSN,
		flushed:     cfg.StartLSN,
		written:     cfg.StartLSN,
		startLSN:    cfg.StartLSN,
		syncOnFlush: cfg.SyncOnFlush,
		logger:      cfg.Logger,
	}
	l.readyCond = stdsync.NewCond(&l.readyMu)
	if l.logger == nil {
		l.logger = ut.Logger()
	}
	if cfg.FilePath != "" {
		sink, err := OpenFileSink(cfg.FilePath, cfg.StartLSN, cfg.DirectIO)
		if err != nil {
			return nil, errors.Wrap(err, "log: open")
		}
		l.sink = sink
	}
	l.logger.Debug("redo log opened at lsn ", cfg.StartLSN, " file ", cfg.FilePath)
	return l, nil
}

// Close flushes the published log and closes the file sink. Reservations
// still in flight are not waited for.
func (l *Log) Close() error {
	if _, err := l.FlushUpTo(l.ReadyLSN()); err != nil {
		return err
	}
	l.readyMu.Lock()
	l.closed = true
	l.readyCond.Broadcast()
	l.readyMu.Unlock()
	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	if l.sink == nil {
		return nil
	}
	err := l.sink.Close()
	l.sink = nil
	return err
}

// Acquire locks the log serialization primitive.
func (l *Log) Acquire() {
	l.mu.Lock()
}

// Release unlocks the log serialization primitive.
func (l *Log) Release() {
	l.mu.Unlock()
}

// EnterFlushOrder is called by a commit that will add pages to the flush
// list, before it reserves.
func (l *Log) EnterFlushOrder() {
	l.flushOrder.RLock()
}

// ExitFlushOrder is called once the pages are stamped.
func (l *Log) ExitFlushOrder() {
	l.flushOrder.RUnlock()
}

// LockFlushOrder waits until every commit between reservation and page
// stamping is done and blocks new ones.
func (l *Log) LockFlushOrder() {
	l.flushOrder.Lock()
}

// UnlockFlushOrder releases LockFlushOrder.
func (l *Log) UnlockFlushOrder() {
	l.flushOrder.Unlock()
}

// LockCheckpoint serializes checkpoints taken on this log.
func (l *Log) LockCheckpoint() {
	l.checkpointMu.Lock()
}

// UnlockCheckpoint releases LockCheckpoint.
func (l *Log) UnlockCheckpoint() {
	l.checkpointMu.Unlock()
}

// Reserve claims n bytes of the log address space. The returned region is
// owned by the caller until Finish.
func (l *Log) Reserve(n int) *Reservation {
	ut.Assert(n > 0, "log reservation of %d bytes", n)
	buf := make([]byte, n)
	l.mu.Lock()
	res := l.reserveLocked(buf)
	l.mu.Unlock()
	return res
}

// ReserveLocked is Reserve for callers that already hold Acquire.
func (l *Log) ReserveLocked(n int) *Reservation {
	ut.Assert(n > 0, "log reservation of %d bytes", n)
	return l.reserveLocked(make([]byte, n))
}

func (l *Log) reserveLocked(buf []byte) *Reservation {
	start := l.lsn
	l.lsn += uint64(len(buf))
	return &Reservation{StartLSN: start, EndLSN: l.lsn, buf: buf}
}

// Finish publishes a filled reservation. It needs no lock on the
// serialization primitive and may be called while holding it.
func (l *Log) Finish(res *Reservation) {
	ut.Assert(res != nil && res.buf != nil, "finish of empty reservation")
	l.readyMu.Lock()
	defer l.readyMu.Unlock()
	ut.Assert(res.StartLSN >= l.ready, "reservation %d finished twice", res.StartLSN)
	_, dup := l.pending[res.StartLSN]
	ut.Assert(!dup, "reservation %d finished twice", res.StartLSN)
	l.pending[res.StartLSN] = res
	l.stats.Reservations++
	for {
		next, ok := l.pending[l.ready]
		if !ok {
			break
		}
		delete(l.pending, l.ready)
		l.entries = append(l.entries, Entry{StartLSN: next.StartLSN, EndLSN: next.EndLSN, Data: next.buf})
		l.stats.BytesWritten += uint64(len(next.buf))
		next.buf = nil
		l.ready = next.EndLSN
	}
	l.readyCond.Broadcast()
}

// WriteLocked appends data from a context outside a mini-transaction, such
// as a checkpoint marker. The caller must hold Acquire.
func (l *Log) WriteLocked(data []byte) (startLSN, endLSN uint64) {
	res := l.ReserveLocked(len(data))
	copy(res.Buffer(), data)
	l.Finish(res)
	return res.StartLSN, res.EndLSN
}

// CurrentLSN returns the end of the reserved address space.
func (l *Log) CurrentLSN() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lsn
}

// ReadyLSN returns the end of the contiguous published prefix.
func (l *Log) ReadyLSN() uint64 {
	l.readyMu.Lock()
	defer l.readyMu.Unlock()
	return l.ready
}

// StartLSN returns the first LSN of the log.
func (l *Log) StartLSN() uint64 {
	return l.startLSN
}

// Entries returns a snapshot of the published, not yet truncated entries.
func (l *Log) Entries() []Entry {
	l.readyMu.Lock()
	defer l.readyMu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ReadFrom returns the published entries that end after lsn.
func (l *Log) ReadFrom(lsn uint64) []Entry {
	l.readyMu.Lock()
	defer l.readyMu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.EndLSN > lsn {
			out = append(out, e)
		}
	}
	return out
}

// WaitReady blocks until every reservation below lsn has been published.
func (l *Log) WaitReady(lsn uint64) error {
	l.readyMu.Lock()
	defer l.readyMu.Unlock()
	for l.ready < lsn {
		if l.closed {
			return ErrClosed
		}
		l.readyCond.Wait()
	}
	return nil
}

// Stats returns the log counters.
func (l *Log) Stats() Stats {
	l.readyMu.Lock()
	defer l.readyMu.Unlock()
	return l.stats
}
