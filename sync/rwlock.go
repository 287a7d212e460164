// Package sync provides the shared/exclusive latches protecting pages,
// indexes and tablespaces.
package sync

import (
	stdsync "sync"
	"sync/atomic"
)

// LatchMode is the mode a latch is held in.
type LatchMode int

const (
	LatchS LatchMode = iota + 1
	LatchSX
	LatchX
)

func (m LatchMode) String() string {
	switch m {
	case LatchS:
		return "S"
	case LatchSX:
		return "SX"
	case LatchX:
		return "X"
	}
	return "?"
}

// RWLatch is a reader/writer latch with an intermediate SX mode. SX is
// compatible with S but not with another SX or X; X excludes everything.
// Waiters block indefinitely; callers keep a global acquisition order.
type RWLatch struct {
	mu      stdsync.Mutex
	cond    *stdsync.Cond
	readers int
	sx      bool
	x       bool
	waitX   int

	lastWriter Location

	sCount  int64
	sxCount int64
	xCount  int64
}

func (l *RWLatch) init() {
	if l.cond == nil {
		l.cond = stdsync.NewCond(&l.mu)
	}
}

// SLock acquires the latch in shared mode.
func (l *RWLatch) SLock(loc Location) {
	l.mu.Lock()
	l.init()
	for l.x || l.waitX > 0 {
		l.cond.Wait()
	}
	l.readers++
	l.mu.Unlock()
	atomic.AddInt64(&l.sCount, 1)
}

// SUnlock releases a shared hold.
func (l *RWLatch) SUnlock() {
	l.mu.Lock()
	if l.readers <= 0 {
		l.mu.Unlock()
		panic("sync: SUnlock of latch not held in S mode")
	}
	l.readers--
	if l.readers == 0 {
		l.cond.Broadcast()
	}
	l.mu.Unlock()
}

// SXLock acquires the latch in shared-exclusive mode.
func (l *RWLatch) SXLock(loc Location) {
	l.mu.Lock()
	l.init()
	for l.x || l.sx {
		l.cond.Wait()
	}
	l.sx = true
	l.lastWriter = loc
	l.mu.Unlock()
	atomic.AddInt64(&l.sxCount, 1)
}

// SXUnlock releases a shared-exclusive hold.
func (l *RWLatch) SXUnlock() {
	l.mu.Lock()
	if !l.sx {
		l.mu.Unlock()
		panic("sync: SXUnlock of latch not held in SX mode")
	}
	l.sx = false
	l.cond.Broadcast()
	l.mu.Unlock()
}

// XLock acquires the latch in exclusive mode. Pending X requests block new
// S requests so writers are not starved.
func (l *RWLatch) XLock(loc Location) {
	l.mu.Lock()
	l.init()
	l.waitX++
	for l.x || l.sx || l.readers > 0 {
		l.cond.Wait()
	}
	l.waitX--
	l.x = true
	l.lastWriter = loc
	l.mu.Unlock()
	atomic.AddInt64(&l.xCount, 1)
}

// XUnlock releases an exclusive hold.
func (l *RWLatch) XUnlock() {
	l.mu.Lock()
	if !l.x {
		l.mu.Unlock()
		panic("sync: XUnlock of latch not held in X mode")
	}
	l.x = false
	l.cond.Broadcast()
	l.mu.Unlock()
}

// Lock acquires the latch in the given mode.
func (l *RWLatch) Lock(mode LatchMode, loc Location) {
	switch mode {
	case LatchS:
		l.SLock(loc)
	case LatchSX:
		l.SXLock(loc)
	case LatchX:
		l.XLock(loc)
	default:
		panic("sync: invalid latch mode")
	}
}

// Unlock releases a hold in the given mode.
func (l *RWLatch) Unlock(mode LatchMode) {
	switch mode {
	case LatchS:
		l.SUnlock()
	case LatchSX:
		l.SXUnlock()
	case LatchX:
		l.XUnlock()
	default:
		panic("sync: invalid latch mode")
	}
}

// TryXLock acquires the latch exclusively only if it is free.
func (l *RWLatch) TryXLock(loc Location) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.init()
	if l.x || l.sx || l.readers > 0 {
		return false
	}
	l.x = true
	l.lastWriter = loc
	atomic.AddInt64(&l.xCount, 1)
	return true
}

// ReaderCount reports the current number of shared holders.
func (l *RWLatch) ReaderCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readers
}

// IsXLocked reports whether the latch is held exclusively.
func (l *RWLatch) IsXLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.x
}

// IsSXLocked reports whether the latch is held in SX mode.
func (l *RWLatch) IsSXLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sx
}

// IsFree reports whether nobody holds the latch.
func (l *RWLatch) IsFree() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.x && !l.sx && l.readers == 0
}

// LastWriter returns where the latch was last acquired in X or SX mode.
func (l *RWLatch) LastWriter() Location {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastWriter
}

// Stats returns the number of S, SX and X acquisitions so far.
func (l *RWLatch) Stats() (s, sx, x int64) {
	return atomic.LoadInt64(&l.sCount), atomic.LoadInt64(&l.sxCount), atomic.LoadInt64(&l.xCount)
}
