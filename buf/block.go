package buf

import (
	"fmt"
	stdsync "sync"
	"sync/atomic"

	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/mach"
	ibsync "github.com/wilhasse/innodb-mtr/sync"
)

// PageID identifies a page in a tablespace.
type PageID struct {
	Space  uint32
	PageNo uint32
}

func (id PageID) String() string {
	return fmt.Sprintf("[%d:%d]", id.Space, id.PageNo)
}

// FlushObserver is notified when a page dirtied under it has been written
// back.
type FlushObserver interface {
	Notify(id PageID)
}

// Block is a buffer pool frame together with its latch and modification
// bookkeeping. A *Block handed out by Fetch is only valid while it is
// buffer-fixed; Generation changes when the frame is evicted.
type Block struct {
	id    PageID
	frame []byte
	latch ibsync.RWLatch
	pool  *Pool

	fixCount   atomic.Int32
	generation atomic.Uint64

	mu       stdsync.Mutex
	oldest   uint64
	newest   uint64
	observer FlushObserver
}

// ID returns the page id.
func (b *Block) ID() PageID {
	return b.id
}

// Frame returns the page frame.
func (b *Block) Frame() []byte {
	return b.frame
}

// Latch returns the page latch.
func (b *Block) Latch() *ibsync.RWLatch {
	return &b.latch
}

// Fix buffer-fixes the block so it cannot be evicted.
func (b *Block) Fix() {
	b.fixCount.Add(1)
}

// Unfix releases one buffer-fix.
func (b *Block) Unfix() {
	if b.fixCount.Add(-1) < 0 {
		panic(fmt.Sprintf("buf: unfix of unfixed block %s", b.id))
	}
}

// FixCount returns the number of buffer-fixes.
func (b *Block) FixCount() int {
	return int(b.fixCount.Load())
}

// Generation identifies the current incarnation of the frame.
func (b *Block) Generation() uint64 {
	return b.generation.Load()
}

// IsDirty reports whether the frame differs from its on-disk image.
func (b *Block) IsDirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.oldest != 0
}

// OldestModification returns the start LSN of the first change not yet
// written back, or 0 for a clean block.
func (b *Block) OldestModification() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.oldest
}

// NewestModification returns the end LSN of the latest change.
func (b *Block) NewestModification() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newest
}

// NoteModification stamps a change covering [start, end). A clean block
// becomes dirty and joins the flush list; the return value reports that
// transition.
func (b *Block) NoteModification(start, end uint64) bool {
	b.mu.Lock()
	if end > b.newest {
		b.newest = end
	}
	madeDirty := b.oldest == 0
	if madeDirty {
		b.oldest = start
	}
	b.mu.Unlock()
	if madeDirty && b.pool != nil {
		b.pool.addDirty(b)
	}
	return madeDirty
}

// SetFlushObserver sets the observer notified when the block is written.
func (b *Block) SetFlushObserver(o FlushObserver) {
	b.mu.Lock()
	b.observer = o
	b.mu.Unlock()
}

// FlushObserver returns the observer set by the last modification.
func (b *Block) FlushObserver() FlushObserver {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observer
}

// markClean is called after the frame has been written back.
func (b *Block) markClean() (FlushObserver, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obs := b.observer
	b.oldest = 0
	b.observer = nil
	return obs, b.newest
}

// initHeader writes the page identity into the frame header.
func (b *Block) initHeader() {
	if len(b.frame) < fil.PageData {
		return
	}
	mach.WriteTo4(b.frame[fil.PageOffset:], b.id.PageNo)
	mach.WriteTo4(b.frame[fil.PageArchLogNoOrSpaceID:], b.id.Space)
}
