// Package buf is a small buffer pool: frames, buffer-fixing, LRU eviction
// and a flush list written back under the write-ahead rule.
package buf

import (
	"container/list"
	stdsync "sync"

	"github.com/pkg/errors"
)

// ErrNoFreeFrame signals that the buffer pool cannot evict a frame.
var ErrNoFreeFrame = errors.New("buffer pool: no free frame available")

// DefaultPageSize is the default frame size.
const DefaultPageSize = 16 << 10

// PoolConfig configures a buffer pool.
type PoolConfig struct {
	Capacity int
	PageSize int
	Store    PageStore
}

// PoolStats holds buffer pool counters.
type PoolStats struct {
	Capacity  int
	Size      int
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Dirty     int
	Flushed   uint64
}

// Pool is a simplified buffer pool with LRU eviction.
type Pool struct {
	mu       stdsync.Mutex
	capacity int
	pageSize int
	store    PageStore
	pages    map[PageID]*Block
	lru      *list.List
	lruElems map[*Block]*list.Element

	flushMu stdsync.Mutex
	dirty   map[*Block]struct{}

	hits    uint64
	misses  uint64
	evicts  uint64
	flushed uint64
}

// NewPool constructs a buffer pool.
func NewPool(cfg PoolConfig) *Pool {
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = DefaultPageSize
	}
	return &Pool{
		capacity: cfg.Capacity,
		pageSize: cfg.PageSize,
		store:    cfg.Store,
		pages:    make(map[PageID]*Block, cfg.Capacity),
		lru:      list.New(),
		lruElems: make(map[*Block]*list.Element, cfg.Capacity),
		dirty:    map[*Block]struct{}{},
	}
}

// PageSize returns the frame size.
func (p *Pool) PageSize() int {
	return p.pageSize
}

// Fetch returns a buffer-fixed block, reading it from the store if needed.
// The caller releases the fix with Block.Unfix, usually through the
// mini-transaction memo.
func (p *Pool) Fetch(id PageID) (*Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if block, ok := p.pages[id]; ok {
		block.Fix()
		p.lru.MoveToFront(p.lruElems[block])
		p.hits++
		return block, nil
	}
	if len(p.pages) >= p.capacity && !p.evictOneLocked() {
		return nil, errors.Wrapf(ErrNoFreeFrame, "fetch %s", id)
	}
	block := &Block{id: id, frame: make([]byte, p.pageSize), pool: p}
	found := false
	if p.store != nil {
		var err error
		if found, err = p.store.ReadPage(id, block.frame); err != nil {
			return nil, errors.Wrapf(err, "read %s", id)
		}
	}
	if !found {
		block.initHeader()
	}
	block.Fix()
	p.pages[id] = block
	p.lruElems[block] = p.lru.PushFront(block)
	p.misses++
	return block, nil
}

// Lookup returns the cached block for id without fixing it.
func (p *Pool) Lookup(id PageID) *Block {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pages[id]
}

// Stats returns the current buffer pool stats.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	stats := PoolStats{
		Capacity:  p.capacity,
		Size:      len(p.pages),
		Hits:      p.hits,
		Misses:    p.misses,
		Evictions: p.evicts,
	}
	p.mu.Unlock()
	p.flushMu.Lock()
	stats.Dirty = len(p.dirty)
	stats.Flushed = p.flushed
	p.flushMu.Unlock()
	return stats
}

func (p *Pool) evictOneLocked() bool {
	for e := p.lru.Back(); e != nil; e = e.Prev() {
		block := e.Value.(*Block)
		if block.FixCount() > 0 || block.IsDirty() {
			continue
		}
		delete(p.pages, block.id)
		delete(p.lruElems, block)
		p.lru.Remove(e)
		block.generation.Add(1)
		p.evicts++
		return true
	}
	return false
}
