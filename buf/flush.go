package buf

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/mach"
	ibsync "github.com/wilhasse/innodb-mtr/sync"
)

func (p *Pool) addDirty(b *Block) {
	p.flushMu.Lock()
	p.dirty[b] = struct{}{}
	p.flushMu.Unlock()
}

// OldestModification returns the smallest oldest-modification LSN over the
// flush list, or 0 if no page is dirty.
func (p *Pool) OldestModification() uint64 {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()
	var oldest uint64
	for b := range p.dirty {
		lsn := b.OldestModification()
		if lsn != 0 && (oldest == 0 || lsn < oldest) {
			oldest = lsn
		}
	}
	return oldest
}

// DirtyPages returns the ids on the flush list in oldest-modification order.
func (p *Pool) DirtyPages() []PageID {
	blocks := p.flushCandidates()
	out := make([]PageID, len(blocks))
	for i, b := range blocks {
		out[i] = b.id
	}
	return out
}

func (p *Pool) flushCandidates() []*Block {
	p.flushMu.Lock()
	blocks := make([]*Block, 0, len(p.dirty))
	for b := range p.dirty {
		blocks = append(blocks, b)
	}
	p.flushMu.Unlock()
	sort.Slice(blocks, func(i, j int) bool {
		oi, oj := blocks[i].OldestModification(), blocks[j].OldestModification()
		if oi != oj {
			return oi < oj
		}
		return blocks[i].id.Space < blocks[j].id.Space ||
			(blocks[i].id.Space == blocks[j].id.Space && blocks[i].id.PageNo < blocks[j].id.PageNo)
	})
	return blocks
}

// FlushList writes back up to limit dirty pages (all if limit <= 0) in
// oldest-modification order. A page is only written once its newest
// modification is covered by durableLSN; later pages are skipped.
func (p *Pool) FlushList(limit int, durableLSN uint64) (int, error) {
	flushed := 0
	for _, b := range p.flushCandidates() {
		if limit > 0 && flushed >= limit {
			break
		}
		ok, err := p.flushBlock(b, durableLSN)
		if err != nil {
			return flushed, err
		}
		if ok {
			flushed++
		}
	}
	return flushed, nil
}

// FlushPage writes back a single page if it is dirty and durable.
func (p *Pool) FlushPage(id PageID, durableLSN uint64) (bool, error) {
	b := p.Lookup(id)
	if b == nil {
		return false, nil
	}
	return p.flushBlock(b, durableLSN)
}

func (p *Pool) flushBlock(b *Block, durableLSN uint64) (bool, error) {
	// SX keeps writers out while the frame is copied; readers may proceed.
	b.latch.SXLock(ibsync.Here())
	defer b.latch.SXUnlock()
	if !b.IsDirty() || b.NewestModification() > durableLSN {
		return false, nil
	}
	image := append([]byte(nil), b.frame...)
	if len(image) >= fil.PageLSN+8 {
		mach.WriteTo8(image[fil.PageLSN:], b.NewestModification())
	}
	if p.store != nil {
		if err := p.store.WritePage(b.id, image); err != nil {
			return false, errors.Wrapf(err, "flush %s", b.id)
		}
	}
	obs, _ := b.markClean()
	p.flushMu.Lock()
	delete(p.dirty, b)
	p.flushed++
	p.flushMu.Unlock()
	if obs != nil {
		obs.Notify(b.id)
	}
	return true, nil
}
