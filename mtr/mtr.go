// Package mtr implements mini-transactions: short atomic units of page
// modification that hold page latches, accumulate redo records and, at
// commit, append those records to the redo log as one indivisible group.
package mtr

import (
	"fmt"
	"unsafe"

	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/log"
	ibsync "github.com/wilhasse/innodb-mtr/sync"
	"github.com/wilhasse/innodb-mtr/ut"
)

// Mtr is a mini-transaction. It is owned by one goroutine from Start to
// Commit.
type Mtr struct {
	memo Memo
	log  *LogBuffer

	redo   *log.Log
	spaces *fil.System

	logMode LogMode
	state   State

	// modifications is set once any page was changed.
	modifications bool
	// madeDirty is set when a page that was clean got write-latched or
	// modified; committing will add it to the flush list.
	madeDirty  bool
	insideIbuf bool

	// userSpace is the one non-system tablespace modified in ALL mode.
	userSpace     *fil.Space
	flushObserver buf.FlushObserver

	commitLSN uint64
}

// New creates an inactive mini-transaction that commits into redo. spaces
// may be nil when no FILE_NAME bookkeeping is wanted. redo may be nil for
// mini-transactions that only ever run in LogNone mode.
func New(redo *log.Log, spaces *fil.System) *Mtr {
	return &Mtr{
		log:     NewLogBuffer(),
		redo:    redo,
		spaces:  spaces,
		logMode: LogAll,
	}
}

// Start begins the mini-transaction. A committed one may be started again.
func (m *Mtr) Start() {
	ut.Assert(m.state == StateInactive || m.state == StateCommitted,
		"start of %s mini-transaction", m.state)
	m.memo.slots = m.memo.slots[:0]
	m.log.Reset()
	m.logMode = LogAll
	m.modifications = false
	m.madeDirty = false
	m.insideIbuf = false
	m.userSpace = nil
	m.flushObserver = nil
	m.commitLSN = 0
	m.state = StateActive
}

func (m *Mtr) assertActive(op string) {
	ut.Assert(m.state == StateActive, "%s on %s mini-transaction", op, m.state)
}

// State returns the lifecycle state.
func (m *Mtr) State() State {
	return m.state
}

// IsActive reports whether the mini-transaction has started and not yet
// begun committing.
func (m *Mtr) IsActive() bool {
	return m.state == StateActive
}

// Savepoint returns the current memo size, to be used with
// RollbackToSavepoint and the *AtSavepoint methods.
func (m *Mtr) Savepoint() int {
	m.assertActive("savepoint")
	return m.memo.Len()
}

// RollbackToSavepoint releases, newest first, everything acquired after
// savepoint. Pages modified since then must not be released this way.
func (m *Mtr) RollbackToSavepoint(savepoint int) {
	m.assertActive("rollback to savepoint")
	ut.Assert(savepoint <= m.memo.Len(), "savepoint %d past memo size %d", savepoint, m.memo.Len())
	for i := savepoint; i < m.memo.Len(); i++ {
		slot := m.memo.Slot(i)
		ut.Assert(slot.Released() || slot.Type != MemoModify,
			"modified page %s released before commit", m.slotName(slot))
	}
	m.memo.ReleaseFrom(savepoint)
}

// SLock takes an S-latch and records it.
func (m *Mtr) SLock(l Latch, loc ibsync.Location) {
	m.assertActive("s-lock")
	l.SLock(loc)
	m.memo.Push(l, MemoSLock)
}

// SXLock takes an SX-latch and records it.
func (m *Mtr) SXLock(l Latch, loc ibsync.Location) {
	m.assertActive("sx-lock")
	l.SXLock(loc)
	m.memo.Push(l, MemoSXLock)
}

// XLock takes an X-latch and records it.
func (m *Mtr) XLock(l Latch, loc ibsync.Location) {
	m.assertActive("x-lock")
	l.XLock(loc)
	m.memo.Push(l, MemoXLock)
}

// SLockSpace S-latches a tablespace.
func (m *Mtr) SLockSpace(space *fil.Space, loc ibsync.Location) {
	m.assertActive("s-lock space")
	space.Latch.SLock(loc)
	m.memo.Push(space, MemoSpaceSLock)
}

// XLockSpace X-latches a tablespace.
func (m *Mtr) XLockSpace(space *fil.Space, loc ibsync.Location) {
	m.assertActive("x-lock space")
	space.Latch.XLock(loc)
	m.memo.Push(space, MemoSpaceXLock)
}

// XLockSpaceID X-latches the tablespace with the given id, which must exist.
func (m *Mtr) XLockSpaceID(id uint32, loc ibsync.Location) *fil.Space {
	ut.Assert(m.spaces != nil, "x-lock of space %d without a tablespace registry", id)
	space, err := m.spaces.Get(id)
	ut.Assert(err == nil, "x-lock of space %d: %v", id, err)
	m.XLockSpace(space, loc)
	return space
}

// LatchPage latches p in the mode given by typ and records it. The caller
// hands over one buffer-fix on p, which is dropped when the slot is
// released. MemoBufFix records the fix without latching.
func (m *Mtr) LatchPage(p Page, typ MemoType, loc ibsync.Location) {
	m.assertActive("page latch")
	switch typ {
	case MemoBufFix:
	case MemoPageSFix:
		p.Latch().SLock(loc)
	case MemoPageSXFix:
		p.Latch().SXLock(loc)
	case MemoPageXFix:
		p.Latch().XLock(loc)
	default:
		ut.Fatalf("%s is not a page fix", typ)
	}
	m.MemoPush(p, typ)
}

// GetPage fetches a page from pool and latches it.
func (m *Mtr) GetPage(pool *buf.Pool, id buf.PageID, typ MemoType, loc ibsync.Location) (*buf.Block, error) {
	block, err := pool.Fetch(id)
	if err != nil {
		return nil, err
	}
	m.LatchPage(block, typ, loc)
	return block, nil
}

// MemoPush records an object the caller has already latched or fixed.
func (m *Mtr) MemoPush(object any, typ MemoType) {
	m.assertActive("memo push")
	if typ&(MemoPageWriteMask|MemoModify) != 0 && !m.madeDirty {
		if p, ok := object.(Page); ok {
			m.madeDirty = IsBlockDirtied(p)
		}
	}
	m.memo.Push(object, typ)
}

// IsBlockDirtied reports whether modifying p would add it to the flush
// list.
func IsBlockDirtied(p Page) bool {
	return !p.IsDirty()
}

// MemoRelease releases the most recent slot holding object with type typ
// ahead of commit. It returns false if there is none.
func (m *Mtr) MemoRelease(object any, typ MemoType) bool {
	m.assertActive("memo release")
	ut.Assert(typ != MemoModify, "modification markers are only released by commit")
	if p, ok := object.(Page); ok && typ&MemoPageWriteMask != 0 {
		ut.Assert(!m.pageModified(p), "modified page %s released before commit", p.ID())
	}
	return m.memo.Release(object, typ)
}

// ReleasePage releases the page whose frame contains ptr and that is held
// with type typ.
func (m *Mtr) ReleasePage(ptr []byte, typ MemoType) {
	m.assertActive("page release")
	i := m.findFrame(ptr, typ)
	ut.Assert(i >= 0, "no %s page holds the given pointer", typ)
	slot := m.memo.Slot(i)
	p := slot.Object.(Page)
	ut.Assert(typ&MemoPageWriteMask == 0 || !m.pageModified(p),
		"modified page %s released before commit", p.ID())
	releaseSlot(slot)
}

// ReleaseSLatchAtSavepoint releases the S-latch recorded at savepoint.
func (m *Mtr) ReleaseSLatchAtSavepoint(savepoint int, l Latch) {
	m.assertActive("s-latch release")
	slot := m.slotAt(savepoint)
	ut.Assert(slot.Object == l && slot.Type == MemoSLock,
		"slot %d holds %s, not an s-latch on the given latch", savepoint, slot.Type)
	releaseSlot(slot)
}

// ReleaseBlockAtSavepoint releases the page recorded at savepoint.
func (m *Mtr) ReleaseBlockAtSavepoint(savepoint int, p Page) {
	m.assertActive("block release")
	slot := m.slotAt(savepoint)
	ut.Assert(slot.Object == p && slot.Type&MemoPageFixMask != 0,
		"slot %d does not hold page %s", savepoint, p.ID())
	ut.Assert(slot.Type&MemoPageWriteMask == 0 || !m.pageModified(p),
		"modified page %s released before commit", p.ID())
	releaseSlot(slot)
}

// SXLatchAtSavepoint upgrades the buffer-fix recorded at savepoint to an
// SX-latch.
func (m *Mtr) SXLatchAtSavepoint(savepoint int, p Page) {
	m.latchAtSavepoint(savepoint, p, MemoPageSXFix)
}

// XLatchAtSavepoint upgrades the buffer-fix recorded at savepoint to an
// X-latch.
func (m *Mtr) XLatchAtSavepoint(savepoint int, p Page) {
	m.latchAtSavepoint(savepoint, p, MemoPageXFix)
}

func (m *Mtr) latchAtSavepoint(savepoint int, p Page, typ MemoType) {
	m.assertActive("latch at savepoint")
	slot := m.slotAt(savepoint)
	ut.Assert(slot.Object == p && slot.Type == MemoBufFix,
		"slot %d is not an unlatched fix of page %s", savepoint, p.ID())
	loc := ibsync.Here()
	if typ == MemoPageXFix {
		p.Latch().XLock(loc)
	} else {
		p.Latch().SXLock(loc)
	}
	if !m.madeDirty {
		m.madeDirty = IsBlockDirtied(p)
	}
	slot.Type = typ
}

func (m *Mtr) slotName(slot *MemoSlot) string {
	switch o := slot.Object.(type) {
	case nil:
		return "released"
	case Page:
		return o.ID().String()
	case *fil.Space:
		return fmt.Sprintf("space %d", o.ID)
	default:
		return fmt.Sprintf("%T", o)
	}
}

func (m *Mtr) slotAt(savepoint int) *MemoSlot {
	ut.Assert(savepoint >= 0 && savepoint < m.memo.Len(),
		"savepoint %d outside memo of %d slots", savepoint, m.memo.Len())
	slot := m.memo.Slot(savepoint)
	ut.Assert(!slot.Released(), "slot %d already released", savepoint)
	return slot
}

// MemoContains reports whether object is held with type typ.
func (m *Mtr) MemoContains(object any, typ MemoType) bool {
	return m.memo.Find(typ, func(o any) bool { return o == object }) >= 0
}

// MemoContainsFlagged reports whether object is held with any type in flags.
func (m *Mtr) MemoContainsFlagged(object any, flags MemoType) bool {
	return m.memo.Find(flags, func(o any) bool { return o == object }) >= 0
}

func (m *Mtr) findFrame(ptr []byte, flags MemoType) int {
	return m.memo.Find(flags&MemoPageFixMask, func(o any) bool {
		p, ok := o.(Page)
		return ok && frameContains(p.Frame(), ptr)
	})
}

func frameContains(frame, ptr []byte) bool {
	if cap(frame) == 0 || cap(ptr) == 0 {
		return false
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(frame)))
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(ptr)))
	return addr >= base && addr < base+uintptr(len(frame))
}

// MemoModifyPage marks p as modified. It must be X- or SX-latched by this
// mini-transaction.
func (m *Mtr) MemoModifyPage(p Page) {
	m.assertActive("page modification")
	ut.Assert(m.MemoContainsFlagged(p, MemoPageWriteMask),
		"page %s modified without an X or SX latch", p.ID())
	if m.pageModified(p) {
		return
	}
	m.MemoPush(p, MemoModify)
}

func (m *Mtr) pageModified(p Page) bool {
	return m.MemoContains(p, MemoModify)
}

// SetModified notes that a page was changed.
func (m *Mtr) SetModified() {
	m.modifications = true
}

// DiscardModifications forgets that pages were changed, so that commit
// neither writes redo nor stamps pages. Recovery uses this when applying
// records whose redo already exists.
func (m *Mtr) DiscardModifications() {
	m.modifications = false
}

// HasModifications reports whether any page was changed.
func (m *Mtr) HasModifications() bool {
	return m.modifications
}

// IsDirty reports whether committing will add a page to the flush list.
func (m *Mtr) IsDirty() bool {
	return m.madeDirty
}

// LogMode returns the logging mode.
func (m *Mtr) LogMode() LogMode {
	return m.logMode
}

// SetLogMode changes the logging mode and returns the previous one. Once
// NO_REDO is set it stays.
func (m *Mtr) SetLogMode(mode LogMode) LogMode {
	ut.Assert(mode == LogAll || mode == LogNone || mode == LogNoRedo, "log mode %d", mode)
	old := m.logMode
	switch old {
	case LogNoRedo:
		ut.Assert(mode == LogNoRedo || mode == LogNone,
			"log mode %s cannot follow %s", mode, old)
		return old
	case LogNone:
		if mode == old {
			return old
		}
	}
	m.logMode = mode
	return old
}

// NLogRecs returns the number of records accumulated so far.
func (m *Mtr) NLogRecs() int {
	return m.log.NRecs()
}

// Log returns the log buffer.
func (m *Mtr) Log() *LogBuffer {
	return m.log
}

// EnterIbuf notes that the change buffer is being modified.
func (m *Mtr) EnterIbuf() {
	ut.Assert(!m.insideIbuf, "change buffer entered twice")
	m.insideIbuf = true
}

// ExitIbuf notes that change buffer modification is over.
func (m *Mtr) ExitIbuf() {
	ut.Assert(m.insideIbuf, "change buffer exited without entering")
	m.insideIbuf = false
}

// IsInsideIbuf reports whether the change buffer is being modified.
func (m *Mtr) IsInsideIbuf() bool {
	return m.insideIbuf
}

// SetNamedSpaceID names the tablespace modified by this mini-transaction.
func (m *Mtr) SetNamedSpaceID(id uint32) *fil.Space {
	ut.Assert(m.spaces != nil, "named space %d without a tablespace registry", id)
	space, err := m.spaces.Get(id)
	ut.Assert(err == nil, "named space %d: %v", id, err)
	m.SetNamedSpace(space)
	return space
}

// SetNamedSpace names the tablespace modified by this mini-transaction.
// The system tablespace needs no naming.
func (m *Mtr) SetNamedSpace(space *fil.Space) {
	ut.Assert(m.userSpace == nil || m.userSpace == space,
		"second named space %d after %d", space.ID, m.userSpace.ID)
	if space.ID != fil.SystemSpaceID {
		ut.Assert(space.IsTemporary() || m.log.NRecs() < MaxLogRecs,
			"naming space %d after %d log records", space.ID, m.log.NRecs())
		m.userSpace = space
	}
}

// recordLimit is the number of records writes may add, leaving room for
// the FILE_NAME record of a named space.
func (m *Mtr) recordLimit() int {
	if m.userSpace != nil && !m.userSpace.IsTemporary() {
		return MaxLogRecs - 1
	}
	return MaxLogRecs
}

func (m *Mtr) appendPageRecord(typ byte, p Page, payload []byte) {
	ut.Assert(m.log.NRecs() < m.recordLimit(),
		"mini-transaction exceeds %d log records", m.recordLimit())
	m.log.AppendRecord(typ, p.ID(), payload)
}

// NamedSpace returns the named user tablespace, or nil.
func (m *Mtr) NamedSpace() *fil.Space {
	return m.userSpace
}

// SetSpaces copies the named tablespace of another mini-transaction.
func (m *Mtr) SetSpaces(other *Mtr) {
	m.userSpace = other.userSpace
}

// IsNamedSpace reports whether modifying space id is allowed without
// naming another tablespace.
func (m *Mtr) IsNamedSpace(id uint32) bool {
	if m.logMode != LogAll {
		return true
	}
	return id == fil.SystemSpaceID || (m.userSpace != nil && m.userSpace.ID == id)
}

// FlushObserver returns the observer attached to modified pages.
func (m *Mtr) FlushObserver() buf.FlushObserver {
	return m.flushObserver
}

// SetFlushObserver attaches o to every page this mini-transaction
// modifies. Only NO_REDO mini-transactions may carry an observer.
func (m *Mtr) SetFlushObserver(o buf.FlushObserver) {
	ut.Assert(o == nil || m.logMode == LogNoRedo,
		"flush observer in %s mode", m.logMode)
	m.flushObserver = o
}

// CommitLSN returns the start LSN of the committed group, or 0 if commit
// wrote no redo.
func (m *Mtr) CommitLSN() uint64 {
	ut.Assert(m.state == StateCommitted, "commit lsn of %s mini-transaction", m.state)
	return m.commitLSN
}
