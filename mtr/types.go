package mtr

import (
	"github.com/wilhasse/innodb-mtr/buf"
	ibsync "github.com/wilhasse/innodb-mtr/sync"
)

// LogMode controls what the mini-transaction writes to the log.
type LogMode int

const (
	// LogAll logs every change.
	LogAll LogMode = 21
	// LogNone logs nothing; used when redo is provably unnecessary.
	LogNone LogMode = 22
	// LogNoRedo is for temporary-object pages: nothing reaches the redo
	// log but dirty-page bookkeeping is the same as LogAll.
	LogNoRedo LogMode = 23
)

func (m LogMode) String() string {
	switch m {
	case LogAll:
		return "ALL"
	case LogNone:
		return "NONE"
	case LogNoRedo:
		return "NO_REDO"
	}
	return "?"
}

// State tracks the lifecycle of a mini-transaction.
type State int

const (
	StateInactive State = iota
	StateActive
	StateCommitting
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateInactive:
		return "INACTIVE"
	case StateActive:
		return "ACTIVE"
	case StateCommitting:
		return "COMMITTING"
	case StateCommitted:
		return "COMMITTED"
	}
	return "?"
}

// MemoType describes the kind of object stored in the memo stack. Values
// are bit flags so that queries can match several kinds at once.
type MemoType uint32

const (
	MemoPageSFix MemoType = 1 << iota
	MemoBufFix
	MemoPageXFix
	MemoPageSXFix
	MemoModify
	MemoSLock
	MemoXLock
	MemoSXLock
	MemoSpaceSLock
	MemoSpaceXLock
)

// MemoPageFixMask matches every kind of page fix.
const MemoPageFixMask = MemoPageSFix | MemoBufFix | MemoPageXFix | MemoPageSXFix

// MemoPageWriteMask matches the page fixes that allow modification.
const MemoPageWriteMask = MemoPageXFix | MemoPageSXFix

func (t MemoType) isPage() bool {
	return t&(MemoPageFixMask|MemoModify) != 0
}

func (t MemoType) String() string {
	switch t {
	case MemoPageSFix:
		return "PAGE_S_FIX"
	case MemoBufFix:
		return "BUF_FIX"
	case MemoPageXFix:
		return "PAGE_X_FIX"
	case MemoPageSXFix:
		return "PAGE_SX_FIX"
	case MemoModify:
		return "MODIFY"
	case MemoSLock:
		return "S_LOCK"
	case MemoXLock:
		return "X_LOCK"
	case MemoSXLock:
		return "SX_LOCK"
	case MemoSpaceSLock:
		return "SPACE_S_LOCK"
	case MemoSpaceXLock:
		return "SPACE_X_LOCK"
	}
	return "?"
}

// WriteType governs whether a fixed-width write emits a record.
type WriteType int

const (
	// WriteNormal always logs; the value must actually change.
	WriteNormal WriteType = iota
	// WriteOpt logs only if the page contents change.
	WriteOpt
	// WriteForced logs even if the page contents do not change.
	WriteForced
)

// MaxLogRecs is the number of log records one mini-transaction may hold.
// A mini-transaction with a named user tablespace keeps one of them for
// the FILE_NAME record commit may add.
const MaxLogRecs = 2047

// Latch is a latch the memo stack can release. *sync.RWLatch implements it.
type Latch interface {
	SLock(loc ibsync.Location)
	SXLock(loc ibsync.Location)
	XLock(loc ibsync.Location)
	SUnlock()
	SXUnlock()
	XUnlock()
}

// Page is a buffer pool page as seen by a mini-transaction. The memo
// borrows it: the caller guarantees it stays buffer-fixed and valid until
// the slot is released. *buf.Block implements it.
type Page interface {
	ID() buf.PageID
	Frame() []byte
	Latch() *ibsync.RWLatch
	Unfix()
	Generation() uint64
	IsDirty() bool
	NoteModification(start, end uint64) bool
	NewestModification() uint64
	SetFlushObserver(o buf.FlushObserver)
}
