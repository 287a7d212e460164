package mtr

import (
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/ut"
)

// MemoSlot stores a memo object and its type.
type MemoSlot struct {
	Object any
	Type   MemoType
	// gen is the page generation at push time.
	gen uint64
}

// Released reports whether the slot was released ahead of commit.
func (s *MemoSlot) Released() bool {
	return s.Object == nil
}

// Memo is the ordered record of latches and buffer-fixes held by one
// mini-transaction. Slots are kept in acquisition order and released in
// reverse. A slot released early is left in place as a tombstone so that
// savepoints stay valid.
type Memo struct {
	slots []MemoSlot
}

// Push appends a slot.
func (mm *Memo) Push(object any, typ MemoType) {
	ut.Assert(object != nil, "memo push of nil %s", typ)
	slot := MemoSlot{Object: object, Type: typ}
	switch {
	case typ.isPage():
		p, ok := object.(Page)
		ut.Assert(ok, "memo %s slot needs a page, got %T", typ, object)
		slot.gen = p.Generation()
	case typ&(MemoSpaceSLock|MemoSpaceXLock) != 0:
		_, ok := object.(*fil.Space)
		ut.Assert(ok, "memo %s slot needs a tablespace, got %T", typ, object)
	default:
		_, ok := object.(Latch)
		ut.Assert(ok, "memo %s slot needs a latch, got %T", typ, object)
	}
	mm.slots = append(mm.slots, slot)
}

// Len returns the number of slots, released ones included.
func (mm *Memo) Len() int {
	return len(mm.slots)
}

// Slot returns the slot at index i.
func (mm *Memo) Slot(i int) *MemoSlot {
	return &mm.slots[i]
}

// ReleaseFrom releases every live slot at or above savepoint, newest
// first, and truncates the memo to savepoint.
func (mm *Memo) ReleaseFrom(savepoint int) {
	ut.Assert(savepoint >= 0 && savepoint <= len(mm.slots),
		"savepoint %d outside memo of %d slots", savepoint, len(mm.slots))
	for i := len(mm.slots) - 1; i >= savepoint; i-- {
		releaseSlot(&mm.slots[i])
	}
	clear(mm.slots[savepoint:])
	mm.slots = mm.slots[:savepoint]
}

// Release releases the most recent live slot holding object with type typ.
func (mm *Memo) Release(object any, typ MemoType) bool {
	for i := len(mm.slots) - 1; i >= 0; i-- {
		slot := &mm.slots[i]
		if slot.Object == object && slot.Type == typ {
			releaseSlot(slot)
			return true
		}
	}
	return false
}

// Find returns the index of the most recent live slot for which match
// holds and whose type is in flags, or -1.
func (mm *Memo) Find(flags MemoType, match func(object any) bool) int {
	for i := len(mm.slots) - 1; i >= 0; i-- {
		slot := &mm.slots[i]
		if slot.Object != nil && slot.Type&flags != 0 && match(slot.Object) {
			return i
		}
	}
	return -1
}

// Live returns the number of slots not yet released.
func (mm *Memo) Live() int {
	n := 0
	for i := range mm.slots {
		if mm.slots[i].Object != nil {
			n++
		}
	}
	return n
}

func releaseSlot(slot *MemoSlot) {
	if slot.Object == nil {
		return
	}
	switch slot.Type {
	case MemoSLock:
		slot.Object.(Latch).SUnlock()
	case MemoXLock:
		slot.Object.(Latch).XUnlock()
	case MemoSXLock:
		slot.Object.(Latch).SXUnlock()
	case MemoSpaceSLock:
		slot.Object.(*fil.Space).Latch.SUnlock()
	case MemoSpaceXLock:
		slot.Object.(*fil.Space).Latch.XUnlock()
	case MemoModify:
	default:
		p := slot.Object.(Page)
		ut.Assert(p.Generation() == slot.gen,
			"page %s was evicted while held by a mini-transaction", p.ID())
		switch slot.Type {
		case MemoPageSFix:
			p.Latch().SUnlock()
		case MemoPageSXFix:
			p.Latch().SXUnlock()
		case MemoPageXFix:
			p.Latch().XUnlock()
		}
		p.Unfix()
	}
	slot.Object = nil
}
