// Package fut implements doubly-linked lists whose base and nodes live in
// page frames. Every change goes through a mini-transaction, so list
// updates are redo-logged and atomic with the rest of the caller's work.
package fut

import (
	"github.com/pkg/errors"
	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/mach"
	"github.com/wilhasse/innodb-mtr/mtr"
	ibsync "github.com/wilhasse/innodb-mtr/sync"
	"github.com/wilhasse/innodb-mtr/ut"
)

// FilNull is the page number of a null address.
const FilNull uint32 = 0xFFFFFFFF

// On-page layout.
const (
	AddrSize = 6

	BaseLen   = 0
	BaseFirst = 4
	BaseLast  = BaseFirst + AddrSize
	// BaseNodeSize is the size of a list base node.
	BaseNodeSize = BaseLast + AddrSize

	NodePrev = 0
	NodeNext = AddrSize
	// NodeSize is the size of a list node.
	NodeSize = NodeNext + AddrSize
)

// ErrCorruptList is returned by Validate.
var ErrCorruptList = errors.New("fut: corrupt list")

// Addr is a position inside a tablespace.
type Addr struct {
	Page   uint32
	Offset uint16
}

// NullAddr is the null address.
var NullAddr = Addr{Page: FilNull}

// IsNull reports whether a is the null address.
func (a Addr) IsNull() bool {
	return a.Page == FilNull
}

// Loc is a base node or node inside a latched page.
type Loc struct {
	Page   mtr.Page
	Offset int
}

func (l Loc) addr() Addr {
	return Addr{Page: l.Page.ID().PageNo, Offset: uint16(l.Offset)}
}

// ReadAddr reads an address stored at off in frame.
func ReadAddr(frame []byte, off int) Addr {
	return Addr{Page: mach.ReadFrom4(frame[off:]), Offset: uint16(mach.ReadFrom2(frame[off+4:]))}
}

func writeAddr(m *mtr.Mtr, p mtr.Page, off int, a Addr) {
	m.Write4(p, off, a.Page, mtr.WriteOpt)
	m.Write2(p, off+4, a.Offset, mtr.WriteOpt)
}

// Lists resolves list addresses to pages of one tablespace.
type Lists struct {
	Pool  *buf.Pool
	Space uint32
}

// resolve returns the node at a, X-latching its page unless m already
// holds it for writing.
func (ls Lists) resolve(m *mtr.Mtr, a Addr) (Loc, error) {
	ut.Assert(!a.IsNull(), "resolve of null list address")
	id := buf.PageID{Space: ls.Space, PageNo: a.Page}
	if b := ls.Pool.Lookup(id); b != nil && m.MemoContainsFlagged(b, mtr.MemoPageWriteMask) {
		return Loc{Page: b, Offset: int(a.Offset)}, nil
	}
	b, err := m.GetPage(ls.Pool, id, mtr.MemoPageXFix, ibsync.Here())
	if err != nil {
		return Loc{}, err
	}
	return Loc{Page: b, Offset: int(a.Offset)}, nil
}

// Len returns the length stored in a base node.
func Len(base Loc) uint32 {
	return mach.ReadFrom4(base.Page.Frame()[base.Offset+BaseLen:])
}

// First returns the first node address of a list.
func First(base Loc) Addr {
	return ReadAddr(base.Page.Frame(), base.Offset+BaseFirst)
}

// Last returns the last node address of a list.
func Last(base Loc) Addr {
	return ReadAddr(base.Page.Frame(), base.Offset+BaseLast)
}

// Next returns the address following node.
func Next(node Loc) Addr {
	return ReadAddr(node.Page.Frame(), node.Offset+NodeNext)
}

// Prev returns the address preceding node.
func Prev(node Loc) Addr {
	return ReadAddr(node.Page.Frame(), node.Offset+NodePrev)
}

// InitBase makes base an empty list.
func InitBase(m *mtr.Mtr, base Loc) {
	m.Write4(base.Page, base.Offset+BaseLen, 0, mtr.WriteOpt)
	writeAddr(m, base.Page, base.Offset+BaseFirst, NullAddr)
	writeAddr(m, base.Page, base.Offset+BaseLast, NullAddr)
}

func setLen(m *mtr.Mtr, base Loc, n uint32) {
	m.Write4(base.Page, base.Offset+BaseLen, n, mtr.WriteNormal)
}

func addToEmpty(m *mtr.Mtr, base, node Loc) {
	ut.Assert(Len(base) == 0, "list of length %d is not empty", Len(base))
	writeAddr(m, base.Page, base.Offset+BaseFirst, node.addr())
	writeAddr(m, base.Page, base.Offset+BaseLast, node.addr())
	writeAddr(m, node.Page, node.Offset+NodePrev, NullAddr)
	writeAddr(m, node.Page, node.Offset+NodeNext, NullAddr)
	setLen(m, base, 1)
}

// AddLast appends node to the list.
func (ls Lists) AddLast(m *mtr.Mtr, base, node Loc) error {
	last := Last(base)
	if last.IsNull() {
		addToEmpty(m, base, node)
		return nil
	}
	after, err := ls.resolve(m, last)
	if err != nil {
		return err
	}
	return ls.InsertAfter(m, base, after, node)
}

// AddFirst prepends node to the list.
func (ls Lists) AddFirst(m *mtr.Mtr, base, node Loc) error {
	first := First(base)
	if first.IsNull() {
		addToEmpty(m, base, node)
		return nil
	}
	before, err := ls.resolve(m, first)
	if err != nil {
		return err
	}
	return ls.InsertBefore(m, base, before, node)
}

// InsertAfter inserts node2 after node1.
func (ls Lists) InsertAfter(m *mtr.Mtr, base, node1, node2 Loc) error {
	node3 := Next(node1)
	writeAddr(m, node2.Page, node2.Offset+NodePrev, node1.addr())
	writeAddr(m, node2.Page, node2.Offset+NodeNext, node3)
	if node3.IsNull() {
		writeAddr(m, base.Page, base.Offset+BaseLast, node2.addr())
	} else {
		n3, err := ls.resolve(m, node3)
		if err != nil {
			return err
		}
		writeAddr(m, n3.Page, n3.Offset+NodePrev, node2.addr())
	}
	writeAddr(m, node1.Page, node1.Offset+NodeNext, node2.addr())
	setLen(m, base, Len(base)+1)
	return nil
}

// InsertBefore inserts node2 before node3.
func (ls Lists) InsertBefore(m *mtr.Mtr, base, node3, node2 Loc) error {
	node1 := Prev(node3)
	writeAddr(m, node2.Page, node2.Offset+NodePrev, node1)
	writeAddr(m, node2.Page, node2.Offset+NodeNext, node3.addr())
	if node1.IsNull() {
		writeAddr(m, base.Page, base.Offset+BaseFirst, node2.addr())
	} else {
		n1, err := ls.resolve(m, node1)
		if err != nil {
			return err
		}
		writeAddr(m, n1.Page, n1.Offset+NodeNext, node2.addr())
	}
	writeAddr(m, node3.Page, node3.Offset+NodePrev, node2.addr())
	setLen(m, base, Len(base)+1)
	return nil
}

// Remove unlinks node2 from the list.
func (ls Lists) Remove(m *mtr.Mtr, base, node2 Loc) error {
	ut.Assert(Len(base) > 0, "remove from empty list")
	node1, node3 := Prev(node2), Next(node2)
	if node1.IsNull() {
		writeAddr(m, base.Page, base.Offset+BaseFirst, node3)
	} else {
		n1, err := ls.resolve(m, node1)
		if err != nil {
			return err
		}
		writeAddr(m, n1.Page, n1.Offset+NodeNext, node3)
	}
	if node3.IsNull() {
		writeAddr(m, base.Page, base.Offset+BaseLast, node1)
	} else {
		n3, err := ls.resolve(m, node3)
		if err != nil {
			return err
		}
		writeAddr(m, n3.Page, n3.Offset+NodePrev, node1)
	}
	setLen(m, base, Len(base)-1)
	return nil
}

// Validate walks the list both ways and checks the links against the
// stored length. It returns the node addresses in order.
func (ls Lists) Validate(m *mtr.Mtr, base Loc) ([]Addr, error) {
	n := Len(base)
	var forward []Addr
	prev := NullAddr
	for a := First(base); !a.IsNull(); {
		if uint32(len(forward)) == n {
			return nil, errors.Wrapf(ErrCorruptList, "more than %d nodes", n)
		}
		node, err := ls.resolve(m, a)
		if err != nil {
			return nil, err
		}
		if Prev(node) != prev {
			return nil, errors.Wrapf(ErrCorruptList, "node %+v links back to %+v, want %+v", a, Prev(node), prev)
		}
		forward = append(forward, a)
		prev = a
		a = Next(node)
	}
	if uint32(len(forward)) != n || Last(base) != prev {
		return nil, errors.Wrapf(ErrCorruptList, "walked %d of %d nodes", len(forward), n)
	}
	return forward, nil
}
