// Package dyn implements the block-chained append-only byte array that backs
// mini-transaction log buffers.
package dyn

import "github.com/wilhasse/innodb-mtr/ut"

// DynArrayDataSize is the payload capacity of one block.
const DynArrayDataSize = 512

// DynBlock represents a block in a dynamic array.
type DynBlock struct {
	data []byte
	used int
}

// Used returns the number of bytes used in the block.
func (b *DynBlock) Used() int {
	if b == nil {
		return 0
	}
	return b.used
}

// Data returns the used portion of the block.
func (b *DynBlock) Data() []byte {
	if b == nil {
		return nil
	}
	return b.data[:b.used]
}

type openState struct {
	block *DynBlock
	start int
	size  int
}

// Array is a dynamically allocated byte array. Blocks are never moved once
// allocated, so slices returned by Push and Open stay valid until Reset.
type Array struct {
	blocks []*DynBlock
	open   *openState
	size   int
}

// New creates a dynamic array with an initial block.
func New() *Array {
	arr := &Array{}
	arr.addBlock()
	return arr
}

func (a *Array) addBlock() *DynBlock {
	block := &DynBlock{data: make([]byte, DynArrayDataSize)}
	a.blocks = append(a.blocks, block)
	return block
}

// Reset drops all contents but keeps the first block for reuse.
func (a *Array) Reset() {
	if a == nil {
		return
	}
	if len(a.blocks) == 0 {
		a.addBlock()
	}
	a.blocks[0].used = 0
	clear(a.blocks[1:])
	a.blocks = a.blocks[:1]
	a.open = nil
	a.size = 0
}

// FirstBlock returns the first block in the array.
func (a *Array) FirstBlock() *DynBlock {
	if a == nil || len(a.blocks) == 0 {
		return nil
	}
	return a.blocks[0]
}

// LastBlock returns the last block in the array.
func (a *Array) LastBlock() *DynBlock {
	if a == nil || len(a.blocks) == 0 {
		return nil
	}
	return a.blocks[len(a.blocks)-1]
}

// ForEachBlock calls fn for every non-empty block in order until fn
// returns false.
func (a *Array) ForEachBlock(fn func(*DynBlock) bool) {
	if a == nil {
		return
	}
	for _, block := range a.blocks {
		if block.used == 0 {
			continue
		}
		if !fn(block) {
			return
		}
	}
}

// Push reserves size bytes in one block and returns a slice for writing.
func (a *Array) Push(size int) []byte {
	ut.Assert(a != nil, "push to nil dyn array")
	ut.Assert(size > 0 && size <= DynArrayDataSize, "dyn array push of %d bytes", size)
	ut.Assert(a.open == nil, "dyn array push while a reservation is open")
	block := a.LastBlock()
	if block == nil || block.used+size > DynArrayDataSize {
		block = a.addBlock()
	}
	start := block.used
	block.used += size
	a.size += size
	return block.data[start:block.used:block.used]
}

// Open reserves up to size bytes for writing; Close commits what was used.
func (a *Array) Open(size int) []byte {
	buf := a.Push(size)
	block := a.LastBlock()
	a.open = &openState{
		block: block,
		start: block.used - size,
		size:  size,
	}
	return buf
}

// Close adjusts the last open reservation to the actual used length.
func (a *Array) Close(used int) {
	ut.Assert(a != nil && a.open != nil, "dyn array close without open")
	ut.Assert(used >= 0 && used <= a.open.size, "dyn array close %d of %d", used, a.open.size)
	a.open.block.used = a.open.start + used
	a.size -= a.open.size - used
	a.open = nil
}

// PushBytes appends a byte slice to the array, spanning blocks as needed.
func (a *Array) PushBytes(data []byte) {
	for len(data) > 0 {
		block := a.LastBlock()
		if block == nil || block.used == DynArrayDataSize {
			block = a.addBlock()
		}
		n := copy(block.data[block.used:], data)
		block.used += n
		a.size += n
		data = data[n:]
	}
}

// DataSize returns the total used data size.
func (a *Array) DataSize() int {
	if a == nil {
		return 0
	}
	return a.size
}

// At returns the byte at logical position pos.
func (a *Array) At(pos int) (byte, bool) {
	if a == nil || pos < 0 {
		return 0, false
	}
	for _, block := range a.blocks {
		if pos < block.used {
			return block.data[pos], true
		}
		pos -= block.used
	}
	return 0, false
}

// SetAt overwrites the byte at logical position pos.
func (a *Array) SetAt(pos int, v byte) bool {
	if a == nil || pos < 0 {
		return false
	}
	for _, block := range a.blocks {
		if pos < block.used {
			block.data[pos] = v
			return true
		}
		pos -= block.used
	}
	return false
}

// CopyTo copies the whole contents into dst and returns the bytes copied.
func (a *Array) CopyTo(dst []byte) int {
	n := 0
	a.ForEachBlock(func(block *DynBlock) bool {
		n += copy(dst[n:], block.Data())
		return n < len(dst)
	})
	return n
}

// Bytes returns a flattened copy of the contents.
func (a *Array) Bytes() []byte {
	out := make([]byte, a.DataSize())
	a.CopyTo(out)
	return out
}
