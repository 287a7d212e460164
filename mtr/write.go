package mtr

import (
	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/log"
	"github.com/wilhasse/innodb-mtr/mach"
	"github.com/wilhasse/innodb-mtr/ut"
)

// maxLoggedLen bounds the length field of string and memset records.
const maxLoggedLen = 0xFFFF

func (m *Mtr) checkRange(p Page, offset, n int) []byte {
	frame := p.Frame()
	ut.Assert(offset >= 0 && n >= 0 && offset+n <= len(frame),
		"range %d+%d outside %d-byte page %s", offset, n, len(frame), p.ID())
	return frame[offset : offset+n]
}

// Write stores a 1, 2, 4 or 8-byte big-endian value at offset in p and
// logs it according to wt.
func (m *Mtr) Write(p Page, offset, width int, val uint64, wt WriteType) {
	m.assertActive("write")
	ut.Assert(width == 1 || width == 2 || width == 4 || width == 8, "write width %d", width)
	ut.Assert(width == 8 || val < 1<<(8*width), "value %#x too wide for %d bytes", val, width)
	field := m.checkRange(p, offset, width)
	old := mach.ReadN(field, width)
	switch wt {
	case WriteOpt:
		if old == val {
			return
		}
	case WriteNormal:
		ut.Assert(old != val, "write of unchanged value %#x at %s+%d", val, p.ID(), offset)
	}
	m.MemoModifyPage(p)
	mach.WriteN(field, width, val)
	m.modifications = true
	if m.logMode != LogAll {
		return
	}
	m.appendPageRecord(byte(width), p, writeRecordPayload(offset, width, val))
}

// Write1 writes a 1-byte value.
func (m *Mtr) Write1(p Page, offset int, val uint8, wt WriteType) {
	m.Write(p, offset, 1, uint64(val), wt)
}

// Write2 writes a 2-byte value.
func (m *Mtr) Write2(p Page, offset int, val uint16, wt WriteType) {
	m.Write(p, offset, 2, uint64(val), wt)
}

// Write4 writes a 4-byte value.
func (m *Mtr) Write4(p Page, offset int, val uint32, wt WriteType) {
	m.Write(p, offset, 4, uint64(val), wt)
}

// Write8 writes an 8-byte value.
func (m *Mtr) Write8(p Page, offset int, val uint64, wt WriteType) {
	m.Write(p, offset, 8, val, wt)
}

// Memcpy copies data into p at offset and logs it.
func (m *Mtr) Memcpy(p Page, offset int, data []byte) {
	m.assertActive("memcpy")
	if len(data) == 0 {
		return
	}
	copy(m.checkRange(p, offset, len(data)), data)
	m.LogMemcpy(p, offset, len(data))
}

// LogMemcpy logs length bytes at offset that the caller already changed
// in the frame of p.
func (m *Mtr) LogMemcpy(p Page, offset, length int) {
	m.assertActive("memcpy")
	if length == 0 {
		return
	}
	ut.Assert(length <= maxLoggedLen, "logged copy of %d bytes", length)
	data := m.checkRange(p, offset, length)
	m.MemoModifyPage(p)
	m.modifications = true
	if m.logMode != LogAll {
		return
	}
	m.appendPageRecord(log.MlogWriteString, p, writeStringPayload(offset, data))
}

// Memset fills length bytes at offset in p with val and logs it.
func (m *Mtr) Memset(p Page, offset, length int, val byte) {
	m.assertActive("memset")
	if length == 0 {
		return
	}
	ut.Assert(length <= maxLoggedLen, "logged memset of %d bytes", length)
	field := m.checkRange(p, offset, length)
	m.MemoModifyPage(p)
	for i := range field {
		field[i] = val
	}
	m.modifications = true
	if m.logMode != LogAll {
		return
	}
	m.appendPageRecord(log.MlogMemset, p, memsetPayload(offset, length, val))
}

// LogFileName logs that space was modified. Checkpoints and the first
// commit touching a space after a checkpoint use it.
func (m *Mtr) LogFileName(space *fil.Space) {
	m.logFileOp(log.MlogFileName, space)
}

// LogFileDelete logs that space is being deleted.
func (m *Mtr) LogFileDelete(space *fil.Space) {
	m.logFileOp(log.MlogFileDelete, space)
}

func (m *Mtr) logFileOp(typ byte, space *fil.Space) {
	ut.Assert(m.state == StateActive || m.state == StateCommitting,
		"%s on %s mini-transaction", log.TypeName(typ), m.state)
	ut.Assert(!space.IsTemporary(), "%s for temporary space %d", log.TypeName(typ), space.ID)
	ut.Assert(len(space.Name) <= maxLoggedLen, "space name of %d bytes", len(space.Name))
	if m.logMode != LogAll {
		return
	}
	m.log.AppendRecord(typ, buf.PageID{Space: space.ID}, fileNamePayload(space.Name))
}
