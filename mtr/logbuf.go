package mtr

import (
	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/dyn"
	"github.com/wilhasse/innodb-mtr/log"
	"github.com/wilhasse/innodb-mtr/mach"
	"github.com/wilhasse/innodb-mtr/ut"
)

// recHeaderMax is the largest encoded type byte plus page id.
const recHeaderMax = 1 + 5 + 5

// LogBuffer accumulates the redo records of one mini-transaction.
type LogBuffer struct {
	arr    *dyn.Array
	nRecs  int
	framed bool
}

// NewLogBuffer creates an empty log buffer.
func NewLogBuffer() *LogBuffer {
	return &LogBuffer{arr: dyn.New()}
}

// NRecs returns the number of records appended since the last reset.
func (b *LogBuffer) NRecs() int {
	return b.nRecs
}

// TotalLength returns the encoded size in bytes.
func (b *LogBuffer) TotalLength() int {
	return b.arr.DataSize()
}

// Bytes returns a flattened copy of the buffer.
func (b *LogBuffer) Bytes() []byte {
	return b.arr.Bytes()
}

// Reset drops all records.
func (b *LogBuffer) Reset() {
	b.arr.Reset()
	b.nRecs = 0
	b.framed = false
}

func (b *LogBuffer) countRecord(typ byte) {
	ut.Assert(!b.framed, "record %s appended after framing", log.TypeName(typ))
	ut.Assert(b.nRecs < MaxLogRecs,
		"mini-transaction exceeds %d log records", MaxLogRecs)
	b.nRecs++
}

// AppendRecord appends a page record: type, compressed page id, payload.
func (b *LogBuffer) AppendRecord(typ byte, id buf.PageID, payload []byte) {
	b.countRecord(typ)
	hdr := b.arr.Open(recHeaderMax)
	hdr[0] = typ
	n := 1
	n += mach.WriteCompressed(hdr[n:], id.Space)
	n += mach.WriteCompressed(hdr[n:], id.PageNo)
	b.arr.Close(n)
	b.arr.PushBytes(payload)
}

// appendCheckpoint appends a CHECKPOINT record, which carries no page id.
func (b *LogBuffer) appendCheckpoint(lsn uint64) {
	b.countRecord(log.MlogCheckpoint)
	ptr := b.arr.Push(log.SizeOfMlogCheckpoint)
	ptr[0] = log.MlogCheckpoint
	mach.WriteTo8(ptr[1:], lsn)
}

// frame marks the group boundary: a lone record gets the single-record
// flag on its type byte, several records get a trailing end marker.
func (b *LogBuffer) frame() {
	ut.Assert(!b.framed, "log buffer framed twice")
	b.framed = true
	switch {
	case b.nRecs > 1:
		ptr := b.arr.Push(1)
		ptr[0] = log.MlogMultiRecEnd
	case b.nRecs == 1:
		first, _ := b.arr.At(0)
		b.arr.SetAt(0, first|log.MlogSingleRecFlag)
	}
}

// DrainInto copies the contents into dst and resets the buffer.
func (b *LogBuffer) DrainInto(dst []byte) int {
	ut.Assert(len(dst) >= b.TotalLength(),
		"drain of %d bytes into %d-byte region", b.TotalLength(), len(dst))
	n := b.arr.CopyTo(dst)
	b.Reset()
	return n
}

func writeRecordPayload(offset, width int, val uint64) []byte {
	var payload [2 + 11]byte
	mach.WriteTo2(payload[:], uint32(offset))
	n := 2
	if width == 8 {
		n += mach.WriteUllCompressed(payload[n:], val)
	} else {
		n += mach.WriteCompressed(payload[n:], uint32(val))
	}
	return payload[:n]
}

func writeStringPayload(offset int, data []byte) []byte {
	payload := make([]byte, 4+len(data))
	mach.WriteTo2(payload, uint32(offset))
	mach.WriteTo2(payload[2:], uint32(len(data)))
	copy(payload[4:], data)
	return payload
}

func memsetPayload(offset, length int, val byte) []byte {
	var payload [5]byte
	mach.WriteTo2(payload[:], uint32(offset))
	mach.WriteTo2(payload[2:], uint32(length))
	payload[4] = val
	return payload[:]
}

func fileNamePayload(name string) []byte {
	payload := make([]byte, 2+len(name))
	mach.WriteTo2(payload, uint32(len(name)))
	copy(payload[2:], name)
	return payload
}
