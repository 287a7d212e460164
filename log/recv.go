package log

import (
	"github.com/pkg/errors"
	"github.com/wilhasse/innodb-mtr/mach"
)

// ErrCorrupt is returned for redo that cannot be parsed.
var ErrCorrupt = errors.New("log: corrupt redo record")

// Record is a parsed redo record.
type Record struct {
	Type   byte
	Space  uint32
	PageNo uint32
	// Body is the type-specific part following the page id.
	Body []byte
	// LSN is the start LSN of the group the record belongs to, when known.
	LSN uint64
}

// Write is the decoded form of a 1/2/4/8-byte write record.
type Write struct {
	Offset int
	Width  int
	Value  uint64
}

// ParseGroup parses the records appended by one mini-transaction: either a
// single record flagged with MlogSingleRecFlag, or records terminated by
// MlogMultiRecEnd. It returns the records and the remaining bytes.
func ParseGroup(buf []byte) ([]Record, []byte, error) {
	if len(buf) == 0 {
		return nil, nil, errors.Wrap(ErrCorrupt, "empty group")
	}
	if buf[0]&MlogSingleRecFlag != 0 {
		rec, rest, err := parseRecord(buf[0]&^MlogSingleRecFlag, buf[1:])
		if err != nil {
			return nil, nil, err
		}
		return []Record{rec}, rest, nil
	}
	var recs []Record
	for {
		if len(buf) == 0 {
			return nil, nil, errors.Wrap(ErrCorrupt, "group without end marker")
		}
		typ := buf[0]
		if typ == MlogMultiRecEnd {
			return recs, buf[1:], nil
		}
		if typ&MlogSingleRecFlag != 0 {
			return nil, nil, errors.Wrapf(ErrCorrupt, "single-record flag inside group on type %d", typ&^MlogSingleRecFlag)
		}
		rec, rest, err := parseRecord(typ, buf[1:])
		if err != nil {
			return nil, nil, err
		}
		recs = append(recs, rec)
		buf = rest
	}
}

// ParseRecords parses a stream of groups that starts at lsn. Parsing stops
// cleanly at a zero byte (unwritten tail) or the end of buf. Each record's
// LSN is the start of its group.
func ParseRecords(buf []byte, lsn uint64) ([]Record, error) {
	var out []Record
	for len(buf) > 0 && buf[0] != 0 {
		recs, rest, err := ParseGroup(buf)
		if err != nil {
			return out, errors.Wrapf(err, "group at lsn %d", lsn)
		}
		for i := range recs {
			recs[i].LSN = lsn
		}
		out = append(out, recs...)
		lsn += uint64(len(buf) - len(rest))
		buf = rest
	}
	return out, nil
}

func parseRecord(typ byte, buf []byte) (Record, []byte, error) {
	if typ == 0 || typ > MlogBiggestType {
		return Record{}, nil, errors.Wrapf(ErrCorrupt, "record type %d", typ)
	}
	rec := Record{Type: typ}
	switch typ {
	case MlogCheckpoint:
		if len(buf) < SizeOfMlogCheckpoint-1 {
			return Record{}, nil, errors.Wrap(ErrCorrupt, "short checkpoint record")
		}
		rec.Body = buf[:8]
		return rec, buf[8:], nil
	case MlogDummyRecord:
		return rec, buf, nil
	}
	rest, space, ok := mach.ParseCompressed(buf)
	if !ok {
		return Record{}, nil, errors.Wrapf(ErrCorrupt, "%s: space id", TypeName(typ))
	}
	rest, pageNo, ok := mach.ParseCompressed(rest)
	if !ok {
		return Record{}, nil, errors.Wrapf(ErrCorrupt, "%s: page number", TypeName(typ))
	}
	rec.Space = space
	rec.PageNo = pageNo
	n, err := bodyLen(typ, rest)
	if err != nil {
		return Record{}, nil, err
	}
	rec.Body = rest[:n]
	return rec, rest[n:], nil
}

func bodyLen(typ byte, buf []byte) (int, error) {
	short := errors.Wrapf(ErrCorrupt, "%s: short body", TypeName(typ))
	switch typ {
	case Mlog1Byte, Mlog2Bytes, Mlog4Bytes:
		if len(buf) < 2 {
			return 0, short
		}
		rest, _, ok := mach.ParseCompressed(buf[2:])
		if !ok {
			return 0, short
		}
		return len(buf) - len(rest), nil
	case Mlog8Bytes:
		if len(buf) < 2 {
			return 0, short
		}
		rest, _, ok := mach.ParseUllCompressed(buf[2:])
		if !ok {
			return 0, short
		}
		return len(buf) - len(rest), nil
	case MlogWriteString:
		if len(buf) < 4 {
			return 0, short
		}
		n := 4 + int(mach.ReadFrom2(buf[2:]))
		if len(buf) < n {
			return 0, short
		}
		return n, nil
	case MlogMemset:
		if len(buf) < 5 {
			return 0, short
		}
		return 5, nil
	case MlogFileName, MlogFileDelete:
		if len(buf) < 2 {
			return 0, short
		}
		n := 2 + int(mach.ReadFrom2(buf))
		if len(buf) < n {
			return 0, short
		}
		return n, nil
	}
	return 0, errors.Wrapf(ErrCorrupt, "unsupported record type %d", typ)
}

// DecodeWrite decodes a 1/2/4/8-byte write record.
func DecodeWrite(rec Record) (Write, error) {
	var width int
	switch rec.Type {
	case Mlog1Byte, Mlog2Bytes, Mlog4Bytes, Mlog8Bytes:
		width = int(rec.Type)
	default:
		return Write{}, errors.Wrapf(ErrCorrupt, "%s is not a fixed-width write", TypeName(rec.Type))
	}
	if len(rec.Body) < 2 {
		return Write{}, errors.Wrap(ErrCorrupt, "short write record")
	}
	w := Write{Offset: int(mach.ReadFrom2(rec.Body)), Width: width}
	if width == 8 {
		_, v, ok := mach.ParseUllCompressed(rec.Body[2:])
		if !ok {
			return Write{}, errors.Wrap(ErrCorrupt, "short 8-byte write record")
		}
		w.Value = v
		return w, nil
	}
	_, v, ok := mach.ParseCompressed(rec.Body[2:])
	if !ok {
		return Write{}, errors.Wrap(ErrCorrupt, "short write record")
	}
	if width < 4 && v >= 1<<(8*width) {
		return Write{}, errors.Wrapf(ErrCorrupt, "value %#x too wide for %d bytes", v, width)
	}
	w.Value = uint64(v)
	return w, nil
}

// DecodeString returns the offset and bytes of a WRITE_STRING record.
func DecodeString(rec Record) (int, []byte, error) {
	if rec.Type != MlogWriteString || len(rec.Body) < 4 {
		return 0, nil, errors.Wrap(ErrCorrupt, "not a string record")
	}
	return int(mach.ReadFrom2(rec.Body)), rec.Body[4:], nil
}

// DecodeMemset returns the offset, length and fill byte of a MEMSET record.
func DecodeMemset(rec Record) (offset, n int, val byte, err error) {
	if rec.Type != MlogMemset || len(rec.Body) < 5 {
		return 0, 0, 0, errors.Wrap(ErrCorrupt, "not a memset record")
	}
	return int(mach.ReadFrom2(rec.Body)), int(mach.ReadFrom2(rec.Body[2:])), rec.Body[4], nil
}

// DecodeFileName returns the tablespace name carried by a FILE_NAME or
// FILE_DELETE record.
func DecodeFileName(rec Record) (string, error) {
	if rec.Type != MlogFileName && rec.Type != MlogFileDelete {
		return "", errors.Wrapf(ErrCorrupt, "%s carries no file name", TypeName(rec.Type))
	}
	if len(rec.Body) < 2 || len(rec.Body)-2 < int(mach.ReadFrom2(rec.Body)) {
		return "", errors.Wrap(ErrCorrupt, "short file name record")
	}
	return string(rec.Body[2 : 2+mach.ReadFrom2(rec.Body)]), nil
}

// DecodeCheckpoint returns the LSN carried by a CHECKPOINT record.
func DecodeCheckpoint(rec Record) (uint64, error) {
	if rec.Type != MlogCheckpoint || len(rec.Body) < 8 {
		return 0, errors.Wrap(ErrCorrupt, "not a checkpoint record")
	}
	return mach.ReadFrom8(rec.Body), nil
}

// ApplyRecord applies a page record to frame.
func ApplyRecord(rec Record, frame []byte) error {
	outOfRange := func(off, n int) error {
		return errors.Wrapf(ErrCorrupt, "%s: range %d+%d outside %d-byte page", TypeName(rec.Type), off, n, len(frame))
	}
	switch rec.Type {
	case Mlog1Byte, Mlog2Bytes, Mlog4Bytes, Mlog8Bytes:
		w, err := DecodeWrite(rec)
		if err != nil {
			return err
		}
		if w.Offset+w.Width > len(frame) {
			return outOfRange(w.Offset, w.Width)
		}
		mach.WriteN(frame[w.Offset:], w.Width, w.Value)
	case MlogWriteString:
		off, data, err := DecodeString(rec)
		if err != nil {
			return err
		}
		if off+len(data) > len(frame) {
			return outOfRange(off, len(data))
		}
		copy(frame[off:], data)
	case MlogMemset:
		off, n, val, err := DecodeMemset(rec)
		if err != nil {
			return err
		}
		if off+n > len(frame) {
			return outOfRange(off, n)
		}
		for i := off; i < off+n; i++ {
			frame[i] = val
		}
	default:
		return errors.Wrapf(ErrCorrupt, "%s does not apply to a page", TypeName(rec.Type))
	}
	return nil
}
