package log

// Redo record types. The first byte of every record is its type; the
// high bit marks a mini-transaction that consists of a single record.
const (
	MlogSingleRecFlag = 0x80

	Mlog1Byte  = 1
	Mlog2Bytes = 2
	Mlog4Bytes = 4
	Mlog8Bytes = 8

	MlogWriteString = 30
	MlogMultiRecEnd = 31
	MlogDummyRecord = 32

	MlogFileName   = 41
	MlogFileDelete = 42

	MlogMemset     = 52
	MlogCheckpoint = 56

	MlogBiggestType = MlogCheckpoint
)

// SizeOfMlogCheckpoint is the encoded size of a CHECKPOINT record.
const SizeOfMlogCheckpoint = 9

// TypeName returns a printable name for a record type.
func TypeName(typ byte) string {
	switch typ {
	case Mlog1Byte:
		return "MLOG_1BYTE"
	case Mlog2Bytes:
		return "MLOG_2BYTES"
	case Mlog4Bytes:
		return "MLOG_4BYTES"
	case Mlog8Bytes:
		return "MLOG_8BYTES"
	case MlogWriteString:
		return "MLOG_WRITE_STRING"
	case MlogMultiRecEnd:
		return "MLOG_MULTI_REC_END"
	case MlogDummyRecord:
		return "MLOG_DUMMY_RECORD"
	case MlogFileName:
		return "MLOG_FILE_NAME"
	case MlogFileDelete:
		return "MLOG_FILE_DELETE"
	case MlogMemset:
		return "MLOG_MEMSET"
	case MlogCheckpoint:
		return "MLOG_CHECKPOINT"
	}
	return "MLOG_UNKNOWN"
}

// IsPageRecord reports whether records of typ modify a page frame.
func IsPageRecord(typ byte) bool {
	switch typ {
	case Mlog1Byte, Mlog2Bytes, Mlog4Bytes, Mlog8Bytes, MlogWriteString, MlogMemset:
		return true
	}
	return false
}
