package log

import (
	"os"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
	"github.com/wilhasse/innodb-mtr/mach"
	ibos "github.com/wilhasse/innodb-mtr/os"
)

const (
	logFileMagic   uint32 = 0x49424D54 // "IBMT"
	logFileVersion uint32 = 1
)

var errBadLogFile = errors.New("log: invalid log file header")

// FileSink appends published redo to a file in whole aligned blocks. Block
// 0 holds the header; log byte lsn lives at offset BlockSize+(lsn-start).
// The partially filled tail block is rewritten on every Sync.
type FileSink struct {
	f        *os.File
	startLSN uint64
	header   []byte
	tail     []byte
	tailLSN  uint64
	tailUsed int
	dirty    bool
}

// OpenFileSink creates or truncates the log file at path.
func OpenFileSink(path string, startLSN uint64, direct bool) (*FileSink, error) {
	f, err := ibos.FileCreateSimple(path, ibos.FileOverwrite, ibos.FileReadWrite, direct)
	if err != nil {
		return nil, errors.Wrap(err, "open log file")
	}
	s := &FileSink{
		f:        f,
		startLSN: startLSN,
		header:   directio.AlignedBlock(directio.BlockSize),
		tail:     directio.AlignedBlock(directio.BlockSize),
		tailLSN:  startLSN,
	}
	if err := s.WriteCheckpoint(startLSN); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Append writes data that starts at lsn; appends must be contiguous.
func (s *FileSink) Append(lsn uint64, data []byte) error {
	if lsn != s.tailLSN+uint64(s.tailUsed) {
		return errors.Errorf("log file append at %d, expected %d", lsn, s.tailLSN+uint64(s.tailUsed))
	}
	for len(data) > 0 {
		n := copy(s.tail[s.tailUsed:], data)
		s.tailUsed += n
		s.dirty = true
		data = data[n:]
		if s.tailUsed == len(s.tail) {
			if err := s.writeTail(); err != nil {
				return err
			}
			s.tailLSN += uint64(len(s.tail))
			s.tailUsed = 0
			clear(s.tail)
		}
	}
	return nil
}

func (s *FileSink) writeTail() error {
	off := int64(len(s.header)) + int64(s.tailLSN-s.startLSN)
	if _, err := ibos.FileWriteAt(s.f, s.tail, off); err != nil {
		return errors.Wrapf(err, "write log block at %d", off)
	}
	s.dirty = false
	return nil
}

// Sync writes the partial tail block and makes the file durable.
func (s *FileSink) Sync() error {
	if s.dirty {
		if err := s.writeTail(); err != nil {
			return err
		}
	}
	return errors.Wrap(ibos.FileFlush(s.f), "sync log file")
}

// WriteCheckpoint rewrites the header with a new checkpoint LSN.
func (s *FileSink) WriteCheckpoint(lsn uint64) error {
	clear(s.header)
	mach.WriteTo4(s.header[0:], logFileMagic)
	mach.WriteTo4(s.header[4:], logFileVersion)
	mach.WriteTo8(s.header[8:], s.startLSN)
	mach.WriteTo8(s.header[16:], lsn)
	if _, err := ibos.FileWriteAt(s.f, s.header, 0); err != nil {
		return errors.Wrap(err, "write log header")
	}
	return nil
}

// Close syncs and closes the file.
func (s *FileSink) Close() error {
	if err := s.Sync(); err != nil {
		_ = s.f.Close()
		return err
	}
	return errors.Wrap(s.f.Close(), "close log file")
}

// LogFile is the decoded content of a log file.
type LogFile struct {
	StartLSN      uint64
	CheckpointLSN uint64
	Data          []byte
}

// ReadLogFile reads a log file written by FileSink. Data starts at
// StartLSN and may carry zero padding after the last record.
func ReadLogFile(path string) (LogFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return LogFile{}, errors.Wrapf(err, "read log file %s", path)
	}
	if len(raw) < directio.BlockSize || mach.ReadFrom4(raw) != logFileMagic ||
		mach.ReadFrom4(raw[4:]) != logFileVersion {
		return LogFile{}, errors.Wrap(errBadLogFile, path)
	}
	return LogFile{
		StartLSN:      mach.ReadFrom8(raw[8:]),
		CheckpointLSN: mach.ReadFrom8(raw[16:]),
		Data:          raw[directio.BlockSize:],
	}, nil
}
