// Package os wraps the file operations used by the redo log file and the
// tablespace files: full-length positional I/O, optional O_DIRECT and
// data-only sync.
package os

import (
	"io"
	stdos "os"
	"path/filepath"
	"sync/atomic"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
)

const (
	FileOpen       = 51
	FileCreate     = 52
	FileOverwrite  = 53
	FileCreatePath = 55
)

const (
	FileReadOnly  = 333
	FileReadWrite = 444
)

// DefaultFilePerm matches the default umask of 0660.
const DefaultFilePerm stdos.FileMode = 0o660

// File IO counters.
var (
	NFileReads  atomic.Uint64
	NFileWrites atomic.Uint64
	NFileSyncs  atomic.Uint64
)

var errNilFile = errors.New("os: nil file")

// FileCreateSimple opens or creates a file based on the provided mode. With
// direct set the file bypasses the page cache and all I/O must use
// directio-aligned buffers.
func FileCreateSimple(name string, createMode int, accessMode int, direct bool) (*stdos.File, error) {
	flags := 0
	switch accessMode {
	case FileReadOnly:
		flags = stdos.O_RDONLY
	case FileReadWrite:
		flags = stdos.O_RDWR
	default:
		return nil, errors.Errorf("os: invalid access mode %d", accessMode)
	}

	switch createMode {
	case FileOpen:
	case FileCreate:
		flags |= stdos.O_CREATE | stdos.O_EXCL
	case FileOverwrite:
		flags |= stdos.O_CREATE | stdos.O_TRUNC
	case FileCreatePath:
		if err := FileCreateSubdirsIfNeeded(name); err != nil {
			return nil, err
		}
		flags |= stdos.O_CREATE
	default:
		return nil, errors.Errorf("os: invalid create mode %d", createMode)
	}
	var (
		f   *stdos.File
		err error
	)
	if direct {
		f, err = directio.OpenFile(name, flags, DefaultFilePerm)
	} else {
		f, err = stdos.OpenFile(name, flags, DefaultFilePerm)
	}
	return f, errors.Wrapf(err, "open %s", name)
}

// FileCreateSubdirsIfNeeded creates parent directories for a path.
func FileCreateSubdirsIfNeeded(name string) error {
	dir := filepath.Dir(name)
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	return errors.Wrapf(stdos.MkdirAll(dir, 0o770), "mkdir %s", dir)
}

// FileReadAt reads fully from the file at the given offset. A read that
// hits end of file returns the bytes read and io.EOF.
func FileReadAt(file *stdos.File, buf []byte, offset int64) (int, error) {
	if file == nil {
		return 0, errNilFile
	}
	read := 0
	for read < len(buf) {
		n, err := file.ReadAt(buf[read:], offset+int64(read))
		read += n
		if err != nil {
			if err == io.EOF && read == len(buf) {
				break
			}
			return read, err
		}
	}
	NFileReads.Add(1)
	return read, nil
}

// FileWriteAt writes fully to the file at the given offset.
func FileWriteAt(file *stdos.File, buf []byte, offset int64) (int, error) {
	if file == nil {
		return 0, errNilFile
	}
	written := 0
	for written < len(buf) {
		n, err := file.WriteAt(buf[written:], offset+int64(written))
		written += n
		if err != nil {
			return written, errors.Wrapf(err, "write %s at %d", file.Name(), offset)
		}
	}
	NFileWrites.Add(1)
	return written, nil
}

// FileFlush makes the file data durable.
func FileFlush(file *stdos.File) error {
	if file == nil {
		return errNilFile
	}
	if err := datasync(file); err != nil {
		return errors.Wrapf(err, "sync %s", file.Name())
	}
	NFileSyncs.Add(1)
	return nil
}

// FileClose closes a file handle.
func FileClose(file *stdos.File) error {
	if file == nil {
		return nil
	}
	return file.Close()
}

// FileExists reports whether a file exists.
func FileExists(name string) (bool, error) {
	_, err := stdos.Stat(name)
	if err == nil {
		return true, nil
	}
	if stdos.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// FileDelete removes a file.
func FileDelete(name string) error {
	return stdos.Remove(name)
}
