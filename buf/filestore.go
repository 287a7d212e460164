package buf

import (
	"fmt"
	"io"
	stdos "os"
	"path/filepath"
	stdsync "sync"

	"github.com/ncw/directio"
	"github.com/pkg/errors"
	ibos "github.com/wilhasse/innodb-mtr/os"
)

// FileStore keeps each tablespace in its own file under a directory. Page n
// lives at offset n*pageSize; a page past the end of the file does not
// exist yet.
type FileStore struct {
	mu       stdsync.Mutex
	dir      string
	pageSize int
	direct   bool
	files    map[uint32]*stdos.File
}

// OpenFileStore creates dir if needed. With direct set, pageSize must be a
// multiple of directio.BlockSize.
func OpenFileStore(dir string, pageSize int, direct bool) (*FileStore, error) {
	if direct && pageSize%directio.BlockSize != 0 {
		return nil, errors.Errorf("buf: page size %d is not a multiple of %d", pageSize, directio.BlockSize)
	}
	if err := stdos.MkdirAll(dir, 0o770); err != nil {
		return nil, errors.Wrapf(err, "buf: create %s", dir)
	}
	return &FileStore{
		dir:      dir,
		pageSize: pageSize,
		direct:   direct,
		files:    map[uint32]*stdos.File{},
	}, nil
}

// SpacePath returns the file holding space.
func (s *FileStore) SpacePath(space uint32) string {
	return filepath.Join(s.dir, fmt.Sprintf("space_%d.ibd", space))
}

func (s *FileStore) file(space uint32) (*stdos.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.files[space]; ok {
		return f, nil
	}
	f, err := ibos.FileCreateSimple(s.SpacePath(space), ibos.FileCreatePath, ibos.FileReadWrite, s.direct)
	if err != nil {
		return nil, err
	}
	s.files[space] = f
	return f, nil
}

func (s *FileStore) buffer(frame []byte) []byte {
	if s.direct {
		return directio.AlignedBlock(len(frame))
	}
	return frame
}

// ReadPage reads a page into frame and reports whether it existed.
func (s *FileStore) ReadPage(id PageID, frame []byte) (bool, error) {
	if len(frame) != s.pageSize {
		return false, errors.Wrapf(ErrShortFrame, "page %s: store %d frame %d", id, s.pageSize, len(frame))
	}
	f, err := s.file(id.Space)
	if err != nil {
		return false, err
	}
	buf := s.buffer(frame)
	n, err := ibos.FileReadAt(f, buf, int64(id.PageNo)*int64(s.pageSize))
	if err == io.EOF && n == 0 {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "read %s", id)
	}
	if s.direct {
		copy(frame, buf)
	}
	return true, nil
}

// WritePage writes frame as page id.
func (s *FileStore) WritePage(id PageID, frame []byte) error {
	if len(frame) != s.pageSize {
		return errors.Wrapf(ErrShortFrame, "page %s: store %d frame %d", id, s.pageSize, len(frame))
	}
	f, err := s.file(id.Space)
	if err != nil {
		return err
	}
	buf := s.buffer(frame)
	if s.direct {
		copy(buf, frame)
	}
	_, err = ibos.FileWriteAt(f, buf, int64(id.PageNo)*int64(s.pageSize))
	return err
}

// Sync makes every open tablespace file durable.
func (s *FileStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if err := ibos.FileFlush(f); err != nil {
			return err
		}
	}
	return nil
}

// Close syncs and closes every open file.
func (s *FileStore) Close() error {
	err := s.Sync()
	s.mu.Lock()
	defer s.mu.Unlock()
	for space, f := range s.files {
		if cerr := ibos.FileClose(f); cerr != nil && err == nil {
			err = cerr
		}
		delete(s.files, space)
	}
	return err
}
