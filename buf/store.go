package buf

import (
	stdsync "sync"

	"github.com/pkg/errors"
)

// PageStore is the backing storage the pool reads from and writes to.
type PageStore interface {
	ReadPage(id PageID, frame []byte) (bool, error)
	WritePage(id PageID, frame []byte) error
}

// ErrShortFrame is returned when a frame does not match the store page size.
var ErrShortFrame = errors.New("buf: frame size mismatch")

// MemStore keeps written pages in memory.
type MemStore struct {
	mu     stdsync.Mutex
	pages  map[PageID][]byte
	writes int
}

// NewMemStore creates an empty in-memory page store.
func NewMemStore() *MemStore {
	return &MemStore{pages: map[PageID][]byte{}}
}

// ReadPage copies a stored page into frame and reports whether it existed.
func (s *MemStore) ReadPage(id PageID, frame []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.pages[id]
	if !ok {
		return false, nil
	}
	if len(data) != len(frame) {
		return false, errors.Wrapf(ErrShortFrame, "page %s: stored %d frame %d", id, len(data), len(frame))
	}
	copy(frame, data)
	return true, nil
}

// WritePage stores a copy of frame.
func (s *MemStore) WritePage(id PageID, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[id] = append([]byte(nil), frame...)
	s.writes++
	return nil
}

// Page returns a copy of a stored page.
func (s *MemStore) Page(id PageID) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.pages[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Writes returns the number of page writes.
func (s *MemStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
