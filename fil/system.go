// Package fil keeps the tablespace registry: identities, latches and the
// set of spaces modified since the last checkpoint.
package fil

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	ibsync "github.com/wilhasse/innodb-mtr/sync"
)

var (
	// ErrSpaceExists is returned when registering a duplicate space.
	ErrSpaceExists = errors.New("fil: tablespace already exists")
	// ErrSpaceNotFound is returned for unknown space ids.
	ErrSpaceNotFound = errors.New("fil: tablespace not found")
)

// Space represents a tablespace.
type Space struct {
	Name    string
	ID      uint32
	Purpose uint32
	Latch   ibsync.RWLatch

	// maxLSN is the LSN at which the space was first modified after the
	// last checkpoint, or 0 if it has not been since.
	maxLSN atomic.Uint64
}

// IsTemporary reports whether changes to the space bypass the redo log.
func (s *Space) IsTemporary() bool {
	return s != nil && s.Purpose == SpaceTemporary
}

// MaxLSN returns the first-modification LSN since the last checkpoint.
func (s *Space) MaxLSN() uint64 {
	return s.maxLSN.Load()
}

// System holds the tablespace cache.
type System struct {
	mu         sync.Mutex
	spacesByID map[uint32]*Space
	byName     map[string]*Space
	named      map[uint32]*Space
}

// NewSystem creates an empty registry holding the system tablespace.
func NewSystem() *System {
	sys := &System{
		spacesByID: map[uint32]*Space{},
		byName:     map[string]*Space{},
		named:      map[uint32]*Space{},
	}
	_, _ = sys.Create("innodb_system", SystemSpaceID, SpaceTablespace)
	return sys
}

// Create registers a tablespace.
func (sys *System) Create(name string, id uint32, purpose uint32) (*Space, error) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	if _, ok := sys.spacesByID[id]; ok {
		return nil, errors.Wrapf(ErrSpaceExists, "space id %d", id)
	}
	if _, ok := sys.byName[name]; ok {
		return nil, errors.Wrapf(ErrSpaceExists, "space name %q", name)
	}
	space := &Space{Name: name, ID: id, Purpose: purpose}
	sys.spacesByID[id] = space
	sys.byName[name] = space
	return space, nil
}

// Get returns the space with the given id.
func (sys *System) Get(id uint32) (*Space, error) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	space, ok := sys.spacesByID[id]
	if !ok {
		return nil, errors.Wrapf(ErrSpaceNotFound, "space id %d", id)
	}
	return space, nil
}

// SysSpace returns the system tablespace.
func (sys *System) SysSpace() *Space {
	space, _ := sys.Get(SystemSpaceID)
	return space
}

// NoteModified marks space as modified at lsn. It returns true if this is
// the first modification since the last checkpoint, in which case the
// caller must log a FILE_NAME record for the space.
func (sys *System) NoteModified(space *Space, lsn uint64) bool {
	if space == nil || space.IsTemporary() {
		return false
	}
	sys.mu.Lock()
	defer sys.mu.Unlock()
	if space.maxLSN.Load() != 0 {
		return false
	}
	space.maxLSN.Store(lsn)
	sys.named[space.ID] = space
	return true
}

// NamedSpaces returns the spaces modified since the last checkpoint,
// ordered by id.
func (sys *System) NamedSpaces() []*Space {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	out := make([]*Space, 0, len(sys.named))
	for _, space := range sys.named {
		out = append(out, space)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ClearNamed forgets spaces whose first modification is older than lsn.
// Spaces still modified after lsn stay named.
func (sys *System) ClearNamed(lsn uint64) {
	sys.mu.Lock()
	defer sys.mu.Unlock()
	for id, space := range sys.named {
		if space.maxLSN.Load() < lsn {
			space.maxLSN.Store(0)
			delete(sys.named, id)
		}
	}
}
