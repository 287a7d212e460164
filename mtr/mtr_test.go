package mtr

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/log"
	"github.com/wilhasse/innodb-mtr/mach"
	ibsync "github.com/wilhasse/innodb-mtr/sync"
	"golang.org/x/sync/errgroup"
)

const testPageSize = 1024

type fixture struct {
	redo   *log.Log
	pool   *buf.Pool
	spaces *fil.System
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	redo, err := log.Open(log.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = redo.Close() })
	return &fixture{
		redo:   redo,
		pool:   buf.NewPool(buf.PoolConfig{Capacity: capacity, PageSize: testPageSize, Store: buf.NewMemStore()}),
		spaces: fil.NewSystem(),
	}
}

func (f *fixture) start() *Mtr {
	m := New(f.redo, f.spaces)
	m.Start()
	return m
}

func (f *fixture) page(t *testing.T, m *Mtr, id buf.PageID, typ MemoType) *buf.Block {
	t.Helper()
	block, err := m.GetPage(f.pool, id, typ, ibsync.Here())
	require.NoError(t, err)
	return block
}

func (f *fixture) groups(t *testing.T) [][]log.Record {
	t.Helper()
	var out [][]log.Record
	for _, e := range f.redo.Entries() {
		recs, rest, err := log.ParseGroup(e.Data)
		require.NoError(t, err)
		require.Empty(t, rest)
		out = append(out, recs)
	}
	return out
}

var pageA = buf.PageID{Space: 0, PageNo: 3}

func TestSingleWriteCommit(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	a := f.page(t, m, pageA, MemoPageXFix)
	require.True(t, m.IsDirty())

	m.Write4(a, fil.PageData, 42, WriteNormal)
	require.Equal(t, 1, m.NLogRecs())
	require.True(t, m.HasModifications())
	m.Commit()

	require.Equal(t, log.StartLSN, m.CommitLSN())
	entries := f.redo.Entries()
	require.Len(t, entries, 1)
	require.NotZero(t, entries[0].Data[0]&log.MlogSingleRecFlag)
	require.Equal(t, log.StartLSN, a.OldestModification())
	require.Equal(t, entries[0].EndLSN, a.NewestModification())
	require.True(t, a.Latch().IsFree())
	require.Zero(t, a.FixCount())

	recs := f.groups(t)[0]
	require.Len(t, recs, 1)
	require.Equal(t, pageA, buf.PageID{Space: recs[0].Space, PageNo: recs[0].PageNo})
	w, err := log.DecodeWrite(recs[0])
	require.NoError(t, err)
	require.Equal(t, log.Write{Offset: fil.PageData, Width: 4, Value: 42}, w)
	require.Equal(t, uint32(42), mach.ReadFrom4(a.Frame()[fil.PageData:]))
}

func TestMultiRecordGroup(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	a := f.page(t, m, pageA, MemoPageXFix)
	m.Write1(a, 100, 7, WriteNormal)
	m.Write2(a, 102, 0x1234, WriteNormal)
	m.Write8(a, 104, 1<<40|5, WriteNormal)
	m.Memcpy(a, 200, []byte("hello"))
	m.Memset(a, 300, 16, 0xAB)
	m.Commit()

	recs := f.groups(t)[0]
	require.Len(t, recs, 5)
	frame := make([]byte, testPageSize)
	for _, rec := range recs {
		require.NoError(t, log.ApplyRecord(rec, frame))
	}
	require.Equal(t, a.Frame()[100:400], frame[100:400])
	data := f.redo.Entries()[0].Data
	require.Equal(t, byte(log.MlogMultiRecEnd), data[len(data)-1])
}

func TestWriteOptSkipsUnchangedValue(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	a := f.page(t, m, pageA, MemoPageXFix)
	m.Write4(a, 500, 0, WriteOpt)
	require.Zero(t, m.NLogRecs())
	require.False(t, m.HasModifications())
	m.Commit()

	require.Zero(t, m.CommitLSN())
	require.Empty(t, f.redo.Entries())
	require.False(t, a.IsDirty())
}

func TestWriteOptLogsChangedValue(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	a := f.page(t, m, pageA, MemoPageXFix)
	m.Write4(a, 500, 9, WriteOpt)
	require.Equal(t, 1, m.NLogRecs())
	m.Commit()
	require.NotZero(t, m.CommitLSN())
}

func TestWriteNormalUnchangedValuePanics(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	a := f.page(t, m, pageA, MemoPageXFix)
	require.Panics(t, func() { m.Write4(a, 500, 0, WriteNormal) })
}

func TestWriteForcedLogsUnchangedValue(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	a := f.page(t, m, pageA, MemoPageXFix)
	m.Write4(a, 500, 0, WriteForced)
	require.Equal(t, 1, m.NLogRecs())
	m.Commit()
	require.Len(t, f.groups(t), 1)
}

func TestWriteNeedsWriteLatch(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	a := f.page(t, m, pageA, MemoPageSFix)
	require.Panics(t, func() { m.Write1(a, 100, 1, WriteNormal) })
}

func TestWriteRangeAndWidthChecks(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	a := f.page(t, m, pageA, MemoPageXFix)
	require.Panics(t, func() { m.Write4(a, testPageSize-2, 1, WriteNormal) })
	require.Panics(t, func() { m.Write(a, 100, 3, 1, WriteNormal) })
	require.Panics(t, func() { m.Write(a, 100, 1, 0x100, WriteNormal) })
}

func TestLogNoneWritesNothing(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	require.Equal(t, LogAll, m.SetLogMode(LogNone))
	a := f.page(t, m, pageA, MemoPageXFix)
	m.Write4(a, 100, 5, WriteNormal)
	require.Zero(t, m.NLogRecs())
	require.True(t, m.HasModifications())
	m.Commit()

	require.Zero(t, m.CommitLSN())
	require.Equal(t, log.StartLSN, f.redo.CurrentLSN())
	require.False(t, a.IsDirty())
	require.Equal(t, uint32(5), mach.ReadFrom4(a.Frame()[100:]))
}

func TestLogNoRedoStampsPages(t *testing.T) {
	f := newFixture(t, 8)
	before := f.start()
	b := f.page(t, before, buf.PageID{PageNo: 9}, MemoPageXFix)
	before.Write1(b, 100, 1, WriteNormal)
	before.Commit()
	lsn := f.redo.CurrentLSN()

	m := f.start()
	m.SetLogMode(LogNoRedo)
	var obs buf.CountingObserver
	m.SetFlushObserver(&obs)
	a := f.page(t, m, pageA, MemoPageXFix)
	m.Memset(a, 100, 8, 1)
	require.Zero(t, m.NLogRecs())
	m.Commit()

	require.Zero(t, m.CommitLSN())
	require.Equal(t, lsn, f.redo.CurrentLSN())
	require.Equal(t, lsn, a.OldestModification())
	require.Equal(t, lsn, a.NewestModification())
	require.Equal(t, &obs, a.FlushObserver())
}

func TestFlushObserverNeedsNoRedo(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	require.Panics(t, func() { m.SetFlushObserver(&buf.CountingObserver{}) })
}

func TestSetLogModeTransitions(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	require.Equal(t, LogAll, m.SetLogMode(LogNoRedo))
	require.Equal(t, LogNoRedo, m.SetLogMode(LogNone))
	require.Equal(t, LogNoRedo, m.LogMode())
	require.Panics(t, func() { m.SetLogMode(LogAll) })

	m2 := f.start()
	require.Equal(t, LogAll, m2.SetLogMode(LogNone))
	require.Equal(t, LogNone, m2.SetLogMode(LogAll))
	require.Equal(t, LogAll, m2.LogMode())
}

func TestCommitLSNZeroIffNoRedo(t *testing.T) {
	f := newFixture(t, 8)
	cases := []struct {
		name  string
		mode  LogMode
		write bool
		redo  bool
	}{
		{"all with write", LogAll, true, true},
		{"all without write", LogAll, false, false},
		{"none with write", LogNone, true, false},
		{"no redo with write", LogNoRedo, true, false},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := f.start()
			m.SetLogMode(tc.mode)
			a := f.page(t, m, buf.PageID{PageNo: uint32(i + 1)}, MemoPageXFix)
			if tc.write {
				m.Write1(a, 200, 1, WriteNormal)
			}
			before := f.redo.CurrentLSN()
			m.Commit()
			require.Equal(t, tc.redo, m.CommitLSN() != 0)
			require.Equal(t, tc.redo, f.redo.CurrentLSN() != before)
		})
	}
}

func TestRecordCeiling(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	a := f.page(t, m, pageA, MemoPageXFix)
	for i := 0; i < MaxLogRecs; i++ {
		m.Write1(a, 100, 0, WriteForced)
	}
	require.Equal(t, MaxLogRecs, m.NLogRecs())
	require.Panics(t, func() { m.Write1(a, 100, 0, WriteForced) })
}

func TestCommitReleasesEverything(t *testing.T) {
	f := newFixture(t, 8)
	var idx ibsync.RWLatch
	m := f.start()
	m.SLock(&idx, ibsync.Here())
	a := f.page(t, m, pageA, MemoPageSXFix)
	b := f.page(t, m, buf.PageID{PageNo: 4}, MemoBufFix)
	space := m.XLockSpaceID(fil.SystemSpaceID, ibsync.Here())
	m.Commit()

	require.Equal(t, StateCommitted, m.State())
	require.True(t, idx.IsFree())
	require.True(t, a.Latch().IsFree())
	require.True(t, space.Latch.IsFree())
	require.Zero(t, a.FixCount())
	require.Zero(t, b.FixCount())
}

func TestRollbackToSavepoint(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	a := f.page(t, m, pageA, MemoPageXFix)
	sp := m.Savepoint()
	b := f.page(t, m, buf.PageID{PageNo: 4}, MemoPageSFix)
	c := f.page(t, m, buf.PageID{PageNo: 5}, MemoPageXFix)

	m.RollbackToSavepoint(sp)
	require.Equal(t, sp, m.Savepoint())
	require.True(t, b.Latch().IsFree())
	require.True(t, c.Latch().IsFree())
	require.True(t, a.Latch().IsXLocked())
	m.Commit()
}

func TestModifiedPageCannotBeReleasedEarly(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	sp := m.Savepoint()
	a := f.page(t, m, pageA, MemoPageXFix)
	m.Write1(a, 100, 1, WriteNormal)
	require.Panics(t, func() { m.RollbackToSavepoint(sp) })
	require.Panics(t, func() { m.ReleaseBlockAtSavepoint(sp, a) })
	require.Panics(t, func() { m.MemoRelease(a, MemoPageXFix) })
}

func TestLatchAtSavepoint(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	sp := m.Savepoint()
	a := f.page(t, m, pageA, MemoBufFix)
	require.True(t, a.Latch().IsFree())

	m.XLatchAtSavepoint(sp, a)
	require.True(t, a.Latch().IsXLocked())
	require.True(t, m.MemoContains(a, MemoPageXFix))
	m.Write1(a, 100, 1, WriteNormal)
	m.Commit()
	require.True(t, a.Latch().IsFree())
}

func TestReleaseAtSavepoint(t *testing.T) {
	f := newFixture(t, 8)
	var idx ibsync.RWLatch
	m := f.start()
	sp := m.Savepoint()
	m.SLock(&idx, ibsync.Here())
	a := f.page(t, m, pageA, MemoPageSFix)

	m.ReleaseSLatchAtSavepoint(sp, &idx)
	require.True(t, idx.IsFree())
	m.ReleaseBlockAtSavepoint(sp+1, a)
	require.True(t, a.Latch().IsFree())
	require.Zero(t, a.FixCount())
	require.Panics(t, func() { m.ReleaseBlockAtSavepoint(sp+1, a) })
	m.Commit()
}

func TestReleasePageByPointer(t *testing.T) {
	f := newFixture(t, 8)
	m := f.start()
	a := f.page(t, m, pageA, MemoPageSXFix)
	require.Panics(t, func() { m.ReleasePage(a.Frame()[10:], MemoPageSFix) })
	m.ReleasePage(a.Frame()[10:], MemoPageSXFix)
	require.True(t, a.Latch().IsFree())
	m.Commit()
}

func TestEvictedPageDetectedAtRelease(t *testing.T) {
	f := newFixture(t, 1)
	m := f.start()
	a := f.page(t, m, pageA, MemoBufFix)
	a.Unfix()
	other, err := f.pool.Fetch(buf.PageID{PageNo: 99})
	require.NoError(t, err)
	defer other.Unfix()
	require.Panics(t, m.Commit)
}

func TestNamedSpaceLogsFileNameOnce(t *testing.T) {
	f := newFixture(t, 8)
	space, err := f.spaces.Create("t1", 5, fil.SpaceTablespace)
	require.NoError(t, err)
	id := buf.PageID{Space: 5, PageNo: 1}

	write := func(v uint8) {
		m := f.start()
		m.SetNamedSpace(space)
		require.True(t, m.IsNamedSpace(5))
		require.False(t, m.IsNamedSpace(6))
		a := f.page(t, m, id, MemoPageXFix)
		m.Write1(a, 100, v, WriteNormal)
		m.Commit()
	}
	write(1)
	write(2)

	groups := f.groups(t)
	require.Len(t, groups, 2)
	require.Len(t, groups[0], 2)
	require.Equal(t, byte(log.MlogFileName), groups[0][1].Type)
	name, err := log.DecodeFileName(groups[0][1])
	require.NoError(t, err)
	require.Equal(t, "t1", name)
	require.Len(t, groups[1], 1)
	require.Equal(t, f.redo.Entries()[0].StartLSN, space.MaxLSN())

	f.spaces.ClearNamed(f.redo.CurrentLSN())
	write(3)
	require.Len(t, f.groups(t)[2], 2)
}

func TestCommitFilesWritesCheckpoint(t *testing.T) {
	f := newFixture(t, 8)
	space, err := f.spaces.Create("t1", 5, fil.SpaceTablespace)
	require.NoError(t, err)

	f.redo.Acquire()
	m := f.start()
	m.LogFileName(space)
	m.CommitFiles(log.StartLSN)
	f.redo.Release()
	require.Equal(t, log.StartLSN, m.CommitLSN())

	f.redo.Acquire()
	m.Start()
	m.CommitFiles(log.StartLSN + 1)
	f.redo.Release()

	groups := f.groups(t)
	require.Len(t, groups, 2)
	require.Equal(t, byte(log.MlogFileName), groups[0][0].Type)
	require.Equal(t, byte(log.MlogCheckpoint), groups[0][1].Type)
	require.Len(t, groups[1], 1)
	lsn, err := log.DecodeCheckpoint(groups[1][0])
	require.NoError(t, err)
	require.Equal(t, log.StartLSN+1, lsn)
}

func TestWriteLogOutsideMtr(t *testing.T) {
	f := newFixture(t, 8)
	b := NewLogBuffer()
	b.AppendRecord(log.MlogMemset, pageA, memsetPayload(10, 4, 0xFF))
	f.redo.Acquire()
	start, end := WriteLog(f.redo, b)
	f.redo.Release()
	require.Equal(t, log.StartLSN, start)
	require.Equal(t, f.redo.CurrentLSN(), end)
	require.Zero(t, b.NRecs())
	require.Len(t, f.groups(t)[0], 1)
}

func TestStateChecks(t *testing.T) {
	f := newFixture(t, 8)
	m := New(f.redo, f.spaces)
	require.Panics(t, m.Commit)
	m.Start()
	require.Panics(t, m.Start)
	m.Commit()
	require.Panics(t, m.Commit)
	require.Panics(t, func() { m.Savepoint() })
	m.Start()
	require.True(t, m.IsActive())
	m.Commit()
}

func TestConcurrentCommitsAreOrdered(t *testing.T) {
	const n = 16
	f := newFixture(t, n)
	lsns := make([]uint64, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			m := New(f.redo, nil)
			m.Start()
			a, err := m.GetPage(f.pool, buf.PageID{PageNo: uint32(i)}, MemoPageXFix, ibsync.Here())
			if err != nil {
				return err
			}
			m.Write4(a, 100, uint32(i+1), WriteNormal)
			m.Write4(a, 104, uint32(i+1), WriteNormal)
			m.Commit()
			lsns[i] = m.CommitLSN()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	entries := f.redo.Entries()
	require.Len(t, entries, n)
	sorted := append([]uint64(nil), lsns...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, e := range entries {
		require.Equal(t, sorted[i], e.StartLSN)
		if i > 0 {
			require.Equal(t, entries[i-1].EndLSN, e.StartLSN)
		}
		recs, _, err := log.ParseGroup(e.Data)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		page := f.pool.Lookup(buf.PageID{PageNo: recs[0].PageNo})
		require.Equal(t, e.StartLSN, page.OldestModification())
		require.Equal(t, e.EndLSN, page.NewestModification())
	}
}

// A checkpoint that forgets a space while a commit waits for the log
// mutex must not cost that commit its FILE_NAME record.
func TestFileNameDecidedUnderLogMutex(t *testing.T) {
	f := newFixture(t, 8)
	space, err := f.spaces.Create("t1", 5, fil.SpaceTablespace)
	require.NoError(t, err)
	id := buf.PageID{Space: 5, PageNo: 1}

	m := f.start()
	m.SetNamedSpace(space)
	m.Write1(f.page(t, m, id, MemoPageXFix), 100, 1, WriteNormal)
	m.Commit()
	require.NotZero(t, space.MaxLSN())

	m2 := f.start()
	m2.SetNamedSpace(space)
	m2.Write1(f.page(t, m2, id, MemoPageXFix), 100, 2, WriteNormal)

	f.redo.Acquire()
	done := make(chan struct{})
	go func() {
		m2.Commit()
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)

	cp := f.redo.CurrentLSN()
	ck := New(f.redo, f.spaces)
	ck.Start()
	for _, named := range f.spaces.NamedSpaces() {
		ck.LogFileName(named)
	}
	f.spaces.ClearNamed(cp)
	ck.CommitFiles(cp)
	f.redo.Release()
	<-done

	require.Greater(t, m2.CommitLSN(), cp)
	groups := f.groups(t)
	last := groups[len(groups)-1]
	require.Len(t, last, 2)
	require.Equal(t, byte(log.MlogFileName), last[1].Type)
	require.Equal(t, m2.CommitLSN(), space.MaxLSN())
	require.Len(t, f.spaces.NamedSpaces(), 1)
}

func TestNamedSpaceKeepsRoomForFileName(t *testing.T) {
	f := newFixture(t, 8)
	space, err := f.spaces.Create("t1", 5, fil.SpaceTablespace)
	require.NoError(t, err)

	m := f.start()
	m.SetNamedSpace(space)
	a := f.page(t, m, buf.PageID{Space: 5, PageNo: 1}, MemoPageXFix)
	for i := 0; i < MaxLogRecs-1; i++ {
		m.Write1(a, 100, 0, WriteForced)
	}
	require.Panics(t, func() { m.Write1(a, 100, 0, WriteForced) })
	m.Commit()
	recs := f.groups(t)[0]
	require.Len(t, recs, MaxLogRecs)
	require.Equal(t, byte(log.MlogFileName), recs[MaxLogRecs-1].Type)

	m = f.start()
	b := f.page(t, m, pageA, MemoPageXFix)
	for i := 0; i < MaxLogRecs; i++ {
		m.Write1(b, 100, 0, WriteForced)
	}
	require.Panics(t, func() { m.SetNamedSpace(space) })
	require.Nil(t, m.NamedSpace())
	m.Commit()
	require.Len(t, f.groups(t)[1], MaxLogRecs)
}

// NONE and NO_REDO track modifications and dirtying exactly like ALL; they
// only differ in what reaches the log.
func TestLogModesTrackModificationsAlike(t *testing.T) {
	cases := []struct {
		name string
		ops  func(m *Mtr, p Page)
		recs int
	}{
		{"normal", func(m *Mtr, p Page) { m.Write4(p, 100, 7, WriteNormal) }, 1},
		{"opt unchanged", func(m *Mtr, p Page) { m.Write4(p, 100, 0, WriteOpt) }, 0},
		{"opt changed", func(m *Mtr, p Page) { m.Write8(p, 104, 9, WriteOpt) }, 1},
		{"forced unchanged", func(m *Mtr, p Page) { m.Write2(p, 112, 0, WriteForced) }, 1},
		{"memcpy", func(m *Mtr, p Page) { m.Memcpy(p, 120, []byte("abc")) }, 1},
		{"memset", func(m *Mtr, p Page) { m.Memset(p, 130, 4, 0xEE) }, 1},
		{"mixed", func(m *Mtr, p Page) {
			m.Write4(p, 100, 7, WriteNormal)
			m.Write4(p, 100, 7, WriteOpt)
			m.Write1(p, 108, 0, WriteForced)
			m.Memcpy(p, 120, []byte{1, 2})
			m.Memset(p, 130, 2, 3)
		}, 4},
	}
	type result struct {
		modified, dirty bool
		recs            int
	}
	run := func(t *testing.T, mode LogMode, ops func(*Mtr, Page)) result {
		f := newFixture(t, 8)
		m := f.start()
		m.SetLogMode(mode)
		a := f.page(t, m, pageA, MemoPageXFix)
		ops(m, a)
		r := result{m.HasModifications(), m.IsDirty(), m.NLogRecs()}
		m.Commit()
		return r
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			all := run(t, LogAll, tc.ops)
			require.Equal(t, tc.recs, all.recs)
			require.Equal(t, tc.recs > 0, all.modified)
			for _, mode := range []LogMode{LogNone, LogNoRedo} {
				got := run(t, mode, tc.ops)
				require.Equal(t, all.modified, got.modified, "%s modifications", mode)
				require.Equal(t, all.dirty, got.dirty, "%s dirty", mode)
				require.Zero(t, got.recs, "%s records", mode)
			}
		})
	}
}
