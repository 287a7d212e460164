package mtr

import (
	"github.com/wilhasse/innodb-mtr/log"
	"github.com/wilhasse/innodb-mtr/ut"
)

// Commit makes the changes of the mini-transaction durable-ordered: its
// records are appended to the redo log as one group, modified pages are
// stamped with the group's LSN range, and every latch and fix is released
// in reverse acquisition order.
func (m *Mtr) Commit() {
	ut.Assert(m.state == StateActive, "commit of %s mini-transaction", m.state)
	m.state = StateCommitting
	if m.modifications && (m.log.NRecs() > 0 || m.logMode == LogNoRedo) {
		ut.Assert(m.redo != nil, "commit in %s mode without a redo log", m.logMode)
		if m.madeDirty {
			m.redo.EnterFlushOrder()
		}
		start, end := m.writeRedo()
		m.releaseBlocks(start, end)
		if m.madeDirty {
			m.redo.ExitFlushOrder()
		}
	}
	m.memo.ReleaseFrom(0)
	m.releaseResources()
}

// CommitFiles commits FILE_NAME records and, if checkpointLSN is not 0, a
// CHECKPOINT record. The caller holds the log serialization primitive and
// the mini-transaction holds no pages.
func (m *Mtr) CommitFiles(checkpointLSN uint64) {
	ut.Assert(m.state == StateActive, "commit of %s mini-transaction", m.state)
	ut.Assert(m.logMode == LogAll, "file commit in %s mode", m.logMode)
	ut.Assert(!m.madeDirty, "file commit made pages dirty")
	ut.Assert(m.memo.Live() == 0, "file commit holding %d memo slots", m.memo.Live())
	m.state = StateCommitting
	if checkpointLSN != 0 {
		m.log.appendCheckpoint(checkpointLSN)
	}
	if m.log.NRecs() > 0 {
		ut.Assert(m.redo != nil, "file commit without a redo log")
		m.commitLSN, _ = WriteLog(m.redo, m.log)
	}
	m.memo.ReleaseFrom(0)
	m.releaseResources()
}

// WriteLog appends the records of b to redo as one group outside any
// mini-transaction and resets b. The caller holds the log serialization
// primitive.
func WriteLog(redo *log.Log, b *LogBuffer) (startLSN, endLSN uint64) {
	ut.Assert(b.NRecs() > 0, "empty log group")
	b.frame()
	res := redo.ReserveLocked(b.TotalLength())
	b.DrainInto(res.Buffer())
	redo.Finish(res)
	return res.StartLSN, res.EndLSN
}

func (m *Mtr) writeRedo() (start, end uint64) {
	if m.logMode != LogAll {
		ut.Assert(m.logMode == LogNoRedo, "commit with redo in %s mode", m.logMode)
		ut.Assert(m.log.NRecs() == 0, "%d records in %s mode", m.log.NRecs(), m.logMode)
		lsn := m.redo.CurrentLSN()
		return lsn, lsn
	}
	res := m.prepareWrite()
	start, end = m.finishWrite(res)
	m.commitLSN = start
	return start, end
}

// prepareWrite frames the group and reserves its region. The critical
// section copies nothing. A commit touching a named space decides under
// the lock whether it is the first since the last checkpoint, since a
// checkpoint clears the named set while holding the same lock.
func (m *Mtr) prepareWrite() *log.Reservation {
	space := m.userSpace
	if space == nil || m.spaces == nil || space.IsTemporary() {
		m.log.frame()
		return m.redo.Reserve(m.log.TotalLength())
	}
	m.redo.Acquire()
	defer m.redo.Release()
	named := space.MaxLSN() == 0
	if named {
		m.LogFileName(space)
	}
	m.log.frame()
	res := m.redo.ReserveLocked(m.log.TotalLength())
	if named {
		m.spaces.NoteModified(space, res.StartLSN)
	}
	return res
}

func (m *Mtr) finishWrite(res *log.Reservation) (start, end uint64) {
	n := m.log.DrainInto(res.Buffer())
	ut.Assert(n == res.Len(), "drained %d bytes into %d-byte reservation", n, res.Len())
	m.redo.Finish(res)
	return res.StartLSN, res.EndLSN
}

// releaseBlocks stamps every modified page, newest first, while the page
// latches are still held.
func (m *Mtr) releaseBlocks(start, end uint64) {
	for i := m.memo.Len() - 1; i >= 0; i-- {
		slot := m.memo.Slot(i)
		if slot.Released() || slot.Type != MemoModify {
			continue
		}
		p := slot.Object.(Page)
		dirtied := p.NoteModification(start, end)
		ut.Assert(!dirtied || m.madeDirty, "page %s dirtied unexpectedly", p.ID())
		if m.flushObserver != nil {
			p.SetFlushObserver(m.flushObserver)
		}
	}
}

func (m *Mtr) releaseResources() {
	ut.Assert(m.memo.Len() == 0, "memo not empty after commit")
	m.log.Reset()
	m.state = StateCommitted
}
