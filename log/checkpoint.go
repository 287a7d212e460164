package log

import (
	"github.com/pkg/errors"
	"github.com/wilhasse/innodb-mtr/ut"
)

// SetCheckpoint records that redo below lsn is no longer needed for
// recovery. Published entries entirely below both lsn and the flushed LSN
// are dropped from memory.
func (l *Log) SetCheckpoint(lsn uint64) error {
	flushed := l.FlushedLSN()
	ut.Assert(lsn <= l.ReadyLSN(), "checkpoint %d beyond published log", lsn)
	l.readyMu.Lock()
	if lsn < l.checkpoint {
		l.readyMu.Unlock()
		return nil
	}
	l.checkpoint = lsn
	l.stats.Checkpoints++
	keep := l.entries[:0]
	for _, e := range l.entries {
		if e.EndLSN > lsn || e.EndLSN > flushed {
			keep = append(keep, e)
		}
	}
	clear(l.entries[len(keep):])
	l.entries = keep
	l.readyMu.Unlock()

	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	if l.sink != nil {
		if err := l.sink.WriteCheckpoint(lsn); err != nil {
			return errors.Wrapf(err, "log: checkpoint at %d", lsn)
		}
	}
	l.logger.Debug("redo log checkpoint at ", lsn)
	return nil
}

// CheckpointLSN returns the current checkpoint LSN.
func (l *Log) CheckpointLSN() uint64 {
	l.readyMu.Lock()
	defer l.readyMu.Unlock()
	return l.checkpoint
}
