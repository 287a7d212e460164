package srv

import (
	"github.com/pkg/errors"
	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/log"
	"github.com/wilhasse/innodb-mtr/mtr"
)

// Checkpoint makes the log durable, writes back every page it covers and
// advances the checkpoint to the oldest modification still in the buffer
// pool. A FILE_NAME record for each space modified since the previous
// checkpoint is committed together with the CHECKPOINT record. It returns
// the new checkpoint LSN.
func Checkpoint(redo *log.Log, pool *buf.Pool, spaces *fil.System) (uint64, error) {
	redo.LockCheckpoint()
	defer redo.UnlockCheckpoint()
	durable, err := redo.FlushUpTo(redo.CurrentLSN())
	if err != nil {
		return 0, errors.Wrap(err, "checkpoint: flush log")
	}
	if _, err := pool.FlushList(0, durable); err != nil {
		return 0, errors.Wrap(err, "checkpoint: flush pages")
	}
	redo.LockFlushOrder()
	oldest := pool.OldestModification()
	redo.UnlockFlushOrder()
	lsn := durable
	if oldest != 0 && oldest < lsn {
		lsn = oldest
	}
	cp := redo.CheckpointLSN()
	if lsn <= cp || (oldest == 0 && onlyFilesSince(redo, cp)) {
		return cp, nil
	}

	redo.Acquire()
	m := mtr.New(redo, spaces)
	m.Start()
	if spaces != nil {
		for _, space := range spaces.NamedSpaces() {
			m.LogFileName(space)
		}
		spaces.ClearNamed(lsn)
	}
	m.CommitFiles(lsn)
	redo.Release()

	if _, err := redo.FlushUpTo(m.CommitLSN() + 1); err != nil {
		return 0, errors.Wrap(err, "checkpoint: flush checkpoint record")
	}
	if err := redo.SetCheckpoint(lsn); err != nil {
		return 0, errors.Wrap(err, "checkpoint")
	}
	return lsn, nil
}

// onlyFilesSince reports whether everything logged after lsn is FILE_NAME
// and CHECKPOINT records, so that another checkpoint would gain nothing.
func onlyFilesSince(redo *log.Log, lsn uint64) bool {
	for _, e := range redo.ReadFrom(lsn) {
		recs, _, err := log.ParseGroup(e.Data)
		if err != nil || e.StartLSN < lsn {
			return false
		}
		for _, rec := range recs {
			if rec.Type != log.MlogFileName && rec.Type != log.MlogCheckpoint {
				return false
			}
		}
	}
	return true
}
