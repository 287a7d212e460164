package log

import "github.com/pkg/errors"

// FlushUpTo makes the log durable at least up to lsn. It waits for
// in-flight reservations below lsn to be published, hands the bytes to the
// file sink and syncs it. It returns the new flushed LSN.
func (l *Log) FlushUpTo(lsn uint64) (uint64, error) {
	if cur := l.CurrentLSN(); lsn > cur {
		lsn = cur
	}
	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	if lsn <= l.flushed {
		return l.flushed, nil
	}
	if err := l.WaitReady(lsn); err != nil {
		return l.flushed, err
	}
	target := l.ReadyLSN()
	if l.sink != nil {
		for _, e := range l.ReadFrom(l.written) {
			if e.StartLSN >= target {
				break
			}
			data := e.Data
			if e.StartLSN < l.written {
				data = data[l.written-e.StartLSN:]
			}
			if err := l.sink.Append(l.written, data); err != nil {
				return l.flushed, errors.Wrapf(err, "log: flush to %d", target)
			}
			l.written = e.EndLSN
		}
		if l.syncOnFlush {
			if err := l.sink.Sync(); err != nil {
				return l.flushed, errors.Wrapf(err, "log: sync at %d", target)
			}
		}
	}
	l.written = target
	l.flushed = target
	l.readyMu.Lock()
	l.stats.Flushes++
	l.readyMu.Unlock()
	l.logger.Debug("redo log flushed to ", target)
	return target, nil
}

// FlushedLSN returns the durable end of the log.
func (l *Log) FlushedLSN() uint64 {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()
	return l.flushed
}
