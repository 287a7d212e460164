package srv

import (
	"fmt"

	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/log"
)

// Status is a snapshot of engine counters.
type Status struct {
	CurrentLSN    uint64
	ReadyLSN      uint64
	FlushedLSN    uint64
	CheckpointLSN uint64
	// CheckpointAge is how much redo recovery would have to scan.
	CheckpointAge uint64
	Log           log.Stats
	Pool          buf.PoolStats
	CleanerPages  uint64
}

// Status returns the current counters.
func (e *Engine) Status() Status {
	s := Status{
		CurrentLSN:    e.Redo.CurrentLSN(),
		ReadyLSN:      e.Redo.ReadyLSN(),
		FlushedLSN:    e.Redo.FlushedLSN(),
		CheckpointLSN: e.Redo.CheckpointLSN(),
		Log:           e.Redo.Stats(),
		Pool:          e.Pool.Stats(),
		CleanerPages:  e.Cleaner.Flushed(),
	}
	s.CheckpointAge = s.CurrentLSN - s.CheckpointLSN
	return s
}

func (s Status) String() string {
	return fmt.Sprintf("lsn %d ready %d flushed %d checkpoint %d age %d groups %d bytes %d dirty %d flushed pages %d",
		s.CurrentLSN, s.ReadyLSN, s.FlushedLSN, s.CheckpointLSN, s.CheckpointAge,
		s.Log.Reservations, s.Log.BytesWritten, s.Pool.Dirty, s.Pool.Flushed)
}
