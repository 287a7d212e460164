package srv

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/log"
	"github.com/wilhasse/innodb-mtr/mach"
	"github.com/wilhasse/innodb-mtr/mtr"
	ibsync "github.com/wilhasse/innodb-mtr/sync"
	"github.com/wilhasse/innodb-mtr/ut"
)

// RecoveryResult summarizes a recovery pass.
type RecoveryResult struct {
	CheckpointLSN uint64
	// EndLSN is the end of the last complete group; new redo starts here.
	EndLSN  uint64
	Groups  int
	Records int
	Applied int
	Skipped int
	// Spaces lists the tablespaces named by FILE_NAME records.
	Spaces []string
	// Truncated is set when scanning stopped at an unparsable group.
	Truncated bool
}

// Recover replays the redo in lf from its checkpoint into pool. A record
// is applied only if the page image predates its group. Recovered pages
// are left dirty with the LSN range of the last group applied to them.
func Recover(lf log.LogFile, pool *buf.Pool, spaces *fil.System) (RecoveryResult, error) {
	from := lf.CheckpointLSN
	if from < lf.StartLSN {
		from = lf.StartLSN
	}
	res := RecoveryResult{CheckpointLSN: from, EndLSN: from}
	if from-lf.StartLSN > uint64(len(lf.Data)) {
		return res, errors.Wrapf(log.ErrCorrupt, "recover: checkpoint %d past end of log", from)
	}
	data := lf.Data[from-lf.StartLSN:]
	lsn := from
	named := map[string]bool{}
	for len(data) > 0 && data[0] != 0 {
		recs, rest, err := log.ParseGroup(data)
		if err != nil {
			ut.Logger().Error("recovery stopped at lsn " + strconv.FormatUint(lsn, 10) + ": " + err.Error())
			res.Truncated = true
			break
		}
		end := lsn + uint64(len(data)-len(rest))
		for _, rec := range recs {
			res.Records++
			switch {
			case rec.Type == log.MlogFileName:
				name, err := log.DecodeFileName(rec)
				if err != nil {
					return res, err
				}
				if err := ensureSpace(spaces, name, rec.Space); err != nil {
					return res, err
				}
				if !named[name] {
					named[name] = true
					res.Spaces = append(res.Spaces, name)
				}
			case log.IsPageRecord(rec.Type):
				applied, err := recoverRecord(pool, spaces, rec, lsn, end)
				if err != nil {
					return res, errors.Wrapf(err, "recover: lsn %d", lsn)
				}
				if applied {
					res.Applied++
				} else {
					res.Skipped++
				}
			}
		}
		res.Groups++
		lsn = end
		data = rest
	}
	res.EndLSN = lsn
	ut.Logger().Debug("recovered ", res.Groups, " groups from lsn ", from, " to ", lsn)
	return res, nil
}

func ensureSpace(spaces *fil.System, name string, id uint32) error {
	if spaces == nil {
		return nil
	}
	if _, err := spaces.Get(id); err == nil {
		return nil
	}
	_, err := spaces.Create(name, id, fil.SpaceTablespace)
	return err
}

func recoverRecord(pool *buf.Pool, spaces *fil.System, rec log.Record, start, end uint64) (bool, error) {
	m := mtr.New(nil, spaces)
	m.Start()
	defer m.Commit()
	m.SetLogMode(mtr.LogNone)
	block, err := m.GetPage(pool, buf.PageID{Space: rec.Space, PageNo: rec.PageNo}, mtr.MemoPageXFix, ibsync.Here())
	if err != nil {
		return false, err
	}
	frame := block.Frame()
	if len(frame) >= fil.PageLSN+8 && mach.ReadFrom8(frame[fil.PageLSN:]) > start {
		return false, nil
	}
	inRange := func(off, n int) error {
		if off+n > len(frame) {
			return errors.Wrapf(log.ErrCorrupt, "%s: range %d+%d outside page", log.TypeName(rec.Type), off, n)
		}
		return nil
	}
	switch rec.Type {
	case log.MlogWriteString:
		off, data, err := log.DecodeString(rec)
		if err == nil {
			err = inRange(off, len(data))
		}
		if err != nil {
			return false, err
		}
		m.Memcpy(block, off, data)
	case log.MlogMemset:
		off, n, val, err := log.DecodeMemset(rec)
		if err == nil {
			err = inRange(off, n)
		}
		if err != nil {
			return false, err
		}
		m.Memset(block, off, n, val)
	default:
		w, err := log.DecodeWrite(rec)
		if err == nil {
			err = inRange(w.Offset, w.Width)
		}
		if err != nil {
			return false, err
		}
		m.Write(block, w.Offset, w.Width, w.Value, mtr.WriteForced)
	}
	block.NoteModification(start, end)
	m.DiscardModifications()
	return true, nil
}
