package srv

import (
	"path/filepath"
	"testing"

	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/log"
	"github.com/wilhasse/innodb-mtr/mtr"
	ibsync "github.com/wilhasse/innodb-mtr/sync"
)

const testPageSize = 1024

func openEngine(t *testing.T, store buf.PageStore, logPath string, cleaner PageCleanerConfig) *Engine {
	t.Helper()
	e, err := Open(Config{
		Log:     log.Config{FilePath: logPath},
		Pool:    buf.PoolConfig{Capacity: 16, PageSize: testPageSize, Store: store},
		Cleaner: cleaner,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return e
}

// modify commits one mini-transaction that writes val at offset on page id.
func modify(t *testing.T, e *Engine, id buf.PageID, offset int, val uint32) *buf.Block {
	t.Helper()
	m := e.NewMtr()
	m.Start()
	if id.Space != 0 {
		m.SetNamedSpaceID(id.Space)
	}
	block, err := m.GetPage(e.Pool, id, mtr.MemoPageXFix, ibsync.Here())
	if err != nil {
		t.Fatalf("GetPage %s: %v", id, err)
	}
	m.Write4(block, offset, val, mtr.WriteNormal)
	m.Commit()
	return block
}

func logPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "ib_logfile0")
}
