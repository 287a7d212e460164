package srv

import (
	"context"
	"testing"
	"time"

	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/mach"
)

func TestPageCleanerFlushesDirtyPages(t *testing.T) {
	store := buf.NewMemStore()
	e := openEngine(t, store, "", PageCleanerConfig{
		Interval:        10 * time.Millisecond,
		WorkerCount:     2,
		CheckpointEvery: 1,
	})
	defer e.Close()

	id := buf.PageID{PageNo: 5}
	block := modify(t, e, id, 128, 0x7f)
	if !block.IsDirty() {
		t.Fatalf("expected dirty page")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := e.Cleaner.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Pool.Stats().Dirty == 0 && e.Redo.CheckpointLSN() > 0 && e.Redo.CheckpointLSN() >= block.NewestModification() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := e.Cleaner.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if e.Pool.Stats().Dirty != 0 {
		t.Fatalf("expected dirty pages to be flushed")
	}
	if e.Cleaner.Flushed() == 0 {
		t.Fatalf("expected cleaner to count flushed pages")
	}
	if e.Redo.CheckpointLSN() < block.NewestModification() {
		t.Fatalf("checkpoint %d behind page lsn %d", e.Redo.CheckpointLSN(), block.NewestModification())
	}

	page, ok := store.Page(id)
	if !ok {
		t.Fatalf("page not written")
	}
	if got := mach.ReadFrom4(page[128:]); got != 0x7f {
		t.Fatalf("expected flushed data, got %#x", got)
	}
	if got := mach.ReadFrom8(page[fil.PageLSN:]); got != block.NewestModification() {
		t.Fatalf("page lsn %d, want %d", got, block.NewestModification())
	}
}

func TestPageCleanerStopsWithContext(t *testing.T) {
	e := openEngine(t, buf.NewMemStore(), "", PageCleanerConfig{Interval: time.Millisecond})
	defer e.Close()
	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Cleaner.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	if err := e.Cleaner.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if e.Cleaner.Running() {
		t.Fatalf("expected stopped")
	}
}
