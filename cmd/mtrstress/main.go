// Command mtrstress runs concurrent mini-transactions against an engine,
// optionally simulates a crash and verifies recovery from the redo file.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/fut"
	"github.com/wilhasse/innodb-mtr/log"
	"github.com/wilhasse/innodb-mtr/mtr"
	"github.com/wilhasse/innodb-mtr/srv"
	ibsync "github.com/wilhasse/innodb-mtr/sync"
	"github.com/wilhasse/innodb-mtr/ut"
	"golang.org/x/sync/errgroup"
)

const (
	stressSpaceID = 1
	listSpaceID   = 2
	listBase      = fil.PageData
	listNode      = fil.PageData + fut.BaseNodeSize
)

type options struct {
	threads   int
	mtrs      int
	pages     int
	listNodes int
	pageSize  int
	logPath   string
	dataDir   string
	direct    bool
	sync      bool
	interval  time.Duration
	crash     bool
	seed      int64
	debug     bool
}

func main() {
	var opts options
	flag.IntVar(&opts.threads, "threads", 8, "Concurrent workers")
	flag.IntVar(&opts.mtrs, "mtrs", 1000, "Mini-transactions per worker")
	flag.IntVar(&opts.pages, "pages", 64, "Pages in the stress tablespace")
	flag.IntVar(&opts.listNodes, "list-nodes", 16, "Nodes in the page-resident list shuffled by workers (0 disables)")
	flag.IntVar(&opts.pageSize, "page-size", 4096, "Page size in bytes")
	flag.StringVar(&opts.logPath, "log", "", "Redo log file (default: temp dir)")
	flag.StringVar(&opts.dataDir, "datadir", "", "Tablespace directory (default: pages kept in memory)")
	flag.BoolVar(&opts.direct, "direct", false, "Open the redo log and tablespaces with O_DIRECT")
	flag.BoolVar(&opts.sync, "sync", false, "fdatasync the redo log on every flush")
	flag.DurationVar(&opts.interval, "cleaner-interval", 50*time.Millisecond, "Page cleaner interval")
	flag.BoolVar(&opts.crash, "crash", false, "Skip the clean shutdown and verify recovery")
	flag.Int64Var(&opts.seed, "seed", 1, "Random seed")
	flag.BoolVar(&opts.debug, "debug", false, "Debug logging")
	flag.Parse()

	level := tools.INFO
	if opts.debug {
		level = tools.DEBUG
	}
	ut.SetLogger(tools.New_Nixomosetools_logger(level))

	if opts.logPath == "" {
		dir, err := os.MkdirTemp("", "mtrstress")
		if err != nil {
			exitErr("temp dir", err)
		}
		defer os.RemoveAll(dir)
		opts.logPath = filepath.Join(dir, "ib_logfile0")
	}
	if err := run(opts); err != nil {
		exitErr("stress run failed", err)
	}
}

func run(opts options) error {
	var store buf.PageStore = buf.NewMemStore()
	if opts.dataDir != "" {
		fs, err := buf.OpenFileStore(opts.dataDir, opts.pageSize, opts.direct)
		if err != nil {
			return err
		}
		defer fs.Close()
		store = fs
	}
	e, err := srv.Open(srv.Config{
		Log:     log.Config{FilePath: opts.logPath, DirectIO: opts.direct, SyncOnFlush: opts.sync},
		Pool:    buf.PoolConfig{Capacity: opts.pages + opts.listNodes + 1 + opts.threads*2, PageSize: opts.pageSize, Store: store},
		Cleaner: srv.PageCleanerConfig{Interval: opts.interval, CheckpointEvery: 10},
	})
	if err != nil {
		return err
	}
	if _, err := e.Spaces.Create("stress", stressSpaceID, fil.SpaceTablespace); err != nil {
		return err
	}
	if opts.listNodes > 0 {
		if _, err := e.Spaces.Create("stresslist", listSpaceID, fil.SpaceTablespace); err != nil {
			return err
		}
		if err := initList(e, opts); err != nil {
			return err
		}
	}
	if err := e.Start(context.Background()); err != nil {
		return err
	}

	start := time.Now()
	var g errgroup.Group
	for w := 0; w < opts.threads; w++ {
		rng := rand.New(rand.NewSource(opts.seed + int64(w)))
		g.Go(func() error { return worker(e, rng, opts) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	total := opts.threads * opts.mtrs
	fmt.Printf("%d mini-transactions in %s (%.0f/s)\n", total, elapsed, float64(total)/elapsed.Seconds())
	if err := checkList(e.Pool, mtr.New(e.Redo, e.Spaces), opts); err != nil {
		return err
	}

	if !opts.crash {
		if err := e.Close(); err != nil {
			return err
		}
		fmt.Println(e.Status())
		return nil
	}

	if err := e.Stop(); err != nil {
		return err
	}
	if _, err := e.Redo.FlushUpTo(e.Redo.CurrentLSN()); err != nil {
		return err
	}
	fmt.Println(e.Status())
	if err := e.Redo.Close(); err != nil {
		return err
	}
	return verifyRecovery(e, store, opts)
}

// worker commits mini-transactions that each modify one or two pages,
// latched in page order.
func worker(e *srv.Engine, rng *rand.Rand, opts options) error {
	m := e.NewMtr()
	for i := 0; i < opts.mtrs; i++ {
		m.Start()
		m.SetNamedSpaceID(stressSpaceID)
		pages := []uint32{uint32(rng.Intn(opts.pages))}
		if second := uint32(rng.Intn(opts.pages)); second != pages[0] && rng.Intn(2) == 0 {
			pages = append(pages, second)
		}
		sort.Slice(pages, func(a, b int) bool { return pages[a] < pages[b] })
		for _, no := range pages {
			block, err := m.GetPage(e.Pool, buf.PageID{Space: stressSpaceID, PageNo: no}, mtr.MemoPageXFix, ibsync.Here())
			if err != nil {
				return err
			}
			off := fil.PageData + 8*rng.Intn((opts.pageSize-fil.PageData-8)/8)
			switch rng.Intn(3) {
			case 0:
				m.Write8(block, off, rng.Uint64(), mtr.WriteOpt)
			case 1:
				m.Memset(block, off, 8, byte(rng.Intn(256)))
			default:
				var val [8]byte
				rng.Read(val[:])
				m.Memcpy(block, off, val[:])
			}
		}
		m.Commit()

		if opts.listNodes > 0 && rng.Intn(8) == 0 {
			if err := moveListNode(e, m, rng, opts); err != nil {
				return err
			}
		}
	}
	return nil
}

func listLoc(m *mtr.Mtr, pool *buf.Pool, pageNo uint32, off int) (fut.Loc, error) {
	block, err := m.GetPage(pool, buf.PageID{Space: listSpaceID, PageNo: pageNo}, mtr.MemoPageXFix, ibsync.Here())
	if err != nil {
		return fut.Loc{}, err
	}
	return fut.Loc{Page: block, Offset: off}, nil
}

// initList builds a list with one node on each of pages 1..listNodes.
func initList(e *srv.Engine, opts options) error {
	lists := fut.Lists{Pool: e.Pool, Space: listSpaceID}
	m := e.NewMtr()
	m.Start()
	m.SetNamedSpaceID(listSpaceID)
	base, err := listLoc(m, e.Pool, 0, listBase)
	if err != nil {
		return err
	}
	fut.InitBase(m, base)
	for no := 1; no <= opts.listNodes; no++ {
		node, err := listLoc(m, e.Pool, uint32(no), listNode)
		if err != nil {
			return err
		}
		if err := lists.AddLast(m, base, node); err != nil {
			return err
		}
	}
	m.Commit()
	return nil
}

// moveListNode unlinks a random node and reinserts it at either end. The
// base page latch serializes list mini-transactions.
func moveListNode(e *srv.Engine, m *mtr.Mtr, rng *rand.Rand, opts options) error {
	lists := fut.Lists{Pool: e.Pool, Space: listSpaceID}
	m.Start()
	m.SetNamedSpaceID(listSpaceID)
	base, err := listLoc(m, e.Pool, 0, listBase)
	if err != nil {
		return err
	}
	node, err := listLoc(m, e.Pool, uint32(1+rng.Intn(opts.listNodes)), listNode)
	if err != nil {
		return err
	}
	if err := lists.Remove(m, base, node); err != nil {
		return err
	}
	if rng.Intn(2) == 0 {
		err = lists.AddFirst(m, base, node)
	} else {
		err = lists.AddLast(m, base, node)
	}
	if err != nil {
		return err
	}
	m.Commit()
	return nil
}

// checkList validates the list in a read-only mini-transaction.
func checkList(pool *buf.Pool, m *mtr.Mtr, opts options) error {
	if opts.listNodes == 0 {
		return nil
	}
	m.Start()
	defer m.Commit()
	base, err := listLoc(m, pool, 0, listBase)
	if err != nil {
		return err
	}
	nodes, err := fut.Lists{Pool: pool, Space: listSpaceID}.Validate(m, base)
	if err != nil {
		return err
	}
	if len(nodes) != opts.listNodes {
		return fmt.Errorf("list holds %d nodes, want %d", len(nodes), opts.listNodes)
	}
	return nil
}

func verifyRecovery(e *srv.Engine, store buf.PageStore, opts options) error {
	lf, err := log.ReadLogFile(opts.logPath)
	if err != nil {
		return err
	}
	pool := buf.NewPool(buf.PoolConfig{Capacity: opts.pages + opts.listNodes + 1, PageSize: opts.pageSize, Store: store})
	spaces := fil.NewSystem()
	res, err := srv.Recover(lf, pool, spaces)
	if err != nil {
		return err
	}
	fmt.Printf("recovered %d groups, %d records applied, %d skipped, lsn %d..%d\n",
		res.Groups, res.Applied, res.Skipped, res.CheckpointLSN, res.EndLSN)
	if res.EndLSN != e.Redo.CurrentLSN() {
		return fmt.Errorf("recovery ended at %d, log ended at %d", res.EndLSN, e.Redo.CurrentLSN())
	}
	for no := 0; no < opts.pages; no++ {
		id := buf.PageID{Space: stressSpaceID, PageNo: uint32(no)}
		want := e.Pool.Lookup(id)
		if want == nil {
			continue
		}
		got, err := pool.Fetch(id)
		if err != nil {
			return err
		}
		same := bytes.Equal(want.Frame()[fil.PageData:], got.Frame()[fil.PageData:])
		got.Unfix()
		if !same {
			return fmt.Errorf("page %s differs after recovery", id)
		}
	}
	if err := checkList(pool, mtr.New(nil, spaces), opts); err != nil {
		return err
	}
	fmt.Println("recovery verified")
	return nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
