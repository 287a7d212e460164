package srv

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/log"
	"github.com/wilhasse/innodb-mtr/ut"
	"golang.org/x/sync/errgroup"
)

// PageCleanerConfig configures the background page cleaner.
type PageCleanerConfig struct {
	Interval    time.Duration
	WorkerCount int
	// FlushLimit caps the pages one worker writes per round; 0 means all.
	FlushLimit int
	// CheckpointEvery makes worker 0 checkpoint after that many rounds;
	// 0 disables checkpointing.
	CheckpointEvery int
}

const defaultCleanerInterval = 200 * time.Millisecond

// PageCleaner runs background workers that make the log durable and write
// back dirty pages covered by it.
type PageCleaner struct {
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group

	cfg    PageCleanerConfig
	redo   *log.Log
	pool   *buf.Pool
	spaces *fil.System
	logger *tools.Nixomosetools_logger

	rounds  atomic.Uint64
	flushed atomic.Uint64
}

// NewPageCleaner constructs a page cleaner with the given config.
func NewPageCleaner(cfg PageCleanerConfig, redo *log.Log, pool *buf.Pool, spaces *fil.System) *PageCleaner {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultCleanerInterval
	}
	if cfg.WorkerCount < 1 {
		cfg.WorkerCount = 1
	}
	return &PageCleaner{
		cfg:    cfg,
		redo:   redo,
		pool:   pool,
		spaces: spaces,
		logger: ut.Logger(),
	}
}

// Start begins the background flush workers. They run until Stop or until
// ctx is done.
func (c *PageCleaner) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	for workerID := 0; workerID < c.cfg.WorkerCount; workerID++ {
		id := workerID
		g.Go(func() error { return c.work(ctx, id) })
	}
	c.running = true
	c.cancel = cancel
	c.group = g
	return nil
}

func (c *PageCleaner) work(ctx context.Context, workerID int) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if _, err := c.FlushOnce(); err != nil {
			c.logger.Error("page cleaner worker " + tools.Inttostring(workerID) + ": " + err.Error())
			return err
		}
		if workerID != 0 || c.cfg.CheckpointEvery <= 0 {
			continue
		}
		if c.rounds.Add(1)%uint64(c.cfg.CheckpointEvery) == 0 {
			if _, err := Checkpoint(c.redo, c.pool, c.spaces); err != nil {
				c.logger.Error("page cleaner checkpoint: " + err.Error())
				return err
			}
		}
	}
}

// FlushOnce makes the published log durable and writes back up to
// FlushLimit pages it covers.
func (c *PageCleaner) FlushOnce() (int, error) {
	durable, err := c.redo.FlushUpTo(c.redo.ReadyLSN())
	if err != nil {
		return 0, err
	}
	n, err := c.pool.FlushList(c.cfg.FlushLimit, durable)
	c.flushed.Add(uint64(n))
	return n, err
}

// Stop halts the background flush workers and returns the first worker
// error, if any.
func (c *PageCleaner) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	cancel, g := c.cancel, c.group
	c.running = false
	c.cancel = nil
	c.group = nil
	c.mu.Unlock()

	cancel()
	return g.Wait()
}

// Running reports whether the cleaner is active.
func (c *PageCleaner) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Flushed returns the number of pages the cleaner wrote back.
func (c *PageCleaner) Flushed() uint64 {
	return c.flushed.Load()
}
