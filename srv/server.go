// Package srv wires the redo log, buffer pool and tablespace registry into
// a running engine with background page cleaning, checkpoints and crash
// recovery.
package srv

import (
	"context"

	"github.com/nixomose/nixomosegotools/tools"
	"github.com/pkg/errors"
	"github.com/wilhasse/innodb-mtr/buf"
	"github.com/wilhasse/innodb-mtr/fil"
	"github.com/wilhasse/innodb-mtr/log"
	"github.com/wilhasse/innodb-mtr/mtr"
	"github.com/wilhasse/innodb-mtr/ut"
)

// ErrAlreadyRunning indicates the component is already running.
var ErrAlreadyRunning = errors.New("srv: already running")

// ErrNotRunning indicates the component is not running.
var ErrNotRunning = errors.New("srv: not running")

// ServerState represents the engine lifecycle state.
type ServerState int

const (
	ServerStopped ServerState = iota
	ServerRunning
)

// Config bundles the engine component configurations.
type Config struct {
	Log     log.Config
	Pool    buf.PoolConfig
	Cleaner PageCleanerConfig
	// Logger overrides the package logger when set.
	Logger *tools.Nixomosetools_logger
}

// Engine owns the shared state mini-transactions commit into.
type Engine struct {
	Redo    *log.Log
	Pool    *buf.Pool
	Spaces  *fil.System
	Cleaner *PageCleaner

	State      ServerState
	StartCount int
	StopCount  int

	logger *tools.Nixomosetools_logger
}

// Open creates an engine. The page cleaner is not started.
func Open(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = ut.Logger()
	}
	if cfg.Log.Logger == nil {
		cfg.Log.Logger = logger
	}
	redo, err := log.Open(cfg.Log)
	if err != nil {
		return nil, errors.Wrap(err, "srv: open")
	}
	e := &Engine{
		Redo:   redo,
		Pool:   buf.NewPool(cfg.Pool),
		Spaces: fil.NewSystem(),
		logger: logger,
	}
	e.Cleaner = NewPageCleaner(cfg.Cleaner, e.Redo, e.Pool, e.Spaces)
	return e, nil
}

// NewMtr returns an inactive mini-transaction committing into the engine.
func (e *Engine) NewMtr() *mtr.Mtr {
	return mtr.New(e.Redo, e.Spaces)
}

// Start transitions the engine to running and starts the page cleaner.
func (e *Engine) Start(ctx context.Context) error {
	if e.State == ServerRunning {
		return ErrAlreadyRunning
	}
	if err := e.Cleaner.Start(ctx); err != nil {
		return err
	}
	e.State = ServerRunning
	e.StartCount++
	e.logger.Debug("engine started at lsn ", e.Redo.CurrentLSN())
	return nil
}

// Stop halts the page cleaner.
func (e *Engine) Stop() error {
	if e.State != ServerRunning {
		return ErrNotRunning
	}
	e.State = ServerStopped
	e.StopCount++
	return e.Cleaner.Stop()
}

// IsRunning reports whether the engine is running.
func (e *Engine) IsRunning() bool {
	return e != nil && e.State == ServerRunning
}

// Checkpoint runs a checkpoint over the engine state.
func (e *Engine) Checkpoint() (uint64, error) {
	return Checkpoint(e.Redo, e.Pool, e.Spaces)
}

// Close stops background work, takes a final checkpoint and closes the
// redo log.
func (e *Engine) Close() error {
	if e.IsRunning() {
		if err := e.Stop(); err != nil {
			e.logger.Error("page cleaner stopped with: " + err.Error())
		}
	}
	lsn, err := e.Checkpoint()
	if err != nil {
		_ = e.Redo.Close()
		return err
	}
	e.logger.Debug("engine closed at checkpoint ", lsn)
	return e.Redo.Close()
}
