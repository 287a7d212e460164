package log

import "github.com/nixomose/nixomosegotools/tools"

// StartLSN is the first LSN handed out by a fresh log.
const StartLSN uint64 = 8192

// Config controls redo log setup.
type Config struct {
	// StartLSN overrides the first LSN; it must be nonzero.
	StartLSN uint64
	// FilePath enables the file sink when set.
	FilePath string
	// DirectIO opens the file sink with O_DIRECT.
	DirectIO bool
	// SyncOnFlush makes FlushUpTo fdatasync the file sink.
	SyncOnFlush bool
	// Logger receives diagnostics; defaults to ut.Logger().
	Logger *tools.Nixomosetools_logger
}

func normalizeConfig(cfg Config) Config {
	if cfg.StartLSN == 0 {
		cfg.StartLSN = StartLSN
	}
	return cfg
}
