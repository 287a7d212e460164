package ut

import (
	"sync/atomic"

	"github.com/nixomose/nixomosegotools/tools"
)

var logger atomic.Pointer[tools.Nixomosetools_logger]

func init() {
	logger.Store(tools.New_Nixomosetools_logger(tools.INFO))
}

// Logger returns the process-wide diagnostic logger.
func Logger() *tools.Nixomosetools_logger {
	return logger.Load()
}

// SetLogger replaces the process-wide logger and returns the previous one.
func SetLogger(l *tools.Nixomosetools_logger) *tools.Nixomosetools_logger {
	if l == nil {
		return logger.Load()
	}
	return logger.Swap(l)
}
