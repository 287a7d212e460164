package ut

import (
	"fmt"
	"runtime"
	"sync"
)

// DebugInfo captures assertion context.
type DebugInfo struct {
	Expr string
	File string
	Line int
}

// AssertionError is the panic value raised by a failed assertion.
type AssertionError struct {
	DebugInfo
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failure in %s line %d: %s", e.File, e.Line, e.Expr)
}

var (
	debugMu sync.Mutex
	// LastAssertion records the most recent assertion failure.
	LastAssertion DebugInfo
	// DbgStopThreads is set once any assertion has failed.
	DbgStopThreads bool
)

// Assert halts the caller with an AssertionError when cond is false.
// Contract violations are never tolerated, in any build.
func Assert(cond bool, format string, args ...any) {
	if cond {
		return
	}
	fail(2, fmt.Sprintf(format, args...))
}

// Fatalf records and raises an unconditional assertion failure.
func Fatalf(format string, args ...any) {
	fail(2, fmt.Sprintf(format, args...))
}

func fail(skip int, expr string) {
	_, file, line, _ := runtime.Caller(skip)
	info := DebugInfo{Expr: expr, File: file, Line: line}
	debugMu.Lock()
	LastAssertion = info
	DbgStopThreads = true
	debugMu.Unlock()
	Logger().Error(fmt.Sprintf("assertion failure in %s line %d: %s", file, line, expr))
	panic(&AssertionError{DebugInfo: info})
}

// LastFailure returns the most recent assertion failure.
func LastFailure() DebugInfo {
	debugMu.Lock()
	defer debugMu.Unlock()
	return LastAssertion
}

// DbgReset clears debug state.
func DbgReset() {
	debugMu.Lock()
	defer debugMu.Unlock()
	DbgStopThreads = false
	LastAssertion = DebugInfo{}
}
