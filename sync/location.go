package sync

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Location is the diagnostic file/line of a latch request.
type Location struct {
	File string
	Line int
}

// Here returns the location of its caller.
func Here() Location {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		return Location{}
	}
	return Location{File: filepath.Base(file), Line: line}
}

func (l Location) String() string {
	if l.File == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}
