//go:build !linux

package os

import stdos "os"

func datasync(f *stdos.File) error {
	return f.Sync()
}
