//go:build linux

package os

import (
	stdos "os"

	"golang.org/x/sys/unix"
)

func datasync(f *stdos.File) error {
	return unix.Fdatasync(int(f.Fd()))
}
