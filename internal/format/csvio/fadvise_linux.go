//go:build linux

package csvio

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseSequential hints the kernel that the file will be read front to back.
// Best effort; readahead still works without it.
func adviseSequential(f *os.File) {
	_ = unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_SEQUENTIAL)
}
