//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package runtime

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// reserveArena maps size bytes of anonymous memory. Pages are only backed
// once they are touched, so reserving the whole maximum up front is cheap.
func reserveArena(size uintptr) ([]byte, func() error, error) {
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reserve %s heap", Size(size))
	}
	release := func() error {
		return errors.Wrap(unix.Munmap(mem), "release heap")
	}
	return mem[:0], release, nil
}
