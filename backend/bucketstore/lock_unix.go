//go:build unix

package bucketstore

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// lockFile takes an advisory exclusive, non-blocking flock on f's
// descriptor, enforcing the single-writer discipline the hash file and
// directory file pair depend on.
func lockFile(fd uintptr) error {
	if err := unix.Flock(int(fd), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return fmt.Errorf("bucketstore: flock hash file: %w", err)
	}
	return nil
}

func unlockFile(fd uintptr) error {
	return unix.Flock(int(fd), unix.LOCK_UN)
}

const flockSupported = true
