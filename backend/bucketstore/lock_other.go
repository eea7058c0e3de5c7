//go:build !unix

package bucketstore

// lockFile is a no-op on platforms without flock(2). Store exposes this
// degradation via Locked() so callers (exthash.CreateIndex/OpenIndex) can
// log it once rather than silently pretending to lock.
func lockFile(fd uintptr) error { return nil }

func unlockFile(fd uintptr) error { return nil }

const flockSupported = false
