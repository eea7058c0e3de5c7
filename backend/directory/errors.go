package directory

import "errors"

// ErrInvalidConfiguration is raised at construction when D == 0 or
// otherwise out of range.
var ErrInvalidConfiguration = errors.New("directory: invalid configuration")

// ErrCapacityExhausted is raised when a split would need to double past D,
// i.e. a hash sequence's keys have collided on all D bits: the directory
// itself has nowhere left to grow, so the caller must fall back to an
// overflow chain instead.
var ErrCapacityExhausted = errors.New("directory: maximum depth reached")

// ErrCorrupt is returned when a directory file fails to parse or fails a
// structural invariant check on load.
var ErrCorrupt = errors.New("directory: corrupt directory file")
