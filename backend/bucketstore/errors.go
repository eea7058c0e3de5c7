package bucketstore

import "errors"

// ErrCorruptBucket is returned when a block read from disk fails its
// byte-range sanity checks (size out of range, next offset not
// block-aligned).
var ErrCorruptBucket = errors.New("bucketstore: corrupt bucket block")

// ErrClosed is returned by Store methods once Close has released the file.
var ErrClosed = errors.New("bucketstore: store is closed")
