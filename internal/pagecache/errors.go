package pagecache

import "errors"

// ErrIO wraps any failure reported by the DiskManager. A read failure during
// FetchPage and a write failure during eviction/flush both surface this way;
// the caller decides whether the condition is fatal for its own workload.
var ErrIO = errors.New("pagecache: disk i/o error")
