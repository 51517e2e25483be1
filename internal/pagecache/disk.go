package pagecache

// DiskManager is the external collaborator that owns the on-disk file and
// the page-id allocator. The buffer pool manager treats it as opaque: it
// never inspects page content, only moves bytes through it.
type DiskManager interface {
	// ReadPage fills buf (exactly page-size bytes) with the on-disk contents
	// of id.
	ReadPage(id PageID, buf []byte) error
	// WritePage durably writes buf to id.
	WritePage(id PageID, buf []byte) error
	// AllocatePage returns a fresh page id.
	AllocatePage() (PageID, error)
	// DeallocatePage releases id back to the disk manager's free space.
	DeallocatePage(id PageID) error
}

// LogManager is the optional write-ahead-log hook. A future extension
// would use it to force-append log records before a dirty write-back; this
// core treats a nil LogManager as absent and never constructs one itself.
type LogManager interface {
	Sync(pageID PageID, lsn LSN) error
}
