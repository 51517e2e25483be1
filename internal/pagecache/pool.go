package pagecache

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// BufferPoolManager owns a fixed set of frames and mediates every fetch,
// unpin, flush, new-page, and delete-page request from higher layers. It
// uses a HashTable as its page table and a Replacer to pick eviction
// victims; idle frames not bound to any page live on a FIFO free list.
type BufferPoolManager struct {
	mu sync.Mutex

	pageSize  int
	frames    []*Frame
	pageTable *HashTable[PageID, int]
	replacer  *Replacer[int]
	free      frameQueue

	disk   DiskManager
	log    LogManager
	logger *zap.Logger
	stats  *poolMetrics
}

// Option configures optional collaborators of a BufferPoolManager.
type Option func(*BufferPoolManager)

// WithLogManager installs the optional WAL hook.
func WithLogManager(lm LogManager) Option {
	return func(b *BufferPoolManager) { b.log = lm }
}

// WithLogger installs a zap logger; the zero value logs nothing.
func WithLogger(logger *zap.Logger) Option {
	return func(b *BufferPoolManager) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMeter installs an OpenTelemetry meter used to export cache hit/miss/
// eviction/writeback counters. Omitting it records no metrics.
func WithMeter(meter metric.Meter) Option {
	return func(b *BufferPoolManager) {
		stats, err := newPoolMetrics(meter)
		if err == nil {
			b.stats = stats
		}
	}
}

// NewBufferPoolManager allocates poolSize frames of pageSize bytes each, with
// a page table bucketed at bucketSize entries per bucket. disk must be
// non-nil; it is the only way frames acquire or relinquish page content.
func NewBufferPoolManager(poolSize, pageSize, bucketSize int, disk DiskManager, opts ...Option) *BufferPoolManager {
	if disk == nil {
		panic("pagecache: NewBufferPoolManager requires a non-nil DiskManager")
	}
	if poolSize <= 0 {
		panic("pagecache: NewBufferPoolManager requires a positive pool size")
	}

	frames := make([]*Frame, poolSize)
	free := frameQueue{}
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame(pageSize)
		free.push(i)
	}

	bpm := &BufferPoolManager{
		pageSize:  pageSize,
		frames:    frames,
		pageTable: NewHashTable[PageID, int](bucketSize, hashPageID),
		replacer:  NewReplacer[int](),
		free:      free,
		disk:      disk,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(bpm)
	}
	if bpm.stats == nil {
		bpm.stats, _ = newPoolMetrics(nil)
	}
	return bpm
}

func hashPageID(id PageID) uint64 { return uint64(id) }

// FetchPage returns the frame holding pageID, pinning it, reading it from
// disk first if necessary. A nil frame with a nil error means the pool is
// exhausted (every frame pinned); a non-nil error always means disk I/O
// failed and the requested page is not resident.
func (b *BufferPoolManager) FetchPage(pageID PageID) (*Frame, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameIdx, ok := b.pageTable.Find(pageID); ok {
		f := b.frames[frameIdx]
		f.pinCount++
		b.replacer.Erase(frameIdx)
		b.stats.recordHit()
		b.logger.Debug("fetch hit", zap.Uint64("page_id", uint64(pageID)), zap.Uint32("pin_count", f.pinCount))
		return f, nil
	}
	b.stats.recordMiss()
	reqID := uuid.NewString()

	frameIdx, ok := b.getVictim()
	if !ok {
		b.logger.Debug("fetch miss: pool exhausted", zap.Uint64("page_id", uint64(pageID)), zap.String("req_id", reqID))
		return nil, nil
	}
	victim := b.frames[frameIdx]

	if victim.dirty && victim.id != InvalidPageID {
		if err := b.syncLogBeforeWriteback(victim); err != nil {
			return nil, err
		}
		if err := b.disk.WritePage(victim.id, victim.data); err != nil {
			b.logger.Error("eviction write-back failed", zap.Uint64("page_id", uint64(victim.id)), zap.Error(err))
			return nil, fmt.Errorf("%w: writing back page %d on eviction: %v", ErrIO, victim.id, err)
		}
		victim.dirty = false
		b.stats.recordWriteback()
	}
	if victim.id != InvalidPageID {
		b.pageTable.Remove(victim.id)
	}

	if err := b.disk.ReadPage(pageID, victim.data); err != nil {
		b.logger.Error("read failed", zap.Uint64("page_id", uint64(pageID)), zap.String("req_id", reqID), zap.Error(err))
		return nil, fmt.Errorf("%w: reading page %d: %v", ErrIO, pageID, err)
	}
	victim.id = pageID
	victim.pinCount = 1
	victim.dirty = false
	b.pageTable.Insert(pageID, frameIdx)
	b.logger.Debug("fetch miss loaded", zap.Uint64("page_id", uint64(pageID)), zap.Int("frame", frameIdx), zap.String("req_id", reqID))
	return victim, nil
}

// UnpinPage decrements pageID's pin count, OR-ing isDirty into the frame's
// dirty flag first. The flag is monotone: an unpin with isDirty=false never
// clears a dirty frame back to clean — only FlushPage or a replacement does.
// Returns false if the page is not resident or its pin count is already zero.
func (b *BufferPoolManager) UnpinPage(pageID PageID, isDirty bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	frameIdx, ok := b.pageTable.Find(pageID)
	if !ok {
		return false
	}
	f := b.frames[frameIdx]
	if isDirty {
		f.dirty = true
	}
	if f.pinCount == 0 {
		b.logger.Warn("unpin of already-unpinned page", zap.Uint64("page_id", uint64(pageID)))
		return false
	}
	f.pinCount--
	if f.pinCount == 0 {
		b.replacer.Insert(frameIdx)
	}
	return true
}

// FlushPage writes pageID to disk if dirty, clearing the dirty flag on
// success. It does not require the page to be unpinned. Returns false if
// pageID is not resident or is InvalidPageID.
func (b *BufferPoolManager) FlushPage(pageID PageID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(pageID)
}

func (b *BufferPoolManager) flushLocked(pageID PageID) (bool, error) {
	if pageID == InvalidPageID {
		return false, nil
	}
	frameIdx, ok := b.pageTable.Find(pageID)
	if !ok {
		return false, nil
	}
	f := b.frames[frameIdx]
	if !f.dirty {
		return true, nil
	}
	if err := b.syncLogBeforeWriteback(f); err != nil {
		return false, err
	}
	if err := b.disk.WritePage(pageID, f.data); err != nil {
		b.logger.Error("flush failed", zap.Uint64("page_id", uint64(pageID)), zap.Error(err))
		return false, fmt.Errorf("%w: flushing page %d: %v", ErrIO, pageID, err)
	}
	f.dirty = false
	b.stats.recordWriteback()
	return true, nil
}

// NewPage allocates a fresh page id from the disk manager and loads it into
// a frame, pinned once. A nil frame with a nil error means the pool is
// exhausted.
func (b *BufferPoolManager) NewPage() (*Frame, PageID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reqID := uuid.NewString()

	frameIdx, ok := b.getVictim()
	if !ok {
		return nil, InvalidPageID, nil
	}
	victim := b.frames[frameIdx]

	if victim.dirty && victim.id != InvalidPageID {
		if err := b.syncLogBeforeWriteback(victim); err != nil {
			return nil, InvalidPageID, err
		}
		if err := b.disk.WritePage(victim.id, victim.data); err != nil {
			return nil, InvalidPageID, fmt.Errorf("%w: writing back page %d before new page: %v", ErrIO, victim.id, err)
		}
		victim.dirty = false
		b.stats.recordWriteback()
	}

	newID, err := b.disk.AllocatePage()
	if err != nil {
		return nil, InvalidPageID, fmt.Errorf("%w: allocating new page: %v", ErrIO, err)
	}

	if victim.id != InvalidPageID {
		b.pageTable.Remove(victim.id)
	}
	victim.Reset()
	victim.id = newID
	victim.dirty = false
	victim.pinCount = 1
	b.pageTable.Insert(newID, frameIdx)
	b.logger.Debug("new page", zap.Uint64("page_id", uint64(newID)), zap.Int("frame", frameIdx), zap.String("req_id", reqID))
	return victim, newID, nil
}

// DeletePage removes pageID from the pool and tells the disk manager to
// deallocate it, refusing while any fetch of pageID is outstanding.
func (b *BufferPoolManager) DeletePage(pageID PageID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if frameIdx, ok := b.pageTable.Find(pageID); ok {
		f := b.frames[frameIdx]
		if f.pinCount > 0 {
			return false, nil
		}
		b.replacer.Erase(frameIdx)
		b.pageTable.Remove(pageID)
		f.Reset()
		b.free.push(frameIdx)
	}
	if err := b.disk.DeallocatePage(pageID); err != nil {
		return false, fmt.Errorf("%w: deallocating page %d: %v", ErrIO, pageID, err)
	}
	return true, nil
}

// syncLogBeforeWriteback honors the optional LogManager hook: if configured,
// its log records up to the frame's LSN must be durable before the frame's
// content is written back. A nil LogManager is treated as absent.
func (b *BufferPoolManager) syncLogBeforeWriteback(f *Frame) error {
	if b.log == nil {
		return nil
	}
	if err := b.log.Sync(f.id, f.lsn); err != nil {
		b.logger.Error("log sync before write-back failed", zap.Uint64("page_id", uint64(f.id)), zap.Error(err))
		return fmt.Errorf("%w: syncing log before writing back page %d: %v", ErrIO, f.id, err)
	}
	return nil
}

// getVictim picks a frame for reuse: the free list first, the replacer
// otherwise. Reports false if both are empty.
func (b *BufferPoolManager) getVictim() (int, bool) {
	if idx, ok := b.free.pop(); ok {
		return idx, true
	}
	if idx, ok := b.replacer.Victim(); ok {
		b.stats.recordEviction()
		return idx, true
	}
	return 0, false
}

// frameQueue is a FIFO of free frame indices.
type frameQueue struct {
	items []int
	head  int
}

func (q *frameQueue) push(i int) {
	q.items = append(q.items, i)
}

func (q *frameQueue) pop() (int, bool) {
	if q.head >= len(q.items) {
		return 0, false
	}
	v := q.items[q.head]
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return v, true
}
