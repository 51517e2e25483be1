// Package diskio provides a concrete, file-backed implementation of the
// pagecache.DiskManager interface, adapted from the project's B-tree disk
// manager: a fixed-size header page followed by fixed-size page slots
// addressed by ReadAt/WriteAt.
package diskio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sushant-115/pagecached/internal/pagecache"
)

const dbMagic uint32 = 0x70616765 // "page"

// fileHeader occupies page slot 0 of the data file.
type fileHeader struct {
	Magic    uint32
	Version  uint32
	PageSize uint32
	NumPages uint64
}

const fileHeaderSize = 4 + 4 + 4 + 8

var (
	// ErrFileExists is returned by Open when create is requested for a path
	// that already has a data file.
	ErrFileExists = errors.New("diskio: database file already exists")
	// ErrFileNotFound is returned by Open when create is false and no file
	// exists at the given path.
	ErrFileNotFound = errors.New("diskio: database file not found")
	// ErrPageSizeMismatch is returned when an existing file's page size
	// disagrees with the configured one.
	ErrPageSizeMismatch = errors.New("diskio: configured page size does not match file")
)

// FileDiskManager implements pagecache.DiskManager over a single OS file.
// Page 0 is reserved for the header; AllocatePage hands out 1, 2, 3, ...
// Deallocated pages are tracked on an in-memory free list and reused before
// the file is extended further.
type FileDiskManager struct {
	mu       sync.Mutex
	file     *os.File
	pageSize int
	numPages uint64
	free     []pagecache.PageID

	limiter *rate.Limiter
	logger  *zap.Logger
}

// Option configures a FileDiskManager.
type Option func(*FileDiskManager)

// WithWriteLimiter bounds WritePage throughput, in bytes/sec, with the given
// burst size. Pass a nil limiter (the default) for unthrottled writes.
func WithWriteLimiter(limiter *rate.Limiter) Option {
	return func(f *FileDiskManager) { f.limiter = limiter }
}

// WithLogger installs a zap logger for correlating disk round-trips with a
// request id. The zero value logs nothing.
func WithLogger(logger *zap.Logger) Option {
	return func(f *FileDiskManager) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Open opens (or, if create is true, creates) a data file at path sized for
// pageSize-byte pages.
func Open(path string, pageSize int, create bool, opts ...Option) (*FileDiskManager, error) {
	dm := &FileDiskManager{pageSize: pageSize, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(dm)
	}

	_, statErr := os.Stat(path)
	switch {
	case os.IsNotExist(statErr):
		if !create {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o666)
		if err != nil {
			return nil, fmt.Errorf("diskio: creating %s: %w", path, err)
		}
		dm.file = f
		dm.numPages = 1
		if err := dm.writeHeader(); err != nil {
			f.Close()
			os.Remove(path)
			return nil, err
		}
	case statErr == nil:
		if create {
			return nil, fmt.Errorf("%w: %s", ErrFileExists, path)
		}
		f, err := os.OpenFile(path, os.O_RDWR, 0o666)
		if err != nil {
			return nil, fmt.Errorf("diskio: opening %s: %w", path, err)
		}
		dm.file = f
		hdr, err := dm.readHeader()
		if err != nil {
			f.Close()
			return nil, err
		}
		if hdr.Magic != dbMagic {
			f.Close()
			return nil, fmt.Errorf("diskio: %s is not a page cache data file", path)
		}
		if int(hdr.PageSize) != pageSize {
			f.Close()
			return nil, fmt.Errorf("%w: file has %d, configured %d", ErrPageSizeMismatch, hdr.PageSize, pageSize)
		}
		dm.numPages = hdr.NumPages
	default:
		return nil, fmt.Errorf("diskio: stat %s: %w", path, statErr)
	}
	return dm, nil
}

func (dm *FileDiskManager) writeHeader() error {
	hdr := fileHeader{Magic: dbMagic, Version: 1, PageSize: uint32(dm.pageSize), NumPages: dm.numPages}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("diskio: serializing header: %w", err)
	}
	padded := make([]byte, dm.pageSize)
	copy(padded, buf.Bytes())
	if _, err := dm.file.WriteAt(padded, 0); err != nil {
		return fmt.Errorf("%w: writing header: %v", pagecache.ErrIO, err)
	}
	return dm.file.Sync()
}

func (dm *FileDiskManager) readHeader() (fileHeader, error) {
	var hdr fileHeader
	buf := make([]byte, fileHeaderSize)
	if _, err := dm.file.ReadAt(buf, 0); err != nil {
		return hdr, fmt.Errorf("%w: reading header: %v", pagecache.ErrIO, err)
	}
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &hdr); err != nil {
		return hdr, fmt.Errorf("diskio: deserializing header: %w", err)
	}
	return hdr, nil
}

func (dm *FileDiskManager) offset(id pagecache.PageID) int64 {
	return int64(id) * int64(dm.pageSize)
}

// ReadPage implements pagecache.DiskManager.
func (dm *FileDiskManager) ReadPage(id pagecache.PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if len(buf) != dm.pageSize {
		return fmt.Errorf("diskio: buffer size %d != page size %d", len(buf), dm.pageSize)
	}
	n, err := dm.file.ReadAt(buf, dm.offset(id))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: reading page %d: %v", pagecache.ErrIO, id, err)
	}
	if n != dm.pageSize {
		return fmt.Errorf("%w: short read for page %d: got %d of %d bytes", pagecache.ErrIO, id, n, dm.pageSize)
	}
	dm.logger.Debug("read page", zap.Uint64("page_id", uint64(id)), zap.String("req_id", uuid.NewString()))
	return nil
}

// WritePage implements pagecache.DiskManager.
func (dm *FileDiskManager) WritePage(id pagecache.PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if len(buf) != dm.pageSize {
		return fmt.Errorf("diskio: buffer size %d != page size %d", len(buf), dm.pageSize)
	}
	if dm.limiter != nil {
		if err := dm.limiter.WaitN(context.Background(), len(buf)); err != nil {
			return fmt.Errorf("%w: rate limiter: %v", pagecache.ErrIO, err)
		}
	}
	if _, err := dm.file.WriteAt(buf, dm.offset(id)); err != nil {
		return fmt.Errorf("%w: writing page %d: %v", pagecache.ErrIO, id, err)
	}
	dm.logger.Debug("wrote page", zap.Uint64("page_id", uint64(id)), zap.String("req_id", uuid.NewString()))
	return nil
}

// AllocatePage implements pagecache.DiskManager. It reuses a deallocated page
// id when one is free, otherwise extends the file.
func (dm *FileDiskManager) AllocatePage() (pagecache.PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if n := len(dm.free); n > 0 {
		id := dm.free[n-1]
		dm.free = dm.free[:n-1]
		return id, nil
	}

	id := pagecache.PageID(dm.numPages)
	empty := make([]byte, dm.pageSize)
	if _, err := dm.file.WriteAt(empty, dm.offset(id)); err != nil {
		return pagecache.InvalidPageID, fmt.Errorf("%w: extending file for page %d: %v", pagecache.ErrIO, id, err)
	}
	dm.numPages++
	if err := dm.writeHeader(); err != nil {
		return pagecache.InvalidPageID, err
	}
	return id, nil
}

// DeallocatePage implements pagecache.DiskManager.
func (dm *FileDiskManager) DeallocatePage(id pagecache.PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.free = append(dm.free, id)
	return nil
}

// Close flushes and closes the underlying file.
func (dm *FileDiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	_ = dm.file.Sync()
	err := dm.file.Close()
	dm.file = nil
	return err
}
