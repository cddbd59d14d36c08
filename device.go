package lfs

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// blockReaderWriterAt is the minimal interface a backing store must
// satisfy. An *os.File satisfies it directly; tests back it with an
// in-memory fake (see device_test.go), mirroring the teacher's
// mockReader in mock_test.go.
type blockReaderWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// syncer is implemented by backing stores that can be told to flush to
// stable storage. *os.File satisfies it.
type syncer interface {
	Sync() error
}

// blockDevice provides the fixed-size block I/O contract from spec §4.1:
// read_block/write_block/flush, atomic at the single-block granularity,
// with flush() not returning until everything previously written is
// durable.
type blockDevice struct {
	mu sync.Mutex

	backing   blockReaderWriterAt
	file      *os.File // non-nil when backing is an *os.File; used for flock/fsync
	blockSize uint32
	numBlocks uint64
	locked    bool
}

// openDevice opens path for read/write and takes an exclusive advisory
// lock on it for the lifetime of the mount (supplemental behavior from
// SPEC_FULL §3). The original project's super.c mounts through the
// generic kernel sget()/mount_bdev path with no double-mount check of
// its own; this lock is this module's own addition, addressing the same
// failure mode without a counterpart to model it on.
func openDevice(path string, blockSize uint32) (*blockDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, newErr("open", EIO, err.Error())
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, newErr("open", EIO, fmt.Sprintf("device busy: %s", err))
	}
	fi, err := f.Stat()
	if err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, newErr("open", EIO, err.Error())
	}
	return &blockDevice{
		backing:   f,
		file:      f,
		blockSize: blockSize,
		numBlocks: uint64(fi.Size()) / uint64(blockSize),
		locked:    true,
	}, nil
}

// newMemDevice wraps an already-open backing store (used by mkfs, which
// creates the file itself, and by tests, which use an in-memory fake).
func newMemDevice(backing blockReaderWriterAt, blockSize uint32, numBlocks uint64) *blockDevice {
	return &blockDevice{backing: backing, blockSize: blockSize, numBlocks: numBlocks}
}

func (d *blockDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file != nil {
		if d.locked {
			unix.Flock(int(d.file.Fd()), unix.LOCK_UN)
		}
		return d.file.Close()
	}
	return nil
}

// ReadBlock reads block n in full.
func (d *blockDevice) ReadBlock(n uint64) ([]byte, error) {
	if err := d.checkRange(n); err != nil {
		return nil, err
	}
	buf := make([]byte, d.blockSize)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.backing.ReadAt(buf, int64(n)*int64(d.blockSize)); err != nil && err != io.EOF {
		return nil, newErr("read_block", EIO, err.Error())
	}
	return buf, nil
}

// WriteBlock writes buf (which must be exactly blockSize bytes) to block n.
func (d *blockDevice) WriteBlock(n uint64, buf []byte) error {
	if err := d.checkRange(n); err != nil {
		return err
	}
	if uint32(len(buf)) != d.blockSize {
		return newErr("write_block", EINVAL, "buffer size mismatch")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.backing.WriteAt(buf, int64(n)*int64(d.blockSize)); err != nil {
		return newErr("write_block", EIO, err.Error())
	}
	return nil
}

// Flush ensures all previously written blocks are durable before
// returning, per spec §4.1.
func (d *blockDevice) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.backing.(syncer); ok {
		if err := s.Sync(); err != nil {
			return newErr("flush", EIO, err.Error())
		}
	}
	return nil
}

func (d *blockDevice) checkRange(n uint64) error {
	if d.numBlocks != 0 && n >= d.numBlocks {
		return newErr("block_range", EINVAL, fmt.Sprintf("block %d out of range [0,%d)", n, d.numBlocks))
	}
	return nil
}

func (d *blockDevice) BlockSize() uint32 { return d.blockSize }
func (d *blockDevice) NumBlocks() uint64 { return d.numBlocks }
