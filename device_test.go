package lfs

import (
	"io"
	"testing"
)

// memBacking is an in-memory blockReaderWriterAt, grounded on the
// teacher's mockReader in its former mock_test.go: a byte slice backing
// store with an optional injected error past a given offset. The journal
// tests use it; volume-level tests format real files via Mkfs.
type memBacking struct {
	data  []byte
	errAt int64
	err   error
}

func newMemBacking(size int) *memBacking {
	return &memBacking{data: make([]byte, size)}
}

func (m *memBacking) ReadAt(p []byte, off int64) (int, error) {
	if m.err != nil && off >= m.errAt {
		return 0, m.err
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memBacking) WriteAt(p []byte, off int64) (int, error) {
	if m.err != nil && off >= m.errAt {
		return 0, m.err
	}
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	return copy(m.data[off:end], p), nil
}

func (m *memBacking) Sync() error { return nil }

func newTestDevice(t *testing.T, blockSize uint32, numBlocks uint64) *blockDevice {
	t.Helper()
	return newMemDevice(newMemBacking(int(uint64(blockSize)*numBlocks)), blockSize, numBlocks)
}
