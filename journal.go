package lfs

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Journal operation types, spec §3/§6.2.
type JournalOp uint8

const (
	OpInodeUpdate JournalOp = 1
	OpBlockAlloc  JournalOp = 2
	OpBlockFree   JournalOp = 3
	OpDirUpdate   JournalOp = 4
	OpSuperUpdate JournalOp = 5
	OpCommit      JournalOp = 255
)

// journalHeaderSize is the fixed 32-byte on-disk entry header from spec
// §6.2: transaction_id(8) | timestamp(8) | inode_num(4) | op_type(1) |
// reserved(3) | payload_size(4) | pad(4).
const journalHeaderSize = 32

// JournalEntry is one in-memory WAL record (spec §3).
type JournalEntry struct {
	TransactionID uint64
	Timestamp     int64
	InodeNum      uint32
	OpType        JournalOp
	Payload       []byte
}

func (e *JournalEntry) encode() []byte {
	buf := make([]byte, journalHeaderSize+len(e.Payload))
	binary.LittleEndian.PutUint64(buf[0:8], e.TransactionID)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Timestamp))
	binary.LittleEndian.PutUint32(buf[16:20], e.InodeNum)
	buf[20] = byte(e.OpType)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(len(e.Payload)))
	copy(buf[journalHeaderSize:], e.Payload)
	return buf
}

func decodeJournalEntry(buf []byte) (*JournalEntry, int, error) {
	if len(buf) < journalHeaderSize {
		return nil, 0, newErr("journal.decode", EIO, "short header")
	}
	e := &JournalEntry{
		TransactionID: binary.LittleEndian.Uint64(buf[0:8]),
		Timestamp:     int64(binary.LittleEndian.Uint64(buf[8:16])),
		InodeNum:      binary.LittleEndian.Uint32(buf[16:20]),
		OpType:        JournalOp(buf[20]),
	}
	payloadSize := binary.LittleEndian.Uint32(buf[24:28])
	total := journalHeaderSize + int(payloadSize)
	if len(buf) < total {
		return nil, 0, newErr("journal.decode", EIO, "short payload")
	}
	e.Payload = append([]byte(nil), buf[journalHeaderSize:total]...)
	return e, total, nil
}

// Journal is the circular write-ahead log from spec §4.5: a ring of up
// to MaxJournalEntries in-memory entries backed by journal_size blocks on
// disk, replayed at mount time to restore crash consistency.
type Journal struct {
	mu sync.Mutex

	entries []*JournalEntry // ring of MaxJournalEntries slots; count is how many are in use
	head    int
	tail    int
	count   int
	nextTxn uint64

	dev          *blockDevice
	journalStart uint64
	journalSize  uint32

	log *logrus.Entry
}

func newJournal(dev *blockDevice, journalStart uint64, journalSize uint32, log *logrus.Entry) *Journal {
	return &Journal{
		entries:      make([]*JournalEntry, MaxJournalEntries),
		nextTxn:      1,
		dev:          dev,
		journalStart: journalStart,
		journalSize:  journalSize,
		log:          log,
	}
}

// Add appends a journal entry (spec §4.5). The payload is copied so the
// caller's buffer can be reused immediately. Returns the assigned
// transaction id, never 0 (0 is reserved for "no transaction").
func (j *Journal) Add(inodeNum uint32, op JournalOp, payload []byte) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.count >= MaxJournalEntries {
		return 0, newErr("journal.add", ENOSPC, "journal full")
	}

	owned := append([]byte(nil), payload...)
	e := &JournalEntry{
		TransactionID: j.nextTxn,
		Timestamp:     time.Now().UnixNano(),
		InodeNum:      inodeNum,
		OpType:        op,
		Payload:       owned,
	}
	j.nextTxn++

	j.entries[j.head] = e
	j.head = (j.head + 1) % MaxJournalEntries
	j.count++
	return e.TransactionID, nil
}

// Commit appends a COMMIT marker for the transaction in progress,
// serializes the ring's new entries to the on-disk journal region, and
// flushes the device. Only after this returns may the corresponding
// in-place metadata writes be issued (spec §4.5).
func (j *Journal) Commit() error {
	j.mu.Lock()
	if j.count >= MaxJournalEntries {
		j.mu.Unlock()
		return newErr("journal.commit", ENOSPC, "journal full")
	}
	marker := &JournalEntry{
		TransactionID: j.nextTxn,
		Timestamp:     time.Now().UnixNano(),
		OpType:        OpCommit,
	}
	j.nextTxn++
	j.entries[j.head] = marker
	j.head = (j.head + 1) % MaxJournalEntries
	j.count++

	// Snapshot the ring to serialize, then release the lock before the
	// blocking flush, per spec §5 ("journal lock ... released before the
	// flush").
	snapshot := j.snapshotLocked()
	j.mu.Unlock()

	if err := j.writeToDisk(snapshot); err != nil {
		return err
	}
	return j.dev.Flush()
}

func (j *Journal) snapshotLocked() []*JournalEntry {
	out := make([]*JournalEntry, 0, j.count)
	idx := j.tail
	for n := 0; n < j.count; n++ {
		out = append(out, j.entries[idx])
		idx = (idx + 1) % MaxJournalEntries
	}
	return out
}

// writeToDisk serializes entries end-to-end into the journal region,
// always starting at journal_start. Writes never wrap: a serialization
// longer than journal_size*block_size bytes is rejected with ENOSPC.
func (j *Journal) writeToDisk(entries []*JournalEntry) error {
	region := uint64(j.journalSize) * uint64(j.dev.BlockSize())
	if region == 0 {
		return nil
	}
	var buf bytes.Buffer
	for _, e := range entries {
		buf.Write(e.encode())
	}
	data := buf.Bytes()
	if uint64(len(data)) > region {
		return newErr("journal.commit", ENOSPC, "transaction larger than journal area")
	}

	bs := j.dev.BlockSize()
	written := uint64(0)
	for written < uint64(len(data)) {
		blockOfft := written % region / uint64(bs)
		inBlock := written % uint64(bs)
		blk, err := j.dev.ReadBlock(j.journalStart + blockOfft)
		if err != nil {
			return err
		}
		n := copy(blk[inBlock:], data[written:])
		if err := j.dev.WriteBlock(j.journalStart+blockOfft, blk); err != nil {
			return err
		}
		written += uint64(n)
	}
	return nil
}

// Clear zeroes in-memory bookkeeping. On-disk journal blocks are not
// required to be zeroed; future commits overwrite them (spec §4.5).
func (j *Journal) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.entries {
		j.entries[i] = nil
	}
	j.head, j.tail, j.count = 0, 0, 0
}

// replayTransaction groups consecutive entries terminated by a COMMIT
// marker.
type replayTransaction struct {
	entries []*JournalEntry
}

// readAllFromDisk reads the entire on-disk journal region and decodes as
// many entries as fit, stopping at the first record that fails to decode
// (a zeroed/garbage tail, or the all-zero region of a freshly formatted
// volume).
func (j *Journal) readAllFromDisk() ([]*JournalEntry, error) {
	region := uint64(j.journalSize) * uint64(j.dev.BlockSize())
	if region == 0 {
		return nil, nil
	}
	buf := make([]byte, 0, region)
	for b := uint64(0); b < uint64(j.journalSize); b++ {
		blk, err := j.dev.ReadBlock(j.journalStart + b)
		if err != nil {
			return nil, err
		}
		buf = append(buf, blk...)
	}

	var out []*JournalEntry
	offset := 0
	for offset+journalHeaderSize <= len(buf) {
		e, n, err := decodeJournalEntry(buf[offset:])
		if err != nil {
			break
		}
		if e.TransactionID == 0 {
			break // unwritten tail
		}
		out = append(out, e)
		offset += n
	}
	return out, nil
}

// groupTransactions splits a flat entry stream into transactions
// terminated by a COMMIT marker. Any trailing entries without a
// terminating COMMIT are a torn transaction and are returned separately,
// discarded by the caller (spec §4.5).
func groupTransactions(entries []*JournalEntry) (committed []replayTransaction, torn []*JournalEntry) {
	var current []*JournalEntry
	for _, e := range entries {
		if e.OpType == OpCommit {
			committed = append(committed, replayTransaction{entries: current})
			current = nil
			continue
		}
		current = append(current, e)
	}
	torn = current
	return
}
