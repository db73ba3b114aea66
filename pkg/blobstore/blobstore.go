// Package blobstore implements the append-only pack file, sorted hash index
// and in-memory fan-out table described in the data model's blob store
// component: the canonical repository of move blobs. The on-disk layout and
// the fan-out/binary-search lookup strategy are modeled on
// compactindexsized's bucket design (itself a cdb/constant-database
// derivative), adapted from a multi-bucket on-disk hash table to a single
// globally-sorted in-memory index sized for this store's working set.
package blobstore

import (
	"encoding/binary"
	"os"
	"sort"
	"sync"

	"github.com/herohde/ccamc/pkg/blob"
	"github.com/herohde/ccamc/pkg/ccerr"
)

const (
	magic         = "CHSS"
	packHeaderLen = 16
	version       = uint16(1)

	fanoutSize = 1 << 16
)

type entry struct {
	hash   blob.Hash
	offset uint64
}

// Store is the canonical repository of move blobs for one store directory. It
// is not safe for concurrent writers; the single-writer contract is enforced
// one layer up, by the store-wide file lock in pkg/ccamc.
type Store struct {
	mu sync.Mutex

	pack *os.File
	idx  *os.File

	entries []entry // sorted by hash, includes unflushed appends
	fanout  [fanoutSize]uint32

	publishedCount uint64 // blob count last published in the pack header
	appendedCount  uint64 // blobs physically appended to the pack file so far

	// dirty is set only by in-process writes (Put appends, mergeMetadata flag
	// merges), never by load, so a pure reader's Close cannot be tricked into
	// rewriting shared files by orphan bytes a crashed writer left behind.
	dirty bool
}

// Open opens or creates the pack and index files inside dir (named "moves"
// and "idx", per the external file set) and loads the existing index fully
// into memory.
func Open(dir string) (*Store, error) {
	pack, err := os.OpenFile(dir+"/moves", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ccerr.New(ccerr.IOError, "blobstore.Open", err)
	}
	idx, err := os.OpenFile(dir+"/idx", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		pack.Close()
		return nil, ccerr.New(ccerr.IOError, "blobstore.Open", err)
	}

	s := &Store{pack: pack, idx: idx}
	if err := s.load(); err != nil {
		pack.Close()
		idx.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	fi, err := s.pack.Stat()
	if err != nil {
		return ccerr.New(ccerr.IOError, "blobstore.load", err)
	}

	if fi.Size() == 0 {
		if err := s.writeHeader(0); err != nil {
			return err
		}
	} else {
		var hdr [packHeaderLen]byte
		if _, err := s.pack.ReadAt(hdr[:], 0); err != nil {
			return ccerr.New(ccerr.IOError, "blobstore.load", err)
		}
		if string(hdr[0:4]) != magic {
			return ccerr.Newf(ccerr.InvalidBlob, "blobstore.load", "bad pack magic in %v", s.pack.Name())
		}
		s.publishedCount = binary.LittleEndian.Uint64(hdr[6:14])
	}
	s.appendedCount = (uint64(mustSize(s.pack)) - packHeaderLen) / blob.Size

	idxSize, err := s.idx.Stat()
	if err != nil {
		return ccerr.New(ccerr.IOError, "blobstore.load", err)
	}
	n := idxSize.Size() / 16
	s.entries = make([]entry, 0, n)
	buf := make([]byte, 16)
	for i := int64(0); i < n; i++ {
		if _, err := s.idx.ReadAt(buf, i*16); err != nil {
			return ccerr.New(ccerr.IOError, "blobstore.load", err)
		}
		s.entries = append(s.entries, entry{
			hash:   blob.Hash(binary.LittleEndian.Uint64(buf[0:8])),
			offset: binary.LittleEndian.Uint64(buf[8:16]),
		})
	}
	s.rebuildFanout()
	return nil
}

func mustSize(f *os.File) int64 {
	fi, err := f.Stat()
	if err != nil {
		return packHeaderLen
	}
	return fi.Size()
}

func (s *Store) writeHeader(count uint64) error {
	var hdr [packHeaderLen]byte
	copy(hdr[0:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:6], version)
	binary.LittleEndian.PutUint64(hdr[6:14], count)
	_, err := s.pack.WriteAt(hdr[:], 0)
	if err != nil {
		return ccerr.New(ccerr.IOError, "blobstore.writeHeader", err)
	}
	return nil
}

func top16(h blob.Hash) uint32 {
	return uint32(uint64(h) >> 48)
}

func (s *Store) rebuildFanout() {
	var fi int
	for bucket := 0; bucket < fanoutSize; bucket++ {
		for fi < len(s.entries) && top16(s.entries[fi].hash) < uint32(bucket) {
			fi++
		}
		s.fanout[bucket] = uint32(fi)
	}
}

func (s *Store) find(h blob.Hash) (int, bool) {
	bucket := top16(h)
	lo := int(s.fanout[bucket])
	hi := len(s.entries)
	if bucket+1 < fanoutSize {
		hi = int(s.fanout[bucket+1])
	}
	slice := s.entries[lo:hi]
	i := sort.Search(len(slice), func(i int) bool { return slice[i].hash >= h })
	if i < len(slice) && slice[i].hash == h {
		return lo + i, true
	}
	return 0, false
}

// Exists reports whether a blob with the given hash is present.
func (s *Store) Exists(h blob.Hash) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.find(h)
	return ok
}

// Get fetches a blob by hash, failing with ccerr.NotFound if absent.
func (s *Store) Get(h blob.Hash) (blob.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.find(h)
	if !ok {
		return blob.Blob{}, ccerr.Newf(ccerr.NotFound, "blobstore.Get", "blob %x not found", uint64(h))
	}

	buf := make([]byte, blob.Size)
	if _, err := s.pack.ReadAt(buf, int64(s.entries[i].offset)); err != nil {
		return blob.Blob{}, ccerr.New(ccerr.IOError, "blobstore.Get", err)
	}
	b, err := blob.Decode(buf)
	if err != nil {
		return blob.Blob{}, ccerr.New(ccerr.InvalidBlob, "blobstore.Get", err)
	}
	if got := b.Hash(); got != h {
		return blob.Blob{}, ccerr.Newf(ccerr.IntegrityError, "blobstore.Get", "blob %x content hash recomputes to %x: pack corruption", uint64(h), uint64(got))
	}
	return b, nil
}

// Put computes b's content hash, returning the existing hash if an identical
// blob is already present; otherwise it appends b to the pack and index and
// returns the new hash. The blob is physically durable after Put returns, but
// not visible to readers of this store until the next Flush publishes it.
//
// Flags and result are deliberately excluded from the content hash, so a
// Put that dedups against an existing blob can still carry flags/result the
// stored copy lacks - e.g. a pure opening-anchor blob that a later, shorter
// game also terminates on, which must end up carrying both flag bits.
// mergeMetadata upgrades the persisted record in place for exactly that
// case.
func (s *Store) Put(b blob.Blob) (blob.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := b.Hash()
	if i, ok := s.find(h); ok {
		if err := s.mergeMetadata(i, b); err != nil {
			return 0, err
		}
		return h, nil
	}

	enc, err := b.Encode()
	if err != nil {
		return 0, ccerr.New(ccerr.InvalidBlob, "blobstore.Put", err)
	}

	offset := packHeaderLen + s.appendedCount*blob.Size
	if _, err := s.pack.WriteAt(enc[:], int64(offset)); err != nil {
		return 0, ccerr.New(ccerr.IOError, "blobstore.Put", err)
	}
	s.appendedCount++
	s.dirty = true

	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].hash >= h })
	s.entries = append(s.entries, entry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = entry{hash: h, offset: offset}
	s.rebuildFanout()

	return h, nil
}

// mergeMetadata OR-merges incoming.Flags into the already-persisted blob at
// entries[i] and, if the stored record has no result yet, adopts incoming's.
// Parent, moves and Zobrist are never touched: they are exactly what the
// matching content hash already guarantees are identical.
func (s *Store) mergeMetadata(i int, incoming blob.Blob) error {
	offset := int64(s.entries[i].offset)

	buf := make([]byte, blob.Size)
	if _, err := s.pack.ReadAt(buf, offset); err != nil {
		return ccerr.New(ccerr.IOError, "blobstore.mergeMetadata", err)
	}
	stored, err := blob.Decode(buf)
	if err != nil {
		return ccerr.New(ccerr.InvalidBlob, "blobstore.mergeMetadata", err)
	}

	merged := stored
	merged.Flags |= incoming.Flags
	if stored.Result == blob.Unknown && incoming.Result != blob.Unknown {
		merged.Result = incoming.Result
	}
	if merged == stored {
		return nil
	}

	enc, err := merged.Encode()
	if err != nil {
		return ccerr.New(ccerr.InvalidBlob, "blobstore.mergeMetadata", err)
	}
	if _, err := s.pack.WriteAt(enc[:], offset); err != nil {
		return ccerr.New(ccerr.IOError, "blobstore.mergeMetadata", err)
	}
	s.dirty = true
	return nil
}

// Flush publishes every appended blob: the sorted index file is rewritten
// and synced, the appended blob bytes are synced, and only then is the pack
// header's blob count updated, so a reader observing the new published count
// always sees a fully sorted index prefix covering durable blobs.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if !s.dirty {
		return nil
	}

	buf := make([]byte, 16*len(s.entries))
	for i, e := range s.entries {
		binary.LittleEndian.PutUint64(buf[16*i:], uint64(e.hash))
		binary.LittleEndian.PutUint64(buf[16*i+8:], e.offset)
	}
	if _, err := s.idx.WriteAt(buf, 0); err != nil {
		return ccerr.New(ccerr.IOError, "blobstore.Flush", err)
	}
	if err := s.idx.Truncate(int64(len(buf))); err != nil {
		return ccerr.New(ccerr.IOError, "blobstore.Flush", err)
	}
	if err := s.idx.Sync(); err != nil {
		return ccerr.New(ccerr.IOError, "blobstore.Flush", err)
	}
	if err := s.pack.Sync(); err != nil {
		return ccerr.New(ccerr.IOError, "blobstore.Flush", err)
	}

	if err := s.writeHeader(s.appendedCount); err != nil {
		return err
	}
	if err := s.pack.Sync(); err != nil {
		return ccerr.New(ccerr.IOError, "blobstore.Flush", err)
	}
	s.publishedCount = s.appendedCount
	s.dirty = false
	return nil
}

// Each calls fn for every indexed blob, in hash order, for verification
// and GC. Iteration stops at the first error returned by fn.
func (s *Store) Each(fn func(blob.Hash, blob.Blob) error) error {
	s.mu.Lock()
	entries := append([]entry(nil), s.entries...)
	s.mu.Unlock()

	for _, e := range entries {
		buf := make([]byte, blob.Size)
		if _, err := s.pack.ReadAt(buf, int64(e.offset)); err != nil {
			return ccerr.New(ccerr.IOError, "blobstore.Each", err)
		}
		b, err := blob.Decode(buf)
		if err != nil {
			return ccerr.New(ccerr.InvalidBlob, "blobstore.Each", err)
		}
		if err := fn(e.hash, b); err != nil {
			return err
		}
	}
	return nil
}

// Close publishes any pending blobs and releases the underlying file handles.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.flushLocked(); err != nil {
		return err
	}

	err1 := s.pack.Close()
	err2 := s.idx.Close()
	if err1 != nil {
		return ccerr.New(ccerr.IOError, "blobstore.Close", err1)
	}
	if err2 != nil {
		return ccerr.New(ccerr.IOError, "blobstore.Close", err2)
	}
	return nil
}

// Len returns the number of blobs currently appended (published or not).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
