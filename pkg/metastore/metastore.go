// Package metastore persists serialized metadata blobs, content-addressed
// and deduplicated exactly as the string store deduplicates interned text:
// identical metadata bodies (same headers, same annotations) collapse to a
// single stored record regardless of how many games reference them.
package metastore

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/herohde/ccamc/pkg/metadata"
)

// Store is the metadata blob log for one store directory, backed by the
// "metadata" file in the external file set: 8-byte count, then repeated
// (8-byte hash, 4-byte length, length bytes). The whole log is read into
// memory on Open; Put appends new records. Appended records are durable but
// invisible to a reopening reader until Flush (or Close) publishes the count
// header, so a crash before then leaves the published prefix intact.
type Store struct {
	mu sync.Mutex

	f       *os.File
	records map[metadata.Hash][]byte
	count   uint64 // records appended, published or not
	pubbed  uint64 // records covered by the on-disk count header
	end     int64  // file offset one past the last appended record
}

// Open loads (or creates) the metadata store in dir (file name "metadata").
func Open(dir string) (*Store, error) {
	f, err := os.OpenFile(dir+"/metadata", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ccerr.New(ccerr.IOError, "metastore.Open", err)
	}

	s := &Store{f: f, records: map[metadata.Hash][]byte{}}
	if err := s.load(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	fi, err := s.f.Stat()
	if err != nil {
		return ccerr.New(ccerr.IOError, "metastore.load", err)
	}
	if fi.Size() == 0 {
		s.end = 8
		return s.writeCount(0)
	}

	var countBuf [8]byte
	if _, err := s.f.ReadAt(countBuf[:], 0); err != nil {
		return ccerr.New(ccerr.IOError, "metastore.load", err)
	}
	count := binary.LittleEndian.Uint64(countBuf[:])

	off := int64(8)
	for i := uint64(0); i < count; i++ {
		var hdr [12]byte
		if _, err := s.f.ReadAt(hdr[:], off); err != nil {
			return ccerr.New(ccerr.IOError, "metastore.load", err)
		}
		h := metadata.Hash(binary.LittleEndian.Uint64(hdr[0:8]))
		length := binary.LittleEndian.Uint32(hdr[8:12])

		buf := make([]byte, length)
		if _, err := s.f.ReadAt(buf, off+12); err != nil {
			return ccerr.New(ccerr.IOError, "metastore.load", err)
		}
		s.records[h] = buf
		off += 12 + int64(length)
	}
	s.count = count
	s.pubbed = count
	s.end = off
	return nil
}

func (s *Store) writeCount(n uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], n)
	if _, err := s.f.WriteAt(buf[:], 0); err != nil {
		return ccerr.New(ccerr.IOError, "metastore.writeCount", err)
	}
	return nil
}

// Put serializes m, deduplicating on content hash, and returns the hash under
// which it is (or already was) stored.
func (s *Store) Put(m metadata.Metadata) (metadata.Hash, error) {
	enc, err := m.Encode()
	if err != nil {
		return 0, ccerr.New(ccerr.InvalidBlob, "metastore.Put", err)
	}
	return s.PutEncoded(enc)
}

// PutEncoded stores an already-serialized metadata blob, for callers (e.g.
// GC) that move raw bytes without re-decoding them.
func (s *Store) PutEncoded(enc []byte) (metadata.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := metadata.HashOf(enc)
	if _, ok := s.records[h]; ok {
		return h, nil
	}

	rec := make([]byte, 12+len(enc))
	binary.LittleEndian.PutUint64(rec[0:8], uint64(h))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(enc)))
	copy(rec[12:], enc)

	if _, err := s.f.WriteAt(rec, s.end); err != nil {
		return 0, ccerr.New(ccerr.IOError, "metastore.Put", err)
	}
	s.end += int64(len(rec))
	s.count++

	stored := make([]byte, len(enc))
	copy(stored, enc)
	s.records[h] = stored
	return h, nil
}

// Flush publishes every appended record by rewriting the count header, after
// syncing the record bytes it points at.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if s.pubbed == s.count {
		return nil
	}
	if err := s.f.Sync(); err != nil {
		return ccerr.New(ccerr.IOError, "metastore.Flush", err)
	}
	if err := s.writeCount(s.count); err != nil {
		return err
	}
	if err := s.f.Sync(); err != nil {
		return ccerr.New(ccerr.IOError, "metastore.Flush", err)
	}
	s.pubbed = s.count
	return nil
}

// Get fetches and decodes the metadata blob stored under hash.
func (s *Store) Get(h metadata.Hash) (metadata.Metadata, error) {
	s.mu.Lock()
	enc, ok := s.records[h]
	s.mu.Unlock()
	if !ok {
		return metadata.Metadata{}, ccerr.Newf(ccerr.NotFound, "metastore.Get", "metadata %x not found", uint64(h))
	}
	return metadata.Decode(enc)
}

// Each calls fn for every stored metadata record, for verification and GC.
// Iteration stops at the first error returned by fn.
func (s *Store) Each(fn func(metadata.Hash, []byte) error) error {
	s.mu.Lock()
	snapshot := make(map[metadata.Hash][]byte, len(s.records))
	for h, b := range s.records {
		snapshot[h] = b
	}
	s.mu.Unlock()

	for h, b := range snapshot {
		if err := fn(h, b); err != nil {
			return err
		}
	}
	return nil
}

// Close publishes any pending records and releases the underlying file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return err
	}
	if err := s.f.Close(); err != nil {
		return ccerr.New(ccerr.IOError, "metastore.Close", err)
	}
	return nil
}

// Len returns the number of distinct metadata records stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
