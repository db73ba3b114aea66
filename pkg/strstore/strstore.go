// Package strstore implements the content-addressable string interning store:
// a mapping from 64-bit content hash to UTF-8 bytes, used to deduplicate
// header values and annotation text across games.
package strstore

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/herohde/ccamc/pkg/ccerr"
)

// Hash is the 64-bit content digest of an interned string.
type Hash uint64

// Store is the string interning store for one store directory, backed by the
// "strings" file in the external file set: 8-byte count, then repeated
// (8-byte hash, 4-byte length, length bytes UTF-8). The entire mapping is
// read into memory on Open; Intern appends new entries. Appended records are
// durable but invisible to a reopening reader until Flush (or Close)
// publishes the count header; a crash before then leaves the published
// prefix intact and the trailing bytes to be overwritten by later appends.
type Store struct {
	mu sync.Mutex

	f       *os.File
	strings map[Hash]string
	count   uint64 // entries appended, published or not
	pubbed  uint64 // entries covered by the on-disk count header
	end     int64  // file offset one past the last appended record
}

// Open loads (or creates) the string store in dir (file name "strings").
func Open(dir string) (*Store, error) {
	f, err := os.OpenFile(dir+"/strings", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ccerr.New(ccerr.IOError, "strstore.Open", err)
	}

	s := &Store{f: f, strings: map[Hash]string{}}
	if err := s.load(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	fi, err := s.f.Stat()
	if err != nil {
		return ccerr.New(ccerr.IOError, "strstore.load", err)
	}
	if fi.Size() == 0 {
		s.end = 8
		return s.writeCount(0)
	}

	var countBuf [8]byte
	if _, err := s.f.ReadAt(countBuf[:], 0); err != nil {
		return ccerr.New(ccerr.IOError, "strstore.load", err)
	}
	count := binary.LittleEndian.Uint64(countBuf[:])

	off := int64(8)
	for i := uint64(0); i < count; i++ {
		var hdr [12]byte
		if _, err := s.f.ReadAt(hdr[:], off); err != nil {
			return ccerr.New(ccerr.IOError, "strstore.load", err)
		}
		h := Hash(binary.LittleEndian.Uint64(hdr[0:8]))
		length := binary.LittleEndian.Uint32(hdr[8:12])

		buf := make([]byte, length)
		if _, err := s.f.ReadAt(buf, off+12); err != nil {
			return ccerr.New(ccerr.IOError, "strstore.load", err)
		}
		s.strings[h] = string(buf)
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
		return ccerr.New(ccerr.IOError, "strstore.writeCount", err)
	}
	return nil
}

// Intern computes the content hash of b, returning the existing hash
// immediately if already present; otherwise it appends a new entry.
func (s *Store) Intern(b []byte) (Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := Hash(xxhash.Sum64(b))
	if _, ok := s.strings[h]; ok {
		return h, nil
	}

	rec := make([]byte, 12+len(b))
	binary.LittleEndian.PutUint64(rec[0:8], uint64(h))
	binary.LittleEndian.PutUint32(rec[8:12], uint32(len(b)))
	copy(rec[12:], b)

	if _, err := s.f.WriteAt(rec, s.end); err != nil {
		return 0, ccerr.New(ccerr.IOError, "strstore.Intern", err)
	}
	s.end += int64(len(rec))
	s.count++

	s.strings[h] = string(b)
	return h, nil
}

// Flush publishes every appended entry by rewriting the count header, after
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
		return ccerr.New(ccerr.IOError, "strstore.Flush", err)
	}
	if err := s.writeCount(s.count); err != nil {
		return err
	}
	if err := s.f.Sync(); err != nil {
		return ccerr.New(ccerr.IOError, "strstore.Flush", err)
	}
	s.pubbed = s.count
	return nil
}

// Lookup returns the bytes interned under hash, failing with ccerr.NotFound if absent.
func (s *Store) Lookup(h Hash) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.strings[h]
	if !ok {
		return nil, ccerr.Newf(ccerr.NotFound, "strstore.Lookup", "string %x not found", uint64(h))
	}
	return []byte(v), nil
}

// Close publishes any pending entries and releases the underlying file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return err
	}
	if err := s.f.Close(); err != nil {
		return ccerr.New(ccerr.IOError, "strstore.Close", err)
	}
	return nil
}
