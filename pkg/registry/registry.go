// Package registry implements the game registry: the durable mapping from a
// caller-assigned game id to the final move-blob hash and metadata hash that
// together let reconstruction replay one specific game. It is the only
// component that knows games exist as distinct, addressable entities; the
// blob and metadata stores underneath it only know about content-addressed
// chains and records.
package registry

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/herohde/ccamc/pkg/blob"
	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/herohde/ccamc/pkg/metadata"
)

// Entry is one registered game's terminal pointers.
type Entry struct {
	FinalBlob blob.Hash
	Metadata  metadata.Hash
}

// Store is the game registry for one store directory, backed by the
// "registry" file in the external file set: 8-byte count, then repeated
// (4-byte key length, key bytes, 8-byte final-blob hash, 8-byte metadata
// hash). The whole log is replayed into memory on Open. Registered entries
// are durable but invisible to a reopening reader until Flush (or Close)
// publishes the count header; the registry is flushed last, after the
// blob/string/metadata stores its entries point into, so a crash never
// publishes a game whose data is not yet published.
type Store struct {
	mu sync.Mutex

	f       *os.File
	entries map[string]Entry
	count   uint64 // entries appended, published or not
	pubbed  uint64 // entries covered by the on-disk count header
	end     int64  // file offset one past the last appended record
}

// Open loads (or creates) the registry in dir (file name "registry").
func Open(dir string) (*Store, error) {
	f, err := os.OpenFile(dir+"/registry", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, ccerr.New(ccerr.IOError, "registry.Open", err)
	}

	s := &Store{f: f, entries: map[string]Entry{}}
	if err := s.load(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	fi, err := s.f.Stat()
	if err != nil {
		return ccerr.New(ccerr.IOError, "registry.load", err)
	}
	if fi.Size() == 0 {
		s.end = 8
		return s.writeCount(0)
	}

	var countBuf [8]byte
	if _, err := s.f.ReadAt(countBuf[:], 0); err != nil {
		return ccerr.New(ccerr.IOError, "registry.load", err)
	}
	count := binary.LittleEndian.Uint64(countBuf[:])

	off := int64(8)
	for i := uint64(0); i < count; i++ {
		var lenBuf [4]byte
		if _, err := s.f.ReadAt(lenBuf[:], off); err != nil {
			return ccerr.New(ccerr.IOError, "registry.load", err)
		}
		klen := binary.LittleEndian.Uint32(lenBuf[:])
		off += 4

		rec := make([]byte, int(klen)+16)
		if _, err := s.f.ReadAt(rec, off); err != nil {
			return ccerr.New(ccerr.IOError, "registry.load", err)
		}
		key := string(rec[:klen])
		entry := Entry{
			FinalBlob: blob.Hash(binary.LittleEndian.Uint64(rec[klen : klen+8])),
			Metadata:  metadata.Hash(binary.LittleEndian.Uint64(rec[klen+8 : klen+16])),
		}
		s.entries[key] = entry
		off += int64(klen) + 16
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
		return ccerr.New(ccerr.IOError, "registry.writeCount", err)
	}
	return nil
}

// Register binds id to the given terminal pointers. It fails with
// ccerr.DuplicateGameId if id is already registered, matching the append-only
// nature of the log: games are never re-pointed once registered.
func (s *Store) Register(id string, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; ok {
		return ccerr.Newf(ccerr.DuplicateGameId, "registry.Register", "game id %q already registered", id)
	}

	rec := make([]byte, 4+len(id)+16)
	binary.LittleEndian.PutUint32(rec[0:4], uint32(len(id)))
	copy(rec[4:4+len(id)], id)
	binary.LittleEndian.PutUint64(rec[4+len(id):12+len(id)], uint64(e.FinalBlob))
	binary.LittleEndian.PutUint64(rec[12+len(id):20+len(id)], uint64(e.Metadata))

	if _, err := s.f.WriteAt(rec, s.end); err != nil {
		return ccerr.New(ccerr.IOError, "registry.Register", err)
	}
	s.end += int64(len(rec))
	s.count++

	s.entries[id] = e
	return nil
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
		return ccerr.New(ccerr.IOError, "registry.Flush", err)
	}
	if err := s.writeCount(s.count); err != nil {
		return err
	}
	if err := s.f.Sync(); err != nil {
		return ccerr.New(ccerr.IOError, "registry.Flush", err)
	}
	s.pubbed = s.count
	return nil
}

// Lookup returns the terminal pointers registered for id.
func (s *Store) Lookup(id string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ccerr.Newf(ccerr.NotFound, "registry.Lookup", "game id %q not found", id)
	}
	return e, nil
}

// Each calls fn for every registered game, for verification and GC marking.
// Iteration stops at the first error returned by fn.
func (s *Store) Each(fn func(id string, e Entry) error) error {
	s.mu.Lock()
	snapshot := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		snapshot[k] = v
	}
	s.mu.Unlock()

	for id, e := range snapshot {
		if err := fn(id, e); err != nil {
			return err
		}
	}
	return nil
}

// Close publishes any pending entries and releases the underlying file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return err
	}
	if err := s.f.Close(); err != nil {
		return ccerr.New(ccerr.IOError, "registry.Close", err)
	}
	return nil
}

// Len returns the number of registered games.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
