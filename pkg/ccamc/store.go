// Package ccamc implements the top-level Chess Content-Addressable Move-Chain
// storage engine: the Store that ties the blob, string, metadata and
// registry layers together behind Ingest/Reconstruct/Verify, enforcing the
// single-writer concurrency model and periodic flush policy.
package ccamc

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	"github.com/herohde/ccamc/pkg/blob"
	"github.com/herohde/ccamc/pkg/blobstore"
	"github.com/herohde/ccamc/pkg/catalog"
	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/herohde/ccamc/pkg/metastore"
	"github.com/herohde/ccamc/pkg/registry"
	"github.com/herohde/ccamc/pkg/rules"
	"github.com/herohde/ccamc/pkg/rules/fen"
	"github.com/herohde/ccamc/pkg/strstore"
	"github.com/seekerror/build"
	"github.com/seekerror/logw"
	"github.com/seekerror/stdlib/pkg/lang"
)

var version = build.NewVersion(0, 1, 0)

// DefaultFlushInterval is the number of Ingest calls between automatic
// flushes of a writer store.
const DefaultFlushInterval = 100

// Options are store creation options.
type Options struct {
	// FlushInterval is the number of games ingested between automatic
	// flushes. Zero disables automatic flushing; the caller must Flush
	// explicitly.
	FlushInterval uint
	// ZobristSeed seeds the rules engine's Zobrist table. Store directories
	// opened with different seeds are not hash-compatible with each other.
	ZobristSeed int64
	// PlyThreshold is the minimum opening-book match depth, in plies, before
	// a blob may be flagged as an opening anchor. If unset, catalog.DefaultPlyThreshold applies.
	PlyThreshold lang.Optional[int]
}

func (o Options) String() string {
	threshold := catalog.DefaultPlyThreshold
	if v, ok := o.PlyThreshold.V(); ok {
		threshold = v
	}
	return fmt.Sprintf("{flush=%v, seed=%v, plyThreshold=%v}", o.FlushInterval, o.ZobristSeed, threshold)
}

// Store is a single Chess Content-Addressable Move-Chain store directory.
// Not safe for concurrent use by multiple goroutines beyond what the
// underlying layers already serialize internally.
type Store struct {
	dir  string
	opts Options

	lock       *flock.Flock
	isWriter   bool
	zt         *rules.ZobristTable
	initHash   blob.Hash
	catalog    *catalog.Catalog
	sinceFlush uint

	blobs *blobstore.Store
	strs  *strstore.Store
	meta  *metastore.Store
	reg   *registry.Store

	mu sync.Mutex
}

// Option is a store creation option.
type Option func(*Options)

// WithFlushInterval overrides DefaultFlushInterval.
func WithFlushInterval(n uint) Option {
	return func(o *Options) { o.FlushInterval = n }
}

// WithZobristSeed configures the rules engine's Zobrist table seed.
func WithZobristSeed(seed int64) Option {
	return func(o *Options) { o.ZobristSeed = seed }
}

// WithPlyThreshold overrides catalog.DefaultPlyThreshold for opening-anchor
// flagging.
func WithPlyThreshold(n int) Option {
	return func(o *Options) { o.PlyThreshold = lang.Some(n) }
}

func (o Options) plyThreshold() int {
	if v, ok := o.PlyThreshold.V(); ok {
		return v
	}
	return catalog.DefaultPlyThreshold
}

// OpenReader opens dir without taking the exclusive writer lock. Ingest is
// not available on a reader store.
func OpenReader(ctx context.Context, dir string, opts ...Option) (*Store, error) {
	return open(ctx, dir, false, opts)
}

// OpenWriter opens dir and takes the exclusive single-writer file lock,
// failing immediately if another writer already holds it.
func OpenWriter(ctx context.Context, dir string, opts ...Option) (*Store, error) {
	return open(ctx, dir, true, opts)
}

func open(ctx context.Context, dir string, writer bool, opts []Option) (*Store, error) {
	o := Options{FlushInterval: DefaultFlushInterval}
	for _, fn := range opts {
		fn(&o)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, ccerr.New(ccerr.IOError, "ccamc.open", err)
	}
	if err := writeOrVerifyConfig(dir); err != nil {
		return nil, err
	}

	lock := flock.New(dir + "/LOCK")
	if writer {
		ok, err := lock.TryLock()
		if err != nil {
			return nil, ccerr.New(ccerr.IOError, "ccamc.open", err)
		}
		if !ok {
			return nil, ccerr.Newf(ccerr.IOError, "ccamc.open", "store %v is already locked by another writer", dir)
		}
	}

	blobs, err := blobstore.Open(dir)
	if err != nil {
		closeLock(lock, writer)
		return nil, err
	}
	strs, err := strstore.Open(dir)
	if err != nil {
		blobs.Close()
		closeLock(lock, writer)
		return nil, err
	}
	meta, err := metastore.Open(dir)
	if err != nil {
		blobs.Close()
		strs.Close()
		closeLock(lock, writer)
		return nil, err
	}
	reg, err := registry.Open(dir)
	if err != nil {
		blobs.Close()
		strs.Close()
		meta.Close()
		closeLock(lock, writer)
		return nil, err
	}

	zt := rules.NewZobristTable(o.ZobristSeed)
	initPos, turn, _, _, ferr := fen.Decode(fen.Initial)
	if ferr != nil {
		blobs.Close()
		strs.Close()
		meta.Close()
		reg.Close()
		closeLock(lock, writer)
		return nil, ccerr.New(ccerr.IntegrityError, "ccamc.open", ferr)
	}
	initHash := blob.Blob{Parent: 0, Zobrist: uint64(zt.Hash(initPos, turn))}.Hash()

	s := &Store{
		dir:      dir,
		opts:     o,
		lock:     lock,
		isWriter: writer,
		zt:       zt,
		initHash: initHash,
		catalog:  catalog.New(o.plyThreshold()),
		blobs:    blobs,
		strs:     strs,
		meta:     meta,
		reg:      reg,
	}

	logw.Infof(ctx, "Opened store %v (writer=%v): options=%v, H_init=%x", dir, writer, o, uint64(initHash))
	return s, nil
}

func closeLock(lock *flock.Flock, writer bool) {
	if writer {
		_ = lock.Unlock()
	}
}

// initialPosition returns a fresh standard starting position and side to
// move, used to seed replay at the top of every game and variation chain.
func initialPosition() (*rules.Position, rules.Color, int, int, error) {
	return fen.Decode(fen.Initial)
}

// LoadCatalog replaces the store's opening catalog with entries parsed from
// an external tab-separated opening listing. Safe to call repeatedly; later
// calls discard the previous catalog contents.
func (s *Store) LoadCatalog(ctx context.Context, load func(*catalog.Catalog) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := catalog.New(s.opts.plyThreshold())
	if err := load(c); err != nil {
		return ccerr.New(ccerr.CatalogError, "ccamc.LoadCatalog", err)
	}
	s.catalog = c

	logw.Infof(ctx, "Loaded opening catalog (plyThreshold=%v)", s.opts.plyThreshold())
	return nil
}

// InitHash returns H_init, the sentinel parent hash every top-level game
// chain is rooted at.
func (s *Store) InitHash() blob.Hash {
	return s.initHash
}

// Flush durably publishes every pending blob, string and metadata write.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// flushLocked publishes the four stores in dependency order: blobs first,
// then the strings and metadata that reference them, the registry last. A
// crash between any two publishes leaves only unreferenced trailing data,
// never a registered game whose blobs or text are missing.
func (s *Store) flushLocked(ctx context.Context) error {
	if err := s.blobs.Flush(); err != nil {
		return err
	}
	if err := s.strs.Flush(); err != nil {
		return err
	}
	if err := s.meta.Flush(); err != nil {
		return err
	}
	if err := s.reg.Flush(); err != nil {
		return err
	}
	s.sinceFlush = 0
	logw.Infof(ctx, "Flushed store %v", s.dir)
	return nil
}

// Close flushes (if opened as a writer) and releases all store resources,
// including the writer lock.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isWriter {
		if err := s.flushLocked(ctx); err != nil {
			return err
		}
	}

	var firstErr error
	for _, c := range []func() error{s.blobs.Close, s.strs.Close, s.meta.Close, s.reg.Close} {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.isWriter {
		if err := s.lock.Unlock(); err != nil && firstErr == nil {
			firstErr = ccerr.New(ccerr.IOError, "ccamc.Close", err)
		}
	}

	logw.Infof(ctx, "Closed store %v", s.dir)
	return firstErr
}

// maybeAutoFlush flushes if the configured flush interval has been reached.
// Must be called with s.mu held.
func (s *Store) maybeAutoFlush(ctx context.Context) error {
	if s.opts.FlushInterval == 0 {
		return nil
	}
	s.sinceFlush++
	if s.sinceFlush >= s.opts.FlushInterval {
		return s.flushLocked(ctx)
	}
	return nil
}
