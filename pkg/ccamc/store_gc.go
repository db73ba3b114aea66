package ccamc

import (
	"context"
	"os"

	"github.com/herohde/ccamc/pkg/blob"
	"github.com/herohde/ccamc/pkg/blobstore"
	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/herohde/ccamc/pkg/metadata"
	"github.com/herohde/ccamc/pkg/metastore"
	"github.com/herohde/ccamc/pkg/registry"
	"github.com/seekerror/logw"
)

// MarkReachable computes the set of blob and metadata hashes reachable from
// every registered game, by walking each game's blob chain back to H_init
// and recursively following every variation record in its metadata. Sweep
// performs the same marking through markReachableLocked; pkg/ccamc/gc goes
// through Sweep and does not call this method.
func (s *Store) MarkReachable(ctx context.Context) (map[blob.Hash]bool, map[metadata.Hash]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markReachableLocked(ctx)
}

func (s *Store) markReachableLocked(ctx context.Context) (map[blob.Hash]bool, map[metadata.Hash]bool, error) {
	liveBlobs := map[blob.Hash]bool{}
	liveMeta := map[metadata.Hash]bool{}

	var markChain func(h, root blob.Hash) error
	markChain = func(h, root blob.Hash) error {
		for h != root {
			if liveBlobs[h] {
				return nil // already walked this suffix
			}
			b, err := s.blobs.Get(h)
			if err != nil {
				return err
			}
			liveBlobs[h] = true
			h = b.Parent
		}
		return nil
	}

	var markMeta func(metaHash metadata.Hash, chainRoot blob.Hash) error
	markMeta = func(metaHash metadata.Hash, chainRoot blob.Hash) error {
		if metaHash == 0 || liveMeta[metaHash] {
			return nil
		}
		liveMeta[metaHash] = true

		md, err := s.meta.Get(metaHash)
		if err != nil {
			return err
		}
		if err := markChain(md.FinalBlob, chainRoot); err != nil {
			return err
		}
		for _, rec := range md.Records {
			if rec.Type != metadata.RecordVariation {
				continue
			}
			// Mirrors ingestTree/reconstructTree: a variation branching at
			// move 0 continues the enclosing chain's root, any later branch
			// point was stored rooted at blob.Orphan.
			varRoot := chainRoot
			if rec.MoveIndex > 0 {
				varRoot = blob.Orphan
			}
			if err := markChain(rec.VariationFinal, varRoot); err != nil {
				return err
			}
			if err := markMeta(rec.VariationMeta, varRoot); err != nil {
				return err
			}
		}
		return nil
	}

	err := s.reg.Each(func(id string, e registry.Entry) error {
		if err := markChain(e.FinalBlob, s.initHash); err != nil {
			return err
		}
		return markMeta(e.Metadata, s.initHash)
	})
	if err != nil {
		return nil, nil, err
	}

	logw.Infof(ctx, "Marked %d reachable blobs, %d reachable metadata records", len(liveBlobs), len(liveMeta))
	return liveBlobs, liveMeta, nil
}

// Sweep rewrites the blob and metadata stores to contain only data reachable
// from the registry, per MarkReachable, and atomically replaces the on-disk
// files. Only valid on a writer store; the registry itself is never
// rewritten, since every entry is by definition live. It returns the number
// of blobs and metadata records retained.
func (s *Store) Sweep(ctx context.Context) (int, int, error) {
	if !s.isWriter {
		return 0, 0, ccerr.Newf(ccerr.IOError, "ccamc.Sweep", "store %v was not opened for writing", s.dir)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	liveBlobs, liveMeta, err := s.markReachableLocked(ctx)
	if err != nil {
		return 0, 0, err
	}

	tmp := s.dir + "/.gc-tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return 0, 0, ccerr.New(ccerr.IOError, "ccamc.Sweep", err)
	}
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return 0, 0, ccerr.New(ccerr.IOError, "ccamc.Sweep", err)
	}
	defer os.RemoveAll(tmp)

	newBlobs, err := blobstore.Open(tmp)
	if err != nil {
		return 0, 0, err
	}
	if err := s.blobs.Each(func(h blob.Hash, b blob.Blob) error {
		if !liveBlobs[h] {
			return nil
		}
		_, err := newBlobs.Put(b)
		return err
	}); err != nil {
		newBlobs.Close()
		return 0, 0, err
	}
	if err := newBlobs.Flush(); err != nil {
		newBlobs.Close()
		return 0, 0, err
	}
	if err := newBlobs.Close(); err != nil {
		return 0, 0, err
	}

	newMeta, err := metastore.Open(tmp)
	if err != nil {
		return 0, 0, err
	}
	if err := s.meta.Each(func(h metadata.Hash, enc []byte) error {
		if !liveMeta[h] {
			return nil
		}
		_, err := newMeta.PutEncoded(enc)
		return err
	}); err != nil {
		newMeta.Close()
		return 0, 0, err
	}
	if err := newMeta.Close(); err != nil {
		return 0, 0, err
	}

	if err := s.blobs.Close(); err != nil {
		return 0, 0, err
	}
	if err := s.meta.Close(); err != nil {
		return 0, 0, err
	}

	for _, name := range []string{"moves", "idx"} {
		if err := os.Rename(tmp+"/"+name, s.dir+"/"+name); err != nil {
			return 0, 0, ccerr.New(ccerr.IOError, "ccamc.Sweep", err)
		}
	}
	if err := os.Rename(tmp+"/metadata", s.dir+"/metadata"); err != nil {
		return 0, 0, ccerr.New(ccerr.IOError, "ccamc.Sweep", err)
	}

	s.blobs, err = blobstore.Open(s.dir)
	if err != nil {
		return 0, 0, err
	}
	s.meta, err = metastore.Open(s.dir)
	if err != nil {
		return 0, 0, err
	}

	logw.Infof(ctx, "Swept store %v: %d blobs, %d metadata records retained", s.dir, len(liveBlobs), len(liveMeta))
	return len(liveBlobs), len(liveMeta), nil
}
