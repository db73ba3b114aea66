// Package gc provides a standalone command-style entry point over
// ccamc.Store's mark/sweep primitives, kept separate from the store API so
// garbage collection reads as the administrative operation it is rather
// than part of the ingestion/reconstruction surface.
package gc

import (
	"context"

	"github.com/herohde/ccamc/pkg/ccamc"
)

// Stats summarizes a completed sweep.
type Stats struct {
	LiveBlobs    int
	LiveMetadata int
}

// Run marks every blob and metadata record reachable from store's registry
// and rewrites the store to retain only that live set. store must have been
// opened with ccamc.OpenWriter.
func Run(ctx context.Context, store *ccamc.Store) (Stats, error) {
	blobs, records, err := store.Sweep(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{LiveBlobs: blobs, LiveMetadata: records}, nil
}
