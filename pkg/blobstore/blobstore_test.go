package blobstore_test

import (
	"testing"

	"github.com/herohde/ccamc/pkg/blob"
	"github.com/herohde/ccamc/pkg/blobstore"
	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *blobstore.Store {
	t.Helper()
	s, err := blobstore.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetDedup(t *testing.T) {
	s := openStore(t)

	b := blob.Blob{Parent: blob.Hash(1), Zobrist: 2, MoveCount: 1}
	b.Moves[0] = 7

	h1, err := s.Put(b)
	require.NoError(t, err)
	h2, err := s.Put(b)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, s.Len())

	got, err := s.Get(h1)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestGetNotFound(t *testing.T) {
	s := openStore(t)
	_, err := s.Get(blob.Hash(12345))
	assert.True(t, ccerr.Is(err, ccerr.NotFound))
}

func TestFlushPersistsIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := blobstore.Open(dir)
	require.NoError(t, err)

	var hashes []blob.Hash
	for i := uint64(0); i < 50; i++ {
		b := blob.Blob{Parent: blob.Hash(i), Zobrist: i + 1, MoveCount: 1}
		b.Moves[0] = uint16(i)
		h, err := s.Put(b)
		require.NoError(t, err)
		hashes = append(hashes, h)
	}
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	reopened, err := blobstore.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 50, reopened.Len())
	for _, h := range hashes {
		assert.True(t, reopened.Exists(h))
	}
}

func TestEachVisitsAllBlobs(t *testing.T) {
	s := openStore(t)

	want := map[blob.Hash]bool{}
	for i := uint64(0); i < 10; i++ {
		b := blob.Blob{Parent: blob.Hash(i), Zobrist: i}
		h, err := s.Put(b)
		require.NoError(t, err)
		want[h] = true
	}

	seen := map[blob.Hash]bool{}
	require.NoError(t, s.Each(func(h blob.Hash, _ blob.Blob) error {
		seen[h] = true
		return nil
	}))
	assert.Equal(t, want, seen)
}
