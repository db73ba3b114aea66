package strstore_test

import (
	"testing"

	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/herohde/ccamc/pkg/strstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternIdempotent(t *testing.T) {
	s, err := strstore.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	h1, err := s.Intern([]byte("Ruy Lopez"))
	require.NoError(t, err)
	h2, err := s.Intern([]byte("Ruy Lopez"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	got, err := s.Lookup(h1)
	require.NoError(t, err)
	assert.Equal(t, "Ruy Lopez", string(got))
}

func TestLookupNotFound(t *testing.T) {
	s, err := strstore.Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Lookup(strstore.Hash(1))
	assert.True(t, ccerr.Is(err, ccerr.NotFound))
}

func TestReopenReloadsStrings(t *testing.T) {
	dir := t.TempDir()

	s, err := strstore.Open(dir)
	require.NoError(t, err)
	h, err := s.Intern([]byte("Sicilian Defense"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := strstore.Open(dir)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Lookup(h)
	require.NoError(t, err)
	assert.Equal(t, "Sicilian Defense", string(got))
}
