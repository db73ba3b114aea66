package ccerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/stretchr/testify/assert"
)

func TestIs(t *testing.T) {
	err := ccerr.New(ccerr.NotFound, "blobstore.Get", errors.New("no such hash"))

	assert.True(t, ccerr.Is(err, ccerr.NotFound))
	assert.False(t, ccerr.Is(err, ccerr.IntegrityError))

	wrapped := fmt.Errorf("walking chain: %w", err)
	assert.True(t, ccerr.Is(wrapped, ccerr.NotFound))
}

func TestNewf(t *testing.T) {
	err := ccerr.Newf(ccerr.InvalidMove, "codec.Pack", "square %v out of range", 64)
	assert.True(t, ccerr.Is(err, ccerr.InvalidMove))
	assert.Contains(t, err.Error(), "square 64 out of range")
}
