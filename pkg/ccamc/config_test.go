package ccamc

import (
	"os"
	"testing"

	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOrVerifyConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeOrVerifyConfig(dir))
	require.NoError(t, writeOrVerifyConfig(dir))
}

func TestWriteOrVerifyConfigRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/config", []byte("XXXXnotaconfig"), 0644))

	err := writeOrVerifyConfig(dir)
	assert.True(t, ccerr.Is(err, ccerr.IntegrityError))
}

func TestWriteOrVerifyConfigRejectsWrongHashFamily(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeOrVerifyConfig(dir))

	data, err := os.ReadFile(dir + "/config")
	require.NoError(t, err)
	// Flip the trailing hashFamily bytes in place, keeping their length the
	// same so only the family-string comparison is exercised.
	for i := len(data) - len(hashFamily); i < len(data); i++ {
		data[i] = 'x'
	}
	require.NoError(t, os.WriteFile(dir+"/config", data, 0644))

	err = writeOrVerifyConfig(dir)
	assert.True(t, ccerr.Is(err, ccerr.IntegrityError))
}
