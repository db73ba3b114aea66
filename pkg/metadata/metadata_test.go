package metadata_test

import (
	"testing"

	"github.com/herohde/ccamc/pkg/blob"
	"github.com/herohde/ccamc/pkg/metadata"
	"github.com/herohde/ccamc/pkg/strstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMetadata() metadata.Metadata {
	return metadata.Metadata{
		FinalBlob: blob.Hash(42),
		STR: []metadata.StrTag{
			{TagID: 0, Value: strstore.Hash(1)},
			{TagID: 4, Value: strstore.Hash(2)},
		},
		Extra: []metadata.ExtraTag{
			{Name: strstore.Hash(3), Value: strstore.Hash(4)},
		},
		Records: []metadata.Record{
			{MoveIndex: 0, Type: metadata.RecordComment, Pre: true, Text: strstore.Hash(5)},
			{MoveIndex: 3, Type: metadata.RecordNAG, NAGCode: 1},
			{MoveIndex: 4, Type: metadata.RecordVariation, VariationFinal: blob.Hash(9), VariationMeta: metadata.Hash(10)},
			{MoveIndex: 10, Type: metadata.RecordNewline},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := sampleMetadata()

	enc, err := m.Encode()
	require.NoError(t, err)

	got, err := metadata.Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestHashOfIsStableAndContentSensitive(t *testing.T) {
	m1 := sampleMetadata()
	m2 := sampleMetadata()

	enc1, err := m1.Encode()
	require.NoError(t, err)
	enc2, err := m2.Encode()
	require.NoError(t, err)
	assert.Equal(t, metadata.HashOf(enc1), metadata.HashOf(enc2))

	m2.Records[1].NAGCode = 2
	enc3, err := m2.Encode()
	require.NoError(t, err)
	assert.NotEqual(t, metadata.HashOf(enc1), metadata.HashOf(enc3))
}

func TestEncodeRejectsOversizedRoster(t *testing.T) {
	m := metadata.Metadata{STR: make([]metadata.StrTag, 8)}
	_, err := m.Encode()
	assert.Error(t, err)
}

func TestDecodeRejectsTruncatedInput(t *testing.T) {
	_, err := metadata.Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}
