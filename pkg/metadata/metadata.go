// Package metadata implements the metadata blob: the Seven Tag Roster, any
// extra PGN tags, and the annotation records (comments, NAGs, variations,
// newlines) that let reconstruction reproduce a game's movetext, not just its
// moves. Values and tag/variation names are stored as string-store and
// blob-store hashes rather than inline text, so the metadata blob itself
// stays small and its own content hash is stable across games that share
// headers or commentary.
package metadata

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
	"github.com/herohde/ccamc/pkg/blob"
	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/herohde/ccamc/pkg/strstore"
)

// Hash is the 64-bit content digest of a serialized Metadata blob.
type Hash uint64

// StrTag is one Seven Tag Roster entry. TagID indexes into game.STRTags.
type StrTag struct {
	TagID uint8
	Value strstore.Hash
}

// ExtraTag is one non-roster PGN tag pair, both sides interned.
type ExtraTag struct {
	Name  strstore.Hash
	Value strstore.Hash
}

// RecordType distinguishes the four kinds of annotation record.
type RecordType uint8

const (
	RecordComment RecordType = iota
	RecordNAG
	RecordVariation
	RecordNewline
)

const (
	typeMask         = 0x07
	flagPre          = 1 << 3
	flagSemicolon    = 1 << 4
	flagNewlineAfter = 1 << 5
)

// Record is one annotation bound to a 0-based mainline move index, mirroring
// game.MoveAnnotation but with string/blob payloads resolved to hashes.
type Record struct {
	MoveIndex uint32
	Type      RecordType

	// Comment fields.
	Pre          bool
	Semicolon    bool
	NewlineAfter bool
	Text         strstore.Hash

	// NAG field.
	NAGCode byte

	// Variation fields: the final blob hash of the variation's own move
	// chain, and the metadata hash of the variation's own annotations (zero
	// if the variation carries none).
	VariationFinal blob.Hash
	VariationMeta  Hash
}

// Metadata is the full metadata blob for one game or variation.
type Metadata struct {
	FinalBlob blob.Hash
	STR       []StrTag
	Extra     []ExtraTag
	Records   []Record
}

// Encode serializes m per the metadata blob wire format: binding hash, STR
// roster, extra tags, then annotation records each prefixed by a varint move
// index and a type+flags byte.
func (m Metadata) Encode() ([]byte, error) {
	if len(m.STR) > 7 {
		return nil, ccerr.Newf(ccerr.InvalidBlob, "metadata.Encode", "STR roster has %d entries, max 7", len(m.STR))
	}
	if len(m.Extra) > 0xFFFF {
		return nil, ccerr.Newf(ccerr.InvalidBlob, "metadata.Encode", "too many extra tags: %d", len(m.Extra))
	}
	if len(m.Records) > 0xFFFF {
		return nil, ccerr.Newf(ccerr.InvalidBlob, "metadata.Encode", "too many annotation records: %d", len(m.Records))
	}
	for i := 1; i < len(m.Records); i++ {
		// Records must be in ascending mainline move-index order; ties are
		// fine (multiple annotations on one move).
		if m.Records[i].MoveIndex < m.Records[i-1].MoveIndex {
			return nil, ccerr.Newf(ccerr.InvalidBlob, "metadata.Encode", "annotation records out of order at %d: %d after %d", i, m.Records[i].MoveIndex, m.Records[i-1].MoveIndex)
		}
	}

	buf := make([]byte, 0, 8+1+len(m.STR)*9+2+len(m.Extra)*16+2+len(m.Records)*18)

	var hashBuf [8]byte
	binary.LittleEndian.PutUint64(hashBuf[:], uint64(m.FinalBlob))
	buf = append(buf, hashBuf[:]...)

	buf = append(buf, byte(len(m.STR)))
	for _, s := range m.STR {
		buf = append(buf, s.TagID)
		binary.LittleEndian.PutUint64(hashBuf[:], uint64(s.Value))
		buf = append(buf, hashBuf[:]...)
	}

	var countBuf [2]byte
	binary.LittleEndian.PutUint16(countBuf[:], uint16(len(m.Extra)))
	buf = append(buf, countBuf[:]...)
	for _, e := range m.Extra {
		binary.LittleEndian.PutUint64(hashBuf[:], uint64(e.Name))
		buf = append(buf, hashBuf[:]...)
		binary.LittleEndian.PutUint64(hashBuf[:], uint64(e.Value))
		buf = append(buf, hashBuf[:]...)
	}

	binary.LittleEndian.PutUint16(countBuf[:], uint16(len(m.Records)))
	buf = append(buf, countBuf[:]...)
	for _, r := range m.Records {
		var idxBuf [binary.MaxVarintLen32]byte
		n := binary.PutUvarint(idxBuf[:], uint64(r.MoveIndex))
		buf = append(buf, idxBuf[:n]...)

		flags := byte(r.Type) & typeMask
		if r.Pre {
			flags |= flagPre
		}
		if r.Semicolon {
			flags |= flagSemicolon
		}
		if r.NewlineAfter {
			flags |= flagNewlineAfter
		}
		buf = append(buf, flags)

		switch r.Type {
		case RecordComment:
			binary.LittleEndian.PutUint64(hashBuf[:], uint64(r.Text))
			buf = append(buf, hashBuf[:]...)
		case RecordNAG:
			buf = append(buf, r.NAGCode)
		case RecordVariation:
			binary.LittleEndian.PutUint64(hashBuf[:], uint64(r.VariationFinal))
			buf = append(buf, hashBuf[:]...)
			binary.LittleEndian.PutUint64(hashBuf[:], uint64(r.VariationMeta))
			buf = append(buf, hashBuf[:]...)
		case RecordNewline:
			// no payload
		default:
			return nil, ccerr.Newf(ccerr.InvalidBlob, "metadata.Encode", "unknown record type %d", r.Type)
		}
	}

	return buf, nil
}

// Decode parses a serialized Metadata blob.
func Decode(data []byte) (Metadata, error) {
	if len(data) < 8+1+2+2 {
		return Metadata{}, ccerr.Newf(ccerr.InvalidBlob, "metadata.Decode", "truncated metadata blob: %d bytes", len(data))
	}

	var m Metadata
	off := 0
	m.FinalBlob = blob.Hash(binary.LittleEndian.Uint64(data[off:]))
	off += 8

	strCount := int(data[off])
	off++
	if strCount > 7 {
		return Metadata{}, ccerr.Newf(ccerr.InvalidBlob, "metadata.Decode", "STR roster has %d entries, max 7", strCount)
	}
	for i := 0; i < strCount; i++ {
		if off+9 > len(data) {
			return Metadata{}, ccerr.New(ccerr.InvalidBlob, "metadata.Decode", errTruncated)
		}
		tagID := data[off]
		off++
		v := strstore.Hash(binary.LittleEndian.Uint64(data[off:]))
		off += 8
		m.STR = append(m.STR, StrTag{TagID: tagID, Value: v})
	}

	if off+2 > len(data) {
		return Metadata{}, ccerr.New(ccerr.InvalidBlob, "metadata.Decode", errTruncated)
	}
	extraCount := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2
	for i := 0; i < extraCount; i++ {
		if off+16 > len(data) {
			return Metadata{}, ccerr.New(ccerr.InvalidBlob, "metadata.Decode", errTruncated)
		}
		name := strstore.Hash(binary.LittleEndian.Uint64(data[off:]))
		off += 8
		val := strstore.Hash(binary.LittleEndian.Uint64(data[off:]))
		off += 8
		m.Extra = append(m.Extra, ExtraTag{Name: name, Value: val})
	}

	if off+2 > len(data) {
		return Metadata{}, ccerr.New(ccerr.InvalidBlob, "metadata.Decode", errTruncated)
	}
	recCount := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2
	for i := 0; i < recCount; i++ {
		idx, n := binary.Uvarint(data[off:])
		if n <= 0 {
			return Metadata{}, ccerr.New(ccerr.InvalidBlob, "metadata.Decode", errTruncated)
		}
		off += n

		if off >= len(data) {
			return Metadata{}, ccerr.New(ccerr.InvalidBlob, "metadata.Decode", errTruncated)
		}
		flags := data[off]
		off++

		r := Record{
			MoveIndex:    uint32(idx),
			Type:         RecordType(flags & typeMask),
			Pre:          flags&flagPre != 0,
			Semicolon:    flags&flagSemicolon != 0,
			NewlineAfter: flags&flagNewlineAfter != 0,
		}

		switch r.Type {
		case RecordComment:
			if off+8 > len(data) {
				return Metadata{}, ccerr.New(ccerr.InvalidBlob, "metadata.Decode", errTruncated)
			}
			r.Text = strstore.Hash(binary.LittleEndian.Uint64(data[off:]))
			off += 8
		case RecordNAG:
			if off+1 > len(data) {
				return Metadata{}, ccerr.New(ccerr.InvalidBlob, "metadata.Decode", errTruncated)
			}
			r.NAGCode = data[off]
			off++
		case RecordVariation:
			if off+16 > len(data) {
				return Metadata{}, ccerr.New(ccerr.InvalidBlob, "metadata.Decode", errTruncated)
			}
			r.VariationFinal = blob.Hash(binary.LittleEndian.Uint64(data[off:]))
			off += 8
			r.VariationMeta = Hash(binary.LittleEndian.Uint64(data[off:]))
			off += 8
		case RecordNewline:
			// no payload
		default:
			return Metadata{}, ccerr.Newf(ccerr.InvalidBlob, "metadata.Decode", "unknown record type %d", r.Type)
		}

		m.Records = append(m.Records, r)
	}

	return m, nil
}

var errTruncated = errors.New("truncated record")

// HashOf computes the content hash of a serialized metadata blob.
func HashOf(data []byte) Hash {
	return Hash(xxhash.Sum64(data))
}
