// Package blob implements the fixed-size 64-byte move blob that is the unit
// of storage for the move DAG, its content hashing and the two sentinel
// hashes (H_init, H_orphan) that anchor every chain.
package blob

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const (
	// Size is the fixed on-disk size of a blob record.
	Size = 64

	// MaxMoves is the number of packed moves a single blob can hold.
	MaxMoves = 22

	offsetParent  = 0
	offsetZobrist = 8
	offsetCount   = 16
	offsetFlags   = 17
	offsetMoves   = 18
	offsetResult  = 62
)

// Flag bits stored in byte 17 of the blob.
const (
	FlagOpeningAnchor byte = 1 << 0
	FlagGameEnd       byte = 1 << 1
)

// Result is the persisted game-result code stored in the terminal blob of a chain.
type Result uint8

const (
	WhiteWins Result = 0
	BlackWins Result = 1
	Draw      Result = 2
	Unknown   Result = 3
)

// Hash is the 64-bit content digest identifying a blob. Two blobs with
// identical parent, packed moves and Zobrist hash always produce the same Hash.
type Hash uint64

// orphanMarker is the known string literal hashed to produce H_orphan.
const orphanMarker = "ccamc:orphan-parent-v1"

// Orphan is the fixed sentinel parent hash used by variation chains that do
// not continue from a real parent blob.
var Orphan = Hash(xxhash.Sum64String(orphanMarker))

// Blob is the decoded, in-memory form of a 64-byte move blob.
type Blob struct {
	Parent    Hash
	Zobrist   uint64
	MoveCount uint8
	Flags     byte
	Moves     [MaxMoves]uint16
	Result    Result
}

// IsOpeningAnchor reports whether this blob terminates at a catalog opening boundary.
func (b Blob) IsOpeningAnchor() bool {
	return b.Flags&FlagOpeningAnchor != 0
}

// IsGameEnd reports whether this blob is the terminal blob of a game's chain.
func (b Blob) IsGameEnd() bool {
	return b.Flags&FlagGameEnd != 0
}

// hashPayload returns the parent-hash || move-data || Zobrist-hash bytes the
// content hash is computed over. Move-count, flags and result are
// deliberately excluded: a game-end-flagged copy of an existing opening
// anchor hashes identically and dedups against it, with the flag bits merged
// onto the stored record by the blob store.
func (b Blob) hashPayload() []byte {
	buf := make([]byte, 8+2*MaxMoves+8)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(b.Parent))
	for i, m := range b.Moves {
		binary.LittleEndian.PutUint16(buf[8+2*i:10+2*i], m)
	}
	binary.LittleEndian.PutUint64(buf[8+2*MaxMoves:], b.Zobrist)
	return buf
}

// Hash computes the content hash of the blob.
func (b Blob) Hash() Hash {
	return Hash(xxhash.Sum64(b.hashPayload()))
}

// Encode serializes the blob into its fixed 64-byte wire form.
func (b Blob) Encode() ([Size]byte, error) {
	var out [Size]byte
	if b.MoveCount > MaxMoves {
		return out, fmt.Errorf("invalid move count: %v", b.MoveCount)
	}

	binary.LittleEndian.PutUint64(out[offsetParent:], uint64(b.Parent))
	binary.LittleEndian.PutUint64(out[offsetZobrist:], b.Zobrist)
	out[offsetCount] = b.MoveCount
	out[offsetFlags] = b.Flags
	for i, m := range b.Moves {
		binary.LittleEndian.PutUint16(out[offsetMoves+2*i:], m)
	}
	binary.LittleEndian.PutUint16(out[offsetResult:], uint16(b.Result))
	return out, nil
}

// Decode parses a fixed 64-byte wire record into a Blob.
func Decode(data []byte) (Blob, error) {
	if len(data) != Size {
		return Blob{}, fmt.Errorf("invalid blob size: %v", len(data))
	}

	var b Blob
	b.Parent = Hash(binary.LittleEndian.Uint64(data[offsetParent:]))
	b.Zobrist = binary.LittleEndian.Uint64(data[offsetZobrist:])
	b.MoveCount = data[offsetCount]
	b.Flags = data[offsetFlags]
	for i := 0; i < MaxMoves; i++ {
		b.Moves[i] = binary.LittleEndian.Uint16(data[offsetMoves+2*i:])
	}
	b.Result = Result(binary.LittleEndian.Uint16(data[offsetResult:]))

	if b.MoveCount > MaxMoves {
		return Blob{}, fmt.Errorf("invalid move count: %v", b.MoveCount)
	}
	return b, nil
}
