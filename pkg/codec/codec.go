// Package codec implements the packed 16-bit move representation used
// throughout the blob store: bits 0-5 source square, bits 6-11 destination
// square, bits 12-14 promotion piece, bit 15 reserved. The codec is
// position-blind: it knows nothing about whose turn it is, check, or which
// piece actually occupies the source square. Those are the rules engine's
// concern (see pkg/rules); reconstruction recovers the piece identity by
// replaying from the initial position.
package codec

import "fmt"

// Promotion identifies the piece a pawn promotes to, or None for a non-promoting move.
type Promotion uint8

const (
	None Promotion = iota
	Queen
	Rook
	Bishop
	Knight
)

func (p Promotion) IsValid() bool {
	return p <= Knight
}

func (p Promotion) String() string {
	switch p {
	case None:
		return ""
	case Queen:
		return "q"
	case Rook:
		return "r"
	case Bishop:
		return "b"
	case Knight:
		return "n"
	default:
		return "?"
	}
}

const (
	squareBits    = 6
	squareMask    = 1<<squareBits - 1
	promotionBits = 3
	promotionMask = 1<<promotionBits - 1

	fromShift  = 0
	toShift    = squareBits
	promoShift = 2 * squareBits
)

// Move is the unpacked form of a packed move: two squares, numbered 0=a1..63=h8
// matching pkg/rules.Square, and an optional promotion piece.
type Move struct {
	From, To  uint8
	Promotion Promotion
}

// Pack encodes a move into its 16-bit wire representation. Fails with an error
// if from/to are not in [0,64) or promo is not a valid Promotion value.
func Pack(from, to uint8, promo Promotion) (uint16, error) {
	if from >= 64 {
		return 0, fmt.Errorf("invalid source square: %v", from)
	}
	if to >= 64 {
		return 0, fmt.Errorf("invalid destination square: %v", to)
	}
	if !promo.IsValid() {
		return 0, fmt.Errorf("invalid promotion: %v", promo)
	}

	v := uint16(from&squareMask) << fromShift
	v |= uint16(to&squareMask) << toShift
	v |= uint16(promo&promotionMask) << promoShift
	return v, nil
}

// Unpack decodes a packed move. It is total: the reserved bit 15 is ignored
// and any promotion value recovered as-is (callers validating input created
// it via Pack, so the round-trip is exact for well-formed data).
func Unpack(v uint16) Move {
	from := uint8(v>>fromShift) & squareMask
	to := uint8(v>>toShift) & squareMask
	promo := Promotion(uint8(v>>promoShift) & promotionMask)
	return Move{From: from, To: to, Promotion: promo}
}
