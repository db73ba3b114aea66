package rules

import (
	"fmt"
	"regexp"
)

// sanPattern decomposes a single SAN token into piece, disambiguation file/rank,
// capture marker, destination square and promotion piece. Modeled on
// corentings/chess/v2's AlgebraicNotation regular expression, adapted to this
// package's Position/Move vocabulary instead of that library's board type.
var sanPattern = regexp.MustCompile(`^([KQRBN])?([a-h])?([1-8])?(x)?([a-h][1-8])(=?([QRBN]))?[+#]?$`)

// DecodeSAN resolves a single standard algebraic notation token, such as "Nf3",
// "exd5", "O-O" or "e8=Q", against the legal moves available to turn in pos. It
// returns InvalidMove-flavored errors (via fmt.Errorf) when the token cannot be
// resolved to exactly one legal move.
func DecodeSAN(pos *Position, turn Color, san string) (Move, error) {
	switch san {
	case "O-O", "0-0":
		return findCastle(pos, turn, KingSideCastle, san)
	case "O-O-O", "0-0-0":
		return findCastle(pos, turn, QueenSideCastle, san)
	}

	m := sanPattern.FindStringSubmatch(san)
	if m == nil {
		return Move{}, fmt.Errorf("invalid SAN move: '%v'", san)
	}

	piece := Pawn
	if m[1] != "" {
		piece, _ = ParsePiece(rune(m[1][0]))
	}
	disambigFile, hasFile := -1, m[2] != ""
	if hasFile {
		f, _ := ParseFile(rune(m[2][0]))
		disambigFile = f.V()
	}
	disambigRank, hasRank := -1, m[3] != ""
	if hasRank {
		r, _ := ParseRank(rune(m[3][0]))
		disambigRank = r.V()
	}
	to, err := ParseSquareStr(m[5])
	if err != nil {
		return Move{}, fmt.Errorf("invalid SAN destination: '%v': %v", san, err)
	}
	var promo Piece
	if m[7] != "" {
		promo, _ = ParsePiece(rune(m[7][0]))
	}

	var candidates []Move
	for _, cand := range pos.PseudoLegalMoves(turn) {
		if cand.To != to || cand.Piece != piece || cand.Promotion != promo {
			continue
		}
		if hasFile && cand.From.File().V() != disambigFile {
			continue
		}
		if hasRank && cand.From.Rank().V() != disambigRank {
			continue
		}
		if _, ok := pos.Move(cand); !ok {
			continue // leaves own king in check: not legal
		}
		candidates = append(candidates, cand)
	}

	switch len(candidates) {
	case 0:
		return Move{}, fmt.Errorf("no legal move matches SAN: '%v'", san)
	case 1:
		return candidates[0], nil
	default:
		return Move{}, fmt.Errorf("ambiguous SAN move: '%v'", san)
	}
}

func findCastle(pos *Position, turn Color, want MoveType, san string) (Move, error) {
	for _, cand := range pos.PseudoLegalMoves(turn) {
		if cand.Type != want {
			continue
		}
		if _, ok := pos.Move(cand); !ok {
			continue
		}
		return cand, nil
	}
	return Move{}, fmt.Errorf("no legal castling move matches SAN: '%v'", san)
}
