// Package fen contains utilities for reading and writing positions in FEN notation.
package fen

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/herohde/ccamc/pkg/rules"
)

const (
	Initial = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
)

// Decode returns a new position and game status from a FEN description.
//
// Example:
//
//	"rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
func Decode(fen string) (*rules.Position, rules.Color, int, int, error) {
	// A FEN record contains six fields. The separator between fields is a
	// space. The fields are:

	parts := strings.Split(strings.TrimSpace(fen), " ")
	if len(parts) != 6 {
		return nil, 0, 0, 0, fmt.Errorf("invalid number of sections in FEN: '%v'", fen)
	}

	// (1) Piece placement (from white's perspective). Each rank is described,
	// starting with rank 8 and ending with rank 1; within each rank, the
	// contents of each square are described from file a through file h.

	var pieces []rules.Placement

	rank, file := int(rules.Rank8), 0
	for _, r := range []rune(parts[0]) {
		switch {
		case r == '/':
			// "/" separate ranks. Cosmetic.
			rank--
			file = 0

		case unicode.IsDigit(r):
			// Blank squares are noted using digits 1 through 8 (the number of blank squares).

			file += int(r - '0')

		case unicode.IsLetter(r):
			// Following the Standard Algebraic Notation (SAN), each piece is -
			// identified by a single letter taken from the standard English names -
			// (pawn = "P", knight = "N", bishop = "B", rook = "R", queen = "Q" and -
			// king = "K")[1]. White pieces are designated using upper-case letters -
			// ("PNBRQK") while Black take lowercase ("pnbrqk").

			if rank < 0 || file > 7 {
				return nil, 0, 0, 0, fmt.Errorf("invalid number of squares in FEN: '%v'", fen)
			}

			color, piece, ok := parsePiece(r)
			if !ok {
				return nil, 0, 0, 0, fmt.Errorf("invalid piece '%v' in FEN: '%v'", r, fen)
			}
			sq := rules.NewSquare(rules.File(file), rules.Rank(rank))
			pieces = append(pieces, rules.Placement{Square: sq, Color: color, Piece: piece})
			file++

		default:
			return nil, 0, 0, 0, fmt.Errorf("invalid character in FEN: '%v'", fen)
		}
	}
	if rank != 0 || file != 8 {
		return nil, 0, 0, 0, fmt.Errorf("invalid number of squares in FEN: '%v'", fen)
	}

	// (2) Active color. "w" means white moves next, "b" means black.

	active, ok := parseColor(parts[1])
	if !ok {
		return nil, 0, 0, 0, fmt.Errorf("invalid active color in FEN: '%v'", fen)
	}

	// (3) Castling availability. If neither side can castle, this is
	// "-". Otherwise, this has one or more letters: "K" (White can castle
	// kingside), "Q" (White can castle queenside), "k" (Black can castle
	// kingside), and/or "q" (Black can castle queenside).

	castling, ok := parseCastling(parts[2])
	if !ok {
		return nil, 0, 0, 0, fmt.Errorf("invalid castling in FEN: '%v'", fen)
	}

	// (4) En passant target square in algebraic notation. If there's no en
	// passant target square, this is "-". If a pawn has just made a
	// 2-square move, this is the position "behind" the pawn.

	var ep rules.Square
	var epOK bool
	if parts[3] != "-" {
		sq, err := rules.ParseSquareStr(parts[3])
		if err != nil {
			return nil, 0, 0, 0, fmt.Errorf("invalid en passant in FEN: '%v'", fen)
		}
		ep, epOK = sq, true
	}

	// (5) Halfmove clock: This is the number of halfmoves since the last pawn
	// advance or capture. This is used to determine if a draw can be
	// claimed under the fifty move rule.

	np, err := strconv.Atoi(parts[4])
	if err != nil || np < 0 {
		return nil, 0, 0, 0, fmt.Errorf("invalid halfmove in FEN: '%v'", fen)
	}

	// (6) Fullmove number: The number of the full move. It starts at 1, and is
	// incremented after Black's move.

	fm, err := strconv.Atoi(parts[5])
	if err != nil || fm < 0 {
		return nil, 0, 0, 0, fmt.Errorf("invalid full moves in FEN: '%v'", fen)
	}

	pos, err := rules.NewPosition(pieces, castling, ep, epOK)
	if err != nil {
		return nil, 0, 0, 0, fmt.Errorf("invalid placement in FEN: '%v': %v", fen, err)
	}
	return pos, active, np, fm, nil
}

// Encode encodes the position and game data in FEN notation.
func Encode(pos *rules.Position, c rules.Color, noprogress, fullmoves int) string {
	var sb strings.Builder
	for r := int(rules.Rank8); r >= 0; r-- {
		blanks := 0
		for f := rules.ZeroFile; f < rules.NumFiles; f++ {
			color, piece, ok := pos.Square(rules.NewSquare(f, rules.Rank(r)))
			if !ok {
				blanks++
				continue
			}

			if blanks > 0 {
				sb.WriteString(strconv.Itoa(blanks))
				blanks = 0
			}

			sb.WriteRune(printPiece(color, piece))
		}

		if blanks > 0 {
			sb.WriteString(strconv.Itoa(blanks))
		}

		if r > 0 {
			sb.WriteString("/")
		}
	}

	turn := printColor(c)
	castling := printCastling(pos.Castling())

	ep := "-"
	if sq, ok := pos.EnPassant(); ok {
		ep = sq.String()
	}

	return fmt.Sprintf("%v %v %v %v %v %v", sb.String(), turn, castling, ep, noprogress, fullmoves)
}

func parseCastling(str string) (rules.Castling, bool) {
	var ret rules.Castling

	if str == "-" {
		return ret, true
	}
	for _, r := range []rune(str) {
		switch r {
		case 'K':
			ret |= rules.WhiteKingSideCastle
		case 'Q':
			ret |= rules.WhiteQueenSideCastle
		case 'k':
			ret |= rules.BlackKingSideCastle
		case 'q':
			ret |= rules.BlackQueenSideCastle
		default:
			return 0, false
		}
	}
	return ret, true
}

func printCastling(c rules.Castling) string {
	if c == 0 {
		return "-"
	}

	ret := ""
	if c.IsAllowed(rules.WhiteKingSideCastle) {
		ret += "K"
	}
	if c.IsAllowed(rules.WhiteQueenSideCastle) {
		ret += "Q"
	}
	if c.IsAllowed(rules.BlackKingSideCastle) {
		ret += "k"
	}
	if c.IsAllowed(rules.BlackQueenSideCastle) {
		ret += "q"
	}
	return ret
}

func parseColor(str string) (rules.Color, bool) {
	switch str {
	case "w", "W":
		return rules.White, true
	case "b", "B":
		return rules.Black, true
	default:
		return 0, false
	}
}

func printColor(c rules.Color) string {
	if c == rules.White {
		return "w"
	}
	return "b"
}

func parsePiece(r rune) (rules.Color, rules.Piece, bool) {
	switch r {
	case 'P':
		return rules.White, rules.Pawn, true
	case 'B':
		return rules.White, rules.Bishop, true
	case 'N':
		return rules.White, rules.Knight, true
	case 'R':
		return rules.White, rules.Rook, true
	case 'Q':
		return rules.White, rules.Queen, true
	case 'K':
		return rules.White, rules.King, true

	case 'p':
		return rules.Black, rules.Pawn, true
	case 'b':
		return rules.Black, rules.Bishop, true
	case 'n':
		return rules.Black, rules.Knight, true
	case 'r':
		return rules.Black, rules.Rook, true
	case 'q':
		return rules.Black, rules.Queen, true
	case 'k':
		return rules.Black, rules.King, true

	default:
		return 0, 0, false
	}
}

func printPiece(c rules.Color, p rules.Piece) rune {
	if c == rules.White {
		switch p {
		case rules.Pawn:
			return 'P'
		case rules.Bishop:
			return 'B'
		case rules.Knight:
			return 'N'
		case rules.Rook:
			return 'R'
		case rules.Queen:
			return 'Q'
		case rules.King:
			return 'K'
		default:
			return '?'
		}
	}

	switch p {
	case rules.Pawn:
		return 'p'
	case rules.Bishop:
		return 'b'
	case rules.Knight:
		return 'n'
	case rules.Rook:
		return 'r'
	case rules.Queen:
		return 'q'
	case rules.King:
		return 'k'
	default:
		return '?'
	}
}
