package rules

import "fmt"

// Placement pins one piece to one square, as used to build a Position from a
// FEN board section or from applying a move.
type Placement struct {
	Square Square
	Color  Color
	Piece  Piece
}

type occupant struct {
	piece Piece
	color Color
	set   bool
}

// Position is an immutable mailbox board representation: 64 squares, castling
// rights and the current en passant target, if any. Positions are produced by
// NewPosition and by Move; existing Positions are never mutated in place, so a
// Position can be freely shared across replay chains.
type Position struct {
	cells    [64]occupant
	castling Castling
	ep       Square
	epOK     bool
}

// NewPosition builds a position from an explicit piece placement list.
func NewPosition(pieces []Placement, castling Castling, ep Square, epOK bool) (*Position, error) {
	pos := &Position{castling: castling, ep: ep, epOK: epOK}
	for _, pl := range pieces {
		if !pl.Square.IsValid() {
			return nil, fmt.Errorf("invalid placement square: %v", pl.Square)
		}
		if !pl.Piece.IsValid() {
			return nil, fmt.Errorf("invalid placement piece: %v", pl.Piece)
		}
		if pos.cells[pl.Square].set {
			return nil, fmt.Errorf("duplicate placement on square: %v", pl.Square)
		}
		pos.cells[pl.Square] = occupant{piece: pl.Piece, color: pl.Color, set: true}
	}
	if epOK && !ep.IsValid() {
		return nil, fmt.Errorf("invalid en passant square: %v", ep)
	}
	return pos, nil
}

// Square returns the occupant of a square, if any.
func (p *Position) Square(sq Square) (Color, Piece, bool) {
	c := p.cells[sq]
	return c.color, c.piece, c.set
}

// IsEmpty returns true iff no piece sits on the square.
func (p *Position) IsEmpty(sq Square) bool {
	return !p.cells[sq].set
}

// Castling returns the current castling rights.
func (p *Position) Castling() Castling {
	return p.castling
}

// EnPassant returns the current en passant target square, if any.
func (p *Position) EnPassant() (Square, bool) {
	return p.ep, p.epOK
}

func (p *Position) findKing(c Color) (Square, bool) {
	for sq := ZeroSquare; sq < NumSquares; sq++ {
		if cell := p.cells[sq]; cell.set && cell.color == c && cell.piece == King {
			return sq, true
		}
	}
	return 0, false
}

// IsAttacked returns true iff any piece of color c attacks sq.
func (p *Position) IsAttacked(c Color, sq Square) bool {
	for from := ZeroSquare; from < NumSquares; from++ {
		cell := p.cells[from]
		if !cell.set || cell.color != c {
			continue
		}
		for _, to := range p.attacks(from, cell.color, cell.piece) {
			if to == sq {
				return true
			}
		}
	}
	return false
}

// IsChecked returns true iff the king of color c is attacked by the opponent.
func (p *Position) IsChecked(c Color) bool {
	king, ok := p.findKing(c)
	if !ok {
		return false
	}
	return p.IsAttacked(c.Opponent(), king)
}

var knightOffsets = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
var kingOffsets = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
var bishopDirs = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
var rookDirs = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}

func squareAt(file, rank int) (Square, bool) {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return 0, false
	}
	return NewSquare(File(file), Rank(rank)), true
}

// attacks returns the squares attacked by a piece of the given color from the
// given square, ignoring whose turn it is and whether the move would self-check.
// Pawn attacks are the diagonal capture squares, not the forward pushes.
func (p *Position) attacks(from Square, color Color, piece Piece) []Square {
	file, rank := from.File().V(), from.Rank().V()

	var out []Square
	switch piece {
	case Pawn:
		dir := 1
		if color == Black {
			dir = -1
		}
		for _, df := range [2]int{-1, 1} {
			if sq, ok := squareAt(file+df, rank+dir); ok {
				out = append(out, sq)
			}
		}
	case Knight:
		for _, d := range knightOffsets {
			if sq, ok := squareAt(file+d[0], rank+d[1]); ok {
				out = append(out, sq)
			}
		}
	case King:
		for _, d := range kingOffsets {
			if sq, ok := squareAt(file+d[0], rank+d[1]); ok {
				out = append(out, sq)
			}
		}
	case Bishop, Rook, Queen:
		var dirs [][2]int
		switch piece {
		case Bishop:
			dirs = bishopDirs[:]
		case Rook:
			dirs = rookDirs[:]
		default:
			dirs = append(append([][2]int{}, bishopDirs[:]...), rookDirs[:]...)
		}
		for _, d := range dirs {
			f, r := file, rank
			for {
				f, r = f+d[0], r+d[1]
				sq, ok := squareAt(f, r)
				if !ok {
					break
				}
				out = append(out, sq)
				if p.cells[sq].set {
					break
				}
			}
		}
	}
	return out
}

// PseudoLegalMoves generates every move available to turn without verifying
// that the moving side's king is left safe; Move performs that final check.
func (p *Position) PseudoLegalMoves(turn Color) []Move {
	var out []Move
	for from := ZeroSquare; from < NumSquares; from++ {
		cell := p.cells[from]
		if !cell.set || cell.color != turn {
			continue
		}
		switch cell.piece {
		case Pawn:
			out = append(out, p.pawnMoves(from, turn)...)
		case King:
			out = append(out, p.kingMoves(from, turn)...)
		default:
			for _, to := range p.attacks(from, turn, cell.piece) {
				out = append(out, p.moveTo(from, to, turn, cell.piece))
			}
		}
	}
	return out
}

func (p *Position) moveTo(from, to Square, turn Color, piece Piece) Move {
	target := p.cells[to]
	if target.set {
		return Move{Type: Capture, From: from, To: to, Piece: piece, Capture: target.piece}
	}
	return Move{Type: Normal, From: from, To: to, Piece: piece}
}

func (p *Position) pawnMoves(from Square, turn Color) []Move {
	file, rank := from.File().V(), from.Rank().V()
	dir, startRank, promoRank := 1, 1, 7
	if turn == Black {
		dir, startRank, promoRank = -1, 6, 0
	}

	var out []Move
	addPromoOrPlain := func(m Move, rank int) {
		if rank == promoRank {
			for _, promo := range []Piece{Queen, Rook, Bishop, Knight} {
				n := m
				n.Promotion = promo
				if n.Type == Capture {
					n.Type = CapturePromotion
				} else {
					n.Type = Promotion
				}
				out = append(out, n)
			}
			return
		}
		out = append(out, m)
	}

	if sq, ok := squareAt(file, rank+dir); ok && p.IsEmpty(sq) {
		addPromoOrPlain(Move{Type: Push, From: from, To: sq, Piece: Pawn}, sq.Rank().V())
		if rank == startRank {
			if sq2, ok := squareAt(file, rank+2*dir); ok && p.IsEmpty(sq2) {
				out = append(out, Move{Type: Jump, From: from, To: sq2, Piece: Pawn})
			}
		}
	}

	for _, df := range [2]int{-1, 1} {
		sq, ok := squareAt(file+df, rank+dir)
		if !ok {
			continue
		}
		if target := p.cells[sq]; target.set && target.color != turn {
			addPromoOrPlain(Move{Type: Capture, From: from, To: sq, Piece: Pawn, Capture: target.piece}, sq.Rank().V())
		} else if ep, ok := p.EnPassant(); ok && ep == sq {
			out = append(out, Move{Type: EnPassant, From: from, To: sq, Piece: Pawn, Capture: Pawn})
		}
	}

	return out
}

func (p *Position) kingMoves(from Square, turn Color) []Move {
	var out []Move
	for _, to := range p.attacks(from, turn, King) {
		target := p.cells[to]
		if target.set && target.color == turn {
			continue
		}
		out = append(out, p.moveTo(from, to, turn, King))
	}

	home := E1
	kingSide, queenSide := WhiteKingSideCastle, WhiteQueenSideCastle
	if turn == Black {
		home = E8
		kingSide, queenSide = BlackKingSideCastle, BlackQueenSideCastle
	}
	if from != home || p.IsChecked(turn) {
		return out
	}

	rank := from.Rank()
	if p.castling.IsAllowed(kingSide) {
		f1, _ := squareAt(FileF.V(), rank.V())
		g1, _ := squareAt(FileG.V(), rank.V())
		if p.IsEmpty(f1) && p.IsEmpty(g1) && !p.IsAttacked(turn.Opponent(), f1) && !p.IsAttacked(turn.Opponent(), g1) {
			out = append(out, Move{Type: KingSideCastle, From: from, To: g1, Piece: King})
		}
	}
	if p.castling.IsAllowed(queenSide) {
		d1, _ := squareAt(FileD.V(), rank.V())
		c1, _ := squareAt(FileC.V(), rank.V())
		b1, _ := squareAt(FileB.V(), rank.V())
		if p.IsEmpty(d1) && p.IsEmpty(c1) && p.IsEmpty(b1) && !p.IsAttacked(turn.Opponent(), d1) && !p.IsAttacked(turn.Opponent(), c1) {
			out = append(out, Move{Type: QueenSideCastle, From: from, To: c1, Piece: King})
		}
	}
	return out
}

// Move applies a candidate move, which must be one produced by
// PseudoLegalMoves(turn) for the moving side. It returns the resulting position
// and true iff the move is legal, i.e., does not leave the mover's own king in
// check.
func (p *Position) Move(m Move) (*Position, bool) {
	turn := p.cells[m.From].color

	next := *p
	next.cells[m.From] = occupant{}

	switch m.Type {
	case EnPassant:
		capture, _ := m.EnPassantCapture()
		next.cells[capture] = occupant{}
		next.cells[m.To] = occupant{piece: Pawn, color: turn, set: true}

	case KingSideCastle, QueenSideCastle:
		rFrom, rTo, _ := m.CastlingRookMove()
		next.cells[rFrom] = occupant{}
		next.cells[rTo] = occupant{piece: Rook, color: turn, set: true}
		next.cells[m.To] = occupant{piece: King, color: turn, set: true}

	case Promotion, CapturePromotion:
		next.cells[m.To] = occupant{piece: m.Promotion, color: turn, set: true}

	default:
		next.cells[m.To] = occupant{piece: m.Piece, color: turn, set: true}
	}

	next.castling = p.castling &^ m.CastlingRightsLost()
	if target, ok := m.EnPassantTarget(); ok {
		next.ep, next.epOK = target, true
	} else {
		next.ep, next.epOK = 0, false
	}

	if next.IsChecked(turn) {
		return nil, false
	}
	return &next, true
}
