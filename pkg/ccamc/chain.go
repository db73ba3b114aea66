package ccamc

import (
	"github.com/herohde/ccamc/pkg/blob"
	"github.com/herohde/ccamc/pkg/catalog"
	"github.com/herohde/ccamc/pkg/ccerr"
	"github.com/herohde/ccamc/pkg/codec"
	"github.com/herohde/ccamc/pkg/rules"
)

// appendChain packs moves into a chain of blobs starting at parent,
// persisting each one as it completes. A blob boundary falls whenever
// blob.MaxMoves moves have accumulated, the move is the last in moves, or
// (when matchCatalog is set) the move count reaches the ply length of a
// catalog opening entry, flagged as an opening anchor. Forcing a boundary at
// each matched opening's ply length is what lets two games sharing only the
// opening (and diverging afterward) dedup that anchor blob even though
// neither game's length is a multiple of blob.MaxMoves. A variation
// branching off mid-blob never forces a split (it roots at blob.Orphan
// instead of an interior blob hash). matchCatalog restricts opening-anchor
// flagging to the top-level mainline; variations never carry the flag.
func (s *Store) appendChain(parent blob.Hash, pos *rules.Position, turn rules.Color, moves []rules.Move, result *blob.Result, markGameEnd, matchCatalog bool) (blob.Hash, error) {
	cur := parent

	if len(moves) == 0 {
		if !markGameEnd {
			return parent, nil
		}
		// A zero-move game still gets a terminal blob so that its chain is
		// non-empty and carries the game-end flag and result.
		cb := blob.Blob{
			Parent:  parent,
			Zobrist: uint64(s.zt.Hash(pos, turn)),
			Flags:   blob.FlagGameEnd,
			Result:  blob.Unknown,
		}
		if result != nil {
			cb.Result = *result
		}
		return s.blobs.Put(cb)
	}

	packed := make([]uint16, len(moves))
	for i, m := range moves {
		promo, err := promotionOf(m)
		if err != nil {
			return 0, ccerr.New(ccerr.InvalidMove, "ccamc.appendChain", err)
		}
		v, err := codec.Pack(uint8(m.From), uint8(m.To), promo)
		if err != nil {
			return 0, ccerr.New(ccerr.InvalidMove, "ccamc.appendChain", err)
		}
		packed[i] = v
	}

	var anchors []catalog.Match
	if matchCatalog {
		anchors = s.catalog.MatchPrefixes(packed)
	}
	nextAnchor := 0

	zh := s.zt.Hash(pos, turn)
	var cb blob.Blob

	for i, m := range moves {
		cb.Moves[cb.MoveCount] = packed[i]
		cb.MoveCount++

		next, ok := pos.Move(m)
		if !ok {
			return 0, ccerr.Newf(ccerr.InvalidMove, "ccamc.appendChain", "illegal move %v at ply %d", m, i)
		}
		zh = s.zt.Move(zh, pos, m)
		pos = next
		turn = turn.Opponent()

		ply := i + 1
		last := i == len(moves)-1
		full := int(cb.MoveCount) >= blob.MaxMoves
		isAnchor := nextAnchor < len(anchors) && anchors[nextAnchor].Plies == ply
		if !(full || last || isAnchor) {
			continue
		}

		cb.Parent = cur
		cb.Zobrist = uint64(zh)
		if last && markGameEnd {
			cb.Flags |= blob.FlagGameEnd
		}
		if isAnchor {
			cb.Flags |= blob.FlagOpeningAnchor
			nextAnchor++
		}
		if last && result != nil {
			cb.Result = *result
		} else {
			cb.Result = blob.Unknown
		}

		h, err := s.blobs.Put(cb)
		if err != nil {
			return 0, err
		}
		cur = h
		cb = blob.Blob{}
	}

	return cur, nil
}

// walkChain reads the blob chain from finalHash back to root (exclusive),
// returning the blobs in play order (root-adjacent first). It fails with
// ccerr.ChainError only when the chain shape itself is wrong: an unexpected
// H_orphan reached while walking to a non-orphan root, or the walk exceeding
// a sane hop bound (which catches cyclic parent pointers). A dangling or
// corrupted parent reference is an unresolved reference, so a blobstore.Get
// failure propagates as ccerr.IntegrityError instead (NotFound is re-coded;
// a content-hash mismatch already carries that code).
func (s *Store) walkChain(finalHash, root blob.Hash) ([]blob.Blob, error) {
	var rev []blob.Blob

	h := finalHash
	for i := 0; h != root; i++ {
		if h == blob.Orphan {
			return nil, ccerr.Newf(ccerr.ChainError, "ccamc.walkChain", "unexpected H_orphan walking to root %x", uint64(root))
		}
		if i > 1<<20 {
			return nil, ccerr.Newf(ccerr.ChainError, "ccamc.walkChain", "chain from %x does not reach root %x", uint64(finalHash), uint64(root))
		}
		b, err := s.blobs.Get(h)
		if err != nil {
			if ccerr.Is(err, ccerr.NotFound) {
				return nil, ccerr.Newf(ccerr.IntegrityError, "ccamc.walkChain", "unresolved parent reference %x", uint64(h))
			}
			return nil, err
		}
		rev = append(rev, b)
		h = b.Parent
	}

	out := make([]blob.Blob, len(rev))
	for i, b := range rev {
		out[len(rev)-1-i] = b
	}
	return out, nil
}

// decodeMove resolves a packed (from, to, promotion) move against pos,
// recovering the full rules.Move (with piece, capture and move type) by
// finding the unique legal candidate. A blob produced by this engine always
// has exactly one such candidate; zero or multiple indicate a corrupt chain.
func decodeMove(pos *rules.Position, turn rules.Color, packed uint16) (rules.Move, error) {
	u := codec.Unpack(packed)
	promoPiece, err := pieceOf(u.Promotion)
	if err != nil {
		return rules.Move{}, ccerr.New(ccerr.ChainError, "ccamc.decodeMove", err)
	}

	var candidates []rules.Move
	for _, cand := range pos.PseudoLegalMoves(turn) {
		if uint8(cand.From) != u.From || uint8(cand.To) != u.To || cand.Promotion != promoPiece {
			continue
		}
		if _, ok := pos.Move(cand); !ok {
			continue
		}
		candidates = append(candidates, cand)
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		return rules.Move{}, ccerr.Newf(ccerr.ChainError, "ccamc.decodeMove", "no legal move resolves packed move %v", packed)
	default:
		return rules.Move{}, ccerr.Newf(ccerr.ChainError, "ccamc.decodeMove", "ambiguous packed move %v", packed)
	}
}

// replayPrefix applies the first n moves of moves to pos, returning the
// resulting position and side to move. Used to recover the branch point of a
// variation from the already-decoded mainline move list.
func replayPrefix(pos *rules.Position, turn rules.Color, moves []rules.Move, n int) (*rules.Position, rules.Color, error) {
	for i := 0; i < n; i++ {
		next, ok := pos.Move(moves[i])
		if !ok {
			return nil, 0, ccerr.Newf(ccerr.ChainError, "ccamc.replayPrefix", "illegal move %v at ply %d during replay", moves[i], i)
		}
		pos = next
		turn = turn.Opponent()
	}
	return pos, turn, nil
}

func promotionOf(m rules.Move) (codec.Promotion, error) {
	switch m.Promotion {
	case rules.NoPiece:
		return codec.None, nil
	case rules.Queen:
		return codec.Queen, nil
	case rules.Rook:
		return codec.Rook, nil
	case rules.Bishop:
		return codec.Bishop, nil
	case rules.Knight:
		return codec.Knight, nil
	default:
		return codec.None, ccerr.Newf(ccerr.InvalidMove, "ccamc.promotionOf", "non-promotable promotion piece %v", m.Promotion)
	}
}

func pieceOf(p codec.Promotion) (rules.Piece, error) {
	switch p {
	case codec.None:
		return rules.NoPiece, nil
	case codec.Queen:
		return rules.Queen, nil
	case codec.Rook:
		return rules.Rook, nil
	case codec.Bishop:
		return rules.Bishop, nil
	case codec.Knight:
		return rules.Knight, nil
	default:
		return rules.NoPiece, ccerr.Newf(ccerr.InvalidMove, "ccamc.pieceOf", "invalid packed promotion %v", p)
	}
}
